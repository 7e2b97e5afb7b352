package viz

import (
	"math"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/dynsens/internal/integrator"
	"github.com/san-kum/dynsens/internal/sparsity"
	"github.com/san-kum/dynsens/internal/storage"
)

func sample() (*storage.RunMetadata, *storage.Trajectory) {
	meta := &storage.RunMetadata{
		ID:      "decay_1",
		Problem: "decay",
		Solver:  "rk",
		Dims:    integrator.Dims{NX: 1, NQ: 1},
		RQF:     []float64{-0.7},
	}
	tr := &storage.Trajectory{
		Columns: []string{"x", "q0"},
		Times:   []float64{0, 0.5, 1},
		Rows:    [][]float64{{1, 0}, {0.8, 0.45}, {0.6, 0.8}},
	}
	return meta, tr
}

func press(b Browser, keys ...string) Browser {
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "left":
			msg = tea.KeyMsg{Type: tea.KeyLeft}
		case "right":
			msg = tea.KeyMsg{Type: tea.KeyRight}
		case "up":
			msg = tea.KeyMsg{Type: tea.KeyUp}
		case "down":
			msg = tea.KeyMsg{Type: tea.KeyDown}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		m, _ := b.Update(msg)
		b = m.(Browser)
	}
	return b
}

func TestBrowserNavigation(t *testing.T) {
	b := NewBrowser(sample())

	b = press(b, "right", "right", "right")
	if b.Column() != 1 {
		t.Errorf("expected column clamped to 1, got %d", b.Column())
	}
	b = press(b, "left", "left")
	if b.Column() != 0 {
		t.Errorf("expected column 0, got %d", b.Column())
	}

	b = press(b, "down", "down", "down")
	if b.Row() != 2 {
		t.Errorf("expected row clamped to 2, got %d", b.Row())
	}
	b = press(b, "g")
	if b.Row() != 0 {
		t.Errorf("expected first row, got %d", b.Row())
	}
	b = press(b, "G")
	if b.Row() != 2 {
		t.Errorf("expected last row, got %d", b.Row())
	}

	b = press(b, "t")
	if b.Theme().Name != Themes[1].Name {
		t.Errorf("expected theme %s, got %s", Themes[1].Name, b.Theme().Name)
	}
}

func TestBrowserQuit(t *testing.T) {
	b := NewBrowser(sample())
	_, cmd := b.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestBrowserView(t *testing.T) {
	b := NewBrowser(sample())
	b = press(b, "right", "down", "?")
	view := b.View()

	for _, want := range []string{"decay_1", "q0", "0.45", "rqf"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}

	m, _ := b.Update(tea.WindowSizeMsg{Width: 40, Height: 10})
	if m.(Browser).width != 40 {
		t.Error("window size not applied")
	}

	empty := NewBrowser(&storage.RunMetadata{ID: "none"}, &storage.Trajectory{})
	if !strings.Contains(empty.View(), "empty trajectory") {
		t.Error("expected empty notice")
	}
}

func TestSparkline(t *testing.T) {
	s := NewStyles(ThemeMinimal)
	if got := s.Sparkline(nil, 5); got != "─────" {
		t.Errorf("unexpected empty sparkline %q", got)
	}
	line := s.Sparkline([]float64{0, 1, 2, 3, 4, 5, 6, 7}, 8)
	for _, c := range []string{"▁", "█"} {
		if !strings.Contains(line, c) {
			t.Errorf("sparkline %q missing %s", line, c)
		}
	}
	// Constant and non-finite inputs must not panic.
	s.Sparkline([]float64{2, 2, 2}, 3)
	s.Sparkline([]float64{1, math.NaN(), 3}, 3)
}

func TestSpy(t *testing.T) {
	s := NewStyles(ThemeMinimal)
	p := sparsity.Triplet(2, 3, []int{0, 1, 1}, []int{0, 1, 2})
	out := s.Spy(p, []string{"a", "bb"}, []string{"x", "y", "z"})
	lines := strings.Split(out, "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %d lines", len(lines))
	}
	if strings.Count(out, "●") != 3 || strings.Count(out, "·") != 3 {
		t.Errorf("unexpected spy plot:\n%s", out)
	}
}

func TestGetTheme(t *testing.T) {
	if GetTheme("ocean").Name != "ocean" {
		t.Error("expected ocean theme")
	}
	if GetTheme("nope").Name != Themes[0].Name {
		t.Error("expected fallback to the first theme")
	}
	if len(ThemeNames()) != len(Themes) {
		t.Error("theme names incomplete")
	}
}
