package viz

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/dynsens/internal/sparsity"
)

// Styles are the lipgloss styles derived from a Theme.
type Styles struct {
	Panel     lipgloss.Style
	Title     lipgloss.Style
	Header    lipgloss.Style
	Label     lipgloss.Style
	Value     lipgloss.Style
	Selected  lipgloss.Style
	Subtle    lipgloss.Style
	KeyHint   lipgloss.Style
	Error     lipgloss.Style
	SparkHigh lipgloss.Style
	SparkMid  lipgloss.Style
	SparkLow  lipgloss.Style
}

func NewStyles(t Theme) Styles {
	return Styles{
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(t.Muted).
			Padding(0, 1),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(t.Secondary),
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(t.Text).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(t.Muted),
		Label:     lipgloss.NewStyle().Foreground(t.Muted),
		Value:     lipgloss.NewStyle().Bold(true).Foreground(t.Secondary),
		Selected:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Subtle:    lipgloss.NewStyle().Foreground(t.Muted),
		KeyHint:   lipgloss.NewStyle().Foreground(t.Muted).Italic(true),
		Error:     lipgloss.NewStyle().Bold(true).Foreground(t.Error),
		SparkHigh: lipgloss.NewStyle().Foreground(t.Success),
		SparkMid:  lipgloss.NewStyle().Foreground(t.Warning),
		SparkLow:  lipgloss.NewStyle().Foreground(t.Error),
	}
}

var sparkChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline renders values as one row of block characters, sampled down
// to width. Non-finite values render as a gap.
func (s Styles) Sparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return strings.Repeat("─", max(width, 0))
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo, hi = min(lo, v), max(hi, v)
	}
	rng := hi - lo
	if rng == 0 || math.IsInf(rng, 0) {
		rng = 1
	}

	step := max(len(values)/width, 1)
	var b strings.Builder
	for i := 0; i < width && i*step < len(values); i++ {
		v := values[i*step]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			b.WriteString(" ")
			continue
		}
		norm := (v - lo) / rng
		c := string(sparkChars[min(int(norm*float64(len(sparkChars)-1)), len(sparkChars)-1)])
		switch {
		case norm > 0.7:
			b.WriteString(s.SparkHigh.Render(c))
		case norm > 0.3:
			b.WriteString(s.SparkMid.Render(c))
		default:
			b.WriteString(s.SparkLow.Render(c))
		}
	}
	return b.String()
}

// Separator is a muted horizontal rule.
func (s Styles) Separator(width int) string {
	mid := width / 2
	left := strings.Repeat("─", max(mid-3, 0))
	right := strings.Repeat("─", max(width-mid-3, 0))
	return s.Subtle.Render(left + " ◆ " + right)
}

// Spy draws a sparsity pattern: one cell per entry, structural nonzeros
// marked. Rows and columns can be labelled.
func (s Styles) Spy(p sparsity.Pattern, rowNames, colNames []string) string {
	label := func(names []string, i int) string {
		if i < len(names) {
			return names[i]
		}
		return ""
	}
	width := 0
	for i := range p.Size1() {
		width = max(width, lipgloss.Width(label(rowNames, i)))
	}

	var b strings.Builder
	if len(colNames) > 0 {
		b.WriteString(strings.Repeat(" ", width+1))
		for j := range p.Size2() {
			name := label(colNames, j)
			if name == "" {
				name = " "
			}
			b.WriteString(s.Label.Render(string([]rune(name)[0])) + " ")
		}
		b.WriteString("\n")
	}
	for i := range p.Size1() {
		b.WriteString(s.Label.Render(lipgloss.PlaceHorizontal(width, lipgloss.Right, label(rowNames, i))) + " ")
		for j := range p.Size2() {
			if p.Has(i, j) {
				b.WriteString(s.Selected.Render("●") + " ")
			} else {
				b.WriteString(s.Subtle.Render("·") + " ")
			}
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Box renders content in a titled panel.
func (s Styles) Box(title, content string) string {
	return s.Title.Render(title) + "\n" + s.Panel.Render(content)
}
