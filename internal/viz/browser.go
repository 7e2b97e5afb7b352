package viz

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/dynsens/internal/storage"
)

// Browser pages through a stored trajectory. Left and right select the
// column, up and down move through the reported times.
type Browser struct {
	meta   *storage.RunMetadata
	tr     *storage.Trajectory
	col    int
	row    int
	theme  int
	styles Styles
	help   bool

	width  int
	height int
}

func NewBrowser(meta *storage.RunMetadata, tr *storage.Trajectory) Browser {
	return Browser{
		meta:   meta,
		tr:     tr,
		styles: NewStyles(Themes[0]),
		width:  80,
		height: 24,
	}
}

// Column returns the selected column index.
func (b Browser) Column() int { return b.col }

// Row returns the selected time index.
func (b Browser) Row() int { return b.row }

func (b Browser) Theme() Theme { return Themes[b.theme] }

func (b Browser) Init() tea.Cmd { return nil }

func (b Browser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return b.handleKey(msg)
	case tea.WindowSizeMsg:
		b.width = msg.Width
		b.height = msg.Height
	}
	return b, nil
}

func (b Browser) handleKey(msg tea.KeyMsg) (Browser, tea.Cmd) {
	ncol, nrow := len(b.tr.Columns), len(b.tr.Rows)
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return b, tea.Quit
	case "left", "h":
		if b.col > 0 {
			b.col--
		}
	case "right", "l":
		if b.col < ncol-1 {
			b.col++
		}
	case "up", "k":
		if b.row > 0 {
			b.row--
		}
	case "down", "j":
		if b.row < nrow-1 {
			b.row++
		}
	case "home", "g":
		b.row = 0
	case "end", "G":
		b.row = max(nrow-1, 0)
	case "t":
		b.theme = (b.theme + 1) % len(Themes)
		b.styles = NewStyles(Themes[b.theme])
	case "?":
		b.help = !b.help
	}
	return b, nil
}

func (b Browser) View() string {
	s := b.styles
	var out strings.Builder

	out.WriteString(s.Header.Render(fmt.Sprintf("%s  %s  %s", b.meta.ID, b.meta.Problem, b.meta.Solver)))
	out.WriteString("\n\n")

	if len(b.tr.Rows) == 0 || len(b.tr.Columns) == 0 {
		out.WriteString(s.Subtle.Render("empty trajectory"))
		out.WriteString("\n\n" + b.hints())
		return out.String()
	}

	names := make([]string, len(b.tr.Columns))
	for j, name := range b.tr.Columns {
		if j == b.col {
			names[j] = s.Selected.Render("[" + name + "]")
		} else {
			names[j] = s.Label.Render(name)
		}
	}
	out.WriteString(strings.Join(names, " "))
	out.WriteString("\n\n")

	values := b.tr.Column(b.col)
	spark := s.Sparkline(values, max(b.width-8, 10))
	out.WriteString(s.Box(b.tr.Columns[b.col], spark))
	out.WriteString("\n\n")

	row := b.tr.Rows[b.row]
	lines := []string{
		s.Label.Render("t      ") + s.Value.Render(fmt.Sprintf("%.6g", b.tr.Times[b.row])),
		s.Label.Render("index  ") + s.Value.Render(fmt.Sprintf("%d/%d", b.row+1, len(b.tr.Rows))),
	}
	for j, v := range row {
		label := fmt.Sprintf("%-7s", b.tr.Columns[j])
		val := fmt.Sprintf("%.6g", v)
		if j == b.col {
			lines = append(lines, s.Selected.Render(label)+s.Selected.Render(val))
		} else {
			lines = append(lines, s.Label.Render(label)+s.Value.Render(val))
		}
	}
	out.WriteString(lipgloss.JoinVertical(lipgloss.Left, lines...))
	out.WriteString("\n\n")

	if b.help {
		out.WriteString(b.summary())
		out.WriteString("\n\n")
	}
	out.WriteString(b.hints())
	return out.String()
}

func (b Browser) summary() string {
	s := b.styles
	m := b.meta
	lines := []string{
		s.Label.Render("dims   ") + m.Dims.String(),
		s.Label.Render("steps  ") + fmt.Sprintf("%d forward, %d backward", m.Stats.Steps, m.Stats.BackwardSteps),
	}
	if len(m.RXF) > 0 {
		lines = append(lines, s.Label.Render("rxf    ")+fmt.Sprint(m.RXF))
	}
	if len(m.RQF) > 0 {
		lines = append(lines, s.Label.Render("rqf    ")+fmt.Sprint(m.RQF))
	}
	return s.Panel.Render(strings.Join(lines, "\n"))
}

func (b Browser) hints() string {
	return b.styles.KeyHint.Render(fmt.Sprintf("←/→ column  ↑/↓ time  g/G first/last  t theme (%s)  ? details  q quit", b.Theme().Name))
}

// RunBrowser opens the browser on the terminal.
func RunBrowser(meta *storage.RunMetadata, tr *storage.Trajectory) error {
	p := tea.NewProgram(NewBrowser(meta, tr), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
