// Package viz renders integration results on the terminal.
//
// The package implements a trajectory browser using the Bubble Tea framework
// and lipgloss styles:
//
//   - [Browser]: pages through a stored run, one column at a time
//   - [Styles]: themed styles with sparklines and sparsity spy plots
//   - Theme selection with 4 built-in color schemes
//
// # Key Bindings
//
//	←/→   - Select column
//	↑/↓   - Move through the reported times
//	g/G   - First/last time
//	T     - Cycle color themes
//	?     - Show run details
//	Q     - Quit
package viz
