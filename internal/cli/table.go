package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var cellStyle = lipgloss.NewStyle().Padding(0, 1, 0, 0).Align(lipgloss.Left)

// writeTable renders rows as borderless, left-aligned columns.
func writeTable(w io.Writer, headers []string, rows [][]string) error {
	t := table.New().
		BorderBottom(false).
		BorderTop(false).
		BorderLeft(false).
		BorderRight(false).
		BorderColumn(false).
		Border(lipgloss.HiddenBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...).
		BorderHeader(false)

	_, err := fmt.Fprintln(w, t)
	return err
}
