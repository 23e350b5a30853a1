package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"skymind/internal/pipeline"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	levelStyles = map[pipeline.Level]lipgloss.Style{
		pipeline.LevelSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		pipeline.LevelInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		pipeline.LevelWarning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		pipeline.LevelError:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printMessages(w io.Writer, msgs []pipeline.Status) {
	for _, m := range msgs {
		style, ok := levelStyles[m.Level]
		if !ok {
			style = lipgloss.NewStyle()
		}
		fmt.Fprintln(w, style.Render(fmt.Sprintf("[%s] %s", m.Level, m.Text)))
	}
}

func renderTable(rows []pipeline.TableRow) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(pipeline.TableColumns...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, r := range rows {
		t.Row(r.Cells()...)
	}
	return t.Render()
}
