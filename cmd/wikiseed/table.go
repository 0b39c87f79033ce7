package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// column describes one table column. Right-aligned columns hold numbers.
type column struct {
	title string
	right bool
}

func col(title string) column    { return column{title: title} }
func numCol(title string) column { return column{title: title, right: true} }
func cols(titles ...string) []column {
	out := make([]column, 0, len(titles))
	for _, title := range titles {
		out = append(out, col(title))
	}
	return out
}

func renderTable(columns []column, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, c := range columns {
		header[i] = c.title
		align := text.AlignLeft
		if c.right {
			align = text.AlignRight
		}
		configs[i] = table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, len(columns))
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}
	return tw.Render() + "\n"
}

// printTable writes a table, or emptyMsg when there are no rows.
func printTable(out io.Writer, columns []column, rows [][]string, emptyMsg string) {
	if len(rows) == 0 {
		fmt.Fprintln(out, emptyMsg)
		return
	}
	fmt.Fprint(out, renderTable(columns, rows))
}
