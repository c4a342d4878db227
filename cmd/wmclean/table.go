package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

const cellEllipsis = "..."

// resultColumn is one column of a batch or history table. Cells wider than
// maxWidth are cut and end in "..."; zero leaves the column unbounded.
type resultColumn struct {
	title    string
	align    text.Align
	maxWidth int
}

func leftColumn(title string) resultColumn  { return resultColumn{title: title, align: text.AlignLeft} }
func rightColumn(title string) resultColumn { return resultColumn{title: title, align: text.AlignRight} }

func (c resultColumn) cappedAt(width int) resultColumn {
	c.maxWidth = width
	return c
}

type resultTable struct {
	columns []resultColumn
	rows    []table.Row
	footer  table.Row
}

func newResultTable(columns ...resultColumn) *resultTable {
	return &resultTable{columns: columns}
}

func (t *resultTable) addRow(cells ...string) {
	t.rows = append(t.rows, t.row(cells))
}

// setFooter adds a totals row. Footer text keeps its case.
func (t *resultTable) setFooter(cells ...string) {
	t.footer = t.row(cells)
}

func (t *resultTable) row(cells []string) table.Row {
	row := make(table.Row, len(t.columns))
	for i := range row {
		row[i] = ""
		if i < len(cells) {
			row[i] = cells[i]
		}
	}
	return row
}

func (t *resultTable) String() string {
	if len(t.columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	style := table.StyleRounded
	style.Format.Footer = text.FormatDefault
	tw.SetStyle(style)

	header := make(table.Row, len(t.columns))
	configs := make([]table.ColumnConfig, 0, len(t.columns))
	for i, col := range t.columns {
		header[i] = col.title
		configs = append(configs, table.ColumnConfig{
			Number:           i + 1,
			Align:            col.align,
			AlignFooter:      col.align,
			AlignHeader:      text.AlignLeft,
			WidthMax:         col.maxWidth,
			WidthMaxEnforcer: ellipsize,
		})
	}
	tw.AppendHeader(header)
	for _, row := range t.rows {
		tw.AppendRow(row)
	}
	if t.footer != nil {
		tw.AppendFooter(t.footer)
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func ellipsize(cell string, maxWidth int) string {
	if maxWidth <= 0 || text.StringWidthWithoutEscSequences(cell) <= maxWidth {
		return cell
	}
	if maxWidth <= len(cellEllipsis) {
		return text.Trim(cell, maxWidth)
	}
	return text.Trim(cell, maxWidth-len(cellEllipsis)) + cellEllipsis
}
