package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// tableSpec describes a rendered table. colorize enables per-cell colors
// returned by cellColor.
type tableSpec struct {
	headers   []string
	rows      [][]string
	aligns    []columnAlignment
	colorize  bool
	cellColor func(row, col int, value string) text.Colors
}

func renderTable(spec tableSpec) string {
	columns := len(spec.headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = spec.headers[i]
	}
	tw.AppendHeader(header)

	for rowIdx, row := range spec.rows {
		r := make(table.Row, columns)
		for i := range columns {
			value := ""
			if i < len(row) {
				value = row[i]
			}
			if spec.colorize && spec.cellColor != nil {
				if colors := spec.cellColor(rowIdx, i, value); len(colors) > 0 {
					value = colors.Sprint(value)
				}
			}
			r[i] = value
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(spec.aligns) && spec.aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

// jobStatusColors highlights lifecycle states.
func jobStatusColors(status string) text.Colors {
	switch status {
	case "ready":
		return text.Colors{text.FgGreen}
	case "failed":
		return text.Colors{text.FgRed}
	case "starting":
		return text.Colors{text.FgYellow}
	case "queued":
		return text.Colors{text.FgBlue}
	default:
		return nil
	}
}
