package main

import (
	"os"

	"github.com/olekukonko/tablewriter"
)

// VisualTable renders a borderless left-aligned listing on stdout, with
// selected cells colored per row (liveness, job status, payout outcome).
type VisualTable struct {
	Header   []string
	Data     [][]string
	RowColor []RowColor
}

// RowColor applies color[n] to column[n] of one row; every other cell
// of that row keeps the default style.
type RowColor struct {
	row    int
	column []int
	color  []tablewriter.Colors
}

func NewVisualTable(header []string, data [][]string, rowColor []RowColor) *VisualTable {
	return &VisualTable{
		Header:   header,
		Data:     data,
		RowColor: rowColor,
	}
}

func (v *VisualTable) Generate() {
	table := tablewriter.NewWriter(os.Stdout)

	for index, datum := range v.Data {
		var rowColors []tablewriter.Colors
		for _, rowColor := range v.RowColor {
			if index != rowColor.row {
				continue
			}
			for dIndex := range datum {
				colored := false
				for n, colIndex := range rowColor.column {
					if dIndex == colIndex {
						rowColors = append(rowColors, rowColor.color[n])
						colored = true
					}
				}
				if !colored {
					rowColors = append(rowColors, tablewriter.Colors{})
				}
			}
		}
		table.Rich(datum, rowColors)
	}

	table.SetHeader(v.Header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
	table.Render()
}
