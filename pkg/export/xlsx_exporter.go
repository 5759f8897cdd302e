package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const (
	xlsxGridSheet = "Weekly"
	xlsxListSheet = "Courses"
)

// XLSXExporter renders a workbook with a weekly grid sheet and a course list sheet.
type XLSXExporter struct{}

// NewXLSXExporter constructs an XLSX exporter.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

// Render builds the workbook. A nil grid omits the weekly sheet.
func (e *XLSXExporter) Render(data Dataset, grid *Grid) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("xlsx requires at least one header")
	}
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEEFF"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	wrapStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
	})
	if err != nil {
		return nil, fmt.Errorf("create cell style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", xlsxListSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	for i, header := range data.Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(xlsxListSheet, cell, header); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
		if err := f.SetCellStyle(xlsxListSheet, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("style header: %w", err)
		}
	}
	for r, row := range data.Rows {
		for c, header := range data.Headers {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(xlsxListSheet, cell, row[header]); err != nil {
				return nil, fmt.Errorf("write row: %w", err)
			}
		}
	}
	lastCol, _ := excelize.ColumnNumberToName(len(data.Headers))
	if err := f.SetColWidth(xlsxListSheet, "A", lastCol, 18); err != nil {
		return nil, fmt.Errorf("set width: %w", err)
	}

	if grid != nil && len(grid.Columns) > 0 {
		idx, err := f.NewSheet(xlsxGridSheet)
		if err != nil {
			return nil, fmt.Errorf("create grid sheet: %w", err)
		}
		f.SetActiveSheet(idx)
		for c, col := range grid.Columns {
			cell, _ := excelize.CoordinatesToCellName(c+2, 1)
			_ = f.SetCellValue(xlsxGridSheet, cell, col)
			_ = f.SetCellStyle(xlsxGridSheet, cell, cell, headerStyle)
		}
		for r, label := range grid.Rows {
			labelCell, _ := excelize.CoordinatesToCellName(1, r+2)
			_ = f.SetCellValue(xlsxGridSheet, labelCell, label)
			_ = f.SetCellStyle(xlsxGridSheet, labelCell, labelCell, headerStyle)
			for c := range grid.Columns {
				text := grid.At(r, c)
				if text == "" {
					continue
				}
				cell, _ := excelize.CoordinatesToCellName(c+2, r+2)
				_ = f.SetCellValue(xlsxGridSheet, cell, text)
				_ = f.SetCellStyle(xlsxGridSheet, cell, cell, wrapStyle)
			}
		}
		lastGridCol, _ := excelize.ColumnNumberToName(len(grid.Columns) + 1)
		_ = f.SetColWidth(xlsxGridSheet, "A", "A", 10)
		_ = f.SetColWidth(xlsxGridSheet, "B", lastGridCol, 20)
	}

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("render xlsx: %w", err)
	}
	return buf.Bytes(), nil
}
