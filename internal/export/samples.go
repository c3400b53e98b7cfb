// Package export renders listings as Excel workbooks.
package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/Additional-Code/loom/internal/entity"
)

// ContentType is the MIME type of generated workbooks.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// SampleSheet is the sheet holding one row per sample request.
const SampleSheet = "Samples"

var sampleHeaders = []string{"Number", "Name", "Customer", "Color", "Quantity", "Status", "Created By", "Created At", "Updated At", "Notes"}

var sampleWidths = []float64{24, 28, 24, 12, 10, 14, 22, 20, 20, 40}

// Samples builds a workbook listing the given sample requests. The caller
// closes the returned file.
func Samples(rows []*entity.SampleRequest) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SampleSheet); err != nil {
		_ = f.Close()
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "#8EA9DB", Style: 1},
		},
	})
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	for i, h := range sampleHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SampleSheet, cell, h); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(sampleHeaders), 1)
	if err := f.SetCellStyle(SampleSheet, "A1", last, headerStyle); err != nil {
		_ = f.Close()
		return nil, err
	}

	for i, s := range rows {
		customer := ""
		if s.Customer != nil {
			customer = s.Customer.Name
		}
		values := []any{
			s.Number,
			s.Name,
			customer,
			s.Color,
			s.Quantity,
			s.Status,
			s.CreatedBy,
			s.CreatedAt.Format("2006-01-02 15:04:05"),
			s.UpdatedAt.Format("2006-01-02 15:04:05"),
			s.Notes,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(SampleSheet, cell, &values); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	for i, w := range sampleWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(SampleSheet, col, col, w)
	}
	_ = f.SetPanes(SampleSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
	return f, nil
}
