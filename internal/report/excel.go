package report

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ExportHeader 报告导出表头
var ExportHeader = []string{
	"Patient ID",
	"Name",
	"Age",
	"Last Visited",
	"Right Eye (mmHg)",
	"Left Eye (mmHg)",
	"Status",
	"Notes",
}

const sheetName = "IOP Report"

// GenerateExcel 生成报告 Excel 文件（表头 + 一行数据）
func GenerateExcel(r *Report) ([]byte, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	row := []any{
		r.PatientDisplayID,
		r.Name,
		r.Age,
		r.LastVisited,
		r.RightEyeMmHg,
		r.LeftEyeMmHg,
		r.Status,
		r.Notes,
	}
	widths := []float64{12, 24, 8, 14, 16, 16, 14, 40}

	for i, header := range ExportHeader {
		col := i + 1
		if err := setCell(f, col, 1, header); err != nil {
			f.Close()
			return nil, err
		}
		if err := setCell(f, col, 2, row[i]); err != nil {
			f.Close()
			return nil, err
		}

		name, err := excelize.ColumnNumberToName(col)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(sheetName, name, name, widths[i]); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	last, _ := excelize.CoordinatesToCellName(len(ExportHeader), 1)
	if err := f.SetCellStyle(sheetName, "A1", last, headerStyle); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}

func setCell(f *excelize.File, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetCellValue(sheetName, cell, value); err != nil {
		return fmt.Errorf("failed to set cell %s: %w", cell, err)
	}
	return nil
}
