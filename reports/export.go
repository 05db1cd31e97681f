package reports

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

type ColumnKind string

const (
	ColumnRegular ColumnKind = "regular"
	ColumnDate    ColumnKind = "date"
)

// Column describes one export column. Format is an Excel number format and
// only applies to date columns. Zero Width keeps the default.
type Column struct {
	Header string
	Key    string
	Kind   ColumnKind
	Format string
	Width  float64
}

const exportSheet = "Hardware"

var AssetColumns = []Column{
	{Header: "Asset Tag", Key: "asset_tag", Kind: ColumnRegular, Width: 16},
	{Header: "Category", Key: "category", Kind: ColumnRegular, Width: 18},
	{Header: "Status", Key: "status", Kind: ColumnRegular, Width: 14},
	{Header: "Brand", Key: "brand", Kind: ColumnRegular, Width: 14},
	{Header: "Model", Key: "model", Kind: ColumnRegular, Width: 20},
	{Header: "Serial Number", Key: "serial_number", Kind: ColumnRegular, Width: 22},
	{Header: "Assignee", Key: "assignee", Kind: ColumnRegular, Width: 24},
	{Header: "Recovered From", Key: "recovered_from", Kind: ColumnRegular, Width: 24},
	{Header: "Purchase Date", Key: "purchase_date", Kind: ColumnDate, Format: "dd-mmm-yyyy", Width: 14},
	{Header: "Warranty Expiry", Key: "warranty_expiry", Kind: ColumnDate, Format: "dd-mmm-yyyy", Width: 16},
	{Header: "Assigned Date", Key: "assigned_date", Kind: ColumnDate, Format: "dd-mmm-yyyy", Width: 14},
	{Header: "Recovered Date", Key: "recovered_date", Kind: ColumnDate, Format: "dd-mmm-yyyy", Width: 15},
	{Header: "RGE", Key: "rge", Kind: ColumnRegular, Width: 8},
	{Header: "Remarks", Key: "remarks", Kind: ColumnRegular, Width: 40},
}

// WriteExport renders rows into an xlsx workbook at path using columns in order.
func WriteExport(path string, columns []Column, rows []AssetRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Vertical: "center"},
	})
	if err != nil {
		return err
	}

	dateStyles := map[string]int{}
	for i, col := range columns {
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(exportSheet, name+"1", col.Header); err != nil {
			return err
		}
		if col.Width > 0 {
			if err := f.SetColWidth(exportSheet, name, name, col.Width); err != nil {
				return err
			}
		}
		if col.Kind == ColumnDate && col.Format != "" {
			if _, ok := dateStyles[col.Format]; !ok {
				format := col.Format
				id, err := f.NewStyle(&excelize.Style{CustomNumFmt: &format})
				if err != nil {
					return err
				}
				dateStyles[col.Format] = id
			}
		}
	}
	if len(columns) > 0 {
		last, _ := excelize.ColumnNumberToName(len(columns))
		if err := f.SetCellStyle(exportSheet, "A1", last+"1", headerStyle); err != nil {
			return err
		}
	}

	for r, row := range rows {
		for c, col := range columns {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := setCell(f, cell, col, row.Value(col.Key), dateStyles); err != nil {
				return fmt.Errorf("row %d column %s: %w", r+1, col.Header, err)
			}
		}
	}

	if err := f.SetPanes(exportSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}
	return f.SaveAs(path)
}

func setCell(f *excelize.File, cell string, col Column, value any, dateStyles map[string]int) error {
	if col.Kind != ColumnDate {
		if value == nil {
			return nil
		}
		return f.SetCellValue(exportSheet, cell, value)
	}

	var d DateValue
	switch v := value.(type) {
	case DateValue:
		d = v
	case time.Time:
		d = DateValue{Time: v, Valid: !v.IsZero()}
	}
	if !d.Valid {
		return f.SetCellValue(exportSheet, cell, EmptyDate)
	}
	if err := f.SetCellValue(exportSheet, cell, d.Time); err != nil {
		return err
	}
	if id, ok := dateStyles[col.Format]; ok {
		return f.SetCellStyle(exportSheet, cell, cell, id)
	}
	return nil
}
