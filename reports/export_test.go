package reports

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

func TestWriteExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assets.xlsx")
	rows := []AssetRow{
		{
			AssetTag:     "LT-0001",
			Category:     "Laptop",
			Assignee:     "Aung Aung",
			PurchaseDate: DateValue{Time: time.Date(2023, 4, 1, 0, 0, 0, 0, yangon), Valid: true},
			RGE:          "TRUE",
		},
	}
	if err := WriteExport(path, AssetColumns, rows); err != nil {
		t.Fatalf("WriteExport: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()

	got, err := f.GetRows(exportSheet)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rows = %d", len(got))
	}
	for i, col := range AssetColumns {
		if got[0][i] != col.Header {
			t.Fatalf("header %d = %q, want %q", i, got[0][i], col.Header)
		}
	}
	if got[1][0] != "LT-0001" || got[1][6] != "Aung Aung" || got[1][12] != "TRUE" {
		t.Fatalf("data row = %v", got[1])
	}
	if got[1][9] != EmptyDate {
		t.Fatalf("missing date cell = %q", got[1][9])
	}
	if got[1][8] == "" || got[1][8] == EmptyDate {
		t.Fatalf("purchase date not written: %q", got[1][8])
	}
	style, err := f.GetCellStyle(exportSheet, "I2")
	if err != nil || style == 0 {
		t.Fatalf("date cell has no number format style (style=%d err=%v)", style, err)
	}
}
