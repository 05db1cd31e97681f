package reports

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/assets_backend/models"
)

func TestBuildCrossTabTotals(t *testing.T) {
	rows := []AssetRow{
		{Category: "Laptop", Status: "In Use"},
		{Category: "Laptop", Status: "In Use"},
		{Category: "Laptop", Status: "Spare"},
		{Category: "Monitor", Status: "Spare"},
		{Category: "", Status: "Repair"},
	}
	tab := BuildCrossTab(rows)

	if !reflect.DeepEqual(tab.Statuses, []string{"In Use", "Repair", "Spare"}) {
		t.Fatalf("statuses = %v", tab.Statuses)
	}
	want := []CrossTabRow{
		{Category: "Laptop", Counts: []int{2, 0, 1}, Total: 3},
		{Category: "Monitor", Counts: []int{0, 0, 1}, Total: 1},
		{Category: "Uncategorized", Counts: []int{0, 1, 0}, Total: 1},
	}
	if !reflect.DeepEqual(tab.Rows, want) {
		t.Fatalf("rows = %+v", tab.Rows)
	}
	if !reflect.DeepEqual(tab.ColumnTotals, []int{2, 1, 2}) || tab.GrandTotal != 5 {
		t.Fatalf("totals = %v grand %d", tab.ColumnTotals, tab.GrandTotal)
	}
}

func TestSelectNewAssets(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	var rows []AssetRow
	for i := 0; i < 8; i++ {
		rows = append(rows, AssetRow{AssetTag: string(rune('A' + i)), CreatedAt: base.AddDate(0, 0, i)})
	}

	since := base.AddDate(0, 0, 5)
	selected, sampled := SelectNewAssets(rows, &since, NewAssetSampleSize)
	if sampled || len(selected) != 2 || selected[0].AssetTag != "H" || selected[1].AssetTag != "G" {
		t.Fatalf("selected = %+v sampled = %v", selected, sampled)
	}

	selected, sampled = SelectNewAssets(rows, nil, NewAssetSampleSize)
	if !sampled || len(selected) != NewAssetSampleSize || selected[0].AssetTag != "H" {
		t.Fatalf("sample = %+v", selected)
	}
}

func TestRenderSummary(t *testing.T) {
	since := time.Date(2024, 3, 1, 9, 0, 0, 0, yangon)
	html, err := RenderSummary(Summary{
		Title:       "IT Asset Report",
		GeneratedAt: time.Date(2024, 3, 8, 9, 0, 0, 0, yangon),
		Frequency:   models.FrequencyWeekly,
		CrossTab:    BuildCrossTab([]AssetRow{{Category: "Laptop", Status: "Spare"}}),
		NewAssets:   []AssetRow{{AssetTag: "LT-<9>", Category: "Laptop"}},
		Since:       &since,
		Depleting:   []models.AssetCounter{{Category: "Laptop", Prefix: "LT", Count: 98, Threshold: 100}},
		Contact:     "it@example.com",
	})
	if err != nil {
		t.Fatalf("RenderSummary: %v", err)
	}
	for _, want := range []string{"Assets added since 01 Mar 2024 09:00", "LT-&lt;9&gt;", "Depleting asset tags", "mailto:it@example.com", "<th align=\"right\">1</th>"} {
		if !strings.Contains(html, want) {
			t.Errorf("summary missing %q", want)
		}
	}
}
