package reports

import (
	"bytes"
	"html/template"
	"sort"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/assets_backend/models"
)

// NewAssetSampleSize is how many assets the summary lists when no prior
// roll-out exists to compare against.
const NewAssetSampleSize = 5

const uncategorized = "Uncategorized"

type CrossTab struct {
	Statuses     []string
	Rows         []CrossTabRow
	ColumnTotals []int
	GrandTotal   int
}

type CrossTabRow struct {
	Category string
	Counts   []int
	Total    int
}

// BuildCrossTab counts rows per category (rows) and status (columns), both
// sorted, with row, column and grand totals.
func BuildCrossTab(rows []AssetRow) CrossTab {
	statusSet := map[string]bool{}
	counts := map[string]map[string]int{}
	for _, r := range rows {
		category := strings.TrimSpace(r.Category)
		if category == "" {
			category = uncategorized
		}
		status := strings.TrimSpace(r.Status)
		if status == "" {
			status = "Unknown"
		}
		statusSet[status] = true
		if counts[category] == nil {
			counts[category] = map[string]int{}
		}
		counts[category][status]++
	}

	tab := CrossTab{}
	for s := range statusSet {
		tab.Statuses = append(tab.Statuses, s)
	}
	sort.Strings(tab.Statuses)
	categories := make([]string, 0, len(counts))
	for c := range counts {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	tab.ColumnTotals = make([]int, len(tab.Statuses))
	for _, c := range categories {
		row := CrossTabRow{Category: c, Counts: make([]int, len(tab.Statuses))}
		for i, s := range tab.Statuses {
			n := counts[c][s]
			row.Counts[i] = n
			row.Total += n
			tab.ColumnTotals[i] += n
		}
		tab.GrandTotal += row.Total
		tab.Rows = append(tab.Rows, row)
	}
	return tab
}

// SelectNewAssets returns the rows created after since, newest first. With no
// since it returns a sample of the most recently created rows and sampled=true.
func SelectNewAssets(rows []AssetRow, since *time.Time, sample int) (selected []AssetRow, sampled bool) {
	sorted := append([]AssetRow{}, rows...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt.After(sorted[j].CreatedAt) })
	if since == nil {
		if len(sorted) > sample {
			sorted = sorted[:sample]
		}
		return sorted, true
	}
	for _, r := range sorted {
		if r.CreatedAt.After(*since) {
			selected = append(selected, r)
		}
	}
	return selected, false
}

type Summary struct {
	Title       string
	GeneratedAt time.Time
	Frequency   models.Frequency
	CrossTab    CrossTab
	NewAssets   []AssetRow
	Since       *time.Time
	Sampled     bool
	Depleting   []models.AssetCounter
	Contact     string
}

var summaryTemplate = template.Must(template.New("summary").Funcs(template.FuncMap{
	"date": func(t time.Time) string { return t.Format("02 Jan 2006 15:04") },
}).Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; font-size: 13px;">
<h2>{{.Title}}</h2>
<p>{{.Frequency}} report generated {{date .GeneratedAt}}.</p>

<h3>Hardware by category and status</h3>
<table border="1" cellpadding="4" cellspacing="0" style="border-collapse: collapse;">
<tr><th>Category</th>{{range .CrossTab.Statuses}}<th>{{.}}</th>{{end}}<th>Total</th></tr>
{{range .CrossTab.Rows}}<tr><td>{{.Category}}</td>{{range .Counts}}<td align="right">{{.}}</td>{{end}}<td align="right"><b>{{.Total}}</b></td></tr>
{{end}}<tr><th>Total</th>{{range .CrossTab.ColumnTotals}}<th align="right">{{.}}</th>{{end}}<th align="right">{{.CrossTab.GrandTotal}}</th></tr>
</table>

{{if .Sampled}}<h3>Recently added assets</h3>{{else}}<h3>Assets added since {{date .Since}}</h3>{{end}}
{{if .NewAssets}}<table border="1" cellpadding="4" cellspacing="0" style="border-collapse: collapse;">
<tr><th>Asset Tag</th><th>Category</th><th>Brand</th><th>Model</th><th>Assignee</th><th>Purchase Date</th></tr>
{{range .NewAssets}}<tr><td>{{.AssetTag}}</td><td>{{.Category}}</td><td>{{.Brand}}</td><td>{{.Model}}</td><td>{{.Assignee}}</td><td>{{.PurchaseDate}}</td></tr>
{{end}}</table>{{else}}<p>No new assets.</p>{{end}}

{{if .Depleting}}<h3>Depleting asset tags</h3>
<table border="1" cellpadding="4" cellspacing="0" style="border-collapse: collapse;">
<tr><th>Category</th><th>Prefix</th><th>Used</th><th>Threshold</th></tr>
{{range .Depleting}}<tr><td>{{.Category}}</td><td>{{.Prefix}}</td><td align="right">{{.Count}}</td><td align="right">{{.Threshold}}</td></tr>
{{end}}</table>{{end}}

<p>The full hardware list and a backup archive are attached.{{if .Contact}} Questions: <a href="mailto:{{.Contact}}">{{.Contact}}</a>.{{end}}</p>
</body>
</html>
`))

func RenderSummary(s Summary) (string, error) {
	var buf bytes.Buffer
	if err := summaryTemplate.Execute(&buf, s); err != nil {
		return "", err
	}
	return buf.String(), nil
}
