package reports

import (
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/assets_backend/models"
)

// EmptyDate is shown for a date that is missing or could not be parsed.
const EmptyDate = "-"

// No all-numeric day/month layouts: 03/04/2024 is ambiguous and renders as EmptyDate.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"02-Jan-2006",
	"02 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

type DateValue struct {
	Time  time.Time
	Valid bool
}

func (d DateValue) String() string {
	if !d.Valid {
		return EmptyDate
	}
	return d.Time.Format("2006-01-02")
}

// NormalizeDate parses s with the accepted layouts. Values without an offset
// are read in loc. Anything unparsable yields an invalid DateValue.
func NormalizeDate(s string, loc *time.Location) DateValue {
	s = strings.TrimSpace(s)
	if s == "" {
		return DateValue{}
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return DateValue{Time: t.In(loc), Valid: true}
		}
	}
	return DateValue{}
}

// AssetRow is one hardware asset prepared for the export and summary.
type AssetRow struct {
	AssetTag       string
	Category       string
	Status         string
	Brand          string
	Model          string
	SerialNumber   string
	Assignee       string
	RecoveredFrom  string
	PurchaseDate   DateValue
	WarrantyExpiry DateValue
	AssignedDate   DateValue
	RecoveredDate  DateValue
	RGE            string
	Remarks        string
	CreatedAt      time.Time
}

// Value returns the field a column key refers to, or nil for unknown keys.
func (r AssetRow) Value(key string) any {
	switch key {
	case "asset_tag":
		return r.AssetTag
	case "category":
		return r.Category
	case "status":
		return r.Status
	case "brand":
		return r.Brand
	case "model":
		return r.Model
	case "serial_number":
		return r.SerialNumber
	case "assignee":
		return r.Assignee
	case "recovered_from":
		return r.RecoveredFrom
	case "purchase_date":
		return r.PurchaseDate
	case "warranty_expiry":
		return r.WarrantyExpiry
	case "assigned_date":
		return r.AssignedDate
	case "recovered_date":
		return r.RecoveredDate
	case "rge":
		return r.RGE
	case "remarks":
		return r.Remarks
	case "created_at":
		return r.CreatedAt
	}
	return nil
}

// Decorate swaps employee codes for names, normalizes dates and renders the
// RGE flag. A code with no matching employee is kept as is.
func Decorate(assets []models.Asset, employees []models.Employee, loc *time.Location) []AssetRow {
	names := make(map[string]string, len(employees))
	for _, e := range employees {
		if code := strings.TrimSpace(e.Code); code != "" {
			names[code] = e.Name
		}
	}
	employeeName := func(code string) string {
		if name, ok := names[strings.TrimSpace(code)]; ok {
			return name
		}
		return code
	}

	rows := make([]AssetRow, 0, len(assets))
	for _, a := range assets {
		rows = append(rows, AssetRow{
			AssetTag:       a.AssetTag,
			Category:       a.Category,
			Status:         a.Status,
			Brand:          a.Brand,
			Model:          a.ModelName,
			SerialNumber:   a.SerialNumber,
			Assignee:       employeeName(a.Assignee),
			RecoveredFrom:  employeeName(a.RecoveredFrom),
			PurchaseDate:   NormalizeDate(a.PurchaseDate, loc),
			WarrantyExpiry: NormalizeDate(a.WarrantyExpiry, loc),
			AssignedDate:   NormalizeDate(a.AssignedDate, loc),
			RecoveredDate:  NormalizeDate(a.RecoveredDate, loc),
			RGE:            rgeLabel(a.RGE),
			Remarks:        a.Remarks,
			CreatedAt:      a.CreatedAt,
		})
	}
	return rows
}

func rgeLabel(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}
