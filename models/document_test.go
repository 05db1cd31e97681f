package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestDocumentKeepsKeyOrder(t *testing.T) {
	raw := `{"id":7,"zeta":"z","alpha":{"b":1,"a":[1,"x",null]},"mid":true}`
	var d Document
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := strings.Join(d.Keys(), ","); got != "id,zeta,alpha,mid" {
		t.Fatalf("keys = %s", got)
	}
	out, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != raw {
		t.Fatalf("round trip:\n got %s\nwant %s", out, raw)
	}
	if d.ID() != "7" {
		t.Fatalf("ID = %q", d.ID())
	}
}

func TestDocumentRejectsNonObject(t *testing.T) {
	var d Document
	if err := json.Unmarshal([]byte(`[1,2]`), &d); err == nil {
		t.Fatalf("expected an error for an array")
	}
}

func TestDocumentSet(t *testing.T) {
	d := Document{{Key: "id", Value: "a"}, {Key: "name", Value: "x"}}
	d.Set("name", "y")
	d.Set("status", "In Use")
	if got := strings.Join(d.Keys(), ","); got != "id,name,status" {
		t.Fatalf("keys = %s", got)
	}
	if v, _ := d.Get("name"); v != "y" {
		t.Fatalf("name = %v", v)
	}
}

func TestCanonicalJSONIgnoresNumericCarrier(t *testing.T) {
	cases := [][2]any{
		{int64(12), json.Number("12")},
		{float64(2.5), json.Number("2.5")},
		{[]any{int64(1), "a"}, []any{json.Number("1"), "a"}},
	}
	for _, c := range cases {
		if CanonicalJSON(c[0]) != CanonicalJSON(c[1]) {
			t.Fatalf("%#v and %#v should compare equal", c[0], c[1])
		}
	}
	if CanonicalJSON("1") == CanonicalJSON(int64(1)) {
		t.Fatalf("string and number must differ")
	}
}

func TestNormalizeColumnValue(t *testing.T) {
	ts := time.Date(2024, 3, 1, 8, 30, 0, 0, time.FixedZone("UTC+8", 8*3600))
	if got := normalizeColumnValue("DATETIME", ts); got != "2024-03-01 00:30:00" {
		t.Fatalf("datetime = %v", got)
	}
	if got := normalizeColumnValue("BIGINT", []byte("42")); got != int64(42) {
		t.Fatalf("bigint = %#v", got)
	}
	if got := normalizeColumnValue("VARCHAR", []byte("Laptop")); got != "Laptop" {
		t.Fatalf("varchar = %#v", got)
	}
	got := normalizeColumnValue("JSON", []byte(`["a","b"]`))
	arr, ok := got.([]any)
	if !ok || len(arr) != 2 {
		t.Fatalf("json = %#v", got)
	}
	if normalizeColumnValue("TEXT", nil) != nil {
		t.Fatalf("nil must stay nil")
	}
}

func TestRowValues(t *testing.T) {
	d := Document{
		{Key: "id", Value: json.Number("3")},
		{Key: "tags", Value: []any{"a", "<b>"}},
		{Key: "name", Value: "Laptop"},
	}
	row, columns, err := rowValues(d)
	if err != nil {
		t.Fatalf("rowValues: %v", err)
	}
	if row["id"] != "3" {
		t.Fatalf("id = %#v", row["id"])
	}
	if row["tags"] != `["a","<b>"]` {
		t.Fatalf("tags = %#v", row["tags"])
	}
	if strings.Join(columns, ",") != "tags,name" {
		t.Fatalf("columns = %v", columns)
	}

	if _, _, err := rowValues(Document{{Key: "name", Value: "x"}}); err == nil {
		t.Fatalf("expected an error for a document without id")
	}
	if _, _, err := rowValues(Document{{Key: "id", Value: "1"}, {Key: "bad name", Value: 1}}); err == nil {
		t.Fatalf("expected an error for an unsafe column name")
	}
}
