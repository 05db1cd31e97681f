package backup

import (
	"context"
	"reflect"
	"testing"

	"bitbucket.org/mmdatafocus/assets_backend/models"
)

func archiveOf(name string, docs ...models.Document) *Archive {
	return &Archive{Collections: []CollectionSnapshot{{Name: name, Documents: docs}}}
}

func TestClassifyKinds(t *testing.T) {
	current := map[string][]models.Document{
		"assets": {
			doc("id", int64(1), "status", "In Use", "updated_at", "2024-03-01 10:00:00"),
			doc("id", int64(2), "status", "Spare"),
			doc("id", int64(4), "status", "Disposed"),
		},
	}
	archive := archiveOf("assets",
		doc("id", "1", "status", "In Use", "updated_at", "2023-12-01 10:00:00"),
		doc("id", "2", "status", "In Use"),
		doc("id", "3", "status", "Spare"),
	)

	report := Classify(context.Background(), current, archive)
	diff, ok := report.Collection("assets")
	if !ok {
		t.Fatalf("assets missing from report")
	}
	kinds := map[string]EntryKind{}
	for _, e := range diff.Entries {
		kinds[e.ID] = e.Kind
	}
	want := map[string]EntryKind{"1": EntryUnchanged, "2": EntryChanged, "3": EntryNew, "4": EntryNoBackup}
	if !reflect.DeepEqual(kinds, want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
	for _, e := range diff.Entries {
		if e.ID == "2" && !reflect.DeepEqual(e.DiffFields, []string{"status"}) {
			t.Fatalf("diff fields = %v", e.DiffFields)
		}
	}
	if !report.HasConflicts() {
		t.Fatalf("expected conflicts")
	}
}

func TestClassifyIdenticalHasNoConflicts(t *testing.T) {
	docs := []models.Document{
		doc("id", int64(1), "tags", []any{"a"}, "rge", true),
		doc("id", int64(2), "tags", []any{}, "rge", false),
	}
	report := Classify(context.Background(), map[string][]models.Document{"assets": docs}, archiveOf("assets", docs...))
	if report.HasConflicts() {
		t.Fatalf("identical data reported conflicts: %+v", report)
	}
}

// Array fields compare by containment of the backup in the current value, so
// an element added since the backup is not a difference but a removed one is.
// This asymmetry is carried over deliberately; confirm with the owners of the
// restore workflow before changing it.
func TestArrayContainmentIsAsymmetric(t *testing.T) {
	t.Run("current superset is unchanged", func(t *testing.T) {
		current := doc("id", "9", "tags", []any{"a", "b", "c"})
		backup := doc("id", "9", "tags", []any{"a", "b"})
		if fields := DiffFields(current, backup); len(fields) != 0 {
			t.Fatalf("fields = %v", fields)
		}
	})
	t.Run("backup element missing is changed", func(t *testing.T) {
		current := doc("id", "9", "tags", []any{"a"})
		backup := doc("id", "9", "tags", []any{"a", "b"})
		if fields := DiffFields(current, backup); !reflect.DeepEqual(fields, []string{"tags"}) {
			t.Fatalf("fields = %v", fields)
		}
	})
}

func TestDiffFieldsIgnoresAuditAndBackupOnlyOrder(t *testing.T) {
	current := doc("id", int64(5), "brand", "HP", "version", int64(9), "created_by", "admin", "extra", "live only")
	backup := doc("id", "5", "version", "1", "brand", "HP", "created_by", "someone")
	if fields := DiffFields(current, backup); len(fields) != 0 {
		t.Fatalf("fields = %v", fields)
	}
}

func TestDiffFieldsMissingField(t *testing.T) {
	current := doc("id", int64(5), "brand", "HP")
	backup := doc("id", "5", "brand", "HP", "remarks", "spare charger")
	if fields := DiffFields(current, backup); !reflect.DeepEqual(fields, []string{"remarks"}) {
		t.Fatalf("fields = %v", fields)
	}
}

func TestClassifyNoBackupForEmptyArchiveCollection(t *testing.T) {
	current := map[string][]models.Document{"employees": {doc("id", int64(1), "code", "E001")}}
	report := Classify(context.Background(), current, archiveOf("employees"))
	diff, _ := report.Collection("employees")
	if len(diff.Entries) != 1 || diff.Entries[0].Kind != EntryNoBackup {
		t.Fatalf("entries = %+v", diff.Entries)
	}
	if diff.Count(EntryNoBackup) != 1 {
		t.Fatalf("count = %d", diff.Count(EntryNoBackup))
	}
}
