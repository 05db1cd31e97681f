package backup

import (
	"context"

	"bitbucket.org/mmdatafocus/assets_backend/models"
	"go.opentelemetry.io/otel/attribute"
)

type EntryKind string

const (
	EntryNew       EntryKind = "new"
	EntryChanged   EntryKind = "changed"
	EntryUnchanged EntryKind = "unchanged"
	EntryNoBackup  EntryKind = "no_backup"
)

// DiffEntry classifies one document id of one collection.
type DiffEntry struct {
	ID         string          `json:"id"`
	Kind       EntryKind       `json:"kind"`
	DiffFields []string        `json:"diff_fields,omitempty"`
	Current    models.Document `json:"current,omitempty"`
	Backup     models.Document `json:"backup,omitempty"`
}

// NeedsResolution reports whether a human has to pick a side for the entry.
func (e DiffEntry) NeedsResolution() bool {
	return e.Kind == EntryChanged || e.Kind == EntryNoBackup
}

type CollectionDiff struct {
	Name    string      `json:"name"`
	Entries []DiffEntry `json:"entries"`
}

func (c CollectionDiff) Count(kind EntryKind) int {
	n := 0
	for _, e := range c.Entries {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (c CollectionDiff) HasConflicts() bool {
	for _, e := range c.Entries {
		if e.Kind != EntryUnchanged {
			return true
		}
	}
	return false
}

type DiffReport struct {
	Collections []CollectionDiff `json:"collections"`
}

// HasConflicts is false when restoring the archive would change nothing.
func (r *DiffReport) HasConflicts() bool {
	for _, c := range r.Collections {
		if c.HasConflicts() {
			return true
		}
	}
	return false
}

func (r *DiffReport) Collection(name string) (*CollectionDiff, bool) {
	for i := range r.Collections {
		if r.Collections[i].Name == name {
			return &r.Collections[i], true
		}
	}
	return nil, false
}

// Classify compares every archived collection with the current documents of
// the same name. Collections present only in current are not reported.
func Classify(ctx context.Context, current map[string][]models.Document, archive *Archive) *DiffReport {
	_, span := tracer.Start(ctx, "backup.Classify")
	defer span.End()

	report := &DiffReport{Collections: make([]CollectionDiff, 0, len(archive.Collections))}
	conflicts := 0
	for _, snapshot := range archive.Collections {
		diff := classifyCollection(snapshot.Name, current[snapshot.Name], snapshot.Documents)
		for _, e := range diff.Entries {
			if e.Kind != EntryUnchanged {
				conflicts++
			}
		}
		report.Collections = append(report.Collections, diff)
	}
	span.SetAttributes(
		attribute.Int("backup.collections", len(report.Collections)),
		attribute.Int("backup.conflicts", conflicts),
	)
	return report
}

func classifyCollection(name string, current []models.Document, backup []models.Document) CollectionDiff {
	byID := make(map[string]models.Document, len(current))
	for _, doc := range current {
		byID[doc.ID()] = doc
	}

	diff := CollectionDiff{Name: name, Entries: []DiffEntry{}}
	inBackup := make(map[string]bool, len(backup))
	for _, b := range backup {
		id := b.ID()
		inBackup[id] = true
		cur, ok := byID[id]
		if !ok {
			diff.Entries = append(diff.Entries, DiffEntry{ID: id, Kind: EntryNew, Backup: b})
			continue
		}
		fields := DiffFields(cur, b)
		if len(fields) == 0 {
			diff.Entries = append(diff.Entries, DiffEntry{ID: id, Kind: EntryUnchanged})
			continue
		}
		diff.Entries = append(diff.Entries, DiffEntry{ID: id, Kind: EntryChanged, DiffFields: fields, Current: cur, Backup: b})
	}

	for _, cur := range current {
		if id := cur.ID(); !inBackup[id] {
			diff.Entries = append(diff.Entries, DiffEntry{ID: id, Kind: EntryNoBackup, Current: cur})
		}
	}
	return diff
}

// DiffFields lists, in backup field order, the content fields where backup
// differs from current. Identifier and audit fields are ignored, as are
// fields the backup does not carry.
//
// Arrays use containment: they differ only when backup holds an element that
// current lacks. Elements current has beyond the backup never count.
func DiffFields(current models.Document, backup models.Document) []string {
	var fields []string
	for _, f := range backup {
		if f.Key == models.IdentifierField || models.AuditFields[f.Key] {
			continue
		}
		cv, _ := current.Get(f.Key)
		if !valuesMatch(cv, f.Value) {
			fields = append(fields, f.Key)
		}
	}
	return fields
}

func valuesMatch(current any, backup any) bool {
	if backupArr, ok := backup.([]any); ok {
		currentArr, ok := current.([]any)
		if !ok {
			return models.CanonicalJSON(current) == models.CanonicalJSON(backup)
		}
		have := make(map[string]bool, len(currentArr))
		for _, v := range currentArr {
			have[models.CanonicalJSON(v)] = true
		}
		for _, v := range backupArr {
			if !have[models.CanonicalJSON(v)] {
				return false
			}
		}
		return true
	}
	return models.CanonicalJSON(current) == models.CanonicalJSON(backup)
}
