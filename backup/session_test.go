package backup

import (
	"context"
	"errors"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/assets_backend/utils"
)

func TestMemorySessionStoreRoundTrip(t *testing.T) {
	current, archive := reconcileFixture()
	store := NewMemorySessionStore()
	s := NewSession("abc", "upload.zip", Classify(context.Background(), current, archive), time.Now())
	if err := s.Select("assets", "1", ResolutionAdoptBackup); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if err := store.Save(context.Background(), s, time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Selections["assets"]["1"] != ResolutionAdoptBackup || loaded.Unresolved() != 1 {
		t.Fatalf("selections = %+v", loaded.Selections)
	}
	diff, ok := loaded.Report.Collection("assets")
	if !ok || diff.Count(EntryChanged) != 1 {
		t.Fatalf("report not restored: %+v", loaded.Report)
	}
	for _, e := range diff.Entries {
		if e.ID == "1" {
			if v, _ := e.Backup.Get("status"); v != "Repair" {
				t.Fatalf("backup document not restored: %v", e.Backup)
			}
		}
	}

	if err := store.Delete(context.Background(), "abc"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Load(context.Background(), "abc"); !errors.Is(err, utils.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestMemorySessionStoreExpires(t *testing.T) {
	now := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	store := NewMemorySessionStore()
	store.now = func() time.Time { return now }

	s := NewSession("old", "upload.zip", &DiffReport{}, now)
	if err := store.Save(context.Background(), s, 30*time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}
	now = now.Add(31 * time.Minute)
	if _, err := store.Load(context.Background(), "old"); !errors.Is(err, utils.ErrSessionNotFound) {
		t.Fatalf("expected expired session, got %v", err)
	}
}
