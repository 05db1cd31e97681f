package backup

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/assets_backend/models"
	"bitbucket.org/mmdatafocus/assets_backend/utils"
)

// memoryWriter is a collection store keyed by id, in insertion order.
type memoryWriter struct {
	data   map[string][]models.Document
	failOn string
	calls  []string
}

func (w *memoryWriter) ApplyCollection(ctx context.Context, collection string, upserts []models.Document, deletes []string) error {
	w.calls = append(w.calls, collection)
	if collection == w.failOn {
		return errors.New("deadlock found when trying to get lock")
	}
	docs := w.data[collection]
	for _, u := range upserts {
		replaced := false
		for i := range docs {
			if docs[i].ID() == u.ID() {
				docs[i] = u
				replaced = true
			}
		}
		if !replaced {
			docs = append(docs, u)
		}
	}
	drop := map[string]bool{}
	for _, id := range deletes {
		drop[id] = true
	}
	kept := docs[:0]
	for _, d := range docs {
		if !drop[d.ID()] {
			kept = append(kept, d)
		}
	}
	w.data[collection] = kept
	return nil
}

func reconcileFixture() (map[string][]models.Document, *Archive) {
	current := map[string][]models.Document{
		"assets": {
			doc("id", "1", "status", "In Use"),
			doc("id", "2", "status", "Spare"),
			doc("id", "4", "status", "Disposed"),
		},
		"employees": {
			doc("id", "7", "name", "Aung Aung"),
		},
	}
	archive := &Archive{Collections: []CollectionSnapshot{
		{Name: "assets", Documents: []models.Document{
			doc("id", "1", "status", "Repair"),
			doc("id", "2", "status", "Spare"),
			doc("id", "3", "status", "Spare"),
		}},
		{Name: "employees", Documents: []models.Document{
			doc("id", "7", "name", "Aung Aung"),
			doc("id", "8", "name", "Su Su"),
		}},
	}}
	return current, archive
}

func copyData(in map[string][]models.Document) map[string][]models.Document {
	out := make(map[string][]models.Document, len(in))
	for k, v := range in {
		out[k] = append([]models.Document{}, v...)
	}
	return out
}

func TestNewSessionSeedsUnsetSelections(t *testing.T) {
	current, archive := reconcileFixture()
	s := NewSession("s1", "upload.zip", Classify(context.Background(), current, archive), time.Now())

	if got := s.Unresolved(); got != 2 {
		t.Fatalf("unresolved = %d, want 2 (one changed, one no_backup)", got)
	}
	if s.IsReady() {
		t.Fatalf("session ready before any selection")
	}
	if _, ok := s.Selections["employees"]; ok {
		t.Fatalf("employees has no conflicts but got selections")
	}
}

func TestSelectRejectsUnknownIDs(t *testing.T) {
	current, archive := reconcileFixture()
	s := NewSession("s1", "upload.zip", Classify(context.Background(), current, archive), time.Now())

	if err := s.Select("assets", "3", ResolutionAdoptBackup); err == nil {
		t.Fatalf("new entries need no selection; expected error")
	}
	if err := s.Select("employees", "7", ResolutionKeepCurrent); err == nil {
		t.Fatalf("expected error for collection without conflicts")
	}
	if err := s.Select("assets", "1", Resolution("merge")); err == nil {
		t.Fatalf("expected error for invalid resolution")
	}
}

func TestApplyGate(t *testing.T) {
	current, archive := reconcileFixture()
	s := NewSession("s1", "upload.zip", Classify(context.Background(), current, archive), time.Now())
	w := &memoryWriter{data: copyData(current)}

	if err := s.Select("assets", "1", ResolutionAdoptBackup); err != nil {
		t.Fatalf("Select: %v", err)
	}
	_, err := s.Apply(context.Background(), w)
	var gate *utils.ReconciliationGateError
	if !errors.As(err, &gate) || gate.Unresolved != 1 {
		t.Fatalf("expected gate error with 1 unresolved, got %v", err)
	}
	if len(w.calls) != 0 {
		t.Fatalf("writer called before the gate opened: %v", w.calls)
	}

	if err := s.Select("assets", "4", ResolutionKeepCurrent); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if !s.IsReady() {
		t.Fatalf("expected ready")
	}
	results, err := s.Apply(context.Background(), w)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	for _, r := range results {
		if !r.Success {
			t.Fatalf("result = %+v", r)
		}
	}
	status, _ := findDoc(w.data["assets"], "1").Get("status")
	if status != "Repair" {
		t.Fatalf("adopt-backup not applied, status = %v", status)
	}
	if findDoc(w.data["assets"], "4") == nil {
		t.Fatalf("keep-current dropped the live row")
	}
	if findDoc(w.data["assets"], "3") == nil || findDoc(w.data["employees"], "8") == nil {
		t.Fatalf("new backup documents not inserted")
	}
}

// Rows edited or deleted between validate and import keep their live state
// when the administrator chose keep-current.
func TestKeepCurrentLeavesLiveRowsAlone(t *testing.T) {
	current, archive := reconcileFixture()
	s := NewSession("s1", "upload.zip", Classify(context.Background(), current, archive), time.Now())
	w := &memoryWriter{data: copyData(current)}

	assets := w.data["assets"]
	w.data["assets"] = []models.Document{assets[1], doc("id", "4", "status", "Sold")}

	if err := s.SelectAll(map[string]map[string]Resolution{
		"assets": {"1": ResolutionKeepCurrent, "4": ResolutionKeepCurrent},
	}); err != nil {
		t.Fatalf("SelectAll: %v", err)
	}
	if _, err := s.Apply(context.Background(), w); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if findDoc(w.data["assets"], "1") != nil {
		t.Fatalf("row deleted after validate was brought back")
	}
	status, _ := findDoc(w.data["assets"], "4").Get("status")
	if status != "Sold" {
		t.Fatalf("edit made after validate was reverted, status = %v", status)
	}
	for _, plan := range s.Plan() {
		for _, u := range plan.Upserts {
			if u.ID() == "1" || u.ID() == "4" {
				t.Fatalf("keep-current produced a write for %s", u.ID())
			}
		}
	}
}

func TestAdoptAllIsIdempotent(t *testing.T) {
	current, archive := reconcileFixture()
	w := &memoryWriter{data: copyData(current)}

	s := NewSession("s1", "upload.zip", Classify(context.Background(), current, archive), time.Now())
	for collection, ids := range s.Selections {
		for id := range ids {
			if err := s.Select(collection, id, ResolutionAdoptBackup); err != nil {
				t.Fatalf("Select: %v", err)
			}
		}
	}
	if _, err := s.Apply(context.Background(), w); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if findDoc(w.data["assets"], "4") != nil {
		t.Fatalf("no_backup row survived adopt-backup")
	}

	replay := Classify(context.Background(), copyData(w.data), archive)
	if replay.HasConflicts() {
		t.Fatalf("second validate after adopt-all still has conflicts: %+v", replay)
	}
	if NewSession("s2", "upload.zip", replay, time.Now()).Unresolved() != 0 {
		t.Fatalf("replay session has unresolved entries")
	}
}

func TestApplyPartialCommit(t *testing.T) {
	current, archive := reconcileFixture()
	w := &memoryWriter{data: copyData(current), failOn: "assets"}
	s := NewSession("s1", "upload.zip", Classify(context.Background(), current, archive), time.Now())
	if err := s.SelectAll(map[string]map[string]Resolution{
		"assets": {"1": ResolutionKeepCurrent, "4": ResolutionKeepCurrent},
	}); err != nil {
		t.Fatalf("SelectAll: %v", err)
	}

	results, err := s.Apply(context.Background(), w)
	var partial *utils.PartialCommitError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialCommitError, got %v", err)
	}
	if _, ok := partial.Failed["assets"]; !ok || len(partial.Committed) != 1 || partial.Committed[0] != "employees" {
		t.Fatalf("partial = %+v", partial)
	}
	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.Collection)
	}
	sort.Strings(names)
	if len(names) != 2 || names[0] != "assets" || names[1] != "employees" {
		t.Fatalf("results = %+v", results)
	}
	if findDoc(w.data["employees"], "8") == nil {
		t.Fatalf("later collection not committed after an earlier failure")
	}
}

func findDoc(docs []models.Document, id string) models.Document {
	for _, d := range docs {
		if d.ID() == id {
			return d
		}
	}
	return nil
}
