package backup

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/assets_backend/models"
	"bitbucket.org/mmdatafocus/assets_backend/utils"
	"go.opentelemetry.io/otel/attribute"
)

type Resolution string

const (
	ResolutionUnset       Resolution = ""
	ResolutionKeepCurrent Resolution = "keep-current"
	ResolutionAdoptBackup Resolution = "adopt-backup"
)

func (r Resolution) IsValid() bool {
	switch r {
	case ResolutionUnset, ResolutionKeepCurrent, ResolutionAdoptBackup:
		return true
	}
	return false
}

// Writer persists one collection's upserts and deletes atomically.
type Writer interface {
	ApplyCollection(ctx context.Context, collection string, upserts []models.Document, deletes []string) error
}

// Session holds one uploaded archive's diff and the choices made against it.
type Session struct {
	ID          string                           `json:"id"`
	ArchiveName string                           `json:"archive_name"`
	CreatedAt   time.Time                        `json:"created_at"`
	Report      *DiffReport                      `json:"report"`
	Selections  map[string]map[string]Resolution `json:"selections"`
}

// NewSession seeds an unset selection for every entry needing resolution.
func NewSession(id string, archiveName string, report *DiffReport, now time.Time) *Session {
	s := &Session{
		ID:          id,
		ArchiveName: archiveName,
		CreatedAt:   now.UTC(),
		Report:      report,
		Selections:  map[string]map[string]Resolution{},
	}
	for _, c := range report.Collections {
		for _, e := range c.Entries {
			if !e.NeedsResolution() {
				continue
			}
			if s.Selections[c.Name] == nil {
				s.Selections[c.Name] = map[string]Resolution{}
			}
			s.Selections[c.Name][e.ID] = ResolutionUnset
		}
	}
	return s
}

func (s *Session) Select(collection string, id string, resolution Resolution) error {
	if !resolution.IsValid() {
		return fmt.Errorf("invalid resolution %q", resolution)
	}
	ids, ok := s.Selections[collection]
	if !ok {
		return fmt.Errorf("collection %q has no entries to resolve", collection)
	}
	if _, ok := ids[id]; !ok {
		return fmt.Errorf("collection %q has no conflicting id %q", collection, id)
	}
	ids[id] = resolution
	return nil
}

// SelectAll applies a batch of choices, stopping at the first invalid one.
func (s *Session) SelectAll(selections map[string]map[string]Resolution) error {
	for collection, ids := range selections {
		for id, r := range ids {
			if err := s.Select(collection, id, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Session) Unresolved() int {
	n := 0
	for _, ids := range s.Selections {
		for _, r := range ids {
			if r == ResolutionUnset {
				n++
			}
		}
	}
	return n
}

func (s *Session) IsReady() bool {
	return s.Unresolved() == 0
}

type CollectionPlan struct {
	Collection string
	Upserts    []models.Document
	Deletes    []string
}

// Plan turns the selections into per-collection writes, in report order.
// keep-current writes nothing, so the live row is left as it is at import time.
func (s *Session) Plan() []CollectionPlan {
	plans := make([]CollectionPlan, 0, len(s.Report.Collections))
	for _, c := range s.Report.Collections {
		plan := CollectionPlan{Collection: c.Name}
		choices := s.Selections[c.Name]
		for _, e := range c.Entries {
			switch e.Kind {
			case EntryNew:
				plan.Upserts = append(plan.Upserts, e.Backup)
			case EntryChanged:
				if choices[e.ID] == ResolutionAdoptBackup {
					plan.Upserts = append(plan.Upserts, e.Backup)
				}
			case EntryNoBackup:
				if choices[e.ID] == ResolutionAdoptBackup {
					plan.Deletes = append(plan.Deletes, e.ID)
				}
			}
		}
		if len(plan.Upserts) > 0 || len(plan.Deletes) > 0 {
			plans = append(plans, plan)
		}
	}
	return plans
}

type CollectionResult struct {
	Collection string `json:"collection"`
	Success    bool   `json:"success"`
	Upserted   int    `json:"upserted"`
	Deleted    int    `json:"deleted"`
	Error      string `json:"error,omitempty"`
}

// Apply writes the plan one collection per transaction. A failed collection
// does not roll back the ones already committed; all failures come back in a
// PartialCommitError next to the per-collection results.
func (s *Session) Apply(ctx context.Context, w Writer) ([]CollectionResult, error) {
	if n := s.Unresolved(); n > 0 {
		return nil, &utils.ReconciliationGateError{Unresolved: n}
	}
	ctx, span := tracer.Start(ctx, "backup.Apply")
	defer span.End()

	plans := s.Plan()
	results := make([]CollectionResult, 0, len(plans))
	var failed map[string]error
	var committed []string
	for _, plan := range plans {
		result := CollectionResult{Collection: plan.Collection}
		if err := w.ApplyCollection(ctx, plan.Collection, plan.Upserts, plan.Deletes); err != nil {
			if failed == nil {
				failed = map[string]error{}
			}
			failed[plan.Collection] = err
			result.Error = err.Error()
			span.RecordError(err)
		} else {
			result.Success = true
			result.Upserted = len(plan.Upserts)
			result.Deleted = len(plan.Deletes)
			committed = append(committed, plan.Collection)
		}
		results = append(results, result)
	}
	span.SetAttributes(
		attribute.Int("backup.committed", len(committed)),
		attribute.Int("backup.failed", len(failed)),
	)
	if len(failed) > 0 {
		return results, &utils.PartialCommitError{Failed: failed, Committed: committed}
	}
	return results, nil
}
