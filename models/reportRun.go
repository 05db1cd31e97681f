package models

import (
	"context"
	"time"
)

// ReportRun is one execution of the report pipeline, scheduled or manual.
type ReportRun struct {
	ID          string          `gorm:"primary_key;size:36" json:"id"`
	Trigger     ReportTrigger   `gorm:"size:20;not null" json:"trigger"`
	Status      ReportRunStatus `gorm:"size:20;not null;index" json:"status"`
	StartedAt   time.Time       `gorm:"not null;index" json:"started_at"`
	FinishedAt  *time.Time      `json:"finished_at"`
	Error       string          `gorm:"type:text" json:"error,omitempty"`
	ArchivePath string          `gorm:"size:512" json:"archive_path,omitempty"`
	ExportPath  string          `gorm:"size:512" json:"export_path,omitempty"`
}

func (s *ScheduleStore) CreateReportRun(ctx context.Context, run *ReportRun) error {
	return s.db.WithContext(ctx).Create(run).Error
}

func (s *ScheduleStore) FinishReportRun(ctx context.Context, run *ReportRun) error {
	return s.db.WithContext(ctx).Model(&ReportRun{}).
		Where("id = ?", run.ID).
		Updates(map[string]interface{}{
			"status":       run.Status,
			"finished_at":  run.FinishedAt,
			"error":        run.Error,
			"archive_path": run.ArchivePath,
			"export_path":  run.ExportPath,
		}).Error
}

func (s *ScheduleStore) ListReportRuns(ctx context.Context, limit int) ([]ReportRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var runs []ReportRun
	if err := s.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
