package reports

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"bitbucket.org/mmdatafocus/assets_backend/config"
	"bitbucket.org/mmdatafocus/assets_backend/mailer"
	"bitbucket.org/mmdatafocus/assets_backend/models"
	"bitbucket.org/mmdatafocus/assets_backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("assets_backend/reports")

type Inventory interface {
	ListEmployees(ctx context.Context) ([]models.Employee, error)
	ListHardwareAssets(ctx context.Context) ([]models.Asset, error)
	ListDepletingCounters(ctx context.Context) ([]models.AssetCounter, error)
}

type Snapshotter interface {
	Snapshot(ctx context.Context) (string, error)
}

// RunRecorder keeps the report_runs history.
type RunRecorder interface {
	CreateReportRun(ctx context.Context, run *models.ReportRun) error
	FinishReportRun(ctx context.Context, run *models.ReportRun) error
}

// ArtifactSet is what one run produced and handed to the mailer.
type ArtifactSet struct {
	TabularExportPath string `json:"tabular_export_path"`
	ArchivePath       string `json:"archive_path"`
	RenderedSummary   string `json:"-"`
}

type Options struct {
	ExportDir       string
	Location        *time.Location
	DispatchTimeout time.Duration
	Runs            RunRecorder
	Logger          *logrus.Logger
}

type Pipeline struct {
	inventory Inventory
	archiver  Snapshotter
	sender    mailer.Sender
	runs      RunRecorder

	exportDir       string
	loc             *time.Location
	dispatchTimeout time.Duration
	columns         []Column
	now             func() time.Time
	logger          *logrus.Logger
}

func NewPipeline(inventory Inventory, archiver Snapshotter, sender mailer.Sender, opts Options) *Pipeline {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = time.Minute
	}
	if opts.ExportDir == "" {
		opts.ExportDir = os.TempDir()
	}
	if opts.Logger == nil {
		opts.Logger = config.GetLogger()
	}
	return &Pipeline{
		inventory:       inventory,
		archiver:        archiver,
		sender:          sender,
		runs:            opts.Runs,
		exportDir:       opts.ExportDir,
		loc:             opts.Location,
		dispatchTimeout: opts.DispatchTimeout,
		columns:         AssetColumns,
		now:             time.Now,
		logger:          opts.Logger,
	}
}

// Run builds the export, the archive and the summary for cfg and mails them.
// A delivery failure comes back as *utils.DeliveryError together with the
// artifacts that were produced.
func (p *Pipeline) Run(ctx context.Context, cfg models.ScheduleConfig, trigger models.ReportTrigger) (*ArtifactSet, error) {
	ctx, span := tracer.Start(ctx, "reports.Run", trace.WithAttributes(attribute.String("report.trigger", string(trigger))))
	defer span.End()

	run := p.startRun(ctx, trigger)
	artifacts, err := p.run(ctx, cfg)
	if err != nil {
		span.RecordError(err)
	}
	p.finishRun(ctx, run, artifacts, err)
	return artifacts, err
}

func (p *Pipeline) run(ctx context.Context, cfg models.ScheduleConfig) (*ArtifactSet, error) {
	employees, err := p.inventory.ListEmployees(ctx)
	if err != nil {
		return nil, fmt.Errorf("load employees: %w", err)
	}
	assets, err := p.inventory.ListHardwareAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("load hardware assets: %w", err)
	}
	rows := Decorate(assets, employees, p.loc)

	now := p.now().In(p.loc)
	if err := os.MkdirAll(p.exportDir, 0o755); err != nil {
		return nil, &utils.ArchiveIOError{Op: "mkdir", Path: p.exportDir, Err: err}
	}
	artifacts := &ArtifactSet{
		TabularExportPath: filepath.Join(p.exportDir, fmt.Sprintf("hardware-assets-%s-%s.xlsx", now.Format("20060102-1504"), uuid.NewString()[:8])),
	}
	if err := WriteExport(artifacts.TabularExportPath, p.columns, rows); err != nil {
		return nil, &utils.ArchiveIOError{Op: "export", Path: artifacts.TabularExportPath, Err: err}
	}

	artifacts.ArchivePath, err = p.archiver.Snapshot(ctx)
	if err != nil {
		return artifacts, err
	}

	depleting, err := p.inventory.ListDepletingCounters(ctx)
	if err != nil {
		return artifacts, fmt.Errorf("load asset counters: %w", err)
	}
	newAssets, sampled := SelectNewAssets(rows, cfg.LastRollOut, NewAssetSampleSize)
	var since *time.Time
	if cfg.LastRollOut != nil {
		t := cfg.LastRollOut.In(p.loc)
		since = &t
	}
	summary := Summary{
		Title:       "IT Asset Report",
		GeneratedAt: now,
		Frequency:   cfg.Frequency,
		CrossTab:    BuildCrossTab(rows),
		NewAssets:   newAssets,
		Since:       since,
		Sampled:     sampled,
		Depleting:   depleting,
		Contact:     cfg.Contact,
	}
	if artifacts.RenderedSummary, err = RenderSummary(summary); err != nil {
		return artifacts, fmt.Errorf("render summary: %w", err)
	}

	msg := mailer.Message{
		To:       cfg.Recipients,
		ReplyTo:  cfg.Contact,
		Subject:  fmt.Sprintf("IT Asset Report - %s", now.Format("02 Jan 2006")),
		HTMLBody: artifacts.RenderedSummary,
		Files: []mailer.Attachment{
			{Name: filepath.Base(artifacts.TabularExportPath), Path: artifacts.TabularExportPath, ContentType: utils.ContentTypeXlsx},
			{Name: filepath.Base(artifacts.ArchivePath), Path: artifacts.ArchivePath, ContentType: utils.ContentTypeZip},
		},
	}
	dispatchCtx, cancel := context.WithTimeout(ctx, p.dispatchTimeout)
	defer cancel()
	if err := p.sender.Send(dispatchCtx, msg); err != nil {
		return artifacts, &utils.DeliveryError{Recipients: cfg.Recipients, Err: err}
	}

	p.logger.WithFields(logrus.Fields{
		"field":      "reports",
		"export":     artifacts.TabularExportPath,
		"archive":    artifacts.ArchivePath,
		"assets":     len(rows),
		"recipients": len(cfg.Recipients),
	}).Info("asset report dispatched")
	return artifacts, nil
}

func (p *Pipeline) startRun(ctx context.Context, trigger models.ReportTrigger) *models.ReportRun {
	if p.runs == nil {
		return nil
	}
	run := &models.ReportRun{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		Status:    models.ReportRunStatusRunning,
		StartedAt: p.now().UTC(),
	}
	if err := p.runs.CreateReportRun(ctx, run); err != nil {
		config.LogError(p.logger, "pipeline.go", "startRun", "record report run", run.ID, err)
		return nil
	}
	return run
}

func (p *Pipeline) finishRun(ctx context.Context, run *models.ReportRun, artifacts *ArtifactSet, runErr error) {
	if run == nil {
		return
	}
	finished := p.now().UTC()
	run.FinishedAt = &finished
	run.Status = models.ReportRunStatusSucceeded
	if runErr != nil {
		run.Status = models.ReportRunStatusFailed
		run.Error = runErr.Error()
	}
	if artifacts != nil {
		run.ArchivePath = artifacts.ArchivePath
		run.ExportPath = artifacts.TabularExportPath
	}
	if err := p.runs.FinishReportRun(context.WithoutCancel(ctx), run); err != nil {
		config.LogError(p.logger, "pipeline.go", "finishRun", "record report run", run.ID, err)
	}
}
