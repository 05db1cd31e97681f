package reports

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/assets_backend/mailer"
	"bitbucket.org/mmdatafocus/assets_backend/models"
	"bitbucket.org/mmdatafocus/assets_backend/utils"
	"github.com/sirupsen/logrus"
)

type fakeInventory struct {
	employees []models.Employee
	assets    []models.Asset
	counters  []models.AssetCounter
	err       error
}

func (f *fakeInventory) ListEmployees(ctx context.Context) ([]models.Employee, error) {
	return f.employees, f.err
}

func (f *fakeInventory) ListHardwareAssets(ctx context.Context) ([]models.Asset, error) {
	return f.assets, nil
}

func (f *fakeInventory) ListDepletingCounters(ctx context.Context) ([]models.AssetCounter, error) {
	return f.counters, nil
}

type fakeArchiver struct {
	dir   string
	calls int
}

func (a *fakeArchiver) Snapshot(ctx context.Context) (string, error) {
	a.calls++
	path := filepath.Join(a.dir, "backup.zip")
	return path, os.WriteFile(path, []byte("zip"), 0o644)
}

type fakeSender struct {
	sent []mailer.Message
	err  error
}

func (s *fakeSender) Send(ctx context.Context, msg mailer.Message) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("dispatch without deadline")
	}
	s.sent = append(s.sent, msg)
	return s.err
}

type fakeRuns struct {
	created  []models.ReportRun
	finished []models.ReportRun
}

func (r *fakeRuns) CreateReportRun(ctx context.Context, run *models.ReportRun) error {
	r.created = append(r.created, *run)
	return nil
}

func (r *fakeRuns) FinishReportRun(ctx context.Context, run *models.ReportRun) error {
	r.finished = append(r.finished, *run)
	return nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testPipeline(t *testing.T, inv Inventory, sender mailer.Sender, runs RunRecorder) (*Pipeline, *fakeArchiver) {
	t.Helper()
	archiver := &fakeArchiver{dir: t.TempDir()}
	p := NewPipeline(inv, archiver, sender, Options{
		ExportDir:       t.TempDir(),
		Location:        yangon,
		DispatchTimeout: time.Second,
		Runs:            runs,
		Logger:          quietLogger(),
	})
	return p, archiver
}

func testSchedule() models.ScheduleConfig {
	return models.ScheduleConfig{
		ID:         1,
		Frequency:  models.FrequencyWeekly,
		Weekday:    1,
		TimeOfDay:  "09:00",
		Recipients: []string{"ops@example.com", "cfo@example.com"},
		Contact:    "it@example.com",
	}
}

func TestPipelineRun(t *testing.T) {
	inv := &fakeInventory{
		employees: []models.Employee{{Code: "E001", Name: "Aung Aung"}},
		assets: []models.Asset{
			{AssetTag: "LT-0001", Category: "Laptop", Status: "In Use", Assignee: "E001", CreatedAt: time.Now()},
		},
		counters: []models.AssetCounter{{Category: "Laptop", Prefix: "LT", Count: 99, Threshold: 100, Depleting: true}},
	}
	sender := &fakeSender{}
	runs := &fakeRuns{}
	p, archiver := testPipeline(t, inv, sender, runs)

	artifacts, err := p.Run(context.Background(), testSchedule(), models.ReportTriggerScheduled)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if archiver.calls != 1 {
		t.Fatalf("archiver calls = %d", archiver.calls)
	}
	if _, err := os.Stat(artifacts.TabularExportPath); err != nil {
		t.Fatalf("export not written: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("messages = %d", len(sender.sent))
	}
	msg := sender.sent[0]
	if len(msg.To) != 2 || msg.ReplyTo != "it@example.com" || len(msg.Files) != 2 {
		t.Fatalf("message = %+v", msg)
	}
	if !strings.Contains(msg.HTMLBody, "Aung Aung") || !strings.Contains(msg.HTMLBody, "Recently added assets") {
		t.Fatalf("summary body missing content")
	}
	if len(runs.created) != 1 || len(runs.finished) != 1 || runs.finished[0].Status != models.ReportRunStatusSucceeded {
		t.Fatalf("runs = %+v / %+v", runs.created, runs.finished)
	}
	if runs.finished[0].ArchivePath != artifacts.ArchivePath {
		t.Fatalf("archive path not recorded")
	}
}

func TestPipelineDeliveryFailure(t *testing.T) {
	inv := &fakeInventory{}
	sender := &fakeSender{err: errors.New("publish: deadline exceeded")}
	runs := &fakeRuns{}
	p, _ := testPipeline(t, inv, sender, runs)

	artifacts, err := p.Run(context.Background(), testSchedule(), models.ReportTriggerManual)
	var delivery *utils.DeliveryError
	if !errors.As(err, &delivery) {
		t.Fatalf("expected DeliveryError, got %v", err)
	}
	if artifacts == nil || artifacts.ArchivePath == "" || artifacts.TabularExportPath == "" {
		t.Fatalf("artifacts should survive a delivery failure: %+v", artifacts)
	}
	if runs.finished[0].Status != models.ReportRunStatusFailed || runs.finished[0].Trigger != models.ReportTriggerManual {
		t.Fatalf("run = %+v", runs.finished[0])
	}
}

func TestPipelineLoadFailureSkipsDispatch(t *testing.T) {
	inv := &fakeInventory{err: errors.New("db down")}
	sender := &fakeSender{}
	p, archiver := testPipeline(t, inv, sender, nil)

	if _, err := p.Run(context.Background(), testSchedule(), models.ReportTriggerScheduled); err == nil {
		t.Fatalf("expected error")
	}
	if archiver.calls != 0 || len(sender.sent) != 0 {
		t.Fatalf("later steps ran after a load failure")
	}
}
