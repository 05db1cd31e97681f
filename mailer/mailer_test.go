package mailer

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestPubSubSenderUploadsThenPublishes(t *testing.T) {
	dir := t.TempDir()
	xlsx := filepath.Join(dir, "assets.xlsx")
	if err := os.WriteFile(xlsx, []byte("sheet"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var uploaded []string
	var published *MailJob
	s := NewPubSubSender("mail-jobs", "attachments", quietLogger())
	s.upload = func(ctx context.Context, bucket, object string, content io.Reader, contentType string) error {
		body, _ := io.ReadAll(content)
		if string(body) != "sheet" {
			t.Fatalf("uploaded body = %q", body)
		}
		uploaded = append(uploaded, bucket+"/"+object+"|"+contentType)
		return nil
	}
	s.publish = func(ctx context.Context, topic string, obj interface{}) (string, error) {
		job := obj.(MailJob)
		published = &job
		return "m-1", nil
	}

	err := s.Send(context.Background(), Message{
		To:       []string{"ops@example.com"},
		ReplyTo:  "it@example.com",
		Subject:  "Asset report",
		HTMLBody: "<p>hi</p>",
		Files:    []Attachment{{Name: "assets.xlsx", Path: xlsx}},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(uploaded) != 1 {
		t.Fatalf("uploads = %v", uploaded)
	}
	if published == nil || len(published.Attachments) != 1 || published.ReplyTo != "it@example.com" {
		t.Fatalf("job = %+v", published)
	}
	if a := published.Attachments[0]; a.Bucket != "attachments" || a.ContentType != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("attachment = %+v", a)
	}
}

func TestPubSubSenderStopsOnUploadError(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "backup.zip")
	if err := os.WriteFile(zipPath, []byte("zip"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	published := false
	s := NewPubSubSender("mail-jobs", "attachments", quietLogger())
	s.upload = func(context.Context, string, string, io.Reader, string) error { return errors.New("403") }
	s.publish = func(context.Context, string, interface{}) (string, error) {
		published = true
		return "", nil
	}

	err := s.Send(context.Background(), Message{To: []string{"ops@example.com"}, Files: []Attachment{{Name: "backup.zip", Path: zipPath}}})
	if err == nil || published {
		t.Fatalf("err = %v, published = %v", err, published)
	}
}

func TestPubSubSenderRequiresRecipients(t *testing.T) {
	s := NewPubSubSender("mail-jobs", "attachments", quietLogger())
	if err := s.Send(context.Background(), Message{}); err == nil {
		t.Fatalf("expected error")
	}
}
