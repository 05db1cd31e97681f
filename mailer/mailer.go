package mailer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"bitbucket.org/mmdatafocus/assets_backend/config"
	"bitbucket.org/mmdatafocus/assets_backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Attachment struct {
	Name        string `json:"name"`
	Path        string `json:"-"`
	ContentType string `json:"content_type"`
}

type Message struct {
	To       []string     `json:"to"`
	ReplyTo  string       `json:"reply_to,omitempty"`
	Subject  string       `json:"subject"`
	HTMLBody string       `json:"html_body"`
	Files    []Attachment `json:"-"`
}

// Sender hands a message to the mail transport.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Uploader stores an attachment body as objectName in bucket.
type Uploader func(ctx context.Context, bucket string, objectName string, content io.Reader, contentType string) error

// MailJob is the payload published for the mail worker.
type MailJob struct {
	ID          string          `json:"id"`
	To          []string        `json:"to"`
	ReplyTo     string          `json:"reply_to,omitempty"`
	Subject     string          `json:"subject"`
	HTMLBody    string          `json:"html_body"`
	Attachments []JobAttachment `json:"attachments"`
	CreatedAt   time.Time       `json:"created_at"`
}

type JobAttachment struct {
	Name        string `json:"name"`
	Bucket      string `json:"bucket"`
	Object      string `json:"object"`
	ContentType string `json:"content_type"`
}

type Publisher func(ctx context.Context, topic string, obj interface{}) (string, error)

// PubSubSender uploads attachments to GCS and publishes one MailJob per
// message to Topic.
type PubSubSender struct {
	Topic  string
	Bucket string

	upload  Uploader
	publish Publisher
	logger  *logrus.Logger
}

func NewPubSubSender(topic string, bucket string, logger *logrus.Logger) *PubSubSender {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &PubSubSender{
		Topic:   topic,
		Bucket:  bucket,
		upload:  utils.UploadFileToGCS,
		publish: config.PublishJSON,
		logger:  logger,
	}
}

func (s *PubSubSender) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return errors.New("message has no recipients")
	}
	if s.Topic == "" {
		return errors.New("MAIL_TOPIC is not configured")
	}

	job := MailJob{
		ID:        uuid.NewString(),
		To:        msg.To,
		ReplyTo:   msg.ReplyTo,
		Subject:   msg.Subject,
		HTMLBody:  msg.HTMLBody,
		CreatedAt: time.Now().UTC(),
	}
	for _, a := range msg.Files {
		if s.Bucket == "" {
			return errors.New("MAIL_ATTACHMENT_BUCKET is not configured")
		}
		if a.ContentType == "" {
			a.ContentType = utils.ContentTypeForFile(a.Path)
		}
		object := path.Join("mail", job.ID, a.Name)
		if err := s.uploadFile(ctx, a, object); err != nil {
			return fmt.Errorf("upload attachment %s: %w", a.Name, err)
		}
		job.Attachments = append(job.Attachments, JobAttachment{
			Name:        a.Name,
			Bucket:      s.Bucket,
			Object:      object,
			ContentType: a.ContentType,
		})
	}

	msgID, err := s.publish(ctx, s.Topic, job)
	if err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"field":      "mailer",
		"job_id":     job.ID,
		"message_id": msgID,
		"recipients": len(job.To),
	}).Info("mail job published")
	return nil
}

func (s *PubSubSender) uploadFile(ctx context.Context, a Attachment, object string) error {
	f, err := os.Open(a.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	return s.upload(ctx, s.Bucket, object, f, a.ContentType)
}

// LogSender only logs the message. Used for local runs without Pub/Sub.
type LogSender struct {
	Logger *logrus.Logger
}

func (s LogSender) Send(ctx context.Context, msg Message) error {
	logger := s.Logger
	if logger == nil {
		logger = config.GetLogger()
	}
	names := make([]string, 0, len(msg.Files))
	for _, a := range msg.Files {
		names = append(names, filepath.Base(a.Path))
	}
	logger.WithFields(logrus.Fields{
		"field":       "mailer",
		"to":          msg.To,
		"reply_to":    msg.ReplyTo,
		"subject":     msg.Subject,
		"attachments": names,
	}).Info("mail not sent (log sender)")
	return nil
}
