package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const (
	ContentTypeZip  = "application/zip"
	ContentTypeXlsx = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// getGoogleClient initializes a Google Cloud Storage client
func getGoogleClient(ctx context.Context) (*storage.Client, error) {
	// Prefer ADC (service account / GOOGLE_APPLICATION_CREDENTIALS).
	// Set GCS_CREDENTIALS_JSON to provide explicit JSON (e.g. locally).
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	}
	return storage.NewClient(ctx)
}

func UploadFileToGCS(ctx context.Context, bucketName string, objectName string, content io.Reader, contentType string) error {
	if bucketName == "" {
		return errors.New("gcs bucket is required")
	}
	client, err := getGoogleClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	wc := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	wc.ContentType = contentType
	if _, err := io.Copy(wc, content); err != nil {
		_ = wc.Close()
		return fmt.Errorf("failed to upload file to Google Cloud Storage: %v", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %v", err)
	}
	return nil
}

// GCSUploader copies local files into a bucket under Prefix.
type GCSUploader struct {
	Bucket string
	Prefix string
}

// Upload stores the file at localPath and returns the object name it used.
func (u GCSUploader) Upload(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	objectName := path.Join(u.Prefix, filepath.Base(localPath))
	if err := UploadFileToGCS(ctx, u.Bucket, objectName, f, ContentTypeForFile(localPath)); err != nil {
		return "", err
	}
	return objectName, nil
}

func ContentTypeForFile(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".zip":
		return ContentTypeZip
	case ".xlsx":
		return ContentTypeXlsx
	case ".json":
		return "application/json"
	}
	return "application/octet-stream"
}
