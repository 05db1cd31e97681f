// backup-snapshot writes one backup archive of every table and prints its path.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/backup-snapshot -dir /tmp/backups
//
// With -gcs-bucket (or BACKUP_GCS_BUCKET) the archive is also uploaded.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"bitbucket.org/mmdatafocus/assets_backend/backup"
	"bitbucket.org/mmdatafocus/assets_backend/config"
	"bitbucket.org/mmdatafocus/assets_backend/models"
	"bitbucket.org/mmdatafocus/assets_backend/utils"
)

func main() {
	settings := config.LoadSettings()
	dir := flag.String("dir", settings.BackupDir, "Directory the archive is written to.")
	bucket := flag.String("gcs-bucket", settings.BackupGCSBucket, "Optional: GCS bucket to upload the archive to.")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Explicit DB connect (config does not connect DB in init()).
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	archiver := backup.NewArchiver(models.NewDocumentStore(db), *dir, config.GetLogger())
	if strings.TrimSpace(*bucket) != "" {
		archiver.WithUploader(utils.GCSUploader{Bucket: strings.TrimSpace(*bucket), Prefix: "backups"})
	}

	path, err := archiver.Snapshot(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(path)
}
