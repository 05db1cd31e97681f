package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Settings collects the environment-driven knobs for the scheduler, report
// pipeline and backup flows. Connection settings stay in the Connect* helpers.
type Settings struct {
	Port string
	Env  string

	SkipMigrations     bool
	CorsAllowedOrigins []string

	ScheduleOffset time.Duration
	RunTimeout     time.Duration

	BackupDir       string
	ExportDir       string
	BackupGCSBucket string

	MailSender           string
	MailTopic            string
	MailAttachmentBucket string
	DispatchTimeout      time.Duration

	SessionTTL time.Duration
}

func LoadSettings() Settings {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}
	backupDir := stringFromEnv("BACKUP_DIR", filepath.Join(os.TempDir(), "assets-backups"))
	return Settings{
		Port:                 port,
		Env:                  strings.TrimSpace(os.Getenv("GO_ENV")),
		SkipMigrations:       strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true"),
		CorsAllowedOrigins:   splitAndTrim(os.Getenv("CORS_ALLOWED_ORIGINS")),
		ScheduleOffset:       time.Duration(intFromEnv("SCHEDULE_UTC_OFFSET_HOURS", 8)) * time.Hour,
		RunTimeout:           time.Duration(intFromEnv("REPORT_RUN_TIMEOUT_SECONDS", 600)) * time.Second,
		BackupDir:            backupDir,
		ExportDir:            stringFromEnv("EXPORT_DIR", filepath.Join(backupDir, "exports")),
		BackupGCSBucket:      strings.TrimSpace(os.Getenv("BACKUP_GCS_BUCKET")),
		MailSender:           strings.ToLower(stringFromEnv("MAIL_SENDER", "pubsub")),
		MailTopic:            strings.TrimSpace(os.Getenv("MAIL_TOPIC")),
		MailAttachmentBucket: strings.TrimSpace(os.Getenv("MAIL_ATTACHMENT_BUCKET")),
		DispatchTimeout:      time.Duration(intFromEnv("DISPATCH_TIMEOUT_SECONDS", 60)) * time.Second,
		SessionTTL:           time.Duration(intFromEnv("RECONCILE_SESSION_TTL_MINUTES", 60)) * time.Minute,
	}
}

func (s Settings) IsProduction() bool {
	return strings.EqualFold(s.Env, "production")
}

func stringFromEnv(key string, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
