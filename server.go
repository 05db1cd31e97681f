package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/assets_backend/backup"
	"bitbucket.org/mmdatafocus/assets_backend/config"
	"bitbucket.org/mmdatafocus/assets_backend/mailer"
	"bitbucket.org/mmdatafocus/assets_backend/middlewares"
	"bitbucket.org/mmdatafocus/assets_backend/models"
	"bitbucket.org/mmdatafocus/assets_backend/reports"
	"bitbucket.org/mmdatafocus/assets_backend/scheduler"
	"bitbucket.org/mmdatafocus/assets_backend/utils"
	"github.com/bsm/redislock"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type scheduleRepository interface {
	LoadScheduleConfig(ctx context.Context) (*models.ScheduleConfig, error)
	SaveScheduleConfig(ctx context.Context, input *models.NewScheduleConfig) (*models.ScheduleConfig, error)
	ListReportRuns(ctx context.Context, limit int) ([]models.ReportRun, error)
}

type reportScheduler interface {
	Arm(ctx context.Context) (time.Time, error)
	FireNow(ctx context.Context) error
}

type documentRepository interface {
	backup.Source
	backup.Writer
}

type archiveSnapshotter interface {
	Snapshot(ctx context.Context) (string, error)
}

type importLocker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (*redislock.Lock, error)
}

// app holds the wired collaborators behind the HTTP handlers. Fields are set
// once before ready flips to true and never change after.
type app struct {
	schedules  scheduleRepository
	scheduler  reportScheduler
	documents  documentRepository
	archiver   archiveSnapshotter
	sessions   backup.SessionStore
	locker     importLocker
	sessionTTL time.Duration
	logger     *logrus.Logger
	now        func() time.Time

	ready atomic.Bool
}

// logError tags handler failures with the request's correlation id.
func (a *app) logError(c *gin.Context, moduleName, funcName, op string, data any, err error) {
	cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
	config.LogErrorWithCorrelation(a.logger, cid, moduleName, funcName, op, data, err)
}

// correlationMiddleware reuses the caller's x-correlation-id or mints one.
func correlationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func (a *app) registerRoutes(api *gin.RouterGroup) {
	api.PUT("/schedule", a.putScheduleHandler())
	api.GET("/schedule", a.getScheduleHandler())
	api.POST("/schedule/fire-now", a.fireNowHandler())
	api.GET("/schedule/runs", a.listRunsHandler())
	api.POST("/backup/validate", a.validateBackupHandler())
	api.POST("/backup/import", a.importBackupHandler())
	api.GET("/backup/export", a.exportBackupHandler())
}

func main() {
	settings := config.LoadSettings()
	logger := config.GetLogger()
	if settings.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	a := &app{sessionTTL: settings.SessionTTL, logger: logger, now: time.Now}

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, we return 503 for app endpoints.
	r := gin.New()
	r.Use(correlationMiddleware())
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if !a.ready.Load() {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// In production, require an explicit allowlist; otherwise allow all.
	if settings.IsProduction() {
		corsConfig.AllowOrigins = settings.CorsAllowedOrigins
		if len(corsConfig.AllowOrigins) == 0 {
			corsConfig.AllowOrigins = []string{}
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.Use(middlewares.SessionMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())
	api := r.Group("/api")
	api.Use(middlewares.AdminMiddleware())
	a.registerRoutes(api)
	r.NoRoute(customNotFoundHandler)

	srv := &http.Server{
		Addr:    ":" + settings.Port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can block tables; allow running it as a separate job instead.
	if !settings.SkipMigrations {
		models.MigrateTable(db)
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	sched := wire(a, settings, logger)

	if next, err := sched.Arm(sigCtx); err != nil {
		if errors.Is(err, utils.ErrScheduleNotConfigured) {
			logger.WithFields(logrus.Fields{"field": "scheduler"}).Info("no report schedule configured yet")
		} else {
			config.LogError(logger, "server.go", "main", "arm scheduler", nil, err)
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "scheduler", "next_roll": next.Format(time.RFC3339)}).Info("scheduler started")
	}

	a.ready.Store(true)
	log.Println("Server started successfully on port " + settings.Port)

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop the timer first so no run starts while draining.
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// wire builds the stores, pipeline and scheduler on top of the connected
// DB and Redis clients and fills a.
func wire(a *app, settings config.Settings, logger *logrus.Logger) *scheduler.Scheduler {
	db := config.GetDB()
	schedules := models.NewScheduleStore(db)
	documents := models.NewDocumentStore(db)

	archiver := backup.NewArchiver(documents, settings.BackupDir, logger)
	if settings.BackupGCSBucket != "" {
		archiver.WithUploader(utils.GCSUploader{Bucket: settings.BackupGCSBucket, Prefix: "backups"})
	}

	var sender mailer.Sender
	switch settings.MailSender {
	case "log":
		sender = mailer.LogSender{Logger: logger}
	default:
		sender = mailer.NewPubSubSender(settings.MailTopic, settings.MailAttachmentBucket, logger)
	}

	loc := scheduler.FixedZone(settings.ScheduleOffset)
	pipeline := reports.NewPipeline(models.NewInventoryReader(db), archiver, sender, reports.Options{
		ExportDir:       settings.ExportDir,
		Location:        loc,
		DispatchTimeout: settings.DispatchTimeout,
		Runs:            schedules,
		Logger:          logger,
	})
	sched := scheduler.New(schedules, func(ctx context.Context, cfg models.ScheduleConfig, trigger models.ReportTrigger) error {
		_, err := pipeline.Run(ctx, cfg, trigger)
		return err
	}, scheduler.Options{
		Location:   loc,
		RunTimeout: settings.RunTimeout,
		Logger:     logger,
	})

	a.schedules = schedules
	a.scheduler = sched
	a.documents = documents
	a.archiver = archiver
	if rdb := config.GetRedisDB(); rdb != nil {
		a.sessions = backup.NewRedisSessionStore(rdb)
	} else {
		a.sessions = backup.NewMemorySessionStore()
	}
	if locker := config.GetRedisLock(); locker != nil {
		a.locker = locker
	}
	return sched
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// statusForError maps domain errors onto HTTP status codes.
func statusForError(err error) int {
	var cfgErr *utils.ConfigurationError
	var gateErr *utils.ReconciliationGateError
	var deliveryErr *utils.DeliveryError
	switch {
	case errors.As(err, &cfgErr):
		return http.StatusBadRequest
	case errors.Is(err, utils.ErrScheduleNotConfigured), errors.Is(err, utils.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.As(err, &gateErr):
		return http.StatusConflict
	case errors.As(err, &deliveryErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func abortWithError(c *gin.Context, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
