package main

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"bitbucket.org/mmdatafocus/assets_backend/backup"
	"bitbucket.org/mmdatafocus/assets_backend/models"
	"bitbucket.org/mmdatafocus/assets_backend/utils"
	"github.com/bsm/redislock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	importLockKey = "lock:backup-import"
	importLockTTL = 5 * time.Minute
)

type collectionConflicts struct {
	Current []models.Document  `json:"current"`
	Backup  []models.Document  `json:"backup"`
	Entries []backup.DiffEntry `json:"entries"`
}

type importRequest struct {
	SessionID  string                                  `json:"session_id" binding:"required"`
	Selections map[string]map[string]backup.Resolution `json:"selections"`
}

func (a *app) validateBackupHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		username, _ := utils.GetUsernameFromContext(ctx)

		header, err := c.FormFile("archive")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "archive file is required"})
			return
		}
		file, err := header.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		defer file.Close()

		archive, err := backup.ReadArchiveFrom(file, header.Size)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		names, err := a.documents.CollectionNames(ctx)
		if err != nil {
			abortWithError(c, err)
			return
		}
		known := make(map[string]bool, len(names))
		for _, name := range names {
			known[name] = true
		}
		current := make(map[string][]models.Document, len(archive.Collections))
		for _, snapshot := range archive.Collections {
			if !known[snapshot.Name] {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("archive contains unknown collection %q", snapshot.Name)})
				return
			}
			docs, err := a.documents.FindAll(ctx, snapshot.Name)
			if err != nil {
				a.logError(c, "server_backup.go", "validateBackupHandler", "FindAll", snapshot.Name, err)
				abortWithError(c, err)
				return
			}
			current[snapshot.Name] = docs
		}

		report := backup.Classify(ctx, current, archive)
		if !report.HasConflicts() {
			c.JSON(http.StatusOK, gin.H{"message": "backup matches current data; nothing to import"})
			return
		}

		session := backup.NewSession(uuid.NewString(), header.Filename, report, a.now())
		if err := a.sessions.Save(ctx, session, a.sessionTTL); err != nil {
			a.logError(c, "server_backup.go", "validateBackupHandler", "save session", username, err)
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message":        "backup differs from current data; resolve conflicts and import",
			"session_id":     session.ID,
			"per_collection": conflictsByCollection(report),
		})
	}
}

// conflictsByCollection drops unchanged entries and lists both sides of every
// remaining one.
func conflictsByCollection(report *backup.DiffReport) map[string]collectionConflicts {
	out := make(map[string]collectionConflicts, len(report.Collections))
	for _, diff := range report.Collections {
		if !diff.HasConflicts() {
			continue
		}
		cc := collectionConflicts{
			Current: []models.Document{},
			Backup:  []models.Document{},
			Entries: []backup.DiffEntry{},
		}
		for _, e := range diff.Entries {
			if e.Kind == backup.EntryUnchanged {
				continue
			}
			if e.Current != nil {
				cc.Current = append(cc.Current, e.Current)
			}
			if e.Backup != nil {
				cc.Backup = append(cc.Backup, e.Backup)
			}
			cc.Entries = append(cc.Entries, e)
		}
		out[diff.Name] = cc
	}
	return out
}

func (a *app) importBackupHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		username, _ := utils.GetUsernameFromContext(ctx)

		var req importRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
		session, err := a.sessions.Load(ctx, req.SessionID)
		if err != nil {
			abortWithError(c, err)
			return
		}

		if a.locker != nil {
			lock, err := a.locker.Obtain(ctx, importLockKey, importLockTTL, nil)
			switch {
			case errors.Is(err, redislock.ErrNotObtained):
				c.JSON(http.StatusConflict, gin.H{"error": "another import is in progress"})
				return
			case err != nil:
				a.logError(c, "server_backup.go", "importBackupHandler", "obtain import lock", username, err)
			default:
				defer func() { _ = lock.Release(ctx) }()
			}
		}

		if err := session.SelectAll(req.Selections); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		results, err := session.Apply(ctx, a.documents)
		if err != nil {
			var gateErr *utils.ReconciliationGateError
			var partialErr *utils.PartialCommitError
			switch {
			case errors.As(err, &gateErr):
				// keep the selections made so far
				if saveErr := a.sessions.Save(ctx, session, a.sessionTTL); saveErr != nil {
					a.logError(c, "server_backup.go", "importBackupHandler", "save session", username, saveErr)
				}
				c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "unresolved": gateErr.Unresolved})
			case errors.As(err, &partialErr):
				a.logError(c, "server_backup.go", "importBackupHandler", "Apply", session.ID, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "results": results})
			default:
				abortWithError(c, err)
			}
			return
		}

		if err := a.sessions.Delete(ctx, session.ID); err != nil {
			a.logError(c, "server_backup.go", "importBackupHandler", "delete session", session.ID, err)
		}
		c.JSON(http.StatusOK, gin.H{"results": results})
	}
}

func (a *app) exportBackupHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		path, err := a.archiver.Snapshot(c.Request.Context())
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.FileAttachment(path, filepath.Base(path))
	}
}
