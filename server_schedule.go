package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"bitbucket.org/mmdatafocus/assets_backend/models"
	"bitbucket.org/mmdatafocus/assets_backend/utils"
	"github.com/gin-gonic/gin"
)

func (a *app) putScheduleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewScheduleConfig
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
		ctx := c.Request.Context()
		if _, err := a.schedules.SaveScheduleConfig(ctx, &input); err != nil {
			abortWithError(c, err)
			return
		}
		if _, err := a.scheduler.Arm(ctx); err != nil {
			abortWithError(c, err)
			return
		}
		cfg, err := a.schedules.LoadScheduleConfig(ctx)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, cfg)
	}
}

func (a *app) getScheduleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg, err := a.schedules.LoadScheduleConfig(c.Request.Context())
		if errors.Is(err, utils.ErrScheduleNotConfigured) {
			c.JSON(http.StatusNotFound, gin.H{"error": "schedule not configured"})
			return
		}
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, cfg)
	}
}

// fireNowHandler runs the report synchronously. The run is detached from the
// request so a dropped connection does not abort it halfway.
func (a *app) fireNowHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		username, _ := utils.GetUsernameFromContext(c.Request.Context())
		ctx := context.WithoutCancel(c.Request.Context())
		if err := a.scheduler.FireNow(ctx); err != nil {
			a.logError(c, "server_schedule.go", "fireNowHandler", "FireNow", username, err)
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "report generated and dispatched"})
	}
}

func (a *app) listRunsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		runs, err := a.schedules.ListReportRuns(c.Request.Context(), limit)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"runs": runs})
	}
}
