// Package httptransport exposes the control-plane HTTP API: a thin layer
// over *scheduler.Scheduler for operators and other services. The
// package's Go API (Schedule/Unschedule/GetJob/Define) remains the
// primary interface.
package httptransport

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"

	"github.com/parallon-labs/distjob-scheduler/internal/health"
	"github.com/parallon-labs/distjob-scheduler/internal/transport/http/handler"
	"github.com/parallon-labs/distjob-scheduler/internal/transport/http/middleware"
)

// NewRouter wires the control-plane API: health/readiness probes are
// public, job mutation routes require a bearer JWT signed with jwtKey.
func NewRouter(jobHandler *handler.JobHandler, checker *health.Checker, jwtKey []byte, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, checker.Liveness(c.Request.Context()))
	})
	r.GET("/readyz", func(c *gin.Context) {
		result := checker.Readiness(c.Request.Context())
		status := 200
		if result.Status != "up" {
			status = 503
		}
		c.JSON(status, result)
	})

	jobs := r.Group("/jobs")
	jobs.GET("/:id", jobHandler.GetByID)
	jobs.Use(middleware.Auth(jwtKey))
	jobs.POST("", jobHandler.Schedule)
	jobs.DELETE("/:id", jobHandler.Delete)

	return r
}
