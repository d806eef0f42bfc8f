package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parallon-labs/distjob-scheduler/internal/domain"
	"github.com/parallon-labs/distjob-scheduler/internal/scheduler"
	"github.com/parallon-labs/distjob-scheduler/internal/store"
)

// JobHandler exposes Schedule, Unschedule, and GetJob over HTTP for
// operators and other services; the primary interface remains the Go
// package API on *scheduler.Scheduler itself.
type JobHandler struct {
	sched  *scheduler.Scheduler
	logger *slog.Logger
}

func NewJobHandler(sched *scheduler.Scheduler, logger *slog.Logger) *JobHandler {
	return &JobHandler{sched: sched, logger: logger.With("component", "job_handler")}
}

type scheduleRequest struct {
	ID          string         `json:"id"          binding:"required"`
	Type        string         `json:"type"        binding:"required"`
	Schedule    string         `json:"schedule"`
	Priority    *int           `json:"priority"`
	Concurrency *int           `json:"concurrency"`
	Data        map[string]any `json:"data"`
	Immediate   bool           `json:"immediate"`
}

type scheduleResponse struct {
	ID string `json:"id"`
}

// POST /jobs
func (h *JobHandler) Schedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.sched.Schedule(c.Request.Context(), scheduler.ScheduleInput{
		ExternalID:  req.ID,
		Type:        req.Type,
		Schedule:    req.Schedule,
		Priority:    req.Priority,
		Concurrency: req.Concurrency,
		Data:        req.Data,
		Immediate:   req.Immediate,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidJob) {
			c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidJob})
			return
		}
		h.logger.ErrorContext(c.Request.Context(), "schedule job", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	c.JSON(http.StatusCreated, scheduleResponse{ID: id})
}

// GET /jobs/:id
func (h *JobHandler) GetByID(c *gin.Context) {
	id := c.Param("id")

	rec, err := h.sched.GetJob(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": errJobNotFound})
			return
		}
		h.logger.ErrorContext(c.Request.Context(), "get job", "job_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	c.JSON(http.StatusOK, rec)
}

// DELETE /jobs/:id?type=<jobType>
func (h *JobHandler) Delete(c *gin.Context) {
	sel := store.Selector{ID: c.Param("id"), Type: c.Query("type")}

	count, err := h.sched.Unschedule(c.Request.Context(), sel)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArguments) {
			c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidSelector})
			return
		}
		h.logger.ErrorContext(c.Request.Context(), "unschedule job", "job_id", sel.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	if count == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": errJobNotFound})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": count})
}
