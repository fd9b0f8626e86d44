package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aescanero/docgen/internal/application/orchestrator"
	"github.com/aescanero/docgen/pkg/domain"
	"github.com/aescanero/docgen/pkg/ports"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultListLimit = 20

// RunSubmitRequest represents a run submission request
type RunSubmitRequest struct {
	Workflow string         `json:"workflow" binding:"required"`
	Input    map[string]any `json:"input"`
	// Wait blocks the request until the run is terminal
	Wait bool `json:"wait"`
}

// RunSubmitResponse represents a background run submission response
type RunSubmitResponse struct {
	RunID       string           `json:"run_id"`
	Workflow    string           `json:"workflow"`
	Status      domain.RunStatus `json:"status"`
	SubmittedAt time.Time        `json:"submitted_at"`
}

// RunResultResponse is returned by a synchronous submission
type RunResultResponse struct {
	Run      *domain.RunSummary `json:"run"`
	Artifact *domain.Artifact   `json:"artifact,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	workerCheck := "ok"
	if s.pool != nil && !s.pool.Health().Healthy {
		workerCheck = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"checks": gin.H{
			"orchestrator": "ok",
			"workers":      workerCheck,
		},
		"active_runs": s.manager.ActiveRuns(),
	})
}

// handleSubmitRun handles run submission
func (s *Server) handleSubmitRun(c *gin.Context) {
	var req RunSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Warn("invalid request", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}

	if req.Wait {
		run, artifact, err := s.manager.Execute(c.Request.Context(), req.Workflow, req.Input)
		if err != nil {
			s.writeError(c, "failed to execute run", err)
			return
		}
		c.JSON(http.StatusOK, RunResultResponse{Run: run.Summary(), Artifact: artifact})
		return
	}

	summary, err := s.manager.StartRun(c.Request.Context(), req.Workflow, req.Input)
	if err != nil {
		s.writeError(c, "failed to submit run", err)
		return
	}

	c.JSON(http.StatusAccepted, RunSubmitResponse{
		RunID:       summary.ID,
		Workflow:    summary.Workflow,
		Status:      summary.Status,
		SubmittedAt: summary.CreatedAt,
	})
}

// handleListRuns handles listing runs
func (s *Server) handleListRuns(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultListLimit)
	if err != nil {
		s.writeError(c, "invalid list query", err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		s.writeError(c, "invalid list query", err)
		return
	}

	filter := ports.RunFilter{
		Workflow: c.Query("workflow"),
		Status:   domain.RunStatus(c.Query("status")),
		Limit:    limit,
		Offset:   offset,
	}

	runs, err := s.manager.ListRuns(c.Request.Context(), filter)
	if err != nil {
		s.writeError(c, "failed to list runs", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":   runs,
		"count":  len(runs),
		"limit":  limit,
		"offset": offset,
	})
}

// handleGetRun handles getting full run details
func (s *Server) handleGetRun(c *gin.Context) {
	run, err := s.manager.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, "failed to get run", err)
		return
	}

	c.JSON(http.StatusOK, run)
}

// handleGetStatus handles getting run status
func (s *Server) handleGetStatus(c *gin.Context) {
	summary, err := s.manager.GetRunStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, "failed to get run status", err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// handleGetArtifact handles getting the artifact of a succeeded run
func (s *Server) handleGetArtifact(c *gin.Context) {
	artifact, err := s.manager.GetArtifact(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, "failed to get artifact", err)
		return
	}

	c.JSON(http.StatusOK, artifact)
}

// handleGetHistory handles getting the node execution history of a run
func (s *Server) handleGetHistory(c *gin.Context) {
	runID := c.Param("id")

	history, err := s.manager.NodeHistory(c.Request.Context(), runID)
	if err != nil {
		s.writeError(c, "failed to get node history", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id": runID,
		"nodes":  history,
	})
}

// handleCancelRun handles run cancellation
func (s *Server) handleCancelRun(c *gin.Context) {
	runID := c.Param("id")

	if err := s.manager.Cancel(c.Request.Context(), runID); err != nil {
		s.writeError(c, "failed to cancel run", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"run_id":       runID,
		"status":       "cancelling",
		"requested_at": time.Now().UTC(),
	})
}

// handleListWorkflows handles listing registered workflows
func (s *Server) handleListWorkflows(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"workflows": s.manager.Workflows(),
	})
}

// handleListWorkers handles listing the attempt worker pool
func (s *Server) handleListWorkers(c *gin.Context) {
	if s.pool == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: ErrorDetail{
				Code:    "POOL_NOT_AVAILABLE",
				Message: "Worker pool is not configured",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":   s.pool.Workers(),
		"health": s.pool.Health(),
	})
}

// writeError maps err onto a status code and error response
func (s *Server) writeError(c *gin.Context, msg string, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL_ERROR"
	switch {
	case domain.IsNotFound(err):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, orchestrator.ErrRunNotSucceeded):
		status, code = http.StatusConflict, "RUN_NOT_SUCCEEDED"
	case errors.Is(err, domain.ErrRunTerminal):
		status, code = http.StatusConflict, "RUN_TERMINAL"
	case errors.Is(err, orchestrator.ErrManagerClosed):
		status, code = http.StatusServiceUnavailable, "SHUTTING_DOWN"
	case errors.Is(err, domain.ErrStoreUnavailable):
		status, code = http.StatusServiceUnavailable, "STORE_UNAVAILABLE"
	case domain.IsConfiguration(err), errors.Is(err, domain.ErrInvalidInput):
		status, code = http.StatusBadRequest, "INVALID_REQUEST"
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.String("path", c.Request.URL.Path), zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.String("path", c.Request.URL.Path), zap.Error(err))
	}

	c.JSON(status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: err.Error(),
		},
	})
}

// queryInt parses a non-negative integer query parameter
func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewInvalidInputError(name, err)
	}
	if v < 0 {
		return 0, domain.NewInvalidInputError(name, errors.New("must not be negative"))
	}
	return v, nil
}
