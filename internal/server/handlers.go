package server

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/goosewin/qforia/internal/backend"
	"github.com/goosewin/qforia/internal/core"
	"github.com/goosewin/qforia/internal/export"
	"github.com/goosewin/qforia/internal/state"
	"go.uber.org/zap"
)

type handlers struct {
	runner Runner
	logger *zap.Logger
	// mu serializes fan-out runs; a second request while one is in flight
	// is rejected rather than queued.
	mu sync.Mutex
}

type fanoutResponse struct {
	state.Record
	DeclaredCount *int `json:"declared_count,omitempty"`
	ActualCount   int  `json:"actual_count"`
	CountMismatch bool `json:"count_mismatch"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	RunID   string `json:"run_id,omitempty"`
	Session string `json:"session,omitempty"`
	Raw     string `json:"raw,omitempty"`
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "qforia-server"})
}

func (h *handlers) fanout(c *gin.Context) {
	var req FanoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			writeError(c, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		writeError(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(c, http.StatusBadRequest, "query is required")
		return
	}
	if req.Mode == "" {
		req.Mode = string(core.ModeSimple)
	}
	if _, err := core.ParseMode(req.Mode); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	if !h.mu.TryLock() {
		writeError(c, http.StatusConflict, "A fan-out is already in progress")
		return
	}
	defer h.mu.Unlock()

	record, err := h.runner.Fanout(c.Request.Context(), req)
	if err != nil {
		h.logger.Warn("Fan-out request failed", zap.String("kind", core.ErrorKind(err)), zap.Error(err))
		c.JSON(statusForError(err), errorResponse{
			Error:   err.Error(),
			Kind:    core.ErrorKind(err),
			RunID:   record.RunID,
			Session: record.Session,
			Raw:     core.Diagnostic(err),
		})
		return
	}

	c.JSON(http.StatusOK, newFanoutResponse(record))
}

func (h *handlers) result(c *gin.Context) {
	record, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newFanoutResponse(record))
}

func (h *handlers) deleteResult(c *gin.Context) {
	record, ok := h.lookup(c)
	if !ok {
		return
	}
	if record.Status == state.StatusRunning {
		writeError(c, http.StatusConflict, "Session is still running: "+record.Session)
		return
	}
	if err := state.Delete(record.Session); err != nil {
		h.logger.Error("Failed to delete session", zap.String("session", record.Session), zap.Error(err))
		writeError(c, http.StatusInternalServerError, "Failed to delete session")
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": record.Session})
}

func (h *handlers) resultCSV(c *gin.Context) {
	record, ok := h.lookup(c)
	if !ok {
		return
	}
	if record.Result == nil {
		writeError(c, http.StatusNotFound, "Session has no queries to export")
		return
	}

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, record.Result.Queries); err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to encode CSV")
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+export.DefaultFilename+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (h *handlers) prompt(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		writeError(c, http.StatusBadRequest, "q is required")
		return
	}
	mode, err := core.ParseMode(c.DefaultQuery("mode", string(core.ModeSimple)))
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"query":       query,
		"mode":        mode,
		"min_queries": core.MinQueries(mode),
		"prompt":      core.BuildPrompt(query, mode),
	})
}

func (h *handlers) lookup(c *gin.Context) (state.Record, bool) {
	session := c.Param("session")
	record, found, err := state.Get(session)
	if err != nil {
		h.logger.Error("Failed to read state", zap.Error(err))
		writeError(c, http.StatusInternalServerError, "Failed to read session")
		return state.Record{}, false
	}
	if !found {
		writeError(c, http.StatusNotFound, "Session not found: "+session)
		return state.Record{}, false
	}
	return record, true
}

func newFanoutResponse(record state.Record) fanoutResponse {
	response := fanoutResponse{Record: record}
	if record.Result != nil {
		declared, actual, mismatch := record.Result.CountMismatch()
		response.ActualCount = actual
		response.CountMismatch = mismatch
		if _, ok := record.Result.DeclaredCount(); ok {
			response.DeclaredCount = &declared
		}
	}
	return response
}

func statusForError(err error) int {
	switch core.ErrorKind(err) {
	case "credential_missing":
		return http.StatusServiceUnavailable
	case "credential_invalid":
		return http.StatusUnauthorized
	case "no_json_found", "malformed_json", "transport":
		return http.StatusBadGateway
	}
	if errors.Is(err, backend.ErrBackendNotFound) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
