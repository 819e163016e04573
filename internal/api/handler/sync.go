package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"unisaved/internal/api/middleware"
	"unisaved/internal/domain"
	"unisaved/internal/service"
	"unisaved/internal/source"
)

// SyncHandler handles sync trigger, status, and history endpoints.
type SyncHandler struct {
	coordinator *service.Coordinator
	gdprFactory func(csvPath string) source.Source
}

// NewSyncHandler creates a sync handler. gdprFactory builds a GDPR importer
// for a request-supplied CSV path; nil disables the import endpoint.
func NewSyncHandler(coordinator *service.Coordinator, gdprFactory func(csvPath string) source.Source) *SyncHandler {
	return &SyncHandler{
		coordinator: coordinator,
		gdprFactory: gdprFactory,
	}
}

// SyncRequest is the optional trigger body.
type SyncRequest struct {
	Force bool `json:"force"`
}

// TriggerResponse reports whether a sync was started.
type TriggerResponse struct {
	Message     string `json:"message"`
	SyncStarted bool   `json:"sync_started"`
}

// Trigger starts a background sync for the source in the path.
func (h *SyncHandler) Trigger(c *gin.Context) {
	name := c.Param("source")

	var req SyncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	if _, ok := h.coordinator.Source(name); !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Unknown source: " + name + ". Valid sources: " + strings.Join(h.coordinator.Sources(), ", "),
		})
		return
	}

	result, err := h.coordinator.Trigger(c.Request.Context(), name, req.Force)
	if err != nil {
		h.writeTriggerError(c, name, err)
		return
	}

	c.JSON(http.StatusOK, TriggerResponse{
		Message:     result.Reason,
		SyncStarted: result.Started,
	})
}

func (h *SyncHandler) writeTriggerError(c *gin.Context, name string, err error) {
	var credErr *domain.CredentialError
	switch {
	case errors.Is(err, domain.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, gin.H{"error": name + " sync is already running"})
	case errors.As(err, &credErr):
		c.JSON(http.StatusUnauthorized, gin.H{"error": name + " authentication failed: " + credErr.Reason})
	default:
		middleware.GetLogger(c).WithError(err).Error("Failed to trigger sync")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start sync"})
	}
}

// Status returns the latest state for every registered source.
func (h *SyncHandler) Status(c *gin.Context) {
	statuses, err := h.coordinator.StatusAll(c.Request.Context())
	if err != nil {
		middleware.GetLogger(c).WithError(err).Error("Failed to load sync statuses")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load sync statuses"})
		return
	}
	c.JSON(http.StatusOK, statuses)
}

// StatusBySource returns the latest state for one source.
func (h *SyncHandler) StatusBySource(c *gin.Context) {
	name := c.Param("source")

	status, err := h.coordinator.Status(c.Request.Context(), name)
	if err != nil {
		if _, ok := h.coordinator.Source(name); !ok {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Unknown source: " + name + ". Valid sources: " + strings.Join(h.coordinator.Sources(), ", "),
			})
			return
		}
		middleware.GetLogger(c).WithError(err).Error("Failed to load sync status")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load sync status"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// HistoryEntry is one past run in the history response.
type HistoryEntry struct {
	ID            string     `json:"id"`
	Source        string     `json:"source"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Status        string     `json:"status"`
	ItemsIngested int        `json:"items_synced"`
	Errors        string     `json:"errors,omitempty"`
}

// HistoryResponse wraps a history page with its total count.
type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
	Total   int64          `json:"total"`
}

// History returns past sync runs, newest first.
func (h *SyncHandler) History(c *gin.Context) {
	src := c.Query("source")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	runs, total, err := h.coordinator.History(c.Request.Context(), src, limit, offset)
	if err != nil {
		middleware.GetLogger(c).WithError(err).Error("Failed to load sync history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load sync history"})
		return
	}

	entries := make([]HistoryEntry, 0, len(runs))
	for _, run := range runs {
		entries = append(entries, HistoryEntry{
			ID:            run.ID,
			Source:        run.Source,
			StartedAt:     run.StartedAt,
			CompletedAt:   run.CompletedAt,
			Status:        string(run.Status),
			ItemsIngested: run.ItemsIngested,
			Errors:        run.Errors,
		})
	}

	c.JSON(http.StatusOK, HistoryResponse{Entries: entries, Total: total})
}

// GDPRImportRequest points at a saved_posts.csv from a Reddit data export.
type GDPRImportRequest struct {
	CSVPath string `json:"csv_path" binding:"required"`
}

// GDPRImport imports historical Reddit saved items from a GDPR export CSV,
// bypassing the live API's window limit.
func (h *SyncHandler) GDPRImport(c *gin.Context) {
	if h.gdprFactory == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "GDPR import not available"})
		return
	}

	var req GDPRImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "csv_path is required"})
		return
	}
	if !strings.HasSuffix(req.CSVPath, ".csv") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file must be a CSV file"})
		return
	}

	importer := h.gdprFactory(req.CSVPath)
	if ok, msg := importer.ValidateCredentials(c.Request.Context()); !ok && strings.Contains(msg, "not found") {
		c.JSON(http.StatusNotFound, gin.H{"error": msg})
		return
	}

	result, err := h.coordinator.TriggerWith(c.Request.Context(), importer, true)
	if err != nil {
		h.writeTriggerError(c, importer.Name(), err)
		return
	}

	c.JSON(http.StatusOK, TriggerResponse{
		Message:     "Reddit GDPR import started in background",
		SyncStarted: result.Started,
	})
}
