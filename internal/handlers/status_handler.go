package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/hoard/internal/common"
	"github.com/ternarybob/hoard/internal/interfaces"
	"github.com/ternarybob/hoard/internal/models"
)

// QueueLengther reports queue depth for a background queue.
type QueueLengther interface {
	QueueLen() int
}

// StatusHandler reports application status: artifact counts by status
// and queue depths.
type StatusHandler struct {
	storage  interfaces.DatabaseStorageProvider
	queueMgr interfaces.QueueManager
	gate     QueueLengther
	uploads  QueueLengther
	cleanup  QueueLengther
	logger   arbor.ILogger
}

// NewStatusHandler creates the status API handler. Queue length sources
// may be nil when the corresponding subsystem is disabled.
func NewStatusHandler(
	storage interfaces.DatabaseStorageProvider,
	queueMgr interfaces.QueueManager,
	gate, uploads, cleanup QueueLengther,
	logger arbor.ILogger,
) *StatusHandler {
	return &StatusHandler{
		storage:  storage,
		queueMgr: queueMgr,
		gate:     gate,
		uploads:  uploads,
		cleanup:  cleanup,
		logger:   logger,
	}
}

// GetStatusHandler handles GET /api/status.
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	ctx := r.Context()

	artifacts := make(map[string]int)
	for _, status := range []models.ArtifactStatus{
		models.ArtifactPending,
		models.ArtifactInProgress,
		models.ArtifactSuccess,
		models.ArtifactFailed,
		models.ArtifactSkipped,
	} {
		count, err := h.storage.CountArtifactsByStatus(ctx, status)
		if err != nil {
			h.logger.Warn().Err(err).Str("status", string(status)).Msg("Artifact count failed")
			continue
		}
		artifacts[string(status)] = count
	}

	items, err := h.storage.CountItems(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Item count failed")
	}

	queues := make(map[string]int)
	if h.queueMgr != nil {
		if depth, err := h.queueMgr.Len(ctx); err == nil {
			queues["archive"] = depth
		}
	}
	if h.gate != nil {
		queues["summarize"] = h.gate.QueueLen()
	}
	if h.uploads != nil {
		queues["upload"] = h.uploads.QueueLen()
	}
	if h.cleanup != nil {
		queues["cleanup"] = h.cleanup.QueueLen()
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"version":   common.GetVersion(),
		"items":     items,
		"artifacts": artifacts,
		"queues":    queues,
		"storage": map[string]interface{}{
			"provider":         h.storage.ProviderName(),
			"transactions":     h.storage.SupportsTransactions(),
			"full_text_search": h.storage.SupportsFullTextSearch(),
		},
	})
}
