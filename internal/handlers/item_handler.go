package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/hoard/internal/interfaces"
	"github.com/ternarybob/hoard/internal/models"
)

// ItemHandler exposes archived item queries over HTTP. All reads come
// from the primary store.
type ItemHandler struct {
	storage interfaces.DatabaseStorageProvider
	logger  arbor.ILogger
}

// NewItemHandler creates the item API handler.
func NewItemHandler(storage interfaces.DatabaseStorageProvider, logger arbor.ILogger) *ItemHandler {
	return &ItemHandler{storage: storage, logger: logger}
}

// ListHandler handles GET /api/items. Pass ?q= for full-text search on
// backends that support it; others fall back to substring matching.
func (h *ItemHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	limit, offset := GetListParams(r)

	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		items, err := h.storage.SearchItems(r.Context(), q, limit)
		if err != nil {
			h.logger.Warn().Err(err).Str("query", q).Msg("Item search failed")
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"items": items,
			"count": len(items),
		})
		return
	}

	items, err := h.storage.ListItems(r.Context(), &interfaces.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		h.logger.Warn().Err(err).Msg("Item list failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	total, err := h.storage.CountItems(r.Context())
	if err != nil {
		total = len(items)
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"count": len(items),
		"total": total,
	})
}

// GetHandler handles GET /api/items/{id}: the item plus its extracted
// metadata and summary when present.
func (h *ItemHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/items/")
	if id == "" || strings.Contains(id, "/") {
		WriteError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	item, err := h.storage.GetItem(r.Context(), id)
	if errors.Is(err, interfaces.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		h.logger.Warn().Err(err).Str("item_id", id).Msg("Item lookup failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	response := map[string]interface{}{"item": item}

	if meta, err := h.storage.GetMetadata(r.Context(), id); err == nil {
		// Returned text can be large; trim the payload to descriptive fields.
		response["metadata"] = &models.ItemMetadata{
			ItemID:    meta.ItemID,
			Archiver:  meta.Archiver,
			Title:     meta.Title,
			Byline:    meta.Byline,
			SiteName:  meta.SiteName,
			Excerpt:   meta.Excerpt,
			Language:  meta.Language,
			WordCount: meta.WordCount,
			UpdatedAt: meta.UpdatedAt,
		}
	}
	if summary, err := h.storage.GetSummary(r.Context(), id); err == nil {
		response["summary"] = summary
	}

	WriteJSON(w, http.StatusOK, response)
}
