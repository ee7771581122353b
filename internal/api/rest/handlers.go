package rest

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/complyco/entity-screening-backend/internal/domain/errors"
	domain "github.com/complyco/entity-screening-backend/internal/domain/screening"
	"github.com/complyco/entity-screening-backend/internal/domain/watchlist"
	"github.com/complyco/entity-screening-backend/internal/service/screening"
)

// WebhookRouter delivers provider callbacks to the right bureau adapter
type WebhookRouter interface {
	HandleWebhook(ctx context.Context, provider string, payload []byte) error
}

// Handlers exposes the screening API over HTTP
type Handlers struct {
	screener   screening.Screener
	watchlists watchlist.Store
	webhooks   WebhookRouter
	logger     *zap.Logger
}

func NewHandlers(screener screening.Screener, watchlists watchlist.Store, webhooks WebhookRouter, logger *zap.Logger) *Handlers {
	return &Handlers{
		screener:   screener,
		watchlists: watchlists,
		webhooks:   webhooks,
		logger:     logger.Named("api"),
	}
}

// RegisterRoutes wires every endpoint onto the mux
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.handleHealth)

	mux.HandleFunc("POST /api/v1/screenings", h.handleScreen)
	mux.HandleFunc("GET /api/v1/screenings/{id}", h.handleGetResult)
	mux.HandleFunc("POST /api/v1/screenings/{id}/review", h.handleReview)
	mux.HandleFunc("GET /api/v1/entities/{entityID}/screenings", h.handleHistory)

	mux.HandleFunc("GET /api/v1/watchlists", h.handleListWatchlists)
	mux.HandleFunc("POST /api/v1/watchlists/import", h.handleImportWatchlist)
	mux.HandleFunc("DELETE /api/v1/watchlists/{id}", h.handleDeactivateWatchlist)

	mux.HandleFunc("POST /api/v1/webhooks/{provider}", h.handleWebhook)
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) handleScreen(w http.ResponseWriter, r *http.Request) {
	var req domain.ScreeningRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.NewValidationError("INVALID_JSON", "request body is not valid JSON"))
		return
	}

	job, err := h.screener.Screen(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	// 202: the verdict arrives asynchronously under the same id.
	h.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":    job.JobID,
		"result_id": job.JobID,
		"status":    job.Status,
	})
}

func (h *Handlers) handleGetResult(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, errors.NewValidationError("INVALID_ID", "result id must be a UUID"))
		return
	}

	result, err := h.screener.GetResult(r.Context(), id)
	if err != nil {
		if stderrors.Is(err, errors.ErrResultPending) {
			h.writeJSON(w, http.StatusAccepted, map[string]interface{}{
				"result_id": id,
				"status":    "pending",
			})
			return
		}
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

type reviewRequest struct {
	ReviewedBy string `json:"reviewed_by"`
	Notes      string `json:"notes"`
}

func (h *Handlers) handleReview(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, errors.NewValidationError("INVALID_ID", "result id must be a UUID"))
		return
	}

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.NewValidationError("INVALID_JSON", "request body is not valid JSON"))
		return
	}

	result, err := h.screener.ReviewFalsePositive(r.Context(), id, req.ReviewedBy, req.Notes)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) handleHistory(w http.ResponseWriter, r *http.Request) {
	results, err := h.screener.GetHistory(r.Context(), r.PathValue("entityID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if results == nil {
		results = []*domain.ScreeningResult{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"screenings": results})
}

func (h *Handlers) handleListWatchlists(w http.ResponseWriter, r *http.Request) {
	lists, err := h.watchlists.ListActive(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	// Entries stay server-side; the listing is metadata only.
	type summary struct {
		ID      uuid.UUID      `json:"id"`
		Name    string         `json:"name"`
		Type    watchlist.Type `json:"type"`
		Source  string         `json:"source"`
		Version int            `json:"version"`
		Entries int            `json:"entry_count"`
	}
	summaries := make([]summary, 0, len(lists))
	for _, wl := range lists {
		summaries = append(summaries, summary{
			ID: wl.ID, Name: wl.Name, Type: wl.Type,
			Source: wl.Source, Version: wl.Version, Entries: len(wl.Entries),
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"watchlists": summaries})
}

type importRequest struct {
	Name    string            `json:"name"`
	Type    watchlist.Type    `json:"type"`
	Source  string            `json:"source"`
	Entries []watchlist.Entry `json:"entries"`
}

func (h *Handlers) handleImportWatchlist(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, errors.NewValidationError("INVALID_JSON", "request body is not valid JSON"))
		return
	}

	wl, err := h.watchlists.BulkImport(r.Context(), req.Name, req.Type, req.Source, req.Entries)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":      wl.ID,
		"version": wl.Version,
		"entries": len(wl.Entries),
	})
}

func (h *Handlers) handleDeactivateWatchlist(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, errors.NewValidationError("INVALID_ID", "watchlist id must be a UUID"))
		return
	}
	if err := h.watchlists.Deactivate(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.writeError(w, errors.NewValidationError("UNREADABLE_BODY", "could not read webhook payload"))
		return
	}

	if err := h.webhooks.HandleWebhook(r.Context(), r.PathValue("provider"), payload); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("response encoding failed", zap.Error(err))
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		h.logger.Error("unclassified error", zap.Error(err))
		appErr = errors.NewInternalError("internal error")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":    appErr.Code,
			"message": appErr.Message,
		},
	})
}
