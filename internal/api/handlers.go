package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/clienthq/followup-engine/internal/dispatcher"
	"github.com/clienthq/followup-engine/internal/domain"
	"github.com/clienthq/followup-engine/internal/engagement"
	"github.com/clienthq/followup-engine/internal/pkg/httputil"
	"github.com/clienthq/followup-engine/internal/pkg/logger"
)

// Handlers holds the HTTP handlers and their collaborators.
type Handlers struct {
	dispatcher  *dispatcher.Dispatcher
	tracker     *engagement.Tracker
	queueSecret string
}

// NewHandlers wires the handlers.
func NewHandlers(d *dispatcher.Dispatcher, tracker *engagement.Tracker, queueSecret string) *Handlers {
	return &Handlers{dispatcher: d, tracker: tracker, queueSecret: queueSecret}
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}

type dispatchResponse struct {
	Success      bool                    `json:"success"`
	Message      string                  `json:"message"`
	SuccessCount int                     `json:"successCount"`
	ErrorCount   int                     `json:"errorCount"`
	Processed    int                     `json:"processedCount"`
	Results      []dispatcher.ItemResult `json:"results"`
}

// DispatchRun triggers a dispatch run over due one-shot messages and
// campaigns. Partial failure still returns 200 with the summary so the
// external scheduler doesn't misread it as a total failure.
func (h *Handlers) DispatchRun(w http.ResponseWriter, r *http.Request) {
	summary, err := h.dispatcher.Run(r.Context())
	h.respondSummary(w, summary, err)
}

// DispatchQueue requires the configured bearer secret and additionally
// processes the conditionally-suppressible queue.
func (h *Handlers) DispatchQueue(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		httputil.Unauthorized(w, "missing or invalid bearer token")
		return
	}

	summary, err := h.dispatcher.Run(r.Context())
	if err != nil {
		h.respondSummary(w, summary, err)
		return
	}
	queueSummary, err := h.dispatcher.RunQueue(r.Context())
	if err != nil {
		h.respondSummary(w, summary, err)
		return
	}
	summary.Merge(queueSummary)
	h.respondSummary(w, summary, nil)
}

func (h *Handlers) authorized(r *http.Request) bool {
	if h.queueSecret == "" {
		return false
	}
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.queueSecret)) == 1
}

func (h *Handlers) respondSummary(w http.ResponseWriter, summary *dispatcher.RunSummary, err error) {
	if errors.Is(err, dispatcher.ErrAlreadyRunning) {
		httputil.OK(w, dispatchResponse{
			Success: true,
			Message: "another dispatch run is already in progress",
		})
		return
	}
	if err != nil {
		logger.Error("dispatch run failed", "error", err.Error())
		httputil.InternalError(w, err)
		return
	}

	results := summary.Results
	if results == nil {
		results = []dispatcher.ItemResult{}
	}
	httputil.OK(w, dispatchResponse{
		Success:      true,
		Message:      "dispatch complete",
		SuccessCount: summary.SuccessCount,
		ErrorCount:   summary.ErrorCount,
		Processed:    summary.ProcessedCount,
		Results:      results,
	})
}

type eventRequest struct {
	Event      string         `json:"event"`
	ClientID   string         `json:"clientId"`
	MessageID  string         `json:"messageId"`
	OwnerID    string         `json:"ownerId"`
	BounceType string         `json:"bounceType"`
	Data       map[string]any `json:"data"`
}

// RecordEvent ingests a provider engagement event (bounce, complaint,
// open, click, unsubscribe) and applies it to the client's trust state.
func (h *Handlers) RecordEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Event == "" {
		httputil.BadRequest(w, "event is required")
		return
	}

	err := h.tracker.Record(r.Context(), &domain.AnalyticsEvent{
		OwnerID:    req.OwnerID,
		Event:      domain.AnalyticsEventType(req.Event),
		ClientID:   req.ClientID,
		MessageID:  req.MessageID,
		BounceType: domain.BounceType(req.BounceType),
		Data:       req.Data,
	})
	if err != nil {
		logger.Error("recording engagement event", "event", req.Event, "error", err.Error())
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]bool{"recorded": true})
}

// ReactivateClient clears a client's pause state after manual review.
func (h *Handlers) ReactivateClient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		httputil.BadRequest(w, "client id is required")
		return
	}
	if err := h.tracker.Reactivate(r.Context(), id); err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.OK(w, map[string]bool{"reactivated": true})
}
