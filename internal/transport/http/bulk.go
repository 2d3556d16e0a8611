package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"accessfabric/internal/apperrors"
	"accessfabric/internal/bulkprocessor"
	"accessfabric/internal/domain"
	"accessfabric/internal/requestctx"
	"accessfabric/internal/transport/http/httputil"
)

// BulkHandler fronts bulkprocessor.Processor with the bulk-ingest RPC from
// spec.md §6: ProcessEvents(batch, ignore_preexisting), for seeding a shard
// or replaying a batch captured from another shard's event cache.
type BulkHandler struct {
	processor *bulkprocessor.Processor
	log       *slog.Logger
}

// NewBulkHandler constructs a BulkHandler.
func NewBulkHandler(processor *bulkprocessor.Processor, log *slog.Logger) *BulkHandler {
	if log == nil {
		log = slog.Default()
	}
	return &BulkHandler{processor: processor, log: log}
}

// Register mounts the bulk-ingest endpoint on r.
func (h *BulkHandler) Register(r chi.Router) {
	r.Post("/bulk/events", h.handleProcessEvents)
}

// wireEvent is the JSON shape of a batch element. occurred_time is passed
// to the processor as given; an omitted value stays the zero time, which
// the store records as is and rejects as retrograde once any later event
// is on record.
type wireEvent struct {
	EventID       string    `json:"event_id"`
	Kind          string    `json:"kind"`
	Action        string    `json:"action"`
	Payload       []string  `json:"payload"`
	OccurredTime  time.Time `json:"occurred_time"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

type processEventsRequest struct {
	Events            []wireEvent `json:"events"`
	IgnorePreexisting bool        `json:"ignore_preexisting"`
}

func (r *processEventsRequest) Validate() error {
	if len(r.Events) == 0 {
		return apperrors.New(apperrors.CodeValidation, "http", "events must be non-empty")
	}
	for _, e := range r.Events {
		if e.EventID == "" {
			return apperrors.New(apperrors.CodeValidation, "http", "event_id is required")
		}
		if _, err := uuid.Parse(e.EventID); err != nil {
			return apperrors.New(apperrors.CodeValidation, "http", "event_id must be a uuid")
		}
		if len(e.Payload) == 0 || len(e.Payload) > 3 {
			return apperrors.New(apperrors.CodeValidation, "http", "payload must carry 1 to 3 fields")
		}
	}
	return nil
}

type processEventsResponse struct {
	Applied int `json:"applied"`
	Skipped int `json:"skipped"`
}

func (h *BulkHandler) handleProcessEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestctx.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[processEventsRequest](w, r, h.log, ctx, requestID)
	if !ok {
		return
	}

	events := make([]domain.Event, len(req.Events))
	for i, e := range req.Events {
		id, err := uuid.Parse(e.EventID)
		if err != nil {
			httputil.WriteError(w, apperrors.New(apperrors.CodeValidation, "http", "event_id must be a uuid"))
			return
		}
		var payload [3]string
		copy(payload[:], e.Payload)
		events[i] = domain.Event{
			EventID:       id,
			Kind:          domain.Kind(e.Kind),
			Action:        domain.Action(e.Action),
			Payload:       payload,
			Occurred:      e.OccurredTime,
			CorrelationID: e.CorrelationID,
		}
	}

	result, err := h.processor.ProcessEvents(ctx, events, req.IgnorePreexisting)
	if err != nil {
		h.log.ErrorContext(ctx, "bulk process events failed", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, processEventsResponse{Applied: result.Applied, Skipped: result.Skipped})
}
