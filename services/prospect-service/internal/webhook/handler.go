package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/campuscrm/libs/events"
	"github.com/md-rashed-zaman/campuscrm/services/prospect-service/internal/adapter"
	"github.com/md-rashed-zaman/campuscrm/services/prospect-service/internal/projection"
)

// ValidationKeyHeader carries the optional shared secret configured on the
// push subscription. When the service is configured with a key, requests
// without a matching header are rejected before the body is read.
const ValidationKeyHeader = "X-Validation-Key"

const maxBodyBytes = 1 << 20 // 1 MiB hard cap

// Applier is the projection entry point the handler drives. Satisfied by
// *projection.Applier.
type Applier interface {
	Apply(ctx context.Context, env events.Envelope) (projection.Outcome, error)
}

// Handler receives pushed event batches over HTTP. It answers the
// subscription-validation handshake itself and feeds everything else through
// the applier one envelope at a time.
type Handler struct {
	normalizer    *adapter.Normalizer
	applier       Applier
	validationKey string
	logger        *slog.Logger
}

func NewHandler(normalizer *adapter.Normalizer, applier Applier, validationKey string, logger *slog.Logger) *Handler {
	return &Handler{normalizer: normalizer, applier: applier, validationKey: validationKey, logger: logger}
}

func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.authorized(r) {
		http.Error(w, "invalid validation key", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	envs, handshake, err := h.normalizer.Normalize(body)
	if err != nil {
		if errors.Is(err, adapter.ErrMalformedBatch) {
			http.Error(w, "malformed event batch", http.StatusBadRequest)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if handshake != nil {
		// Validation handshake: echo the code, touch nothing else.
		h.logger.Info("subscription validation handshake answered")
		writeJSON(w, http.StatusOK, map[string]string{"validationResponse": handshake.ValidationCode})
		return
	}

	counts := map[projection.Outcome]int{}
	for _, env := range envs {
		outcome, err := h.applier.Apply(r.Context(), env)
		if err != nil {
			// A 5xx tells the push transport to redeliver the batch; the
			// inbox absorbs the events already applied.
			h.logger.Error("event apply failed", "event_id", env.EventID, "event_type", env.EventType, "err", err)
			http.Error(w, "failed to apply events", http.StatusInternalServerError)
			return
		}
		counts[outcome]++
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"received":  len(envs),
		"created":   counts[projection.OutcomeCreated],
		"applied":   counts[projection.OutcomeApplied],
		"duplicate": counts[projection.OutcomeDuplicate],
		"stale":     counts[projection.OutcomeStale],
		"skipped":   counts[projection.OutcomeSkipped],
	})
}

// authorized checks the shared secret in constant time. An empty configured
// key disables the check entirely.
func (h *Handler) authorized(r *http.Request) bool {
	if h.validationKey == "" {
		return true
	}
	got := r.Header.Get(ValidationKeyHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.validationKey)) == 1
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	raw, err := json.Marshal(body)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}
