package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/campuscrm/services/prospect-service/internal/projection"
)

// ProspectHandler serves the folded read model. Read-only: all writes happen
// through the event applier.
type ProspectHandler struct {
	repo   *projection.Repository
	logger *slog.Logger
}

func NewProspectHandler(repo *projection.Repository, logger *slog.Logger) *ProspectHandler {
	return &ProspectHandler{repo: repo, logger: logger}
}

type prospectItem struct {
	StudentID string `json:"student_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Status    string `json:"status"`
	Version   int64  `json:"version"`
	UpdatedAt string `json:"updated_at"`
}

func (h *ProspectHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	summaries, err := h.repo.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("prospect list failed", "err", err)
		http.Error(w, "failed to list prospects", http.StatusInternalServerError)
		return
	}

	items := make([]prospectItem, 0, len(summaries))
	for _, p := range summaries {
		items = append(items, prospectItem{
			StudentID: p.StudentID,
			FirstName: p.FirstName,
			LastName:  p.LastName,
			Email:     p.Email,
			Status:    p.Status,
			Version:   p.Version,
			UpdatedAt: p.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, items)
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
