package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/campuscrm/libs/httpx"
	"github.com/md-rashed-zaman/campuscrm/services/student-service/internal/commands"
	"github.com/md-rashed-zaman/campuscrm/services/student-service/internal/storage"
)

// StudentHandler is the HTTP face of the command service. It owns request
// decoding and status codes only; all business rules live in commands.
type StudentHandler struct {
	svc    *commands.Service
	repo   *storage.StudentRepository
	logger *slog.Logger
}

func NewStudentHandler(svc *commands.Service, repo *storage.StudentRepository, logger *slog.Logger) *StudentHandler {
	return &StudentHandler{svc: svc, repo: repo, logger: logger}
}

type createStudentRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Status    string `json:"status"`
	TenantID  string `json:"tenant_id"`
}

type updateStudentRequest struct {
	StudentID string `json:"student_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Status    string `json:"status"`
	TenantID  string `json:"tenant_id"`
}

type deleteStudentRequest struct {
	StudentID string `json:"student_id"`
	TenantID  string `json:"tenant_id"`
}

type studentItem struct {
	StudentID string `json:"student_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func (h *StudentHandler) Students(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.create(w, r)
	case http.MethodGet:
		h.list(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *StudentHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createStudentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	id, err := h.svc.CreateStudent(r.Context(), commands.CreateStudent{
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Email:         req.Email,
		Status:        req.Status,
		TenantID:      req.TenantID,
		CorrelationID: httpx.RequestIDFromContext(r.Context()),
	})
	if err != nil {
		h.writeCommandError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"student_id": id})
}

func (h *StudentHandler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req updateStudentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	err := h.svc.UpdateStudent(r.Context(), commands.UpdateStudent{
		StudentID:     req.StudentID,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Email:         req.Email,
		Status:        req.Status,
		TenantID:      req.TenantID,
		CorrelationID: httpx.RequestIDFromContext(r.Context()),
	})
	if err != nil {
		h.writeCommandError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"student_id": req.StudentID, "status": "updated"})
}

func (h *StudentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req deleteStudentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	err := h.svc.DeleteStudent(r.Context(), commands.DeleteStudent{
		StudentID:     req.StudentID,
		TenantID:      req.TenantID,
		CorrelationID: httpx.RequestIDFromContext(r.Context()),
	})
	if err != nil {
		h.writeCommandError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"student_id": req.StudentID, "status": "deleted"})
}

func (h *StudentHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	students, err := h.repo.List(r.Context(), limit)
	if err != nil {
		http.Error(w, "failed to list students", http.StatusInternalServerError)
		return
	}

	items := make([]studentItem, 0, len(students))
	for _, s := range students {
		items = append(items, studentItem{
			StudentID: s.ID,
			FirstName: s.FirstName,
			LastName:  s.LastName,
			Email:     s.Email,
			Status:    string(s.Status),
			CreatedAt: s.CreatedAt.UTC().Format(time.RFC3339),
			UpdatedAt: s.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *StudentHandler) writeCommandError(w http.ResponseWriter, err error) {
	var verrs commands.ValidationErrors
	if errors.As(err, &verrs) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": verrs})
		return
	}
	if storage.IsNotFound(err) {
		http.Error(w, "student not found", http.StatusNotFound)
		return
	}
	h.logger.Error("student command failed", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
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
