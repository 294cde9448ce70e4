package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/campuscrm/libs/httpx"
	"github.com/md-rashed-zaman/campuscrm/services/instructor-service/internal/commands"
	"github.com/md-rashed-zaman/campuscrm/services/instructor-service/internal/storage"
)

type InstructorHandler struct {
	svc    *commands.Service
	logger *slog.Logger
}

func NewInstructorHandler(svc *commands.Service, logger *slog.Logger) *InstructorHandler {
	return &InstructorHandler{svc: svc, logger: logger}
}

type createInstructorRequest struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Department string `json:"department"`
	TenantID   string `json:"tenant_id"`
}

type updateInstructorRequest struct {
	InstructorID string `json:"instructor_id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	Department   string `json:"department"`
	TenantID     string `json:"tenant_id"`
}

func (h *InstructorHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req createInstructorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	id, err := h.svc.CreateInstructor(r.Context(), commands.CreateInstructor{
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Email:         req.Email,
		Department:    req.Department,
		TenantID:      req.TenantID,
		CorrelationID: httpx.RequestIDFromContext(r.Context()),
	})
	if err != nil {
		h.writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"instructor_id": id})
}

func (h *InstructorHandler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req updateInstructorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	err := h.svc.UpdateInstructor(r.Context(), commands.UpdateInstructor{
		InstructorID:  req.InstructorID,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Email:         req.Email,
		Department:    req.Department,
		TenantID:      req.TenantID,
		CorrelationID: httpx.RequestIDFromContext(r.Context()),
	})
	if err != nil {
		h.writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"instructor_id": req.InstructorID, "status": "updated"})
}

func (h *InstructorHandler) writeCommandError(w http.ResponseWriter, err error) {
	var verrs commands.ValidationErrors
	if errors.As(err, &verrs) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": verrs})
		return
	}
	if storage.IsNotFound(err) {
		http.Error(w, "instructor not found", http.StatusNotFound)
		return
	}
	h.logger.Error("instructor command failed", "err", err)
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
