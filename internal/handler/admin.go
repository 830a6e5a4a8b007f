package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/correctme/examgrader/internal/auth"
	appI18n "github.com/correctme/examgrader/internal/i18n"
	"github.com/correctme/examgrader/internal/model"
)

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

type createUserRequest struct {
	Username    string         `json:"username"`
	DisplayName string         `json:"display_name"`
	Password    string         `json:"password"`
	Role        model.UserRole `json:"role"`
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}
	switch req.Role {
	case "":
		req.Role = model.UserRoleInstructor
	case model.UserRoleStudent, model.UserRoleInstructor, model.UserRoleAdmin:
	default:
		writeError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Username
	}

	existing, err := h.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if existing != nil {
		writeError(w, r, http.StatusConflict, "ErrBadRequest")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	id, err := h.store.CreateUser(r.Context(), model.User{
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		PasswordHash: hash,
		Role:         req.Role,
		Active:       true,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}
	if current := model.UserFromContext(r.Context()); current != nil && current.ID == id {
		writeError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}
	if err := h.store.ToggleUserActive(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUploadExams(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}

	file, header, err := r.FormFile("exams_file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}

	res, err := h.store.ImportExams(r.Context(), header.Filename, data)
	if err != nil {
		slog.Warn("exam upload rejected", "filename", header.Filename, "error", err)
		writeError(w, r, http.StatusBadRequest, "ErrBadRequest")
		return
	}

	msg := appI18n.Tp(r.Context(), "ExamsImported", res.Count)
	if res.Unchanged {
		msg = appI18n.T(r.Context(), "ImportDuplicate")
	}
	slog.Info("uploaded exams via admin", "filename", header.Filename, "count", res.Count, "unchanged", res.Unchanged)
	writeJSON(w, http.StatusOK, map[string]any{"result": res, "message": msg})
}
