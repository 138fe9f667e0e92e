package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/learnpath/internal/i18n"
	"github.com/pavelanni/learnpath/internal/model"
)

const maxBodyBytes = 1 << 20

// Store is the read side of the document store used by the API.
type Store interface {
	Ping(ctx context.Context) error
	ListTopics(ctx context.Context) ([]model.Topic, error)
	ListLessonsByTopic(ctx context.Context, topicID string) ([]model.Lesson, error)
	GetLesson(ctx context.Context, id string) (model.Lesson, error)
	GetProgress(ctx context.Context, userID, lessonID string) (model.ProgressRecord, error)
	GetProfile(ctx context.Context, userID string) (model.UserProfile, error)
	SyncProfile(ctx context.Context, userID, email, name string) (model.UserProfile, error)
}

// Submitter grades quiz submissions.
type Submitter interface {
	Submit(ctx context.Context, userID, lessonID string, answers []model.Answer) (model.SubmissionResult, error)
}

// Verifier resolves a bearer token to a user.
type Verifier interface {
	Verify(token string) (*model.User, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    Store
	submit   Submitter
	verifier Verifier
}

// New creates a new Handler.
func New(s Store, sub Submitter, v Verifier) *Handler {
	return &Handler{store: s, submit: sub, verifier: v}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/auth/sync", h.handleAuthSync)
		r.Get("/profile", h.handleProfile)
		r.Get("/topics", h.handleTopics)
		r.Get("/topics/{topicID}/lessons", h.handleTopicLessons)
		r.Get("/lessons/{lessonID}", h.handleLesson)
		r.Get("/progress/{lessonID}", h.handleProgress)
		r.Post("/assessments/{lessonID}/submit", h.handleSubmit)
	})
}

type submitRequest struct {
	Answers []model.Answer `json:"answers"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	lessonID := chi.URLParam(r, "lessonID")

	// A body that fails to decode is submitted as no answers, so the lesson
	// lookup runs first and an unknown lesson reports 404 before the 400.
	var req submitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Debug("malformed submission body", "lesson_id", lessonID, "error", err)
		req.Answers = nil
	}

	res, err := h.submit.Submit(r.Context(), user.ID, lessonID, req.Answers)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := h.store.ListTopics(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if topics == nil {
		topics = []model.Topic{}
	}
	writeJSON(w, http.StatusOK, topics)
}

func (h *Handler) handleTopicLessons(w http.ResponseWriter, r *http.Request) {
	lessons, err := h.store.ListLessonsByTopic(r.Context(), chi.URLParam(r, "topicID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	public := make([]model.Lesson, 0, len(lessons))
	for _, l := range lessons {
		public = append(public, l.Public())
	}
	writeJSON(w, http.StatusOK, public)
}

func (h *Handler) handleLesson(w http.ResponseWriter, r *http.Request) {
	l, err := h.store.GetLesson(r.Context(), chi.URLParam(r, "lessonID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l.Public())
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	rec, err := h.store.GetProgress(r.Context(), user.ID, chi.URLParam(r, "lessonID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	p, err := h.store.GetProfile(r.Context(), user.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type syncRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

func (h *Handler) handleAuthSync(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())

	var req syncRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	email, name := req.Email, req.DisplayName
	if email == "" {
		email = user.Email
	}
	if name == "" {
		name = user.Name
	}

	p, err := h.store.SyncProfile(r.Context(), user.ID, email, name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		slog.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %w: %v", model.ErrInvalidInput, err)
	}
	if dec.More() {
		return fmt.Errorf("decode body: trailing data: %w", model.ErrInvalidInput)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("marshal response", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError maps err to a status code and a localized message. Details of
// unclassified errors are logged, never returned.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	msgID := appI18n.ErrorMessage(err)
	status := http.StatusInternalServerError
	switch msgID {
	case appI18n.MsgErrUnauthenticated:
		status = http.StatusUnauthorized
	case appI18n.MsgErrInvalidInput:
		status = http.StatusBadRequest
	case appI18n.MsgErrNotFound:
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		slog.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": appI18n.T(r.Context(), msgID)})
}
