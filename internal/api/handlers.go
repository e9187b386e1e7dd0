package api

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"

	"inkwell/internal/auth"
	"inkwell/internal/blob"
	"inkwell/internal/models"
	"inkwell/internal/observability/metrics"
	"inkwell/internal/storage"
)

// DefaultPageSize is the fixed feed slice size; clients do not choose it.
const DefaultPageSize = 2

const defaultUploadConcurrency = 4

// Handler carries the collaborators shared by every operation.
type Handler struct {
	Store    storage.Repository
	Tokens   *auth.TokenManager
	Blobs    blob.Store
	Logger   *slog.Logger
	Metrics  *metrics.Recorder
	PageSize int

	uploadSlots *semaphore.Weighted
}

// HandlerOption tunes optional Handler behaviour.
type HandlerOption func(*Handler)

// WithPageSize overrides the feed slice size.
func WithPageSize(size int) HandlerOption {
	return func(h *Handler) {
		if size > 0 {
			h.PageSize = size
		}
	}
}

// WithUploadConcurrency bounds how many image uploads are processed at once.
func WithUploadConcurrency(limit int) HandlerOption {
	return func(h *Handler) {
		if limit > 0 {
			h.uploadSlots = semaphore.NewWeighted(int64(limit))
		}
	}
}

// WithMetrics installs the recorder surfaced on the health endpoint.
func WithMetrics(recorder *metrics.Recorder) HandlerOption {
	return func(h *Handler) {
		if recorder != nil {
			h.Metrics = recorder
		}
	}
}

// NewHandler wires the operation handlers around their collaborators.
func NewHandler(store storage.Repository, tokens *auth.TokenManager, blobs blob.Store, logger *slog.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	handler := &Handler{
		Store:       store,
		Tokens:      tokens,
		Blobs:       blobs,
		Logger:      logger,
		Metrics:     metrics.Default(),
		PageSize:    DefaultPageSize,
		uploadSlots: semaphore.NewWeighted(defaultUploadConcurrency),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(handler)
		}
	}
	return handler
}

func (h *Handler) pageSize() int {
	if h.PageSize > 0 {
		return h.PageSize
	}
	return DefaultPageSize
}

type userResponse struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	Name      string   `json:"name"`
	Status    string   `json:"status"`
	Posts     []string `json:"posts"`
	CreatedAt string   `json:"createdAt"`
	UpdatedAt string   `json:"updatedAt"`
}

func newUserResponse(user models.User) userResponse {
	posts := user.Posts
	if posts == nil {
		posts = []string{}
	}
	return userResponse{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Status:    user.Status,
		Posts:     append([]string(nil), posts...),
		CreatedAt: user.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt: user.UpdatedAt.Format(time.RFC3339Nano),
	}
}

type postResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	ImageKey  string `json:"imageKey,omitempty"`
	CreatorID string `json:"creatorId"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

func newPostResponse(post models.Post) postResponse {
	return postResponse{
		ID:        post.ID,
		Title:     post.Title,
		Content:   post.Content,
		ImageKey:  post.ImageKey,
		CreatorID: post.CreatorID,
		CreatedAt: post.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt: post.UpdatedAt.Format(time.RFC3339Nano),
	}
}

// notFoundHandler keeps unknown API paths inside the JSON error envelope.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeFailureMessage(w, http.StatusNotFound, "Not found.")
}
