package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"reelgen/internal/domain"
	"reelgen/internal/publish"
)

type createTaskRequest struct {
	Prompt          string `json:"prompt"`
	Model           string `json:"model"`
	DurationSeconds int    `json:"duration_seconds"`
	AspectRatio     string `json:"aspect_ratio"`
}

type publishTaskRequest struct {
	Description string            `json:"description"`
	Hashtags    []string          `json:"hashtags"`
	Music       *domain.MusicMeta `json:"music,omitempty"`
}

type taskResponse struct {
	ID             string     `json:"id"`
	Status         string     `json:"status"`
	PublishStatus  string     `json:"publish_status,omitempty"`
	DraftAssetURL  string     `json:"draft_asset_url,omitempty"`
	ErrorKind      string     `json:"error_kind,omitempty"`
	ErrorDetail    string     `json:"error_detail,omitempty"`
	CreditsDebited int64      `json:"credits_debited"`
	Refunded       bool       `json:"refunded"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

type videoResponse struct {
	ID           string            `json:"id"`
	OwnerID      string            `json:"owner_id"`
	VideoURL     string            `json:"video_url"`
	Description  string            `json:"description"`
	Hashtags     []string          `json:"hashtags"`
	Music        *domain.MusicMeta `json:"music,omitempty"`
	SourceTaskID string            `json:"source_task_id"`
	CreatedAt    time.Time         `json:"created_at"`
}

func (a *App) TasksCreate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req createTaskRequest
	if err := decodeStrict(r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	t, err := a.Tasks.Create(r.Context(), userID, domain.GenerationSpec{
		Prompt:          req.Prompt,
		Model:           req.Model,
		DurationSeconds: req.DurationSeconds,
		AspectRatio:     req.AspectRatio,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidSpec):
			a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		case errors.Is(err, domain.ErrInsufficientCredits):
			a.error(w, http.StatusPaymentRequired, "insufficient_credits", "not enough credits for this generation")
		case errors.Is(err, domain.ErrProviderFailure):
			a.error(w, http.StatusBadGateway, "provider_error", "provider rejected the generation; credits were refunded")
		default:
			a.Logger.Error().Err(err).Msg("handlers: create task failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to create task")
		}
		return
	}
	a.json(w, http.StatusCreated, toTaskResponse(t))
}

func (a *App) TaskStatus(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	taskID := chi.URLParam(r, "task_id")
	if taskID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "task_id required")
		return
	}

	t, err := a.Tasks.GetStatus(r.Context(), userID, taskID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "task not found")
			return
		}
		a.Logger.Error().Err(err).Str("task_id", taskID).Msg("handlers: task status failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load task")
		return
	}
	a.json(w, http.StatusOK, toTaskResponse(t))
}

func (a *App) TaskPublish(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	taskID := chi.URLParam(r, "task_id")
	if taskID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "task_id required")
		return
	}
	var req publishTaskRequest
	if err := decodeStrict(r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	video, err := a.Publisher.Publish(r.Context(), userID, taskID, publish.Input{
		Description: req.Description,
		Hashtags:    req.Hashtags,
		Music:       req.Music,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidSpec):
			a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		case errors.Is(err, domain.ErrNotFound):
			a.error(w, http.StatusNotFound, "not_found", "task not found")
		case errors.Is(err, domain.ErrInvalidTaskState):
			a.error(w, http.StatusConflict, "invalid_task_state", "task is no longer in draft")
		default:
			a.Logger.Error().Err(err).Str("task_id", taskID).Msg("handlers: publish failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to publish task")
		}
		return
	}
	a.json(w, http.StatusOK, toVideoResponse(video))
}

func (a *App) TaskReject(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	taskID := chi.URLParam(r, "task_id")
	if taskID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "task_id required")
		return
	}

	if err := a.Publisher.Reject(r.Context(), userID, taskID); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			a.error(w, http.StatusNotFound, "not_found", "task not found")
		case errors.Is(err, domain.ErrInvalidTaskState):
			a.error(w, http.StatusConflict, "invalid_task_state", "task is no longer in draft")
		default:
			a.Logger.Error().Err(err).Str("task_id", taskID).Msg("handlers: reject failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to reject task")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toTaskResponse(t *domain.GenerationTask) taskResponse {
	return taskResponse{
		ID:             t.ID,
		Status:         string(t.Status),
		PublishStatus:  string(t.PublishStatus),
		DraftAssetURL:  t.DraftAssetURL,
		ErrorKind:      string(t.ErrorKind),
		ErrorDetail:    t.ErrorDetail,
		CreditsDebited: t.CreditsDebited,
		Refunded:       t.Refunded,
		CreatedAt:      t.CreatedAt,
		CompletedAt:    t.CompletedAt,
	}
}

func toVideoResponse(v *domain.Video) videoResponse {
	return videoResponse{
		ID:           v.ID,
		OwnerID:      v.OwnerID,
		VideoURL:     v.VideoURL,
		Description:  v.Description,
		Hashtags:     v.Hashtags,
		Music:        v.Music,
		SourceTaskID: v.SourceTaskID,
		CreatedAt:    v.CreatedAt,
	}
}
