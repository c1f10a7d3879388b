// Package publish owns the DRAFT -> {PUBLISHED, REJECTED} decision. Videos
// are created only here, only from a draft, and at most once per source
// task.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"reelgen/internal/domain"
	"reelgen/internal/infra"
	"reelgen/internal/sqlinline"
)

const (
	maxDescriptionLength = 500
	maxHashtags          = 10
)

var lowercase = cases.Lower(language.Und)

type Controller struct {
	sql    infra.SQLExecutor
	logger infra.Logger
}

func NewController(sql infra.SQLExecutor, logger infra.Logger) *Controller {
	return &Controller{sql: sql, logger: logger}
}

// Input carries the user-supplied metadata attached at publish time. The
// asset URL always comes from the task's draft, never from the client.
type Input struct {
	Description string
	Hashtags    []string
	Music       *domain.MusicMeta
}

func (in Input) validate() error {
	return validation.Errors{
		"description": validation.Validate(in.Description, validation.Length(0, maxDescriptionLength)),
		"hashtags":    validation.Validate(in.Hashtags, validation.Length(0, maxHashtags)),
	}.Filter()
}

// Publish converts a DRAFT task into a Video. Re-publishing an already
// PUBLISHED task is a no-op that returns the existing video, so a client
// retry after a dropped response is safe.
func (c *Controller) Publish(ctx context.Context, ownerID, taskID string, in Input) (*domain.Video, error) {
	if err := in.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidSpec, err)
	}

	hashtags := normalizeHashtags(in.Hashtags)
	musicJSON, err := marshalMusic(in.Music)
	if err != nil {
		return nil, err
	}

	videoID := uuid.NewString()
	row := c.sql.QueryRow(ctx, sqlinline.QPublishDraftTask, taskID, ownerID, videoID, in.Description, hashtags, musicJSON)
	video, err := scanVideo(row)
	if err == nil {
		c.logger.Info().Str("task_id", taskID).Str("video_id", video.ID).Msg("publish: video published")
		return video, nil
	}
	if !infra.IsNoRows(err) {
		return nil, fmt.Errorf("publish task %s: %w", taskID, err)
	}

	// No draft and no video under our statement snapshot: either the task is
	// in the wrong state or a concurrent publish committed mid-flight.
	if video, retryErr := c.videoByTask(ctx, taskID, ownerID); retryErr == nil {
		return video, nil
	} else if !infra.IsNoRows(retryErr) {
		return nil, fmt.Errorf("publish task %s: %w", taskID, retryErr)
	}

	return nil, c.decisionStateError(ctx, taskID, ownerID)
}

// Reject discards a DRAFT. No credit movement happens here: the generation
// succeeded, rejection is a content decision.
func (c *Controller) Reject(ctx context.Context, ownerID, taskID string) error {
	var id string
	err := c.sql.QueryRow(ctx, sqlinline.QRejectDraftTask, taskID, ownerID).Scan(&id)
	if err == nil {
		c.logger.Info().Str("task_id", taskID).Msg("publish: draft rejected")
		return nil
	}
	if !infra.IsNoRows(err) {
		return fmt.Errorf("reject task %s: %w", taskID, err)
	}
	return c.decisionStateError(ctx, taskID, ownerID)
}

// ListPublished returns the most recent published videos for the feed.
func (c *Controller) ListPublished(ctx context.Context, limit int) ([]domain.Video, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := c.sql.Query(ctx, sqlinline.QListPublishedVideos, limit)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	var videos []domain.Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, *video)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}
	return videos, nil
}

func (c *Controller) videoByTask(ctx context.Context, taskID, ownerID string) (*domain.Video, error) {
	return scanVideo(c.sql.QueryRow(ctx, sqlinline.QSelectVideoByTask, taskID, ownerID))
}

// decisionStateError distinguishes "no such task" from "task not in draft"
// after a guarded update matched nothing.
func (c *Controller) decisionStateError(ctx context.Context, taskID, ownerID string) error {
	var status, publishStatus string
	err := c.sql.QueryRow(ctx, sqlinline.QSelectTaskDecisionState, taskID, ownerID).Scan(&status, &publishStatus)
	if err != nil {
		if infra.IsNoRows(err) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("load task state: %w", err)
	}
	return domain.ErrInvalidTaskState
}

func scanVideo(row pgx.Row) (*domain.Video, error) {
	var v domain.Video
	var musicJSON []byte
	if err := row.Scan(
		&v.ID,
		&v.OwnerID,
		&v.VideoURL,
		&v.Description,
		&v.Hashtags,
		&musicJSON,
		&v.SourceTaskID,
		&v.CreatedAt,
	); err != nil {
		return nil, err
	}
	if len(musicJSON) > 0 {
		var music domain.MusicMeta
		if err := json.Unmarshal(musicJSON, &music); err != nil {
			return nil, fmt.Errorf("decode music metadata: %w", err)
		}
		v.Music = &music
	}
	return &v, nil
}

func marshalMusic(music *domain.MusicMeta) ([]byte, error) {
	if music == nil {
		return nil, nil
	}
	data, err := json.Marshal(music)
	if err != nil {
		return nil, fmt.Errorf("encode music metadata: %w", err)
	}
	return data, nil
}

// normalizeHashtags lowercases tags, strips leading '#' and whitespace, and
// drops duplicates while keeping first-seen order.
func normalizeHashtags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		t := lowercase.String(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tag), "#")))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
