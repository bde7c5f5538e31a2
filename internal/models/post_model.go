package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// PlatformOverrides carries per-platform publishing options keyed by
// platform tag, e.g. {"facebook": {"page_id": "123"}}. Stored as JSONB.
type PlatformOverrides map[string]map[string]string

func (o PlatformOverrides) Value() (driver.Value, error) {
	if o == nil {
		return nil, nil
	}
	return json.Marshal(o)
}

func (o *PlatformOverrides) Scan(src interface{}) error {
	if src == nil {
		*o = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return errors.New("platform overrides: unsupported scan source")
	}
	return json.Unmarshal(b, o)
}

type Post struct {
	ID          int64             `db:"id" json:"id"`
	UserID      int64             `db:"user_id" json:"user_id"`
	Content     string            `db:"content" json:"content"`
	Title       string            `db:"title" json:"title"`
	MediaID     *int64            `db:"media_id" json:"media_id,omitempty"`
	IsScheduled bool              `db:"is_scheduled" json:"is_scheduled"`
	ScheduledAt *time.Time        `db:"scheduled_at" json:"scheduled_at,omitempty"`
	Overrides   PlatformOverrides `db:"content_metadata" json:"content_metadata,omitempty"`
	Status      string            `db:"status" json:"status"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at" json:"updated_at"`

	Platforms []*PostPlatform `db:"-" json:"platforms,omitempty"`
}

type Media struct {
	ID             int64     `db:"id" json:"id"`
	UserID         int64     `db:"user_id" json:"user_id"`
	FileURL        string    `db:"file_url" json:"file_url"`
	StorageKey     string    `db:"storage_key" json:"storage_key"`
	FileType       string    `db:"file_type" json:"file_type"`
	MediaType      string    `db:"media_type" json:"media_type"`
	StorageDeleted bool      `db:"storage_deleted" json:"-"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// PostPlatform is the per-target publication record for a Post. One row
// per requested platform, created pending by the submission path and
// mutated only by the publishing worker afterwards.
type PostPlatform struct {
	ID           int64     `db:"id" json:"id"`
	PostID       int64     `db:"post_id" json:"post_id"`
	Platform     string    `db:"platform" json:"platform"`
	Status       string    `db:"status" json:"status"`
	ExternalID   string    `db:"external_id" json:"external_id,omitempty"`
	ErrorMessage string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

const (
	PostStatusPending    = "pending"
	PostStatusScheduled  = "scheduled"
	PostStatusPublishing = "publishing"
	PostStatusPublished  = "published"
	PostStatusPartial    = "partial"
)

const (
	TargetStatusPending   = "pending"
	TargetStatusPublished = "published"
	TargetStatusFailed    = "failed"
)

const (
	MediaTypeImage = "image"
	MediaTypeVideo = "video"
	MediaTypeReel  = "reel"
)
