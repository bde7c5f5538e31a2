package transfer

import "github.com/golang-jwt/jwt/v5"

// MediaDescriptor references an already-uploaded storage object. Upload
// and signing happen in the media service; the pipeline only receives
// the reference.
type MediaDescriptor struct {
	FileURL    string `json:"file_url"`
	StorageKey string `json:"storage_key"`
	FileType   string `json:"file_type"`
	MediaType  string `json:"media_type"`
}

type PostCreation struct {
	Content     string                       `json:"content"`
	Title       string                       `json:"title"`
	Media       *MediaDescriptor             `json:"media,omitempty"`
	Platforms   []string                     `json:"platforms"`
	ScheduledAt string                       `json:"scheduled_at,omitempty"`
	Overrides   map[string]map[string]string `json:"content_metadata,omitempty"`
}

type CustomClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}
