package domain

import "time"

// MusicMeta carries optional soundtrack metadata attached at publish time.
type MusicMeta struct {
	Title  string `json:"title,omitempty"`
	Artist string `json:"artist,omitempty"`
	URL    string `json:"url,omitempty"`
}

// Video is the published artifact created from a DRAFT task. It is created
// exactly once per source task; the back-reference is informational, not
// ownership.
type Video struct {
	ID           string
	OwnerID      string
	VideoURL     string
	Description  string
	Hashtags     []string
	Music        *MusicMeta
	SourceTaskID string
	CreatedAt    time.Time
}
