package domain

import "time"

// ExternalRecord is a transient candidate fetched from a source, before any
// dedup or persistence decision. It is converted 1:1 into an Item unless the
// duplicate index already knows its ExternalID.
type ExternalRecord struct {
	Source       string
	ExternalID   string
	URL          string
	Title        string
	Description  string
	ContentText  string
	Author       string
	ThumbnailURL string
	Tags         []string
	Metadata     Metadata
	CreatedAt    *time.Time
	SavedAt      *time.Time
}
