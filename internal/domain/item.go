package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// StringArray is a custom type for storing string arrays as JSON in the database.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the slice.
//   - error: non-nil if marshaling fails.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StringArray")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// Metadata is a custom type for storing source-specific JSON metadata in the database.
type Metadata map[string]interface{}

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the map.
//   - error: non-nil if marshaling fails.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return json.Marshal(m)
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = Metadata{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan Metadata")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, m)
}

// Item represents one saved item aggregated from an external platform.
// The (source, source_id) pair is unique across the store; creation attempts
// that violate this must fail rather than silently overwrite.
type Item struct {
	ID             string      `gorm:"type:text;primaryKey" json:"id"`
	Source         string      `gorm:"type:text;not null;index:idx_items_source,unique" json:"source"`
	SourceID       string      `gorm:"type:text;not null;index:idx_items_source,unique" json:"source_id"`
	URL            string      `gorm:"type:text" json:"url,omitempty"`
	Title          string      `gorm:"type:text;not null" json:"title"`
	Description    string      `gorm:"type:text" json:"description,omitempty"`
	ContentText    string      `gorm:"type:text" json:"content_text,omitempty"`
	Author         string      `gorm:"type:text" json:"author,omitempty"`
	ThumbnailURL   string      `gorm:"type:text" json:"thumbnail_url,omitempty"`
	MediaPath      string      `gorm:"type:text" json:"media_path,omitempty"`
	Tags           StringArray `gorm:"type:text" json:"tags"`
	SourceMetadata Metadata    `gorm:"type:text" json:"source_metadata,omitempty"`
	CreatedAt      *time.Time  `json:"created_at,omitempty"`
	SavedAt        *time.Time  `json:"saved_at,omitempty"`
	SyncedAt       time.Time   `json:"synced_at"`
}

// TableName returns the database table name for Item.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Item) TableName() string {
	return "items"
}
