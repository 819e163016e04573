package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"unisaved/internal/domain"
)

// ItemRepository handles saved-item persistence. Items are create-only from
// the sync engine's point of view; the (source, source_id) unique index is
// the backstop against concurrent double-inserts.
type ItemRepository struct {
	db *gorm.DB
}

// NewItemRepository creates a new ItemRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ItemRepository: repository instance bound to db.
func NewItemRepository(db *gorm.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// CreateFromRecord converts a fetched record into an Item and inserts it.
// A (source, source_id) collision fails with domain.ErrDuplicateItem rather
// than overwriting.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - rec: candidate record to persist.
// Returns:
//   - *domain.Item: created item.
//   - error: domain.ErrDuplicateItem on conflict, other non-nil on failure.
func (r *ItemRepository) CreateFromRecord(ctx context.Context, rec *domain.ExternalRecord) (*domain.Item, error) {
	if rec.ExternalID == "" {
		return nil, errors.New("record has empty external id")
	}
	if rec.Title == "" {
		return nil, fmt.Errorf("record %s has empty title", rec.ExternalID)
	}

	item := &domain.Item{
		ID:             uuid.New().String(),
		Source:         rec.Source,
		SourceID:       rec.ExternalID,
		URL:            rec.URL,
		Title:          rec.Title,
		Description:    rec.Description,
		ContentText:    rec.ContentText,
		Author:         rec.Author,
		ThumbnailURL:   rec.ThumbnailURL,
		Tags:           domain.StringArray(rec.Tags),
		SourceMetadata: rec.Metadata,
		CreatedAt:      rec.CreatedAt,
		SavedAt:        rec.SavedAt,
		SyncedAt:       time.Now().UTC(),
	}

	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: %s/%s", domain.ErrDuplicateItem, rec.Source, rec.ExternalID)
		}
		return nil, err
	}
	return item, nil
}

// ExistingSourceIDs returns the set of known source_ids for one source. The
// coordinator preloads this at run start as the duplicate index.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - source: source platform name.
// Returns:
//   - map[string]struct{}: set of known external ids.
//   - error: non-nil if the query fails.
func (r *ItemRepository) ExistingSourceIDs(ctx context.Context, source string) (map[string]struct{}, error) {
	var ids []string
	if err := r.db.WithContext(ctx).
		Model(&domain.Item{}).
		Where("source = ?", source).
		Pluck("source_id", &ids).Error; err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// GetByID retrieves an item by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: item ID.
// Returns:
//   - *domain.Item: item record if found.
//   - error: non-nil if lookup fails.
func (r *ItemRepository) GetByID(ctx context.Context, id string) (*domain.Item, error) {
	var item domain.Item
	if err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// CountBySource counts items for a source.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - source: source platform name.
// Returns:
//   - int64: number of matching records.
//   - error: non-nil if the query fails.
func (r *ItemRepository) CountBySource(ctx context.Context, source string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Item{}).Where("source = ?", source).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// SetMediaPath records the archived media location for an item.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: item ID.
//   - path: storage key or URL of the archived media.
// Returns:
//   - error: non-nil if the update fails.
func (r *ItemRepository) SetMediaPath(ctx context.Context, id, path string) error {
	return r.db.WithContext(ctx).
		Model(&domain.Item{}).
		Where("id = ?", id).
		Update("media_path", path).Error
}
