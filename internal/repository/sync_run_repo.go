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

// SyncRunRepository is the persisted run ledger. A run is created in state
// running and finalized exactly once; finalization guards on the current
// status so a terminal row is never mutated again.
type SyncRunRepository struct {
	db *gorm.DB
}

// NewSyncRunRepository creates a new SyncRunRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *SyncRunRepository: repository instance bound to db.
func NewSyncRunRepository(db *gorm.DB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

// CreateRunning inserts a new run in state running.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - source: source platform name.
// Returns:
//   - *domain.SyncRun: created run record.
//   - error: non-nil if the insert fails.
func (r *SyncRunRepository) CreateRunning(ctx context.Context, source string) (*domain.SyncRun, error) {
	run := &domain.SyncRun{
		ID:        uuid.New().String(),
		Source:    source,
		StartedAt: time.Now().UTC(),
		Status:    domain.RunStatusRunning,
	}
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// IsRunning reports whether a run for source is currently in state running.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - source: source platform name.
// Returns:
//   - bool: true if a running run exists.
//   - error: non-nil if the query fails.
func (r *SyncRunRepository) IsRunning(ctx context.Context, source string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&domain.SyncRun{}).
		Where("source = ? AND status = ?", source, domain.RunStatusRunning).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Complete moves a running run to completed.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: run ID.
//   - itemsIngested: number of items created during the run.
//   - errSummary: joined soft errors, empty if none.
// Returns:
//   - error: non-nil if the run is missing or already terminal.
func (r *SyncRunRepository) Complete(ctx context.Context, id string, itemsIngested int, errSummary string) error {
	return r.finalize(ctx, id, domain.RunStatusCompleted, itemsIngested, errSummary)
}

// Fail moves a running run to failed.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: run ID.
//   - itemsIngested: items created before the failure.
//   - errSummary: fatal error description.
// Returns:
//   - error: non-nil if the run is missing or already terminal.
func (r *SyncRunRepository) Fail(ctx context.Context, id string, itemsIngested int, errSummary string) error {
	return r.finalize(ctx, id, domain.RunStatusFailed, itemsIngested, errSummary)
}

// finalize performs the single legal running -> terminal transition. The
// status guard in the WHERE clause keeps terminal rows immutable.
func (r *SyncRunRepository) finalize(ctx context.Context, id string, status domain.RunStatus, itemsIngested int, errSummary string) error {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&domain.SyncRun{}).
		Where("id = ? AND status = ?", id, domain.RunStatusRunning).
		Updates(map[string]interface{}{
			"status":         status,
			"completed_at":   &now,
			"items_ingested": itemsIngested,
			"errors":         errSummary,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("run %s is not running, refusing transition to %s", id, status)
	}
	return nil
}

// GetByID retrieves a run by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: run ID.
// Returns:
//   - *domain.SyncRun: run record if found.
//   - error: non-nil if lookup fails.
func (r *SyncRunRepository) GetByID(ctx context.Context, id string) (*domain.SyncRun, error) {
	var run domain.SyncRun
	if err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// LatestBySource retrieves the most recent run for a source, or nil if the
// source has never synced.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - source: source platform name.
// Returns:
//   - *domain.SyncRun: latest run or nil.
//   - error: non-nil if the query fails.
func (r *SyncRunRepository) LatestBySource(ctx context.Context, source string) (*domain.SyncRun, error) {
	var run domain.SyncRun
	err := r.db.WithContext(ctx).
		Where("source = ?", source).
		Order("started_at DESC").
		First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

// History retrieves runs ordered newest first, with an optional source
// filter and the total count for pagination.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - source: source filter; empty means all sources.
//   - limit: maximum number of entries to return.
//   - offset: number of entries to skip.
// Returns:
//   - []domain.SyncRun: matching runs.
//   - int64: total number of matching runs.
//   - error: non-nil if the query fails.
func (r *SyncRunRepository) History(ctx context.Context, source string, limit, offset int) ([]domain.SyncRun, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.SyncRun{})
	if source != "" {
		query = query.Where("source = ?", source)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var runs []domain.SyncRun
	if err := query.
		Order("started_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&runs).Error; err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

// ReapStale fails runs stuck at running longer than olderThan. A run can be
// orphaned in that state by process termination; without this it would block
// triggers for its source forever.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - olderThan: staleness threshold measured from started_at.
// Returns:
//   - int64: number of runs reaped.
//   - error: non-nil if the update fails.
func (r *SyncRunRepository) ReapStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-olderThan)
	res := r.db.WithContext(ctx).
		Model(&domain.SyncRun{}).
		Where("status = ? AND started_at < ?", domain.RunStatusRunning, cutoff).
		Updates(map[string]interface{}{
			"status":       domain.RunStatusFailed,
			"completed_at": &now,
			"errors":       fmt.Sprintf("interrupted: no progress for over %s, marked failed at startup", olderThan),
		})
	return res.RowsAffected, res.Error
}

// Cleanup removes runs that started more than days ago.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - days: retention window in days.
// Returns:
//   - int64: number of deleted runs.
//   - error: non-nil if the delete fails.
func (r *SyncRunRepository) Cleanup(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	res := r.db.WithContext(ctx).
		Where("started_at < ?", cutoff).
		Delete(&domain.SyncRun{})
	return res.RowsAffected, res.Error
}
