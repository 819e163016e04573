package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"unisaved/internal/domain"
	"unisaved/internal/logger"
	"unisaved/internal/source"
)

// ItemStore is the create-only persistence boundary for ingested items.
// Implemented by repository.ItemRepository.
type ItemStore interface {
	CreateFromRecord(ctx context.Context, rec *domain.ExternalRecord) (*domain.Item, error)
	ExistingSourceIDs(ctx context.Context, src string) (map[string]struct{}, error)
}

// RunLedger is the persisted run state machine. Implemented by
// repository.SyncRunRepository.
type RunLedger interface {
	CreateRunning(ctx context.Context, src string) (*domain.SyncRun, error)
	IsRunning(ctx context.Context, src string) (bool, error)
	Complete(ctx context.Context, id string, itemsIngested int, errSummary string) error
	Fail(ctx context.Context, id string, itemsIngested int, errSummary string) error
	GetByID(ctx context.Context, id string) (*domain.SyncRun, error)
	LatestBySource(ctx context.Context, src string) (*domain.SyncRun, error)
	History(ctx context.Context, src string, limit, offset int) ([]domain.SyncRun, int64, error)
}

// ItemHook runs after each successful item creation. Hook failures never
// affect the run; they are logged and dropped.
type ItemHook interface {
	AfterCreate(ctx context.Context, item *domain.Item) error
}

// Config holds coordinator tuning.
type Config struct {
	// ProgressLogInterval is how many processed records sit between progress
	// log lines. Observability only; zero means the default of 100.
	ProgressLogInterval int
}

const defaultProgressLogInterval = 100

// Coordinator orchestrates sync runs: trigger preconditions, run lifecycle,
// fetch, dedup, persistence, and finalization.
type Coordinator struct {
	sources map[string]source.Source
	items   ItemStore
	runs    RunLedger
	hooks   []ItemHook
	logger  *logger.Logger

	progressLogInterval int

	// triggerMu narrows the window of the advisory is-running check. It only
	// helps within this process; the (source, source_id) unique constraint
	// remains the backstop across processes.
	triggerMu sync.Mutex
}

// NewCoordinator creates a Coordinator over the given sources and stores.
// Parameters:
//   - items: item persistence boundary.
//   - runs: run ledger.
//   - sources: registered sources keyed by name.
//   - log: base logger.
//   - cfg: tuning; nil uses defaults.
//   - hooks: optional post-create hooks.
// Returns:
//   - *Coordinator: initialized coordinator.
func NewCoordinator(
	items ItemStore,
	runs RunLedger,
	sources map[string]source.Source,
	log *logger.Logger,
	cfg *Config,
	hooks ...ItemHook,
) *Coordinator {
	interval := defaultProgressLogInterval
	if cfg != nil && cfg.ProgressLogInterval > 0 {
		interval = cfg.ProgressLogInterval
	}
	return &Coordinator{
		sources:             sources,
		items:               items,
		runs:                runs,
		hooks:               hooks,
		logger:              log,
		progressLogInterval: interval,
	}
}

func (c *Coordinator) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return c.logger
}

// Sources returns the registered source names, sorted.
func (c *Coordinator) Sources() []string {
	names := make([]string, 0, len(c.sources))
	for name := range c.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Source returns the registered source with the given name.
func (c *Coordinator) Source(name string) (source.Source, bool) {
	src, ok := c.sources[name]
	return src, ok
}

// ValidateCredentials checks the named source's credentials without starting
// a run.
func (c *Coordinator) ValidateCredentials(ctx context.Context, name string) (bool, string, error) {
	src, ok := c.sources[name]
	if !ok {
		return false, "", fmt.Errorf("unknown source: %s", name)
	}
	ok, msg := src.ValidateCredentials(ctx)
	return ok, msg, nil
}

// TriggerResult reports the outcome of a trigger attempt.
type TriggerResult struct {
	Started bool
	Reason  string
	Run     *domain.SyncRun
}

// Trigger validates preconditions for a sync of the named source and, when
// they hold, creates a running SyncRun and ingests in the background.
// Precondition failures return domain.ErrAlreadyRunning or
// *domain.CredentialError and create no run record.
// Parameters:
//   - ctx: context for the precondition checks; the background ingest
//     detaches from its cancellation.
//   - name: source to sync.
//   - force: adapter-defined full-window hint.
// Returns:
//   - *TriggerResult: started flag, reason, and the created run.
//   - error: typed precondition failure or storage error.
func (c *Coordinator) Trigger(ctx context.Context, name string, force bool) (*TriggerResult, error) {
	src, ok := c.sources[name]
	if !ok {
		return nil, fmt.Errorf("unknown source: %s", name)
	}
	return c.TriggerWith(ctx, src, force)
}

// TriggerWith is Trigger for a source built outside the static registry,
// such as a GDPR import pointed at a request-supplied CSV.
func (c *Coordinator) TriggerWith(ctx context.Context, src source.Source, force bool) (*TriggerResult, error) {
	run, index, err := c.prepare(ctx, src, force)
	if err != nil {
		return nil, err
	}
	name := src.Name()

	// The ingest outlives the trigger request. Keep context values (logger
	// fields) but drop the caller's cancellation.
	bg := context.WithoutCancel(ctx)
	bg = logger.WithFields(bg, logger.Fields{
		logger.FieldSource: name,
		logger.FieldRunID:  run.ID,
	})
	go c.ingest(bg, src, run, index, force)

	return &TriggerResult{Started: true, Reason: "sync started", Run: run}, nil
}

// Run is the blocking form of Trigger, used by the CLI. It returns the
// finalized run.
func (c *Coordinator) Run(ctx context.Context, name string, force bool) (*domain.SyncRun, error) {
	src, ok := c.sources[name]
	if !ok {
		return nil, fmt.Errorf("unknown source: %s", name)
	}
	return c.RunWith(ctx, src, force)
}

// RunWith is the blocking form of TriggerWith.
func (c *Coordinator) RunWith(ctx context.Context, src source.Source, force bool) (*domain.SyncRun, error) {
	run, index, err := c.prepare(ctx, src, force)
	if err != nil {
		return nil, err
	}

	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldSource: src.Name(),
		logger.FieldRunID:  run.ID,
	})
	c.ingest(ctx, src, run, index, force)

	final, err := c.runs.GetByID(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	return final, nil
}

// prepare checks trigger preconditions in order (single-flight first, then
// credentials), creates the running run, and preloads the duplicate index.
func (c *Coordinator) prepare(ctx context.Context, src source.Source, force bool) (*domain.SyncRun, map[string]struct{}, error) {
	name := src.Name()
	indexSource := name
	if is, ok := src.(source.IndexSourcer); ok {
		indexSource = is.IndexSource()
	}

	if err := c.checkNotRunning(ctx, name, indexSource); err != nil {
		return nil, nil, err
	}

	valid, msg := src.ValidateCredentials(ctx)
	if !valid {
		return nil, nil, &domain.CredentialError{Source: name, Reason: msg}
	}

	c.triggerMu.Lock()
	defer c.triggerMu.Unlock()

	// Re-check under the lock: another trigger may have won the race between
	// the first check and here.
	if err := c.checkNotRunning(ctx, name, indexSource); err != nil {
		return nil, nil, err
	}

	run, err := c.runs.CreateRunning(ctx, name)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create sync run: %w", err)
	}

	index, err := c.items.ExistingSourceIDs(ctx, indexSource)
	if err != nil {
		// The run exists but cannot proceed; finalize it as failed instead
		// of leaving it stuck at running.
		if ferr := c.runs.Fail(ctx, run.ID, 0, fmt.Sprintf("failed to preload duplicate index: %v", err)); ferr != nil {
			c.log(ctx).WithError(ferr).Error("Failed to finalize unstartable run")
		}
		return nil, nil, fmt.Errorf("failed to preload duplicate index: %w", err)
	}

	c.log(ctx).WithFields(logger.Fields{
		logger.FieldSource: name,
		logger.FieldRunID:  run.ID,
		"known_items":      len(index),
		"force":            force,
	}).Info("Sync run started")

	return run, index, nil
}

// checkNotRunning rejects a trigger while a run for the source, or for the
// namespace it ingests into, is still open.
func (c *Coordinator) checkNotRunning(ctx context.Context, name, indexSource string) error {
	for _, s := range []string{name, indexSource} {
		running, err := c.runs.IsRunning(ctx, s)
		if err != nil {
			return fmt.Errorf("failed to check run state: %w", err)
		}
		if running {
			return fmt.Errorf("%w: %s", domain.ErrAlreadyRunning, s)
		}
		if indexSource == name {
			break
		}
	}
	return nil
}

// ingest streams records from the source, deduplicates against index, and
// persists new items. A soft per-record failure never aborts the run; a
// feed-level fatal error finalizes the run as failed with whatever was
// ingested so far. Nothing is rolled back: ingestion is at-least-once and
// duplicate-safe, never atomic per run.
func (c *Coordinator) ingest(ctx context.Context, src source.Source, run *domain.SyncRun, index map[string]struct{}, force bool) {
	start := time.Now()

	stream, err := src.Fetch(ctx, force)
	if err != nil {
		c.finalizeFailed(ctx, run, 0, err)
		return
	}
	defer stream.Close()

	var (
		processed int
		ingested  int
		skipped   int
		softErrs  []string
	)

	for {
		rec, err := stream.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			var re *domain.RecordError
			if errors.As(err, &re) {
				processed++
				softErrs = append(softErrs, re.Error())
				c.log(ctx).WithError(re).Warn("Skipping bad record")
				c.maybeLogProgress(ctx, processed, ingested, skipped)
				continue
			}
			// The feed itself became unusable.
			c.finalizeFailed(ctx, run, ingested, err)
			return
		}

		processed++

		if _, dup := index[rec.ExternalID]; dup {
			skipped++
			c.maybeLogProgress(ctx, processed, ingested, skipped)
			continue
		}

		item, err := c.items.CreateFromRecord(ctx, rec)
		if err != nil {
			softErrs = append(softErrs, fmt.Sprintf("failed to create item %s: %v", rec.ExternalID, err))
			c.log(ctx).WithField("external_id", rec.ExternalID).WithError(err).Warn("Failed to create item")
		} else {
			// Record the id so the same record appearing again later in this
			// feed (pagination overlap) is skipped without a store call.
			index[rec.ExternalID] = struct{}{}
			ingested++
			c.runHooks(ctx, item)
		}

		c.maybeLogProgress(ctx, processed, ingested, skipped)
	}

	summary := strings.Join(softErrs, "\n")
	if err := c.runs.Complete(ctx, run.ID, ingested, summary); err != nil {
		c.log(ctx).WithError(err).Error("Failed to finalize completed run")
	}

	logger.With(logger.Fields{
		logger.FieldStatus:     string(domain.RunStatusCompleted),
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).With(logger.Fields{
		"processed": processed,
		"ingested":  ingested,
		"skipped":   skipped,
		"errors":    len(softErrs),
	}).Info(ctx, "Sync completed")
}

func (c *Coordinator) finalizeFailed(ctx context.Context, run *domain.SyncRun, ingested int, cause error) {
	fatal := &domain.FetchError{Source: run.Source, Err: cause}
	var fe *domain.FetchError
	if errors.As(cause, &fe) {
		fatal = fe
	}

	if err := c.runs.Fail(ctx, run.ID, ingested, fatal.Error()); err != nil {
		c.log(ctx).WithError(err).Error("Failed to finalize failed run")
	}
	c.log(ctx).WithFields(logger.Fields{
		"ingested": ingested,
	}).WithError(fatal).Error("Sync failed")
}

func (c *Coordinator) maybeLogProgress(ctx context.Context, processed, ingested, skipped int) {
	if processed%c.progressLogInterval != 0 {
		return
	}
	c.log(ctx).WithFields(logger.Fields{
		"processed": processed,
		"ingested":  ingested,
		"skipped":   skipped,
	}).Info("Sync progress")
}

func (c *Coordinator) runHooks(ctx context.Context, item *domain.Item) {
	for _, h := range c.hooks {
		if err := h.AfterCreate(ctx, item); err != nil {
			c.log(ctx).WithField("item_id", item.ID).WithError(err).Warn("Post-create hook failed")
		}
	}
}

// SourceStatus is the reported state of one source.
type SourceStatus struct {
	Source        string     `json:"source"`
	State         string     `json:"status"`
	LastRunAt     *time.Time `json:"last_sync,omitempty"`
	ItemsIngested int        `json:"items_synced"`
	Error         string     `json:"error,omitempty"`
}

// Status reports the latest run for a source, or the idle sentinel if the
// source has never synced.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - name: source platform name.
// Returns:
//   - *SourceStatus: current status.
//   - error: non-nil if the source is unknown or the query fails.
func (c *Coordinator) Status(ctx context.Context, name string) (*SourceStatus, error) {
	if _, ok := c.sources[name]; !ok {
		return nil, fmt.Errorf("unknown source: %s", name)
	}

	run, err := c.runs.LatestBySource(ctx, name)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return &SourceStatus{Source: name, State: domain.StatusIdle}, nil
	}
	return &SourceStatus{
		Source:        name,
		State:         string(run.Status),
		LastRunAt:     run.CompletedAt,
		ItemsIngested: run.ItemsIngested,
		Error:         run.Errors,
	}, nil
}

// StatusAll reports the status of every registered source.
func (c *Coordinator) StatusAll(ctx context.Context) ([]SourceStatus, error) {
	statuses := make([]SourceStatus, 0, len(c.sources))
	for _, name := range c.Sources() {
		st, err := c.Status(ctx, name)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, *st)
	}
	return statuses, nil
}

// History returns past runs, newest first, with the total count.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - src: source filter; empty means all sources.
//   - limit: page size, clamped to [1, 200]; zero means 50.
//   - offset: entries to skip.
// Returns:
//   - []domain.SyncRun: matching runs.
//   - int64: total number of matching runs.
//   - error: non-nil if the query fails.
func (c *Coordinator) History(ctx context.Context, src string, limit, offset int) ([]domain.SyncRun, int64, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return c.runs.History(ctx, src, limit, offset)
}
