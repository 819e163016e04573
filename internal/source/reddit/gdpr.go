package reddit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"unisaved/internal/domain"
	"unisaved/internal/logger"
	"unisaved/internal/source"
)

const (
	GDPRSourceID   = "reddit_gdpr"
	GDPRSourceName = "Reddit GDPR Import"
)

const defaultGDPRWorkers = 4

// GDPRImporter imports the saved_posts.csv from a Reddit GDPR data export.
// The live API stops at roughly the last 1000 saved items; the export is the
// only way to reach older history. Rows are enriched against the API where
// possible and fall back to minimal stubs built from the permalink.
type GDPRImporter struct {
	adapter *Adapter
	csvPath string
	workers int
}

// NewGDPRImporter creates an importer reading the given CSV, sharing the
// adapter's authentication and rate limiting.
func NewGDPRImporter(adapter *Adapter, csvPath string, workers int) *GDPRImporter {
	if workers <= 0 {
		workers = defaultGDPRWorkers
	}
	return &GDPRImporter{
		adapter: adapter,
		csvPath: csvPath,
		workers: workers,
	}
}

func (g *GDPRImporter) Name() string {
	return GDPRSourceID
}

func (g *GDPRImporter) DisplayName() string {
	return GDPRSourceName
}

// IndexSource reports that imported items land in the reddit namespace, so
// duplicate checks run against items already synced from the live API.
func (g *GDPRImporter) IndexSource() string {
	return SourceID
}

// ValidateCredentials checks the CSV is readable and the Reddit credentials
// work; enrichment needs the API.
func (g *GDPRImporter) ValidateCredentials(ctx context.Context) (bool, string) {
	if _, err := os.Stat(g.csvPath); err != nil {
		return false, fmt.Sprintf("CSV file not found: %s", g.csvPath)
	}
	return g.adapter.ValidateCredentials(ctx)
}

type csvRow struct {
	id        string
	permalink string
}

// parseCSV reads id,permalink rows and drops dead permalinks up front.
func (g *GDPRImporter) parseCSV(ctx context.Context) ([]csvRow, error) {
	f, err := os.Open(g.csvPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	idCol, permalinkCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case "id":
			idCol = i
		case "permalink":
			permalinkCol = i
		}
	}
	if idCol < 0 || permalinkCol < 0 {
		return nil, fmt.Errorf("CSV missing id/permalink columns")
	}

	var rows []csvRow
	skippedDeleted := 0
	for {
		record, err := reader.Read()
		if err != nil {
			break
		}
		if idCol >= len(record) || permalinkCol >= len(record) {
			continue
		}
		id := strings.TrimSpace(record[idCol])
		permalink := strings.TrimSpace(record[permalinkCol])
		if id == "" || permalink == "" {
			continue
		}
		lower := strings.ToLower(permalink)
		if strings.Contains(lower, "deleted") || strings.Contains(lower, "removed") {
			skippedDeleted++
			continue
		}
		rows = append(rows, csvRow{id: id, permalink: permalink})
	}

	logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldCount: len(rows),
		"skipped_deleted": skippedDeleted,
		"path":            g.csvPath,
	}).Info("Parsed GDPR export CSV")

	return rows, nil
}

// Fetch materializes the whole import: CSV parse, then concurrent API
// enrichment bounded by the worker count. force has no effect; the CSV is
// always imported whole.
func (g *GDPRImporter) Fetch(ctx context.Context, force bool) (source.RecordStream, error) {
	rows, err := g.parseCSV(ctx)
	if err != nil {
		return nil, &domain.FetchError{Source: GDPRSourceID, Err: err}
	}

	token, err := g.adapter.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	// One slot per row keeps CSV order in the output; nil slots are rows the
	// API reported gone.
	slots := make([]*source.StreamResult, len(rows))

	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(g.workers)
	for i, row := range rows {
		grp.Go(func() error {
			details, err := g.fetchDetails(grpCtx, token, row.id)
			if err != nil {
				// Build what we can from the permalink alone.
				rec := minimalStub(row.id, row.permalink)
				slots[i] = &source.StreamResult{Record: rec}
				logger.FromContext(grpCtx).WithField("item_id", row.id).WithError(err).
					Warn("Enrichment failed, creating minimal stub")
				return nil
			}
			if details == nil {
				return nil // deleted upstream, nothing to import
			}
			slots[i] = &source.StreamResult{Record: details}
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, &domain.FetchError{Source: GDPRSourceID, Err: err}
	}

	results := make([]source.StreamResult, 0, len(slots))
	for _, slot := range slots {
		if slot != nil {
			results = append(results, *slot)
		}
	}

	logger.FromContext(ctx).WithFields(logger.Fields{
		"rows":            len(rows),
		logger.FieldCount: len(results),
	}).Info("GDPR enrichment complete")

	return source.NewSliceStream(results), nil
}

// fetchDetails resolves a CSV row through /api/info, trying the id as a
// submission first and then as a comment. A nil record with nil error means
// the item no longer exists.
func (g *GDPRImporter) fetchDetails(ctx context.Context, token, rawID string) (*domain.ExternalRecord, error) {
	if err := g.adapter.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	// Export ids sometimes carry a type prefix already.
	cleanID := rawID
	if i := strings.LastIndex(rawID, "_"); i >= 0 {
		cleanID = rawID[i+1:]
	}
	fullnames := kindSubmission + "_" + cleanID + "," + kindComment + "_" + cleanID

	var list listingResponse
	resp, err := g.adapter.apiClient.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("User-Agent", g.adapter.agent("")).
		SetQueryParams(map[string]string{
			"id":       fullnames,
			"raw_json": "1",
		}).
		SetResult(&list).
		ForceContentType("application/json").
		Get("/api/info")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("Reddit API error %d", resp.StatusCode())
	}
	if len(list.Data.Children) == 0 {
		return nil, nil
	}

	thing := list.Data.Children[0]
	switch thing.Kind {
	case kindSubmission:
		var sub submissionData
		if err := json.Unmarshal(thing.Data, &sub); err != nil {
			return nil, err
		}
		return submissionStub(&sub), nil
	case kindComment:
		var com commentData
		if err := json.Unmarshal(thing.Data, &com); err != nil {
			return nil, err
		}
		return commentStub(&com), nil
	default:
		return nil, fmt.Errorf("unknown thing kind %q", thing.Kind)
	}
}

func submissionStub(sub *submissionData) *domain.ExternalRecord {
	title := sub.Title
	if title == "" {
		title = "Untitled"
	}
	url := sub.URL
	if url == "" {
		url = "https://reddit.com" + sub.Permalink
	}
	author := sub.Author
	if author == "" {
		author = "[deleted]"
	}
	createdAt := time.Unix(int64(sub.CreatedUTC), 0).UTC()
	savedAt := time.Now().UTC()

	return &domain.ExternalRecord{
		// Imported under "reddit" so the item list stays unified.
		Source:     SourceID,
		ExternalID: sub.ID,
		URL:        url,
		Title:      truncate(title, 1000),
		Author:     author,
		Tags:       []string{sub.Subreddit},
		Metadata: domain.Metadata{
			"subreddit":     sub.Subreddit,
			"post_type":     "submission",
			"import_method": "gdpr_csv",
			"stub":          true,
			"url":           sub.URL,
			"is_nsfw":       sub.Over18,
		},
		CreatedAt: &createdAt,
		SavedAt:   &savedAt,
	}
}

func commentStub(com *commentData) *domain.ExternalRecord {
	author := com.Author
	if author == "" {
		author = "[deleted]"
	}
	createdAt := time.Unix(int64(com.CreatedUTC), 0).UTC()
	savedAt := time.Now().UTC()

	return &domain.ExternalRecord{
		Source:     SourceID,
		ExternalID: "c_" + com.ID,
		URL:        "https://reddit.com" + com.Permalink,
		Title:      fmt.Sprintf("Comment in r/%s", com.Subreddit),
		Author:     author,
		Tags:       []string{com.Subreddit},
		Metadata: domain.Metadata{
			"subreddit":     com.Subreddit,
			"post_type":     "comment",
			"import_method": "gdpr_csv",
			"stub":          true,
		},
		CreatedAt: &createdAt,
		SavedAt:   &savedAt,
	}
}

// minimalStub builds a record from nothing but the CSV row.
func minimalStub(id, permalink string) *domain.ExternalRecord {
	subreddit := "unknown"
	if _, rest, ok := strings.Cut(permalink, "/r/"); ok {
		if sub, _, _ := strings.Cut(rest, "/"); sub != "" {
			subreddit = sub
		}
	}

	// Comment permalinks have an extra path segment below the submission.
	isComment := strings.Contains(permalink, "/comments/") && strings.Count(permalink, "/") > 6
	externalID := id
	postType := "submission"
	if isComment {
		externalID = "c_" + id
		postType = "comment"
	}

	url := permalink
	if !strings.HasPrefix(url, "http") {
		url = "https://reddit.com" + permalink
	}

	now := time.Now().UTC()
	return &domain.ExternalRecord{
		Source:     SourceID,
		ExternalID: externalID,
		URL:        url,
		Title:      fmt.Sprintf("Saved item from r/%s", subreddit),
		Author:     "[unknown]",
		Tags:       []string{subreddit},
		Metadata: domain.Metadata{
			"subreddit":       subreddit,
			"post_type":       postType,
			"import_method":   "gdpr_csv",
			"stub":            true,
			"api_unavailable": true,
		},
		CreatedAt: &now,
		SavedAt:   &now,
	}
}
