package raindrop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"unisaved/internal/config"
	"unisaved/internal/domain"
	"unisaved/internal/logger"
	"unisaved/internal/ratelimit"
	"unisaved/internal/retry"
	"unisaved/internal/source"
)

const (
	SourceID   = "raindrop"
	SourceName = "Raindrop.io"
)

// Special collection IDs the API never lists.
const (
	collectionUnsorted = -1
	collectionTrash    = -99
)

// TokenProvider supplies the Raindrop API token. Satisfied by
// credentials.Store.
type TokenProvider interface {
	RaindropToken() (string, error)
}

// Adapter fetches bookmarks from the Raindrop.io REST API, newest first, one
// page at a time.
type Adapter struct {
	client   *resty.Client
	tokens   TokenProvider
	limiter  *ratelimit.Limiter
	retries  *retry.Policy
	pageSize int
}

// NewAdapter creates a Raindrop.io adapter.
func NewAdapter(cfg *config.RaindropConfig, tokens TokenProvider) *Adapter {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(30 * time.Second)

	return &Adapter{
		client:   client,
		tokens:   tokens,
		limiter:  ratelimit.New(cfg.RateLimitDelay),
		retries:  &retry.Policy{MaxAttempts: cfg.MaxAttempts, BaseDelay: cfg.RetryBaseDelay, Classify: classify},
		pageSize: cfg.PageSize,
	}
}

// transientStatusError marks an upstream status worth retrying.
type transientStatusError struct {
	status int
}

func (e *transientStatusError) Error() string {
	return fmt.Sprintf("transient upstream error: status %d", e.status)
}

func classify(err error) retry.Classification {
	var tse *transientStatusError
	if errors.As(err, &tse) {
		return retry.Retryable
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return retry.Retryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return retry.Retryable
	}
	return retry.Fatal
}

func (a *Adapter) Name() string {
	return SourceID
}

func (a *Adapter) DisplayName() string {
	return SourceName
}

type userResponse struct {
	User struct {
		Name string `json:"name"`
	} `json:"user"`
}

// ValidateCredentials checks that a token is configured and accepted by the
// API.
func (a *Adapter) ValidateCredentials(ctx context.Context) (bool, string) {
	token, err := a.tokens.RaindropToken()
	if err != nil || token == "" {
		return false, "Raindrop token not configured"
	}

	var user userResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&user).
		ForceContentType("application/json").
		Get("/user")
	if err != nil {
		return false, fmt.Sprintf("Connection failed: %v", err)
	}

	switch resp.StatusCode() {
	case 200:
		name := user.User.Name
		if name == "" {
			name = "Unknown"
		}
		return true, "Authenticated as " + name
	case 401:
		return false, "Invalid or expired token"
	default:
		return false, fmt.Sprintf("API error: %d", resp.StatusCode())
	}
}

type collectionItem struct {
	ID    int    `json:"_id"`
	Title string `json:"title"`
}

type collectionsResponse struct {
	Items []collectionItem `json:"items"`
}

// fetchCollections builds the collection id to title map used for tagging.
// Failures degrade to an empty map; bookmarks still sync without collection
// tags.
func (a *Adapter) fetchCollections(ctx context.Context, token string) map[int]string {
	collections := map[int]string{
		collectionUnsorted: "Unsorted",
		collectionTrash:    "Trash",
	}

	for _, path := range []string{"/collections", "/collections/childrens"} {
		var list collectionsResponse
		resp, err := a.client.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetResult(&list).
			ForceContentType("application/json").
			Get(path)
		if err != nil || resp.StatusCode() != 200 {
			logger.FromContext(ctx).WithField("path", path).Warn("Failed to fetch Raindrop collections")
			continue
		}
		for _, coll := range list.Items {
			title := coll.Title
			if title == "" {
				title = "Untitled"
			}
			collections[coll.ID] = title
		}
	}

	logger.FromContext(ctx).WithField(logger.FieldCount, len(collections)).Debug("Fetched Raindrop collections")
	return collections
}

// Fetch opens a lazy page-by-page stream over all bookmarks, sorted newest
// first. force has no effect: the full window is always fetched and the
// caller's duplicate index absorbs known items.
func (a *Adapter) Fetch(ctx context.Context, force bool) (source.RecordStream, error) {
	token, err := a.tokens.RaindropToken()
	if err != nil || token == "" {
		return nil, &domain.CredentialError{Source: SourceID, Reason: "Raindrop token not configured"}
	}

	return &pageStream{
		adapter:     a,
		token:       token,
		collections: a.fetchCollections(ctx, token),
	}, nil
}

// pageStream walks the paginated raindrops listing. A page is fetched only
// when the previous one is drained.
type pageStream struct {
	adapter     *Adapter
	token       string
	collections map[int]string

	page    int
	results []source.StreamResult
	pos     int
	done    bool
}

func (s *pageStream) Next(ctx context.Context) (*domain.ExternalRecord, error) {
	for {
		if s.pos < len(s.results) {
			r := s.results[s.pos]
			s.pos++
			if r.SoftErr != nil {
				return nil, r.SoftErr
			}
			return r.Record, nil
		}
		if s.done {
			return nil, io.EOF
		}
		if err := s.fetchPage(ctx); err != nil {
			s.done = true
			return nil, &domain.FetchError{Source: SourceID, Err: err}
		}
	}
}

func (s *pageStream) Close() error {
	s.done = true
	s.results = nil
	return nil
}

type raindropCollectionRef struct {
	ID int `json:"$id"`
}

type raindropItem struct {
	ID         int64                 `json:"_id"`
	Link       string                `json:"link"`
	Title      string                `json:"title"`
	Excerpt    string                `json:"excerpt"`
	Note       string                `json:"note"`
	Cover      string                `json:"cover"`
	Type       string                `json:"type"`
	Domain     string                `json:"domain"`
	Tags       []string              `json:"tags"`
	Important  bool                  `json:"important"`
	Broken     bool                  `json:"broken"`
	Created    string                `json:"created"`
	LastUpdate string                `json:"lastUpdate"`
	Collection raindropCollectionRef `json:"collection"`
}

type raindropsResponse struct {
	Items []raindropItem `json:"items"`
}

func (s *pageStream) fetchPage(ctx context.Context) error {
	if err := s.adapter.limiter.Wait(ctx); err != nil {
		return err
	}

	list, err := retry.DoValue(ctx, s.adapter.retries, func() (*raindropsResponse, error) {
		var page raindropsResponse
		resp, err := s.adapter.client.R().
			SetContext(ctx).
			SetAuthToken(s.token).
			SetQueryParams(map[string]string{
				"page":    strconv.Itoa(s.page),
				"perpage": strconv.Itoa(s.adapter.pageSize),
				"sort":    "-created",
			}).
			SetResult(&page).
			// Decode regardless of the response Content-Type; a mislabeled
			// body must not read as an empty final page.
			ForceContentType("application/json").
			Get("/raindrops/0")
		if err != nil {
			return nil, err
		}
		switch code := resp.StatusCode(); {
		case code == 200:
			return &page, nil
		case code == 502 || code == 503 || code == 504:
			return nil, &transientStatusError{status: code}
		default:
			return nil, fmt.Errorf("API error %d", code)
		}
	})
	if err != nil {
		return err
	}

	s.results = s.results[:0]
	s.pos = 0
	for _, item := range list.Items {
		s.results = append(s.results, s.parse(item))
	}

	logger.FromContext(ctx).WithFields(logger.Fields{
		"page":             s.page + 1,
		logger.FieldCount:  len(list.Items),
		logger.FieldSource: SourceID,
	}).Debug("Fetched Raindrop page")

	// A short page is the last one.
	if len(list.Items) < s.adapter.pageSize {
		s.done = true
	}
	s.page++
	return nil
}

func (s *pageStream) parse(item raindropItem) source.StreamResult {
	if item.ID == 0 {
		return source.StreamResult{SoftErr: domain.SoftRecordErr("unknown", errors.New("raindrop without _id"))}
	}

	collectionName := s.collections[item.Collection.ID]

	tags := append([]string(nil), item.Tags...)
	if collectionName != "" && !contains(tags, collectionName) {
		tags = append(tags, collectionName)
	}

	now := time.Now().UTC()
	createdAt := parseTimestamp(item.Created, now)
	savedAt := parseTimestamp(item.LastUpdate, now)

	title := item.Title
	if title == "" {
		title = "Untitled"
	}

	return source.StreamResult{Record: &domain.ExternalRecord{
		Source:       SourceID,
		ExternalID:   strconv.FormatInt(item.ID, 10),
		URL:          item.Link,
		Title:        truncate(title, 1000),
		Description:  truncate(item.Excerpt, 5000),
		ContentText:  item.Note,
		ThumbnailURL: item.Cover,
		Tags:         tags,
		Metadata: domain.Metadata{
			"type":            item.Type,
			"domain":          item.Domain,
			"collection_id":   item.Collection.ID,
			"collection_name": collectionName,
			"is_favorite":     item.Important,
			"broken":          item.Broken,
		},
		CreatedAt: &createdAt,
		SavedAt:   &savedAt,
	}}
}

func parseTimestamp(value string, fallback time.Time) time.Time {
	if value == "" {
		return fallback
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return fallback
	}
	return t
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func contains(strs []string, s string) bool {
	for _, v := range strs {
		if v == s {
			return true
		}
	}
	return false
}
