package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"unisaved/internal/config"
	"unisaved/internal/credentials"
	"unisaved/internal/domain"
	"unisaved/internal/logger"
	"unisaved/internal/ratelimit"
	"unisaved/internal/retry"
	"unisaved/internal/source"
)

const (
	SourceID   = "reddit"
	SourceName = "Reddit"
)

const pageLimit = 100 // listing page size cap

// forceMaxItems is the deepest the saved listing goes; the API drops older
// entries past roughly this point.
const forceMaxItems = 1000

// CredentialProvider supplies Reddit script-app credentials. Satisfied by
// credentials.Store.
type CredentialProvider interface {
	Reddit() (*credentials.RedditCredentials, error)
}

// Adapter fetches the authenticated user's saved submissions and comments
// through the Reddit OAuth API. The API only exposes the most recent ~1000
// saved items; older history comes in through the GDPR importer.
type Adapter struct {
	authClient *resty.Client
	apiClient  *resty.Client
	creds      CredentialProvider
	userAgent  string
	maxItems   int
	limiter    *ratelimit.Limiter
	retries    *retry.Policy

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewAdapter creates a Reddit saved-items adapter.
func NewAdapter(cfg *config.RedditConfig, creds CredentialProvider) *Adapter {
	return &Adapter{
		authClient: resty.New().SetBaseURL(cfg.AuthURL).SetTimeout(30 * time.Second),
		apiClient:  resty.New().SetBaseURL(cfg.APIBaseURL).SetTimeout(30 * time.Second),
		creds:      creds,
		userAgent:  cfg.UserAgent,
		maxItems:   cfg.MaxItems,
		limiter:    ratelimit.New(cfg.RateLimitDelay),
		retries:    &retry.Policy{MaxAttempts: cfg.MaxAttempts, BaseDelay: cfg.RetryBaseDelay, Classify: classify},
	}
}

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

func (a *Adapter) agent(username string) string {
	if a.userAgent != "" {
		return a.userAgent
	}
	return fmt.Sprintf("unisaved/1.0 (by u/%s)", username)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
}

// authenticate obtains (or reuses) an OAuth token via the password grant,
// which is what Reddit prescribes for personal script apps.
func (a *Adapter) authenticate(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && time.Now().Before(a.tokenExpiry) {
		return a.token, nil
	}

	creds, err := a.creds.Reddit()
	if err != nil {
		return "", &domain.CredentialError{Source: SourceID, Reason: "Reddit credentials not configured"}
	}

	var token tokenResponse
	resp, err := a.authClient.R().
		SetContext(ctx).
		SetBasicAuth(creds.ClientID, creds.ClientSecret).
		SetHeader("User-Agent", a.agent(creds.Username)).
		SetFormData(map[string]string{
			"grant_type": "password",
			"username":   creds.Username,
			"password":   creds.Password,
		}).
		SetResult(&token).
		ForceContentType("application/json").
		Post("/api/v1/access_token")
	if err != nil {
		return "", fmt.Errorf("failed to reach Reddit auth endpoint: %w", err)
	}
	if resp.StatusCode() != 200 || token.AccessToken == "" {
		reason := token.Error
		if reason == "" {
			reason = fmt.Sprintf("status %d", resp.StatusCode())
		}
		return "", &domain.CredentialError{Source: SourceID, Reason: "Reddit authentication failed: " + reason}
	}

	a.token = token.AccessToken
	a.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn)*time.Second - time.Minute)
	return a.token, nil
}

type meResponse struct {
	Name string `json:"name"`
}

// ValidateCredentials authenticates and resolves the account name.
func (a *Adapter) ValidateCredentials(ctx context.Context) (bool, string) {
	creds, err := a.creds.Reddit()
	if err != nil {
		return false, "Reddit credentials not configured"
	}

	token, err := a.authenticate(ctx)
	if err != nil {
		return false, fmt.Sprintf("Authentication failed: %v", err)
	}

	var me meResponse
	resp, err := a.apiClient.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("User-Agent", a.agent(creds.Username)).
		SetResult(&me).
		ForceContentType("application/json").
		Get("/api/v1/me")
	if err != nil {
		return false, fmt.Sprintf("Connection failed: %v", err)
	}
	if resp.StatusCode() != 200 || me.Name == "" {
		return false, "Failed to authenticate - no user returned"
	}
	return true, "Authenticated as u/" + me.Name
}

// Fetch opens a lazy cursor stream over the saved listing, newest first.
// force widens the window to everything the API can still serve.
func (a *Adapter) Fetch(ctx context.Context, force bool) (source.RecordStream, error) {
	creds, err := a.creds.Reddit()
	if err != nil {
		return nil, &domain.CredentialError{Source: SourceID, Reason: "Reddit credentials not configured"}
	}
	token, err := a.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	maxItems := a.maxItems
	if force || maxItems <= 0 {
		maxItems = forceMaxItems
	}

	return &listingStream{
		adapter:  a,
		token:    token,
		username: creds.Username,
		maxItems: maxItems,
	}, nil
}

// Listing thing kinds.
const (
	kindComment    = "t1"
	kindSubmission = "t3"
)

type listingThing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type listingResponse struct {
	Data struct {
		After    string         `json:"after"`
		Children []listingThing `json:"children"`
	} `json:"data"`
}

// listingStream pages through /user/<name>/saved with the API's after
// cursor.
type listingStream struct {
	adapter  *Adapter
	token    string
	username string
	maxItems int

	after   string
	fetched int
	results []source.StreamResult
	pos     int
	done    bool
}

func (s *listingStream) Next(ctx context.Context) (*domain.ExternalRecord, error) {
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

func (s *listingStream) Close() error {
	s.done = true
	s.results = nil
	return nil
}

func (s *listingStream) fetchPage(ctx context.Context) error {
	if err := s.adapter.limiter.Wait(ctx); err != nil {
		return err
	}

	limit := pageLimit
	if remaining := s.maxItems - s.fetched; remaining < limit {
		limit = remaining
	}
	if limit <= 0 {
		s.done = true
		return nil
	}

	list, err := retry.DoValue(ctx, s.adapter.retries, func() (*listingResponse, error) {
		var page listingResponse
		req := s.adapter.apiClient.R().
			SetContext(ctx).
			SetAuthToken(s.token).
			SetHeader("User-Agent", s.adapter.agent(s.username)).
			SetQueryParams(map[string]string{
				"limit":    strconv.Itoa(limit),
				"raw_json": "1",
			}).
			SetResult(&page).
			ForceContentType("application/json")
		if s.after != "" {
			req.SetQueryParam("after", s.after)
		}
		resp, err := req.Get("/user/" + s.username + "/saved")
		if err != nil {
			return nil, err
		}
		switch code := resp.StatusCode(); {
		case code == 200:
			return &page, nil
		case code == 429 || code == 502 || code == 503 || code == 504:
			return nil, &transientStatusError{status: code}
		default:
			return nil, fmt.Errorf("Reddit API error %d", code)
		}
	})
	if err != nil {
		return err
	}

	s.results = s.results[:0]
	s.pos = 0
	for _, thing := range list.Data.Children {
		s.results = append(s.results, parseThing(thing))
	}
	s.fetched += len(list.Data.Children)

	logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldCount:  len(list.Data.Children),
		"total":            s.fetched,
		logger.FieldSource: SourceID,
	}).Debug("Fetched Reddit saved page")

	s.after = list.Data.After
	if s.after == "" || len(list.Data.Children) == 0 || s.fetched >= s.maxItems {
		s.done = true
	}
	return nil
}

func parseThing(thing listingThing) source.StreamResult {
	switch thing.Kind {
	case kindSubmission:
		var sub submissionData
		if err := json.Unmarshal(thing.Data, &sub); err != nil {
			return source.StreamResult{SoftErr: domain.SoftRecordErr("unknown", fmt.Errorf("failed to parse submission: %w", err))}
		}
		return source.StreamResult{Record: parseSubmission(&sub)}
	case kindComment:
		var com commentData
		if err := json.Unmarshal(thing.Data, &com); err != nil {
			return source.StreamResult{SoftErr: domain.SoftRecordErr("unknown", fmt.Errorf("failed to parse comment: %w", err))}
		}
		return source.StreamResult{Record: parseComment(&com)}
	default:
		return source.StreamResult{SoftErr: domain.SoftRecordErr("unknown", fmt.Errorf("unknown thing kind %q", thing.Kind))}
	}
}

type previewImage struct {
	Source struct {
		URL string `json:"url"`
	} `json:"source"`
}

type submissionData struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	SelfText      string  `json:"selftext"`
	Author        string  `json:"author"`
	Subreddit     string  `json:"subreddit"`
	SubredditID   string  `json:"subreddit_id"`
	IsSelf        bool    `json:"is_self"`
	IsVideo       bool    `json:"is_video"`
	Over18        bool    `json:"over_18"`
	Score         int     `json:"score"`
	UpvoteRatio   float64 `json:"upvote_ratio"`
	NumComments   int     `json:"num_comments"`
	LinkFlairText string  `json:"link_flair_text"`
	Permalink     string  `json:"permalink"`
	URL           string  `json:"url"`
	Domain        string  `json:"domain"`
	Thumbnail     string  `json:"thumbnail"`
	CreatedUTC    float64 `json:"created_utc"`
	Preview       *struct {
		Images []previewImage `json:"images"`
	} `json:"preview"`
}

func parseSubmission(sub *submissionData) *domain.ExternalRecord {
	thumbnail := ""
	if sub.Preview != nil && len(sub.Preview.Images) > 0 {
		thumbnail = sub.Preview.Images[0].Source.URL
	}
	if thumbnail == "" {
		switch sub.Thumbnail {
		case "", "self", "default", "nsfw", "spoiler":
		default:
			thumbnail = sub.Thumbnail
		}
	}

	title := sub.Title
	if title == "" {
		title = "Untitled"
	}

	url := sub.URL
	if sub.IsSelf {
		url = "https://reddit.com" + sub.Permalink
	}

	author := sub.Author
	if author == "" {
		author = "[deleted]"
	}

	createdAt := time.Unix(int64(sub.CreatedUTC), 0).UTC()
	savedAt := time.Now().UTC() // the saved listing does not expose save times

	return &domain.ExternalRecord{
		Source:       SourceID,
		ExternalID:   sub.ID,
		URL:          url,
		Title:        truncate(title, 1000),
		Description:  truncate(sub.SelfText, 5000),
		ContentText:  sub.SelfText,
		Author:       author,
		ThumbnailURL: thumbnail,
		Tags:         []string{sub.Subreddit},
		Metadata: domain.Metadata{
			"subreddit":       sub.Subreddit,
			"subreddit_id":    sub.SubredditID,
			"is_self":         sub.IsSelf,
			"is_video":        sub.IsVideo,
			"is_nsfw":         sub.Over18,
			"score":           sub.Score,
			"upvote_ratio":    sub.UpvoteRatio,
			"num_comments":    sub.NumComments,
			"link_flair_text": sub.LinkFlairText,
			"permalink":       sub.Permalink,
			"domain":          sub.Domain,
			"post_type":       "submission",
		},
		CreatedAt: &createdAt,
		SavedAt:   &savedAt,
	}
}

type commentData struct {
	ID          string  `json:"id"`
	Body        string  `json:"body"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	SubredditID string  `json:"subreddit_id"`
	ParentID    string  `json:"parent_id"`
	LinkID      string  `json:"link_id"`
	IsSubmitter bool    `json:"is_submitter"`
	Score       int     `json:"score"`
	Permalink   string  `json:"permalink"`
	CreatedUTC  float64 `json:"created_utc"`
}

func parseComment(com *commentData) *domain.ExternalRecord {
	// link_id is "t3_xxxxx"; strip the prefix instead of paying an API call
	// for the submission title.
	submissionID := ""
	if strings.HasPrefix(com.LinkID, kindSubmission+"_") {
		submissionID = com.LinkID[len(kindSubmission)+1:]
	}

	preview := com.Body
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	title := fmt.Sprintf("Comment in r/%s: %s", com.Subreddit, preview)

	author := com.Author
	if author == "" {
		author = "[deleted]"
	}

	createdAt := time.Unix(int64(com.CreatedUTC), 0).UTC()
	savedAt := time.Now().UTC()

	return &domain.ExternalRecord{
		Source: SourceID,
		// Prefixed to avoid colliding with submission ids.
		ExternalID:  "c_" + com.ID,
		URL:         "https://reddit.com" + com.Permalink,
		Title:       truncate(title, 1000),
		ContentText: com.Body,
		Author:      author,
		Tags:        []string{com.Subreddit},
		Metadata: domain.Metadata{
			"subreddit":     com.Subreddit,
			"subreddit_id":  com.SubredditID,
			"parent_id":     com.ParentID,
			"submission_id": submissionID,
			"is_submitter":  com.IsSubmitter,
			"score":         com.Score,
			"permalink":     com.Permalink,
			"post_type":     "comment",
		},
		CreatedAt: &createdAt,
		SavedAt:   &savedAt,
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
