package youtube

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"time"

	"unisaved/internal/config"
	"unisaved/internal/domain"
	"unisaved/internal/logger"
	"unisaved/internal/source"
)

const (
	SourceID   = "youtube"
	SourceName = "YouTube Watch Later"
)

const defaultPlaylistURL = "https://www.youtube.com/playlist?list=WL"

// Maximum size of a single yt-dlp JSON line. Full video metadata can run to
// hundreds of kilobytes.
const maxLineSize = 16 << 20

// BrowserProvider supplies the browser whose cookies yt-dlp should use.
// Satisfied by credentials.Store.
type BrowserProvider interface {
	YouTubeBrowser() string
}

// Adapter fetches the Watch Later playlist by shelling out to yt-dlp and
// streaming its JSON-lines output. There is no public API for Watch Later;
// browser cookies are the only access path. The single outbound call is the
// subprocess itself, so there is no per-record rate limiting here.
type Adapter struct {
	browsers        BrowserProvider
	fallbackBrowser string
	ytdlpPath       string
	playlistURL     string
}

// NewAdapter creates a YouTube Watch Later adapter. The configured browser is
// the fallback when none has been stored through the credentials API.
func NewAdapter(cfg *config.YouTubeConfig, browsers BrowserProvider) *Adapter {
	path := cfg.YtdlpPath
	if path == "" {
		path = "yt-dlp"
	}
	playlist := cfg.PlaylistURL
	if playlist == "" {
		playlist = defaultPlaylistURL
	}
	return &Adapter{
		browsers:        browsers,
		fallbackBrowser: cfg.Browser,
		ytdlpPath:       path,
		playlistURL:     playlist,
	}
}

// browser resolves the cookie browser: stored choice first, configured
// default second.
func (a *Adapter) browser() string {
	if b := a.browsers.YouTubeBrowser(); b != "" {
		return b
	}
	return a.fallbackBrowser
}

func (a *Adapter) Name() string {
	return SourceID
}

func (a *Adapter) DisplayName() string {
	return SourceName
}

// ValidateCredentials checks that yt-dlp is installed and a cookie browser is
// configured. Cookie freshness can only be proven by an actual fetch.
func (a *Adapter) ValidateCredentials(ctx context.Context) (bool, string) {
	if _, err := exec.LookPath(a.ytdlpPath); err != nil {
		return false, fmt.Sprintf("yt-dlp not found at %q", a.ytdlpPath)
	}
	browser := a.browser()
	if browser == "" {
		return false, "No browser configured for YouTube cookies"
	}
	return true, "Using cookies from " + browser
}

// Fetch starts yt-dlp against the Watch Later playlist and streams one record
// per output line. force has no effect: the playlist is always fetched whole.
func (a *Adapter) Fetch(ctx context.Context, force bool) (source.RecordStream, error) {
	browser := a.browser()

	// Full extraction instead of --flat-playlist: only full extraction carries
	// upload dates and thumbnails.
	cmd := exec.CommandContext(ctx, a.ytdlpPath,
		"--cookies-from-browser", browser,
		"--dump-json",
		"--no-download",
		"--no-warnings",
		"--ignore-errors",
		a.playlistURL,
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &domain.FetchError{Source: SourceID, Err: err}
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, &domain.FetchError{Source: SourceID, Err: fmt.Errorf("failed to start yt-dlp: %w", err)}
	}

	logger.FromContext(ctx).WithField("browser", browser).Info("Running yt-dlp for Watch Later playlist")

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 1<<20), maxLineSize)

	return &processStream{
		cmd:     cmd,
		scanner: scanner,
		stderr:  &stderr,
	}, nil
}

// processStream yields one record per JSON line as yt-dlp produces them.
type processStream struct {
	cmd     *exec.Cmd
	scanner *bufio.Scanner
	stderr  *bytes.Buffer

	yielded int
	waited  bool
}

func (s *processStream) Next(ctx context.Context) (*domain.ExternalRecord, error) {
	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var video videoJSON
		if err := json.Unmarshal(line, &video); err != nil {
			return nil, domain.SoftRecordErr("unknown", fmt.Errorf("failed to parse video JSON: %w", err))
		}
		if video.ID == "" {
			return nil, domain.SoftRecordErr("unknown", fmt.Errorf("video entry without id"))
		}

		s.yielded++
		return parseVideo(&video), nil
	}

	if err := s.scanner.Err(); err != nil {
		s.wait()
		return nil, &domain.FetchError{Source: SourceID, Err: err}
	}

	// yt-dlp exiting nonzero after producing output usually means individual
	// videos failed under --ignore-errors; with no output at all it means the
	// whole fetch failed (stale cookies, network).
	if err := s.wait(); err != nil && s.yielded == 0 {
		msg := s.stderr.String()
		if msg == "" {
			msg = err.Error()
		}
		return nil, &domain.FetchError{Source: SourceID, Err: fmt.Errorf("yt-dlp failed: %s", msg)}
	}

	return nil, io.EOF
}

func (s *processStream) wait() error {
	if s.waited {
		return nil
	}
	s.waited = true
	return s.cmd.Wait()
}

func (s *processStream) Close() error {
	if !s.waited {
		if s.cmd.Process != nil {
			s.cmd.Process.Kill()
		}
		s.wait()
	}
	return nil
}

type thumbnailJSON struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type videoJSON struct {
	ID               string          `json:"id"`
	Title            string          `json:"title"`
	Channel          string          `json:"channel"`
	Uploader         string          `json:"uploader"`
	Description      string          `json:"description"`
	Duration         *float64        `json:"duration"`
	UploadDate       string          `json:"upload_date"`
	ReleaseTimestamp *int64          `json:"release_timestamp"`
	ViewCount        *int64          `json:"view_count"`
	LikeCount        *int64          `json:"like_count"`
	Thumbnail        string          `json:"thumbnail"`
	Thumbnails       []thumbnailJSON `json:"thumbnails"`
	ChannelID        string          `json:"channel_id"`
	ChannelURL       string          `json:"channel_url"`
	Categories       []string        `json:"categories"`
	Tags             []string        `json:"tags"`
	IsLive           bool            `json:"is_live"`
	WasLive          bool            `json:"was_live"`
}

func parseVideo(video *videoJSON) *domain.ExternalRecord {
	title := video.Title
	if title == "" {
		title = "Unknown Title"
	}

	channel := video.Channel
	if channel == "" {
		channel = video.Uploader
	}

	thumbnail := video.Thumbnail
	if thumbnail == "" {
		thumbnail = bestThumbnail(video.Thumbnails)
	}

	createdAt := parseUploadDate(video)
	savedAt := time.Now().UTC() // Watch Later does not expose the add time.

	var durationSeconds *int
	var durationFormatted string
	if video.Duration != nil {
		secs := int(*video.Duration)
		durationSeconds = &secs
		durationFormatted = formatDuration(secs)
	}

	return &domain.ExternalRecord{
		Source:       SourceID,
		ExternalID:   video.ID,
		URL:          "https://www.youtube.com/watch?v=" + video.ID,
		Title:        truncate(title, 1000),
		Description:  truncate(video.Description, 5000),
		Author:       truncate(channel, 500),
		ThumbnailURL: thumbnail,
		Tags:         headStrings(video.Tags, 10),
		Metadata: domain.Metadata{
			"video_id":           video.ID,
			"channel_id":         video.ChannelID,
			"channel_url":        video.ChannelURL,
			"duration_seconds":   durationSeconds,
			"duration_formatted": durationFormatted,
			"view_count":         video.ViewCount,
			"like_count":         video.LikeCount,
			"categories":         video.Categories,
			"tags":               headStrings(video.Tags, 20),
			"is_live":            video.IsLive,
			"was_live":           video.WasLive,
		},
		CreatedAt: &createdAt,
		SavedAt:   &savedAt,
	}
}

func bestThumbnail(thumbs []thumbnailJSON) string {
	best := ""
	bestArea := -1
	for _, t := range thumbs {
		area := t.Width * t.Height
		if area > bestArea {
			bestArea = area
			best = t.URL
		}
	}
	return best
}

func parseUploadDate(video *videoJSON) time.Time {
	if len(video.UploadDate) == 8 {
		if t, err := time.Parse("20060102", video.UploadDate); err == nil {
			return t
		}
	}
	if video.UploadDate != "" {
		if ts, err := strconv.ParseInt(video.UploadDate, 10, 64); err == nil {
			return time.Unix(ts, 0).UTC()
		}
	}
	if video.ReleaseTimestamp != nil {
		return time.Unix(*video.ReleaseTimestamp, 0).UTC()
	}
	return time.Now().UTC()
}

// formatDuration renders seconds as "1:05:30" or "10:30".
func formatDuration(seconds int) string {
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func headStrings(strs []string, n int) []string {
	if len(strs) <= n {
		return strs
	}
	return strs[:n]
}
