package raindrop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"unisaved/internal/config"
	"unisaved/internal/domain"
)

type staticToken string

func (t staticToken) RaindropToken() (string, error) {
	if t == "" {
		return "", errors.New("not configured")
	}
	return string(t), nil
}

func testAdapter(t *testing.T, handler http.Handler) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewAdapter(&config.RaindropConfig{
		BaseURL:        server.URL,
		PageSize:       2,
		MaxAttempts:    3,
		RetryBaseDelay: time.Millisecond,
	}, staticToken("test-token"))
}

func raindropsPage(ids ...int64) map[string]any {
	items := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		items = append(items, map[string]any{
			"_id":     id,
			"link":    fmt.Sprintf("https://example.com/%d", id),
			"title":   fmt.Sprintf("Bookmark %d", id),
			"created": "2024-03-01T12:00:00Z",
			"collection": map[string]any{
				"$id": -1,
			},
		})
	}
	return map[string]any{"items": items}
}

func drain(t *testing.T, a *Adapter) ([]*domain.ExternalRecord, []error) {
	t.Helper()
	stream, err := a.Fetch(context.Background(), false)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	defer stream.Close()

	var records []*domain.ExternalRecord
	var soft []error
	for {
		rec, err := stream.Next(context.Background())
		if err != nil {
			if errors.Is(err, io.EOF) {
				return records, soft
			}
			var re *domain.RecordError
			if errors.As(err, &re) {
				soft = append(soft, re)
				continue
			}
			t.Fatalf("stream failed: %v", err)
		}
		records = append(records, rec)
	}
}

func TestFetchPaginatesUntilShortPage(t *testing.T) {
	pages := []map[string]any{
		raindropsPage(1, 2),
		raindropsPage(3, 4),
		raindropsPage(5),
	}
	var requested []string

	a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path != "/raindrops/0" {
			json.NewEncoder(w).Encode(map[string]any{"items": []any{}})
			return
		}
		page := r.URL.Query().Get("page")
		requested = append(requested, page)
		var body map[string]any
		switch page {
		case "0":
			body = pages[0]
		case "1":
			body = pages[1]
		default:
			body = pages[2]
		}
		json.NewEncoder(w).Encode(body)
	}))

	records, soft := drain(t, a)
	if len(soft) != 0 {
		t.Errorf("got %d soft errors, want 0", len(soft))
	}
	if len(records) != 5 {
		t.Fatalf("got %d records, want 5", len(records))
	}
	// The short third page ends the stream; no fourth request.
	if len(requested) != 3 {
		t.Errorf("made %d page requests, want 3: %v", len(requested), requested)
	}
	if records[0].ExternalID != "1" || records[4].ExternalID != "5" {
		t.Errorf("unexpected record order: first=%s last=%s", records[0].ExternalID, records[4].ExternalID)
	}
}

func TestFetchRetriesTransientUpstreamErrors(t *testing.T) {
	attempts := 0
	a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path != "/raindrops/0" {
			json.NewEncoder(w).Encode(map[string]any{"items": []any{}})
			return
		}
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(raindropsPage(7))
	}))

	records, _ := drain(t, a)
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestFetchToleratesMislabeledContentType(t *testing.T) {
	// A proxy or CDN in front of the API can rewrite Content-Type; the body
	// must still decode rather than pass as an empty final page.
	a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		if r.URL.Path != "/raindrops/0" {
			json.NewEncoder(w).Encode(map[string]any{"items": []any{}})
			return
		}
		json.NewEncoder(w).Encode(raindropsPage(9))
	}))

	records, soft := drain(t, a)
	if len(soft) != 0 {
		t.Errorf("got %d soft errors, want 0", len(soft))
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].ExternalID != "9" {
		t.Errorf("ExternalID = %q, want 9", records[0].ExternalID)
	}
}

func TestFetchFailsFastOnClientError(t *testing.T) {
	attempts := 0
	a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path != "/raindrops/0" {
			json.NewEncoder(w).Encode(map[string]any{"items": []any{}})
			return
		}
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	}))

	stream, err := a.Fetch(context.Background(), false)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	defer stream.Close()

	_, err = stream.Next(context.Background())
	var fe *domain.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want FetchError", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (4xx is not retried)", attempts)
	}
}

func TestFetchWithoutTokenIsCredentialError(t *testing.T) {
	a := NewAdapter(&config.RaindropConfig{BaseURL: "http://127.0.0.1:1", PageSize: 10}, staticToken(""))

	_, err := a.Fetch(context.Background(), false)
	var ce *domain.CredentialError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want CredentialError", err)
	}
}

func TestParseBookmark(t *testing.T) {
	s := &pageStream{collections: map[int]string{5: "Reading List", -1: "Unsorted"}}

	result := s.parse(raindropItem{
		ID:         42,
		Link:       "https://example.com/article",
		Title:      "An Article",
		Excerpt:    "Summary text",
		Tags:       []string{"tech"},
		Important:  true,
		Created:    "2024-03-01T12:00:00Z",
		Collection: raindropCollectionRef{ID: 5},
	})
	if result.SoftErr != nil {
		t.Fatalf("unexpected soft error: %v", result.SoftErr)
	}
	rec := result.Record

	if rec.ExternalID != "42" {
		t.Errorf("ExternalID = %q, want 42", rec.ExternalID)
	}
	if rec.Title != "An Article" {
		t.Errorf("Title = %q", rec.Title)
	}
	wantTags := []string{"tech", "Reading List"}
	if len(rec.Tags) != len(wantTags) || rec.Tags[1] != "Reading List" {
		t.Errorf("Tags = %v, want %v", rec.Tags, wantTags)
	}
	if rec.Metadata["collection_name"] != "Reading List" {
		t.Errorf("collection_name = %v", rec.Metadata["collection_name"])
	}
	if rec.Metadata["is_favorite"] != true {
		t.Errorf("is_favorite = %v, want true", rec.Metadata["is_favorite"])
	}
	if rec.CreatedAt == nil || rec.CreatedAt.Year() != 2024 {
		t.Errorf("CreatedAt = %v", rec.CreatedAt)
	}
}

func TestParseBookmarkFallbacks(t *testing.T) {
	s := &pageStream{collections: map[int]string{}}

	result := s.parse(raindropItem{ID: 7, Link: "https://example.com"})
	if result.Record.Title != "Untitled" {
		t.Errorf("Title = %q, want Untitled", result.Record.Title)
	}

	bad := s.parse(raindropItem{Link: "https://example.com/no-id"})
	if bad.SoftErr == nil {
		t.Error("item without _id should be a soft error")
	}
}

func TestParseBookmarkDoesNotDuplicateCollectionTag(t *testing.T) {
	s := &pageStream{collections: map[int]string{5: "tech"}}

	result := s.parse(raindropItem{
		ID:         1,
		Tags:       []string{"tech"},
		Collection: raindropCollectionRef{ID: 5},
	})
	if len(result.Record.Tags) != 1 {
		t.Errorf("Tags = %v, want single entry", result.Record.Tags)
	}
}

func TestValidateCredentials(t *testing.T) {
	testCases := []struct {
		name    string
		status  int
		body    string
		wantOK  bool
		wantMsg string
	}{
		{
			name:    "authenticated",
			status:  200,
			body:    `{"user":{"name":"alice"}}`,
			wantOK:  true,
			wantMsg: "Authenticated as alice",
		},
		{
			name:    "unauthorized",
			status:  401,
			body:    `{}`,
			wantOK:  false,
			wantMsg: "Invalid or expired token",
		},
		{
			name:    "server error",
			status:  500,
			body:    `{}`,
			wantOK:  false,
			wantMsg: "API error: 500",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a := testAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				io.WriteString(w, tc.body)
			}))

			ok, msg := a.ValidateCredentials(context.Background())
			if ok != tc.wantOK {
				t.Errorf("ok = %v, want %v", ok, tc.wantOK)
			}
			if msg != tc.wantMsg {
				t.Errorf("msg = %q, want %q", msg, tc.wantMsg)
			}
		})
	}
}
