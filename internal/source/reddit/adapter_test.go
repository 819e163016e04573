package reddit

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestParseSubmission(t *testing.T) {
	sub := &submissionData{
		ID:          "abc12",
		Title:       "A Link Post",
		Author:      "someuser",
		Subreddit:   "golang",
		URL:         "https://example.com/article",
		Permalink:   "/r/golang/comments/abc12/a_link_post/",
		Thumbnail:   "https://b.thumbs.redditmedia.com/x.jpg",
		Score:       150,
		NumComments: 12,
		CreatedUTC:  1700000000,
	}

	rec := parseSubmission(sub)

	if rec.Source != SourceID {
		t.Errorf("Source = %q, want %q", rec.Source, SourceID)
	}
	if rec.ExternalID != "abc12" {
		t.Errorf("ExternalID = %q", rec.ExternalID)
	}
	if rec.URL != "https://example.com/article" {
		t.Errorf("URL = %q, want the link target for a link post", rec.URL)
	}
	if rec.ThumbnailURL != "https://b.thumbs.redditmedia.com/x.jpg" {
		t.Errorf("ThumbnailURL = %q", rec.ThumbnailURL)
	}
	if len(rec.Tags) != 1 || rec.Tags[0] != "golang" {
		t.Errorf("Tags = %v, want [golang]", rec.Tags)
	}
	if rec.Metadata["post_type"] != "submission" {
		t.Errorf("post_type = %v", rec.Metadata["post_type"])
	}
	want := time.Unix(1700000000, 0).UTC()
	if rec.CreatedAt == nil || !rec.CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", rec.CreatedAt, want)
	}
}

func TestParseSubmissionSelfPost(t *testing.T) {
	sub := &submissionData{
		ID:        "def34",
		Title:     "A Question",
		Subreddit: "golang",
		IsSelf:    true,
		SelfText:  "What is the idiomatic way?",
		URL:       "https://www.reddit.com/r/golang/comments/def34/a_question/",
		Permalink: "/r/golang/comments/def34/a_question/",
		Thumbnail: "self",
	}

	rec := parseSubmission(sub)

	if rec.URL != "https://reddit.com/r/golang/comments/def34/a_question/" {
		t.Errorf("URL = %q, want permalink URL for self post", rec.URL)
	}
	if rec.ThumbnailURL != "" {
		t.Errorf("ThumbnailURL = %q, want empty for placeholder thumbnail", rec.ThumbnailURL)
	}
	if rec.ContentText != "What is the idiomatic way?" {
		t.Errorf("ContentText = %q", rec.ContentText)
	}
	if rec.Author != "[deleted]" {
		t.Errorf("Author = %q, want [deleted] fallback", rec.Author)
	}
}

func TestParseSubmissionPrefersPreviewImage(t *testing.T) {
	sub := &submissionData{
		ID:        "ghi56",
		Title:     "Image Post",
		Subreddit: "pics",
		Thumbnail: "https://b.thumbs.redditmedia.com/small.jpg",
	}
	sub.Preview = &struct {
		Images []previewImage `json:"images"`
	}{}
	var img previewImage
	img.Source.URL = "https://preview.redd.it/full.jpg"
	sub.Preview.Images = []previewImage{img}

	rec := parseSubmission(sub)
	if rec.ThumbnailURL != "https://preview.redd.it/full.jpg" {
		t.Errorf("ThumbnailURL = %q, want preview source", rec.ThumbnailURL)
	}
}

func TestParseComment(t *testing.T) {
	com := &commentData{
		ID:         "xyz99",
		Body:       "This is the answer.",
		Author:     "helpful",
		Subreddit:  "golang",
		LinkID:     "t3_abc12",
		Permalink:  "/r/golang/comments/abc12/a_question/xyz99/",
		CreatedUTC: 1700000000,
	}

	rec := parseComment(com)

	if rec.ExternalID != "c_xyz99" {
		t.Errorf("ExternalID = %q, want comment prefix", rec.ExternalID)
	}
	if rec.Title != "Comment in r/golang: This is the answer." {
		t.Errorf("Title = %q", rec.Title)
	}
	if rec.URL != "https://reddit.com/r/golang/comments/abc12/a_question/xyz99/" {
		t.Errorf("URL = %q", rec.URL)
	}
	if rec.Metadata["submission_id"] != "abc12" {
		t.Errorf("submission_id = %v, want abc12", rec.Metadata["submission_id"])
	}
	if rec.Metadata["post_type"] != "comment" {
		t.Errorf("post_type = %v", rec.Metadata["post_type"])
	}
}

func TestParseCommentTruncatesLongBodyInTitle(t *testing.T) {
	com := &commentData{
		ID:        "long1",
		Body:      strings.Repeat("a", 300),
		Subreddit: "golang",
	}

	rec := parseComment(com)
	if !strings.HasSuffix(rec.Title, "...") {
		t.Errorf("Title = %q, want truncated preview", rec.Title)
	}
	if len(rec.Title) > 150 {
		t.Errorf("Title length = %d, want short preview", len(rec.Title))
	}
	if rec.ContentText != com.Body {
		t.Error("ContentText should keep the full body")
	}
}

func TestParseThing(t *testing.T) {
	testCases := []struct {
		name     string
		kind     string
		data     string
		wantSoft bool
		wantID   string
	}{
		{
			name:   "submission",
			kind:   "t3",
			data:   `{"id":"aaa","title":"Post","subreddit":"golang"}`,
			wantID: "aaa",
		},
		{
			name:   "comment",
			kind:   "t1",
			data:   `{"id":"bbb","body":"text","subreddit":"golang"}`,
			wantID: "c_bbb",
		},
		{
			name:     "unknown kind",
			kind:     "t5",
			data:     `{}`,
			wantSoft: true,
		},
		{
			name:     "malformed data",
			kind:     "t3",
			data:     `{"id":123}`,
			wantSoft: true,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := parseThing(listingThing{Kind: tc.kind, Data: json.RawMessage(tc.data)})
			if tc.wantSoft {
				if result.SoftErr == nil {
					t.Fatal("expected soft error")
				}
				return
			}
			if result.SoftErr != nil {
				t.Fatalf("unexpected soft error: %v", result.SoftErr)
			}
			if result.Record.ExternalID != tc.wantID {
				t.Errorf("ExternalID = %q, want %q", result.Record.ExternalID, tc.wantID)
			}
		})
	}
}
