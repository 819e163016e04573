package reddit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "saved_posts.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseCSV(t *testing.T) {
	csv := "id,permalink\n" +
		"abc12,/r/golang/comments/abc12/a_post/\n" +
		"def34,/r/golang/comments/def34/deleted_by_user/\n" +
		"ghi56,/r/pics/comments/ghi56/removed/\n" +
		",/r/golang/comments/noid/\n" +
		"jkl78,/r/askreddit/comments/jkl78/another/\n"

	g := &GDPRImporter{csvPath: writeCSV(t, csv)}
	rows, err := g.parseCSV(context.Background())
	if err != nil {
		t.Fatalf("parseCSV failed: %v", err)
	}

	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2 (deleted/removed/incomplete dropped)", len(rows))
	}
	if rows[0].id != "abc12" || rows[1].id != "jkl78" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestParseCSVColumnOrderIndependent(t *testing.T) {
	csv := "permalink,id\n/r/golang/comments/abc12/a_post/,abc12\n"

	g := &GDPRImporter{csvPath: writeCSV(t, csv)}
	rows, err := g.parseCSV(context.Background())
	if err != nil {
		t.Fatalf("parseCSV failed: %v", err)
	}
	if len(rows) != 1 || rows[0].id != "abc12" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestParseCSVMissingColumns(t *testing.T) {
	g := &GDPRImporter{csvPath: writeCSV(t, "foo,bar\n1,2\n")}
	if _, err := g.parseCSV(context.Background()); err == nil {
		t.Fatal("expected error for CSV without id/permalink columns")
	}
}

func TestMinimalStub(t *testing.T) {
	testCases := []struct {
		name          string
		id            string
		permalink     string
		wantID        string
		wantType      string
		wantSubreddit string
	}{
		{
			name:          "submission",
			id:            "abc12",
			permalink:     "/r/golang/comments/abc12/a_post/",
			wantID:        "abc12",
			wantType:      "submission",
			wantSubreddit: "golang",
		},
		{
			name:          "comment has extra path segment",
			id:            "xyz99",
			permalink:     "/r/golang/comments/abc12/a_post/xyz99/",
			wantID:        "c_xyz99",
			wantType:      "comment",
			wantSubreddit: "golang",
		},
		{
			name:          "no subreddit in permalink",
			id:            "q1",
			permalink:     "/user/someone/saved/q1/",
			wantID:        "q1",
			wantType:      "submission",
			wantSubreddit: "unknown",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := minimalStub(tc.id, tc.permalink)
			if rec.ExternalID != tc.wantID {
				t.Errorf("ExternalID = %q, want %q", rec.ExternalID, tc.wantID)
			}
			if rec.Metadata["post_type"] != tc.wantType {
				t.Errorf("post_type = %v, want %q", rec.Metadata["post_type"], tc.wantType)
			}
			if rec.Tags[0] != tc.wantSubreddit {
				t.Errorf("subreddit tag = %q, want %q", rec.Tags[0], tc.wantSubreddit)
			}
			if rec.Metadata["api_unavailable"] != true {
				t.Error("minimal stub should be marked api_unavailable")
			}
			if rec.Source != SourceID {
				t.Errorf("Source = %q, want %q (unified namespace)", rec.Source, SourceID)
			}
		})
	}
}

func TestMinimalStubAbsoluteURL(t *testing.T) {
	rec := minimalStub("a", "/r/golang/comments/a/post/")
	if rec.URL != "https://reddit.com/r/golang/comments/a/post/" {
		t.Errorf("URL = %q, want absolute", rec.URL)
	}

	rec = minimalStub("b", "https://old.reddit.com/r/golang/comments/b/post/")
	if rec.URL != "https://old.reddit.com/r/golang/comments/b/post/" {
		t.Errorf("URL = %q, want untouched absolute permalink", rec.URL)
	}
}

func TestGDPRImporterIndexSource(t *testing.T) {
	g := NewGDPRImporter(nil, "export.csv", 0)
	if g.IndexSource() != SourceID {
		t.Errorf("IndexSource() = %q, want %q", g.IndexSource(), SourceID)
	}
	if g.workers != defaultGDPRWorkers {
		t.Errorf("workers = %d, want default %d", g.workers, defaultGDPRWorkers)
	}
}
