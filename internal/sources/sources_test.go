package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/storyreel/storyreel-agent/internal/logging"
)

const listingJSON = `{
  "kind": "Listing",
  "data": {
    "children": [
      {"kind": "t3", "data": {"id": "mod1", "title": "Rules", "selftext": "read them", "stickied": true, "subreddit": "tifu"}},
      {"kind": "t3", "data": {"id": "abc", "title": "TIFU by baking", "selftext": "It started.", "author": "u1",
        "subreddit": "tifu", "ups": 1200, "num_comments": 85, "permalink": "/r/tifu/comments/abc/"}},
      {"kind": "t3", "data": {"id": "def", "title": "TIFU twice", "selftext": "Again.", "author": "u2", "ups": 7}}
    ]
  }
}`

func TestFetch_ParsesListing(t *testing.T) {
	var gotPath, gotQuery, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery, gotUA = r.URL.Path, r.URL.RawQuery, r.UserAgent()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(listingJSON))
	}))
	defer srv.Close()

	src := NewRedditSource(srv.URL+"/", "storyreel-test/1.0", Query{Sort: "top", TimeWindow: "day", Limit: 25}, logging.Discard())
	posts := src.Fetch(context.Background(), "tifu")

	if gotPath != "/r/tifu/top.json" {
		t.Errorf("path = %q", gotPath)
	}
	if gotQuery != "limit=25&t=day" {
		t.Errorf("query = %q", gotQuery)
	}
	if gotUA != "storyreel-test/1.0" {
		t.Errorf("user agent = %q", gotUA)
	}

	if len(posts) != 2 {
		t.Fatalf("got %d posts, want 2 (stickied skipped)", len(posts))
	}
	want := Post{ID: "abc", Title: "TIFU by baking", Body: "It started.", Author: "u1",
		Subreddit: "tifu", Upvotes: 1200, Comments: 85, Permalink: "/r/tifu/comments/abc/"}
	if posts[0] != want {
		t.Errorf("posts[0] = %+v, want %+v", posts[0], want)
	}
	if posts[1].Subreddit != "tifu" {
		t.Errorf("missing subreddit should default to community, got %q", posts[1].Subreddit)
	}
}

func TestFetch_DegradesToEmpty(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "down", http.StatusInternalServerError)
		}},
		{"rate limited", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data": [`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			src := NewRedditSource(srv.URL, "", Query{}, logging.Discard())
			if posts := src.Fetch(context.Background(), "tifu"); len(posts) != 0 {
				t.Errorf("Fetch() = %v, want empty", posts)
			}
			if _, err := src.fetch(context.Background(), "tifu"); err == nil {
				t.Error("fetch() should report the underlying error")
			}
		})
	}
}

func TestListingURL_Defaults(t *testing.T) {
	src := NewRedditSource("https://www.reddit.com", "", Query{}, logging.Discard())
	if got := src.listingURL("AmItheAsshole"); got != "https://www.reddit.com/r/AmItheAsshole/top.json" {
		t.Errorf("listingURL() = %q", got)
	}
}
