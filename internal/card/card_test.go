package card

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/storyreel/storyreel-agent/internal/logging"
)

func TestMarkup_FillsAndEscapes(t *testing.T) {
	html, err := Markup(Card{
		Subreddit: "tifu",
		Author:    "baker",
		Title:     "TIFU <script>alert(1)</script>",
		Text:      "I put salt & sugar in.",
		Upvotes:   1234,
		Comments:  56,
	})
	if err != nil {
		t.Fatalf("Markup() error = %v", err)
	}
	if strings.Contains(html, "<script>") {
		t.Errorf("title was not escaped: %s", html)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatal(err)
	}
	checks := map[string]string{
		".community": "r/tifu",
		".author":    "u/baker",
		".title":     "TIFU <script>alert(1)</script>",
		".body":      "I put salt & sugar in.",
		".upvotes":   "1.2k upvotes",
		".comments":  "56 comments",
	}
	for sel, want := range checks {
		if got := doc.Find(sel).Text(); got != want {
			t.Errorf("%s = %q, want %q", sel, got, want)
		}
	}
}

func TestMarkup_OmitsMissingAuthor(t *testing.T) {
	html, err := Markup(Card{Subreddit: "tifu", Title: "t", Text: "b"})
	if err != nil {
		t.Fatal(err)
	}
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(html))
	if doc.Find(".author").Length() != 0 {
		t.Error("author element should be removed when empty")
	}
}

func TestFormatCount(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{-3, "0"},
		{0, "0"},
		{999, "999"},
		{1000, "1k"},
		{1250, "1.2k"},
		{45200, "45k"},
		{3400000, "3.4m"},
	}
	for _, tt := range tests {
		if got := FormatCount(tt.in); got != tt.want {
			t.Errorf("FormatCount(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestScreenshotRenderer_Render(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\nfake")
	var fields = map[string]string{}
	var markup string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/forms/chromium/screenshot/html" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for k, v := range r.MultipartForm.Value {
			fields[k] = v[0]
		}
		f, hdr, err := r.FormFile("files")
		if err != nil || hdr.Filename != "index.html" {
			http.Error(w, "missing index.html", http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		markup = string(data)
		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "card.png")
	r := NewScreenshotRenderer(srv.URL+"/", logging.Discard())
	if err := r.Render(context.Background(), Card{Subreddit: "tifu", Title: "Hello", Text: "World."}, dst); err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	got, _ := os.ReadFile(dst)
	if string(got) != string(png) {
		t.Errorf("image bytes = %q", got)
	}
	if fields["width"] != "600" || fields["height"] != "400" || fields["omitBackground"] != "true" || fields["format"] != "png" {
		t.Errorf("form fields = %v", fields)
	}
	if fields["clip"] != "false" {
		t.Errorf("clip = %q, want false so the full card height is captured", fields["clip"])
	}
	if !strings.Contains(markup, "World.") {
		t.Errorf("markup missing segment text: %s", markup)
	}
}

func TestScreenshotRenderer_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "chromium crashed", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "card.png")
	err := NewScreenshotRenderer(srv.URL, logging.Discard()).Render(context.Background(), Card{Title: "x"}, dst)
	var renderErr *RenderError
	if !errors.As(err, &renderErr) || renderErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected RenderError 503, got %v", err)
	}
	if _, statErr := os.Stat(dst); !os.IsNotExist(statErr) {
		t.Error("no image should be written on failure")
	}
}
