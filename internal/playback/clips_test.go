package playback

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestParseByteRange(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		size      int64
		wantStart int64
		wantEnd   int64
		wantNil   bool
		wantErr   error
	}{
		{"empty header", "", 1000, 0, 0, true, nil},
		{"full range", "bytes=0-999", 1000, 0, 999, false, nil},
		{"open end", "bytes=500-", 1000, 500, 999, false, nil},
		{"suffix", "bytes=-500", 1000, 500, 999, false, nil},
		{"single byte", "bytes=0-0", 1000, 0, 0, false, nil},
		{"end clamped", "bytes=0-2000", 1000, 0, 999, false, nil},
		{"suffix larger than file", "bytes=-2000", 500, 0, 499, false, nil},
		{"multi range takes first", "bytes=0-99, 200-299", 1000, 0, 99, false, nil},

		{"start at size", "bytes=1000-", 1000, 0, 0, false, ErrUnsatisfiable},
		{"start beyond size", "bytes=1500-2000", 1000, 0, 0, false, ErrUnsatisfiable},
		{"reversed", "bytes=500-100", 1000, 0, 0, false, ErrUnsatisfiable},
		{"no unit", "invalid", 1000, 0, 0, false, ErrInvalidRange},
		{"wrong unit", "chars=0-100", 1000, 0, 0, false, ErrInvalidRange},
		{"bad start", "bytes=abc-100", 1000, 0, 0, false, ErrInvalidRange},
		{"bad end", "bytes=0-abc", 1000, 0, 0, false, ErrInvalidRange},
		{"zero suffix", "bytes=-0", 1000, 0, 0, false, ErrInvalidRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseByteRange(tt.header, tt.size)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantNil {
				if got != nil {
					t.Errorf("expected nil range, got %+v", got)
				}
				return
			}
			if got.Start != tt.wantStart || got.End != tt.wantEnd {
				t.Errorf("range = %d-%d, want %d-%d", got.Start, got.End, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	root := t.TempDir()
	s := NewClipServer(root, nil)

	got, err := s.Resolve("tifu/my_story/video/video_my_story_0.mp4")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if want := filepath.Join(root, "tifu", "my_story", "video", "video_my_story_0.mp4"); got != want {
		t.Errorf("Resolve = %q, want %q", got, want)
	}

	for _, bad := range []string{"", "/etc/passwd", "../secret", "a/../../b", ".."} {
		if _, err := s.Resolve(bad); !errors.Is(err, ErrOutsideRoot) {
			t.Errorf("Resolve(%q) err = %v, want ErrOutsideRoot", bad, err)
		}
	}
}

func TestServeClip(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "clips"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "clips", "a.mp4"), []byte("0123456789"), 0644); err != nil {
		t.Fatal(err)
	}
	s := NewClipServer(root, nil)

	tests := []struct {
		name       string
		path       string
		rng        string
		wantStatus int
		wantBody   string
		wantRange  string
	}{
		{"whole file", "clips/a.mp4", "", http.StatusOK, "0123456789", ""},
		{"partial", "clips/a.mp4", "bytes=2-5", http.StatusPartialContent, "2345", "bytes 2-5/10"},
		{"suffix", "clips/a.mp4", "bytes=-3", http.StatusPartialContent, "789", "bytes 7-9/10"},
		{"malformed range ignored", "clips/a.mp4", "items=1-2", http.StatusOK, "0123456789", ""},
		{"unsatisfiable", "clips/a.mp4", "bytes=20-", http.StatusRequestedRangeNotSatisfiable, "", "bytes */10"},
		{"missing", "clips/b.mp4", "", http.StatusNotFound, "", ""},
		{"directory", "clips", "", http.StatusNotFound, "", ""},
		{"escape", "../a.mp4", "", http.StatusBadRequest, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/clips/file", nil)
			if tt.rng != "" {
				req.Header.Set("Range", tt.rng)
			}
			rec := httptest.NewRecorder()
			if err := s.ServeClip(rec, req, tt.path); err != nil {
				t.Fatalf("ServeClip: %v", err)
			}
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantBody != "" {
				body, _ := io.ReadAll(rec.Body)
				if string(body) != tt.wantBody {
					t.Errorf("body = %q, want %q", body, tt.wantBody)
				}
			}
			if got := rec.Header().Get("Content-Range"); got != tt.wantRange {
				t.Errorf("Content-Range = %q, want %q", got, tt.wantRange)
			}
		})
	}
}
