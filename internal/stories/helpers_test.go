package stories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/storyreel/storyreel-agent/internal/artifacts"
	"github.com/storyreel/storyreel-agent/internal/db"
	"github.com/storyreel/storyreel-agent/internal/logging"
	"github.com/storyreel/storyreel-agent/internal/media"
	"github.com/storyreel/storyreel-agent/internal/pipeline"
	"github.com/storyreel/storyreel-agent/internal/publish"
	"github.com/storyreel/storyreel-agent/internal/segmenter"
	"github.com/storyreel/storyreel-agent/internal/sources"
)

type fakeTitles struct{ calls int }

func (f *fakeTitles) Shorten(ctx context.Context, title string) (string, error) {
	f.calls++
	return "Cake Drama", nil
}

type fakeRewriter struct {
	calls int
	err   error
}

func (f *fakeRewriter) Correct(ctx context.Context, text string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return text, nil
}

// fakeSegments writes a stand-in clip per segment under the artifact store.
type fakeSegments struct {
	store     artifacts.FileStore
	durations map[int]float64
	fail      map[int]bool
	calls     []int
	texts     []string
}

func (f *fakeSegments) Process(ctx context.Context, shortTitle string, seg pipeline.Segment, total int) (*pipeline.Assets, error) {
	f.calls = append(f.calls, seg.Index)
	f.texts = append(f.texts, seg.Text)
	if f.fail[seg.Index] {
		return nil, fmt.Errorf("%w: narration: quota", pipeline.ErrSegmentAbandoned)
	}
	key := artifacts.NewKey(seg.Post.Subreddit, shortTitle, artifacts.KindVideo, seg.Index)
	path := f.store.Path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte("mp4"), 0o644); err != nil {
		return nil, err
	}
	d := f.durations[seg.Index]
	if d == 0 {
		d = 60
	}
	return &pipeline.Assets{SegmentIndex: seg.Index, Video: key, Clip: media.Clip{Path: path, Duration: d}}, nil
}

// fakeSplitter cuts into whole chunks of the requested length.
type fakeSplitter struct {
	calls  int
	length float64
	err    error
}

func (f *fakeSplitter) Split(ctx context.Context, src media.Clip, chunkSeconds float64, outDir, base string) ([]media.Clip, error) {
	f.calls++
	f.length = chunkSeconds
	if f.err != nil {
		return nil, f.err
	}
	n := int(src.Duration / chunkSeconds)
	if n < 1 {
		n = 1
	}
	var out []media.Clip
	for i := 0; i < n; i++ {
		p := filepath.Join(outDir, fmt.Sprintf("%s_%03d.mp4", base, i))
		os.MkdirAll(outDir, 0o755)
		os.WriteFile(p, []byte("chunk"), 0o644)
		out = append(out, media.Clip{Path: p, Duration: chunkSeconds})
	}
	return out, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	titles []string
	videos []publish.Video
	failOn map[string]error
}

func (f *fakePublisher) Publish(ctx context.Context, v publish.Video) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles = append(f.titles, v.Title)
	f.videos = append(f.videos, v)
	if err := f.failOn[v.Title]; err != nil {
		return "", err
	}
	return fmt.Sprintf("remote-%d", len(f.titles)), nil
}

type fakeSource struct {
	posts   map[string][]sources.Post
	calls   []string
	onFetch func()
}

func (f *fakeSource) Fetch(ctx context.Context, community string) []sources.Post {
	f.calls = append(f.calls, community)
	if f.onFetch != nil {
		f.onFetch()
	}
	return f.posts[community]
}

type fixture struct {
	service   *Service
	repo      *SQLiteRepository
	store     *artifacts.FSStore
	titles    *fakeTitles
	rewriter  *fakeRewriter
	segments  *fakeSegments
	splitter  *fakeSplitter
	publisher *fakePublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	store, err := artifacts.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	f := &fixture{
		repo:      NewRepository(database.Conn()),
		store:     store,
		titles:    &fakeTitles{},
		rewriter:  &fakeRewriter{},
		segments:  &fakeSegments{store: store, durations: map[int]float64{}, fail: map[int]bool{}},
		splitter:  &fakeSplitter{},
		publisher: &fakePublisher{failOn: map[string]error{}},
	}
	f.service = NewService(Deps{
		Titles:    f.titles,
		Rewriter:  f.rewriter,
		Cache:     artifacts.NewCache(store, nil, logging.Discard()),
		Segments:  f.segments,
		Splitter:  f.splitter,
		Publisher: f.publisher,
		Repo:      f.repo,
	}, Options{
		Policy:         segmenter.DefaultPolicy,
		MaxBodyWords:   600,
		MaxClipSeconds: 180,
		Hashtags:       "#shorts #reddit",
	}, logging.Discard())
	return f
}

// story builds text of n ten-word sentences.
func story(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString("one two three four five six seven eight nine ten.")
	}
	return b.String()
}

func post(id, body string) sources.Post {
	return sources.Post{
		ID: id, Title: "AITA for eating the cake?", Body: body,
		Author: "baker", Subreddit: "AmItheAsshole", Upvotes: 900, Comments: 120,
	}
}

var errQuota = errors.New("quota exceeded")
