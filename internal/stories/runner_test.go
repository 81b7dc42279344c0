package stories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/storyreel/storyreel-agent/internal/logging"
	"github.com/storyreel/storyreel-agent/internal/sources"
)

type countingRecorder struct {
	nopRecorder
	fetched  int
	started  int
	finished []string
}

func (c *countingRecorder) PostsFetched(_ string, n int) { c.fetched += n }
func (c *countingRecorder) RunStarted()                  { c.started++ }
func (c *countingRecorder) RunFinished(status string, _ time.Duration) {
	c.finished = append(c.finished, status)
}

func newTestRunner(t *testing.T, f *fixture, src *fakeSource, rec Recorder) *Runner {
	t.Helper()
	return NewRunner(f.service, f.repo, src, []string{"AmItheAsshole", "tifu"}, rec, cron.Every(time.Hour), logging.Discard())
}

func TestRunOnce_RecordsRun(t *testing.T) {
	f := newFixture(t)
	tifuPost := post("p2", story(54))
	tifuPost.Subreddit = "tifu"
	rejected := post("p3", "short")
	rejected.Title = "Update on the cake"
	src := &fakeSource{posts: map[string][]sources.Post{
		"AmItheAsshole": {post("p1", story(20)), rejected},
		"tifu":          {tifuPost},
	}}
	rec := &countingRecorder{}
	r := newTestRunner(t, f, src, rec)

	run, err := r.RunOnce(context.Background(), TriggerManual)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if len(src.calls) != 2 || src.calls[0] != "AmItheAsshole" || src.calls[1] != "tifu" {
		t.Errorf("communities fetched = %v", src.calls)
	}
	if run.Status != RunStatusCompleted || run.PostsSeen != 3 || run.PostsAdmitted != 2 {
		t.Errorf("run = %+v", run)
	}
	if run.ClipsRendered != 4 || run.ClipsPublished != 4 {
		t.Errorf("clips rendered/published = %d/%d, want 4/4", run.ClipsRendered, run.ClipsPublished)
	}

	stored, err := f.repo.GetRun(context.Background(), run.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetRun() = %v, %v", stored, err)
	}
	if stored.Status != RunStatusCompleted || stored.ClipsPublished != 4 {
		t.Errorf("stored run = %+v", stored)
	}
	if rec.fetched != 3 || rec.started != 1 || len(rec.finished) != 1 || rec.finished[0] != RunStatusCompleted {
		t.Errorf("recorder = %+v", rec)
	}
	if last := r.LastRun(); last == nil || last.ID != run.ID {
		t.Errorf("LastRun() = %+v", last)
	}
}

func TestRunOnce_CancelledRunIsFailed(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &fakeSource{
		posts:   map[string][]sources.Post{"AmItheAsshole": {post("p1", story(20))}},
		onFetch: cancel,
	}
	r := newTestRunner(t, f, src, nil)

	run, err := r.RunOnce(ctx, TriggerManual)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("RunOnce() error = %v, want context.Canceled", err)
	}
	if run == nil {
		t.Fatal("expected a run record even when cancelled")
	}
	stored, _ := f.repo.GetRun(context.Background(), run.ID)
	if stored == nil || stored.Status != RunStatusFailed {
		t.Errorf("stored run = %+v", stored)
	}
}

func TestRunOnce_RejectsConcurrentRun(t *testing.T) {
	f := newFixture(t)
	r := newTestRunner(t, f, &fakeSource{}, nil)
	r.busy.Store(true)
	if _, err := r.RunOnce(context.Background(), TriggerManual); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("error = %v, want ErrRunInProgress", err)
	}
}

func TestRunner_Trigger(t *testing.T) {
	f := newFixture(t)
	r := newTestRunner(t, f, &fakeSource{}, nil)
	if !r.Trigger() {
		t.Fatal("first trigger should be queued")
	}
	if r.Trigger() {
		t.Error("second trigger should be dropped while one is queued")
	}
}

func TestRunner_PausePersists(t *testing.T) {
	f := newFixture(t)
	r := newTestRunner(t, f, &fakeSource{}, nil)

	r.Pause()
	if !r.IsPaused() {
		t.Fatal("IsPaused() = false after Pause()")
	}
	if v, _ := f.repo.GetConfig(context.Background(), configKeyPaused); v != "true" {
		t.Errorf("persisted paused = %q", v)
	}
	r.Resume()
	if v, _ := f.repo.GetConfig(context.Background(), configKeyPaused); v != "false" {
		t.Errorf("persisted paused = %q", v)
	}
}

func TestRunner_StartRunsAndStops(t *testing.T) {
	f := newFixture(t)
	src := &fakeSource{posts: map[string][]sources.Post{"tifu": {post("p1", story(20))}}}
	r := newTestRunner(t, f, src, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for {
		if last := r.LastRun(); last != nil && last.Status == RunStatusCompleted {
			break
		}
		select {
		case <-deadline:
			t.Fatal("startup run did not complete")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after cancel")
	}
	if r.IsRunning() {
		t.Error("IsRunning() should be false after Start returns")
	}
}

func TestRunner_StartRespectsPersistedPause(t *testing.T) {
	f := newFixture(t)
	if err := f.repo.SetConfig(context.Background(), configKeyPaused, "true"); err != nil {
		t.Fatal(err)
	}
	src := &fakeSource{}
	r := newTestRunner(t, f, src, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	r.Start(ctx)

	if len(src.calls) != 0 {
		t.Errorf("paused runner fetched %v", src.calls)
	}
	if !r.IsPaused() {
		t.Error("paused state should be restored")
	}
}

func TestParseSchedule(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	tests := []struct {
		spec     string
		fallback time.Duration
		want     time.Time
		wantErr  bool
	}{
		{"", 2 * time.Hour, base.Add(2 * time.Hour), false},
		{"", 0, base.Add(6 * time.Hour), false},
		{"@every 45m", time.Hour, base.Add(45 * time.Minute), false},
		{"CRON_TZ=UTC 0 */6 * * *", 0, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), false},
		{"CRON_TZ=UTC @daily", 0, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), false},
		{"every day", 0, time.Time{}, true},
	}
	for _, tt := range tests {
		sched, err := ParseSchedule(tt.spec, tt.fallback)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseSchedule(%q) expected error", tt.spec)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSchedule(%q): %v", tt.spec, err)
			continue
		}
		if got := sched.Next(base); !got.Equal(tt.want) {
			t.Errorf("ParseSchedule(%q).Next = %v, want %v", tt.spec, got, tt.want)
		}
	}
}
