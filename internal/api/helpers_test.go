package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/storyreel/storyreel-agent/internal/db"
	"github.com/storyreel/storyreel-agent/internal/logging"
	"github.com/storyreel/storyreel-agent/internal/stories"
)

const testToken = "test-token-0123456789"

type fakeRunner struct {
	mu       sync.Mutex
	paused   bool
	busy     bool
	last     *stories.Run
	triggers int
}

func (f *fakeRunner) Trigger() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers++
	return f.triggers == 1
}

func (f *fakeRunner) Pause()  { f.mu.Lock(); f.paused = true; f.mu.Unlock() }
func (f *fakeRunner) Resume() { f.mu.Lock(); f.paused = false; f.mu.Unlock() }

func (f *fakeRunner) IsPaused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

func (f *fakeRunner) IsBusy() bool { return f.busy }

func (f *fakeRunner) LastRun() *stories.Run { return f.last }

type fakeClips struct {
	served []string
}

func (f *fakeClips) ServeClip(w http.ResponseWriter, r *http.Request, rel string) error {
	f.served = append(f.served, rel)
	w.Header().Set("Accept-Ranges", "bytes")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write([]byte("mp4"))
	}
	return nil
}

func newTestRepo(t *testing.T) *stories.SQLiteRepository {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), logging.Discard())
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	repo := stories.NewRepository(database.Conn())
	if err := repo.SetConfig(context.Background(), ConfigKeyAuthToken, testToken); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}
	return repo
}

func testConfig(t *testing.T) (ServerConfig, *fakeRunner) {
	t.Helper()
	runner := &fakeRunner{}
	return ServerConfig{
		Repository:  newTestRepo(t),
		Runner:      runner,
		Clips:       &fakeClips{},
		Communities: []string{"tifu", "AmItheAsshole"},
		Logger:      logging.Discard(),
		StartTime:   time.Now(),
		Version:     "test",
	}, runner
}

func authed(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.RemoteAddr = "127.0.0.1:40000"
	return req
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}
