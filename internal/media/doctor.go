package media

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const defaultDoctorTTL = 5 * time.Minute

// Capabilities reports which media tools and encoders the host provides.
type Capabilities struct {
	FFmpeg   bool      `json:"ffmpeg"`
	FFprobe  bool      `json:"ffprobe"`
	Libx264  bool      `json:"libx264"`
	AAC      bool      `json:"aac"`
	Version  string    `json:"version,omitempty"`
	Error    string    `json:"error,omitempty"`
	ProbedAt time.Time `json:"probed_at"`
}

// CanRender reports whether every tool the compositor needs is present.
func (c *Capabilities) CanRender() bool {
	return c.FFmpeg && c.FFprobe && c.Libx264 && c.AAC
}

// CapabilityProber inspects the host's media tooling.
type CapabilityProber interface {
	Capabilities(ctx context.Context) (*Capabilities, error)
}

// Capabilities asks ffmpeg for its version and encoder list.
func (f *RealFFmpeg) Capabilities(ctx context.Context) (*Capabilities, error) {
	caps := &Capabilities{ProbedAt: time.Now()}

	var version bytes.Buffer
	if _, err := f.exec(ctx, f.ffprobePath, []string{"-version"}, &version); err == nil {
		caps.FFprobe = true
	}

	version.Reset()
	if _, err := f.exec(ctx, f.ffmpegPath, []string{"-hide_banner", "-version"}, &version); err != nil {
		caps.Error = err.Error()
		return caps, nil
	}
	caps.FFmpeg = true
	caps.Version = firstLine(version.String())

	var encoders bytes.Buffer
	if _, err := f.exec(ctx, f.ffmpegPath, []string{"-hide_banner", "-encoders"}, &encoders); err != nil {
		caps.Error = err.Error()
		return caps, nil
	}
	caps.Libx264, caps.AAC = parseEncoders(encoders.String())
	return caps, nil
}

func parseEncoders(out string) (libx264, aac bool) {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch fields[1] {
		case "libx264":
			libx264 = true
		case "aac":
			aac = true
		}
	}
	return libx264, aac
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// CachedDoctor caches capability probes so status polling does not spawn
// ffmpeg on every request.
type CachedDoctor struct {
	prober CapabilityProber
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.RWMutex
	cached *Capabilities
}

func NewCachedDoctor(prober CapabilityProber, logger *slog.Logger) *CachedDoctor {
	return &CachedDoctor{prober: prober, ttl: defaultDoctorTTL, logger: logger}
}

// Get returns cached capabilities if fresh, otherwise re-probes.
func (d *CachedDoctor) Get(ctx context.Context) (*Capabilities, error) {
	d.mu.RLock()
	if d.cached != nil && time.Since(d.cached.ProbedAt) < d.ttl {
		caps := d.cached
		d.mu.RUnlock()
		return caps, nil
	}
	d.mu.RUnlock()

	return d.Refresh(ctx)
}

// Peek returns the last probe without refreshing it.
func (d *CachedDoctor) Peek() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Refresh forces a new probe. A failed probe falls back to the stale entry.
func (d *CachedDoctor) Refresh(ctx context.Context) (*Capabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	caps, err := d.prober.Capabilities(ctx)
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("media capability probe failed", "error", err)
		}
		if d.cached != nil {
			return d.cached, nil
		}
		return nil, err
	}
	if !caps.CanRender() && d.logger != nil {
		d.logger.Warn("media tooling incomplete",
			"ffmpeg", caps.FFmpeg,
			"ffprobe", caps.FFprobe,
			"libx264", caps.Libx264,
			"aac", caps.AAC,
		)
	}
	d.cached = caps
	return caps, nil
}

// Invalidate clears the cached capabilities.
func (d *CachedDoctor) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}
