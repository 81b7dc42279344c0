package media

import (
	"context"
	"math"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/storyreel/storyreel-agent/internal/logging"
)

func requireFFmpeg(t *testing.T) *RealFFmpeg {
	t.Helper()
	ff := NewRealFFmpeg("", "", logging.Discard())
	if err := ff.Available(); err != nil {
		t.Skipf("ffmpeg not available: %v", err)
	}
	out, err := exec.Command("ffmpeg", "-hide_banner", "-encoders").Output()
	if err != nil || !strings.Contains(string(out), "libx264") {
		t.Skip("ffmpeg built without libx264")
	}
	return ff
}

func generate(t *testing.T, args ...string) {
	t.Helper()
	cmd := exec.Command("ffmpeg", append([]string{"-hide_banner", "-loglevel", "error", "-y"}, args...)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("generate fixture: %v\n%s", err, out)
	}
}

func TestCompose_RealFFmpeg(t *testing.T) {
	ff := requireFFmpeg(t)
	dir := t.TempDir()
	bg := filepath.Join(dir, "bg.mp4")
	card := filepath.Join(dir, "card.png")
	generate(t, "-f", "lavfi", "-i", "testsrc=duration=8:size=640x360:rate=25", "-pix_fmt", "yuv420p", bg)
	generate(t, "-f", "lavfi", "-i", "color=c=white:s=600x400", "-frames:v", "1", card)

	tests := []struct {
		name  string
		audio float64
	}{
		{"narration shorter than background", 2},
		{"narration longer than background", 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			audio := filepath.Join(dir, tt.name+".m4a")
			generate(t, "-f", "lavfi", "-i", "sine=frequency=440:duration="+formatSeconds(tt.audio), "-c:a", "aac", audio)

			out := filepath.Join(dir, tt.name+".mp4")
			clip, err := NewCompositor(ff, logging.Discard()).Compose(ctx, ComposeInput{
				Background: bg, Image: card, Audio: audio, Output: out,
			})
			if err != nil {
				t.Fatalf("Compose() error = %v", err)
			}

			pr, err := ff.Probe(ctx, clip.Path)
			if err != nil {
				t.Fatalf("Probe() error = %v", err)
			}
			if math.Abs(pr.Duration-tt.audio) > 0.25 {
				t.Errorf("duration = %.3f, want about %.3f", pr.Duration, tt.audio)
			}
			if pr.Width != FrameWidth || pr.Height != FrameHeight {
				t.Errorf("frame = %dx%d, want %dx%d", pr.Width, pr.Height, FrameWidth, FrameHeight)
			}
			if !pr.HasAudio {
				t.Error("output has no audio stream")
			}
		})
	}
}

func TestSplit_RealFFmpeg(t *testing.T) {
	ff := requireFFmpeg(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "long.mp4")
	// keyframe every second so segment cuts land on whole seconds
	generate(t, "-f", "lavfi", "-i", "testsrc=duration=25:size=320x240:rate=25",
		"-c:v", "libx264", "-g", "25", "-pix_fmt", "yuv420p", src)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	s := NewSplitter(ff, 3, logging.Discard())
	chunks, err := s.Split(ctx, Clip{Path: src, Duration: 25}, 10, filepath.Join(dir, "chunks"), "long")
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3 (%v)", len(chunks), durationsOf(chunks))
	}
	var total float64
	for _, c := range chunks {
		total += c.Duration
	}
	if math.Abs(total-25) > 0.5 {
		t.Errorf("total duration = %.2f, want about 25", total)
	}
}
