// Package media composes narrated caption clips and splits long renders,
// driving ffmpeg/ffprobe as subprocesses.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

const maxStderrBytes = 8 * 1024 // tail of stderr kept for diagnostics

// FFmpeg executes compiled stream graphs and probes media files.
type FFmpeg interface {
	Run(ctx context.Context, stream *ffmpeg.Stream) error
	Probe(ctx context.Context, path string) (*ProbeResult, error)
}

// ProbeResult holds the fields the pipeline needs from ffprobe.
type ProbeResult struct {
	Duration   float64
	Width      int
	Height     int
	Codec      string
	PixFmt     string
	AudioCodec string
	HasAudio   bool
	HasVideo   bool
}

// ExecError reports a non-zero ffmpeg/ffprobe exit.
type ExecError struct {
	Tool       string
	ExitCode   int
	StderrTail string
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%s exited %d: %s", e.Tool, e.ExitCode, truncate(e.StderrTail, 512))
}

// RealFFmpeg runs the ffmpeg and ffprobe binaries.
type RealFFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	logger      *slog.Logger
}

func NewRealFFmpeg(ffmpegPath, ffprobePath string, logger *slog.Logger) *RealFFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &RealFFmpeg{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath, logger: logger}
}

// Available reports whether both binaries resolve on PATH.
func (f *RealFFmpeg) Available() error {
	if _, err := exec.LookPath(f.ffmpegPath); err != nil {
		return fmt.Errorf("ffmpeg not found: %w", err)
	}
	if _, err := exec.LookPath(f.ffprobePath); err != nil {
		return fmt.Errorf("ffprobe not found: %w", err)
	}
	return nil
}

// Run compiles the stream graph into arguments and executes ffmpeg.
func (f *RealFFmpeg) Run(ctx context.Context, stream *ffmpeg.Stream) error {
	args := append([]string{"-hide_banner", "-loglevel", "error"}, stream.GetArgs()...)
	_, err := f.exec(ctx, f.ffmpegPath, args, io.Discard)
	return err
}

type probeJSON struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		PixFmt    string `json:"pix_fmt"`
		Duration  string `json:"duration"`
	} `json:"streams"`
}

func (f *RealFFmpeg) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	var stdout bytes.Buffer
	args := []string{"-v", "error", "-print_format", "json", "-show_format", "-show_streams", path}
	if _, err := f.exec(ctx, f.ffprobePath, args, &stdout); err != nil {
		return nil, err
	}
	return parseProbe(stdout.Bytes())
}

func parseProbe(data []byte) (*ProbeResult, error) {
	var raw probeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("cannot parse ffprobe JSON: %w", err)
	}

	res := &ProbeResult{}
	if raw.Format.Duration != "" {
		d, err := strconv.ParseFloat(raw.Format.Duration, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w", raw.Format.Duration, err)
		}
		res.Duration = d
	}
	for _, s := range raw.Streams {
		switch s.CodecType {
		case "video":
			if res.HasVideo {
				continue
			}
			res.HasVideo = true
			res.Width, res.Height = s.Width, s.Height
			res.Codec, res.PixFmt = s.CodecName, s.PixFmt
		case "audio":
			if res.HasAudio {
				continue
			}
			res.HasAudio = true
			res.AudioCodec = s.CodecName
		}
		if res.Duration == 0 && s.Duration != "" {
			res.Duration, _ = strconv.ParseFloat(s.Duration, 64)
		}
	}
	if res.Duration <= 0 {
		return nil, errors.New("media has no duration")
	}
	return res, nil
}

func (f *RealFFmpeg) exec(ctx context.Context, bin string, args []string, stdout io.Writer) (time.Duration, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, bin, args...)

	var stderrBuf bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}
	cmd.Stdout = stdout

	if f.logger != nil {
		f.logger.Debug("executing media command", "bin", bin, "args", args)
	}

	err := cmd.Run()
	elapsed := time.Since(start)
	if err == nil {
		return elapsed, nil
	}

	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	if ctx.Err() != nil {
		return elapsed, fmt.Errorf("%s cancelled: %w", bin, ctx.Err())
	}
	if exitCode == -1 {
		return elapsed, fmt.Errorf("%s failed to start: %w", bin, err)
	}

	if f.logger != nil {
		f.logger.Warn("media command failed",
			"bin", bin,
			"exit_code", exitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(stderrBuf.String(), 512),
		)
	}
	return elapsed, &ExecError{Tool: bin, ExitCode: exitCode, StderrTail: stderrBuf.String()}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		tail := append([]byte(nil), b[len(b)-lw.limit:]...)
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
