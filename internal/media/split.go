package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// DefaultMinTailSeconds is the shortest trailing chunk kept on its own.
const DefaultMinTailSeconds = 30.0

// Splitter cuts over-long renders into fixed-length chunks and folds a
// too-short trailing chunk into its predecessor.
type Splitter struct {
	ff      FFmpeg
	minTail float64
	logger  *slog.Logger
}

func NewSplitter(ff FFmpeg, minTail float64, logger *slog.Logger) *Splitter {
	if minTail <= 0 {
		minTail = DefaultMinTailSeconds
	}
	return &Splitter{ff: ff, minTail: minTail, logger: logger}
}

// Split cuts src into chunks of at most chunkSeconds written to outDir as
// <base>_000.mp4, <base>_001.mp4, ... and rebalances the tail.
func (s *Splitter) Split(ctx context.Context, src Clip, chunkSeconds float64, outDir, base string) ([]Clip, error) {
	if chunkSeconds <= 0 {
		return nil, fmt.Errorf("invalid chunk length %v", chunkSeconds)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create chunk dir: %w", err)
	}
	if err := removeChunks(outDir, base); err != nil {
		return nil, err
	}

	pattern := filepath.Join(outDir, base+"_%03d.mp4")
	stream := ffmpeg.Input(src.Path).Output(pattern, ffmpeg.KwArgs{
		"c":                "copy",
		"map":              "0",
		"f":                "segment",
		"segment_time":     formatSeconds(chunkSeconds),
		"reset_timestamps": "1",
	}).OverWriteOutput()
	if err := s.ff.Run(ctx, stream); err != nil {
		return nil, fmt.Errorf("split %s: %w", src.Path, err)
	}

	paths, err := listChunks(outDir, base)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("split %s produced no chunks", src.Path)
	}

	chunks := make([]Clip, 0, len(paths))
	for _, p := range paths {
		pr, err := s.ff.Probe(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("probe chunk %s: %w", p, err)
		}
		chunks = append(chunks, Clip{Path: p, Duration: pr.Duration})
	}

	s.logger.Info("clip split", "source", src.Path, "chunks", len(chunks))
	return s.Rebalance(ctx, chunks)
}

// Rebalance merges the last chunk into the one before it when it is shorter
// than the minimum tail. Fewer than two chunks are returned unchanged.
func (s *Splitter) Rebalance(ctx context.Context, chunks []Clip) ([]Clip, error) {
	if len(chunks) < 2 {
		return chunks, nil
	}
	last := chunks[len(chunks)-1]
	if last.Duration >= s.minTail {
		return chunks, nil
	}
	prev := chunks[len(chunks)-2]

	merged, err := s.concat(ctx, prev, last)
	if err != nil {
		return nil, err
	}

	out := append([]Clip(nil), chunks[:len(chunks)-2]...)
	out = append(out, merged)

	s.logger.Info("short tail merged",
		"tail_s", last.Duration,
		"merged_s", merged.Duration,
		"chunks", len(out),
	)
	return out, nil
}

func (s *Splitter) concat(ctx context.Context, prev, last Clip) (Clip, error) {
	dir := filepath.Dir(prev.Path)
	list, err := os.CreateTemp(dir, ".concat-*.txt")
	if err != nil {
		return Clip{}, fmt.Errorf("create concat list: %w", err)
	}
	listPath := list.Name()
	defer os.Remove(listPath)

	for _, c := range []Clip{prev, last} {
		abs, err := filepath.Abs(c.Path)
		if err != nil {
			list.Close()
			return Clip{}, err
		}
		fmt.Fprintf(list, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	if err := list.Close(); err != nil {
		return Clip{}, fmt.Errorf("write concat list: %w", err)
	}

	tmp := strings.TrimSuffix(prev.Path, ".mp4") + ".merged.mp4"
	stream := ffmpeg.Input(listPath, ffmpeg.KwArgs{"f": "concat", "safe": "0"}).
		Output(tmp, ffmpeg.KwArgs{"c": "copy"}).
		OverWriteOutput()
	if err := s.ff.Run(ctx, stream); err != nil {
		os.Remove(tmp)
		return Clip{}, fmt.Errorf("concat tail: %w", err)
	}

	pr, err := s.ff.Probe(ctx, tmp)
	if err != nil {
		os.Remove(tmp)
		return Clip{}, fmt.Errorf("probe merged chunk: %w", err)
	}
	if err := os.Rename(tmp, prev.Path); err != nil {
		os.Remove(tmp)
		return Clip{}, fmt.Errorf("replace chunk: %w", err)
	}
	if err := os.Remove(last.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Clip{}, fmt.Errorf("remove tail chunk: %w", err)
	}
	return Clip{Path: prev.Path, Duration: pr.Duration}, nil
}

func listChunks(dir, base string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, globEscape(base)+"_[0-9][0-9][0-9].mp4"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

func removeChunks(dir, base string) error {
	paths, err := listChunks(dir, base)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale chunk: %w", err)
		}
	}
	return nil
}

func globEscape(s string) string {
	r := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`, `\`, `\\`)
	return r.Replace(s)
}
