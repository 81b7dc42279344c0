// Package pipeline produces the narrated clip for one text segment:
// narration, caption card and composite, each gated by the artifact cache.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/storyreel/storyreel-agent/internal/artifacts"
	"github.com/storyreel/storyreel-agent/internal/card"
	"github.com/storyreel/storyreel-agent/internal/logging"
	"github.com/storyreel/storyreel-agent/internal/media"
	"github.com/storyreel/storyreel-agent/internal/narration"
	"github.com/storyreel/storyreel-agent/internal/sources"
)

// ErrSegmentAbandoned marks a segment whose clip could not be produced.
// Callers skip it and continue with the next segment.
var ErrSegmentAbandoned = errors.New("segment abandoned")

// Segment is one ordered slice of a post's corrected text.
type Segment struct {
	Index int // 1-based
	Text  string
	Post  *sources.Post
}

// Assets are the artifact keys of a processed segment and the resulting clip.
type Assets struct {
	SegmentIndex int
	Audio        artifacts.Key
	Image        artifacts.Key
	Video        artifacts.Key
	Clip         media.Clip
}

type Compositor interface {
	Compose(ctx context.Context, in media.ComposeInput) (*media.Clip, error)
}

type Prober interface {
	Probe(ctx context.Context, path string) (*media.ProbeResult, error)
}

type BackgroundPicker interface {
	Pick(seed string) (string, error)
}

// Pipeline is the per-segment asset pipeline.
type Pipeline struct {
	cache       *artifacts.Cache
	narrator    narration.Narrator
	renderer    card.Renderer
	compositor  Compositor
	prober      Prober
	backgrounds BackgroundPicker
	logger      *slog.Logger
}

func New(
	cache *artifacts.Cache,
	narrator narration.Narrator,
	renderer card.Renderer,
	compositor Compositor,
	prober Prober,
	backgrounds BackgroundPicker,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		cache:       cache,
		narrator:    narrator,
		renderer:    renderer,
		compositor:  compositor,
		prober:      prober,
		backgrounds: backgrounds,
		logger:      logger,
	}
}

// Process runs narration, card and composite for seg. Stages whose artifact
// already exists are skipped. Any stage failure returns an error wrapping
// ErrSegmentAbandoned.
func (p *Pipeline) Process(ctx context.Context, shortTitle string, seg Segment, total int) (*Assets, error) {
	if seg.Post == nil {
		return nil, fmt.Errorf("%w: segment %d has no post", ErrSegmentAbandoned, seg.Index)
	}
	post := seg.Post
	logger := logging.WithSegment(logging.WithPostID(p.logger, post.ID, post.Subreddit), seg.Index, total)

	assets := &Assets{
		SegmentIndex: seg.Index,
		Audio:        artifacts.NewKey(post.Subreddit, shortTitle, artifacts.KindAudio, seg.Index),
		Image:        artifacts.NewKey(post.Subreddit, shortTitle, artifacts.KindScreenshot, seg.Index),
		Video:        artifacts.NewKey(post.Subreddit, shortTitle, artifacts.KindVideo, seg.Index),
	}

	audioPath, _, err := p.cache.GetOrCreate(ctx, assets.Audio, func(ctx context.Context, dst string) error {
		return p.narrator.Narrate(ctx, seg.Text, dst)
	})
	if err != nil {
		logger.Warn("narration failed, abandoning segment", "error", err)
		return nil, fmt.Errorf("%w: narration: %w", ErrSegmentAbandoned, err)
	}

	imagePath, _, err := p.cache.GetOrCreate(ctx, assets.Image, func(ctx context.Context, dst string) error {
		return p.renderer.Render(ctx, card.Card{
			Subreddit: post.Subreddit,
			Author:    post.Author,
			Title:     post.Title,
			Text:      seg.Text,
			Upvotes:   post.Upvotes,
			Comments:  post.Comments,
		}, dst)
	})
	if err != nil {
		logger.Warn("card render failed, abandoning segment", "error", err)
		return nil, fmt.Errorf("%w: card: %w", ErrSegmentAbandoned, err)
	}

	var composed *media.Clip
	videoPath, created, err := p.cache.GetOrCreate(ctx, assets.Video, func(ctx context.Context, dst string) error {
		bg, err := p.backgrounds.Pick(shortTitle)
		if err != nil {
			return err
		}
		composed, err = p.compositor.Compose(ctx, media.ComposeInput{
			Background: bg,
			Image:      imagePath,
			Audio:      audioPath,
			Output:     dst,
		})
		return err
	})
	if err != nil {
		logger.Warn("composite failed, abandoning segment", "error", err)
		return nil, fmt.Errorf("%w: composite: %w", ErrSegmentAbandoned, err)
	}

	var duration float64
	if created && composed != nil {
		duration = composed.Duration
	} else {
		pr, err := p.prober.Probe(ctx, videoPath)
		if err != nil {
			return nil, fmt.Errorf("%w: probe cached clip: %w", ErrSegmentAbandoned, err)
		}
		duration = pr.Duration
	}

	assets.Clip = media.Clip{Path: videoPath, Duration: duration}
	logger.Info("segment ready", "video", videoPath, "duration_s", duration, "rendered", created)
	return assets, nil
}
