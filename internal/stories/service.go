// Package stories turns admitted posts into published clips and schedules
// runs over the configured communities.
package stories

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/storyreel/storyreel-agent/internal/artifacts"
	"github.com/storyreel/storyreel-agent/internal/logging"
	"github.com/storyreel/storyreel-agent/internal/media"
	"github.com/storyreel/storyreel-agent/internal/pipeline"
	"github.com/storyreel/storyreel-agent/internal/publish"
	"github.com/storyreel/storyreel-agent/internal/segmenter"
	"github.com/storyreel/storyreel-agent/internal/sources"
)

// Titles maps raw post titles to short titles. Implementations degrade to
// the raw title on failure.
type Titles interface {
	Shorten(ctx context.Context, title string) (string, error)
}

// TextRewriter corrects post text for narration.
type TextRewriter interface {
	Correct(ctx context.Context, text string) (string, error)
}

type SegmentProcessor interface {
	Process(ctx context.Context, shortTitle string, seg pipeline.Segment, total int) (*pipeline.Assets, error)
}

type ClipSplitter interface {
	Split(ctx context.Context, src media.Clip, chunkSeconds float64, outDir, base string) ([]media.Clip, error)
}

// Recorder receives pipeline events, e.g. for metrics.
type Recorder interface {
	PostsFetched(subreddit string, n int)
	PostAdmitted(subreddit string)
	PostRejected(reason string)
	SegmentRendered()
	SegmentAbandoned()
	ClipSplit()
	ClipPublished()
	ClipFailed()
	RunStarted()
	RunFinished(status string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) PostsFetched(string, int)          {}
func (nopRecorder) PostAdmitted(string)               {}
func (nopRecorder) PostRejected(string)               {}
func (nopRecorder) SegmentRendered()                  {}
func (nopRecorder) SegmentAbandoned()                 {}
func (nopRecorder) ClipSplit()                        {}
func (nopRecorder) ClipPublished()                    {}
func (nopRecorder) ClipFailed()                       {}
func (nopRecorder) RunStarted()                       {}
func (nopRecorder) RunFinished(string, time.Duration) {}

// Options are the routing thresholds.
type Options struct {
	Policy         segmenter.Policy
	MaxBodyWords   int
	MaxClipSeconds float64
	Hashtags       string
}

// Deps bundles the collaborators of a Service.
type Deps struct {
	Titles    Titles
	Rewriter  TextRewriter
	Cache     *artifacts.Cache
	Segments  SegmentProcessor
	Splitter  ClipSplitter
	Publisher publish.Publisher
	Repo      Repository
	Recorder  Recorder
}

type Service struct {
	titles    Titles
	rewriter  TextRewriter
	cache     *artifacts.Cache
	segments  SegmentProcessor
	splitter  ClipSplitter
	publisher publish.Publisher
	repo      Repository
	recorder  Recorder
	opts      Options
	logger    *slog.Logger
}

func NewService(deps Deps, opts Options, logger *slog.Logger) *Service {
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if opts.Policy.LongThreshold <= 0 || opts.Policy.MinWords <= 0 {
		opts.Policy = segmenter.DefaultPolicy
	}
	return &Service{
		titles:    deps.Titles,
		rewriter:  deps.Rewriter,
		cache:     deps.Cache,
		segments:  deps.Segments,
		splitter:  deps.Splitter,
		publisher: deps.Publisher,
		repo:      deps.Repo,
		recorder:  deps.Recorder,
		opts:      opts,
		logger:    logger,
	}
}

// ProcessPost admits, renders and publishes one post. Segment and upload
// failures are logged and counted in the result; they do not fail the post.
func (s *Service) ProcessPost(ctx context.Context, runID string, post sources.Post) (*PostResult, error) {
	logger := logging.WithPostID(s.logger, post.ID, post.Subreddit)
	result := &PostResult{PostID: post.ID}

	ok, reason := Admit(post, s.opts.MaxBodyWords)
	if !ok {
		result.Reason = reason
		s.recorder.PostRejected(reason)
		logger.Info("post rejected", "reason", reason)
		return result, nil
	}
	result.Admitted = true
	s.recorder.PostAdmitted(post.Subreddit)

	shortTitle, err := s.titles.Shorten(ctx, post.Title)
	if err != nil {
		logger.Warn("title cache save failed", "error", err)
	}
	if strings.TrimSpace(shortTitle) == "" {
		shortTitle = post.Title
	}
	result.ShortTitle = shortTitle

	text := s.correctedText(ctx, logger, post, shortTitle)
	parts := segmenter.Plan(text, s.opts.Policy)
	result.Segments = len(parts)
	if len(parts) == 0 {
		logger.Info("post has no narratable text")
		return result, nil
	}

	var clips []media.Clip
	for i, part := range parts {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		seg := pipeline.Segment{Index: i + 1, Text: part, Post: &post}
		assets, err := s.segments.Process(ctx, shortTitle, seg, len(parts))
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			s.recorder.SegmentAbandoned()
			logging.WithSegment(logger, seg.Index, len(parts)).Warn("segment skipped", "error", err)
			continue
		}
		s.recorder.SegmentRendered()

		segClips, err := s.boundClip(ctx, post, shortTitle, seg.Index, assets.Clip)
		if err != nil {
			s.recorder.SegmentAbandoned()
			logging.WithSegment(logger, seg.Index, len(parts)).Warn("clip split failed, segment skipped", "error", err)
			continue
		}
		for j := range segClips {
			segClips[j].Part, segClips[j].Total = seg.Index, len(parts)
			if len(segClips) > 1 {
				segClips[j].Chunk, segClips[j].Chunks = j+1, len(segClips)
			}
		}
		clips = append(clips, segClips...)
	}
	result.ClipsRendered = len(clips)

	description := s.description(ctx, logger, post, shortTitle)
	for _, clip := range clips {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		switch s.publishClip(ctx, logger, runID, post, shortTitle, description, clip) {
		case publishDone:
			result.ClipsPublished++
		case publishSkipped:
			result.ClipsSkipped++
		case publishFailed:
			result.ClipsFailed++
		}
	}

	logger.Info("post processed",
		"short_title", shortTitle,
		"segments", result.Segments,
		"clips", result.ClipsRendered,
		"published", result.ClipsPublished,
		"skipped", result.ClipsSkipped,
		"failed", result.ClipsFailed,
	)
	return result, nil
}

// correctedText returns the cached correction, producing it on first use.
// A failed correction falls back to the original body and is not cached.
func (s *Service) correctedText(ctx context.Context, logger *slog.Logger, post sources.Post, shortTitle string) string {
	if strings.TrimSpace(post.Body) == "" {
		return ""
	}
	key := artifacts.NewKey(post.Subreddit, shortTitle, artifacts.KindTranscript, 1)
	text, err := s.cache.GetOrCreateText(ctx, key, func(ctx context.Context) (string, error) {
		return s.rewriter.Correct(ctx, post.Body)
	})
	if err != nil || strings.TrimSpace(text) == "" {
		logger.Warn("text correction failed, using original body", "error", err)
		return post.Body
	}
	return text
}

// boundClip splits clips longer than the duration limit.
func (s *Service) boundClip(ctx context.Context, post sources.Post, shortTitle string, index int, clip media.Clip) ([]media.Clip, error) {
	if s.opts.MaxClipSeconds <= 0 || clip.Duration <= s.opts.MaxClipSeconds {
		return []media.Clip{clip}, nil
	}
	key := artifacts.NewKey(post.Subreddit, shortTitle, artifacts.KindChunk, index)
	chunkPath := s.cache.Store().Path(key)
	base := strings.TrimSuffix(filepath.Base(chunkPath), filepath.Ext(chunkPath))

	chunks, err := s.splitter.Split(ctx, clip, chunkSeconds(s.opts.MaxClipSeconds), filepath.Dir(chunkPath), base)
	if err != nil {
		return nil, err
	}
	s.recorder.ClipSplit()
	return chunks, nil
}

// chunkSeconds is the split length that keeps keyframe-aligned chunks
// within limit.
func chunkSeconds(limit float64) float64 {
	if limit > 2*media.KeyframeInterval {
		return limit - media.KeyframeInterval
	}
	return limit
}

// description returns the cached upload description for the post.
func (s *Service) description(ctx context.Context, logger *slog.Logger, post sources.Post, shortTitle string) string {
	key := artifacts.NewKey(post.Subreddit, shortTitle, artifacts.KindDescription, 1)
	text, err := s.cache.GetOrCreateText(ctx, key, func(context.Context) (string, error) {
		return Description(post, s.opts.Hashtags), nil
	})
	if err != nil {
		logger.Warn("description artifact unavailable", "error", err)
		return Description(post, s.opts.Hashtags)
	}
	return text
}

type publishOutcome int

const (
	publishDone publishOutcome = iota
	publishSkipped
	publishFailed
)

func (s *Service) publishClip(ctx context.Context, logger *slog.Logger, runID string, post sources.Post, shortTitle, description string, clip media.Clip) publishOutcome {
	videoKey := s.ledgerKey(clip.Path)
	logger = logger.With("part", clip.Part, "parts", clip.Total, "chunk", clip.Chunk, "video_key", videoKey)

	existing, err := s.repo.GetUpload(ctx, videoKey)
	if err != nil {
		logger.Error("upload ledger lookup failed", "error", err)
		s.recorder.ClipFailed()
		return publishFailed
	}
	if existing != nil {
		logger.Debug("clip already published", "remote_id", existing.RemoteID)
		return publishSkipped
	}

	title := PublishTitle(shortTitle, clip, s.opts.Hashtags)
	remoteID, err := s.publisher.Publish(ctx, publish.Video{
		Path:        clip.Path,
		Title:       title,
		Description: description,
		Tags:        Tags(s.opts.Hashtags),
	})
	if err != nil {
		var uploadErr *publish.UploadError
		if errors.As(err, &uploadErr) {
			logger.Error("clip upload rejected", "status", uploadErr.StatusCode, "retryable", uploadErr.IsRetryable())
		} else {
			logger.Error("clip upload failed", "error", err)
		}
		s.recorder.ClipFailed()
		return publishFailed
	}
	s.recorder.ClipPublished()

	if publish.IsDryRun(s.publisher) {
		logger.Info("clip published as dry run, not recorded", "remote_id", remoteID, "title", title)
		return publishDone
	}
	if err := s.repo.RecordUpload(ctx, &Upload{
		VideoKey:  videoKey,
		RemoteID:  remoteID,
		Title:     title,
		PostID:    post.ID,
		Part:      clip.Part,
		Total:     clip.Total,
		RunID:     runID,
		CreatedAt: time.Now(),
	}); err != nil {
		logger.Error("failed to record upload", "remote_id", remoteID, "error", err)
	}
	logger.Info("clip published", "remote_id", remoteID, "title", title)
	return publishDone
}

func (s *Service) ledgerKey(path string) string {
	rel, err := filepath.Rel(s.cache.Store().Root(), path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// PublishTitle formats an upload title: the short title, a part suffix when
// the post spans several clips, then the hashtags. Parts follow the segment
// index, so a segment rendered on a later run keeps its number. Chunks of a
// split segment are numbered "i.j", or "j" when the post has one segment.
func PublishTitle(shortTitle string, clip media.Clip, hashtags string) string {
	title := shortTitle
	switch {
	case clip.Chunks > 1 && clip.Total > 1:
		title = fmt.Sprintf("%s - Part %d.%d", title, clip.Part, clip.Chunk)
	case clip.Chunks > 1:
		title = fmt.Sprintf("%s - Part %d", title, clip.Chunk)
	case clip.Total > 1:
		title = fmt.Sprintf("%s - Part %d", title, clip.Part)
	}
	if h := strings.TrimSpace(hashtags); h != "" {
		title += " " + h
	}
	return title
}

// Description is the upload description for post.
func Description(post sources.Post, hashtags string) string {
	var b strings.Builder
	b.WriteString(post.Title)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Story from r/%s", post.Subreddit)
	if post.Author != "" {
		fmt.Fprintf(&b, " by u/%s", post.Author)
	}
	b.WriteString("\n")
	if h := strings.TrimSpace(hashtags); h != "" {
		b.WriteString("\n")
		b.WriteString(h)
		b.WriteString("\n")
	}
	return b.String()
}

// Tags converts "#a #b" into ["a", "b"].
func Tags(hashtags string) []string {
	var tags []string
	for _, f := range strings.Fields(hashtags) {
		if t := strings.TrimLeft(f, "#"); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
