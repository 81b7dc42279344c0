package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Output frame geometry for vertical short-form video.
const (
	FrameWidth  = 1080
	FrameHeight = 1920

	cardWidth       = 900
	cardOpacity     = 0.9
	backgroundStart = 5.0
)

// KeyframeInterval is the forced keyframe spacing of composed clips in
// seconds. Stream-copy splits cut at keyframes, so a chunk can run up to
// one interval past the requested length.
const KeyframeInterval = 2.0

// Clip is a rendered video file. Part and Total are the 1-based segment
// position within the post. Chunk and Chunks are set only when a segment
// was split into several clips.
type Clip struct {
	Path     string
	Duration float64
	Part     int
	Total    int
	Chunk    int
	Chunks   int
}

// ComposeInput names the inputs of a single narrated clip.
type ComposeInput struct {
	Background string
	Image      string
	Audio      string
	Output     string
}

func (in ComposeInput) validate() error {
	switch {
	case in.Background == "":
		return errors.New("background path is required")
	case in.Image == "":
		return errors.New("image path is required")
	case in.Audio == "":
		return errors.New("audio path is required")
	case in.Output == "":
		return errors.New("output path is required")
	}
	return nil
}

// Compositor overlays a caption card on a looping background and muxes the
// narration, clamping video length to the narration's duration.
type Compositor struct {
	ff     FFmpeg
	logger *slog.Logger
}

func NewCompositor(ff FFmpeg, logger *slog.Logger) *Compositor {
	return &Compositor{ff: ff, logger: logger}
}

// Compose renders in.Output. The returned clip's duration is the narration
// duration.
func (c *Compositor) Compose(ctx context.Context, in ComposeInput) (*Clip, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	audio, err := c.ff.Probe(ctx, in.Audio)
	if err != nil {
		return nil, fmt.Errorf("probe narration: %w", err)
	}

	stream := composeGraph(in, audio.Duration)
	if err := c.ff.Run(ctx, stream); err != nil {
		return nil, fmt.Errorf("compose %s: %w", in.Output, err)
	}

	c.logger.Info("clip composed",
		"output", in.Output,
		"duration_s", audio.Duration,
	)
	return &Clip{Path: in.Output, Duration: audio.Duration, Part: 1, Total: 1}, nil
}

func composeGraph(in ComposeInput, duration float64) *ffmpeg.Stream {
	bg := ffmpeg.Input(in.Background, ffmpeg.KwArgs{
		"stream_loop": -1,
		"ss":          formatSeconds(backgroundStart),
	}).Video().
		Filter("scale", ffmpeg.Args{fmt.Sprintf("-2:%d", FrameHeight)}).
		Filter("crop", ffmpeg.Args{fmt.Sprintf("%d:%d", FrameWidth, FrameHeight)})

	card := ffmpeg.Input(in.Image, ffmpeg.KwArgs{"loop": 1}).Video().
		Filter("scale", ffmpeg.Args{fmt.Sprintf("%d:-1", cardWidth)}).
		Filter("format", ffmpeg.Args{"rgba"}).
		Filter("colorchannelmixer", ffmpeg.Args{}, ffmpeg.KwArgs{"aa": cardOpacity})

	video := bg.Overlay(card, "", ffmpeg.KwArgs{
		"x": "(main_w-overlay_w)/2",
		"y": "(main_h-overlay_h)/2",
	}).Filter("format", ffmpeg.Args{"yuv420p"})

	narration := ffmpeg.Input(in.Audio).Audio()

	return ffmpeg.Output([]*ffmpeg.Stream{video, narration}, in.Output, ffmpeg.KwArgs{
		"t":                formatSeconds(duration),
		"c:v":              "libx264",
		"preset":           "veryfast",
		"force_key_frames": fmt.Sprintf("expr:gte(t,n_forced*%g)", KeyframeInterval),
		"c:a":              "aac",
		"movflags":         "+faststart",
	}).OverWriteOutput()
}
