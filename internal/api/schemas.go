package api

import (
	"time"

	"github.com/storyreel/storyreel-agent/internal/media"
	"github.com/storyreel/storyreel-agent/internal/stories"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State       string               `json:"state"`
	LastError   string               `json:"last_error,omitempty"`
	Paused      bool                 `json:"paused"`
	Communities []string             `json:"communities"`
	ActiveRun   *RunResponse         `json:"active_run,omitempty"`
	LastRun     *RunResponse         `json:"last_run,omitempty"`
	Media       *MediaStatusResponse `json:"media,omitempty"`
}

type MediaStatusResponse struct {
	FFmpeg      bool   `json:"ffmpeg"`
	FFprobe     bool   `json:"ffprobe"`
	Libx264     bool   `json:"libx264"`
	AAC         bool   `json:"aac"`
	CanRender   bool   `json:"can_render"`
	Version     string `json:"version,omitempty"`
	LastProbeAt string `json:"last_probe_at,omitempty"`
}

type RunResponse struct {
	ID             string `json:"id"`
	TriggeredBy    string `json:"triggered_by"`
	Status         string `json:"status"`
	PostsSeen      int    `json:"posts_seen"`
	PostsAdmitted  int    `json:"posts_admitted"`
	ClipsRendered  int    `json:"clips_rendered"`
	ClipsPublished int    `json:"clips_published"`
	Error          string `json:"error,omitempty"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

type RunsResponse struct {
	Runs []RunResponse `json:"runs"`
}

type TriggerResponse struct {
	Queued bool `json:"queued"`
}

type PauseResponse struct {
	Paused bool `json:"paused"`
}

type UploadResponse struct {
	VideoKey  string `json:"video_key"`
	RemoteID  string `json:"remote_id"`
	Title     string `json:"title"`
	PostID    string `json:"post_id"`
	Part      int    `json:"part"`
	Total     int    `json:"total"`
	RunID     string `json:"run_id,omitempty"`
	CreatedAt string `json:"created_at"`
}

type UploadsResponse struct {
	Uploads []UploadResponse `json:"uploads"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func RunToResponse(r *stories.Run) RunResponse {
	return RunResponse{
		ID:             r.ID,
		TriggeredBy:    r.TriggeredBy,
		Status:         r.Status,
		PostsSeen:      r.PostsSeen,
		PostsAdmitted:  r.PostsAdmitted,
		ClipsRendered:  r.ClipsRendered,
		ClipsPublished: r.ClipsPublished,
		Error:          r.Error,
		CreatedAt:      r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      r.UpdatedAt.Format(time.RFC3339),
	}
}

func UploadToResponse(u *stories.Upload) UploadResponse {
	return UploadResponse{
		VideoKey:  u.VideoKey,
		RemoteID:  u.RemoteID,
		Title:     u.Title,
		PostID:    u.PostID,
		Part:      u.Part,
		Total:     u.Total,
		RunID:     u.RunID,
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
}

func MediaToResponse(c *media.Capabilities) *MediaStatusResponse {
	resp := &MediaStatusResponse{
		FFmpeg:    c.FFmpeg,
		FFprobe:   c.FFprobe,
		Libx264:   c.Libx264,
		AAC:       c.AAC,
		CanRender: c.CanRender(),
		Version:   c.Version,
	}
	if !c.ProbedAt.IsZero() {
		resp.LastProbeAt = c.ProbedAt.Format(time.RFC3339)
	}
	return resp
}
