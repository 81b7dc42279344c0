package stories

import (
	"time"

	"github.com/google/uuid"
)

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"

	TriggerInterval = "interval"
	TriggerManual   = "manual"
	TriggerStartup  = "startup"
)

// Run is one pass over all configured communities.
type Run struct {
	ID             string    `json:"id"`
	TriggeredBy    string    `json:"triggered_by"`
	Status         string    `json:"status"`
	PostsSeen      int       `json:"posts_seen"`
	PostsAdmitted  int       `json:"posts_admitted"`
	ClipsRendered  int       `json:"clips_rendered"`
	ClipsPublished int       `json:"clips_published"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Upload is a ledger entry for a published clip. VideoKey is the clip's path
// relative to the artifact root.
type Upload struct {
	VideoKey  string    `json:"video_key"`
	RemoteID  string    `json:"remote_id"`
	Title     string    `json:"title"`
	PostID    string    `json:"post_id"`
	Part      int       `json:"part"`
	Total     int       `json:"total"`
	RunID     string    `json:"run_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// PostResult summarizes what ProcessPost did with one post.
type PostResult struct {
	PostID         string `json:"post_id"`
	Admitted       bool   `json:"admitted"`
	Reason         string `json:"reason,omitempty"`
	ShortTitle     string `json:"short_title,omitempty"`
	Segments       int    `json:"segments"`
	ClipsRendered  int    `json:"clips_rendered"`
	ClipsPublished int    `json:"clips_published"`
	ClipsSkipped   int    `json:"clips_skipped"`
	ClipsFailed    int    `json:"clips_failed"`
}

type ConfigEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func NewID() string {
	return uuid.NewString()
}
