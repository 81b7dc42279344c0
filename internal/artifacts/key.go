// Package artifacts provides the deterministic, path-keyed artifact store and
// the skip-if-present cache that gates every derived asset.
package artifacts

import (
	"fmt"
	"path"
	"strings"
	"unicode"
)

// Kind identifies the type of a derived asset.
type Kind string

const (
	KindAudio       Kind = "audio"
	KindScreenshot  Kind = "screenshot"
	KindDescription Kind = "description"
	KindVideo       Kind = "video"
	KindTranscript  Kind = "transcript"
	KindChunk       Kind = "chunk"
)

var kindLayout = map[Kind]struct {
	folder string
	ext    string
}{
	KindAudio:       {"audio", ".mp3"},
	KindScreenshot:  {"screenshot", ".png"},
	KindDescription: {"description", ".txt"},
	KindVideo:       {"video", ".mp4"},
	KindTranscript:  {"transcript", ".txt"},
	KindChunk:       {"chunks", ".mp4"},
}

// Key deterministically addresses one artifact. Subreddit and Title are
// sanitized when the key is rendered, so callers may pass raw labels.
type Key struct {
	Subreddit string
	Title     string
	Kind      Kind
	Index     int
}

// NewKey builds a Key for the given post labels.
func NewKey(subreddit, title string, kind Kind, index int) Key {
	return Key{Subreddit: subreddit, Title: title, Kind: kind, Index: index}
}

// Dir returns the slash-separated directory that holds the artifact.
func (k Key) Dir() string {
	layout := kindLayout[k.Kind]
	return path.Join(Sanitize(k.Subreddit), Sanitize(k.Title), layout.folder)
}

// Name returns the artifact file name: <kind>_<title>_<index><ext>.
func (k Key) Name() string {
	layout := kindLayout[k.Kind]
	return fmt.Sprintf("%s_%s_%d%s", k.Kind, Sanitize(k.Title), k.Index, layout.ext)
}

// String returns the slash-separated relative path of the artifact.
func (k Key) String() string {
	return path.Join(k.Dir(), k.Name())
}

// Validate reports keys that cannot be rendered to a stable path.
func (k Key) Validate() error {
	if _, ok := kindLayout[k.Kind]; !ok {
		return fmt.Errorf("unknown artifact kind %q", k.Kind)
	}
	if Sanitize(k.Subreddit) == "" {
		return fmt.Errorf("artifact key has empty subreddit")
	}
	if Sanitize(k.Title) == "" {
		return fmt.Errorf("artifact key has empty title")
	}
	if k.Index < 0 {
		return fmt.Errorf("artifact key has negative index %d", k.Index)
	}
	return nil
}

// Sanitize lower-cases s, replaces every run of non-alphanumeric characters
// with a single underscore and strips leading and trailing underscores.
func Sanitize(s string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}
