package media

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var videoExts = map[string]bool{".mp4": true, ".mov": true, ".mkv": true, ".webm": true}

// Backgrounds resolves the background video for a story. The configured
// path is either a single video or a directory of videos; with a directory
// the choice is a stable function of the seed.
type Backgrounds struct {
	path string
}

func NewBackgrounds(path string) *Backgrounds {
	return &Backgrounds{path: path}
}

// Pick returns the background for seed.
func (b *Backgrounds) Pick(seed string) (string, error) {
	info, err := os.Stat(b.path)
	if err != nil {
		return "", fmt.Errorf("background path: %w", err)
	}
	if !info.IsDir() {
		return b.path, nil
	}

	entries, err := os.ReadDir(b.path)
	if err != nil {
		return "", fmt.Errorf("read background dir: %w", err)
	}
	var videos []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if videoExts[strings.ToLower(filepath.Ext(e.Name()))] {
			videos = append(videos, e.Name())
		}
	}
	if len(videos) == 0 {
		return "", fmt.Errorf("no background videos in %s", b.path)
	}
	sort.Strings(videos)

	h := fnv.New32a()
	h.Write([]byte(seed))
	return filepath.Join(b.path, videos[h.Sum32()%uint32(len(videos))]), nil
}
