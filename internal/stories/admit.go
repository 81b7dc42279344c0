package stories

import (
	"strings"

	"github.com/storyreel/storyreel-agent/internal/segmenter"
	"github.com/storyreel/storyreel-agent/internal/sources"
)

// Rejection reasons reported by Admit.
const (
	RejectUpdate  = "update_post"
	RejectTooLong = "too_long"
)

const defaultMaxBodyWords = 600

// Admit decides whether post is turned into video. Follow-up posts
// (title or body mentioning "update") and bodies over maxWords words are
// rejected. maxWords <= 0 uses the default of 600.
func Admit(post sources.Post, maxWords int) (bool, string) {
	if maxWords <= 0 {
		maxWords = defaultMaxBodyWords
	}
	if mentionsUpdate(post.Title) || mentionsUpdate(post.Body) {
		return false, RejectUpdate
	}
	if segmenter.WordCount(post.Body) > maxWords {
		return false, RejectTooLong
	}
	return true, ""
}

func mentionsUpdate(s string) bool {
	return strings.Contains(strings.ToLower(s), "update")
}
