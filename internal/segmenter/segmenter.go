// Package segmenter splits corrected post text into narration segments that
// close on sentence boundaries once a minimum length has been reached.
package segmenter

import "strings"

// Policy decides whether a text is long enough to be segmented at all and,
// if so, the minimum word count of each segment.
type Policy struct {
	LongThreshold int // segment only when the word count exceeds this
	MinWords      int // per-segment minimum once segmenting
}

// DefaultPolicy matches the production thresholds.
var DefaultPolicy = Policy{LongThreshold: 400, MinWords: 150}

// WordCount returns the number of whitespace-separated tokens in text.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// Plan applies the caller policy: texts at or below LongThreshold words are a
// single segment, longer ones go through Segment with MinWords.
func Plan(text string, p Policy) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if WordCount(text) <= p.LongThreshold {
		return []string{strings.Join(strings.Fields(text), " ")}
	}
	return Segment(text, p.MinWords)
}

// Segment tokenizes text on whitespace and accumulates tokens into a buffer.
// The buffer is closed as a segment when it holds at least minWords tokens and
// the most recent token ends with '.', '!' or '?'. A trailing remainder shorter
// than minWords is merged into the last emitted segment when one exists.
// Output segments are single-space joined.
func Segment(text string, minWords int) []string {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return nil
	}

	var segments [][]string
	var buf []string
	for _, tok := range tokens {
		buf = append(buf, tok)
		if len(buf) >= minWords && endsSentence(tok) {
			segments = append(segments, buf)
			buf = nil
		}
	}

	if len(buf) > 0 {
		if len(buf) < minWords && len(segments) > 0 {
			last := len(segments) - 1
			segments[last] = append(segments[last], buf...)
		} else {
			segments = append(segments, buf)
		}
	}

	out := make([]string, len(segments))
	for i, seg := range segments {
		out[i] = strings.Join(seg, " ")
	}
	return out
}

func endsSentence(tok string) bool {
	switch tok[len(tok)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}
