package segmenter

import (
	"fmt"
	"math/rand"
	"reflect"
	"strings"
	"testing"
)

func TestSegment_Examples(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		minWords int
		want     []string
	}{
		{
			name:     "punctuation only at the end",
			text:     "a b c d e f.",
			minWords: 3,
			want:     []string{"a b c d e f."},
		},
		{
			name:     "closes at first sentence end past threshold",
			text:     "a b c. d e f g h i.",
			minWords: 3,
			want:     []string{"a b c.", "d e f g h i."},
		},
		{
			name:     "sentence end before threshold does not close",
			text:     "one two three four five.",
			minWords: 3,
			want:     []string{"one two three four five."},
		},
		{
			name:     "short remainder merges into last segment",
			text:     "a b c. d e f! g h",
			minWords: 3,
			want:     []string{"a b c.", "d e f! g h"},
		},
		{
			name:     "long unpunctuated remainder stays separate",
			text:     "a b c? d e f g",
			minWords: 3,
			want:     []string{"a b c?", "d e f g"},
		},
		{
			name:     "never reaches threshold",
			text:     "tiny text.",
			minWords: 150,
			want:     []string{"tiny text."},
		},
		{
			name:     "whitespace normalised",
			text:     "  a\tb\n\nc.   d  ",
			minWords: 10,
			want:     []string{"a b c. d"},
		},
		{
			name:     "empty",
			text:     "   ",
			minWords: 3,
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Segment(tt.text, tt.minWords)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Segment(%q, %d) = %q, want %q", tt.text, tt.minWords, got, tt.want)
			}
		})
	}
}

func TestSegment_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	endings := []string{"", "", "", ".", "!", "?", ","}

	for trial := 0; trial < 200; trial++ {
		n := rng.Intn(300) + 1
		words := make([]string, n)
		for i := range words {
			words[i] = fmt.Sprintf("w%d%s", i, endings[rng.Intn(len(endings))])
		}
		text := strings.Join(words, " ")
		minWords := rng.Intn(40) + 1

		segs := Segment(text, minWords)
		if len(segs) == 0 {
			t.Fatalf("trial %d: no segments for nonempty input", trial)
		}

		total := 0
		for i, s := range segs {
			wc := WordCount(s)
			total += wc
			if i < len(segs)-1 && wc < minWords {
				t.Fatalf("trial %d: segment %d has %d words, below minimum %d", trial, i, wc, minWords)
			}
		}
		if total != n {
			t.Fatalf("trial %d: word count %d, want %d", trial, total, n)
		}
		if strings.Join(segs, " ") != text {
			t.Fatalf("trial %d: concatenation does not reproduce input", trial)
		}
	}
}

func TestPlan(t *testing.T) {
	short := strings.Repeat("word ", 399) + "end."
	if got := Plan(short, DefaultPolicy); len(got) != 1 {
		t.Fatalf("Plan(400 words) = %d segments, want 1", len(got))
	}

	var sb strings.Builder
	for i := 0; i < 9; i++ {
		sb.WriteString(strings.Repeat("word ", 59))
		sb.WriteString("stop. ")
	}
	long := sb.String() // 540 words, sentence every 60
	got := Plan(long, DefaultPolicy)
	if len(got) != 3 {
		t.Fatalf("Plan(540 words) = %d segments, want 3", len(got))
	}
	for i, s := range got {
		if WordCount(s) != 180 {
			t.Errorf("segment %d has %d words, want 180", i, WordCount(s))
		}
	}

	if got := Plan("", DefaultPolicy); got != nil {
		t.Fatalf("Plan(empty) = %q, want nil", got)
	}
}

func TestWordCount(t *testing.T) {
	if got := WordCount(" one\ttwo\nthree  "); got != 3 {
		t.Errorf("WordCount = %d, want 3", got)
	}
}
