package correct

import (
	"strings"
	"sync"
	"time"
)

const (
	defaultMaxSegments = 100
	defaultMaxAge      = 5 * time.Minute

	promptWords  = 50
	promptPrefix = "Previous context: "
)

// ConversationSegment is one settled utterance kept as conversation
// history.
type ConversationSegment struct {
	SegmentID  string
	Text       string
	Speaker    string
	Timestamp  time.Time
	Confidence float64
}

// Buffer holds recent conversation history, bounded both by segment count
// and by age. It is the source of decoding prompts and correction context.
type Buffer struct {
	mut         sync.Mutex
	segments    []ConversationSegment
	maxSegments int
	maxAge      time.Duration
}

func NewBuffer() *Buffer {
	return &Buffer{
		maxSegments: defaultMaxSegments,
		maxAge:      defaultMaxAge,
	}
}

// Add appends a segment, dropping anything expired or beyond the count
// bound.
func (b *Buffer) Add(seg ConversationSegment) {
	b.mut.Lock()
	defer b.mut.Unlock()

	b.dropExpired(time.Now())

	if len(b.segments) >= b.maxSegments {
		b.segments = b.segments[1:]
	}
	b.segments = append(b.segments, seg)
}

// RecentContext returns up to maxWords of the most recent conversation
// text, oldest first. A segment that would overflow the budget contributes
// its trailing words, keeping the text adjacent to what comes next.
func (b *Buffer) RecentContext(maxWords int) string {
	b.mut.Lock()
	defer b.mut.Unlock()

	var context string
	var wordCount int

	for i := len(b.segments) - 1; i >= 0; i-- {
		words := strings.Fields(b.segments[i].Text)

		if wordCount+len(words) > maxWords {
			remaining := maxWords - wordCount
			partial := strings.Join(words[len(words)-remaining:], " ")
			context = partial + " " + context
			break
		}

		context = b.segments[i].Text + " " + context
		wordCount += len(words)
	}

	return strings.TrimSpace(context)
}

// SpeakerContext returns the most recent segments spoken by one speaker,
// newest first.
func (b *Buffer) SpeakerContext(speaker string, maxSegments int) []ConversationSegment {
	b.mut.Lock()
	defer b.mut.Unlock()

	var out []ConversationSegment
	for i := len(b.segments) - 1; i >= 0 && len(out) < maxSegments; i-- {
		if b.segments[i].Speaker == speaker {
			out = append(out, b.segments[i])
		}
	}
	return out
}

// Prompt renders recent context as an engine conditioning prompt, or empty
// when there is no history.
func (b *Buffer) Prompt() string {
	context := b.RecentContext(promptWords)
	if context == "" {
		return ""
	}
	return promptPrefix + context
}

// Len returns the number of buffered segments.
func (b *Buffer) Len() int {
	b.mut.Lock()
	defer b.mut.Unlock()
	return len(b.segments)
}

func (b *Buffer) dropExpired(now time.Time) {
	cutoff := now.Add(-b.maxAge)
	for len(b.segments) > 0 && b.segments[0].Timestamp.Before(cutoff) {
		b.segments = b.segments[1:]
	}
}
