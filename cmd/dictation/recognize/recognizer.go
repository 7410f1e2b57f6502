package recognize

import (
	"strings"
	"time"
)

// Options are per-call decoding parameters. The two tiers differ only in
// these: the engine instance is shared across calls on a worker.
type Options struct {
	// Language to use (empty means autodetection).
	Language string
	// Sampling temperature.
	Temperature float32
	// Beam width for decoding. A width of 1 selects greedy sampling.
	BeamWidth int
	// Upper bound on decoded tokens. Zero means no limit.
	MaxTokens int
	// Optional prompt to condition decoding on preceding conversation.
	InitialPrompt string
}

// Result is the raw engine output for one audio buffer.
type Result struct {
	Text         string
	SegmentCount int
}

// Recognizer turns PCM audio into text. Implementations are not required
// to be safe for concurrent use; callers serialize access per instance.
type Recognizer interface {
	Recognize(samples []float32, opts Options) (Result, error)
	Destroy() error
}

// EngineFactory builds a Recognizer. The scheduler calls it once per
// worker so each goroutine owns its instance.
type EngineFactory func() (Recognizer, error)

// TranscriptResult is a recognized utterance attributed to a source
// segment, ready for downstream dedup, diarization and correction.
type TranscriptResult struct {
	SegmentID  string
	Text       string
	Confidence float64
	// IsTemporary marks fast-tier output that an accurate-tier result is
	// expected to replace.
	IsTemporary bool
	// Merged marks a result assembled from several duplicates. The
	// SegmentID is the most confident member's, so it stays stable for
	// consumers tracking segments by ID.
	Merged    bool
	Speaker   string
	Timestamp time.Time
	Latency   time.Duration
	Start     time.Duration
	End       time.Duration
}

// estimateConfidence derives a confidence score from the decoded text and
// the segment's signal energy. The engine does not expose token
// probabilities, so this is a heuristic: longer coherent output from a
// louder segment scores higher.
func estimateConfidence(text string, energy float32) float64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}

	score := 0.5

	switch {
	case len(words) >= 5:
		score += 0.25
	case len(words) >= 2:
		score += 0.15
	}

	if energy > 0.01 {
		score += 0.2
	} else if energy > 0.001 {
		score += 0.1
	}

	// Heavily repeated tokens are a decoder degeneracy signal.
	if len(words) >= 4 {
		seen := make(map[string]int, len(words))
		for _, w := range words {
			seen[strings.ToLower(w)]++
		}
		if len(seen)*2 < len(words) {
			score -= 0.3
		}
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
