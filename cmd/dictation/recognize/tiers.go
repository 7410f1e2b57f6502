package recognize

import "time"

// Tier selects the latency/quality trade-off for a recognition pass.
type Tier int

const (
	// TierFast favors latency: greedy decoding with a short token budget,
	// used for immediate feedback on short segments.
	TierFast Tier = iota
	// TierAccurate favors quality: beam search with no temperature,
	// used for the authoritative transcription of every segment.
	TierAccurate
)

func (t Tier) String() string {
	if t == TierFast {
		return "fast"
	}
	return "accurate"
}

const (
	fastTemperature = 0.2
	fastBeamWidth   = 1
	fastMaxTokens   = 20

	accurateBeamWidth = 5
	accurateMaxTokens = 50

	// DefaultFastLatencyBudget is the time a fast-tier pass may take before
	// its result is considered stale and dropped.
	DefaultFastLatencyBudget = 150 * time.Millisecond

	// FastSegmentLimit is the longest segment the fast tier will attempt.
	FastSegmentLimit = 2 * time.Second

	// fastConfidencePenalty discounts fast-tier confidence so accurate
	// results always win merges.
	fastConfidencePenalty = 0.8
)

// FastOptions returns the decoding parameters for the fast tier.
func FastOptions(language, prompt string) Options {
	return Options{
		Language:      language,
		Temperature:   fastTemperature,
		BeamWidth:     fastBeamWidth,
		MaxTokens:     fastMaxTokens,
		InitialPrompt: prompt,
	}
}

// AccurateOptions returns the decoding parameters for the accurate tier.
func AccurateOptions(language, prompt string) Options {
	return Options{
		Language:      language,
		Temperature:   0,
		BeamWidth:     accurateBeamWidth,
		MaxTokens:     accurateMaxTokens,
		InitialPrompt: prompt,
	}
}
