package recognize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEstimateConfidence(t *testing.T) {
	tcs := []struct {
		name     string
		text     string
		energy   float32
		expected float64
	}{
		{
			name:     "empty text",
			text:     "",
			energy:   0.05,
			expected: 0,
		},
		{
			name:     "single quiet word",
			text:     "hello",
			energy:   0.0001,
			expected: 0.5,
		},
		{
			name:     "short loud phrase",
			text:     "hello there",
			energy:   0.05,
			expected: 0.85,
		},
		{
			name:     "long loud sentence",
			text:     "please schedule the meeting for tomorrow morning",
			energy:   0.05,
			expected: 0.95,
		},
		{
			name:     "degenerate repetition",
			text:     "the the the the the the",
			energy:   0.05,
			expected: 0.65,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			require.InDelta(t, tc.expected, estimateConfidence(tc.text, tc.energy), 1e-9)
		})
	}
}

func TestTierOptions(t *testing.T) {
	fast := FastOptions("en", "")
	require.Equal(t, 1, fast.BeamWidth)
	require.Equal(t, 20, fast.MaxTokens)
	require.InDelta(t, 0.2, float64(fast.Temperature), 1e-6)

	accurate := AccurateOptions("en", "Previous context: hello")
	require.Equal(t, 5, accurate.BeamWidth)
	require.Equal(t, 50, accurate.MaxTokens)
	require.Zero(t, accurate.Temperature)
	require.Equal(t, "Previous context: hello", accurate.InitialPrompt)
}
