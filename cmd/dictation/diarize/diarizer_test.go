package diarize

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// voice synthesizes a periodic signal with a couple of harmonics, enough
// for pitch and energy based features to tell speakers apart.
func voice(f0, amplitude float64, n int) []float32 {
	samples := make([]float32, n)
	for i := range samples {
		t := float64(i) / sampleRate
		v := amplitude*math.Sin(2*math.Pi*f0*t) + 0.5*amplitude*math.Sin(4*math.Pi*f0*t)
		samples[i] = float32(v)
	}
	return samples
}

func TestExtractFeatures(t *testing.T) {
	t.Run("too short", func(t *testing.T) {
		_, err := ExtractFeatures(make([]float32, MinSamples-1))
		require.ErrorContains(t, err, "audio segment too short")
	})

	t.Run("pitch recovered", func(t *testing.T) {
		f, err := ExtractFeatures(voice(120, 0.3, sampleRate))
		require.NoError(t, err)
		require.InDelta(t, 120, f.F0, 2)
		require.Greater(t, f.Energy, 0.0)
		require.Greater(t, f.ZCR, 0.0)
	})

	t.Run("deterministic", func(t *testing.T) {
		samples := voice(200, 0.2, sampleRate)
		a, err := ExtractFeatures(samples)
		require.NoError(t, err)
		b, err := ExtractFeatures(samples)
		require.NoError(t, err)
		require.Equal(t, a, b)
	})
}

func TestDiarizerFirstSpeaker(t *testing.T) {
	d := NewDiarizer()

	name, err := d.Identify(voice(120, 0.3, sampleRate))
	require.NoError(t, err)
	require.Equal(t, "Speaker 1", name)
	require.Equal(t, 1, d.Count())
	require.Equal(t, "Speaker 1", d.CurrentSpeaker())
}

func TestDiarizerSameVoiceMatches(t *testing.T) {
	d := NewDiarizer()

	samples := voice(120, 0.3, sampleRate)
	name, err := d.Identify(samples)
	require.NoError(t, err)

	again, err := d.Identify(samples)
	require.NoError(t, err)
	require.Equal(t, name, again)
	require.Equal(t, 1, d.Count())

	profiles := d.Profiles()
	require.Len(t, profiles, 1)
	require.Equal(t, 2, profiles[0].SampleCount)
	require.InDelta(t, 1, profiles[0].Confidence, 1e-9)
}

func TestDiarizerDistinctVoices(t *testing.T) {
	d := NewDiarizer()

	_, err := d.Identify(voice(120, 0.3, sampleRate))
	require.NoError(t, err)

	name, err := d.Identify(voice(280, 0.05, sampleRate))
	require.NoError(t, err)
	require.Equal(t, "Speaker 2", name)
	require.Equal(t, 2, d.Count())
	require.Equal(t, "Speaker 2", d.CurrentSpeaker())
}

func TestDiarizerProfileAdapts(t *testing.T) {
	d := NewDiarizer()

	_, err := d.Identify(voice(120, 0.3, sampleRate))
	require.NoError(t, err)
	before := d.Profiles()[0].F0

	// A slightly higher pitch from the same voice still matches and nudges
	// the profile towards the new observation.
	name, err := d.Identify(voice(130, 0.3, sampleRate))
	require.NoError(t, err)
	require.Equal(t, "Speaker 1", name)

	after := d.Profiles()[0].F0
	require.Greater(t, after, before)
	require.Less(t, after, 130.0)
	require.Equal(t, 2, d.Profiles()[0].SampleCount)
}

func TestDiarizerShortAudio(t *testing.T) {
	d := NewDiarizer()

	_, err := d.Identify(make([]float32, 100))
	require.Error(t, err)
	require.Zero(t, d.Count())
	require.Empty(t, d.CurrentSpeaker())
}
