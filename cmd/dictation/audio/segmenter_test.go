package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testFrameSize = 320 // 20ms at 16kHz

func feedSegmenter(s *Segmenter, frames int, speech bool) []*Segment {
	var frame []float32
	if speech {
		frame = sineFrame(testFrameSize, 440, 0.1)
	} else {
		frame = make([]float32, testFrameSize)
	}

	var completed []*Segment
	for i := 0; i < frames; i++ {
		completed = append(completed, s.Process(frame)...)
	}
	return completed
}

func newTestSegmenter() *Segmenter {
	return NewSegmenter(NewEnergyDetector(), SegmenterConfig{})
}

func TestSegmenterSilenceOnly(t *testing.T) {
	s := newTestSegmenter()

	segs := feedSegmenter(s, 100, false)
	require.Empty(t, segs)
	require.Nil(t, s.ForceCompleteCurrent())
}

func TestSegmenterSingleUtterance(t *testing.T) {
	s := newTestSegmenter()

	segs := feedSegmenter(s, 75, true) // 1.5s of speech
	require.Empty(t, segs)

	segs = feedSegmenter(s, 70, false) // enough silence to close
	require.Len(t, segs, 1)

	seg := segs[0]
	require.True(t, seg.Complete)
	require.NotEmpty(t, seg.ID)
	require.Zero(t, seg.Start)
	require.GreaterOrEqual(t, seg.Duration(), 1500*time.Millisecond)
	require.Equal(t, seg.Start+seg.Duration(), seg.End)
	require.Greater(t, seg.Energy, float32(0))

	require.Nil(t, s.ForceCompleteCurrent())
}

func TestSegmenterMaxDurationSplit(t *testing.T) {
	s := newTestSegmenter()

	// 12s of continuous speech must split at exactly the maximum, with the
	// remainder carrying on as a second segment.
	segs := feedSegmenter(s, 600, true)
	require.Len(t, segs, 1)

	first := segs[0]
	require.True(t, first.Complete)
	require.Equal(t, 10*time.Second, first.Duration())
	require.Len(t, first.Samples, 10*SampleRate)
	require.Zero(t, first.Start)
	require.Equal(t, 10*time.Second, first.End)

	segs = feedSegmenter(s, 70, false)
	require.Len(t, segs, 1)

	second := segs[0]
	require.True(t, second.Complete)
	require.Equal(t, 10*time.Second, second.Start)
	require.GreaterOrEqual(t, second.Duration(), 2*time.Second)
	require.NotEqual(t, first.ID, second.ID)
}

func TestSegmenterShortBurstDiscarded(t *testing.T) {
	s := newTestSegmenter()

	segs := feedSegmenter(s, 10, true) // 200ms, below the minimum
	require.Empty(t, segs)

	segs = feedSegmenter(s, 100, false)
	require.Empty(t, segs)
	require.Nil(t, s.ForceCompleteCurrent())
}

func TestSegmenterForceComplete(t *testing.T) {
	s := newTestSegmenter()

	segs := feedSegmenter(s, 50, true) // 1s of speech, still open
	require.Empty(t, segs)

	seg := s.ForceCompleteCurrent()
	require.NotNil(t, seg)
	require.True(t, seg.Complete)
	require.Equal(t, time.Second, seg.Duration())

	// Idempotent once closed.
	require.Nil(t, s.ForceCompleteCurrent())
}

func TestSegmenterPauseWithinUtterance(t *testing.T) {
	s := newTestSegmenter()

	// A pause shorter than the silence timeout must not split the segment.
	segs := feedSegmenter(s, 40, true)
	segs = append(segs, feedSegmenter(s, 20, false)...) // 400ms pause
	segs = append(segs, feedSegmenter(s, 40, true)...)
	require.Empty(t, segs)

	segs = feedSegmenter(s, 70, false)
	require.Len(t, segs, 1)
	require.GreaterOrEqual(t, segs[0].Duration(), 2*time.Second)
}

func TestSegmenterPos(t *testing.T) {
	s := newTestSegmenter()
	require.Zero(t, s.Pos())

	feedSegmenter(s, 50, false)
	require.Equal(t, time.Second, s.Pos())
}
