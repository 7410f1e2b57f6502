package audio

import (
	"time"

	"github.com/google/uuid"
)

// Segment is a contiguous span of audio judged to contain one utterance.
// Start and End are offsets from the beginning of the stream, derived from
// the sample position rather than the wall clock so segmentation is
// deterministic for a given input. A segment is owned by the Segmenter
// until Complete is set, after which ownership transfers downstream and the
// Segmenter no longer mutates it.
type Segment struct {
	ID       string
	Samples  []float32
	Start    time.Duration
	End      time.Duration
	Complete bool
	Energy   float32

	startSample int
}

func (s *Segment) Duration() time.Duration {
	return samplesToDuration(len(s.Samples))
}

func (s *Segment) Seconds() float64 {
	return float64(len(s.Samples)) / SampleRate
}

func (s *Segment) appendFrame(frame []float32) {
	s.Samples = append(s.Samples, frame...)
	s.Energy = Energy(s.Samples)
}

func (s *Segment) complete(end time.Duration) {
	s.End = end
	s.Complete = true
}

type SegmenterConfig struct {
	MinDuration    time.Duration
	MaxDuration    time.Duration
	SilenceTimeout time.Duration
}

func (cfg *SegmenterConfig) SetDefaults() {
	if cfg.MinDuration == 0 {
		cfg.MinDuration = 500 * time.Millisecond
	}
	if cfg.MaxDuration == 0 {
		cfg.MaxDuration = 10 * time.Second
	}
	if cfg.SilenceTimeout == 0 {
		cfg.SilenceTimeout = 800 * time.Millisecond
	}
}

// Segmenter accumulates frames into bounded speech segments using VAD
// output. It has two states: idle (no open segment) and accumulating (open
// segment). While accumulating every frame is appended, speech or silence,
// until silence has persisted for the configured timeout or the segment
// reaches its maximum duration, at which point it is split rather than
// dropped.
type Segmenter struct {
	cfg SegmenterConfig
	vad Detector

	cur        *Segment
	pos        int // stream position in samples
	lastSpeech int // sample position of the last speech frame
}

func NewSegmenter(vad Detector, cfg SegmenterConfig) *Segmenter {
	cfg.SetDefaults()
	return &Segmenter{
		cfg:        cfg,
		vad:        vad,
		lastSpeech: -1,
	}
}

// Process feeds one frame through the VAD and the accumulator, returning
// any segments completed by this frame (usually zero or one; a max-duration
// split over a long frame can produce more).
func (s *Segmenter) Process(frame []float32) []*Segment {
	isSpeech := s.vad.IsSpeech(frame)
	frameStart := s.pos
	s.pos += len(frame)

	var completed []*Segment

	if isSpeech {
		s.lastSpeech = s.pos

		if s.cur == nil {
			s.open(frameStart)
		}
		s.cur.appendFrame(frame)
		completed = s.splitOverflow(completed)

		return completed
	}

	if s.cur == nil {
		return nil
	}

	// Silence while accumulating: keep appending so short pauses stay part
	// of the utterance, then close once silence has been sustained.
	s.cur.appendFrame(frame)
	completed = s.splitOverflow(completed)

	if s.lastSpeech >= 0 && samplesToDuration(s.pos-s.lastSpeech) >= s.cfg.SilenceTimeout {
		if seg := s.close(); seg != nil {
			completed = append(completed, seg)
		}
	}

	return completed
}

// ForceCompleteCurrent closes and returns the open segment regardless of
// silence state, e.g. when recording stops. Returns nil when idle or when
// the trailing segment is below the minimum duration.
func (s *Segmenter) ForceCompleteCurrent() *Segment {
	return s.close()
}

// SpeechProbability exposes the VAD's smoothed score for level reporting.
func (s *Segmenter) SpeechProbability() float32 {
	return s.vad.SpeechProbability()
}

// Pos returns the current stream offset.
func (s *Segmenter) Pos() time.Duration {
	return samplesToDuration(s.pos)
}

func (s *Segmenter) open(startSample int) {
	s.cur = &Segment{
		ID:          uuid.NewString(),
		Start:       samplesToDuration(startSample),
		startSample: startSample,
	}
}

// splitOverflow enforces the maximum segment duration: the head is cut at
// exactly the maximum and completed, the tail reopens as a new segment.
// This is a split, not a loss.
func (s *Segmenter) splitOverflow(completed []*Segment) []*Segment {
	maxSamples := durationToSamples(s.cfg.MaxDuration)

	for s.cur != nil && len(s.cur.Samples) >= maxSamples {
		tail := make([]float32, len(s.cur.Samples)-maxSamples)
		copy(tail, s.cur.Samples[maxSamples:])

		head := s.cur
		head.Samples = head.Samples[:maxSamples]
		head.Energy = Energy(head.Samples)
		head.complete(head.Start + s.cfg.MaxDuration)
		completed = append(completed, head)

		next := &Segment{
			ID:          uuid.NewString(),
			Start:       head.End,
			startSample: head.startSample + maxSamples,
		}
		if len(tail) > 0 {
			next.appendFrame(tail)
			s.cur = next
		} else {
			s.cur = nil
			// Reopen lazily on the next frame instead of holding an empty
			// segment across a possible silence gap.
		}
	}

	return completed
}

func (s *Segmenter) close() *Segment {
	if s.cur == nil {
		return nil
	}
	seg := s.cur
	s.cur = nil

	// Gate on the speech span, not the raw length: the accumulated samples
	// include the trailing silence that triggered the close.
	speech := s.lastSpeech - seg.startSample
	if speech > len(seg.Samples) {
		speech = len(seg.Samples)
	}
	if samplesToDuration(speech) < s.cfg.MinDuration {
		return nil
	}
	seg.complete(seg.Start + seg.Duration())
	return seg
}

func samplesToDuration(n int) time.Duration {
	return time.Duration(n) * time.Second / SampleRate
}

func durationToSamples(d time.Duration) int {
	return int(d * SampleRate / time.Second)
}
