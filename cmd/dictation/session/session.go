package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voicescribe/dictation-core/cmd/dictation/audio"
	"github.com/voicescribe/dictation-core/cmd/dictation/config"
	"github.com/voicescribe/dictation-core/cmd/dictation/correct"
	"github.com/voicescribe/dictation-core/cmd/dictation/diarize"
	"github.com/voicescribe/dictation-core/cmd/dictation/recognize"
	"github.com/voicescribe/dictation-core/cmd/dictation/results"
)

type State int

const (
	StateIdle State = iota
	StateRecording
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

const (
	statsInterval  = 5 * time.Second
	eventQueueSize = 256
)

// boundaryHinter is the optional detector capability behind the level
// event's boundary field. The silero backend does not implement it.
type boundaryHinter interface {
	Boundary(frame []float32) audio.Boundary
}

// Session orchestrates one dictation recording: audio frames in, transcript
// events out. The audio path (OnAudioFrame) is synchronous and cheap;
// recognition runs on the scheduler's workers and results fan back in
// through correction, diarization and the result manager.
type Session struct {
	cfg config.SessionConfig

	pre       *audio.Preprocessor
	vad       audio.Detector
	segmenter *audio.Segmenter
	scheduler *recognize.Scheduler
	manager   *results.Manager
	diarizer  *diarize.Diarizer
	corrector *correct.Corrector

	events   chan Event
	doneCh   chan struct{}
	stopOnce sync.Once

	mut       sync.Mutex
	state     State
	startTime time.Time
	recorded  time.Duration
}

// NewSession wires the full pipeline. The factory builds one recognition
// engine per scheduler worker.
func NewSession(cfg config.SessionConfig, factory recognize.EngineFactory) (*Session, error) {
	cfg.SetDefaults()
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	var vad audio.Detector
	var err error
	switch cfg.VADBackend {
	case config.VADBackendSilero:
		vad, err = audio.NewSileroDetector(cfg.SileroModelFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create silero detector: %w", err)
		}
	default:
		vad = audio.NewEnergyDetector()
	}

	s := &Session{
		cfg: cfg,
		pre: audio.NewPreprocessor(),
		vad: vad,
		segmenter: audio.NewSegmenter(vad, audio.SegmenterConfig{
			MinDuration:    time.Duration(cfg.MinSegmentDurationMs) * time.Millisecond,
			MaxDuration:    time.Duration(cfg.MaxSegmentDurationMs) * time.Millisecond,
			SilenceTimeout: time.Duration(cfg.SilenceTimeoutMs) * time.Millisecond,
		}),
		manager:  results.NewManager(results.ManagerConfig{MaxSegments: cfg.MaxSegments}),
		diarizer: diarize.NewDiarizer(),
		corrector: correct.NewCorrector(correct.CorrectorConfig{
			ConfidenceBoost: cfg.ContextConfidenceBoost,
		}),
		events: make(chan Event, eventQueueSize),
		doneCh: make(chan struct{}),
	}

	cbs := recognize.Callbacks{
		OnResult:  s.handleResult,
		OnFailure: s.handleFailure,
	}
	if cfg.EnableContext {
		cbs.Prompt = s.corrector.Prompt
	}

	s.scheduler, err = recognize.NewScheduler(recognize.SchedulerConfig{
		NumWorkers:        cfg.NumWorkers,
		Language:          cfg.Language,
		FastLatencyBudget: time.Duration(cfg.FastLatencyBudgetMs) * time.Millisecond,
	}, factory, cbs)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return s, nil
}

// Start begins recording. Valid only from the idle state.
func (s *Session) Start() error {
	s.mut.Lock()
	defer s.mut.Unlock()

	if s.state != StateIdle {
		return fmt.Errorf("cannot start from state %s", s.state)
	}

	if err := s.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	s.state = StateRecording
	s.startTime = time.Now()
	go s.statsLoop()

	slog.Info("session started",
		slog.String("language", s.cfg.Language),
		slog.Int("workers", s.cfg.NumWorkers),
		slog.String("vad", string(s.cfg.VADBackend)))

	return nil
}

// Pause suspends audio intake; frames received while paused are dropped.
func (s *Session) Pause() error {
	s.mut.Lock()
	defer s.mut.Unlock()

	if s.state != StateRecording {
		return fmt.Errorf("cannot pause from state %s", s.state)
	}
	s.state = StatePaused
	slog.Info("session paused")
	return nil
}

// Resume continues a paused session.
func (s *Session) Resume() error {
	s.mut.Lock()
	defer s.mut.Unlock()

	if s.state != StatePaused {
		return fmt.Errorf("cannot resume from state %s", s.state)
	}
	s.state = StateRecording
	slog.Info("session resumed")
	return nil
}

// OnAudioFrame accepts one mono 16kHz frame from the capture layer. It
// runs the synchronous part of the pipeline: preprocessing, VAD and
// segmentation, handing completed segments to the scheduler.
func (s *Session) OnAudioFrame(frame []float32) {
	s.mut.Lock()
	if s.state != StateRecording {
		s.mut.Unlock()
		return
	}

	// The caller owns its buffer; everything past this call works on a copy.
	samples := make([]float32, len(frame))
	copy(samples, frame)

	s.pre.Process(samples)

	completed := s.segmenter.Process(samples)
	s.recorded = s.segmenter.Pos()

	level := AudioLevelUpdate{
		Energy:            float64(audio.Energy(samples)),
		SpeechProbability: float64(s.vad.SpeechProbability()),
	}
	if bh, ok := s.vad.(boundaryHinter); ok {
		level.Boundary = bh.Boundary(samples).String()
	}
	s.mut.Unlock()

	s.publish(EventAudioLevel, level)

	for _, seg := range completed {
		slog.Debug("segment completed",
			slog.String("segID", seg.ID),
			slog.Duration("duration", seg.Duration()))
		s.scheduler.Submit(seg)
	}
}

// Stop ends the session: the open segment is force-completed, in-flight
// recognition drains, leftover temporary results are promoted and the
// final transcript is published.
func (s *Session) Stop() error {
	s.mut.Lock()
	if s.state == StateStopped || s.state == StateIdle {
		state := s.state
		s.mut.Unlock()
		return fmt.Errorf("cannot stop from state %s", state)
	}
	s.state = StateStopped
	duration := s.recorded
	s.mut.Unlock()

	if seg := s.segmenter.ForceCompleteCurrent(); seg != nil {
		s.scheduler.Submit(seg)
	}

	s.scheduler.Stop()

	// Anything still pending has no accurate result coming.
	for _, id := range s.manager.PromoteAllPending() {
		if seg, ok := s.manager.Segment(id); ok {
			s.publish(EventSegmentUpdated, SegmentUpdated{Segment: seg})
		}
	}

	s.stopOnce.Do(func() { close(s.doneCh) })

	if err := s.vad.Destroy(); err != nil {
		slog.Error("failed to destroy vad", slog.String("err", err.Error()))
	}

	stopped := RecordingStopped{
		Duration: duration,
		Text:     s.manager.ContinuousText(0),
		Quality:  s.manager.QualityReport(),
		Speakers: s.diarizer.Profiles(),
	}
	s.publish(EventRecordingStopped, stopped)

	slog.Info("session stopped",
		slog.Duration("duration", duration),
		slog.Int("segments", stopped.Quality.TotalSegments))

	return nil
}

// UpdateSegment applies a user edit to a transcript segment.
func (s *Session) UpdateSegment(segID, newText string) error {
	if !s.manager.UpdateSegmentText(segID, newText) {
		return fmt.Errorf("segment not found: %s", segID)
	}

	if seg, ok := s.manager.Segment(segID); ok {
		s.publish(EventSegmentUpdated, SegmentUpdated{Segment: seg})
	}
	return nil
}

// Events returns the session's event stream. Events are dropped when the
// consumer falls behind; the transcript itself is never lost, it lives in
// the result manager.
func (s *Session) Events() <-chan Event {
	return s.events
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mut.Lock()
	defer s.mut.Unlock()
	return s.state
}

// Duration returns how much audio the session has consumed.
func (s *Session) Duration() time.Duration {
	s.mut.Lock()
	defer s.mut.Unlock()
	return s.recorded
}

// Transcript returns the continuous transcript text committed so far.
func (s *Session) Transcript() string {
	return s.manager.ContinuousText(0)
}

// Segments returns the organized transcript segments.
func (s *Session) Segments() []results.ManagedSegment {
	return s.manager.Segments()
}

// Speakers returns the speaker profiles identified so far.
func (s *Session) Speakers() []diarize.Profile {
	return s.diarizer.Profiles()
}

func (s *Session) handleResult(seg *audio.Segment, res recognize.TranscriptResult) {
	var corrs []results.Correction

	if !res.IsTemporary {
		if s.cfg.EnableDiarization {
			speaker, err := s.diarizer.Identify(seg.Samples)
			if err != nil {
				slog.Debug("speaker identification failed",
					slog.String("segID", seg.ID), slog.String("err", err.Error()))
			} else {
				res.Speaker = speaker
			}
		}

		if s.cfg.EnableContext {
			res, corrs = s.corrector.Apply(res)
		}
	}

	updated := s.manager.ProcessResult(res, corrs)

	s.publish(EventTranscriptionResult, TranscriptionResult{
		SegmentID:   res.SegmentID,
		Text:        res.Text,
		Confidence:  res.Confidence,
		IsTemporary: res.IsTemporary,
		Speaker:     res.Speaker,
		LatencyMs:   res.Latency.Milliseconds(),
	})

	for _, id := range updated {
		if seg, ok := s.manager.Segment(id); ok {
			s.publish(EventSegmentUpdated, SegmentUpdated{Segment: seg})
		}
	}
}

func (s *Session) handleFailure(segID string) {
	if id := s.manager.PromotePending(segID); id != "" {
		slog.Warn("promoted fast result after accurate failure", slog.String("segID", segID))
		if seg, ok := s.manager.Segment(id); ok {
			s.publish(EventSegmentUpdated, SegmentUpdated{Segment: seg})
		}
	}
}

func (s *Session) statsLoop() {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.doneCh:
			return
		case <-ticker.C:
			if purged := s.manager.PurgePending(time.Now()); purged > 0 {
				slog.Debug("purged stale pending results", slog.Int("count", purged))
			}

			s.publish(EventProcessingStats, ProcessingStats{
				RecordingDuration: s.Duration(),
				SegmentCount:      len(s.manager.Segments()),
				PendingResults:    s.manager.PendingCount(),
				SpeakerCount:      s.diarizer.Count(),
				Quality:           s.manager.QualityReport(),
			})
		}
	}
}

func (s *Session) publish(typ EventType, data any) {
	ev := Event{
		Type:      typ,
		Data:      data,
		Timestamp: time.Now(),
	}

	select {
	case s.events <- ev:
	default:
		slog.Debug("dropping event, queue is full", slog.String("type", string(typ)))
	}
}
