package recognize

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voicescribe/dictation-core/cmd/dictation/audio"
)

const defaultQueueSize = 64

type SchedulerConfig struct {
	// NumWorkers is the number of goroutines running recognition, each
	// owning its engine instance.
	NumWorkers int
	// Language passed to the engine (empty means autodetection).
	Language string
	// FastLatencyBudget bounds how long a fast-tier pass may take before
	// its result is dropped as stale.
	FastLatencyBudget time.Duration
	// QueueSize bounds the pending task queue. When full, fast tasks are
	// dropped and accurate tasks are reported as failed.
	QueueSize int
}

func (c *SchedulerConfig) SetDefaults() {
	if c.NumWorkers == 0 {
		c.NumWorkers = 2
	}
	if c.FastLatencyBudget == 0 {
		c.FastLatencyBudget = DefaultFastLatencyBudget
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}
}

func (c SchedulerConfig) IsValid() error {
	if c.NumWorkers <= 0 {
		return fmt.Errorf("invalid NumWorkers: should be greater than 0")
	}
	if c.FastLatencyBudget <= 0 {
		return fmt.Errorf("invalid FastLatencyBudget: should be greater than 0")
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("invalid QueueSize: should be greater than 0")
	}
	return nil
}

// Callbacks connect the scheduler to the rest of the pipeline. OnResult
// and OnFailure are invoked from worker goroutines.
type Callbacks struct {
	// OnResult delivers a completed recognition pass.
	OnResult func(seg *audio.Segment, res TranscriptResult)
	// OnFailure reports that no accurate-tier result will arrive for the
	// segment, so any temporary result should be promoted.
	OnFailure func(segID string)
	// Prompt returns conversation context for conditioning the accurate
	// tier. May be nil.
	Prompt func() string
}

type task struct {
	seg  *audio.Segment
	tier Tier
}

// Scheduler runs the two recognition tiers over a bounded worker pool.
// Every submitted segment gets an accurate pass; short segments also get
// a fast pass for immediate feedback.
type Scheduler struct {
	cfg     SchedulerConfig
	factory EngineFactory
	cbs     Callbacks

	tasks chan task
	wg    sync.WaitGroup

	mut     sync.Mutex
	stopped bool
}

func NewScheduler(cfg SchedulerConfig, factory EngineFactory, cbs Callbacks) (*Scheduler, error) {
	cfg.SetDefaults()
	if err := cfg.IsValid(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	if factory == nil {
		return nil, fmt.Errorf("factory should not be nil")
	}
	if cbs.OnResult == nil {
		return nil, fmt.Errorf("OnResult callback should not be nil")
	}

	return &Scheduler{
		cfg:     cfg,
		factory: factory,
		cbs:     cbs,
		tasks:   make(chan task, cfg.QueueSize),
	}, nil
}

// Start creates the worker engines and begins processing. It fails fast if
// any engine cannot be built.
func (s *Scheduler) Start() error {
	engines := make([]Recognizer, s.cfg.NumWorkers)
	for i := range engines {
		engine, err := s.factory()
		if err != nil {
			for _, e := range engines[:i] {
				if dErr := e.Destroy(); dErr != nil {
					slog.Error("failed to destroy engine", slog.String("err", dErr.Error()))
				}
			}
			return fmt.Errorf("failed to create engine: %w", err)
		}
		engines[i] = engine
	}

	for i, engine := range engines {
		s.wg.Add(1)
		go s.runWorker(i, engine)
	}

	return nil
}

// Submit queues recognition work for a completed segment. It never blocks:
// when the queue is full, fast work is silently dropped and accurate work
// is reported through OnFailure.
func (s *Scheduler) Submit(seg *audio.Segment) {
	s.mut.Lock()
	defer s.mut.Unlock()
	if s.stopped {
		return
	}

	if seg.Duration() <= FastSegmentLimit {
		select {
		case s.tasks <- task{seg: seg, tier: TierFast}:
		default:
			slog.Debug("dropping fast task, queue is full", slog.String("segID", seg.ID))
		}
	}

	select {
	case s.tasks <- task{seg: seg, tier: TierAccurate}:
	default:
		slog.Warn("dropping accurate task, queue is full", slog.String("segID", seg.ID))
		if s.cbs.OnFailure != nil {
			s.cbs.OnFailure(seg.ID)
		}
	}
}

// Stop drains the queue, waits for in-flight work and releases engines.
func (s *Scheduler) Stop() {
	s.mut.Lock()
	if s.stopped {
		s.mut.Unlock()
		return
	}
	s.stopped = true
	s.mut.Unlock()

	close(s.tasks)
	s.wg.Wait()
}

func (s *Scheduler) runWorker(id int, engine Recognizer) {
	defer s.wg.Done()
	defer func() {
		if err := engine.Destroy(); err != nil {
			slog.Error("failed to destroy engine",
				slog.Int("worker", id), slog.String("err", err.Error()))
		}
	}()

	for t := range s.tasks {
		switch t.tier {
		case TierFast:
			s.runFast(engine, t.seg)
		case TierAccurate:
			s.runAccurate(engine, t.seg)
		}
	}
}

func (s *Scheduler) runFast(engine Recognizer, seg *audio.Segment) {
	start := time.Now()
	out, err := engine.Recognize(seg.Samples, FastOptions(s.cfg.Language, ""))
	latency := time.Since(start)
	if err != nil {
		slog.Debug("fast pass failed", slog.String("segID", seg.ID), slog.String("err", err.Error()))
		return
	}

	if latency > s.cfg.FastLatencyBudget {
		slog.Debug("dropping stale fast result",
			slog.String("segID", seg.ID), slog.Duration("latency", latency))
		return
	}

	if out.Text == "" {
		return
	}

	s.cbs.OnResult(seg, TranscriptResult{
		SegmentID:   seg.ID,
		Text:        out.Text,
		Confidence:  estimateConfidence(out.Text, seg.Energy) * fastConfidencePenalty,
		IsTemporary: true,
		Timestamp:   time.Now(),
		Latency:     latency,
		Start:       seg.Start,
		End:         seg.End,
	})
}

func (s *Scheduler) runAccurate(engine Recognizer, seg *audio.Segment) {
	var prompt string
	if s.cbs.Prompt != nil {
		prompt = s.cbs.Prompt()
	}
	opts := AccurateOptions(s.cfg.Language, prompt)

	start := time.Now()

	var text string
	for i, chunk := range SplitLongAudio(seg.Samples, audio.SampleRate) {
		out, err := engine.Recognize(chunk, opts)
		if err != nil {
			slog.Error("accurate pass failed",
				slog.String("segID", seg.ID), slog.Int("chunk", i), slog.String("err", err.Error()))
			if s.cbs.OnFailure != nil {
				s.cbs.OnFailure(seg.ID)
			}
			return
		}
		if out.Text == "" {
			continue
		}
		if text != "" {
			text += " "
		}
		text += out.Text
	}
	latency := time.Since(start)

	if text == "" {
		if s.cbs.OnFailure != nil {
			s.cbs.OnFailure(seg.ID)
		}
		return
	}

	s.cbs.OnResult(seg, TranscriptResult{
		SegmentID:  seg.ID,
		Text:       text,
		Confidence: estimateConfidence(text, seg.Energy),
		Timestamp:  time.Now(),
		Latency:    latency,
		Start:      seg.Start,
		End:        seg.End,
	})
}
