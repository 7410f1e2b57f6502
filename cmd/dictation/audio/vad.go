package audio

// Boundary is a per-frame hint about where speech starts or ends. It is
// advisory only; segmentation is gated on the smoothed speech score.
type Boundary int

const (
	BoundaryContinuing Boundary = iota
	BoundarySpeechStart
	BoundarySilenceStart
)

func (b Boundary) String() string {
	switch b {
	case BoundarySpeechStart:
		return "speech_start"
	case BoundarySilenceStart:
		return "silence_start"
	default:
		return "continuing"
	}
}

// Detector classifies audio frames as speech or silence.
type Detector interface {
	// IsSpeech reports whether the frame is judged to contain speech.
	IsSpeech(frame []float32) bool
	// SpeechProbability returns the smoothed speech score from the most
	// recent frames, in [0, 1].
	SpeechProbability() float32
	// Reset clears any temporal smoothing state.
	Reset()
	// Destroy releases backend resources. It is a no-op for pure Go
	// detectors.
	Destroy() error
}

const (
	vadEnergyThreshold = 0.001
	vadZCRThreshold    = 0.3
	vadHistorySize     = 10
	vadSpeechScore     = 0.3

	vadEnergyWeight = 0.7
	vadZCRWeight    = 0.3
)

// EnergyDetector is a heuristic detector built on frame energy and
// zero-crossing rate, smoothed over the last few frames with a simple
// moving average.
type EnergyDetector struct {
	energyThreshold float32
	zcrThreshold    float32

	history []float32
	prob    float32
}

func NewEnergyDetector() *EnergyDetector {
	return &EnergyDetector{
		energyThreshold: vadEnergyThreshold,
		zcrThreshold:    vadZCRThreshold,
		history:         make([]float32, 0, vadHistorySize),
	}
}

func (d *EnergyDetector) IsSpeech(frame []float32) bool {
	var score float32
	if Energy(frame) > d.energyThreshold {
		score += vadEnergyWeight
	}
	if ZeroCrossingRate(frame) > d.zcrThreshold {
		score += vadZCRWeight
	}

	if len(d.history) == vadHistorySize {
		copy(d.history, d.history[1:])
		d.history = d.history[:vadHistorySize-1]
	}
	d.history = append(d.history, score)

	var sum float32
	for _, s := range d.history {
		sum += s
	}
	d.prob = sum / float32(len(d.history))

	return d.prob > vadSpeechScore
}

func (d *EnergyDetector) SpeechProbability() float32 {
	return d.prob
}

func (d *EnergyDetector) Reset() {
	d.history = d.history[:0]
	d.prob = 0
}

func (d *EnergyDetector) Destroy() error {
	return nil
}

// Boundary classifies a frame against hard energy thresholds, independently
// of the smoothed score.
func (d *EnergyDetector) Boundary(frame []float32) Boundary {
	energy := Energy(frame)
	switch {
	case energy < d.energyThreshold*0.1:
		return BoundarySilenceStart
	case energy > d.energyThreshold*2:
		return BoundarySpeechStart
	default:
		return BoundaryContinuing
	}
}
