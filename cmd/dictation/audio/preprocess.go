package audio

const (
	// SampleRate is the fixed pipeline sample rate. The capture boundary is
	// required to deliver mono frames at this rate.
	SampleRate = 16000

	preemphasisCoeff   = 0.97
	noiseGateThreshold = 0.001
	noiseGateAtten     = 0.1
	normalizePeak      = 0.95
)

// Preprocessor applies per-frame conditioning before voice activity
// detection: a noise gate, a pre-emphasis filter and peak normalization.
// It mutates frames in place and is deterministic for a given input.
type Preprocessor struct {
	preemphasisCoeff   float32
	noiseGateThreshold float32
}

func NewPreprocessor() *Preprocessor {
	return &Preprocessor{
		preemphasisCoeff:   preemphasisCoeff,
		noiseGateThreshold: noiseGateThreshold,
	}
}

func (p *Preprocessor) Process(frame []float32) {
	p.applyNoiseGate(frame)
	p.applyPreemphasis(frame)
	p.normalize(frame)
}

func (p *Preprocessor) applyNoiseGate(frame []float32) {
	if Energy(frame) >= p.noiseGateThreshold {
		return
	}
	for i := range frame {
		frame[i] *= noiseGateAtten
	}
}

// applyPreemphasis computes y[n] = x[n] - coeff*x[n-1], iterating backwards
// so each sample sees the original value of its predecessor.
func (p *Preprocessor) applyPreemphasis(frame []float32) {
	if len(frame) < 2 {
		return
	}
	for i := len(frame) - 1; i >= 1; i-- {
		frame[i] -= p.preemphasisCoeff * frame[i-1]
	}
}

func (p *Preprocessor) normalize(frame []float32) {
	var maxAbs float32
	for _, s := range frame {
		if a := abs32(s); a > maxAbs {
			maxAbs = a
		}
	}
	if maxAbs == 0 {
		return
	}
	scale := normalizePeak / maxAbs
	for i := range frame {
		frame[i] *= scale
	}
}

// Energy returns the mean square amplitude of the frame.
func Energy(frame []float32) float32 {
	if len(frame) == 0 {
		return 0
	}
	var sum float32
	for _, s := range frame {
		sum += s * s
	}
	return sum / float32(len(frame))
}

// ZeroCrossingRate returns the fraction of adjacent sample pairs whose signs
// differ.
func ZeroCrossingRate(frame []float32) float32 {
	if len(frame) < 2 {
		return 0
	}
	var crossings int
	for i := 1; i < len(frame); i++ {
		if (frame[i-1] >= 0) != (frame[i] >= 0) {
			crossings++
		}
	}
	return float32(crossings) / float32(len(frame)-1)
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
