package audio

import (
	"fmt"
	"log/slog"

	"github.com/streamer45/silero-vad-go/speech"
)

const (
	// Silero operates on fixed 512-sample windows at 16kHz.
	sileroWindowSize = 512

	sileroThreshold            = 0.5
	sileroMinSilenceDurationMs = 150
	sileroMinSpeechDurationMs  = 200
	sileroSilencePadMs         = 32
)

// SileroDetector is a learned VAD backend wrapping the silero-vad ONNX
// model behind the same Detector interface as the heuristic detector.
// Incoming frames of arbitrary size are re-blocked into the model's fixed
// window size; the remainder is carried over to the next frame.
type SileroDetector struct {
	sd       *speech.Detector
	pending  []float32
	inSpeech bool
}

func NewSileroDetector(modelPath string) (*SileroDetector, error) {
	sd, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:            modelPath,
		SampleRate:           SampleRate,
		WindowSize:           sileroWindowSize,
		Threshold:            sileroThreshold,
		MinSilenceDurationMs: sileroMinSilenceDurationMs,
		MinSpeechDurationMs:  sileroMinSpeechDurationMs,
		SilencePadMs:         sileroSilencePadMs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create speech detector: %w", err)
	}

	return &SileroDetector{
		sd:      sd,
		pending: make([]float32, 0, sileroWindowSize),
	}, nil
}

func (d *SileroDetector) IsSpeech(frame []float32) bool {
	d.pending = append(d.pending, frame...)

	for len(d.pending) >= sileroWindowSize {
		window := d.pending[:sileroWindowSize]
		d.pending = d.pending[sileroWindowSize:]

		event, err := d.sd.DetectStreamFrame(window)
		if err != nil {
			slog.Error("silero frame detection failed", slog.String("err", err.Error()))
			d.sd.Reset()
			d.inSpeech = false
			continue
		}
		if event == nil {
			continue
		}
		if event.IsStart {
			d.inSpeech = true
		}
		if event.IsEnd {
			d.inSpeech = false
		}
	}

	return d.inSpeech
}

// SpeechProbability reports the current binary speech state. The model's
// per-window probabilities are not exposed by the streaming API.
func (d *SileroDetector) SpeechProbability() float32 {
	if d.inSpeech {
		return 1
	}
	return 0
}

func (d *SileroDetector) Reset() {
	d.pending = d.pending[:0]
	d.inSpeech = false
	d.sd.Reset()
}

func (d *SileroDetector) Destroy() error {
	return d.sd.Destroy()
}
