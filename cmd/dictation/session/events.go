package session

import (
	"time"

	"github.com/voicescribe/dictation-core/cmd/dictation/diarize"
	"github.com/voicescribe/dictation-core/cmd/dictation/results"
)

type EventType string

const (
	EventAudioLevel          EventType = "audio_level_update"
	EventTranscriptionResult EventType = "transcription_result"
	EventSegmentUpdated      EventType = "segment_updated"
	EventProcessingStats     EventType = "processing_stats"
	EventRecordingStopped    EventType = "recording_stopped"
)

// Event is one pipeline notification for the presentation layer.
type Event struct {
	Type      EventType `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// AudioLevelUpdate reports per-frame input level and speech likelihood,
// used for level meters. Boundary is the detector's per-frame hint
// ("speech_start", "silence_start", "continuing"); empty when the VAD
// backend provides none.
type AudioLevelUpdate struct {
	Energy            float64 `json:"energy"`
	SpeechProbability float64 `json:"speech_probability"`
	Boundary          string  `json:"boundary,omitempty"`
}

// TranscriptionResult carries new or updated transcript text. Temporary
// results are expected to be replaced shortly.
type TranscriptionResult struct {
	SegmentID   string  `json:"segment_id"`
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
	IsTemporary bool    `json:"is_temporary"`
	Speaker     string  `json:"speaker,omitempty"`
	LatencyMs   int64   `json:"latency_ms"`
}

// SegmentUpdated signals that an organized segment changed, e.g. through
// merging or a user edit.
type SegmentUpdated struct {
	Segment results.ManagedSegment `json:"segment"`
}

// ProcessingStats is the periodic pipeline health snapshot.
type ProcessingStats struct {
	RecordingDuration time.Duration         `json:"recording_duration"`
	SegmentCount      int                   `json:"segment_count"`
	PendingResults    int                   `json:"pending_results"`
	SpeakerCount      int                   `json:"speaker_count"`
	Quality           results.QualityReport `json:"quality"`
}

// RecordingStopped is the final event of a session, carrying the complete
// transcript and session summary.
type RecordingStopped struct {
	Duration time.Duration         `json:"duration"`
	Text     string                `json:"text"`
	Quality  results.QualityReport `json:"quality"`
	Speakers []diarize.Profile     `json:"speakers"`
}
