package results

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/voicescribe/dictation-core/cmd/dictation/recognize"
)

type Source string

const (
	SourceFastProcessing     Source = "fast_processing"
	SourceAccurateProcessing Source = "accurate_processing"
	SourceMerged             Source = "merged"
	SourceUserCorrected      Source = "user_corrected"
)

type CorrectionReason string

const (
	ReasonDeduplicationMerge CorrectionReason = "deduplication_merge"
	ReasonContextual         CorrectionReason = "contextual_correction"
	ReasonGrammarFix         CorrectionReason = "grammar_fix"
	ReasonSpeakerConsistency CorrectionReason = "speaker_consistency"
	ReasonUserEdit           CorrectionReason = "user_edit"
)

// Correction records one text rewrite applied to a segment.
type Correction struct {
	Original   string           `json:"original"`
	Corrected  string           `json:"corrected"`
	Reason     CorrectionReason `json:"reason"`
	Confidence float64          `json:"confidence"`
}

// ManagedSegment is a transcribed segment as organized for display: final
// text, attribution and the corrections that produced it.
type ManagedSegment struct {
	ID          string        `json:"id"`
	Text        string        `json:"text"`
	Confidence  float64       `json:"confidence"`
	Speaker     string        `json:"speaker,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
	Start       time.Duration `json:"start_time"`
	End         time.Duration `json:"end_time"`
	Final       bool          `json:"is_final"`
	Source      Source        `json:"source"`
	Corrections []Correction  `json:"corrections,omitempty"`
}

const (
	defaultMaxSegments   = 1000
	defaultPendingMaxAge = 10 * time.Second
	defaultMergeGap      = 3 * time.Second

	relatedWindow     = 3 * time.Second
	relatedSimilarity = 0.6

	promotedConfidencePenalty = 0.9
)

type ManagerConfig struct {
	// MaxSegments bounds the organized transcript. The oldest segment is
	// evicted once the bound is reached.
	MaxSegments int
	// PendingMaxAge bounds how long a temporary result waits for its
	// accurate counterpart before being purged.
	PendingMaxAge time.Duration
	// MergeGap is the largest silence between consecutive segments that
	// still reads as one paragraph.
	MergeGap time.Duration
}

func (c *ManagerConfig) SetDefaults() {
	if c.MaxSegments == 0 {
		c.MaxSegments = defaultMaxSegments
	}
	if c.PendingMaxAge == 0 {
		c.PendingMaxAge = defaultPendingMaxAge
	}
	if c.MergeGap == 0 {
		c.MergeGap = defaultMergeGap
	}
}

type pendingResult struct {
	res   recognize.TranscriptResult
	corrs []Correction
}

// Manager is the result pipeline stage: temporary results are parked until
// their accurate counterpart lands, duplicates are merged, and finals are
// organized into an ordered, bounded transcript.
type Manager struct {
	cfg   ManagerConfig
	dedup *Deduper

	mut      sync.Mutex
	segments []*ManagedSegment
	pending  map[string]pendingResult
}

func NewManager(cfg ManagerConfig) *Manager {
	cfg.SetDefaults()
	return &Manager{
		cfg:     cfg,
		dedup:   NewDeduper(),
		pending: make(map[string]pendingResult),
	}
}

// ProcessResult routes one recognition result. Temporary results are
// buffered and produce no segments; a final result supersedes the fast
// draft for the same segment, pulls in its related temporaries, merges
// duplicates and returns the IDs of segments added or extended.
func (m *Manager) ProcessResult(res recognize.TranscriptResult, corrs []Correction) []string {
	m.mut.Lock()
	defer m.mut.Unlock()

	if res.IsTemporary {
		m.pending[res.SegmentID] = pendingResult{res: res, corrs: corrs}
		return nil
	}

	group := []recognize.TranscriptResult{res}

	// The segment's own fast draft is superseded unconditionally: folded in
	// when the texts still agree, dropped below when they diverged.
	if p, ok := m.pending[res.SegmentID]; ok {
		group = append(group, p.res)
		delete(m.pending, res.SegmentID)
	}

	for key, p := range m.pending {
		if m.isRelated(p.res, res) {
			group = append(group, p.res)
			delete(m.pending, key)
		}
	}

	var updated []string
	for _, merged := range m.dedup.MergeSimilar(group) {
		if merged.IsTemporary && merged.SegmentID == res.SegmentID {
			continue
		}

		source := SourceAccurateProcessing
		switch {
		case merged.Merged:
			source = SourceMerged
		case merged.IsTemporary:
			source = SourceFastProcessing
		}
		updated = append(updated, m.insert(merged, source, corrs, !merged.IsTemporary))
	}

	return updated
}

// PromotePending turns a buffered temporary result into a final segment,
// used when the accurate tier failed and nothing better will arrive. The
// confidence is lowered to reflect the weaker source. Returns the segment
// ID, or empty when nothing was pending.
func (m *Manager) PromotePending(segID string) string {
	m.mut.Lock()
	defer m.mut.Unlock()

	p, ok := m.pending[segID]
	if !ok {
		return ""
	}
	delete(m.pending, segID)

	p.res.Confidence *= promotedConfidencePenalty
	return m.insert(p.res, SourceFastProcessing, p.corrs, false)
}

// PromoteAllPending promotes every buffered temporary result, used when
// recording stops and no further accurate results will arrive.
func (m *Manager) PromoteAllPending() []string {
	m.mut.Lock()
	keys := make([]string, 0, len(m.pending))
	for key := range m.pending {
		keys = append(keys, key)
	}
	m.mut.Unlock()

	sort.Strings(keys)

	var promoted []string
	for _, key := range keys {
		if id := m.PromotePending(key); id != "" {
			promoted = append(promoted, id)
		}
	}
	return promoted
}

// PurgePending drops temporary results older than the configured age and
// returns how many were removed.
func (m *Manager) PurgePending(now time.Time) int {
	m.mut.Lock()
	defer m.mut.Unlock()

	var purged int
	for key, p := range m.pending {
		if now.Sub(p.res.Timestamp) > m.cfg.PendingMaxAge {
			delete(m.pending, key)
			purged++
		}
	}
	return purged
}

// UpdateSegmentText applies a user edit to a segment, recording the
// rewrite as a correction and marking the segment final.
func (m *Manager) UpdateSegmentText(segID, newText string) bool {
	m.mut.Lock()
	defer m.mut.Unlock()

	for _, seg := range m.segments {
		if seg.ID == segID {
			seg.Corrections = append(seg.Corrections, Correction{
				Original:   seg.Text,
				Corrected:  newText,
				Reason:     ReasonUserEdit,
				Confidence: 0.9,
			})
			seg.Text = newText
			seg.Source = SourceUserCorrected
			seg.Final = true
			return true
		}
	}
	return false
}

// Segment returns a copy of the segment with the given ID.
func (m *Manager) Segment(segID string) (ManagedSegment, bool) {
	m.mut.Lock()
	defer m.mut.Unlock()

	for _, seg := range m.segments {
		if seg.ID == segID {
			return *seg, true
		}
	}
	return ManagedSegment{}, false
}

// Segments returns a copy of the organized transcript in start order.
func (m *Manager) Segments() []ManagedSegment {
	m.mut.Lock()
	defer m.mut.Unlock()

	out := make([]ManagedSegment, len(m.segments))
	for i, seg := range m.segments {
		out[i] = *seg
	}
	return out
}

// ContinuousText joins the text of the most recent maxSegments segments.
// A non-positive limit includes everything.
func (m *Manager) ContinuousText(maxSegments int) string {
	m.mut.Lock()
	defer m.mut.Unlock()

	start := 0
	if maxSegments > 0 && len(m.segments) > maxSegments {
		start = len(m.segments) - maxSegments
	}

	parts := make([]string, 0, len(m.segments)-start)
	for _, seg := range m.segments[start:] {
		parts = append(parts, seg.Text)
	}
	return strings.Join(parts, " ")
}

// PendingCount returns how many temporary results are buffered.
func (m *Manager) PendingCount() int {
	m.mut.Lock()
	defer m.mut.Unlock()
	return len(m.pending)
}

func (m *Manager) isRelated(pending, final recognize.TranscriptResult) bool {
	diff := final.Timestamp.Sub(pending.Timestamp)
	if diff < 0 {
		diff = -diff
	}
	return diff < relatedWindow && textSimilarity(pending.Text, final.Text) > relatedSimilarity
}

// insert places a result into the transcript in start order, merging it
// into its predecessor when it reads as a continuation of the same
// paragraph. Callers hold the lock.
func (m *Manager) insert(res recognize.TranscriptResult, source Source, corrs []Correction, final bool) string {
	seg := &ManagedSegment{
		ID:          res.SegmentID,
		Text:        res.Text,
		Confidence:  res.Confidence,
		Speaker:     res.Speaker,
		Timestamp:   res.Timestamp,
		Start:       res.Start,
		End:         res.End,
		Final:       final,
		Source:      source,
		Corrections: corrs,
	}

	// Arrival order is not chronological: fast results for a later segment
	// can land before the accurate result of an earlier one.
	idx := sort.Search(len(m.segments), func(i int) bool {
		return m.segments[i].Start > seg.Start
	})

	if idx > 0 && m.shouldMergeWithPrevious(seg, m.segments[idx-1]) {
		prev := m.segments[idx-1]
		m.mergeInto(prev, seg)
		return prev.ID
	}

	m.segments = append(m.segments, nil)
	copy(m.segments[idx+1:], m.segments[idx:])
	m.segments[idx] = seg

	if len(m.segments) > m.cfg.MaxSegments {
		m.segments = m.segments[1:]
	}

	return seg.ID
}

func (m *Manager) shouldMergeWithPrevious(seg, prev *ManagedSegment) bool {
	var gap time.Duration
	if seg.Start > prev.End {
		gap = seg.Start - prev.End
	}

	return gap < m.cfg.MergeGap && seg.Speaker == prev.Speaker && !prev.Final
}

// mergeInto extends prev with seg: concatenated text, extended end time,
// length-weighted confidence and the union of corrections.
func (m *Manager) mergeInto(prev, seg *ManagedSegment) {
	prevLen := float64(len(prev.Text))
	segLen := float64(len(seg.Text))

	switch {
	case prev.Text != "" && seg.Text != "":
		prev.Text = prev.Text + " " + seg.Text
	case prev.Text == "":
		prev.Text = seg.Text
	}

	if seg.End > prev.End {
		prev.End = seg.End
	}

	if total := prevLen + segLen; total > 0 {
		prev.Confidence = (prev.Confidence*prevLen + seg.Confidence*segLen) / total
	}

	prev.Corrections = append(prev.Corrections, seg.Corrections...)
	prev.Source = SourceMerged
	prev.Final = prev.Final || seg.Final
}
