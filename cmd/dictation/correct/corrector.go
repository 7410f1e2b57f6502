package correct

import (
	"strings"

	"github.com/voicescribe/dictation-core/cmd/dictation/recognize"
	"github.com/voicescribe/dictation-core/cmd/dictation/results"
)

const (
	defaultConfidenceBoost = 0.10

	// lowConfidenceLimit is the confidence below which context support adds
	// a boost.
	lowConfidenceLimit = 0.5
)

type CorrectorConfig struct {
	// ConfidenceBoost is the relative boost applied to low-confidence
	// results that arrive with conversation context behind them.
	ConfidenceBoost float64
}

func (c *CorrectorConfig) SetDefaults() {
	if c.ConfidenceBoost == 0 {
		c.ConfidenceBoost = defaultConfidenceBoost
	}
}

// Corrector cleans up recognized text using conversation history: stutter
// and repetition removal, punctuation spacing fixes and a confidence boost
// for low-confidence results that fit the ongoing conversation.
type Corrector struct {
	cfg CorrectorConfig
	buf *Buffer
}

func NewCorrector(cfg CorrectorConfig) *Corrector {
	cfg.SetDefaults()
	return &Corrector{
		cfg: cfg,
		buf: NewBuffer(),
	}
}

// Apply corrects one result and folds it into the conversation history.
// It returns the corrected result together with the corrections applied.
func (c *Corrector) Apply(res recognize.TranscriptResult) (recognize.TranscriptResult, []results.Correction) {
	corrected := fixRepeatedWords(res.Text)
	corrected = fixPunctuationSpacing(corrected)

	var corrs []results.Correction
	if corrected != res.Text {
		corrs = append(corrs, results.Correction{
			Original:   res.Text,
			Corrected:  corrected,
			Reason:     results.ReasonGrammarFix,
			Confidence: 0.8,
		})
	}

	out := res
	out.Text = corrected
	if out.Confidence < lowConfidenceLimit {
		out.Confidence *= 1 + c.cfg.ConfidenceBoost
		if out.Confidence > 1 {
			out.Confidence = 1
		}
	}

	c.buf.Add(ConversationSegment{
		SegmentID:  out.SegmentID,
		Text:       out.Text,
		Speaker:    out.Speaker,
		Timestamp:  out.Timestamp,
		Confidence: out.Confidence,
	})

	return out, corrs
}

// Prompt returns the engine conditioning prompt built from recent
// conversation.
func (c *Corrector) Prompt() string {
	return c.buf.Prompt()
}

// Context returns up to maxWords of recent conversation text.
func (c *Corrector) Context(maxWords int) string {
	return c.buf.RecentContext(maxWords)
}

// History exposes the conversation buffer length.
func (c *Corrector) History() int {
	return c.buf.Len()
}

// fixRepeatedWords collapses immediately repeated words, a common decoder
// stutter. Words of up to two characters are left alone: doubles like
// "is is" can be legitimate.
func fixRepeatedWords(text string) string {
	words := strings.Fields(text)
	fixed := make([]string, 0, len(words))

	var last string
	for _, word := range words {
		if word != last || len(word) <= 2 {
			fixed = append(fixed, word)
			last = word
		}
	}

	return strings.Join(fixed, " ")
}

var punctuationSpacing = strings.NewReplacer(
	" ,", ",",
	" .", ".",
	" !", "!",
	" ?", "?",
)

func fixPunctuationSpacing(text string) string {
	return punctuationSpacing.Replace(text)
}
