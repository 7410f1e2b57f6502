package results

import (
	"strings"
	"time"

	"github.com/voicescribe/dictation-core/cmd/dictation/recognize"
)

const (
	defaultSimilarityThreshold = 0.8
	defaultDedupWindow         = 2 * time.Second
)

// Deduper detects and merges near-identical recognition results, e.g. a
// fast-tier result and the accurate-tier result for the same audio.
type Deduper struct {
	similarityThreshold float64
	window              time.Duration
}

func NewDeduper() *Deduper {
	return &Deduper{
		similarityThreshold: defaultSimilarityThreshold,
		window:              defaultDedupWindow,
	}
}

// IsDuplicate reports whether two results describe the same utterance:
// produced within the dedup window and with highly similar text.
func (d *Deduper) IsDuplicate(a, b recognize.TranscriptResult) bool {
	diff := a.Timestamp.Sub(b.Timestamp)
	if diff < 0 {
		diff = -diff
	}
	if diff > d.window {
		return false
	}

	return textSimilarity(a.Text, b.Text) >= d.similarityThreshold
}

// MergeSimilar collapses duplicate groups, leaving distinct results
// untouched. The operation is idempotent: merged output contains no
// remaining duplicates.
func (d *Deduper) MergeSimilar(results []recognize.TranscriptResult) []recognize.TranscriptResult {
	if len(results) <= 1 {
		return results
	}

	used := make([]bool, len(results))
	merged := make([]recognize.TranscriptResult, 0, len(results))

	for i := range results {
		if used[i] {
			continue
		}

		group := []recognize.TranscriptResult{results[i]}
		used[i] = true

		for j := i + 1; j < len(results); j++ {
			if !used[j] && d.IsDuplicate(results[i], results[j]) {
				group = append(group, results[j])
				used[j] = true
			}
		}

		if len(group) == 1 {
			merged = append(merged, results[i])
		} else {
			merged = append(merged, mergeGroup(group))
		}
	}

	return merged
}

// mergeGroup combines duplicates into one result: the longest text, the
// mean confidence, speaker and timestamp from the most confident member
// and the smallest latency.
func mergeGroup(group []recognize.TranscriptResult) recognize.TranscriptResult {
	best := group[0]
	longest := group[0].Text
	minLatency := group[0].Latency
	var confSum float64

	for _, res := range group {
		confSum += res.Confidence
		if res.Confidence > best.Confidence {
			best = res
		}
		if len(res.Text) > len(longest) {
			longest = res.Text
		}
		if res.Latency < minLatency {
			minLatency = res.Latency
		}
	}

	return recognize.TranscriptResult{
		SegmentID:  best.SegmentID,
		Merged:     true,
		Text:       longest,
		Confidence: confSum / float64(len(group)),
		Speaker:    best.Speaker,
		Timestamp:  best.Timestamp,
		Latency:    minLatency,
		Start:      best.Start,
		End:        best.End,
	}
}

// textSimilarity returns the word-level Jaccard similarity of two strings.
func textSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}

	wordsA := strings.Fields(a)
	wordsB := strings.Fields(b)

	if len(wordsA) == 0 && len(wordsB) == 0 {
		return 1
	}
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(wordsA))
	for _, w := range wordsA {
		setA[w] = struct{}{}
	}
	setB := make(map[string]struct{}, len(wordsB))
	for _, w := range wordsB {
		setB[w] = struct{}{}
	}

	var intersection int
	for w := range setA {
		if _, ok := setB[w]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection

	return float64(intersection) / float64(union)
}
