package results

const (
	qualityLengthThreshold = 3

	qualityConfidenceWeight  = 0.5
	qualityLengthWeight      = 0.3
	qualityConsistencyWeight = 0.2

	highQualityScore = 0.8
	lowQualityScore  = 0.5
)

// QualityScore breaks down how trustworthy a segment's text is.
type QualityScore struct {
	Confidence  float64 `json:"confidence_score"`
	Length      float64 `json:"length_score"`
	Consistency float64 `json:"consistency_score"`
	Overall     float64 `json:"overall_score"`
}

// AssessQuality scores a segment on confidence, text length and how many
// rewrites it took to settle. Fewer corrections score higher: a segment
// that keeps changing is less trustworthy.
func AssessQuality(seg ManagedSegment) QualityScore {
	var score QualityScore

	score.Confidence = seg.Confidence

	if len(seg.Text) >= qualityLengthThreshold {
		score.Length = 1
	} else {
		score.Length = float64(len(seg.Text)) / qualityLengthThreshold
	}

	if len(seg.Corrections) == 0 {
		score.Consistency = 1
	} else {
		score.Consistency = 1 / (1 + float64(len(seg.Corrections)))
		if score.Consistency < 0.1 {
			score.Consistency = 0.1
		}
	}

	score.Overall = score.Confidence*qualityConfidenceWeight +
		score.Length*qualityLengthWeight +
		score.Consistency*qualityConsistencyWeight

	return score
}

// QualityReport aggregates segment quality over a whole session.
type QualityReport struct {
	TotalSegments       int     `json:"total_segments"`
	HighQualitySegments int     `json:"high_quality_segments"`
	LowQualitySegments  int     `json:"low_quality_segments"`
	CorrectedSegments   int     `json:"corrected_segments"`
	AverageConfidence   float64 `json:"average_confidence"`
	QualityPercentage   float64 `json:"quality_percentage"`
}

// QualityReport summarizes the quality of the organized transcript.
func (m *Manager) QualityReport() QualityReport {
	m.mut.Lock()
	defer m.mut.Unlock()

	var report QualityReport
	var confSum float64

	for _, seg := range m.segments {
		score := AssessQuality(*seg)

		report.TotalSegments++
		confSum += score.Confidence

		if score.Overall > highQualityScore {
			report.HighQualitySegments++
		} else if score.Overall < lowQualityScore {
			report.LowQualitySegments++
		}

		if len(seg.Corrections) > 0 {
			report.CorrectedSegments++
		}
	}

	if report.TotalSegments > 0 {
		report.AverageConfidence = confSum / float64(report.TotalSegments)
		report.QualityPercentage = float64(report.HighQualitySegments) / float64(report.TotalSegments) * 100
	}

	return report
}
