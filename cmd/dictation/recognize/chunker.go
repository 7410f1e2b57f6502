package recognize

import "time"

const (
	chunkThreshold = 5 * time.Second
	chunkDuration  = 3 * time.Second
	chunkOverlap   = 250 * time.Millisecond
)

// SplitLongAudio breaks audio longer than the chunking threshold into
// overlapping windows sized for low-latency decoding. Shorter audio is
// returned as a single chunk. The overlap gives the decoder context across
// boundaries so words cut mid-chunk still resolve.
func SplitLongAudio(samples []float32, sampleRate int) [][]float32 {
	threshold := int(chunkThreshold.Seconds() * float64(sampleRate))
	if len(samples) <= threshold {
		return [][]float32{samples}
	}

	size := int(chunkDuration.Seconds() * float64(sampleRate))
	overlap := int(chunkOverlap.Seconds() * float64(sampleRate))
	step := size - overlap

	var chunks [][]float32
	for start := 0; start < len(samples); start += step {
		end := start + size
		if end >= len(samples) {
			chunks = append(chunks, samples[start:])
			break
		}
		chunks = append(chunks, samples[start:end])
	}

	return chunks
}
