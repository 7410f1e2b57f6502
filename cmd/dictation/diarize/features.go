package diarize

import (
	"fmt"
	"math"
	"sort"
)

const (
	sampleRate = 16000

	// MinSamples is the shortest audio span features can be extracted
	// from, 100ms at the pipeline sample rate.
	MinSamples = 1600

	lpcOrder     = 12
	numFormants  = 3
	cepstralSize = 12

	minPitchHz = 50
	maxPitchHz = 500

	formantMinHz = 200
	formantMaxHz = 4000
)

// Features is a compact voice fingerprint extracted from one segment:
// pitch, vocal tract resonances and spectral shape. All values are
// deterministic functions of the input samples.
type Features struct {
	F0        float64
	Formants  [numFormants]float64
	Centroid  float64
	Bandwidth float64
	ZCR       float64
	Energy    float64
	Cepstral  [cepstralSize]float64
}

// ExtractFeatures computes a voice fingerprint from raw PCM audio.
func ExtractFeatures(samples []float32) (Features, error) {
	if len(samples) < MinSamples {
		return Features{}, fmt.Errorf("audio segment too short: %d samples, need at least %d", len(samples), MinSamples)
	}

	var f Features
	f.F0 = estimatePitch(samples)
	f.Formants = estimateFormants(samples)
	f.Centroid, f.Bandwidth = spectralFeatures(samples)
	f.ZCR = zeroCrossingRate(samples)
	f.Cepstral = cepstralBands(samples)

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	f.Energy = sum / float64(len(samples))

	return f, nil
}

// estimatePitch finds the fundamental frequency by autocorrelation over
// periods covering 50-500Hz.
func estimatePitch(samples []float32) float64 {
	minPeriod := sampleRate / maxPitchHz
	maxPeriod := sampleRate / minPitchHz
	if half := len(samples) / 2; maxPeriod > half {
		maxPeriod = half
	}

	var maxCorr float64
	bestPeriod := minPeriod

	for period := minPeriod; period <= maxPeriod; period++ {
		var corr float64
		n := len(samples) - period
		for i := 0; i < n; i++ {
			corr += float64(samples[i]) * float64(samples[i+period])
		}
		corr /= float64(n)

		// A periodic signal correlates equally well at multiples of its
		// period. Requiring a margin over the running best keeps the
		// shortest period, avoiding octave errors.
		if corr > maxCorr*1.0001 && corr > maxCorr {
			maxCorr = corr
			bestPeriod = period
		}
	}

	return float64(sampleRate) / float64(bestPeriod)
}

// estimateFormants finds vocal tract resonances as the strongest peaks of
// the LPC spectral envelope within the speech formant band.
func estimateFormants(samples []float32) [numFormants]float64 {
	lpc := lpcCoefficients(samples, lpcOrder)

	const nPoints = 512

	type peak struct {
		freq float64
		mag  float64
	}

	mags := make([]peak, nPoints)
	for k := 0; k < nPoints; k++ {
		freq := float64(k) * sampleRate / (2 * nPoints)
		omega := 2 * math.Pi * freq / sampleRate

		real := 1.0
		imag := 0.0
		for i, coeff := range lpc {
			angle := float64(i+1) * omega
			real -= coeff * math.Cos(angle)
			imag -= coeff * math.Sin(angle)
		}

		mags[k] = peak{freq: freq, mag: 1 / math.Sqrt(real*real+imag*imag)}
	}

	var peaks []peak
	for i := 1; i < len(mags)-1; i++ {
		if mags[i].mag > mags[i-1].mag && mags[i].mag > mags[i+1].mag &&
			mags[i].freq > formantMinHz && mags[i].freq < formantMaxHz {
			peaks = append(peaks, mags[i])
		}
	}

	sort.Slice(peaks, func(i, j int) bool {
		return peaks[i].mag > peaks[j].mag
	})

	var formants [numFormants]float64
	for i := 0; i < numFormants && i < len(peaks); i++ {
		formants[i] = peaks[i].freq
	}
	return formants
}

// lpcCoefficients runs Levinson-Durbin recursion over the signal's
// autocorrelation.
func lpcCoefficients(samples []float32, order int) []float64 {
	autocorr := make([]float64, order+1)
	for lag := 0; lag <= order; lag++ {
		for i := lag; i < len(samples); i++ {
			autocorr[lag] += float64(samples[i]) * float64(samples[i-lag])
		}
	}

	lpc := make([]float64, order)
	if autocorr[0] == 0 {
		return lpc
	}

	err := autocorr[0]
	for i := 0; i < order; i++ {
		reflection := autocorr[i+1]
		for j := 0; j < i; j++ {
			reflection -= lpc[j] * autocorr[i-j]
		}
		reflection /= err

		lpc[i] = reflection
		for j := 0; j < i; j++ {
			lpc[j] -= reflection * lpc[i-1-j]
		}

		err *= 1 - reflection*reflection
		if err == 0 {
			break
		}
	}

	return lpc
}

// spectralFeatures returns the centroid and bandwidth of a coarse
// magnitude envelope built from fixed-size chunks.
func spectralFeatures(samples []float32) (float64, float64) {
	const chunkSize = 512

	var mags []float64
	for start := 0; start+chunkSize <= len(samples); start += chunkSize {
		var sum float64
		for _, s := range samples[start : start+chunkSize] {
			sum += math.Abs(float64(s))
		}
		mags = append(mags, sum/chunkSize)
	}

	if len(mags) == 0 {
		return 0, 0
	}

	var weighted, total float64
	for i, mag := range mags {
		freq := float64(i) * sampleRate / float64(len(mags))
		weighted += freq * mag
		total += mag
	}
	if total == 0 {
		return 0, 0
	}
	centroid := weighted / total

	var variance float64
	for i, mag := range mags {
		freq := float64(i) * sampleRate / float64(len(mags))
		variance += (freq - centroid) * (freq - centroid) * mag
	}

	return centroid, math.Sqrt(variance / total)
}

func zeroCrossingRate(samples []float32) float64 {
	if len(samples) < 2 {
		return 0
	}
	var crossings int
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples)-1)
}

// cepstralBands returns log energies over equal sub-bands of fixed-size
// frames, a coarse stand-in for a full cepstrum.
func cepstralBands(samples []float32) [cepstralSize]float64 {
	const frameSize = 512

	var bands [cepstralSize]float64
	for bank := 0; bank < cepstralSize; bank++ {
		var energy float64
		var count int

		for start := 0; start+frameSize <= len(samples); start += frameSize {
			frame := samples[start : start+frameSize]
			lo := bank * frameSize / cepstralSize
			hi := (bank + 1) * frameSize / cepstralSize

			for _, s := range frame[lo:hi] {
				energy += float64(s) * float64(s)
				count++
			}
		}

		if count > 0 {
			bands[bank] = math.Log(energy/float64(count) + 1e-10)
		}
	}

	return bands
}
