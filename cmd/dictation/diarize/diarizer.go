package diarize

import (
	"fmt"
	"math"
	"sync"
)

const (
	similarityThreshold = 0.7

	// profileAlpha is the exponential moving average rate at which a
	// matched profile adapts towards new observations.
	profileAlpha = 0.1

	pitchWeight    = 0.3
	formantWeight  = 0.3
	centroidWeight = 0.2
	cepstralWeight = 0.2
)

// Profile is the accumulated fingerprint of one speaker.
type Profile struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	F0          float64               `json:"fundamental_freq"`
	Formants    [numFormants]float64  `json:"formant_frequencies"`
	Centroid    float64               `json:"spectral_centroid"`
	Cepstral    [cepstralSize]float64 `json:"cepstral_bands"`
	Confidence  float64               `json:"confidence"`
	SampleCount int                   `json:"sample_count"`
}

// Diarizer attributes audio segments to speakers. It is unsupervised: the
// first segment creates the first profile, later segments either match an
// existing profile (refining it) or create a new one. Safe for concurrent
// use.
type Diarizer struct {
	mut      sync.Mutex
	profiles []*Profile
	current  string
}

func NewDiarizer() *Diarizer {
	return &Diarizer{}
}

// Identify attributes the audio to a speaker and returns the speaker name.
// Audio shorter than the feature extraction minimum is an error.
func (d *Diarizer) Identify(samples []float32) (string, error) {
	features, err := ExtractFeatures(samples)
	if err != nil {
		return "", fmt.Errorf("failed to extract features: %w", err)
	}

	d.mut.Lock()
	defer d.mut.Unlock()

	var best *Profile
	var bestSim float64
	for _, p := range d.profiles {
		if sim := similarity(features, p); sim > bestSim {
			bestSim = sim
			best = p
		}
	}

	if best != nil && bestSim > similarityThreshold {
		best.update(features)
		d.current = best.Name
		return best.Name, nil
	}

	p := newProfile(len(d.profiles)+1, features)
	d.profiles = append(d.profiles, p)
	d.current = p.Name

	return p.Name, nil
}

// CurrentSpeaker returns the name attributed to the most recent segment,
// or empty before any identification.
func (d *Diarizer) CurrentSpeaker() string {
	d.mut.Lock()
	defer d.mut.Unlock()
	return d.current
}

// Count returns the number of distinct speakers seen so far.
func (d *Diarizer) Count() int {
	d.mut.Lock()
	defer d.mut.Unlock()
	return len(d.profiles)
}

// Profiles returns a copy of all speaker profiles in creation order.
func (d *Diarizer) Profiles() []Profile {
	d.mut.Lock()
	defer d.mut.Unlock()

	out := make([]Profile, len(d.profiles))
	for i, p := range d.profiles {
		out[i] = *p
	}
	return out
}

func newProfile(n int, f Features) *Profile {
	return &Profile{
		ID:          fmt.Sprintf("speaker_%d", n),
		Name:        fmt.Sprintf("Speaker %d", n),
		F0:          f.F0,
		Formants:    f.Formants,
		Centroid:    f.Centroid,
		Cepstral:    f.Cepstral,
		Confidence:  1,
		SampleCount: 1,
	}
}

// update folds a new observation into the profile with an exponential
// moving average, so a speaker's fingerprint tracks slow drift without
// being dragged off by one noisy segment.
func (p *Profile) update(f Features) {
	if f.F0 > 0 {
		p.F0 = p.F0*(1-profileAlpha) + f.F0*profileAlpha
	}
	if f.Centroid > 0 {
		p.Centroid = p.Centroid*(1-profileAlpha) + f.Centroid*profileAlpha
	}
	for i := range p.Formants {
		if f.Formants[i] > 0 {
			p.Formants[i] = p.Formants[i]*(1-profileAlpha) + f.Formants[i]*profileAlpha
		}
	}
	for i := range p.Cepstral {
		p.Cepstral[i] = p.Cepstral[i]*(1-profileAlpha) + f.Cepstral[i]*profileAlpha
	}

	p.SampleCount++
	p.Confidence = math.Min(p.Confidence*0.9+0.1, 1)
}

// similarity scores how well features match a profile, in [0, 1].
// Components with no signal on either side are excluded and the weights
// renormalized.
func similarity(f Features, p *Profile) float64 {
	var sim, weightSum float64

	if f.F0 > 0 && p.F0 > 0 {
		sim += ratioSimilarity(f.F0, p.F0) * pitchWeight
		weightSum += pitchWeight
	}

	if f.Centroid > 0 && p.Centroid > 0 {
		sim += ratioSimilarity(f.Centroid, p.Centroid) * centroidWeight
		weightSum += centroidWeight
	}

	var formantSim float64
	var formantCount int
	for i := range f.Formants {
		if f.Formants[i] > 0 && p.Formants[i] > 0 {
			formantSim += ratioSimilarity(f.Formants[i], p.Formants[i])
			formantCount++
		}
	}
	if formantCount > 0 {
		sim += formantSim / float64(formantCount) * formantWeight
		weightSum += formantWeight
	}

	var cepstralDist float64
	for i := range f.Cepstral {
		diff := f.Cepstral[i] - p.Cepstral[i]
		cepstralDist += diff * diff
	}
	sim += 1 / (1 + math.Sqrt(cepstralDist)) * cepstralWeight
	weightSum += cepstralWeight

	if weightSum == 0 {
		return 0
	}
	return sim / weightSum
}

// ratioSimilarity maps the relative difference of two positive values to
// [0, 1], with 1 meaning identical.
func ratioSimilarity(a, b float64) float64 {
	diff := math.Abs(a-b) / (a + b) * 2
	if diff > 1 {
		diff = 1
	}
	return 1 - diff
}
