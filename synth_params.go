// synth_params.go - Shared synthesis parameters and their publication

/*
KiloSynth - GPU-accelerated polyphonic wavetable synthesizer

(c) 2024 - 2026 Ed Filo
https://github.com/edfilo/kilosynth
License: GPLv3 or later
*/

package main

import (
	"sync"
	"sync/atomic"
)

// SynthParameters is the process-wide control state read once per block by the
// render pipeline. Snapshots are immutable after publication: setters copy the
// current snapshot, clamp the new value and swap the pointer, so the audio
// thread never observes a half-written update and never takes a lock.
type SynthParameters struct {
	SampleRate   float64
	MasterVolume float64 // 0..1

	AttackTime   float64 // Seconds
	DecayTime    float64 // Seconds
	SustainLevel float64 // 0..1 ratio of velocity
	ReleaseTime  float64 // Seconds

	FilterCutoff    float64 // 0..MAX_FILTER_CUTOFF, normalized frequency
	FilterResonance float64 // 0..1

	LFORate  float64 // Hz
	LFODepth float64 // 0..1 tremolo depth

	WavetablePosition float64 // 0..1 global morph target for new notes
	MorphRate         float64 // Frames per second a voice glides toward its target
}

func defaultParameters() *SynthParameters {
	return &SynthParameters{
		SampleRate:   SAMPLE_RATE,
		MasterVolume: 0.8,
		AttackTime:   0.01,
		DecayTime:    0.1,
		SustainLevel: 0.8,
		ReleaseTime:  0.3,
		FilterCutoff: MAX_FILTER_CUTOFF,
		MorphRate:    4.0,
	}
}

// paramStore owns the published snapshot. The setter mutex only serializes
// writers; readers go straight through the atomic pointer.
type paramStore struct {
	current atomic.Pointer[SynthParameters]
	mutex   sync.Mutex
}

func newParamStore() *paramStore {
	ps := &paramStore{}
	ps.current.Store(defaultParameters())
	return ps
}

// Load returns the current snapshot. Hot path; never blocks.
func (ps *paramStore) Load() *SynthParameters {
	return ps.current.Load()
}

func (ps *paramStore) update(mutate func(*SynthParameters)) {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()
	next := *ps.current.Load()
	mutate(&next)
	ps.current.Store(&next)
}

func (ps *paramStore) SetMasterVolume(vol float64) {
	ps.update(func(p *SynthParameters) {
		p.MasterVolume = clampf64(vol, 0, 1)
	})
}

func (ps *paramStore) SetADSR(attack, decay, sustain, release float64) {
	ps.update(func(p *SynthParameters) {
		p.AttackTime = clampf64(attack, MIN_ENV_SECONDS, MAX_ENV_SECONDS)
		p.DecayTime = clampf64(decay, MIN_ENV_SECONDS, MAX_ENV_SECONDS)
		p.SustainLevel = clampf64(sustain, 0, 1)
		p.ReleaseTime = clampf64(release, MIN_ENV_SECONDS, MAX_ENV_SECONDS)
	})
}

func (ps *paramStore) SetFilterCutoff(cutoff float64) {
	ps.update(func(p *SynthParameters) {
		p.FilterCutoff = clampf64(cutoff, 0, MAX_FILTER_CUTOFF)
	})
}

func (ps *paramStore) SetFilterResonance(res float64) {
	ps.update(func(p *SynthParameters) {
		p.FilterResonance = clampf64(res, 0, 1)
	})
}

func (ps *paramStore) SetLFORate(rate float64) {
	ps.update(func(p *SynthParameters) {
		p.LFORate = clampf64(rate, 0, MAX_LFO_RATE)
	})
}

func (ps *paramStore) SetLFODepth(depth float64) {
	ps.update(func(p *SynthParameters) {
		p.LFODepth = clampf64(depth, 0, 1)
	})
}

func (ps *paramStore) SetWavetablePosition(pos float64) {
	ps.update(func(p *SynthParameters) {
		p.WavetablePosition = clampf64(pos, 0, 1)
	})
}

func (ps *paramStore) SetMorphRate(rate float64) {
	ps.update(func(p *SynthParameters) {
		p.MorphRate = clampf64(rate, 0, MAX_MORPH_RATE)
	})
}
