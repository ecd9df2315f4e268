// synth_envelope.go - Time-based ADSR envelope evaluation

/*
KiloSynth - GPU-accelerated polyphonic wavetable synthesizer

(c) 2024 - 2026 Ed Filo
https://github.com/edfilo/kilosynth
License: GPLv3 or later
*/

package main

import "math"

// Envelope values are a pure function of (startTime, releaseTime, now) and the
// ADSR parameters. No per-sample counter is advanced anywhere: the compute
// kernel re-derives the same value from the same three numbers, so CPU
// bookkeeping and GPU evaluation cannot drift apart.
//
// Each exponential segment is normalized to land exactly on its boundary
// level: attack ends at velocity, decay ends at velocity*sustain, release ends
// at zero. Without the normalization the raw exponentials stop ~0.7-5% short
// of their targets and every stage transition clicks.

type EnvelopePhase int

const (
	EnvAttack EnvelopePhase = iota
	EnvDecay
	EnvSustain
	EnvRelease
)

func (p EnvelopePhase) String() string {
	switch p {
	case EnvAttack:
		return "attack"
	case EnvDecay:
		return "decay"
	case EnvSustain:
		return "sustain"
	case EnvRelease:
		return "release"
	}
	return "inactive"
}

// attackLevel evaluates the attack curve at elapsed time t for t in [0, attack].
func attackLevel(velocity, t, attack float64) float64 {
	if attack <= 0 || t >= attack {
		return velocity
	}
	norm := 1 - math.Exp(-ENV_ATTACK_COEF)
	return velocity * (1 - math.Exp(-ENV_ATTACK_COEF*t/attack)) / norm
}

// decayLevel evaluates the decay curve at time t past the attack end.
func decayLevel(velocity, sustain, t, decay float64) float64 {
	if decay <= 0 || t >= decay {
		return velocity * sustain
	}
	norm := 1 - math.Exp(-ENV_DECAY_COEF)
	w := (math.Exp(-ENV_DECAY_COEF*t/decay) - math.Exp(-ENV_DECAY_COEF)) / norm
	return velocity * (sustain + (1-sustain)*w)
}

// releaseLevel evaluates the release curve at time t past note-off, starting
// from the level captured at the moment of release.
func releaseLevel(startLevel, t, release float64) float64 {
	if release <= 0 || t >= release {
		return 0
	}
	norm := 1 - math.Exp(-ENV_RELEASE_COEF)
	return startLevel * (math.Exp(-ENV_RELEASE_COEF*t/release) - math.Exp(-ENV_RELEASE_COEF)) / norm
}

// heldLevel evaluates the pre-release envelope at elapsed time t since
// note-on. Attack flows into decay into sustain purely by elapsed time.
func heldLevel(velocity, t float64, p *SynthParameters) float64 {
	if t < 0 {
		return 0
	}
	if t < p.AttackTime {
		return attackLevel(velocity, t, p.AttackTime)
	}
	if t < p.AttackTime+p.DecayTime {
		return decayLevel(velocity, p.SustainLevel, t-p.AttackTime, p.DecayTime)
	}
	return velocity * p.SustainLevel
}

// envelopeLevelAt evaluates the full envelope for a voice at wall-clock time
// now. releaseTime < 0 means the note is still held.
func envelopeLevelAt(velocity, startTime, releaseTime, releaseStartLevel, now float64, p *SynthParameters) float64 {
	if releaseTime >= 0 && now >= releaseTime {
		return releaseLevel(releaseStartLevel, now-releaseTime, p.ReleaseTime)
	}
	return heldLevel(velocity, now-startTime, p)
}

// heldPhaseAt reports which envelope stage a held voice is in at elapsed
// time t. Release is entered only by an explicit note-off.
func heldPhaseAt(t float64, p *SynthParameters) EnvelopePhase {
	switch {
	case t < p.AttackTime:
		return EnvAttack
	case t < p.AttackTime+p.DecayTime:
		return EnvDecay
	default:
		return EnvSustain
	}
}
