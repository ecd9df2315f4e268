// synth_envelope_test.go - Time-based ADSR envelope tests

/*
KiloSynth - GPU-accelerated polyphonic wavetable synthesizer

(c) 2024 - 2026 Ed Filo
https://github.com/edfilo/kilosynth
License: GPLv3 or later
*/

package main

import (
	"math"
	"testing"
)

func testParams(attack, decay, sustain, release float64) *SynthParameters {
	p := defaultParameters()
	p.AttackTime = attack
	p.DecayTime = decay
	p.SustainLevel = sustain
	p.ReleaseTime = release
	return p
}

// The reference playthrough: velocity 0.8, ADSR 0.1/0.2/0.7/0.5.
func TestEnvelopeReferencePlaythrough(t *testing.T) {
	p := testParams(0.1, 0.2, 0.7, 0.5)
	velocity := 0.8

	tests := []struct {
		name string
		at   float64
		want float64
		tol  float64
	}{
		{"note-on", 0.0, 0.0, 1e-9},
		{"mid attack", 0.05, 0.7393, 1e-3},
		{"attack peak", 0.1, 0.8, 1e-9},
		{"sustain entry", 0.3, 0.56, 1e-9},
		{"deep sustain", 2.0, 0.56, 1e-9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := heldLevel(velocity, tt.at, p)
			if math.Abs(got-tt.want) > tt.tol {
				t.Errorf("level(%g) = %.6f, want %.4f", tt.at, got, tt.want)
			}
		})
	}

	// Release from sustain: captured level decays to exactly zero over the
	// release duration.
	start := heldLevel(velocity, 2.0, p)
	if got := releaseLevel(start, 0, p.ReleaseTime); math.Abs(got-start) > 1e-9 {
		t.Errorf("release start = %.6f, want %.6f", got, start)
	}
	if got := releaseLevel(start, p.ReleaseTime, p.ReleaseTime); got != 0 {
		t.Errorf("release end = %.6f, want 0", got)
	}
	if got := releaseLevel(start, p.ReleaseTime*10, p.ReleaseTime); got != 0 {
		t.Errorf("past release end = %.6f, want 0", got)
	}
}

// Every stage transition must be continuous: the attack curve lands exactly
// on velocity, decay starts there and lands exactly on velocity*sustain.
// Any gap at a boundary is an audible click.
func TestEnvelopeStageContinuity(t *testing.T) {
	p := testParams(0.25, 0.4, 0.35, 0.6)
	velocity := 0.9
	eps := 1e-6

	atkEnd := heldLevel(velocity, p.AttackTime-eps, p)
	decStart := heldLevel(velocity, p.AttackTime+eps, p)
	if math.Abs(atkEnd-velocity) > 1e-4 {
		t.Errorf("attack approaches %.6f, want %.6f", atkEnd, velocity)
	}
	if math.Abs(decStart-atkEnd) > 1e-4 {
		t.Errorf("attack->decay step: %.6f -> %.6f", atkEnd, decStart)
	}

	decEnd := heldLevel(velocity, p.AttackTime+p.DecayTime-eps, p)
	susLevel := heldLevel(velocity, p.AttackTime+p.DecayTime+eps, p)
	if math.Abs(susLevel-velocity*p.SustainLevel) > 1e-9 {
		t.Errorf("sustain level %.6f, want %.6f", susLevel, velocity*p.SustainLevel)
	}
	if math.Abs(decEnd-susLevel) > 1e-4 {
		t.Errorf("decay->sustain step: %.6f -> %.6f", decEnd, susLevel)
	}
}

func TestEnvelopeMonotonic(t *testing.T) {
	p := testParams(0.1, 0.2, 0.5, 0.4)
	velocity := 1.0

	prev := -1.0
	for ts := 0.0; ts <= p.AttackTime; ts += p.AttackTime / 200 {
		level := heldLevel(velocity, ts, p)
		if level < prev {
			t.Fatalf("attack not monotonic at t=%g: %.8f < %.8f", ts, level, prev)
		}
		prev = level
	}

	prev = 2.0
	for ts := p.AttackTime; ts <= p.AttackTime+p.DecayTime; ts += p.DecayTime / 200 {
		level := heldLevel(velocity, ts, p)
		if level > prev {
			t.Fatalf("decay not monotonic at t=%g: %.8f > %.8f", ts, level, prev)
		}
		prev = level
	}

	prev = 2.0
	for ts := 0.0; ts <= p.ReleaseTime; ts += p.ReleaseTime / 200 {
		level := releaseLevel(0.7, ts, p.ReleaseTime)
		if level > prev {
			t.Fatalf("release not monotonic at t=%g: %.8f > %.8f", ts, level, prev)
		}
		prev = level
	}
}

// A release can start mid-attack; the curve then decays from the captured
// mid-attack level, not from the sustain level.
func TestEnvelopeReleaseFromAttack(t *testing.T) {
	p := testParams(0.5, 0.2, 0.7, 0.3)
	velocity := 1.0
	releaseAt := 0.1 // Well inside the attack

	captured := heldLevel(velocity, releaseAt, p)
	if captured <= 0 || captured >= velocity {
		t.Fatalf("mid-attack level %.6f outside (0, %g)", captured, velocity)
	}

	got := envelopeLevelAt(velocity, 0, releaseAt, captured, releaseAt+0.001, p)
	if got > captured {
		t.Errorf("release rose above captured level: %.6f > %.6f", got, captured)
	}
	if got < captured*0.9 {
		t.Errorf("release dropped too fast: %.6f from %.6f in 1ms", got, captured)
	}
}

func TestEnvelopeDegenerateTimes(t *testing.T) {
	p := testParams(0, 0, 0.6, 0)
	// Zero attack snaps straight to velocity, zero decay to sustain, zero
	// release to silence.
	if got := attackLevel(0.8, 0, 0); got != 0.8 {
		t.Errorf("zero attack level = %g, want 0.8", got)
	}
	if got := heldLevel(0.8, 0.001, p); math.Abs(got-0.48) > 1e-9 {
		t.Errorf("zero-decay level = %g, want 0.48", got)
	}
	if got := releaseLevel(0.5, 0, 0); got != 0 {
		t.Errorf("zero release level = %g, want 0", got)
	}
	if got := heldLevel(0.8, -0.5, p); got != 0 {
		t.Errorf("pre-start level = %g, want 0", got)
	}
}

func TestHeldPhaseAt(t *testing.T) {
	// Attack and decay are picked so their sum is exactly representable;
	// the stage boundary itself belongs to the later stage.
	p := testParams(0.125, 0.25, 0.7, 0.5)
	tests := []struct {
		at   float64
		want EnvelopePhase
	}{
		{0.0, EnvAttack},
		{0.05, EnvAttack},
		{0.2, EnvDecay},
		{0.375, EnvSustain},
		{60.0, EnvSustain},
	}
	for _, tt := range tests {
		if got := heldPhaseAt(tt.at, p); got != tt.want {
			t.Errorf("phase(%g) = %v, want %v", tt.at, got, tt.want)
		}
	}
}

// The float32 kernel-matching evaluator must agree with the float64 control
// path to LUT precision; it is the contract that CPU and GPU renders sound
// the same.
func TestEnvelopeLevel32MatchesFloat64(t *testing.T) {
	p := testParams(0.1, 0.2, 0.7, 0.5)
	velocity := 0.8

	for _, at := range []float64{0.0, 0.03, 0.05, 0.1, 0.2, 0.29, 0.3, 1.0} {
		want := heldLevel(velocity, at, p)
		got := float64(envelopeLevel32(float32(velocity), float32(at), -1, 0,
			float32(p.AttackTime), float32(p.DecayTime), float32(p.SustainLevel), float32(p.ReleaseTime)))
		if math.Abs(got-want) > 2e-3 {
			t.Errorf("t=%g: float32 path %.6f, float64 path %.6f", at, got, want)
		}
	}

	for _, tr := range []float64{0.0, 0.1, 0.25, 0.49} {
		want := releaseLevel(0.56, tr, p.ReleaseTime)
		got := float64(envelopeLevel32(float32(velocity), 1.0, float32(tr), 0.56,
			float32(p.AttackTime), float32(p.DecayTime), float32(p.SustainLevel), float32(p.ReleaseTime)))
		if math.Abs(got-want) > 2e-3 {
			t.Errorf("release t=%g: float32 path %.6f, float64 path %.6f", tr, got, want)
		}
	}
}
