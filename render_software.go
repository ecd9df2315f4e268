// render_software.go - CPU reference renderer and warm GPU fallback

/*
KiloSynth - GPU-accelerated polyphonic wavetable synthesizer

(c) 2024 - 2026 Ed Filo
https://github.com/edfilo/kilosynth
License: GPLv3 or later
*/

package main

import (
	"math"

	"github.com/viterin/vek/vek32"
)

// softwareRenderer implements the same per-sample math as the OpenCL kernel
// in plain Go. It serves two purposes:
//  1. Fallback when no OpenCL device exists or dispatches keep timing out
//  2. Reference implementation for testing the kernel's semantics
//
// It is built eagerly at engine construction and kept warm, so a timeout
// demotion costs nothing at the moment it happens.
type softwareRenderer struct {
	voiceBuf []float32
	mixBuf   []float32
}

// Normalization constants for the envelope exponentials, matching
// synth_envelope.go at float32 precision.
var (
	envAttackNorm  = float32(1 / (1 - math.Exp(-ENV_ATTACK_COEF)))
	envDecayFloor  = float32(math.Exp(-ENV_DECAY_COEF))
	envDecayNorm   = float32(1 / (1 - math.Exp(-ENV_DECAY_COEF)))
	envReleaseEnd  = float32(math.Exp(-ENV_RELEASE_COEF))
	envReleaseNorm = float32(1 / (1 - math.Exp(-ENV_RELEASE_COEF)))
)

func newSoftwareRenderer(blockLen int) *softwareRenderer {
	return &softwareRenderer{
		voiceBuf: make([]float32, blockLen),
		mixBuf:   make([]float32, blockLen),
	}
}

func (r *softwareRenderer) Name() string { return "cpu" }

func (r *softwareRenderer) Close() {}

func (r *softwareRenderer) RenderBlock(req *renderRequest, out []float32) error {
	n := len(out)
	if n > len(r.mixBuf) {
		r.mixBuf = make([]float32, n)
		r.voiceBuf = make([]float32, n)
	}
	mix := r.mixBuf[:n]
	clear(mix)

	for v := 0; v < req.voiceCount; v++ {
		vd := req.voiceData[v*voiceStride : (v+1)*voiceStride]
		if vd[vsActive] < 0.5 {
			continue
		}
		voice := r.voiceBuf[:n]
		r.renderVoice(vd, req, voice)
		vek32.Add_Inplace(mix, voice)
	}

	vek32.MulNumber_Inplace(mix, float32(req.params.MasterVolume))
	for i := range out {
		out[i] = clampf32(mix[i], MIN_SAMPLE, MAX_SAMPLE)
	}
	return nil
}

// renderVoice evaluates one voice across the block. All times in the packed
// record are relative to the block start, so the per-sample additions stay on
// small float32 values; phase comes from the fixed-point accumulator's
// block-start snapshot plus a sub-block offset, which keeps it exact no
// matter how long the note or the transport has been running.
func (r *softwareRenderer) renderVoice(vd []float32, req *renderRequest, out []float32) {
	p := req.params
	table := req.table

	freq := vd[vsFrequency]
	velocity := vd[vsVelocity]
	heldBase := vd[vsHeldTime]
	releaseBase := vd[vsReleaseElapsed]
	releaseStart := vd[vsReleaseStart]
	frame := float64(vd[vsFrame])
	phaseOff := vd[vsPhaseOffset]
	lfoOff := vd[vsLFOOffset]

	attack := float32(p.AttackTime)
	decay := float32(p.DecayTime)
	sustain := float32(p.SustainLevel)
	releaseDur := float32(p.ReleaseTime)
	lfoRate := float32(p.LFORate)
	lfoDepth := float32(p.LFODepth)
	invRate := float32(1.0 / p.SampleRate)

	for i := range out {
		dt := float32(i) * invRate
		held := heldBase + dt
		releaseElapsed := float32(-1)
		if releaseBase >= 0 {
			releaseElapsed = releaseBase + dt
		}

		level := envelopeLevel32(velocity, held, releaseElapsed, releaseStart,
			attack, decay, sustain, releaseDur)
		if level <= 0 {
			out[i] = 0
			continue
		}

		phase := phaseOff + freq*dt
		phase -= float32(math.Floor(float64(phase)))
		s := table.Lookup(frame, float64(phase))

		if lfoDepth > 0 {
			lp := lfoOff + lfoRate*dt
			s *= 1 - lfoDepth*(0.5+0.5*fastSin(twoPi*lp))
		}

		out[i] = s * level
	}
}

// envelopeLevel32 is the float32 envelope used on the sample loop, matching
// envelopeLevelAt to within LUT precision. A negative releaseElapsed means
// the note is still held.
func envelopeLevel32(velocity, held, releaseElapsed, releaseStart, attack, decay, sustain, releaseDur float32) float32 {
	if held < 0 {
		return 0
	}
	if releaseElapsed >= 0 {
		if releaseDur <= 0 || releaseElapsed >= releaseDur {
			return 0
		}
		return releaseStart * (fastExpNeg(ENV_RELEASE_COEF*releaseElapsed/releaseDur) - envReleaseEnd) * envReleaseNorm
	}
	if held < attack {
		return velocity * (1 - fastExpNeg(ENV_ATTACK_COEF*held/attack)) * envAttackNorm
	}
	td := held - attack
	if td < decay {
		w := (fastExpNeg(ENV_DECAY_COEF*td/decay) - envDecayFloor) * envDecayNorm
		return velocity * (sustain + (1-sustain)*w)
	}
	return velocity * sustain
}
