// synth_constants.go - Engine-wide constants for the KiloSynth wavetable engine

/*
KiloSynth - GPU-accelerated polyphonic wavetable synthesizer

(c) 2024 - 2026 Ed Filo
https://github.com/edfilo/kilosynth
License: GPLv3 or later
*/

package main

import "time"

const (
	SAMPLE_RATE = 44100
	BLOCK_LEN   = 4096 // Samples per render block
	MAX_VOICES  = 16   // Polyphony budget

	WAVETABLE_FRAME_SIZE = 2048 // Samples per wavetable frame
)

// MIDI note and tuning reference
const (
	MIDI_NOTE_MIN = 0
	MIDI_NOTE_MAX = 127
	MIDI_A4_NOTE  = 69
	MIDI_A4_FREQ  = 440.0
)

// Parameter clamp ranges
const (
	MAX_PITCH_BEND    = 12.0 // Semitones, either direction
	MIN_ENV_SECONDS   = 0.001
	MAX_ENV_SECONDS   = 30.0
	MAX_LFO_RATE      = 40.0 // Hz
	MAX_FILTER_CUTOFF = 0.95
	MAX_RESONANCE     = 4.0
	MAX_MORPH_RATE    = 64.0 // Frames per second
)

const (
	MAX_SAMPLE = 1.0
	MIN_SAMPLE = -1.0
)

// Envelope curve coefficients. The attack/decay/release exponentials are
// normalized so every stage lands exactly on its boundary level; the curve
// shape constants themselves are part of the instrument's sound.
const (
	ENV_ATTACK_COEF  = 5.0
	ENV_DECAY_COEF   = 3.0
	ENV_RELEASE_COEF = 4.0
)

// Render dispatch limits
const (
	RENDER_WAIT_TIMEOUT   = 100 * time.Millisecond
	RENDER_TIMEOUT_DEMOTE = 3 // Consecutive timeouts before falling back to CPU
)

// Pending note-event ring capacity. A full ring drops the event, same
// degrade policy as voice pool exhaustion.
const EVENT_RING_SIZE = 256

// RenderStatus reports the outcome of one block. The render path never
// returns errors; anomalies degrade to silence plus a counter.
type RenderStatus int

const (
	RenderOK       RenderStatus = iota
	RenderSilent                // Engine stopped or no active voices
	RenderTimedOut              // Compute dispatch missed the bounded wait
)

func (s RenderStatus) String() string {
	switch s {
	case RenderOK:
		return "ok"
	case RenderSilent:
		return "silent"
	case RenderTimedOut:
		return "timeout"
	}
	return "unknown"
}
