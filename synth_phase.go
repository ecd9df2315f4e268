// synth_phase.go - Fixed-point oscillator phase arithmetic

/*
KiloSynth - GPU-accelerated polyphonic wavetable synthesizer

(c) 2024 - 2026 Ed Filo
https://github.com/edfilo/kilosynth
License: GPLv3 or later
*/

package main

import "math"

// Oscillator phase is tracked as a Q32.32 fixed-point accumulator: a uint64
// whose low 32 bits are the fractional cycle position. Integer addition wraps
// bit-exactly, so a note held for minutes never accumulates the rounding error
// a float32 phase would. The high 32 bits are scratch headroom; only the low
// word is ever read back.

const (
	phaseFracBits = 32
	phaseFracMask = (uint64(1) << phaseFracBits) - 1
	phaseFracOne  = float64(uint64(1) << phaseFracBits)
)

// frequencyToPhaseDelta returns the per-sample phase increment for a
// frequency in Hz at the given sample rate.
func frequencyToPhaseDelta(freq, sampleRate float64) uint64 {
	if freq <= 0 || sampleRate <= 0 {
		return 0
	}
	return uint64(math.Round(freq / sampleRate * phaseFracOne))
}

// phaseAccumulatorToUnitPhase maps an accumulator to [0, 1).
func phaseAccumulatorToUnitPhase(acc uint64) float64 {
	return float64(acc&phaseFracMask) / phaseFracOne
}

// slotPhaseOffset returns the deterministic starting phase for a voice slot.
// Spreading slots across the cycle keeps simultaneous notes from summing
// perfectly coherently on the first samples.
func slotPhaseOffset(slot, slots int) uint64 {
	if slots <= 0 {
		return 0
	}
	return (uint64(slot) << phaseFracBits) / uint64(slots)
}

// midiToFrequency converts a MIDI note number plus a pitch-bend offset in
// semitones to Hz, equal temperament around A4 = 440 Hz.
func midiToFrequency(note int, bendSemitones float64) float64 {
	if bendSemitones > MAX_PITCH_BEND {
		bendSemitones = MAX_PITCH_BEND
	} else if bendSemitones < -MAX_PITCH_BEND {
		bendSemitones = -MAX_PITCH_BEND
	}
	return MIDI_A4_FREQ * math.Pow(2, (float64(note)+bendSemitones-MIDI_A4_NOTE)/12)
}

func clampNote(note int) int {
	if note < MIDI_NOTE_MIN {
		return MIDI_NOTE_MIN
	}
	if note > MIDI_NOTE_MAX {
		return MIDI_NOTE_MAX
	}
	return note
}

func clampf64(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampf32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
