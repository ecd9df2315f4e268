// audio_lut.go - Lookup tables for the CPU render path

/*
KiloSynth - GPU-accelerated polyphonic wavetable synthesizer

(c) 2024 - 2026 Ed Filo
https://github.com/edfilo/kilosynth
License: GPLv3 or later
*/

package main

import "math"

// The CPU fallback renderer evaluates a sine LFO and three exponential
// envelope segments for every voice at every sample. Both transcendentals go
// through linearly interpolated tables; at these sizes the error is below
// 1e-4, well under the float32 precision the OpenCL kernel works at.

const (
	sinLUTSize = 8192 // ~0.00077 radian resolution
	sinLUTMask = sinLUTSize - 1

	expLUTSize = 4096
	expLUTMax  = float32(8.0) // Envelope exponents stay within [0, 8]
)

const (
	sinLUTScale = float32(sinLUTSize) / (2 * math.Pi)
	expLUTScale = float32(expLUTSize-1) / expLUTMax
	twoPi       = float32(2 * math.Pi)
)

// sinLUT contains sine values for phase [0, 2π)
var sinLUT [sinLUTSize]float32

// expLUT contains e^-x for x in [0, 8]
var expLUT [expLUTSize]float32

func init() {
	for i := 0; i < sinLUTSize; i++ {
		sinLUT[i] = float32(math.Sin(float64(i) * 2 * math.Pi / float64(sinLUTSize)))
	}
	for i := 0; i < expLUTSize; i++ {
		x := float64(i) * float64(expLUTMax) / float64(expLUTSize-1)
		expLUT[i] = float32(math.Exp(-x))
	}
}

// fastSin returns sin(phase) for phase in radians, wrapping as needed.
//
//go:nosplit
func fastSin(phase float32) float32 {
	if phase < 0 {
		phase += twoPi
		if phase < 0 {
			phase = phase - twoPi*float32(int(phase/twoPi)-1)
		}
	} else if phase >= twoPi {
		phase = phase - twoPi*float32(int(phase/twoPi))
	}

	indexF := phase * sinLUTScale
	index := int(indexF)
	frac := indexF - float32(index)

	index &= sinLUTMask
	nextIndex := (index + 1) & sinLUTMask

	return sinLUT[index] + frac*(sinLUT[nextIndex]-sinLUT[index])
}

// fastExpNeg returns e^-x for x >= 0, clamping to 0 beyond the table range
// (e^-8 is already below envelope audibility).
//
//go:nosplit
func fastExpNeg(x float32) float32 {
	if x <= 0 {
		return 1
	}
	if x >= expLUTMax {
		return 0
	}

	indexF := x * expLUTScale
	index := int(indexF)
	frac := indexF - float32(index)

	if index >= expLUTSize-1 {
		return expLUT[expLUTSize-1]
	}
	return expLUT[index] + frac*(expLUT[index+1]-expLUT[index])
}
