// wavetable_gen.go - Built-in wavetable frame generation

/*
KiloSynth - GPU-accelerated polyphonic wavetable synthesizer

(c) 2024 - 2026 Ed Filo
https://github.com/edfilo/kilosynth
License: GPLv3 or later
*/

package main

import "math"

// In production the wavetable arrives from the external preset decoder. The
// generator below provides a playable default so the engine, the demo hosts
// and the tests do not depend on that collaborator being wired up.

// GenerateDefaultFrames builds a morph table that sweeps sine -> triangle ->
// sawtooth -> square across frameCount frames of frameSize samples. Adjacent
// frames differ only slightly, which is what makes position morphing sound
// continuous rather than stepped.
func GenerateDefaultFrames(frameCount, frameSize int) [][]float32 {
	if frameCount < 2 {
		frameCount = 2
	}
	if frameSize < 2 {
		frameSize = 2
	}
	frames := make([][]float32, frameCount)
	for f := 0; f < frameCount; f++ {
		// Position of this frame along the sine->square sweep, in [0, 3].
		sweep := float64(f) / float64(frameCount-1) * 3
		shape := int(sweep)
		blend := sweep - float64(shape)

		frame := make([]float32, frameSize)
		for i := 0; i < frameSize; i++ {
			phase := float64(i) / float64(frameSize)
			a := shapeSample(shape, phase)
			b := shapeSample(shape+1, phase)
			frame[i] = float32(a + (b-a)*blend)
		}
		frames[f] = frame
	}
	return frames
}

// shapeSample evaluates one of the four base cycles at unit phase.
// Shapes: 0=sine, 1=triangle, 2=sawtooth, 3=square.
func shapeSample(shape int, phase float64) float64 {
	if shape > 3 {
		shape = 3
	}
	switch shape {
	case 0:
		return math.Sin(2 * math.Pi * phase)
	case 1:
		return 1 - 4*math.Abs(phase-0.5)
	case 2:
		return 2*phase - 1
	default:
		// Slightly under full scale keeps the square from dominating the
		// mix relative to the other shapes.
		if phase < 0.5 {
			return 0.9
		}
		return -0.9
	}
}

// DefaultWavetable builds the standard 16-frame table used when no preset
// has been loaded.
func DefaultWavetable() *Wavetable {
	wt, err := NewWavetable(GenerateDefaultFrames(16, WAVETABLE_FRAME_SIZE))
	if err != nil {
		// Generator output is finite and rectangular by construction.
		panic(err)
	}
	return wt
}
