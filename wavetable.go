// wavetable.go - Multi-frame wavetable storage and morphing lookup

/*
KiloSynth - GPU-accelerated polyphonic wavetable synthesizer

(c) 2024 - 2026 Ed Filo
https://github.com/edfilo/kilosynth
License: GPLv3 or later
*/

package main

import (
	"fmt"
	"math"
)

// Wavetable holds F single-cycle frames of S samples each as one flat array,
// frame-major. Tables are immutable once built: a preset load constructs a new
// table and the engine swaps an atomic pointer, so the render path never sees
// a partially written table and never synchronizes on reads.
type Wavetable struct {
	data       []float32 // len = frameCount * frameSize
	frameCount int
	frameSize  int
}

// NewWavetable validates externally supplied frame data and builds a table.
// The frames slice is the decoder's [frame][sample] output. Validation is
// strict because this call is off the audio hot path: wrong frame lengths or
// non-finite samples reject the whole table.
func NewWavetable(frames [][]float32) (*Wavetable, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("wavetable: no frames")
	}
	size := len(frames[0])
	if size == 0 {
		return nil, fmt.Errorf("wavetable: empty frame")
	}
	data := make([]float32, 0, len(frames)*size)
	for i, f := range frames {
		if len(f) != size {
			return nil, fmt.Errorf("wavetable: frame %d has %d samples, expected %d", i, len(f), size)
		}
		for j, s := range f {
			if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
				return nil, fmt.Errorf("wavetable: frame %d sample %d is not finite", i, j)
			}
		}
		data = append(data, f...)
	}
	return &Wavetable{data: data, frameCount: len(frames), frameSize: size}, nil
}

func (wt *Wavetable) FrameCount() int { return wt.frameCount }
func (wt *Wavetable) FrameSize() int  { return wt.frameSize }

// Data exposes the flat frame-major sample array for device upload.
func (wt *Wavetable) Data() []float32 { return wt.data }

// Lookup reads the table at a fractional frame index and a unit phase in
// [0, 1), bilinearly interpolating across the 2x2 (frame, sample)
// neighborhood. Both axes wrap, so morphing past the last frame folds back to
// the first and the within-frame read is seamless across the cycle boundary.
func (wt *Wavetable) Lookup(frameFloat, phaseUnit float64) float32 {
	f := int(math.Floor(frameFloat))
	ffrac := float32(frameFloat - math.Floor(frameFloat))
	f1 := ((f % wt.frameCount) + wt.frameCount) % wt.frameCount
	f2 := (f1 + 1) % wt.frameCount

	samplePos := phaseUnit * float64(wt.frameSize)
	s := int(samplePos)
	sfrac := float32(samplePos - float64(s))
	s1 := s % wt.frameSize
	if s1 < 0 {
		s1 += wt.frameSize
	}
	s2 := (s1 + 1) % wt.frameSize

	a := wt.data[f1*wt.frameSize+s1]
	b := wt.data[f1*wt.frameSize+s2]
	c := wt.data[f2*wt.frameSize+s1]
	d := wt.data[f2*wt.frameSize+s2]

	top := a + (b-a)*sfrac
	bottom := c + (d-c)*sfrac
	return top + (bottom-top)*ffrac
}

// positionToFrame maps a normalized table position [0,1] to a fractional
// frame index spanning the whole table.
func (wt *Wavetable) positionToFrame(pos float64) float64 {
	if wt.frameCount <= 1 {
		return 0
	}
	return clampf64(pos, 0, 1) * float64(wt.frameCount-1)
}
