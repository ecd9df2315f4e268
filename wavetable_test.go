// wavetable_test.go - Wavetable validation and bilinear lookup tests

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

func constFrames(levels ...float32) [][]float32 {
	frames := make([][]float32, len(levels))
	for i, level := range levels {
		frames[i] = make([]float32, 8)
		for j := range frames[i] {
			frames[i][j] = level
		}
	}
	return frames
}

func TestNewWavetableValidation(t *testing.T) {
	tests := []struct {
		name   string
		frames [][]float32
		wantOK bool
	}{
		{"single frame", constFrames(0.5), true},
		{"several frames", constFrames(0, 0.3, 0.6, 1), true},
		{"no frames", [][]float32{}, false},
		{"nil frames", nil, false},
		{"empty frame", [][]float32{{}}, false},
		{"ragged frames", [][]float32{{1, 2, 3}, {1, 2}}, false},
		{"NaN sample", [][]float32{{0, float32(math.NaN()), 0}}, false},
		{"Inf sample", [][]float32{{0, float32(math.Inf(1)), 0}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wt, err := NewWavetable(tt.frames)
			if tt.wantOK && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.wantOK {
				if err == nil {
					t.Fatal("expected an error")
				}
				if wt != nil {
					t.Fatal("error case returned a table")
				}
			}
		})
	}
}

func TestLookupSampleInterpolation(t *testing.T) {
	// One frame, a ramp 0..7, so sample interpolation is directly readable.
	frame := []float32{0, 1, 2, 3, 4, 5, 6, 7}
	wt, err := NewWavetable([][]float32{frame})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		phase float64
		want  float32
	}{
		{0, 0},
		{1.0 / 8, 1},
		{1.5 / 8, 1.5},
		{6.25 / 8, 6.25},
		// Last sample interpolates back toward index 0 (phase axis wraps).
		{7.5 / 8, 3.5},
	}
	for _, tt := range tests {
		got := wt.Lookup(0, tt.phase)
		if math.Abs(float64(got-tt.want)) > 1e-5 {
			t.Errorf("Lookup(0, %g) = %g, want %g", tt.phase, got, tt.want)
		}
	}
}

func TestLookupFrameInterpolation(t *testing.T) {
	wt, err := NewWavetable(constFrames(0, 1))
	if err != nil {
		t.Fatal(err)
	}
	for _, frame := range []float64{0, 0.25, 0.5, 0.75, 1} {
		got := wt.Lookup(frame, 0.3)
		if math.Abs(float64(got)-frame) > 1e-5 {
			t.Errorf("Lookup(%g) = %g, want %g", frame, got, frame)
		}
	}
}

// The morph axis must be continuous through integer frame indices: position
// k.999 and k+1.0 differ by at most the interpolation step, never a jump.
func TestMorphContinuityAcrossFrames(t *testing.T) {
	wt := DefaultWavetable()
	phase := 0.37

	for f := 0; f < wt.FrameCount()-1; f++ {
		below := wt.Lookup(float64(f)+0.999, phase)
		at := wt.Lookup(float64(f)+1.0, phase)
		if math.Abs(float64(at-below)) > 0.02 {
			t.Errorf("discontinuity at frame %d: %g -> %g", f+1, below, at)
		}
	}
}

func TestPositionToFrame(t *testing.T) {
	wt, err := NewWavetable(constFrames(0, 0, 0, 0, 0))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		pos  float64
		want float64
	}{
		{0, 0},
		{0.5, 2},
		{1, 4},
		{-1, 0}, // Out of range clamps
		{2, 4},
	}
	for _, tt := range tests {
		if got := wt.positionToFrame(tt.pos); got != tt.want {
			t.Errorf("positionToFrame(%g) = %g, want %g", tt.pos, got, tt.want)
		}
	}
}

func TestDefaultWavetableShape(t *testing.T) {
	wt := DefaultWavetable()
	if wt.FrameSize() != WAVETABLE_FRAME_SIZE {
		t.Errorf("frame size %d, want %d", wt.FrameSize(), WAVETABLE_FRAME_SIZE)
	}
	if wt.FrameCount() < 2 {
		t.Errorf("frame count %d, want at least 2", wt.FrameCount())
	}
	// First frame is a sine cycle.
	for _, idx := range []int{0, wt.FrameSize() / 4, wt.FrameSize() / 2} {
		want := math.Sin(2 * math.Pi * float64(idx) / float64(wt.FrameSize()))
		got := float64(wt.Data()[idx])
		if math.Abs(got-want) > 1e-5 {
			t.Errorf("sine frame sample %d = %g, want %g", idx, got, want)
		}
	}
	// Every sample across every frame stays inside [-1, 1].
	for i, s := range wt.Data() {
		if s < -1 || s > 1 {
			t.Fatalf("sample %d out of range: %g", i, s)
		}
	}
}
