// render_backend.go - Render backend contract and device voice-state layout

/*
KiloSynth - GPU-accelerated polyphonic wavetable synthesizer

(c) 2024 - 2026 Ed Filo
https://github.com/edfilo/kilosynth
License: GPLv3 or later
*/

package main

import (
	"fmt"
	"os"
)

// Backend selection, mirrored by the -render flag.
const (
	RENDER_BACKEND_AUTO = iota
	RENDER_BACKEND_OPENCL
	RENDER_BACKEND_CPU
)

// Per-voice device record: a flat float32 layout shared verbatim by the CPU
// renderer and the OpenCL kernel. The CPU packs it once per block; the layout
// is the whole CPU->GPU contract for voice state.
//
// All times are seconds relative to the current block start, never absolute
// transport seconds: absolute times would exhaust float32 resolution within
// minutes of uptime. Phase is likewise the fixed-point accumulator's value at
// the block start, so a work item only ever adds a sub-block offset to it.
const (
	vsActive         = 0 // 0 or 1
	vsFrequency      = 1 // Hz, already includes pitch bend
	vsVelocity       = 2
	vsHeldTime       = 3 // Seconds held as of block start
	vsReleaseElapsed = 4 // Seconds since note-off as of block start, -1 while held
	vsReleaseStart   = 5 // Envelope level at note-off
	vsFrame          = 6 // Fractional wavetable frame
	vsPhaseOffset    = 7 // Unit phase [0,1) from the fixed-point accumulator
	vsLFOOffset      = 8 // Unit LFO phase [0,1)

	voiceStride = 9
)

// renderRequest carries everything one block dispatch needs. The engine owns
// and reuses the backing arrays; backends must not retain them past the call.
type renderRequest struct {
	params     *SynthParameters
	table      *Wavetable
	voiceData  []float32 // voiceCount * voiceStride
	voiceCount int
}

// RenderBackend evaluates one block of samples for all packed voices.
// RenderBlock must be safe to call repeatedly from the audio thread and must
// bound its own waiting; an error means the block produced nothing and the
// caller substitutes silence.
type RenderBackend interface {
	Name() string
	RenderBlock(req *renderRequest, out []float32) error
	Close()
}

// newRenderBackend builds the requested backend. AUTO tries the OpenCL path
// and falls back to the CPU renderer, which is also constructed eagerly as
// the warm fallback for render timeouts.
func newRenderBackend(kind, blockLen int) RenderBackend {
	switch kind {
	case RENDER_BACKEND_CPU:
		return newSoftwareRenderer(blockLen)
	case RENDER_BACKEND_OPENCL, RENDER_BACKEND_AUTO:
		gpu, err := newOpenCLRenderer(blockLen)
		if err != nil {
			if kind == RENDER_BACKEND_OPENCL {
				fmt.Fprintf(os.Stderr, "kilosynth: OpenCL unavailable (%v), using CPU renderer\n", err)
			}
			return newSoftwareRenderer(blockLen)
		}
		return gpu
	}
	return newSoftwareRenderer(blockLen)
}
