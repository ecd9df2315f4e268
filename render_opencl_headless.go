//go:build headless

// render_opencl_headless.go - OpenCL stub for headless builds

/*
KiloSynth - GPU-accelerated polyphonic wavetable synthesizer

(c) 2024 - 2026 Ed Filo
https://github.com/edfilo/kilosynth
License: GPLv3 or later
*/

package main

import "errors"

var (
	errRenderTimeout = errors.New("render dispatch timed out")
	errRenderBusy    = errors.New("previous render dispatch still outstanding")
)

type openCLRenderer struct{}

func newOpenCLRenderer(blockLen int) (*openCLRenderer, error) {
	return nil, errors.New("OpenCL disabled in headless build")
}

func (r *openCLRenderer) Name() string                                   { return "opencl:disabled" }
func (r *openCLRenderer) RenderBlock(req *renderRequest, out []float32) error { return errRenderBusy }
func (r *openCLRenderer) Close()                                         {}
