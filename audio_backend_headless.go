//go:build headless

// audio_backend_headless.go - No-op playback for headless builds

/*
KiloSynth - GPU-accelerated polyphonic wavetable synthesizer

(c) 2024 - 2026 Ed Filo
https://github.com/edfilo/kilosynth
License: GPLv3 or later
*/

package main

type OtoPlayer struct {
	started bool
	synth   *WaveSynth
}

func NewOtoPlayer(sampleRate int) (*OtoPlayer, error) {
	return &OtoPlayer{}, nil
}

func (op *OtoPlayer) SetupPlayer(synth *WaveSynth) {
	op.synth = synth
}

func (op *OtoPlayer) Read(p []byte) (n int, err error) {
	return len(p), nil
}

func (op *OtoPlayer) Start() {
	op.started = true
}

func (op *OtoPlayer) Stop() {
	op.started = false
}

func (op *OtoPlayer) Close() {
	op.started = false
}

func (op *OtoPlayer) IsStarted() bool {
	return op.started
}
