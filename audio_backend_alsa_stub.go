//go:build !linux || headless

// audio_backend_alsa_stub.go - ALSA stub for platforms without libasound

/*
KiloSynth - GPU-accelerated polyphonic wavetable synthesizer

(c) 2024 - 2026 Ed Filo
https://github.com/edfilo/kilosynth
License: GPLv3 or later
*/

package main

import "errors"

type ALSAPlayer struct{}

func NewALSAPlayer(sampleRate int, synth *WaveSynth) (*ALSAPlayer, error) {
	return nil, errors.New("ALSA output not available on this platform")
}

func (ap *ALSAPlayer) IsStarted() bool { return false }
func (ap *ALSAPlayer) Start()          {}
func (ap *ALSAPlayer) Stop()           {}
func (ap *ALSAPlayer) Close()          {}
