// audio_output.go - Audio backend selection

/*
KiloSynth - GPU-accelerated polyphonic wavetable synthesizer

(c) 2024 - 2026 Ed Filo
https://github.com/edfilo/kilosynth
License: GPLv3 or later
*/

package main

import "fmt"

const (
	AUDIO_BACKEND_NONE = iota // No playback; the host pulls RenderBlock itself
	AUDIO_BACKEND_OTO
	AUDIO_BACKEND_ALSA
)

// AudioOutput abstracts the playback backend driving the engine's render
// callback. Backends pull whole blocks via WaveSynth.RenderBlock.
type AudioOutput interface {
	Start()
	Stop()
	Close()
}

// NewAudioOutput wires the requested backend to the engine.
func NewAudioOutput(backend int, sampleRate int, synth *WaveSynth) (AudioOutput, error) {
	switch backend {
	case AUDIO_BACKEND_NONE:
		return &nullOutput{}, nil
	case AUDIO_BACKEND_OTO:
		player, err := NewOtoPlayer(sampleRate)
		if err != nil {
			return nil, fmt.Errorf("initializing oto output: %w", err)
		}
		player.SetupPlayer(synth)
		return player, nil
	case AUDIO_BACKEND_ALSA:
		player, err := NewALSAPlayer(sampleRate, synth)
		if err != nil {
			return nil, fmt.Errorf("initializing ALSA output: %w", err)
		}
		return player, nil
	}
	return nil, fmt.Errorf("unknown audio backend %d", backend)
}

// nullOutput is the embedded/test configuration: the host owns the audio
// callback and calls RenderBlock directly.
type nullOutput struct{}

func (*nullOutput) Start() {}
func (*nullOutput) Stop()  {}
func (*nullOutput) Close() {}
