// midi_input.go - Hardware MIDI input host

/*
KiloSynth - GPU-accelerated polyphonic wavetable synthesizer

(c) 2024 - 2026 Ed Filo
https://github.com/edfilo/kilosynth
License: GPLv3 or later
*/

package main

import (
	"errors"
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// MIDIInput listens on a hardware MIDI port and drives the engine directly
// from the driver callback. Note on/off map to voice events; a few common
// controllers map onto engine parameters:
//
//	CC 1  (mod wheel)  -> LFO depth
//	CC 7  (volume)     -> master volume
//	CC 71 (resonance)  -> filter resonance
//	CC 74 (brightness) -> filter cutoff
type MIDIInput struct {
	driver *rtmididrv.Driver
	in     drivers.In
	stop   func()
	synth  *WaveSynth
}

func NewMIDIInput(synth *WaveSynth) (*MIDIInput, error) {
	driver, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("opening MIDI driver: %w", err)
	}
	return &MIDIInput{driver: driver, synth: synth}, nil
}

// ListPorts returns the names of all available MIDI input ports.
func (mi *MIDIInput) ListPorts() ([]string, error) {
	ins, err := mi.driver.Ins()
	if err != nil {
		return nil, fmt.Errorf("enumerating MIDI inputs: %w", err)
	}
	names := make([]string, len(ins))
	for i, in := range ins {
		names[i] = in.String()
	}
	return names, nil
}

// OpenByName opens the first port whose name begins with namePrefix, or the
// first available port when namePrefix is empty.
func (mi *MIDIInput) OpenByName(namePrefix string) error {
	ins, err := mi.driver.Ins()
	if err != nil {
		return fmt.Errorf("enumerating MIDI inputs: %w", err)
	}
	for _, in := range ins {
		if namePrefix == "" || strings.HasPrefix(in.String(), namePrefix) {
			return mi.open(in)
		}
	}
	if namePrefix == "" {
		return errors.New("no MIDI input ports available")
	}
	return fmt.Errorf("no MIDI input port starting with %q", namePrefix)
}

func (mi *MIDIInput) open(in drivers.In) error {
	if err := in.Open(); err != nil {
		return fmt.Errorf("opening MIDI input %s: %w", in.String(), err)
	}
	stop, err := midi.ListenTo(in, mi.handleMessage)
	if err != nil {
		in.Close()
		return fmt.Errorf("listening on MIDI input %s: %w", in.String(), err)
	}
	mi.in = in
	mi.stop = stop
	fmt.Printf("MIDI input: %s\n", in.String())
	return nil
}

func (mi *MIDIInput) handleMessage(msg midi.Message, timestampms int32) {
	var channel, key, velocity, cc, val uint8
	var bendRel int16
	var bendAbs uint16
	switch {
	case msg.GetNoteOn(&channel, &key, &velocity):
		// Running status note-on with velocity 0 is a note-off; NoteOn
		// handles that mapping itself.
		mi.synth.NoteOn(int(key), float64(velocity)/127.0, -1)
	case msg.GetNoteOff(&channel, &key, &velocity):
		mi.synth.NoteOff(int(key))
	case msg.GetPitchBend(&channel, &bendRel, &bendAbs):
		// Standard bend range: the full 14-bit wheel spans +-2 semitones.
		mi.synth.SetPitchBend(float64(bendRel) / 8192.0 * 2.0)
	case msg.GetControlChange(&channel, &cc, &val):
		norm := float64(val) / 127.0
		switch cc {
		case 1:
			mi.synth.SetLFODepth(norm)
		case 7:
			mi.synth.SetMasterVolume(norm)
		case 71:
			mi.synth.SetFilterResonance(norm)
		case 74:
			mi.synth.SetFilterCutoff(norm)
		case 120, 123:
			mi.synth.AllNotesOff()
		}
	}
}

func (mi *MIDIInput) Close() {
	if mi.stop != nil {
		mi.stop()
		mi.stop = nil
	}
	if mi.in != nil && mi.in.IsOpen() {
		mi.in.Close()
		mi.in = nil
	}
	if mi.driver != nil {
		mi.driver.Close()
		mi.driver = nil
	}
}
