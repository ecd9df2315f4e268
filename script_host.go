// script_host.go - Lua performance script host

/*
KiloSynth - GPU-accelerated polyphonic wavetable synthesizer

(c) 2024 - 2026 Ed Filo
https://github.com/edfilo/kilosynth
License: GPLv3 or later
*/

package main

import (
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// ScriptHost runs a Lua performance script against a live engine. Scripts
// get a small imperative vocabulary:
//
//	noteOn(note, velocity [, position])
//	noteOff(note)
//	allNotesOff()
//	setNotePosition(note, position)
//	setADSR(attack, decay, sustain, release)
//	setMasterVolume(v)  setFilterCutoff(v)  setFilterResonance(v)
//	setLFORate(v)  setLFODepth(v)
//	setWavetablePosition(v)  setMorphRate(v)  setPitchBend(semitones)
//	sleep(seconds)
//
// sleep is the script's clock; everything else queues onto the engine and
// takes effect at the next block boundary.
type ScriptHost struct {
	state *lua.LState
	synth *WaveSynth
	stop  chan struct{}
}

func NewScriptHost(synth *WaveSynth) *ScriptHost {
	sh := &ScriptHost{
		state: lua.NewState(),
		synth: synth,
		stop:  make(chan struct{}),
	}
	sh.register()
	return sh
}

// Run executes the script file to completion. It blocks the caller; run it
// on its own goroutine if the host needs to stay interactive.
func (sh *ScriptHost) Run(path string) error {
	if err := sh.state.DoFile(path); err != nil {
		return fmt.Errorf("running script %s: %w", path, err)
	}
	return nil
}

// Interrupt makes any in-progress sleep() return early. The script keeps
// executing; scripts that should terminate on interrupt check the return
// value of sleep.
func (sh *ScriptHost) Interrupt() {
	select {
	case <-sh.stop:
	default:
		close(sh.stop)
	}
}

func (sh *ScriptHost) Close() {
	sh.Interrupt()
	sh.state.Close()
}

func (sh *ScriptHost) register() {
	L := sh.state
	L.SetGlobal("noteOn", L.NewFunction(sh.luaNoteOn))
	L.SetGlobal("noteOff", L.NewFunction(func(L *lua.LState) int {
		sh.synth.NoteOff(L.CheckInt(1))
		return 0
	}))
	L.SetGlobal("allNotesOff", L.NewFunction(func(L *lua.LState) int {
		sh.synth.AllNotesOff()
		return 0
	}))
	L.SetGlobal("setNotePosition", L.NewFunction(func(L *lua.LState) int {
		sh.synth.UpdateNoteWavetablePosition(L.CheckInt(1), float64(L.CheckNumber(2)))
		return 0
	}))
	L.SetGlobal("setADSR", L.NewFunction(func(L *lua.LState) int {
		sh.synth.SetADSR(
			float64(L.CheckNumber(1)), float64(L.CheckNumber(2)),
			float64(L.CheckNumber(3)), float64(L.CheckNumber(4)))
		return 0
	}))
	setters := map[string]func(float64){
		"setMasterVolume":      sh.synth.SetMasterVolume,
		"setFilterCutoff":      sh.synth.SetFilterCutoff,
		"setFilterResonance":   sh.synth.SetFilterResonance,
		"setLFORate":           sh.synth.SetLFORate,
		"setLFODepth":          sh.synth.SetLFODepth,
		"setWavetablePosition": sh.synth.SetWavetablePosition,
		"setMorphRate":         sh.synth.SetMorphRate,
		"setPitchBend":         sh.synth.SetPitchBend,
	}
	for name, set := range setters {
		set := set
		L.SetGlobal(name, L.NewFunction(func(L *lua.LState) int {
			set(float64(L.CheckNumber(1)))
			return 0
		}))
	}
	L.SetGlobal("sleep", L.NewFunction(sh.luaSleep))
}

func (sh *ScriptHost) luaNoteOn(L *lua.LState) int {
	note := L.CheckInt(1)
	velocity := float64(L.CheckNumber(2))
	position := -1.0
	if L.GetTop() >= 3 {
		position = float64(L.CheckNumber(3))
	}
	sh.synth.NoteOn(note, velocity, position)
	return 0
}

// luaSleep blocks the script for the given number of seconds and pushes true,
// or pushes false immediately if the host was interrupted.
func (sh *ScriptHost) luaSleep(L *lua.LState) int {
	seconds := float64(L.CheckNumber(1))
	if seconds < 0 {
		seconds = 0
	}
	timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer timer.Stop()
	select {
	case <-timer.C:
		L.Push(lua.LBool(true))
	case <-sh.stop:
		L.Push(lua.LBool(false))
	}
	return 1
}
