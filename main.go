// main.go - Main entry point for the KiloSynth wavetable synthesizer

/*
KiloSynth - GPU-accelerated polyphonic wavetable synthesizer

(c) 2024 - 2026 Ed Filo
https://github.com/edfilo/kilosynth
License: GPLv3 or later
*/

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

func boilerPlate() {
	fmt.Println("\n\033[38;2;20;147;255m ██ ▄█▀ ██▓ ██▓     ▒█████    ██████▓██   ██▓ ███▄    █ ▄▄▄█████▓ ██░ ██ \033[0m\n\033[38;2;50;167;255m ██▄█▒ ▓██▒▓██▒    ▒██▒  ██▒▒██    ▒ ▒██  ██▒ ██ ▀█   █ ▓  ██▒ ▓▒▓██░ ██▒\033[0m\n\033[38;2;80;187;255m▓███▄░ ▒██▒▒██░    ▒██░  ██▒░ ▓██▄    ▒██ ██░▓██  ▀█ ██▒▒ ▓██░ ▒░▒██▀▀██░\033[0m\n\033[38;2;110;207;255m▓██ █▄ ░██░▒██░    ▒██   ██░  ▒   ██▒ ░ ▐██▓░▓██▒  ▐▌██▒░ ▓██▓ ░ ░▓█ ░██ \033[0m\n\033[38;2;140;227;255m▒██▒ █▄░██░░██████▒░ ████▓▒░▒██████▒▒ ░ ██▒▓░▒██░   ▓██░  ▒██▒ ░ ░▓█▒░██▓\033[0m")
	fmt.Println("\nGPU-accelerated polyphonic wavetable synthesizer.")
	fmt.Println("(c) 2024 - 2026 Ed Filo")
	fmt.Println("https://github.com/edfilo/kilosynth")
	fmt.Println("License: GPLv3 or later")
	fmt.Println()
}

func main() {
	boilerPlate()

	var (
		renderName string
		audioName  string
		scriptPath string
		midiMode   bool
		midiPort   string
		listMIDI   bool
		showStats  bool
	)

	flagSet := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&renderName, "render", "auto", "Render backend: auto, opencl or cpu")
	flagSet.StringVar(&audioName, "audio", "oto", "Audio backend: oto, alsa or none")
	flagSet.StringVar(&scriptPath, "script", "", "Run a Lua performance script and exit")
	flagSet.BoolVar(&midiMode, "midi", false, "Play from a hardware MIDI input")
	flagSet.StringVar(&midiPort, "midi-port", "", "MIDI input port name prefix (default: first port)")
	flagSet.BoolVar(&listMIDI, "list-midi", false, "List MIDI input ports and exit")
	flagSet.BoolVar(&showStats, "stats", false, "Print engine counters on exit")

	flagSet.Usage = func() {
		flagSet.SetOutput(os.Stdout)
		fmt.Println("Usage: ./kilosynth [-render auto|opencl|cpu] [-audio oto|alsa|none] [-script file.lua | -midi [-midi-port name]]")
		fmt.Println("With no mode flag the terminal becomes a musical keyboard (q to quit).")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	renderKind, err := parseRenderBackend(renderName)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	audioKind, err := parseAudioBackend(audioName)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	synth, err := NewWaveSynth(renderKind, audioKind)
	if err != nil {
		fmt.Printf("Failed to initialize synth: %v\n", err)
		os.Exit(1)
	}
	defer synth.Stop()

	if listMIDI {
		listMIDIPorts(synth)
		return
	}

	fmt.Printf("Render backend: %s\n", synth.Stats().Backend)
	synth.Start()

	switch {
	case scriptPath != "":
		runScript(synth, scriptPath)
	case midiMode:
		runMIDI(synth, midiPort)
	default:
		runKeyboard(synth)
	}

	if showStats {
		printStats(synth)
	}
}

func parseRenderBackend(name string) (int, error) {
	switch name {
	case "auto":
		return RENDER_BACKEND_AUTO, nil
	case "opencl":
		return RENDER_BACKEND_OPENCL, nil
	case "cpu":
		return RENDER_BACKEND_CPU, nil
	}
	return 0, fmt.Errorf("unknown render backend %q", name)
}

func parseAudioBackend(name string) (int, error) {
	switch name {
	case "oto":
		return AUDIO_BACKEND_OTO, nil
	case "alsa":
		return AUDIO_BACKEND_ALSA, nil
	case "none":
		return AUDIO_BACKEND_NONE, nil
	}
	return 0, fmt.Errorf("unknown audio backend %q", name)
}

func listMIDIPorts(synth *WaveSynth) {
	input, err := NewMIDIInput(synth)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer input.Close()
	ports, err := input.ListPorts()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if len(ports) == 0 {
		fmt.Println("No MIDI input ports found.")
		return
	}
	for i, name := range ports {
		fmt.Printf("  %d: %s\n", i, name)
	}
}

func runScript(synth *WaveSynth, path string) {
	host := NewScriptHost(synth)
	defer host.Close()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	go func() {
		<-sig
		fmt.Println("\nInterrupted.")
		host.Interrupt()
		synth.AllNotesOff()
	}()

	fmt.Printf("Running script: %s\n", path)
	if err := host.Run(path); err != nil {
		fmt.Printf("Script error: %v\n", err)
		os.Exit(1)
	}
}

func runMIDI(synth *WaveSynth, portPrefix string) {
	input, err := NewMIDIInput(synth)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer input.Close()
	if err := input.OpenByName(portPrefix); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Playing from MIDI. Ctrl-C to quit.")
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	fmt.Println("\nShutting down.")
	synth.AllNotesOff()
}

func runKeyboard(synth *WaveSynth) {
	fmt.Println("Keyboard mode: a-; play notes, w/e/t/y/u/o/p sharps, z/x octave,")
	fmt.Println("[/] wavetable position, space all notes off, q quits.")
	host := NewKeyboardHost(synth)
	host.Start()
	defer host.Stop()
	<-host.Done()
}

func printStats(synth *WaveSynth) {
	stats := synth.Stats()
	fmt.Printf("Blocks rendered:  %d (%d silent)\n", stats.BlocksRendered, stats.SilentBlocks)
	fmt.Printf("Render timeouts:  %d\n", stats.RenderTimeouts)
	fmt.Printf("Notes dropped:    %d (events dropped: %d)\n", stats.NotesDropped, stats.EventsDropped)
	fmt.Printf("Transport time:   %.2fs on %s\n", stats.TransportTime, stats.Backend)
}
