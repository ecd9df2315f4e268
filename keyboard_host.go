// keyboard_host.go - Interactive terminal keyboard host

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
	"sync"
	"syscall"
	"time"

	"golang.org/x/term"
)

// KeyboardHost turns the terminal into a two-row musical keyboard.
// Only instantiated in main.go for interactive use, never in tests.
//
//	a s d f g h j k l ;   white keys from the base octave
//	w e   t y u   o p     the black keys between them
//	z / x                 octave down / up
//	[ / ]                 wavetable position down / up
//	space                 all notes off
//	q or Ctrl-C           quit
type KeyboardHost struct {
	synth        *WaveSynth
	stopCh       chan struct{}
	done         chan struct{}
	stopped      sync.Once
	fd           int
	nonblockSet  bool
	oldTermState *term.State

	baseNote int
	position float64
	held     map[byte]int
}

// keyToSemitone maps the playing keys to semitone offsets above baseNote.
var keyToSemitone = map[byte]int{
	'a': 0, 'w': 1, 's': 2, 'e': 3, 'd': 4,
	'f': 5, 't': 6, 'g': 7, 'y': 8, 'h': 9,
	'u': 10, 'j': 11, 'k': 12, 'o': 13, 'l': 14,
	'p': 15, ';': 16,
}

func NewKeyboardHost(synth *WaveSynth) *KeyboardHost {
	return &KeyboardHost{
		synth:    synth,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		baseNote: 60,
		position: 0,
		held:     map[byte]int{},
	}
}

// Start puts the terminal in raw mode and begins reading keys in a goroutine.
// No key-up events exist on a terminal, so each keypress retriggers its note
// and the previous note on that key is released first. Call Stop to restore
// the terminal.
func (h *KeyboardHost) Start() {
	h.fd = int(os.Stdin.Fd())

	oldState, err := term.MakeRaw(h.fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "keyboard_host: failed to set raw mode: %v\n", err)
		close(h.done)
		return
	}
	h.oldTermState = oldState

	if err := syscall.SetNonblock(h.fd, true); err != nil {
		fmt.Fprintf(os.Stderr, "keyboard_host: failed to set nonblocking stdin: %v\n", err)
		_ = term.Restore(h.fd, h.oldTermState)
		h.oldTermState = nil
		close(h.done)
		return
	}
	h.nonblockSet = true

	go func() {
		defer close(h.done)
		buf := make([]byte, 1)

		for {
			select {
			case <-h.stopCh:
				return
			default:
			}

			n, err := syscall.Read(h.fd, buf)
			if n > 0 {
				if !h.handleKey(buf[0]) {
					return
				}
			}
			if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			if err != nil {
				return
			}
			if n == 0 {
				time.Sleep(5 * time.Millisecond)
			}
		}
	}()
}

// handleKey routes one keypress; returns false when the host should quit.
func (h *KeyboardHost) handleKey(key byte) bool {
	switch key {
	case 'q', 0x03: // Ctrl-C in raw mode
		h.synth.AllNotesOff()
		return false
	case ' ':
		h.synth.AllNotesOff()
		h.held = map[byte]int{}
	case 'z':
		if h.baseNote >= 12 {
			h.baseNote -= 12
		}
		fmt.Fprintf(os.Stderr, "octave: base note %d\r\n", h.baseNote)
	case 'x':
		if h.baseNote <= 108 {
			h.baseNote += 12
		}
		fmt.Fprintf(os.Stderr, "octave: base note %d\r\n", h.baseNote)
	case '[':
		h.position = clampf64(h.position-0.05, 0, 1)
		h.synth.SetWavetablePosition(h.position)
		fmt.Fprintf(os.Stderr, "wavetable position: %.2f\r\n", h.position)
	case ']':
		h.position = clampf64(h.position+0.05, 0, 1)
		h.synth.SetWavetablePosition(h.position)
		fmt.Fprintf(os.Stderr, "wavetable position: %.2f\r\n", h.position)
	default:
		if semi, ok := keyToSemitone[key]; ok {
			if prev, sounding := h.held[key]; sounding {
				h.synth.NoteOff(prev)
			}
			note := h.baseNote + semi
			h.held[key] = note
			h.synth.NoteOn(note, 0.8, -1)
		}
	}
	return true
}

// Stop terminates the key reading goroutine and restores the terminal.
func (h *KeyboardHost) Stop() {
	h.stopped.Do(func() {
		close(h.stopCh)
	})
	<-h.done
	if h.nonblockSet {
		_ = syscall.SetNonblock(h.fd, false)
		h.nonblockSet = false
	}
	if h.oldTermState != nil {
		_ = term.Restore(h.fd, h.oldTermState)
		h.oldTermState = nil
	}
}

// Done reports host exit (quit key pressed or stdin closed).
func (h *KeyboardHost) Done() <-chan struct{} {
	return h.done
}
