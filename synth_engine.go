// synth_engine.go - WaveSynth engine: block rendering and the public API

/*
KiloSynth - GPU-accelerated polyphonic wavetable synthesizer

(c) 2024 - 2026 Ed Filo
https://github.com/edfilo/kilosynth
License: GPLv3 or later
*/

package main

import (
	"fmt"
	"math"
	"os"
	"sync/atomic"
)

// WaveSynth is the synthesizer core. Control calls (note events, parameter
// setters, wavetable loads) are safe from any goroutine; RenderBlock runs on
// the host's real-time audio thread and never blocks unboundedly, allocates
// or panics. Anomalies on the render path degrade to silence plus a counter.
type WaveSynth struct {
	// Hot path state, audio thread only
	now            float64 // Engine transport time in seconds
	voiceData      []float32
	eventScratch   []noteEvent
	req            renderRequest
	filterLP       float32
	filterBP       float32
	filterHP       float32
	consecTimeouts int
	usingFallback  bool

	pool     *voicePool
	backend  RenderBackend
	fallback RenderBackend // CPU renderer kept warm for timeout demotion

	// Cross-thread state
	params  *paramStore
	table   atomic.Pointer[Wavetable]
	events  eventRing
	enabled atomic.Bool

	// Diagnostics. The audio thread publishes transport time, the live voice
	// count and the backend name through atomics so Stats can snapshot them
	// from any goroutine without touching hot-path state.
	blocksRendered atomic.Uint64
	silentBlocks   atomic.Uint64
	renderTimeouts atomic.Uint64
	notesDropped   atomic.Uint64
	transportBits  atomic.Uint64 // float64 bits of now
	activeVoices   atomic.Int32
	backendName    atomic.Pointer[string]

	output AudioOutput
}

// SynthStats is a snapshot of the engine's diagnostic counters. Repeated
// RenderTimeouts are the caller-visible degradation signal for a struggling
// compute device.
type SynthStats struct {
	BlocksRendered uint64
	SilentBlocks   uint64
	RenderTimeouts uint64
	NotesDropped   uint64
	EventsDropped  uint64
	ActiveVoices   int
	Backend        string
	TransportTime  float64
}

// NewWaveSynth builds an engine with the requested render and audio backends.
// The CPU renderer is always constructed alongside a GPU backend so a timeout
// demotion swaps to an already-warm path.
func NewWaveSynth(renderKind, audioBackend int) (*WaveSynth, error) {
	s := &WaveSynth{
		pool:         newVoicePool(),
		params:       newParamStore(),
		voiceData:    make([]float32, MAX_VOICES*voiceStride),
		eventScratch: make([]noteEvent, EVENT_RING_SIZE),
	}
	s.table.Store(DefaultWavetable())

	s.backend = newRenderBackend(renderKind, BLOCK_LEN)
	if _, cpu := s.backend.(*softwareRenderer); cpu {
		s.fallback = s.backend
		s.usingFallback = true
	} else {
		s.fallback = newSoftwareRenderer(BLOCK_LEN)
	}
	name := s.backend.Name()
	s.backendName.Store(&name)

	output, err := NewAudioOutput(audioBackend, SAMPLE_RATE, s)
	if err != nil {
		s.backend.Close()
		return nil, err
	}
	s.output = output
	return s, nil
}

// Start enables rendering and opens the audio output.
func (s *WaveSynth) Start() {
	s.enabled.Store(true)
	s.output.Start()
}

// Stop silences the engine and tears down the audio output.
func (s *WaveSynth) Stop() {
	s.enabled.Store(false)
	s.output.Stop()
	s.output.Close()
	s.backend.Close()
	if s.fallback != s.backend {
		s.fallback.Close()
	}
}

// --- Note API (any thread) ---

// NoteOn queues a note start. Velocity and wavetable position are clamped;
// a zero velocity is treated as a note-off per MIDI convention, and a
// negative wavetablePos takes the engine's current wavetable position
// parameter. If the voice pool is exhausted when the event drains, the note
// is dropped silently.
func (s *WaveSynth) NoteOn(note int, velocity, wavetablePos float64) {
	if velocity <= 0 {
		s.NoteOff(note)
		return
	}
	if wavetablePos < 0 {
		wavetablePos = s.params.Load().WavetablePosition
	}
	s.events.push(noteEvent{
		kind:     evNoteOn,
		note:     clampNote(note),
		velocity: clampf64(velocity, 0, 1),
		position: clampf64(wavetablePos, 0, 1),
	})
}

// NoteOff queues the release of every voice holding the note.
func (s *WaveSynth) NoteOff(note int) {
	s.events.push(noteEvent{kind: evNoteOff, note: clampNote(note)})
}

// AllNotesOff is the panic path: every voice is force-cleared at the next
// block boundary, bypassing release curves.
func (s *WaveSynth) AllNotesOff() {
	s.events.push(noteEvent{kind: evAllNotesOff})
}

// UpdateNoteWavetablePosition retargets the morph position of a sounding note.
func (s *WaveSynth) UpdateNoteWavetablePosition(note int, pos float64) {
	s.events.push(noteEvent{
		kind:     evNotePosition,
		note:     clampNote(note),
		position: clampf64(pos, 0, 1),
	})
}

// SetPitchBend applies a channel-wide pitch bend in semitones, clamped to
// +-MAX_PITCH_BEND. It affects sounding voices and subsequent note-ons alike.
func (s *WaveSynth) SetPitchBend(semitones float64) {
	s.events.push(noteEvent{
		kind: evPitchBend,
		bend: clampf64(semitones, -MAX_PITCH_BEND, MAX_PITCH_BEND),
	})
}

// --- Parameter API (any thread; values clamp, calls never fail) ---

func (s *WaveSynth) SetADSR(attack, decay, sustain, release float64) {
	s.params.SetADSR(attack, decay, sustain, release)
}
func (s *WaveSynth) SetMasterVolume(vol float64)      { s.params.SetMasterVolume(vol) }
func (s *WaveSynth) SetFilterCutoff(cutoff float64)   { s.params.SetFilterCutoff(cutoff) }
func (s *WaveSynth) SetFilterResonance(res float64)   { s.params.SetFilterResonance(res) }
func (s *WaveSynth) SetLFORate(rate float64)          { s.params.SetLFORate(rate) }
func (s *WaveSynth) SetLFODepth(depth float64)        { s.params.SetLFODepth(depth) }
func (s *WaveSynth) SetWavetablePosition(pos float64) { s.params.SetWavetablePosition(pos) }
func (s *WaveSynth) SetMorphRate(rate float64)        { s.params.SetMorphRate(rate) }

// LoadWavetableFrames validates externally decoded frames and swaps them in
// atomically. On failure the engine keeps its last-good table and the error
// is returned synchronously; this call is not on the audio hot path.
func (s *WaveSynth) LoadWavetableFrames(frames [][]float32) error {
	wt, err := NewWavetable(frames)
	if err != nil {
		return fmt.Errorf("loading wavetable: %w", err)
	}
	s.table.Store(wt)
	return nil
}

// Stats returns a snapshot of the diagnostic counters.
func (s *WaveSynth) Stats() SynthStats {
	return SynthStats{
		BlocksRendered: s.blocksRendered.Load(),
		SilentBlocks:   s.silentBlocks.Load(),
		RenderTimeouts: s.renderTimeouts.Load(),
		NotesDropped:   s.notesDropped.Load(),
		EventsDropped:  s.events.dropped.Load(),
		ActiveVoices:   int(s.activeVoices.Load()),
		Backend:        *s.backendName.Load(),
		TransportTime:  math.Float64frombits(s.transportBits.Load()),
	}
}

// --- Render path (audio thread only) ---

// RenderBlock fills out with the next len(out) mono samples. It is the host
// audio callback's entry point: it drains pending note events, advances voice
// bookkeeping, dispatches the render backend with a bounded wait, and applies
// the post filter. Whatever happens, out is fully written on return.
func (s *WaveSynth) RenderBlock(out []float32) RenderStatus {
	if len(out) == 0 {
		return RenderOK
	}
	if !s.enabled.Load() {
		clear(out)
		s.silentBlocks.Add(1)
		return RenderSilent
	}

	params := s.params.Load()
	table := s.table.Load()
	blockSeconds := float64(len(out)) / params.SampleRate

	s.drainEvents(params, table)
	s.pool.advance(s.now, blockSeconds, len(out), params)
	active := s.pool.activeCount()
	s.activeVoices.Store(int32(active))

	status := RenderOK
	if active == 0 {
		clear(out)
		s.silentBlocks.Add(1)
		status = RenderSilent
	} else {
		s.packVoices()
		s.req = renderRequest{
			params:     params,
			table:      table,
			voiceData:  s.voiceData,
			voiceCount: s.pool.slots,
		}
		if err := s.backend.RenderBlock(&s.req, out); err != nil {
			clear(out)
			status = RenderTimedOut
			s.renderTimeouts.Add(1)
			s.consecTimeouts++
			fmt.Fprintf(os.Stderr, "kilosynth: render fault (%v), emitting silence\n", err)
			s.maybeDemote()
		} else {
			s.consecTimeouts = 0
		}
	}

	if status == RenderOK {
		s.applyFilter(out, params)
	}
	s.now += blockSeconds
	s.transportBits.Store(math.Float64bits(s.now))
	s.blocksRendered.Add(1)
	return status
}

// drainEvents applies all queued note events at the block boundary.
func (s *WaveSynth) drainEvents(params *SynthParameters, table *Wavetable) {
	n := s.events.drain(s.eventScratch)
	for i := 0; i < n; i++ {
		ev := &s.eventScratch[i]
		switch ev.kind {
		case evNoteOn:
			if s.pool.allocate(ev.note, ev.velocity, ev.position, s.now, params, table) == nil {
				s.notesDropped.Add(1)
			}
		case evNoteOff:
			s.pool.release(ev.note, s.now, params)
		case evAllNotesOff:
			s.pool.reset()
			s.filterLP, s.filterBP, s.filterHP = 0, 0, 0
		case evNotePosition:
			s.pool.setNotePosition(ev.note, ev.position, table)
		case evPitchBend:
			s.pool.setPitchBend(ev.bend)
		}
	}
}

// packVoices copies the pool into the flat device layout. Times go in
// relative to the block start: the float64 subtraction happens here, so the
// narrowing to float32 always sees a small value no matter how long the
// transport has been running.
func (s *WaveSynth) packVoices() {
	for i := 0; i < s.pool.slots; i++ {
		v := &s.pool.voices[i]
		vd := s.voiceData[i*voiceStride : (i+1)*voiceStride]
		if !v.active {
			vd[vsActive] = 0
			continue
		}
		releaseElapsed := float32(-1)
		if v.releaseTime >= 0 {
			releaseElapsed = float32(s.now - v.releaseTime)
		}
		vd[vsActive] = 1
		vd[vsFrequency] = float32(v.frequency)
		vd[vsVelocity] = float32(v.velocity)
		vd[vsHeldTime] = float32(s.now - v.startTime)
		vd[vsReleaseElapsed] = releaseElapsed
		vd[vsReleaseStart] = float32(v.releaseStart)
		vd[vsFrame] = float32(v.wavetableFrame)
		vd[vsPhaseOffset] = float32(v.blockPhase)
		vd[vsLFOOffset] = float32(v.lfoBlockPhase)
	}
}

// maybeDemote swaps to the warm CPU renderer after too many consecutive
// dispatch timeouts. The demotion is permanent for the engine's lifetime; a
// device that misses 100 ms deadlines repeatedly is not coming back.
func (s *WaveSynth) maybeDemote() {
	if s.usingFallback || s.consecTimeouts < RENDER_TIMEOUT_DEMOTE {
		return
	}
	fmt.Fprintf(os.Stderr, "kilosynth: %d consecutive render timeouts, demoting %s -> %s\n",
		s.consecTimeouts, s.backend.Name(), s.fallback.Name())
	old := s.backend
	s.backend = s.fallback
	s.usingFallback = true
	s.consecTimeouts = 0
	name := s.fallback.Name()
	s.backendName.Store(&name)
	go old.Close()
}

// applyFilter runs the post-synthesis state-variable low-pass over the block.
// IIR state is serial, which is why this stage lives on the CPU after the
// parallel kernel rather than inside it. Cutoff at the top of its range
// bypasses the stage entirely.
func (s *WaveSynth) applyFilter(out []float32, p *SynthParameters) {
	if p.FilterCutoff >= MAX_FILTER_CUTOFF {
		return
	}
	cutoff := float32(2 * 3.14159265 * p.FilterCutoff * 20000 / p.SampleRate)
	if cutoff > 1 {
		cutoff = 1
	}
	resonance := float32(p.FilterResonance * MAX_RESONANCE)

	lp, bp := s.filterLP, s.filterBP
	var hp float32
	for i, x := range out {
		lp += cutoff * bp
		hp = (x - lp) - resonance*bp
		bp += cutoff * hp

		lp = clampf32(lp, MIN_SAMPLE, MAX_SAMPLE)
		bp = clampf32(bp, MIN_SAMPLE, MAX_SAMPLE)

		out[i] = lp
	}
	s.filterLP, s.filterBP, s.filterHP = lp, bp, clampf32(hp, MIN_SAMPLE, MAX_SAMPLE)
}
