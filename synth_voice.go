// synth_voice.go - Voice pool, allocation and note-event queueing

/*
KiloSynth - GPU-accelerated polyphonic wavetable synthesizer

(c) 2024 - 2026 Ed Filo
https://github.com/edfilo/kilosynth
License: GPLv3 or later
*/

package main

import "sync/atomic"

// Voice is one slot in the fixed polyphony pool. Inactive slots carry no
// meaning; an active slot's envelope state is always derivable from
// (startTime, releaseTime, now) plus the published parameters.
type Voice struct {
	// Hot fields read every block by the render bookkeeping
	phaseAccumulator uint64 // Q32.32, wraps; fixes the note's start phase
	phaseDelta       uint64 // Q32.32 per-sample increment at current pitch
	lfoPhaseAccum    uint64 // Independent Q32.32 accumulator for the LFO
	lfoPhaseDelta    uint64
	frequency        float64 // Hz, derived from noteNumber+pitchBend
	blockPhase       float64 // Unit phase at block start, read from the accumulator
	lfoBlockPhase    float64
	startTime        float64 // Engine time at note-on
	releaseTime      float64 // Engine time at note-off; -1 while held
	releaseStart     float64 // Envelope level captured at note-off

	// Control fields written at note-on / parameter updates
	velocity       float64 // (0, 1]
	pitchBend      float64 // Semitones, clamped +-12
	wavetableFrame float64 // Current fractional frame index
	targetFrame    float64 // Frame the voice glides toward at MorphRate
	noteNumber     int
	envelopePhase  EnvelopePhase
	active         bool
}

func (v *Voice) held() bool { return v.releaseTime < 0 }

// voicePool owns MAX_VOICES slots. It is mutated only on the audio thread
// (after event drain), so it needs no locking of its own.
type voicePool struct {
	voices [MAX_VOICES]Voice
	slots  int     // Live polyphony budget; the pool array stays full-size
	bend   float64 // Channel-wide pitch bend in semitones, applied to every voice
}

func newVoicePool() *voicePool {
	return &voicePool{slots: MAX_VOICES}
}

// allocate claims the first free slot for a note. It fails silently on pool
// exhaustion: the note is dropped, not queued, and a counter records it.
// phaseDelta is computed here so the first rendered block is already in tune.
func (p *voicePool) allocate(note int, velocity, wavetablePos, now float64, params *SynthParameters, table *Wavetable) *Voice {
	for i := 0; i < p.slots; i++ {
		v := &p.voices[i]
		if v.active {
			continue
		}
		freq := midiToFrequency(note, p.bend)
		frame := table.positionToFrame(wavetablePos)
		startAcc := slotPhaseOffset(i, p.slots)
		*v = Voice{
			phaseAccumulator: startAcc,
			phaseDelta:       frequencyToPhaseDelta(freq, params.SampleRate),
			lfoPhaseAccum:    startAcc,
			lfoPhaseDelta:    frequencyToPhaseDelta(params.LFORate, params.SampleRate),
			frequency:        freq,
			blockPhase:       phaseAccumulatorToUnitPhase(startAcc),
			lfoBlockPhase:    phaseAccumulatorToUnitPhase(startAcc),
			startTime:        now,
			releaseTime:      -1,
			velocity:         velocity,
			pitchBend:        p.bend,
			wavetableFrame:   frame,
			targetFrame:      frame,
			noteNumber:       note,
			envelopePhase:    EnvAttack,
			active:           true,
		}
		return v
	}
	return nil
}

// release moves every held voice playing note into the release stage,
// capturing the current envelope level as the release curve's starting point.
// The voice keeps sounding; only the envelope reaching zero frees the slot.
func (p *voicePool) release(note int, now float64, params *SynthParameters) {
	for i := 0; i < p.slots; i++ {
		v := &p.voices[i]
		if !v.active || !v.held() || v.noteNumber != note {
			continue
		}
		v.releaseStart = heldLevel(v.velocity, now-v.startTime, params)
		v.releaseTime = now
		v.envelopePhase = EnvRelease
	}
}

// setNotePosition retargets the wavetable morph for every voice playing note.
func (p *voicePool) setNotePosition(note int, pos float64, table *Wavetable) {
	for i := 0; i < p.slots; i++ {
		v := &p.voices[i]
		if v.active && v.noteNumber == note {
			v.targetFrame = table.positionToFrame(pos)
		}
	}
}

// setPitchBend applies a channel-wide bend in semitones. Sounding voices pick
// it up on the next advance, which recomputes their phase deltas; voices
// allocated afterwards inherit it at note-on.
func (p *voicePool) setPitchBend(semitones float64) {
	p.bend = semitones
	for i := 0; i < p.slots; i++ {
		if p.voices[i].active {
			p.voices[i].pitchBend = semitones
		}
	}
}

// reset force-clears every slot immediately, bypassing release curves.
// This is the panic path behind AllNotesOff.
func (p *voicePool) reset() {
	for i := range p.voices {
		p.voices[i] = Voice{}
	}
}

// activeCount reports how many slots are sounding.
func (p *voicePool) activeCount() int {
	n := 0
	for i := 0; i < p.slots; i++ {
		if p.voices[i].active {
			n++
		}
	}
	return n
}

// advance performs the per-block CPU bookkeeping for every active voice:
// expire completed releases, refresh the elapsed-time envelope stage, glide
// the wavetable frame toward its target, recompute phase deltas from current
// pitch, and step both fixed-point accumulators by a whole block. The
// accumulator step is a single multiply-add, so advancing N samples at once
// is bit-identical to N single steps. The unit phase at the block start is
// captured before the step; it is what packVoices hands to the renderers.
func (p *voicePool) advance(now, blockSeconds float64, blockLen int, params *SynthParameters) {
	for i := 0; i < p.slots; i++ {
		v := &p.voices[i]
		if !v.active {
			continue
		}
		if !v.held() && now-v.releaseTime >= params.ReleaseTime {
			v.active = false
			continue
		}
		if v.held() {
			v.envelopePhase = heldPhaseAt(now-v.startTime, params)
		}

		if v.wavetableFrame != v.targetFrame {
			step := params.MorphRate * blockSeconds
			diff := v.targetFrame - v.wavetableFrame
			if diff > step {
				v.wavetableFrame += step
			} else if diff < -step {
				v.wavetableFrame -= step
			} else {
				v.wavetableFrame = v.targetFrame
			}
		}

		v.frequency = midiToFrequency(v.noteNumber, v.pitchBend)
		v.phaseDelta = frequencyToPhaseDelta(v.frequency, params.SampleRate)
		v.lfoPhaseDelta = frequencyToPhaseDelta(params.LFORate, params.SampleRate)
		v.blockPhase = phaseAccumulatorToUnitPhase(v.phaseAccumulator)
		v.lfoBlockPhase = phaseAccumulatorToUnitPhase(v.lfoPhaseAccum)
		v.phaseAccumulator += v.phaseDelta * uint64(blockLen)
		v.lfoPhaseAccum += v.lfoPhaseDelta * uint64(blockLen)
	}
}

// Note events cross from arbitrary caller threads to the audio thread through
// a fixed-capacity ring guarded by a spin flag. The critical sections are a
// handful of stores, which keeps the lock audio-thread safe; a full ring
// drops the event, mirroring the pool-exhaustion policy.

type noteEventKind uint8

const (
	evNoteOn noteEventKind = iota
	evNoteOff
	evAllNotesOff
	evNotePosition
	evPitchBend
)

type noteEvent struct {
	kind     noteEventKind
	note     int
	velocity float64
	position float64
	bend     float64
}

type eventRing struct {
	events  [EVENT_RING_SIZE]noteEvent
	head    int // Next slot to read (consumer side)
	tail    int // Next slot to write (producer side)
	count   int
	lock    atomic.Uint32
	dropped atomic.Uint64
}

func (r *eventRing) acquire() {
	for !r.lock.CompareAndSwap(0, 1) {
	}
}

func (r *eventRing) releaseLock() {
	r.lock.Store(0)
}

// push enqueues an event from any thread. Returns false if the ring was full.
func (r *eventRing) push(ev noteEvent) bool {
	r.acquire()
	if r.count == EVENT_RING_SIZE {
		r.releaseLock()
		r.dropped.Add(1)
		return false
	}
	r.events[r.tail] = ev
	r.tail = (r.tail + 1) % EVENT_RING_SIZE
	r.count++
	r.releaseLock()
	return true
}

// drain pops all pending events into dst (audio thread only) and returns how
// many were copied. dst must hold EVENT_RING_SIZE entries.
func (r *eventRing) drain(dst []noteEvent) int {
	r.acquire()
	n := 0
	for r.count > 0 && n < len(dst) {
		dst[n] = r.events[r.head]
		r.head = (r.head + 1) % EVENT_RING_SIZE
		r.count--
		n++
	}
	r.releaseLock()
	return n
}
