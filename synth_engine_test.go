// synth_engine_test.go - WaveSynth engine block rendering tests

/*
KiloSynth - GPU-accelerated polyphonic wavetable synthesizer

(c) 2024 - 2026 Ed Filo
https://github.com/edfilo/kilosynth
License: GPLv3 or later
*/

package main

import (
	"errors"
	"math"
	"testing"
)

func newTestSynth(t *testing.T) *WaveSynth {
	t.Helper()
	s, err := NewWaveSynth(RENDER_BACKEND_CPU, AUDIO_BACKEND_NONE)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Stop)
	return s
}

func blockPeak(out []float32) float32 {
	peak := float32(0)
	for _, s := range out {
		if a := float32(math.Abs(float64(s))); a > peak {
			peak = a
		}
	}
	return peak
}

func TestEngineSilentBeforeStart(t *testing.T) {
	s := newTestSynth(t)
	out := make([]float32, BLOCK_LEN)
	out[0] = 0.5

	if status := s.RenderBlock(out); status != RenderSilent {
		t.Errorf("status %v before Start, want silent", status)
	}
	if out[0] != 0 {
		t.Error("stale output not cleared")
	}
}

func TestEngineSilentWithNoVoices(t *testing.T) {
	s := newTestSynth(t)
	s.Start()
	out := make([]float32, BLOCK_LEN)

	if status := s.RenderBlock(out); status != RenderSilent {
		t.Errorf("status %v with no voices, want silent", status)
	}
	stats := s.Stats()
	if stats.SilentBlocks != 1 || stats.BlocksRendered != 1 {
		t.Errorf("counters: %d silent of %d rendered", stats.SilentBlocks, stats.BlocksRendered)
	}
}

func TestEngineNoteProducesAudio(t *testing.T) {
	s := newTestSynth(t)
	s.Start()
	s.NoteOn(69, 0.8, 0)

	out := make([]float32, BLOCK_LEN)
	if status := s.RenderBlock(out); status != RenderOK {
		t.Fatalf("status %v, want ok", status)
	}
	if blockPeak(out) == 0 {
		t.Fatal("note 69 rendered as silence")
	}
	if s.Stats().ActiveVoices != 1 {
		t.Errorf("active voices %d, want 1", s.Stats().ActiveVoices)
	}
	for i, v := range out {
		if v < MIN_SAMPLE || v > MAX_SAMPLE {
			t.Fatalf("sample %d = %g outside [-1, 1]", i, v)
		}
	}
}

func TestEngineZeroVelocityIsNoteOff(t *testing.T) {
	s := newTestSynth(t)
	s.Start()
	s.SetADSR(0.001, 0.001, 1.0, 0.01)
	s.NoteOn(60, 0.8, 0)

	out := make([]float32, BLOCK_LEN)
	s.RenderBlock(out)

	s.NoteOn(60, 0, 0) // MIDI running-status note-off
	s.RenderBlock(out) // Release begins at this block boundary
	s.RenderBlock(out) // 10 ms release is over well within one more block

	if status := s.RenderBlock(out); status != RenderSilent {
		t.Errorf("status %v after zero-velocity note-on, want silent", status)
	}
	if s.Stats().ActiveVoices != 0 {
		t.Errorf("active voices %d after release", s.Stats().ActiveVoices)
	}
}

func TestEnginePolyphonyBudget(t *testing.T) {
	s := newTestSynth(t)
	s.Start()

	for i := 0; i <= MAX_VOICES; i++ {
		s.NoteOn(30+i, 0.5, 0)
	}
	out := make([]float32, BLOCK_LEN)
	if status := s.RenderBlock(out); status != RenderOK {
		t.Fatalf("status %v, want ok", status)
	}

	stats := s.Stats()
	if stats.ActiveVoices != MAX_VOICES {
		t.Errorf("active voices %d, want %d", stats.ActiveVoices, MAX_VOICES)
	}
	if stats.NotesDropped != 1 {
		t.Errorf("notes dropped %d, want 1", stats.NotesDropped)
	}
}

func TestEngineAllNotesOff(t *testing.T) {
	s := newTestSynth(t)
	s.Start()
	for i := 0; i < 4; i++ {
		s.NoteOn(60+i, 0.8, 0)
	}
	out := make([]float32, BLOCK_LEN)
	s.RenderBlock(out)

	s.AllNotesOff()
	// The panic path clears voices at the next block boundary, bypassing
	// release curves entirely.
	if status := s.RenderBlock(out); status != RenderSilent {
		t.Errorf("status %v after AllNotesOff, want silent", status)
	}
	if blockPeak(out) != 0 {
		t.Error("output not silent after AllNotesOff")
	}
	if s.Stats().ActiveVoices != 0 {
		t.Errorf("active voices %d after AllNotesOff", s.Stats().ActiveVoices)
	}
}

func TestEngineLoadWavetableKeepsLastGood(t *testing.T) {
	s := newTestSynth(t)
	before := s.table.Load()

	good := constFrames(0.1, 0.2, 0.3)
	if err := s.LoadWavetableFrames(good); err != nil {
		t.Fatalf("valid load failed: %v", err)
	}
	loaded := s.table.Load()
	if loaded == before {
		t.Fatal("valid load did not swap the table")
	}

	bad := [][]float32{{0.1, float32(math.NaN())}}
	if err := s.LoadWavetableFrames(bad); err == nil {
		t.Fatal("NaN frames accepted")
	}
	if s.table.Load() != loaded {
		t.Error("failed load replaced the last-good table")
	}
}

func TestEngineUpdateNotePosition(t *testing.T) {
	s := newTestSynth(t)
	s.Start()
	s.SetMorphRate(MAX_MORPH_RATE)
	s.NoteOn(60, 0.8, 0)

	out := make([]float32, BLOCK_LEN)
	s.RenderBlock(out)

	s.UpdateNoteWavetablePosition(60, 1.0)
	s.RenderBlock(out)

	table := s.table.Load()
	v := &s.pool.voices[0]
	if v.targetFrame != table.positionToFrame(1.0) {
		t.Errorf("target frame %g, want %g", v.targetFrame, table.positionToFrame(1.0))
	}
	if v.wavetableFrame == 0 {
		t.Error("morph never started gliding")
	}
}

// timeoutBackend fails every dispatch the way an unresponsive device does.
type timeoutBackend struct{ calls int }

func (b *timeoutBackend) Name() string { return "timeout-test" }
func (b *timeoutBackend) Close()       {}
func (b *timeoutBackend) RenderBlock(req *renderRequest, out []float32) error {
	b.calls++
	return errors.New("render dispatch timed out")
}

// A failing dispatch degrades to silence plus a counter, and repeated
// failures demote the engine to the warm CPU renderer.
func TestEngineTimeoutDegradesAndDemotes(t *testing.T) {
	s := newTestSynth(t)
	s.Start()

	fake := &timeoutBackend{}
	s.backend = fake
	s.usingFallback = false

	s.NoteOn(60, 0.8, 0)
	out := make([]float32, BLOCK_LEN)

	for i := 1; i <= RENDER_TIMEOUT_DEMOTE; i++ {
		out[0] = 0.5
		if status := s.RenderBlock(out); status != RenderTimedOut {
			t.Fatalf("block %d status %v, want timeout", i, status)
		}
		if out[0] != 0 {
			t.Fatalf("block %d output not silenced on timeout", i)
		}
	}
	if s.Stats().RenderTimeouts != RENDER_TIMEOUT_DEMOTE {
		t.Errorf("timeout counter %d, want %d", s.Stats().RenderTimeouts, RENDER_TIMEOUT_DEMOTE)
	}

	// The engine is now on the CPU path and audio comes back.
	if !s.usingFallback {
		t.Fatal("engine did not demote after repeated timeouts")
	}
	if status := s.RenderBlock(out); status != RenderOK {
		t.Fatalf("post-demotion status %v, want ok", status)
	}
	if blockPeak(out) == 0 {
		t.Error("post-demotion render is silent")
	}
	if fake.calls != RENDER_TIMEOUT_DEMOTE {
		t.Errorf("failing backend called %d times, want %d", fake.calls, RENDER_TIMEOUT_DEMOTE)
	}
}

// A single transient failure must not demote.
func TestEngineTimeoutCounterResets(t *testing.T) {
	s := newTestSynth(t)
	s.Start()

	good := s.backend
	fake := &timeoutBackend{}
	s.usingFallback = false
	s.NoteOn(60, 0.8, 0)
	out := make([]float32, BLOCK_LEN)

	// Alternate failure and success so the consecutive-timeout streak resets
	// every other block and never reaches the demotion threshold.
	for i := 0; i < RENDER_TIMEOUT_DEMOTE*3; i++ {
		if i%2 == 0 {
			s.backend = fake
		} else {
			s.backend = good
		}
		s.RenderBlock(out)
	}
	if s.usingFallback {
		t.Fatal("engine demoted despite the failure streak never reaching the threshold")
	}
}

// A block rendered hours into the transport must be sample-identical to the
// same note rendered at the start of it. Voice times reach the renderers
// relative to the block start; absolute transport seconds pushed through
// float32 would leave a held voice rendering as a staircase of repeated
// samples once the resolution drops below a sample period.
func TestEngineRenderStableAtLongUptime(t *testing.T) {
	render := func(transport float64) []float32 {
		s := newTestSynth(t)
		s.Start()
		s.now = transport
		s.NoteOn(69, 1.0, 0)
		out := make([]float32, BLOCK_LEN)
		s.RenderBlock(out)
		s.RenderBlock(out)
		return out
	}

	fresh := render(0)
	late := render(2048)

	for i := range late {
		if late[i] != fresh[i] {
			t.Fatalf("sample %d differs at long uptime: %g vs %g", i, late[i], fresh[i])
		}
	}

	longest, run := 1, 1
	for i := 1; i < len(late); i++ {
		if late[i] == late[i-1] {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 1
		}
	}
	// A 440 Hz wave at 44.1 kHz never repeats a sample more than twice.
	if longest > 2 {
		t.Errorf("%d consecutive identical samples in a held 440 Hz voice", longest)
	}
}

func TestEnginePitchBend(t *testing.T) {
	s := newTestSynth(t)
	s.Start()
	out := make([]float32, BLOCK_LEN)

	s.NoteOn(69, 1.0, 0)
	s.RenderBlock(out)
	if f := s.pool.voices[0].frequency; math.Abs(f-440) > 1e-6 {
		t.Fatalf("unbent frequency %g, want 440", f)
	}

	// A sounding voice follows the bend on the next block.
	s.SetPitchBend(12)
	s.RenderBlock(out)
	if f := s.pool.voices[0].frequency; math.Abs(f-880) > 1e-6 {
		t.Errorf("bent frequency %g, want 880", f)
	}

	// New notes inherit the channel bend, and the bend range clamps.
	s.SetPitchBend(100)
	s.NoteOn(57, 1.0, 0)
	s.RenderBlock(out)
	var bent *Voice
	for i := range s.pool.voices {
		if v := &s.pool.voices[i]; v.active && v.noteNumber == 57 {
			bent = v
		}
	}
	if bent == nil {
		t.Fatal("second note did not allocate")
	}
	want := midiToFrequency(57, MAX_PITCH_BEND)
	if math.Abs(bent.frequency-want) > 1e-6 {
		t.Errorf("clamped bend frequency %g, want %g", bent.frequency, want)
	}
}

func TestEngineTransportTime(t *testing.T) {
	s := newTestSynth(t)
	s.Start()
	out := make([]float32, BLOCK_LEN)
	for i := 0; i < 5; i++ {
		s.RenderBlock(out)
	}
	want := 5 * float64(BLOCK_LEN) / SAMPLE_RATE
	if math.Abs(s.Stats().TransportTime-want) > 1e-9 {
		t.Errorf("transport time %g, want %g", s.Stats().TransportTime, want)
	}
}

func TestEngineFilterStaysBounded(t *testing.T) {
	s := newTestSynth(t)
	s.Start()
	s.SetFilterCutoff(0.1)
	s.SetFilterResonance(1.0)
	for i := 0; i < 8; i++ {
		s.NoteOn(40+i*3, 1.0, 0)
	}

	out := make([]float32, BLOCK_LEN)
	for b := 0; b < 20; b++ {
		s.RenderBlock(out)
		for i, v := range out {
			if v < MIN_SAMPLE || v > MAX_SAMPLE || math.IsNaN(float64(v)) {
				t.Fatalf("block %d sample %d = %g", b, i, v)
			}
		}
	}
}
