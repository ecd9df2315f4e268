//go:build !headless

// audio_backend_oto.go - OTO v3 audio output implementation

/*
KiloSynth - GPU-accelerated polyphonic wavetable synthesizer

(c) 2024 - 2026 Ed Filo
https://github.com/edfilo/kilosynth
License: GPLv3 or later
*/

package main

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/oto/v3"
)

type OtoPlayer struct {
	ctx       *oto.Context
	player    *oto.Player
	synth     atomic.Pointer[WaveSynth] // Atomic for lock-free Read()
	sampleBuf []float32                 // Pre-allocated sample buffer
	started   bool
	mutex     sync.Mutex // Only for setup/control operations
}

func NewOtoPlayer(sampleRate int) (*OtoPlayer, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
		BufferSize:   4,
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-ready

	return &OtoPlayer{
		ctx:     ctx,
		started: false,
	}, nil
}

func (op *OtoPlayer) SetupPlayer(synth *WaveSynth) {
	op.mutex.Lock()
	defer op.mutex.Unlock()

	op.synth.Store(synth)
	op.player = op.ctx.NewPlayer(op)
	op.sampleBuf = make([]float32, BLOCK_LEN)
}

// Read is oto's pull callback: it is the real-time audio thread. The engine
// is driven here, one block at a time, never more than BLOCK_LEN samples per
// dispatch.
func (op *OtoPlayer) Read(p []byte) (n int, err error) {
	synth := op.synth.Load()
	if synth == nil {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	numSamples := len(p) / 4

	// Should only grow past the initial size if oto asks for unusually
	// large reads.
	if len(op.sampleBuf) < numSamples {
		op.sampleBuf = make([]float32, numSamples)
	}
	samples := op.sampleBuf[:numSamples]

	for off := 0; off < numSamples; {
		chunk := numSamples - off
		if chunk > BLOCK_LEN {
			chunk = BLOCK_LEN
		}
		synth.RenderBlock(samples[off : off+chunk])
		off += chunk
	}

	copy(p, (*[1 << 30]byte)(unsafe.Pointer(&samples[0]))[:len(p)])
	return len(p), nil
}

func (op *OtoPlayer) Start() {
	op.mutex.Lock()
	defer op.mutex.Unlock()

	if !op.started && op.player != nil {
		op.player.Play()
		op.started = true
	}
}

func (op *OtoPlayer) Stop() {
	op.mutex.Lock()
	defer op.mutex.Unlock()

	if op.started && op.player != nil {
		op.player.Close()
		op.started = false
	}
}

func (op *OtoPlayer) Close() {
	op.Stop()
	op.mutex.Lock()
	defer op.mutex.Unlock()

	if op.player != nil {
		op.player.Close()
		op.player = nil
	}
}

func (op *OtoPlayer) IsStarted() bool {
	op.mutex.Lock()
	defer op.mutex.Unlock()
	return op.started
}
