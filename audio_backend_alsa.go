//go:build linux && !headless

// audio_backend_alsa.go - Direct ALSA audio output implementation

/*
KiloSynth - GPU-accelerated polyphonic wavetable synthesizer

(c) 2024 - 2026 Ed Filo
https://github.com/edfilo/kilosynth
License: GPLv3 or later
*/

package main

/*
#cgo LDFLAGS: -lasound
#include <alsa/asoundlib.h>
#include <stdlib.h>

static snd_pcm_t* openPCM(const char* device, int* err) {
    snd_pcm_t* handle;
    *err = snd_pcm_open(&handle, device, SND_PCM_STREAM_PLAYBACK, 0);
    return handle;
}

static int setupPCM(snd_pcm_t* handle, unsigned int rate) {
    snd_pcm_hw_params_t* params;
    int err;

    snd_pcm_hw_params_alloca(&params);
    err = snd_pcm_hw_params_any(handle, params);
    if (err < 0) return err;

    err = snd_pcm_hw_params_set_access(handle, params, SND_PCM_ACCESS_RW_INTERLEAVED);
    if (err < 0) return err;

    err = snd_pcm_hw_params_set_format(handle, params, SND_PCM_FORMAT_FLOAT);
    if (err < 0) return err;

    err = snd_pcm_hw_params_set_channels(handle, params, 1);
    if (err < 0) return err;

    err = snd_pcm_hw_params_set_rate(handle, params, rate, 0);
    if (err < 0) return err;

    err = snd_pcm_hw_params(handle, params);
    if (err < 0) return err;

    return snd_pcm_prepare(handle);
}

static int writePCM(snd_pcm_t* handle, float* buffer, int frames) {
    return snd_pcm_writei(handle, buffer, frames);
}

static void closePCM(snd_pcm_t* handle) {
    if (handle != NULL) {
        snd_pcm_drain(handle);
        snd_pcm_close(handle);
    }
}
*/
import "C"
import (
	"fmt"
	"sync"
	"unsafe"
)

// ALSAPlayer pushes rendered blocks straight into the PCM device from its
// own goroutine. snd_pcm_writei blocks until the device can take the frames,
// which paces the render loop at the hardware rate.
type ALSAPlayer struct {
	handle  *C.snd_pcm_t
	synth   *WaveSynth
	samples []float32
	playing bool
	started bool
	mutex   sync.Mutex
	done    chan struct{}
}

func NewALSAPlayer(sampleRate int, synth *WaveSynth) (*ALSAPlayer, error) {
	var errCode C.int
	cdev := C.CString("default")
	defer C.free(unsafe.Pointer(cdev))
	handle := C.openPCM(cdev, &errCode)
	if errCode < 0 {
		return nil, fmt.Errorf("failed to open PCM device: %s", C.GoString(C.snd_strerror(errCode)))
	}

	if errCode = C.setupPCM(handle, C.uint(sampleRate)); errCode < 0 {
		C.closePCM(handle)
		return nil, fmt.Errorf("failed to setup PCM: %s", C.GoString(C.snd_strerror(errCode)))
	}

	return &ALSAPlayer{
		handle:  handle,
		synth:   synth,
		samples: make([]float32, BLOCK_LEN),
	}, nil
}

func (ap *ALSAPlayer) IsStarted() bool {
	ap.mutex.Lock()
	defer ap.mutex.Unlock()
	return ap.started
}

func (ap *ALSAPlayer) playLoop(done chan struct{}) {
	for {
		ap.mutex.Lock()
		if !ap.playing || ap.handle == nil {
			ap.mutex.Unlock()
			close(done)
			return
		}
		ap.synth.RenderBlock(ap.samples)
		frames := C.writePCM(ap.handle, (*C.float)(unsafe.Pointer(&ap.samples[0])), C.int(len(ap.samples)))
		if frames == -C.EPIPE {
			// Underrun; recover and retry the same block once.
			C.snd_pcm_prepare(ap.handle)
			frames = C.writePCM(ap.handle, (*C.float)(unsafe.Pointer(&ap.samples[0])), C.int(len(ap.samples)))
		}
		ap.mutex.Unlock()
		if frames < 0 {
			fmt.Printf("ALSA write failed: %s\n", C.GoString(C.snd_strerror(C.int(frames))))
			close(done)
			return
		}
	}
}

func (ap *ALSAPlayer) Start() {
	ap.mutex.Lock()
	defer ap.mutex.Unlock()

	if !ap.started {
		ap.started = true
		ap.playing = true
		ap.done = make(chan struct{})
		go ap.playLoop(ap.done)
	}
}

func (ap *ALSAPlayer) Stop() {
	ap.mutex.Lock()
	done := ap.done
	if ap.playing {
		ap.playing = false
		ap.started = false
	}
	ap.mutex.Unlock()
	if done != nil {
		<-done
	}
}

func (ap *ALSAPlayer) Close() {
	ap.Stop()
	ap.mutex.Lock()
	defer ap.mutex.Unlock()

	if ap.handle != nil {
		C.closePCM(ap.handle)
		ap.handle = nil
	}
}
