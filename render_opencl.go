//go:build !headless

// render_opencl.go - OpenCL compute backend for block synthesis

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
	"time"

	"github.com/jgillich/go-opencl/cl"
)

// The kernel is dispatched with exactly blockLen work items, one per output
// sample. Each work item adds its sub-block offset i/sampleRate to the
// block-relative times and block-start phase in the voice record and
// evaluates envelope, wavetable and LFO from that alone, so no per-sample
// voice state crosses the CPU/GPU boundary and no absolute transport time
// ever reaches float32. The constants 5/3/4 and their normalizations must
// stay identical to synth_envelope.go; the software renderer is the
// reference for both.
const synthKernelSource = `
#define VS_ACTIVE          0
#define VS_FREQUENCY       1
#define VS_VELOCITY        2
#define VS_HELD_TIME       3
#define VS_RELEASE_ELAPSED 4
#define VS_RELEASE_START   5
#define VS_FRAME           6
#define VS_PHASE_OFFSET    7
#define VS_LFO_OFFSET      8
#define VOICE_STRIDE       9

#define TWO_PI 6.283185307179586f

/* exp(-5), exp(-3), exp(-4) and their boundary normalizations */
#define ATTACK_NORM   1.006783633f
#define DECAY_FLOOR   0.049787068f
#define DECAY_NORM    1.052395959f
#define RELEASE_FLOOR 0.018315639f
#define RELEASE_NORM  1.018657360f

/* releaseElapsed < 0 means the note is still held */
float envelope_level(const float velocity, const float held,
                     const float releaseElapsed, const float releaseStart,
                     const float attack, const float decay,
                     const float sustain, const float releaseDur)
{
    if (held < 0.0f) {
        return 0.0f;
    }
    if (releaseElapsed >= 0.0f) {
        if (releaseDur <= 0.0f || releaseElapsed >= releaseDur) {
            return 0.0f;
        }
        return releaseStart * (exp(-4.0f * releaseElapsed / releaseDur) - RELEASE_FLOOR) * RELEASE_NORM;
    }
    if (held < attack) {
        return velocity * (1.0f - exp(-5.0f * held / attack)) * ATTACK_NORM;
    }
    float td = held - attack;
    if (td < decay) {
        float w = (exp(-3.0f * td / decay) - DECAY_FLOOR) * DECAY_NORM;
        return velocity * (sustain + (1.0f - sustain) * w);
    }
    return velocity * sustain;
}

float table_lookup(__global const float* table, const int frameCount,
                   const int frameSize, const float frameFloat,
                   const float phaseUnit)
{
    int f = (int)floor(frameFloat);
    float ffrac = frameFloat - floor(frameFloat);
    int f1 = ((f % frameCount) + frameCount) % frameCount;
    int f2 = (f1 + 1) % frameCount;

    float samplePos = phaseUnit * (float)frameSize;
    int s1 = ((int)samplePos) % frameSize;
    float sfrac = samplePos - floor(samplePos);
    int s2 = (s1 + 1) % frameSize;

    float a = table[f1 * frameSize + s1];
    float b = table[f1 * frameSize + s2];
    float c = table[f2 * frameSize + s1];
    float d = table[f2 * frameSize + s2];

    float top = a + (b - a) * sfrac;
    float bottom = c + (d - c) * sfrac;
    return top + (bottom - top) * ffrac;
}

__kernel void synth_block(
    const int blockLen,
    const float sampleRate,
    const int voiceCount,
    const float masterVolume,
    const float attack,
    const float decay,
    const float sustain,
    const float releaseDur,
    const float lfoRate,
    const float lfoDepth,
    const int frameCount,
    const int frameSize,
    __global const float* voices,
    __global const float* table,
    __global float* out)
{
    int i = get_global_id(0);
    if (i >= blockLen) {
        return;
    }
    float dt = (float)i / sampleRate;
    float mix = 0.0f;

    for (int v = 0; v < voiceCount; v++) {
        __global const float* vd = voices + v * VOICE_STRIDE;
        if (vd[VS_ACTIVE] < 0.5f) {
            continue;
        }
        float held = vd[VS_HELD_TIME] + dt;
        float releaseElapsed = vd[VS_RELEASE_ELAPSED];
        if (releaseElapsed >= 0.0f) {
            releaseElapsed += dt;
        }
        float level = envelope_level(vd[VS_VELOCITY], held,
                                     releaseElapsed, vd[VS_RELEASE_START],
                                     attack, decay, sustain, releaseDur);
        if (level <= 0.0f) {
            continue;
        }

        float phase = vd[VS_PHASE_OFFSET] + vd[VS_FREQUENCY] * dt;
        phase -= floor(phase);
        float s = table_lookup(table, frameCount, frameSize, vd[VS_FRAME], phase);

        if (lfoDepth > 0.0f) {
            float lp = vd[VS_LFO_OFFSET] + lfoRate * dt;
            s *= 1.0f - lfoDepth * (0.5f + 0.5f * sin(TWO_PI * lp));
        }

        mix += s * level;
    }

    out[i] = clamp(mix * masterVolume, -1.0f, 1.0f);
}`

var (
	errRenderTimeout = errors.New("render dispatch timed out")
	errRenderBusy    = errors.New("previous render dispatch still outstanding")
)

type renderJob struct {
	params     SynthParameters
	table      *Wavetable
	voiceCount int
	blockLen   int
}

type renderResult struct {
	err error
}

// openCLRenderer dispatches the synth kernel on a dedicated worker goroutine
// so the audio thread's wait on completion can be bounded: the audio thread
// selects on the result channel with a timer, and a dispatch that misses the
// deadline is abandoned to finish (and be discarded) in the background.
type openCLRenderer struct {
	context *cl.Context
	queue   *cl.CommandQueue
	program *cl.Program
	kernel  *cl.Kernel

	voiceBuf *cl.MemObject
	tableBuf *cl.MemObject
	outBuf   *cl.MemObject

	blockLen     int
	tableLen     int // Table buffer capacity in floats
	uploadedFrom *Wavetable

	deviceName string

	// Voice state and output are staged in renderer-owned buffers so the
	// engine can reuse its arrays immediately even after a timeout.
	voiceStage []float32
	resultBuf  []float32

	jobs    chan renderJob
	results chan renderResult
	timer   *time.Timer
	busy    bool // A dispatch was abandoned and has not reported back yet
	closed  bool
}

// newOpenCLRenderer locates a device (GPU preferred, CPU device accepted),
// compiles the kernel from source and allocates the block-sized buffers.
func newOpenCLRenderer(blockLen int) (*openCLRenderer, error) {
	platforms, err := cl.GetPlatforms()
	if err != nil {
		msg := "querying OpenCL platforms"
		if strings.Contains(err.Error(), "-1001") {
			msg += ": no ICD loader reported any platforms"
		}
		return nil, fmt.Errorf("%s: %w", msg, err)
	}
	if len(platforms) == 0 {
		return nil, errors.New("no OpenCL platforms available")
	}

	var device *cl.Device
	for _, p := range platforms {
		devices, derr := p.GetDevices(cl.DeviceTypeGPU)
		if derr != nil && derr != cl.ErrDeviceNotFound {
			continue
		}
		if len(devices) > 0 {
			device = devices[0]
			break
		}
	}
	if device == nil {
		for _, p := range platforms {
			devices, derr := p.GetDevices(cl.DeviceTypeCPU)
			if derr != nil && derr != cl.ErrDeviceNotFound {
				continue
			}
			if len(devices) > 0 {
				device = devices[0]
				break
			}
		}
	}
	if device == nil {
		return nil, errors.New("no suitable OpenCL devices found")
	}

	context, err := cl.CreateContext([]*cl.Device{device})
	if err != nil {
		return nil, fmt.Errorf("creating OpenCL context: %w", err)
	}
	queue, err := context.CreateCommandQueue(device, 0)
	if err != nil {
		context.Release()
		return nil, fmt.Errorf("creating OpenCL command queue: %w", err)
	}
	program, err := context.CreateProgramWithSource([]string{synthKernelSource})
	if err != nil {
		queue.Release()
		context.Release()
		return nil, fmt.Errorf("creating OpenCL program: %w", err)
	}
	if err := program.BuildProgram([]*cl.Device{device}, ""); err != nil {
		program.Release()
		queue.Release()
		context.Release()
		if buildErr, ok := err.(cl.BuildError); ok {
			return nil, fmt.Errorf("building OpenCL program: %s", string(buildErr))
		}
		return nil, fmt.Errorf("building OpenCL program: %w", err)
	}
	kernel, err := program.CreateKernel("synth_block")
	if err != nil {
		program.Release()
		queue.Release()
		context.Release()
		return nil, fmt.Errorf("creating synth kernel: %w", err)
	}

	voiceBuf, err := context.CreateEmptyBuffer(cl.MemReadOnly, MAX_VOICES*voiceStride*4)
	if err != nil {
		kernel.Release()
		program.Release()
		queue.Release()
		context.Release()
		return nil, fmt.Errorf("allocating voice buffer: %w", err)
	}
	outBuf, err := context.CreateEmptyBuffer(cl.MemWriteOnly, blockLen*4)
	if err != nil {
		voiceBuf.Release()
		kernel.Release()
		program.Release()
		queue.Release()
		context.Release()
		return nil, fmt.Errorf("allocating output buffer: %w", err)
	}

	r := &openCLRenderer{
		context:    context,
		queue:      queue,
		program:    program,
		kernel:     kernel,
		voiceBuf:   voiceBuf,
		outBuf:     outBuf,
		blockLen:   blockLen,
		deviceName: device.Name(),
		voiceStage: make([]float32, MAX_VOICES*voiceStride),
		resultBuf:  make([]float32, blockLen),
		jobs:       make(chan renderJob, 1),
		results:    make(chan renderResult, 1),
		timer:      time.NewTimer(RENDER_WAIT_TIMEOUT),
	}
	if !r.timer.Stop() {
		<-r.timer.C
	}
	go r.worker()
	fmt.Printf("kilosynth: OpenCL render device: %s\n", r.deviceName)
	return r, nil
}

func (r *openCLRenderer) Name() string { return "opencl:" + r.deviceName }

func (r *openCLRenderer) RenderBlock(req *renderRequest, out []float32) error {
	if r.busy {
		// A previously abandoned dispatch may have finished by now.
		select {
		case <-r.results:
			r.busy = false
		default:
			return errRenderBusy
		}
	}
	if len(out) > r.blockLen {
		return fmt.Errorf("block of %d exceeds dispatch capacity %d", len(out), r.blockLen)
	}

	// Stage voice state so the engine's buffer is free to be rewritten even
	// if this dispatch is abandoned.
	n := req.voiceCount * voiceStride
	copy(r.voiceStage[:n], req.voiceData[:n])

	r.jobs <- renderJob{
		params:     *req.params,
		table:      req.table,
		voiceCount: req.voiceCount,
		blockLen:   len(out),
	}

	r.timer.Reset(RENDER_WAIT_TIMEOUT)
	select {
	case res := <-r.results:
		if !r.timer.Stop() {
			select {
			case <-r.timer.C:
			default:
			}
		}
		if res.err != nil {
			return res.err
		}
		copy(out, r.resultBuf[:len(out)])
		return nil
	case <-r.timer.C:
		r.busy = true
		return errRenderTimeout
	}
}

func (r *openCLRenderer) worker() {
	for job := range r.jobs {
		r.results <- renderResult{err: r.dispatch(&job)}
	}
}

// dispatch runs entirely on the worker goroutine and owns the command queue.
func (r *openCLRenderer) dispatch(job *renderJob) error {
	if err := r.ensureTable(job.table); err != nil {
		return err
	}

	if job.voiceCount > 0 {
		n := job.voiceCount * voiceStride
		if _, err := r.queue.EnqueueWriteBufferFloat32(r.voiceBuf, false, 0, r.voiceStage[:n], nil); err != nil {
			return fmt.Errorf("uploading voice state: %w", err)
		}
	}

	if err := r.kernel.SetArgs(
		int32(job.blockLen),
		float32(job.params.SampleRate),
		int32(job.voiceCount),
		float32(job.params.MasterVolume),
		float32(job.params.AttackTime),
		float32(job.params.DecayTime),
		float32(job.params.SustainLevel),
		float32(job.params.ReleaseTime),
		float32(job.params.LFORate),
		float32(job.params.LFODepth),
		int32(job.table.FrameCount()),
		int32(job.table.FrameSize()),
		r.voiceBuf,
		r.tableBuf,
		r.outBuf,
	); err != nil {
		return fmt.Errorf("setting kernel args: %w", err)
	}

	// Exactly one work item per output sample; the kernel guards i < blockLen
	// for devices that round the global size up.
	if _, err := r.queue.EnqueueNDRangeKernel(r.kernel, nil, []int{job.blockLen}, nil, nil); err != nil {
		return fmt.Errorf("dispatching synth kernel: %w", err)
	}
	if _, err := r.queue.EnqueueReadBufferFloat32(r.outBuf, true, 0, r.resultBuf[:job.blockLen], nil); err != nil {
		return fmt.Errorf("reading back block: %w", err)
	}
	return nil
}

// ensureTable uploads the wavetable when the engine has swapped in a new one.
// Tables are immutable, so pointer identity is enough to detect a change.
func (r *openCLRenderer) ensureTable(table *Wavetable) error {
	if table == r.uploadedFrom {
		return nil
	}
	data := table.Data()
	if r.tableBuf == nil || len(data) > r.tableLen {
		if r.tableBuf != nil {
			r.tableBuf.Release()
			r.tableBuf = nil
		}
		buf, err := r.context.CreateEmptyBuffer(cl.MemReadOnly, len(data)*4)
		if err != nil {
			return fmt.Errorf("allocating wavetable buffer: %w", err)
		}
		r.tableBuf = buf
		r.tableLen = len(data)
	}
	if _, err := r.queue.EnqueueWriteBufferFloat32(r.tableBuf, true, 0, data, nil); err != nil {
		return fmt.Errorf("uploading wavetable: %w", err)
	}
	r.uploadedFrom = table
	return nil
}

func (r *openCLRenderer) Close() {
	if r.closed {
		return
	}
	r.closed = true
	close(r.jobs)
	if r.busy {
		// Let an abandoned dispatch finish before tearing down its buffers.
		<-r.results
		r.busy = false
	}
	if r.tableBuf != nil {
		r.tableBuf.Release()
	}
	r.outBuf.Release()
	r.voiceBuf.Release()
	r.kernel.Release()
	r.program.Release()
	r.queue.Release()
	r.context.Release()
}
