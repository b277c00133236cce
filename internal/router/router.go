// Package router implements the Frame Router (spec §4.6): the read-only
// multi-frame consumer that forks each MultiFramePayload to the recorder
// (never-drop) and a downsampled preview payload (drop-tolerant), and
// publishes CurrentFrameRate on the IPC Event Channel at a bounded cadence.
package router

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/freemocap/skellycam/internal/config"
	"github.com/freemocap/skellycam/internal/ipc"
	"github.com/freemocap/skellycam/internal/payload"
)

// Recorder is the subset of *recorder.RecordingSession the router depends
// on (spec §4.6 step 2: "hand the payload to the VRM"). Kept as an
// interface, mirroring the teacher's preference for a narrow callback
// (Manager.OnStatusChange) over a concrete cross-package type, so router
// doesn't need to know about recording-session bookkeeping.
type Recorder interface {
	WriteFrame(payload.MultiFramePayload) error
}

// rateWindow bounds the rolling inter-frame-interval window used for
// CurrentFrameRate (spec §4.6: "rolling mean/median over the last K
// inter-frame intervals").
const rateWindow = 30

// rateCadence is the minimum interval between CurrentFrameRate publishes
// (spec §4.6: "at a bounded cadence (e.g. ≤10 Hz)").
const rateCadence = 100 * time.Millisecond

// Router is the Frame Router: reads MultiFramePayloads from payloads (fed
// either in-process by internal/camgroup or by an attached cross-process
// source, see AttachDescriptor), forks to the recorder and the preview channel, and
// publishes framerate.
type Router struct {
	payloads     <-chan payload.MultiFramePayload
	configs      config.CameraConfigs
	iec          *ipc.Channel
	previewScale float64

	mu       sync.Mutex
	recorder Recorder
	onFatal  func(error)

	frameTimes []time.Time
	lastRateAt time.Time
}

// New builds a Frame Router. previewScale is the default downsample factor
// applied to every camera frame before JPEG encoding (spec §4.6 "default
// 0.25× scale"); 0 selects the default.
func New(payloads <-chan payload.MultiFramePayload, configs config.CameraConfigs, iec *ipc.Channel, previewScale float64) *Router {
	if previewScale <= 0 {
		previewScale = 0.25
	}
	return &Router{payloads: payloads, configs: configs, iec: iec, previewScale: previewScale}
}

// OnFatal registers a callback invoked when a RecorderIOError occurs (spec
// §7: "set kill, attempt best-effort flush"). The router itself cannot
// reach into the camera group to set its kill flag; the callback lets the
// controller do so. Mirrors the teacher's Manager.OnStatusChange
// registration pattern.
func (r *Router) OnFatal(fn func(error)) { r.onFatal = fn }

// StartRecording attaches rec as the never-drop sink for subsequent
// payloads (spec §4.7 "the first MultiFramePayload seen after
// start_recording is frame 0 of the recording for every camera").
func (r *Router) StartRecording(rec Recorder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorder = rec
}

// StopRecording detaches and returns the current recorder, or nil if none
// was active. The caller is responsible for calling its Stop().
func (r *Router) StopRecording() Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.recorder
	r.recorder = nil
	return rec
}

// Recording reports whether record_frames_flag is currently set.
func (r *Router) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recorder != nil
}

// Run drains payloads until ctx is cancelled or the payload channel
// closes (the camera group closed, or the attached source detached).
func (r *Router) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p, ok := <-r.payloads:
			if !ok {
				return nil
			}
			r.process(ctx, p)
		}
	}
}

func (r *Router) process(ctx context.Context, p payload.MultiFramePayload) {
	r.mu.Lock()
	rec := r.recorder
	r.mu.Unlock()

	if rec != nil {
		if err := rec.WriteFrame(p); err != nil {
			log.Printf("router: recorder write failed, multi_frame_number=%d: %v", p.MultiFrameNumber, err)
			if r.onFatal != nil {
				r.onFatal(err)
			}
		}
	}

	r.publishPreview(p)
	r.publishFrameRate(p)
}

// publishFrameRate maintains the rolling inter-payload interval window and
// publishes CurrentFrameRate no more often than rateCadence.
func (r *Router) publishFrameRate(p payload.MultiFramePayload) {
	now := time.Now()
	r.frameTimes = append(r.frameTimes, now)
	if len(r.frameTimes) > rateWindow {
		r.frameTimes = r.frameTimes[len(r.frameTimes)-rateWindow:]
	}
	if now.Sub(r.lastRateAt) < rateCadence {
		return
	}
	mean, median := interFrameRates(r.frameTimes)
	r.lastRateAt = now
	r.iec.Publish(ipc.CurrentFrameRate{
		Type:       ipc.TypeCurrentFrameRate,
		MeanFPS:    mean,
		MedianFPS:  median,
		WindowSize: len(r.frameTimes) - 1,
		Timestamp:  now.Format(time.RFC3339Nano),
	})
}

// interFrameRates computes mean/median fps from consecutive timestamps.
func interFrameRates(times []time.Time) (mean, median float64) {
	if len(times) < 2 {
		return 0, 0
	}
	intervals := make([]float64, 0, len(times)-1)
	var sum float64
	for i := 1; i < len(times); i++ {
		d := times[i].Sub(times[i-1]).Seconds()
		if d <= 0 {
			continue
		}
		fps := 1 / d
		intervals = append(intervals, fps)
		sum += fps
	}
	if len(intervals) == 0 {
		return 0, 0
	}
	mean = sum / float64(len(intervals))
	sorted := append([]float64(nil), intervals...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		median = sorted[mid]
	}
	return mean, median
}
