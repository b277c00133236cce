package router

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/freemocap/skellycam/internal/config"
	"github.com/freemocap/skellycam/internal/ipc"
	"github.com/freemocap/skellycam/internal/metadata"
	"github.com/freemocap/skellycam/internal/payload"
)

type fakeRecorder struct {
	mu    sync.Mutex
	seen  []uint64
	failN uint64
}

func (f *fakeRecorder) WriteFrame(p payload.MultiFramePayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failN != 0 && p.MultiFrameNumber == f.failN {
		return errors.New("injected write failure")
	}
	f.seen = append(f.seen, p.MultiFrameNumber)
	return nil
}

func testConfigs() config.CameraConfigs {
	return config.NewCameraConfigs([]config.CameraConfig{
		{CameraID: 0, UseThisCamera: true, Width: 8, Height: 4, ColorChannels: 3},
	})
}

func syntheticFrame(id int, frameNumber uint64) payload.CameraFrame {
	img := make([]byte, 8*4*3)
	for i := range img {
		img[i] = byte(i % 256)
	}
	return payload.CameraFrame{
		CameraID: id,
		Image:    img,
		Meta: metadata.FrameMetadata{
			CameraID: uint64(id), FrameNumber: frameNumber,
			PreGrabNs: 1, PostGrabNs: 2, PreRetrieveNs: 2, PostRetrieveNs: 3,
		},
	}
}

func TestRouterForksToRecorderAndPreview(t *testing.T) {
	payloads := make(chan payload.MultiFramePayload, 4)
	iec := ipc.NewChannel(4)
	r := New(payloads, testConfigs(), iec, 0.5)

	rec := &fakeRecorder{}
	r.StartRecording(rec)

	for i := uint64(1); i <= 3; i++ {
		payloads <- payload.MultiFramePayload{MultiFrameNumber: i, Frames: []payload.CameraFrame{syntheticFrame(0, i)}}
	}
	close(payloads)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.seen) != 3 || rec.seen[0] != 1 || rec.seen[2] != 3 {
		t.Fatalf("expected recorder to see frames 1,2,3 in order, got %v", rec.seen)
	}

	select {
	case data := <-iec.Preview():
		var doc ipc.PreviewPayload
		if err := json.Unmarshal(data, &doc); err != nil {
			t.Fatalf("unmarshal preview: %v", err)
		}
		if _, ok := doc.JPEGImages[0]; !ok {
			t.Fatal("expected a JPEG image for camera 0 in preview payload")
		}
	default:
		t.Fatal("expected at least one preview payload to be published")
	}
}

func TestRouterSurfacesRecorderFailureViaOnFatal(t *testing.T) {
	payloads := make(chan payload.MultiFramePayload, 1)
	iec := ipc.NewChannel(4)
	r := New(payloads, testConfigs(), iec, 0.5)

	rec := &fakeRecorder{failN: 1}
	r.StartRecording(rec)

	var fatalErr error
	r.OnFatal(func(err error) { fatalErr = err })

	payloads <- payload.MultiFramePayload{MultiFrameNumber: 1, Frames: []payload.CameraFrame{syntheticFrame(0, 1)}}
	close(payloads)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fatalErr == nil {
		t.Fatal("expected OnFatal to be invoked on recorder write failure")
	}
}

func TestInterFrameRates(t *testing.T) {
	base := time.Now()
	times := []time.Time{base, base.Add(100 * time.Millisecond), base.Add(200 * time.Millisecond)}
	mean, median := interFrameRates(times)
	if mean < 9.9 || mean > 10.1 {
		t.Fatalf("expected ~10fps mean, got %v", mean)
	}
	if median < 9.9 || median > 10.1 {
		t.Fatalf("expected ~10fps median, got %v", median)
	}
}
