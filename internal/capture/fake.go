package capture

import (
	"context"
	"fmt"
	"image"
	"image/color"
)

// fakeDevice generates synthetic frames in memory, grounded in the
// dashboard's generateTestFrame pattern (a deterministic per-camera color
// pattern), so tests and the demo binary exercise the full barrier/SFB/VRM
// pipeline without any real hardware or ffmpeg process (spec §1 places
// device enumeration and the underlying hardware out of scope).
type fakeDevice struct {
	spec  Spec
	frame int

	retrieves      int
	failAtRetrieve int // 0 disables fault injection
}

// NewFakeDevice builds a Device that never touches real hardware.
func NewFakeDevice(spec Spec) Device {
	return &fakeDevice{spec: spec}
}

// NewFaultyFakeDevice is NewFakeDevice with fault injection: the
// failAtRetrieve'th call to Retrieve (1-indexed, counting warm-up
// retrieves) returns an error instead of a frame, for exercising the
// fatal-retrieve-failure scenario (spec §8: "inject a retrieve error on
// camera 0 at frame 50 — verify BarrierOrchestrator.Kill fires").
func NewFaultyFakeDevice(spec Spec, failAtRetrieve int) Device {
	return &fakeDevice{spec: spec, failAtRetrieve: failAtRetrieve}
}

func (d *fakeDevice) Open(ctx context.Context) error { return nil }

func (d *fakeDevice) Grab(ctx context.Context) error {
	d.frame++
	return nil
}

func (d *fakeDevice) Retrieve(ctx context.Context) (image.Image, error) {
	d.retrieves++
	if d.failAtRetrieve != 0 && d.retrieves == d.failAtRetrieve {
		return nil, fmt.Errorf("capture: fake device: injected retrieve failure at retrieve %d", d.retrieves)
	}

	w, h := d.spec.Width, d.spec.Height
	if w == 0 {
		w = 64
	}
	if h == 0 {
		h = 48
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	shade := uint8(d.frame % 256)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{shade, uint8(x % 256), uint8(y % 256), 255})
		}
	}
	return img, nil
}

func (d *fakeDevice) Close() error { return nil }

// Reconfigure stores the updated exposure/framerate on the synthetic
// device so in-place-update tests can assert it actually took effect,
// mirroring the real ffmpegDevice's field update without needing a
// subprocess restart.
func (d *fakeDevice) Reconfigure(ctx context.Context, exposure *int, framerate *float64) error {
	if exposure != nil {
		d.spec.Exposure = *exposure
	}
	if framerate != nil {
		d.spec.Framerate = *framerate
	}
	return nil
}
