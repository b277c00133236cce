package controller

import (
	"context"
	"testing"
	"time"

	"github.com/freemocap/skellycam/internal/camgroup"
	"github.com/freemocap/skellycam/internal/capture"
	"github.com/freemocap/skellycam/internal/config"
	"github.com/freemocap/skellycam/internal/ipc"
)

// Recording tests are intentionally absent here: StartRecording launches a
// real ffmpeg child process per camera (internal/recorder.VideoWriter), the
// same reason the teacher's own server/dvr package carries no _test.go —
// that path needs a real ffmpeg binary and is exercised manually, not in
// the unit suite.

func fakeFactory(id int, cfg config.CameraConfig) capture.Device {
	return capture.NewFakeDevice(capture.Spec{Width: cfg.Width, Height: cfg.Height})
}

func testConfigs() config.CameraConfigs {
	return config.NewCameraConfigs([]config.CameraConfig{
		{CameraID: 0, UseThisCamera: true, Width: 8, Height: 4, ColorChannels: 3},
		{CameraID: 1, UseThisCamera: true, Width: 8, Height: 4, ColorChannels: 3},
	})
}

func TestConnectThenClose(t *testing.T) {
	shmDir := t.TempDir()
	recDir := t.TempDir()
	iec := ipc.NewChannel(8)
	c := New(shmDir, recDir, camgroup.DeviceFactory(fakeFactory), iec)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Connect(ctx, testConfigs()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// Let a few barrier cycles run before tearing down.
	time.Sleep(50 * time.Millisecond)

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close should be a no-op: %v", err)
	}
}

func TestStartRecordingWithoutConnectFails(t *testing.T) {
	iec := ipc.NewChannel(8)
	c := New(t.TempDir(), t.TempDir(), camgroup.DeviceFactory(fakeFactory), iec)
	if _, err := c.StartRecording(context.Background(), ""); err == nil {
		t.Fatal("expected start_recording to fail with no connected group")
	}
}

func TestDetectAppliesDefaults(t *testing.T) {
	configs := Detect([]int{0, 2})
	if configs.Len() != 2 {
		t.Fatalf("expected 2 configs, got %d", configs.Len())
	}
	c, ok := configs.Get(2)
	if !ok || !c.UseThisCamera || c.ColorChannels != 3 {
		t.Fatalf("expected detected camera 2 to have defaults applied, got %+v (ok=%v)", c, ok)
	}
}
