// Package capture implements the Capture Worker: owns a device handle,
// drives the two-phase grab/retrieve protocol under the Barrier
// Orchestrator, applies rotation, and writes results into the camera's SFB
// buffer (spec §4.4).
//
// Device enumeration itself is out of scope (spec §1); Device is the
// minimal collaborator interface the capture loop needs, grounded in the
// retrieved pack's v4l2-over-ffmpeg idiom
// (Reece-Reklai-learn_go_cam_dashboard/internal/camera/capture.go) split
// cleanly into the spec's grab (raw acquire) / retrieve (decode) halves.
package capture

import (
	"context"
	"image"
)

// Device is one camera's capture collaborator. Grab acquires the next raw
// frame without decoding; Retrieve decodes the last grabbed frame (spec
// GLOSSARY). Implementations: ffmpegDevice (real v4l2 capture via an
// ffmpeg subprocess) and fakeDevice (synthetic frames, used by tests and
// the demo binary).
type Device interface {
	// Open starts the device at the given resolution/fps/fourcc/exposure.
	Open(ctx context.Context) error
	// Grab acquires the next raw frame buffer. Must be safe to retry
	// indefinitely on failure (spec §4.2 edge cases, §7 FrameGrabRetry).
	Grab(ctx context.Context) error
	// Retrieve decodes the most recently grabbed frame.
	Retrieve(ctx context.Context) (image.Image, error)
	// Close releases the device handle.
	Close() error
	// Reconfigure applies an in-place exposure/framerate change (spec §4.5
	// "routed to the CWs via a config-update channel; the CW applies them
	// between frames"). A nil field is left unchanged. Width, height, and
	// capture_fourcc never flow through here — any change to those forces
	// a reset_all plan (spec §4.5) instead of a call to Reconfigure.
	Reconfigure(ctx context.Context, exposure *int, framerate *float64) error
}

// Spec is the parameters a Device is opened with, mirroring the relevant
// CameraConfig fields (spec §3) without importing internal/config, so this
// package stays usable from tests with ad hoc values.
type Spec struct {
	DevicePath    string
	Width         int
	Height        int
	Framerate     float64
	Exposure      int
	CaptureFourcc string
}
