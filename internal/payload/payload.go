// Package payload defines the MultiFramePayload data model (spec §3): a
// snapshot of one frame from each enabled camera, tagged with an
// ever-incrementing multi_frame_number. Both internal/camgroup (which
// produces payloads from the driver side) and internal/router (which
// consumes them, in-process or by attaching to another process's SFB
// group) share this type rather than each defining their own.
package payload

import "github.com/freemocap/skellycam/internal/metadata"

// CameraFrame is one camera's contribution to a MultiFramePayload.
type CameraFrame struct {
	CameraID int
	Image    []byte // owned copy, h*w*c bytes
	Meta     metadata.FrameMetadata
}

// MultiFramePayload is the tuple of one frame per enabled camera produced
// by one full cycle of the barrier (spec GLOSSARY). Invariant: contains
// exactly one frame per enabled camera (spec §3).
type MultiFramePayload struct {
	MultiFrameNumber uint64
	Frames           []CameraFrame
}
