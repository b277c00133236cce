package recorder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/freemocap/skellycam/internal/config"
	"github.com/freemocap/skellycam/internal/payload"
)

// cameraTrack pairs one camera's VideoWriter and TimestampSidecar (spec §3
// RecordingSession: "per-camera VideoWriter + per-camera TimestampSidecar").
type cameraTrack struct {
	video   *VideoWriter
	sidecar *TimestampSidecar
}

// RecordingSession is the VRM's per-recording aggregate: a shared
// recording_name and recording_folder, and one cameraTrack per camera
// (spec §3, §4.7).
type RecordingSession struct {
	Name   string
	Folder string

	start  time.Time
	tracks map[int]*cameraTrack
}

// NewRecordingSession creates recording_folder and opens a VideoWriter +
// TimestampSidecar for every enabled camera in configs (spec §4.7 "all writers
// share a common recording_name"). name should already include the
// ISO-8601 + uuid suffix (internal/session.NewRecordingName).
func NewRecordingSession(ctx context.Context, baseDir, name string, configs config.CameraConfigs) (*RecordingSession, error) {
	folder := filepath.Join(baseDir, name)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return nil, fmt.Errorf("recorder: create recording folder: %w", err)
	}

	tracks := make(map[int]*cameraTrack, configs.Len())
	cleanup := func() {
		for _, t := range tracks {
			t.video.Close()
			t.sidecar.Close()
		}
	}

	for _, c := range configs.Enabled() {
		videoPath := filepath.Join(folder, fmt.Sprintf("%s_camera_%d.mp4", name, c.CameraID))
		sidecarPath := filepath.Join(folder, fmt.Sprintf("%s_camera_%d_timestamps.csv", name, c.CameraID))

		vw, err := NewVideoWriter(ctx, videoPath, c.Width, c.Height, c.ColorChannels, c.Framerate, c.WriterFourcc)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("recorder: camera %d: %w", c.CameraID, err)
		}
		ts, err := NewTimestampSidecar(sidecarPath)
		if err != nil {
			vw.Close()
			cleanup()
			return nil, fmt.Errorf("recorder: camera %d: %w", c.CameraID, err)
		}
		tracks[c.CameraID] = &cameraTrack{video: vw, sidecar: ts}
	}

	return &RecordingSession{Name: name, Folder: folder, start: time.Now().UTC(), tracks: tracks}, nil
}

// WriteFrame hands one MultiFramePayload's per-camera frames to their
// writer + sidecar (spec §4.6 step 2: "never drop; back-pressure on this
// path stalls the capture loop by design"). Every frame is written even if
// one camera's write fails, and the first error is returned after all
// writes are attempted, so a single bad frame doesn't silently orphan the
// other cameras' rows for this cycle.
func (s *RecordingSession) WriteFrame(p payload.MultiFramePayload) error {
	var firstErr error
	for _, f := range p.Frames {
		t, ok := s.tracks[f.CameraID]
		if !ok {
			continue
		}
		if err := t.video.WriteFrame(f.Image); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := t.sidecar.WriteRow(f.Meta); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CameraIDs returns the camera IDs participating in this session, for the
// RecordingInfo IEC event (spec §4.7).
func (s *RecordingSession) CameraIDs() []int {
	ids := make([]int, 0, len(s.tracks))
	for id := range s.tracks {
		ids = append(ids, id)
	}
	return ids
}

// FrameCounts returns per-camera (video_frame_count, sidecar_row_count),
// used to assert the spec §8 invariant video_frame_count == sidecar_row_count.
func (s *RecordingSession) FrameCounts() map[int][2]uint64 {
	out := make(map[int][2]uint64, len(s.tracks))
	for id, t := range s.tracks {
		out[id] = [2]uint64{uint64(t.video.FrameCount()), t.sidecar.Rows()}
	}
	return out
}

// Stop flushes and closes every writer and sidecar (spec §4.7
// "stop_recording: every writer is flushed and closed"). Returns the first
// error encountered but always attempts every close.
func (s *RecordingSession) Stop() error {
	var firstErr error
	for _, t := range s.tracks {
		if err := t.video.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := t.sidecar.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
