// Package recorder implements the Video Recorder Manager (spec §4.7):
// per-camera VideoWriter + TimestampSidecar, aggregated into a
// RecordingSession sharing one recording_name and start time.
package recorder

import (
	"context"
	"fmt"
	"io"
	"os/exec"
)

// codecFor maps writer_fourcc (spec §3 CameraConfig.writer_fourcc) onto an
// ffmpeg -c:v argument. Unrecognized fourccs fall back to mpeg4, matching
// ffmpeg's own behavior of a sane default rather than a hard failure.
func codecFor(fourcc string) string {
	switch fourcc {
	case "mp4v", "":
		return "mpeg4"
	case "avc1", "h264":
		return "libx264"
	case "hev1", "hevc":
		return "libx265"
	default:
		return "mpeg4"
	}
}

// VideoWriter feeds raw decoded frames to an ffmpeg child process over its
// stdin pipe, grounded in the teacher's exec.CommandContext-driven ffmpeg
// lifecycle (server/dvr/dvr.go runLoop) — here rawvideo-in instead of
// rtsp-in, because the frames already live in the SFB.
type VideoWriter struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	frames int
}

// NewVideoWriter launches ffmpeg to encode width×height rawvideo (rgb24 or
// grayscale depending on channels) at framerate fps into path, using the
// codec implied by writerFourcc.
func NewVideoWriter(ctx context.Context, path string, width, height, channels int, framerate float64, writerFourcc string) (*VideoWriter, error) {
	pixFmt := "rgb24"
	if channels == 1 {
		pixFmt = "gray"
	}

	args := []string{
		"-f", "rawvideo",
		"-pix_fmt", pixFmt,
		"-video_size", fmt.Sprintf("%dx%d", width, height),
		"-framerate", fmt.Sprintf("%.3f", framerate),
		"-i", "-",
		"-c:v", codecFor(writerFourcc),
		"-pix_fmt", "yuv420p",
		"-y", path,
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("recorder: video writer stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("recorder: video writer start: %w", err)
	}
	return &VideoWriter{cmd: cmd, stdin: stdin}, nil
}

// WriteFrame writes one raw decoded frame's bytes to the encoder. Errors
// here are RecorderIOError (spec §7): fatal to the session.
func (v *VideoWriter) WriteFrame(image []byte) error {
	if _, err := v.stdin.Write(image); err != nil {
		return fmt.Errorf("recorder: video writer: %w", err)
	}
	v.frames++
	return nil
}

// FrameCount returns the number of frames written so far.
func (v *VideoWriter) FrameCount() int { return v.frames }

// Close closes stdin (signals EOF to ffmpeg) and waits for the encoder to
// finish flushing the file to disk.
func (v *VideoWriter) Close() error {
	if err := v.stdin.Close(); err != nil {
		return fmt.Errorf("recorder: video writer close stdin: %w", err)
	}
	if err := v.cmd.Wait(); err != nil {
		return fmt.Errorf("recorder: video writer ffmpeg exit: %w", err)
	}
	return nil
}
