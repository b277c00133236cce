package capture

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log"
	"os/exec"
)

// ffmpegDevice captures from a V4L2 device through an `ffmpeg` subprocess
// emitting an MJPEG stream on stdout, grounded in the teacher pack's ffmpeg
// subprocess idiom (server/dvr/dvr.go's exec.CommandContext-driven
// recording) and Reece-Reklai-learn_go_cam_dashboard's
// `-f v4l2 -input_format mjpeg ... -f image2pipe -vcodec mjpeg -` capture
// command line. Grab scans for the next SOI/EOI-delimited JPEG (the "raw
// acquire, no decode" half); Retrieve decodes the bytes Grab last found.
type ffmpegDevice struct {
	spec Spec

	cmd    *exec.Cmd
	stdout *bufio.Reader

	pending []byte // raw JPEG bytes found by the last Grab, awaiting Retrieve
}

// NewFFmpegDevice builds a Device that captures from spec.DevicePath via
// ffmpeg. Nothing is started until Open is called.
func NewFFmpegDevice(spec Spec) Device {
	return &ffmpegDevice{spec: spec}
}

func (d *ffmpegDevice) Open(ctx context.Context) error {
	videoSize := fmt.Sprintf("%dx%d", d.spec.Width, d.spec.Height)
	fps := d.spec.Framerate
	if fps <= 0 {
		fps = 30
	}
	inputFormat := "mjpeg"
	if d.spec.CaptureFourcc != "" && d.spec.CaptureFourcc != "MJPG" {
		inputFormat = "yuyv422"
	}

	args := []string{
		"-f", "v4l2",
		"-input_format", inputFormat,
		"-video_size", videoSize,
		"-framerate", fmt.Sprintf("%g", fps),
		"-i", d.spec.DevicePath,
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"-",
	}
	d.cmd = exec.CommandContext(ctx, "ffmpeg", args...)
	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("capture: stdout pipe: %w", err)
	}
	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("capture: start ffmpeg: %w", err)
	}
	d.stdout = bufio.NewReaderSize(stdout, 256*1024)

	if d.spec.Exposure != 0 {
		if err := applyExposure(d.spec.DevicePath, d.spec.Exposure); err != nil {
			log.Printf("capture: %s: apply exposure %d: %v", d.spec.DevicePath, d.spec.Exposure, err)
		}
	}
	return nil
}

// applyExposure pushes a manual exposure value straight to the v4l2
// device node via the v4l2-ctl binary, grounded in the retrieved pack's
// own use of v4l2-ctl for device control
// (Reece-Reklai-learn_go_cam_dashboard/internal/camera/device.go). Unlike
// framerate, a v4l2 control can be changed live without restarting the
// ffmpeg capture process.
func applyExposure(devicePath string, exposure int) error {
	cmd := exec.Command("v4l2-ctl", "-d", devicePath,
		"--set-ctrl=auto_exposure=1",
		fmt.Sprintf("--set-ctrl=exposure_time_absolute=%d", exposure))
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("v4l2-ctl: %w: %s", err, out)
	}
	return nil
}

// Reconfigure applies an in-place exposure/framerate change (spec §4.5).
// Exposure is pushed live via v4l2-ctl with no capture interruption.
// Framerate is baked into the ffmpeg child's -framerate argument at start,
// so applying a new value means restarting the capture process in place.
func (d *ffmpegDevice) Reconfigure(ctx context.Context, exposure *int, framerate *float64) error {
	if exposure != nil {
		d.spec.Exposure = *exposure
		if err := applyExposure(d.spec.DevicePath, *exposure); err != nil {
			return fmt.Errorf("capture: reconfigure exposure: %w", err)
		}
	}
	if framerate != nil && *framerate != d.spec.Framerate {
		d.spec.Framerate = *framerate
		if err := d.Close(); err != nil {
			return fmt.Errorf("capture: reconfigure framerate: stop: %w", err)
		}
		if err := d.Open(ctx); err != nil {
			return fmt.Errorf("capture: reconfigure framerate: restart: %w", err)
		}
	}
	return nil
}

// Grab scans the MJPEG stream for the next complete SOI(0xFFD8)/EOI(0xFFD9)
// delimited frame and stores the raw bytes for the following Retrieve —
// the same marker-scanning technique as server/dvr/dvr.go's splitJPEGs and
// the dashboard's readMJPEGFrameRaw.
func (d *ffmpegDevice) Grab(ctx context.Context) error {
	var frame []byte
	inFrame := false

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b, err := d.stdout.ReadByte()
		if err != nil {
			return fmt.Errorf("capture: read mjpeg stream: %w", err)
		}
		if !inFrame {
			if b == 0xFF {
				next, err := d.stdout.ReadByte()
				if err != nil {
					return fmt.Errorf("capture: read mjpeg stream: %w", err)
				}
				if next == 0xD8 {
					frame = []byte{0xFF, 0xD8}
					inFrame = true
				}
			}
			continue
		}
		frame = append(frame, b)
		if len(frame) >= 4 && frame[len(frame)-2] == 0xFF && frame[len(frame)-1] == 0xD9 {
			d.pending = frame
			return nil
		}
	}
}

// Retrieve decodes the JPEG bytes found by the last Grab.
func (d *ffmpegDevice) Retrieve(ctx context.Context) (image.Image, error) {
	if d.pending == nil {
		return nil, fmt.Errorf("capture: retrieve called before a successful grab")
	}
	img, err := jpeg.Decode(bytes.NewReader(d.pending))
	d.pending = nil
	if err != nil {
		return nil, fmt.Errorf("capture: jpeg decode: %w", err)
	}
	return img, nil
}

func (d *ffmpegDevice) Close() error {
	if d.cmd == nil || d.cmd.Process == nil {
		return nil
	}
	_ = d.cmd.Process.Kill()
	_ = d.cmd.Wait()
	return nil
}
