// Package controller implements the Lifecycle Controller (spec §4.1): a
// single mutex-guarded app-state value wiring together the Camera Group
// Process, the Frame Router, the Video Recorder Manager, and the IPC Event
// Channel (spec §9 "Global mutable state → explicit app-state value").
package controller

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/freemocap/skellycam/internal/camgroup"
	"github.com/freemocap/skellycam/internal/config"
	"github.com/freemocap/skellycam/internal/ipc"
	"github.com/freemocap/skellycam/internal/recorder"
	"github.com/freemocap/skellycam/internal/router"
	"github.com/freemocap/skellycam/internal/session"
)

// closeGrace bounds how long Close waits for the camera group to join
// before the caller should escalate to process termination (spec §4.1
// "escalates to process-kill after a bounded grace period").
const closeGrace = 5 * time.Second

// payloadBuffer sizes the in-process channel between camgroup and router.
const payloadBuffer = 8

// Controller is the explicit app-state value. No ambient singleton backs
// it; callers (cmd/ entrypoints) construct one explicitly, matching the
// teacher's "hub = newHub(...)" explicit-wiring style in main() rather
// than package-level init-time state.
type Controller struct {
	shmDir    string
	recDir    string
	newDevice camgroup.DeviceFactory
	iec       *ipc.Channel

	mu      sync.Mutex
	configs config.CameraConfigs
	group   *camgroup.Group
	rtr     *router.Router
	rtrStop context.CancelFunc
	rtrDone chan struct{}

	recSession *recorder.RecordingSession
	recName    string
}

// New builds a Controller. shmDir is where the SFB + SharedState regions
// are created; recDir is the base directory recording sessions are written
// under (spec §6). newDevice selects the Device collaborator per camera —
// production wiring passes capture.NewFFmpegDevice-backed factories; the
// demo binary and tests pass one backed by capture.NewFakeDevice.
func New(shmDir, recDir string, newDevice camgroup.DeviceFactory, iec *ipc.Channel) *Controller {
	return &Controller{shmDir: shmDir, recDir: recDir, newDevice: newDevice, iec: iec}
}

// Detect produces a CameraId → CameraConfig map for the given candidate
// device indices. Actual USB/UVC device enumeration is out of scope (spec
// §1); the caller supplies the indices it discovered (e.g. from scanning
// /dev/video*), and Detect just applies field defaults (spec §3).
func Detect(deviceIDs []int) config.CameraConfigs {
	cams := make([]config.CameraConfig, len(deviceIDs))
	for i, id := range deviceIDs {
		cams[i] = config.CameraConfig{CameraID: id, UseThisCamera: true}
	}
	return config.NewCameraConfigs(cams)
}

// Connect instantiates a new group if none exists, or applies an update
// plan against the running one (spec §4.1). Returns once cameras are past
// the ready barrier (new group) or the in-place change has been queued onto
// the affected workers, which apply it between frames.
func (c *Controller) Connect(ctx context.Context, configs config.CameraConfigs) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.group == nil {
		return c.connectLocked(ctx, configs)
	}

	plan := config.DiffConfigs(c.configs, configs)
	switch plan.Kind {
	case config.PlanNone:
		c.configs = configs
		return nil
	case config.PlanInPlace:
		if err := c.group.UpdateInPlace(plan); err != nil {
			return fmt.Errorf("controller: update in place: %w", err)
		}
		c.configs = configs
		return nil
	case config.PlanResetAll:
		if err := c.closeLocked(); err != nil {
			return fmt.Errorf("controller: reset_all close: %w", err)
		}
		return c.connectLocked(ctx, configs)
	default:
		return fmt.Errorf("controller: unknown plan kind %v", plan.Kind)
	}
}

func (c *Controller) connectLocked(ctx context.Context, configs config.CameraConfigs) error {
	group, err := camgroup.Connect(ctx, c.shmDir, sessionDirName(), configs, c.newDevice, payloadBuffer)
	if err != nil {
		return fmt.Errorf("controller: connect: %w", err)
	}

	rtr := router.New(group.Payloads(), configs, c.iec, 0)
	rtr.OnFatal(func(err error) {
		log.Printf("controller: fatal recorder error, killing group: %v", err)
		c.group.Close()
	})

	routerCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := rtr.Run(routerCtx); err != nil && err != context.Canceled {
			log.Printf("controller: router exited: %v", err)
		}
	}()

	c.group = group
	c.rtr = rtr
	c.rtrStop = cancel
	c.rtrDone = done
	c.configs = configs
	return nil
}

// sessionDirName names the shared-memory namespace for one connect — not
// to be confused with a recording_name (spec §6); this is the SFB/shared
// region prefix (spec §4.3 "<session>-cam<id>-image").
func sessionDirName() string {
	return fmt.Sprintf("camgroup-%d", time.Now().UnixNano())
}

// Close tears the running group down: stops recording if active, kills the
// group, waits for the router to drain, and releases shared memory (spec
// §4.1 close contract). Idempotent.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Controller) closeLocked() error {
	if c.group == nil {
		return nil
	}
	if c.recSession != nil {
		c.recSession.Stop()
		c.recSession = nil
		c.recName = ""
	}

	closeErr := make(chan error, 1)
	go func() { closeErr <- c.group.Close() }()

	var err error
	select {
	case err = <-closeErr:
	case <-time.After(closeGrace):
		log.Printf("controller: close exceeded %s grace period", closeGrace)
		err = <-closeErr
	}

	if c.rtrStop != nil {
		c.rtrStop()
		<-c.rtrDone
	}

	c.group = nil
	c.rtr = nil
	c.rtrStop = nil
	c.rtrDone = nil
	return err
}

// StartRecording begins a new RecordingSession against the currently
// connected group's configs (spec §4.1, §4.7). name overrides the derived
// recording_name if non-empty.
func (c *Controller) StartRecording(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.group == nil {
		return "", fmt.Errorf("controller: start_recording: no connected group")
	}
	if c.recSession != nil {
		return "", fmt.Errorf("controller: start_recording: already recording %q", c.recName)
	}

	if name == "" {
		name = session.NewRecordingName(time.Now())
	}
	rec, err := recorder.NewRecordingSession(ctx, c.recDir, name, c.configs)
	if err != nil {
		return "", fmt.Errorf("controller: start_recording: %w", err)
	}
	info := session.NewInformation(name, rec.Folder, time.Now(), c.configs)
	if err := info.Write(rec.Folder); err != nil {
		log.Printf("controller: write session_information.json: %v", err)
	}

	c.recSession = rec
	c.recName = name
	c.rtr.StartRecording(rec)
	return name, nil
}

// StopRecording flushes and closes the active recording, publishing
// RecordingInfo on the IEC (spec §4.7).
func (c *Controller) StopRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recSession == nil {
		return nil
	}
	c.rtr.StopRecording()
	rec := c.recSession

	err := rec.Stop()
	c.iec.Publish(ipc.RecordingInfo{
		Type:            ipc.TypeRecordingInfo,
		RecordingName:   c.recName,
		RecordingFolder: rec.Folder,
		CameraIDs:       rec.CameraIDs(),
	})
	c.recSession = nil
	c.recName = ""
	if err != nil {
		return fmt.Errorf("controller: stop_recording: %w", err)
	}
	return nil
}

// Shutdown is Close plus releasing any controller-level resources beyond
// the group itself (spec §4.1). Today that is exactly Close; kept as a
// distinct operation because the control surface (spec §6) names it
// separately from close.
func (c *Controller) Shutdown() error {
	return c.Close()
}
