// Command camera-group is the Camera Group Process (spec §4.1, AMBIENT-1):
// loads CameraConfigs, runs N Capture Workers and the Barrier Orchestrator
// driver loop, and writes a CameraGroupSharedMemoryDTO descriptor so a
// Frame Router running in another process can attach.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/freemocap/skellycam/internal/camgroup"
	"github.com/freemocap/skellycam/internal/capture"
	"github.com/freemocap/skellycam/internal/config"
	"github.com/freemocap/skellycam/internal/sfb"
)

func main() {
	defaultConfig := flag.String("config", "config.default.yaml", "baseline camera config YAML")
	overrideConfig := flag.String("override", "config.yaml", "override camera config YAML (optional)")
	shmDir := flag.String("shm-dir", "/dev/shm", "directory for shared-memory regions")
	descriptorPath := flag.String("descriptor", "camgroup.dto", "path to write the descriptor a Frame Router attaches to")
	flag.Parse()

	fileCfg, err := config.Load(*defaultConfig, *overrideConfig)
	if err != nil {
		log.Fatalf("camera-group: load config: %v", err)
	}
	configs := config.NewCameraConfigs(fileCfg.Cameras)
	if len(configs.Enabled()) == 0 {
		log.Fatal("camera-group: no cameras enabled in config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessionName := fmt.Sprintf("camgroup-%d", os.Getpid())
	group, err := camgroup.Connect(ctx, *shmDir, sessionName, configs, ffmpegFactory, 8)
	if err != nil {
		log.Fatalf("camera-group: connect: %v", err)
	}

	if err := sfb.WriteDescriptor(*descriptorPath, group.Descriptor()); err != nil {
		log.Fatalf("camera-group: write descriptor: %v", err)
	}
	log.Printf("camera-group: ready, session=%s cameras=%v descriptor=%s", sessionName, configs.IDs(), *descriptorPath)

	// A cross-process Frame Router reads frames directly from shared
	// memory (internal/router.AttachDescriptor), not through this
	// channel; it only needs draining so the driver loop never blocks on
	// a full buffer once nothing in this process is reading it.
	go func() {
		for range group.Payloads() {
		}
	}()

	<-ctx.Done()
	log.Println("camera-group: shutdown signal received")

	closed := make(chan error, 1)
	go func() { closed <- group.Close() }()
	select {
	case err := <-closed:
		if err != nil {
			log.Printf("camera-group: close: %v", err)
		}
	case <-time.After(5 * time.Second):
		log.Println("camera-group: close exceeded grace period, exiting anyway")
	}
}

// ffmpegFactory builds the production Device collaborator for one camera,
// grounded in the retrieved pack's v4l2-over-ffmpeg idiom (see
// internal/capture.NewFFmpegDevice).
func ffmpegFactory(id int, cfg config.CameraConfig) capture.Device {
	return capture.NewFFmpegDevice(capture.Spec{
		DevicePath:    fmt.Sprintf("/dev/video%d", id),
		Width:         cfg.Width,
		Height:        cfg.Height,
		Framerate:     cfg.Framerate,
		Exposure:      cfg.Exposure,
		CaptureFourcc: cfg.CaptureFourcc,
	})
}
