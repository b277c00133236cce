// Command frame-router is the standalone Frame Router (spec §4.6) for a
// split-process deployment: it attaches to a running Camera Group
// Process's shared memory via a descriptor file, forks every
// MultiFramePayload to a preview channel and framerate publisher, and
// serves them over a local IPC channel. It never writes to shared memory
// (spec §4.6 "read-only multi-frame consumer").
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/freemocap/skellycam/internal/config"
	"github.com/freemocap/skellycam/internal/ipc"
	"github.com/freemocap/skellycam/internal/router"
)

func main() {
	descriptorPath := flag.String("descriptor", "camgroup.dto", "path to the descriptor written by cmd/camera-group")
	defaultConfig := flag.String("config", "config.default.yaml", "baseline camera config YAML (must match the attached camera group)")
	overrideConfig := flag.String("override", "config.yaml", "override camera config YAML (optional)")
	previewScale := flag.Float64("preview-scale", 0.25, "downsample factor applied to preview JPEGs (spec §4.6)")
	previewBuf := flag.Int("preview-buffer", 4, "IPC preview channel buffer depth")
	flag.Parse()

	fileCfg, err := config.Load(*defaultConfig, *overrideConfig)
	if err != nil {
		log.Fatalf("frame-router: load config: %v", err)
	}
	configs := config.NewCameraConfigs(fileCfg.Cameras)

	attached, err := router.AttachDescriptor(*descriptorPath)
	if err != nil {
		log.Fatalf("frame-router: attach descriptor: %v", err)
	}
	defer attached.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	iec := ipc.NewChannel(*previewBuf)
	rtr := router.New(attached.Payloads(ctx), configs, iec, *previewScale)
	rtr.OnFatal(func(err error) {
		log.Printf("frame-router: fatal: %v", err)
		stop()
	})

	// Drain published events so slow/absent subscribers never block the
	// router; a real deployment would fan these out over a websocket the
	// way the teacher's root hub.go does (spec §4.6/§4.7 are transport
	// agnostic about the IEC's consumer side).
	go drainEvents(iec)
	go drainPreviews(iec)

	log.Printf("frame-router: attached to %s, serving %d cameras", *descriptorPath, configs.Len())
	if err := rtr.Run(ctx); err != nil && err != context.Canceled {
		log.Printf("frame-router: run: %v", err)
	}
	log.Println("frame-router: shutdown complete")
}

func drainEvents(iec *ipc.Channel) {
	for range iec.Events() {
	}
}

func drainPreviews(iec *ipc.Channel) {
	for range iec.Preview() {
	}
}
