// Command skellycam-session is a smoke-test/demo binary exercising the full
// Lifecycle Controller surface end to end (connect, record, stop, close)
// against fake camera devices. It calls nothing but the internal/controller
// operations of spec §4.1, playing the role an out-of-scope HTTP/WS layer
// would play in front of the Controller in production.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/freemocap/skellycam/internal/capture"
	"github.com/freemocap/skellycam/internal/config"
	"github.com/freemocap/skellycam/internal/controller"
	"github.com/freemocap/skellycam/internal/ipc"
)

func main() {
	numCameras := flag.Int("cameras", 2, "number of fake cameras to simulate")
	recordFor := flag.Duration("record-for", 2*time.Second, "how long to record before stopping")
	shmDir := flag.String("shm-dir", "", "directory for shared-memory regions (defaults to an OS temp dir)")
	recDir := flag.String("rec-dir", "", "directory recordings are written under (defaults to an OS temp dir)")
	flag.Parse()

	dir := *shmDir
	if dir == "" {
		dir = mustTempDir("skellycam-shm")
	}
	recordingsDir := *recDir
	if recordingsDir == "" {
		recordingsDir = mustTempDir("skellycam-recordings")
	}

	iec := ipc.NewChannel(4)
	go func() {
		for evt := range iec.Events() {
			log.Printf("skellycam-session: event: %+v", evt)
		}
	}()

	c := controller.New(dir, recordingsDir, fakeFactory, iec)

	configs := controller.Detect(sequentialIDs(*numCameras))
	ctx, cancel := context.WithTimeout(context.Background(), *recordFor+10*time.Second)
	defer cancel()

	log.Printf("skellycam-session: connecting %d camera(s)", configs.Len())
	if err := c.Connect(ctx, configs); err != nil {
		log.Fatalf("skellycam-session: connect: %v", err)
	}

	log.Println("skellycam-session: starting recording")
	name, err := c.StartRecording(ctx, "")
	if err != nil {
		log.Fatalf("skellycam-session: start_recording: %v", err)
	}
	log.Printf("skellycam-session: recording %q for %s", name, *recordFor)
	time.Sleep(*recordFor)

	if err := c.StopRecording(); err != nil {
		log.Fatalf("skellycam-session: stop_recording: %v", err)
	}
	log.Println("skellycam-session: recording stopped")

	if err := c.Shutdown(); err != nil {
		log.Fatalf("skellycam-session: shutdown: %v", err)
	}
	log.Println("skellycam-session: done")
}

func fakeFactory(id int, cfg config.CameraConfig) capture.Device {
	return capture.NewFakeDevice(capture.Spec{Width: cfg.Width, Height: cfg.Height})
}

func sequentialIDs(n int) []int {
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i
	}
	return ids
}

func mustTempDir(prefix string) string {
	dir, err := os.MkdirTemp("", prefix)
	if err != nil {
		log.Fatalf("skellycam-session: %v", err)
	}
	return dir
}
