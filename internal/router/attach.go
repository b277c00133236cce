package router

import (
	"context"
	"fmt"
	"time"

	"github.com/freemocap/skellycam/internal/barrier"
	"github.com/freemocap/skellycam/internal/payload"
	"github.com/freemocap/skellycam/internal/sfb"
)

// Poll intervals for a cross-process multi_frame_number. These are separate
// from internal/barrier's 1µs/10ms/1s tiers: FR polls every
// attachPollInterval and, after attachIdleAfter consecutive polls without a
// new value, backs off to attachIdleInterval.
const (
	attachPollInterval = 2 * time.Millisecond
	attachIdleInterval = 50 * time.Millisecond
	attachIdleAfter    = 20 // polls at attachPollInterval before backing off
)

// Attached is a Frame Router source reconstructed from a CameraGroupSharedMemoryDTO
// file written by a Camera Group Process running in another OS process
// (spec §4.6 "Runs in a separate process, subscribed to the BO as a
// read-only multi-frame consumer").
type Attached struct {
	group  *sfb.Group
	shared *barrier.SharedState
}

// AttachDescriptor reads the descriptor file at path and maps the
// CameraGroupSharedMemory read-only and the barrier SharedState read-write
// (this process only reads it) into this process.
func AttachDescriptor(path string) (*Attached, error) {
	dto, err := sfb.ReadDescriptor(path)
	if err != nil {
		return nil, fmt.Errorf("router: read descriptor: %w", err)
	}
	group, err := sfb.AttachGroup(dto)
	if err != nil {
		return nil, fmt.Errorf("router: attach group: %w", err)
	}
	shared, err := barrier.AttachSharedState(dto.CounterPath)
	if err != nil {
		group.Close()
		return nil, fmt.Errorf("router: attach shared state: %w", err)
	}
	return &Attached{group: group, shared: shared}, nil
}

// Close detaches the mapped regions without unlinking them — the owning
// Camera Group Process is responsible for unlink (spec §4.3 "Only the
// creator unlinks").
func (a *Attached) Close() error {
	if err := a.shared.Close(); err != nil {
		return err
	}
	return a.group.Close()
}

// Payloads starts a polling goroutine that watches SharedState's published
// multi_frame_number and, on each new value, reads a MultiFramePayload from
// the attached SFB group (spec §5 FR suspension point "await new
// multi_frame_number"). The returned channel closes when ctx is cancelled
// or the group's kill flag is observed.
func (a *Attached) Payloads(ctx context.Context) <-chan payload.MultiFramePayload {
	out := make(chan payload.MultiFramePayload)
	go a.pollLoop(ctx, out)
	return out
}

func (a *Attached) pollLoop(ctx context.Context, out chan<- payload.MultiFramePayload) {
	defer close(out)
	var last uint64
	idleStreak := 0

	for {
		if ctx.Err() != nil || a.shared.Killed() {
			return
		}

		n := a.shared.LoadFrameNumber()
		if n == last {
			idleStreak++
			wait := attachPollInterval
			if idleStreak > attachIdleAfter {
				wait = attachIdleInterval
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		idleStreak = 0
		last = n

		ids := a.group.IDs()
		frames := make([]payload.CameraFrame, 0, len(ids))
		for _, id := range ids {
			buf, ok := a.group.Buffer(id)
			if !ok {
				continue
			}
			imgView, meta := buf.RetrieveFrameView()
			owned := make([]byte, len(imgView))
			copy(owned, imgView)
			frames = append(frames, payload.CameraFrame{CameraID: id, Image: owned, Meta: meta})
		}

		select {
		case out <- payload.MultiFramePayload{MultiFrameNumber: n, Frames: frames}:
		case <-ctx.Done():
			return
		}
	}
}
