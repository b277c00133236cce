package barrier

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// SharedState is the cross-process-visible slice of Orchestrator state a
// Frame Router running in a genuinely separate OS process needs: the
// current multi_frame_number and the group kill flag (spec §4.2, §5 FR
// suspension point "await new multi_frame_number"). It is a tiny mmap'd
// region using the same golang.org/x/sys/unix idiom as internal/sfb,
// because the BO flags themselves are plain in-process atomics when
// Capture Workers run as goroutines (see DESIGN.md "Process vs. goroutine
// CWs") and so are not otherwise reachable from FR's process.
type SharedState struct {
	path  string
	fd    int
	data  []byte
	owner bool
}

const sharedStateSize = 16 // [0:8] multi_frame_number, [8:16] kill flag

// CreateSharedState allocates the region; called by the Camera Group
// Process at connect time.
func CreateSharedState(path string) (*SharedState, error) {
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("barrier: open shared state %s: %w", path, err)
	}
	if err := unix.Ftruncate(fd, sharedStateSize); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("barrier: ftruncate shared state: %w", err)
	}
	data, err := unix.Mmap(fd, 0, sharedStateSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("barrier: mmap shared state: %w", err)
	}
	return &SharedState{path: path, fd: fd, data: data, owner: true}, nil
}

// AttachSharedState maps an existing region read-write so a separate Frame
// Router process can both observe multi_frame_number and, defensively,
// never needs write access in normal operation — kept read-write only
// because unix.MAP_SHARED with PROT_READ-only mappings of a process-owned
// file is equally valid; read-write simplifies Close across both owner and
// attacher without a second code path.
func AttachSharedState(path string) (*SharedState, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("barrier: attach shared state %s: %w", path, err)
	}
	data, err := unix.Mmap(fd, 0, sharedStateSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("barrier: attach mmap shared state: %w", err)
	}
	return &SharedState{path: path, fd: fd, data: data, owner: false}, nil
}

func (s *SharedState) counterPtr() *uint64 {
	return (*uint64)(unsafe.Pointer(&s.data[0]))
}

func (s *SharedState) killPtr() *uint64 {
	return (*uint64)(unsafe.Pointer(&s.data[8]))
}

// Path returns the filesystem path backing this region, for inclusion in a
// GroupDTO so a Frame Router process can attach to it.
func (s *SharedState) Path() string { return s.path }

// StoreFrameNumber publishes the latest multi_frame_number, called by the
// driver immediately after Orchestrator.CompleteCycle.
func (s *SharedState) StoreFrameNumber(n uint64) { atomic.StoreUint64(s.counterPtr(), n) }

// LoadFrameNumber reads the latest published multi_frame_number.
func (s *SharedState) LoadFrameNumber() uint64 { return atomic.LoadUint64(s.counterPtr()) }

// SetKill publishes the kill flag so an attached FR process can stop
// polling promptly (spec §5 cancellation).
func (s *SharedState) SetKill() { atomic.StoreUint64(s.killPtr(), 1) }

// Killed reports the published kill flag.
func (s *SharedState) Killed() bool { return atomic.LoadUint64(s.killPtr()) == 1 }

// Close unmaps and closes the region without removing the OS-level name.
func (s *SharedState) Close() error {
	if err := unix.Munmap(s.data); err != nil {
		return err
	}
	return unix.Close(s.fd)
}

// Unlink removes the OS-level name. Only the owner should call this.
func (s *SharedState) Unlink() error {
	if !s.owner {
		return fmt.Errorf("barrier: unlink called on a non-owning shared state")
	}
	return unix.Unlink(s.path)
}
