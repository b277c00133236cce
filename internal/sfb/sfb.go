// Package sfb implements the Shared Frame Buffer: one fixed-layout,
// single-slot POSIX shared-memory image+metadata region per camera, mapped
// with golang.org/x/sys/unix the way the retrieved V4L2 capture examples map
// device buffers (unix.Open + unix.Ftruncate + unix.Mmap) rather than via
// cgo shm bindings.
package sfb

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/freemocap/skellycam/internal/metadata"
)

// region is one named, mmap'd POSIX shared-memory segment.
type region struct {
	name string
	path string
	fd   int
	data []byte
}

func createRegion(dir, name string, size int) (*region, error) {
	path := filepath.Join(dir, name)
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("sfb: open %s: %w", path, err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("sfb: ftruncate %s: %w", path, err)
	}
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("sfb: mmap %s: %w", path, err)
	}
	return &region{name: name, path: path, fd: fd, data: data}, nil
}

// attachRegion maps an existing region read-only, for a cross-process
// reader reconstructing a view from a DTO (spec §4.3).
func attachRegion(path string, size int) (*region, error) {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("sfb: attach open %s: %w", path, err)
	}
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("sfb: attach mmap %s: %w", path, err)
	}
	return &region{name: filepath.Base(path), path: path, fd: fd, data: data}, nil
}

func (r *region) close() error {
	if r == nil {
		return nil
	}
	if err := unix.Munmap(r.data); err != nil {
		return err
	}
	return unix.Close(r.fd)
}

func (r *region) unlink() error {
	return unix.Unlink(r.path)
}

// Buffer is one camera's single-slot shared-memory frame buffer: an image
// region of exactly h*w*c bytes and a metadata region of metadata.Size
// bytes (spec §4.3). Writes go through PutNewFrame only; no lock beyond the
// barrier protocol's flag discipline is used or needed (spec §5).
type Buffer struct {
	CameraID int
	Height   int
	Width    int
	Channels int

	image *region
	meta  *region
	owner bool // true only for the creator, which alone may unlink
}

// ImageSize returns h*w*c, the fixed image region size for this camera.
func (b *Buffer) ImageSize() int { return b.Height * b.Width * b.Channels }

// imageRegionName and metaRegionName derive deterministic shared-memory
// segment names scoped to a session, so a cross-process reader can
// reconstruct them from the DTO (spec §3 Lifecycles, §4.3).
func imageRegionName(session string, cameraID int) string {
	return fmt.Sprintf("%s-cam%d-image", session, cameraID)
}

func metaRegionName(session string, cameraID int) string {
	return fmt.Sprintf("%s-cam%d-meta", session, cameraID)
}

// Create allocates and maps both regions for one camera, as the owning
// Camera Group Process does. dir is typically /dev/shm.
func Create(dir, session string, cameraID, height, width, channels int) (*Buffer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("sfb: mkdir %s: %w", dir, err)
	}
	imgName := imageRegionName(session, cameraID)
	metaName := metaRegionName(session, cameraID)

	imgSize := height * width * channels
	img, err := createRegion(dir, imgName, imgSize)
	if err != nil {
		return nil, err
	}
	meta, err := createRegion(dir, metaName, metadata.Size)
	if err != nil {
		img.close()
		img.unlink()
		return nil, err
	}
	return &Buffer{
		CameraID: cameraID,
		Height:   height,
		Width:    width,
		Channels: channels,
		image:    img,
		meta:     meta,
		owner:    true,
	}, nil
}

// Attach reconstructs a read-only view of an existing Buffer from a DTO
// (spec §3: "A read-only view may be reconstructed by another process from
// a DTO containing the OS-level shared-memory names, the shape, and the
// dtype").
func Attach(dir string, d CameraBufferDTO) (*Buffer, error) {
	imgPath := filepath.Join(dir, d.ImageName)
	metaPath := filepath.Join(dir, d.MetaName)
	imgSize := d.Height * d.Width * d.Channels

	img, err := attachRegion(imgPath, imgSize)
	if err != nil {
		return nil, err
	}
	meta, err := attachRegion(metaPath, metadata.Size)
	if err != nil {
		img.close()
		return nil, err
	}
	return &Buffer{
		CameraID: d.CameraID,
		Height:   d.Height,
		Width:    d.Width,
		Channels: d.Channels,
		image:    img,
		meta:     meta,
		owner:    false,
	}, nil
}

// PutNewFrame copies image bytes and a metadata record into the buffer's
// regions, validating the image length against the fixed shape (spec §4.3:
// "Validates dtype and shape; fails hard on mismatch"). Stamping
// copy_into_buffer_ns is the caller's responsibility immediately before
// this call, per the barrier protocol step 3e.
func (b *Buffer) PutNewFrame(image []byte, meta metadata.FrameMetadata) error {
	if len(image) != b.ImageSize() {
		return fmt.Errorf("sfb: image size mismatch: got %d want %d (config mismatch)", len(image), b.ImageSize())
	}
	copy(b.image.data, image)
	copy(b.meta.data, meta.Encode())
	return nil
}

// RetrieveFrameView returns borrowed views of the image and metadata
// regions. Valid only while the caller holds the flag-enforced read phase
// (spec §4.3) — the Frame Router copies these into an owned MultiFramePayload
// immediately, per step 3f of the barrier protocol.
func (b *Buffer) RetrieveFrameView() ([]byte, metadata.FrameMetadata) {
	return b.image.data, metadata.Decode(b.meta.data)
}

// DTO returns the cross-process descriptor for this buffer (spec §4.3,
// §9 "one-way ownership with DTOs").
func (b *Buffer) DTO() CameraBufferDTO {
	return CameraBufferDTO{
		CameraID:  b.CameraID,
		ImageName: b.image.name,
		MetaName:  b.meta.name,
		Height:    b.Height,
		Width:     b.Width,
		Channels:  b.Channels,
	}
}

// Close detaches the buffer's mappings. Close never unlinks — only the
// creator may (spec §4.3).
func (b *Buffer) Close() error {
	if err := b.image.close(); err != nil {
		return err
	}
	return b.meta.close()
}

// Unlink removes the OS-level shared-memory names. Only the owner (the
// Camera Group Process that created the buffer) may call this.
func (b *Buffer) Unlink() error {
	if !b.owner {
		return fmt.Errorf("sfb: unlink called on a non-owning (attached) buffer")
	}
	if err := b.image.unlink(); err != nil {
		return err
	}
	return b.meta.unlink()
}
