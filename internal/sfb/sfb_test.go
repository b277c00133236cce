package sfb

import (
	"testing"

	"github.com/freemocap/skellycam/internal/metadata"
)

func TestPutNewFrameRoundTrip(t *testing.T) {
	dir := t.TempDir()
	buf, err := Create(dir, "sess", 0, 4, 4, 3)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer func() {
		buf.Close()
		buf.Unlink()
	}()

	image := make([]byte, buf.ImageSize())
	for i := range image {
		image[i] = byte(i)
	}
	want := metadata.FrameMetadata{CameraID: 0, FrameNumber: 7, PostRetrieveNs: 100}

	if err := buf.PutNewFrame(image, want); err != nil {
		t.Fatalf("PutNewFrame: %v", err)
	}

	gotImage, gotMeta := buf.RetrieveFrameView()
	if string(gotImage) != string(image) {
		t.Fatalf("image mismatch")
	}
	if gotMeta != want {
		t.Fatalf("metadata mismatch: got %+v want %+v", gotMeta, want)
	}
}

func TestPutNewFrameSizeMismatch(t *testing.T) {
	dir := t.TempDir()
	buf, err := Create(dir, "sess", 0, 4, 4, 3)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer func() {
		buf.Close()
		buf.Unlink()
	}()

	if err := buf.PutNewFrame([]byte{1, 2, 3}, metadata.FrameMetadata{}); err == nil {
		t.Fatal("expected size mismatch error")
	}
}

func TestGroupDescriptorRoundTrip(t *testing.T) {
	dir := t.TempDir()
	shapes := map[int][3]int{0: {4, 4, 3}, 1: {4, 4, 3}}
	group, err := CreateGroup(dir, "sess", []int{0, 1}, shapes)
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	defer func() {
		group.Close()
		group.Unlink()
	}()

	descPath := dir + "/descriptor.cbor"
	if err := WriteDescriptor(descPath, group.DTO()); err != nil {
		t.Fatalf("WriteDescriptor: %v", err)
	}

	got, err := ReadDescriptor(descPath)
	if err != nil {
		t.Fatalf("ReadDescriptor: %v", err)
	}
	if len(got.Cameras) != 2 {
		t.Fatalf("expected 2 cameras, got %d", len(got.Cameras))
	}

	attached, err := AttachGroup(got)
	if err != nil {
		t.Fatalf("AttachGroup: %v", err)
	}
	defer attached.Close()

	b0, _ := group.Buffer(0)
	a0, _ := attached.Buffer(0)

	image := make([]byte, b0.ImageSize())
	for i := range image {
		image[i] = byte(i + 1)
	}
	if err := b0.PutNewFrame(image, metadata.FrameMetadata{CameraID: 0, FrameNumber: 1, PostRetrieveNs: 5}); err != nil {
		t.Fatalf("PutNewFrame: %v", err)
	}

	gotImage, gotMeta := a0.RetrieveFrameView()
	if string(gotImage) != string(image) {
		t.Fatal("attached view does not see writer's image bytes")
	}
	if gotMeta.FrameNumber != 1 {
		t.Fatalf("attached view metadata mismatch: %+v", gotMeta)
	}

	if err := attached.Unlink(); err == nil {
		t.Fatal("expected attached (non-owning) group Unlink to fail")
	}
}
