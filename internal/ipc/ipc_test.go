package ipc

import "testing"

func TestPublishAndDrain(t *testing.T) {
	ch := NewChannel(2)
	ch.Publish(RecordingInfo{Type: TypeRecordingInfo, RecordingName: "t1"})
	ch.Publish(CurrentFrameRate{Type: TypeCurrentFrameRate, MeanFPS: 29.9})

	got, ok := (<-ch.Events()).(RecordingInfo)
	if !ok || got.RecordingName != "t1" {
		t.Fatalf("expected RecordingInfo t1, got %#v (ok=%v)", got, ok)
	}
}

func TestPreviewDropsWhenFull(t *testing.T) {
	ch := NewChannel(1)
	if !ch.PublishPreview([]byte("frame-1")) {
		t.Fatal("expected first preview publish to succeed")
	}
	if ch.PublishPreview([]byte("frame-2")) {
		t.Fatal("expected second preview publish to be dropped (channel full)")
	}
	if string(<-ch.Preview()) != "frame-1" {
		t.Fatal("expected the buffered frame to be frame-1")
	}
}

func TestPreviewPayloadMarshal(t *testing.T) {
	p := PreviewPayload{
		MultiFrameNumber: 42,
		JPEGImages:       map[int]string{0: "Zm9v"},
	}
	data, err := p.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty JSON")
	}
}
