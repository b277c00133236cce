package recorder

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/freemocap/skellycam/internal/metadata"
)

func TestTimestampSidecarHeaderAndRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cam0_timestamps.csv")
	s, err := NewTimestampSidecar(path)
	if err != nil {
		t.Fatalf("NewTimestampSidecar: %v", err)
	}

	for i := uint64(0); i < 3; i++ {
		m := metadata.FrameMetadata{CameraID: 0, FrameNumber: i, PostRetrieveNs: i + 1}
		if err := s.WriteRow(m); err != nil {
			t.Fatalf("WriteRow: %v", err)
		}
	}
	if s.Rows() != 3 {
		t.Fatalf("expected 3 rows, got %d", s.Rows())
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open sidecar: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 4 { // header + 3 rows
		t.Fatalf("expected 4 records (header+3), got %d", len(records))
	}
	wantHeader := metadata.CSVHeader()
	for i, col := range wantHeader {
		if records[0][i] != col {
			t.Fatalf("header[%d] = %q, want %q", i, records[0][i], col)
		}
	}
	if records[1][1] != "0" || records[3][1] != "2" {
		t.Fatalf("expected frame_number column 0,1,2 in order, got %v", records)
	}
}

func TestCodecForKnownAndUnknownFourcc(t *testing.T) {
	cases := map[string]string{
		"mp4v": "mpeg4",
		"":     "mpeg4",
		"avc1": "libx264",
		"xyz9": "mpeg4",
	}
	for fourcc, want := range cases {
		if got := codecFor(fourcc); got != want {
			t.Errorf("codecFor(%q) = %q, want %q", fourcc, got, want)
		}
	}
}
