package recorder

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"github.com/freemocap/skellycam/internal/metadata"
)

// TimestampSidecar is the per-camera CSV carrying FrameMetadata rows
// alongside the video file (spec §3 RecordingSession, §4.7). Grounded in
// lkumar3-iitr-Sensor-Logger's views.CSVWriter: a buffered csv.Writer under
// a mutex held only for a single row encode, flushed periodically rather
// than after every row.
type TimestampSidecar struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	csv  *csv.Writer
	rows uint64
}

// NewTimestampSidecar creates path and writes the FrameMetadata CSV header
// (spec §6: "header = FrameMetadata field names in declared order").
func NewTimestampSidecar(path string) (*TimestampSidecar, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("recorder: create sidecar %s: %w", path, err)
	}
	bw := bufio.NewWriterSize(f, 64*1024)
	cw := csv.NewWriter(bw)
	if err := cw.Write(metadata.CSVHeader()); err != nil {
		f.Close()
		return nil, fmt.Errorf("recorder: write sidecar header: %w", err)
	}
	return &TimestampSidecar{file: f, buf: bw, csv: cw}, nil
}

// WriteRow appends one frame's metadata. The N-th call is the N-th row
// (spec §3 invariant: "whose N-th row is FrameMetadata for the N-th frame
// of that camera").
func (s *TimestampSidecar) WriteRow(m metadata.FrameMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.csv.Write(m.CSVRow()); err != nil {
		return fmt.Errorf("recorder: write sidecar row: %w", err)
	}
	s.rows++
	return nil
}

// Rows returns the number of data rows written (excludes header).
func (s *TimestampSidecar) Rows() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}

// Flush pushes buffered rows to the OS without closing the file.
func (s *TimestampSidecar) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	return s.buf.Flush()
}

// Close flushes and closes the sidecar file.
func (s *TimestampSidecar) Close() error {
	if err := s.Flush(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
