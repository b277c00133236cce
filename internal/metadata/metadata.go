// Package metadata defines the fixed-width per-frame record written
// alongside every image into the Shared Frame Buffer, and its CSV form for
// the timestamp sidecar. The struct also carries CBOR field tags; the
// cross-process descriptor in internal/sfb does not include FrameMetadata.
package metadata

import "strconv"

// FrameMetadata is the fixed-width record stamped into every SFB slot.
// Field order here is the declared order used by CSVHeader/CSVRow — the
// timestamp sidecar's column order must match it exactly (spec §6).
type FrameMetadata struct {
	CameraID          uint64 `cbor:"camera_id"`
	FrameNumber       uint64 `cbor:"frame_number"`
	PreGrabNs         uint64 `cbor:"pre_grab_ns"`
	PostGrabNs        uint64 `cbor:"post_grab_ns"`
	PreRetrieveNs     uint64 `cbor:"pre_retrieve_ns"`
	PostRetrieveNs    uint64 `cbor:"post_retrieve_ns"`
	CopyIntoBufferNs  uint64 `cbor:"copy_into_buffer_ns"`
}

// Size is the fixed byte width of a FrameMetadata record as written into the
// SFB metadata region: seven u64 fields, little-endian.
const Size = 7 * 8

// fieldNames is the declared field order, used for the CSV header; Encode,
// Decode and CSVRow lay the fields out in this same order.
var fieldNames = []string{
	"camera_id",
	"frame_number",
	"pre_grab_ns",
	"post_grab_ns",
	"pre_retrieve_ns",
	"post_retrieve_ns",
	"copy_into_buffer_ns",
}

// CSVHeader returns the sidecar column names in declared order.
func CSVHeader() []string {
	out := make([]string, len(fieldNames))
	copy(out, fieldNames)
	return out
}

// CSVRow renders m as a row matching CSVHeader's column order.
func (m FrameMetadata) CSVRow() []string {
	return []string{
		strconv.FormatUint(m.CameraID, 10),
		strconv.FormatUint(m.FrameNumber, 10),
		strconv.FormatUint(m.PreGrabNs, 10),
		strconv.FormatUint(m.PostGrabNs, 10),
		strconv.FormatUint(m.PreRetrieveNs, 10),
		strconv.FormatUint(m.PostRetrieveNs, 10),
		strconv.FormatUint(m.CopyIntoBufferNs, 10),
	}
}

// Encode packs m into its fixed-width little-endian SFB representation.
func (m FrameMetadata) Encode() []byte {
	buf := make([]byte, Size)
	putU64(buf[0:8], m.CameraID)
	putU64(buf[8:16], m.FrameNumber)
	putU64(buf[16:24], m.PreGrabNs)
	putU64(buf[24:32], m.PostGrabNs)
	putU64(buf[32:40], m.PreRetrieveNs)
	putU64(buf[40:48], m.PostRetrieveNs)
	putU64(buf[48:56], m.CopyIntoBufferNs)
	return buf
}

// Decode unpacks a fixed-width SFB metadata region into a FrameMetadata.
func Decode(buf []byte) FrameMetadata {
	return FrameMetadata{
		CameraID:         getU64(buf[0:8]),
		FrameNumber:      getU64(buf[8:16]),
		PreGrabNs:        getU64(buf[16:24]),
		PostGrabNs:       getU64(buf[24:32]),
		PreRetrieveNs:    getU64(buf[32:40]),
		PostRetrieveNs:   getU64(buf[40:48]),
		CopyIntoBufferNs: getU64(buf[48:56]),
	}
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}

func getU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * uint(i))
	}
	return v
}

// Valid reports whether m looks like a real post-retrieve record rather than
// a zeroed/never-written slot — used by the capture worker's warm-up probe
// (see DESIGN.md "Warm-up boundary").
func (m FrameMetadata) Valid() bool {
	return m.PostRetrieveNs > 0 &&
		m.PostGrabNs >= m.PreGrabNs &&
		m.PostRetrieveNs >= m.PreRetrieveNs &&
		m.PreRetrieveNs >= m.PostGrabNs
}
