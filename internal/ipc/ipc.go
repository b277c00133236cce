// Package ipc implements the IPC Event Channel (spec §4.8): a tagged-variant
// event queue (AppStateDTO | RecordingInfo | CurrentFrameRate, each a Go
// struct with a fixed Type field, mirroring the teacher's hub.go outbound
// message shapes such as PingMsg{Type: "ping", ...}) plus a separate
// drop-on-full preview byte channel. The out-of-scope WebSocket boundary
// drains both.
package ipc

import "encoding/json"

// Event type tags. Consumers dispatch on Type; unknown tags are logged and
// dropped, not inferred (spec §9 "tagged-variant IPC events").
const (
	TypeAppState         = "AppStateDTO"
	TypeRecordingInfo    = "RecordingInfo"
	TypeCurrentFrameRate = "CurrentFrameRate"
)

// AppStateDTO is the periodic full-state snapshot (spec §6).
type AppStateDTO struct {
	Type                   string  `json:"type"`
	StateTimestamp         string  `json:"state_timestamp"`
	CameraConfigs          any     `json:"camera_configs"`
	AvailableDevices       []int   `json:"available_devices"`
	CurrentFramerate       float64 `json:"current_framerate"`
	RecordFramesFlagStatus bool    `json:"record_frames_flag_status"`
}

// RecordingInfo is published by the controller on stop_recording (spec §4.7).
type RecordingInfo struct {
	Type            string `json:"type"`
	RecordingName   string `json:"recording_name"`
	RecordingFolder string `json:"recording_folder"`
	CameraIDs       []int  `json:"camera_ids"`
}

// CurrentFrameRate is published by the Frame Router at a bounded cadence
// (spec §4.6, "≤10 Hz").
type CurrentFrameRate struct {
	Type       string  `json:"type"`
	MeanFPS    float64 `json:"mean_fps"`
	MedianFPS  float64 `json:"median_fps"`
	WindowSize int     `json:"window_size"`
	Timestamp  string  `json:"timestamp"`
}

// queueBuf bounds the event queue so a wedged consumer can't grow it
// unboundedly; events are control/status traffic, not the hot path, so a
// modest buffer (unlike the preview channel) is never expected to fill.
const queueBuf = 256

// Channel is the multi-producer/single-consumer event queue plus the
// separate drop-on-full preview byte channel (spec §4.8).
type Channel struct {
	events  chan any
	preview chan []byte
}

// NewChannel builds an IPC Event Channel. previewBuf sizes the preview
// channel's drop-tolerant buffer (spec §4.6's "current preview is discarded
// and the next one is attempted").
func NewChannel(previewBuf int) *Channel {
	return &Channel{
		events:  make(chan any, queueBuf),
		preview: make(chan []byte, previewBuf),
	}
}

// Publish enqueues an event (AppStateDTO, RecordingInfo, or
// CurrentFrameRate). Drops the event if the queue is full rather than
// blocking the caller — control-plane events are cadence traffic.
func (c *Channel) Publish(event any) {
	select {
	case c.events <- event:
	default:
	}
}

// Events returns the channel consumers (the out-of-scope WebSocket
// boundary) drain.
func (c *Channel) Events() <-chan any { return c.events }

// PublishPreview offers a preview payload; never blocks. If the channel is
// backed up the payload is dropped and the caller should move on to the
// next cycle (spec §4.6 drop-tolerant preview path).
func (c *Channel) PublishPreview(data []byte) bool {
	select {
	case c.preview <- data:
		return true
	default:
		return false
	}
}

// Preview returns the drop-on-full preview byte channel.
func (c *Channel) Preview() <-chan []byte { return c.preview }

// PreviewPayload is the JSON document shape published on the preview
// channel (spec §6): one base64 JPEG per camera plus lifespan markers.
type PreviewPayload struct {
	MultiFrameNumber   uint64            `json:"multi_frame_number"`
	LifespanTimestamps map[string]uint64 `json:"lifespan_timestamps_ns"`
	JPEGImages         map[int]string    `json:"jpeg_images"`
	Sizes              map[int][2]int    `json:"sizes,omitempty"`
}

// Marshal renders p as the JSON document the preview channel carries.
func (p PreviewPayload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}
