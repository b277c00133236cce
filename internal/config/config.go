// Package config holds per-camera and session configuration, loaded from
// YAML with a baseline/override split in the style of the teacher's
// server/config package, and the reset_all/in-place update-plan diffing
// (spec §4.5) grounded in that same package's SaveOverrides/diffMaps.
package config

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// Rotation is one of the four fixed orientations a captured image may be
// rotated to before it is copied into the SFB.
type Rotation int

const (
	RotateNone Rotation = 0
	Rotate90CW Rotation = 90
	Rotate180  Rotation = 180
	Rotate90CCW Rotation = 270
)

// CameraConfig holds the per-camera capture parameters (spec §3).
type CameraConfig struct {
	CameraID      int      `yaml:"cameraId"      json:"camera_id"`
	UseThisCamera bool     `yaml:"useThisCamera" json:"use_this_camera"`
	Width         int      `yaml:"width"         json:"width"`
	Height        int      `yaml:"height"        json:"height"`
	ColorChannels int      `yaml:"colorChannels" json:"color_channels"`
	Exposure      int      `yaml:"exposure"      json:"exposure"`
	Framerate     float64  `yaml:"framerate"     json:"framerate"`
	Rotation      Rotation `yaml:"rotation"      json:"rotation"`
	CaptureFourcc string   `yaml:"captureFourcc" json:"capture_fourcc"`
	WriterFourcc  string   `yaml:"writerFourcc"  json:"writer_fourcc"`
}

// ImageShape returns the (height, width, channels) invariant tuple for this
// camera, fixed for the lifetime of a camera group (spec §3).
func (c CameraConfig) ImageShape() (height, width, channels int) {
	return c.Height, c.Width, c.ColorChannels
}

// withDefaults fills in the documented defaults for fields a caller left zero.
func (c CameraConfig) withDefaults() CameraConfig {
	if c.ColorChannels == 0 {
		c.ColorChannels = 3
	}
	if c.CaptureFourcc == "" {
		c.CaptureFourcc = "MJPG"
	}
	if c.WriterFourcc == "" {
		c.WriterFourcc = "mp4v"
	}
	if c.Framerate == 0 {
		c.Framerate = 30
	}
	return c
}

// CameraConfigs is CameraId -> CameraConfig with insertion order preserved
// for deterministic orchestrator iteration (spec §3).
type CameraConfigs struct {
	order []int
	byID  map[int]CameraConfig
}

// NewCameraConfigs builds a CameraConfigs from a slice, in the given order,
// applying field defaults to each entry.
func NewCameraConfigs(cams []CameraConfig) CameraConfigs {
	cc := CameraConfigs{byID: make(map[int]CameraConfig, len(cams))}
	for _, c := range cams {
		c = c.withDefaults()
		if _, exists := cc.byID[c.CameraID]; !exists {
			cc.order = append(cc.order, c.CameraID)
		}
		cc.byID[c.CameraID] = c
	}
	return cc
}

// IDs returns camera IDs in insertion order.
func (cc CameraConfigs) IDs() []int {
	out := make([]int, len(cc.order))
	copy(out, cc.order)
	return out
}

// Get returns the config for id and whether it exists.
func (cc CameraConfigs) Get(id int) (CameraConfig, bool) {
	c, ok := cc.byID[id]
	return c, ok
}

// Enabled returns the configs with UseThisCamera set, in insertion order.
func (cc CameraConfigs) Enabled() []CameraConfig {
	out := make([]CameraConfig, 0, len(cc.order))
	for _, id := range cc.order {
		c := cc.byID[id]
		if c.UseThisCamera {
			out = append(out, c)
		}
	}
	return out
}

// Len reports the number of configured cameras (enabled or not).
func (cc CameraConfigs) Len() int { return len(cc.order) }

// FileConfig is the on-disk YAML shape: a plain list of cameras plus the
// session-level recording base directory.
type FileConfig struct {
	RecordingsDir string         `yaml:"recordingsDir" json:"recordings_dir"`
	Cameras       []CameraConfig `yaml:"cameras"        json:"cameras"`
}

// Load reads defaultPath as the baseline and layers overridePath on top if
// it exists and parses cleanly, mirroring the teacher's config.Load split
// between config.default.yaml and config.yaml.
func Load(defaultPath, overridePath string) (*FileConfig, error) {
	data, err := os.ReadFile(defaultPath)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", defaultPath, err)
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", defaultPath, err)
	}
	if ovData, err := os.ReadFile(overridePath); err == nil {
		if err := yaml.Unmarshal(ovData, &cfg); err != nil {
			log.Println("config: ignoring malformed override file:", err)
		}
	}
	return &cfg, nil
}
