// Package session implements recording-session naming, the
// session_information.json artifact, and the recording-tree housekeeping
// operations (spec §6, DOMAIN EXPANSION-3 in SPEC_FULL.md).
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/freemocap/skellycam/internal/config"
)

// NewRecordingName derives recording_name as "<ISO-8601>_<short-uuid>"
// (spec §3 "ISO-8601-derived"; DOMAIN EXPANSION-2 resolves the exact
// derivation with a uuid suffix so two sessions starting within the same
// second never collide).
func NewRecordingName(start time.Time) string {
	ts := start.UTC().Format("2006-01-02T15-04-05")
	return fmt.Sprintf("%s_%s", ts, uuid.New().String()[:8])
}

// Information is the session_information.json document (spec §6).
type Information struct {
	SessionName                 string                      `json:"session_name"`
	SessionStartTimeISO8601     string                      `json:"session_start_time_iso8601"`
	SessionStartTimeUnixSeconds int64                       `json:"session_start_time_unix_seconds"`
	VideoSaveFolderPath         string                      `json:"video_save_folder_path"`
	CameraConfigurations        map[int]config.CameraConfig `json:"camera_configurations"`
	TimestampDiagnosticResults  any                         `json:"timestamp_diagnostic_results,omitempty"`
}

// NewInformation builds the session_information.json document for a
// recording session that started at start and contains the given configs.
func NewInformation(sessionName, folder string, start time.Time, configs config.CameraConfigs) Information {
	cams := make(map[int]config.CameraConfig, configs.Len())
	for _, id := range configs.IDs() {
		c, _ := configs.Get(id)
		cams[id] = c
	}
	return Information{
		SessionName:                 sessionName,
		SessionStartTimeISO8601:     start.UTC().Format(time.RFC3339),
		SessionStartTimeUnixSeconds: start.Unix(),
		VideoSaveFolderPath:         folder,
		CameraConfigurations:        cams,
	}
}

// Write renders info as session_information.json inside folder.
func (info Information) Write(folder string) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("session: marshal session_information.json: %w", err)
	}
	path := filepath.Join(folder, "session_information.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("session: write %s: %w", path, err)
	}
	return nil
}

// Summary describes one recorded session directory under base (spec §6
// filesystem contract, DOMAIN EXPANSION-3).
type Summary struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// ListRecordings lists every session directory under base, newest first
// (ISO-8601-prefixed names sort lexically by time), grounded in the
// teacher's server/dvr/api.go ListRecordings (read a directory tree,
// filter to the entries that look like recordings, sort for display).
func ListRecordings(base string) ([]Summary, error) {
	entries, err := os.ReadDir(base)
	if os.IsNotExist(err) {
		return []Summary{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: list recordings: %w", err)
	}

	out := make([]Summary, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		out = append(out, Summary{Name: e.Name(), Path: filepath.Join(base, e.Name())})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name > out[j].Name })
	return out, nil
}

// DeleteRecording removes a session directory under base by name, grounded
// in the teacher's DeleteRecording path-traversal guard.
func DeleteRecording(base, name string) error {
	if name == "" || strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("session: invalid recording name %q", name)
	}
	dir := filepath.Join(base, name)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("session: delete %s: %w", dir, err)
	}
	return nil
}
