// thumbnails walks the recordings tree via internal/session.ListRecordings
// and, for each session, reads its session_information.json to learn which
// per-camera .mp4 files the recorder wrote (spec §6 filesystem contract:
// "<recording_name>_camera_<id>.mp4"). For every camera present in
// CameraConfigurations it:
//   - generates a missing _thumb.jpg / _full.jpg for that camera's .mp4
//   - deletes orphaned _thumb.jpg / _full.jpg files for camera IDs no longer
//     listed in session_information.json
//
// A session directory with no session_information.json (not created by a
// recording session, or the write at recording start failed) is skipped
// rather than guessed at.
//
// Usage:
//
//	thumbnails [--dir <recordingsDir>] [--height <px>] [--dry-run]
//
// Defaults: dir="recordings", height=240.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/freemocap/skellycam/internal/session"
)

func main() {
	dir := flag.String("dir", "recordings", "recordings root directory")
	height := flag.Int("height", 240, "thumbnail height in pixels")
	dryRun := flag.Bool("dry-run", false, "print actions without executing them")
	flag.Parse()

	if err := run(*dir, *height, *dryRun); err != nil {
		log.Fatal(err)
	}
}

func run(root string, height int, dryRun bool) error {
	recordings, err := session.ListRecordings(root)
	if err != nil {
		return err
	}
	if len(recordings) == 0 {
		return fmt.Errorf("directory %q has no recordings", root)
	}

	var generated, deleted, skipped int

	for _, rec := range recordings {
		info, ok, err := readSessionInformation(rec.Path)
		if err != nil {
			log.Printf("skip %s: %v", rec.Path, err)
			continue
		}
		if !ok {
			continue // not a completed recording session
		}

		wantBases := make(map[string]struct{}, len(info.CameraConfigurations))
		for id := range info.CameraConfigurations {
			wantBases[fmt.Sprintf("%s_camera_%d", info.SessionName, id)] = struct{}{}
		}

		for base := range wantBases {
			mp4File := filepath.Join(rec.Path, base+".mp4")
			if !fileExists(mp4File) {
				continue
			}
			thumbFile := filepath.Join(rec.Path, base+"_thumb.jpg")
			fullFile := filepath.Join(rec.Path, base+"_full.jpg")

			needThumb := !fileExists(thumbFile)
			needFull := !fileExists(fullFile)
			if !needThumb && !needFull {
				skipped++
				continue
			}

			if needThumb {
				if dryRun {
					fmt.Printf("[dry-run] generate thumb: %s\n", thumbFile)
				} else {
					fmt.Printf("generating thumb: %s\n", thumbFile)
					if err := ffmpegFrame(mp4File, "scale=-2:"+fmt.Sprint(height), thumbFile); err != nil {
						log.Printf("thumb failed for %s: %v", mp4File, err)
					} else {
						generated++
					}
				}
			}
			if needFull {
				if dryRun {
					fmt.Printf("[dry-run] generate full:  %s\n", fullFile)
				} else {
					fmt.Printf("generating full:  %s\n", fullFile)
					if err := ffmpegFrame(mp4File, "", fullFile); err != nil {
						log.Printf("full failed for %s: %v", mp4File, err)
					} else {
						generated++
					}
				}
			}
		}

		files, err := os.ReadDir(rec.Path)
		if err != nil {
			log.Printf("skip orphan sweep for %s: %v", rec.Path, err)
			continue
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			name := f.Name()
			var base string
			switch {
			case strings.HasSuffix(name, "_thumb.jpg"):
				base = strings.TrimSuffix(name, "_thumb.jpg")
			case strings.HasSuffix(name, "_full.jpg"):
				base = strings.TrimSuffix(name, "_full.jpg")
			default:
				continue
			}
			if _, ok := wantBases[base]; ok {
				continue // camera still listed in session_information.json
			}
			path := filepath.Join(rec.Path, name)
			if dryRun {
				fmt.Printf("[dry-run] delete orphan: %s\n", path)
			} else {
				fmt.Printf("deleting orphan: %s\n", path)
				if err := os.Remove(path); err != nil {
					log.Printf("remove failed: %v", err)
				} else {
					deleted++
				}
			}
		}
	}

	if dryRun {
		fmt.Println("[dry-run] done (no changes made)")
	} else {
		fmt.Printf("done: %d generated, %d deleted, %d already complete\n", generated, deleted, skipped)
	}
	return nil
}

// readSessionInformation loads session_information.json from a recording
// directory. ok is false (with a nil error) when the file is simply absent.
// The controller writes the file when a recording starts, so a directory
// without it was not created by a recording session, or that write failed.
func readSessionInformation(dir string) (session.Information, bool, error) {
	data, err := os.ReadFile(filepath.Join(dir, "session_information.json"))
	if os.IsNotExist(err) {
		return session.Information{}, false, nil
	}
	if err != nil {
		return session.Information{}, false, err
	}
	var info session.Information
	if err := json.Unmarshal(data, &info); err != nil {
		return session.Information{}, false, fmt.Errorf("parse session_information.json: %w", err)
	}
	return info, true, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func ffmpegFrame(input, vf, output string) error {
	args := []string{"-i", input}
	if vf != "" {
		args = append(args, "-vf", vf)
	}
	args = append(args, "-frames:v", "1", "-q:v", "2", "-y", output)
	cmd := exec.Command("ffmpeg", args...)
	// Suppress ffmpeg's verbose output; show only on error.
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w\n%s", err, out)
	}
	return nil
}
