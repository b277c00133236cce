package config

import "testing"

func baseCameras() []CameraConfig {
	return []CameraConfig{
		{CameraID: 0, UseThisCamera: true, Width: 640, Height: 480, Exposure: 0, Framerate: 30},
		{CameraID: 1, UseThisCamera: true, Width: 640, Height: 480, Exposure: 0, Framerate: 30},
	}
}

func TestDiffConfigsNoChange(t *testing.T) {
	old := NewCameraConfigs(baseCameras())
	plan := DiffConfigs(old, old)
	if plan.Kind != PlanNone {
		t.Fatalf("expected PlanNone, got %v", plan.Kind)
	}
}

func TestDiffConfigsExposureIsInPlace(t *testing.T) {
	old := NewCameraConfigs(baseCameras())
	changed := baseCameras()
	changed[0].Exposure = -4
	plan := DiffConfigs(old, NewCameraConfigs(changed))
	if plan.Kind != PlanInPlace {
		t.Fatalf("expected PlanInPlace, got %v", plan.Kind)
	}
	if len(plan.InPlace) != 1 || plan.InPlace[0].CameraID != 0 {
		t.Fatalf("unexpected in-place changes: %+v", plan.InPlace)
	}
	if *plan.InPlace[0].Exposure != -4 {
		t.Fatalf("expected exposure -4, got %v", *plan.InPlace[0].Exposure)
	}
}

func TestDiffConfigsResolutionForcesResetAll(t *testing.T) {
	old := NewCameraConfigs(baseCameras())
	changed := baseCameras()
	changed[1].Height = 720
	plan := DiffConfigs(old, NewCameraConfigs(changed))
	if plan.Kind != PlanResetAll {
		t.Fatalf("expected PlanResetAll, got %v", plan.Kind)
	}
}

func TestDiffConfigsCameraSetChangeForcesResetAll(t *testing.T) {
	old := NewCameraConfigs(baseCameras())
	changed := append(baseCameras(), CameraConfig{CameraID: 2, UseThisCamera: true, Width: 640, Height: 480})
	plan := DiffConfigs(old, NewCameraConfigs(changed))
	if plan.Kind != PlanResetAll {
		t.Fatalf("expected PlanResetAll, got %v", plan.Kind)
	}
}

func TestCameraConfigDefaults(t *testing.T) {
	cc := NewCameraConfigs([]CameraConfig{{CameraID: 0, UseThisCamera: true}})
	c, ok := cc.Get(0)
	if !ok {
		t.Fatal("expected camera 0 to exist")
	}
	if c.ColorChannels != 3 || c.CaptureFourcc != "MJPG" || c.WriterFourcc != "mp4v" || c.Framerate != 30 {
		t.Fatalf("unexpected defaults: %+v", c)
	}
}
