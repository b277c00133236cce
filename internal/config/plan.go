package config

import "fmt"

// PlanKind classifies an UpdateInstructions plan (spec §4.5).
type PlanKind int

const (
	// PlanNone means the new configs are identical to the old ones.
	PlanNone PlanKind = iota
	// PlanInPlace means the change can be routed to the CWs without tearing
	// the group down.
	PlanInPlace
	// PlanResetAll means the group must be closed and recreated.
	PlanResetAll
)

func (k PlanKind) String() string {
	switch k {
	case PlanInPlace:
		return "in_place"
	case PlanResetAll:
		return "reset_all"
	default:
		return "none"
	}
}

// InPlaceChange names one camera's hot-appliable field change.
type InPlaceChange struct {
	CameraID  int
	Exposure  *int
	Framerate *float64
	Rotation  *Rotation
	WriterFourcc *string
}

// Plan is the result of diffing an old CameraConfigs against a new one.
type Plan struct {
	Kind      PlanKind
	InPlace   []InPlaceChange
	ResetWhy  string // populated only when Kind == PlanResetAll
}

// DiffConfigs builds an UpdateInstructions plan per spec §4.5: any change to
// the camera-id set, resolution, color_channels, use_this_camera, or
// capture_fourcc forces reset_all; the remaining fields (exposure,
// framerate, rotation, writer_fourcc) are eligible for in-place application.
//
// Grounded in the teacher's config.diffMaps/SaveOverrides recursive
// map-diff (server/config/config.go) — this is the same "compare old vs.
// new field-by-field" shape, specialized to the two-bucket reset/in-place
// split this spec requires instead of a flat override map.
func DiffConfigs(oldCC, newCC CameraConfigs) Plan {
	oldIDs := oldCC.IDs()
	newIDs := newCC.IDs()
	if len(oldIDs) != len(newIDs) {
		return Plan{Kind: PlanResetAll, ResetWhy: "camera set changed"}
	}
	for i, id := range oldIDs {
		if newIDs[i] != id {
			return Plan{Kind: PlanResetAll, ResetWhy: "camera set changed"}
		}
	}

	var changes []InPlaceChange
	for _, id := range oldIDs {
		o, _ := oldCC.Get(id)
		n, _ := newCC.Get(id)

		if o.Width != n.Width || o.Height != n.Height ||
			o.ColorChannels != n.ColorChannels ||
			o.UseThisCamera != n.UseThisCamera ||
			o.CaptureFourcc != n.CaptureFourcc {
			return Plan{Kind: PlanResetAll, ResetWhy: fmt.Sprintf("camera %d resolution/channels/enabled/fourcc changed", id)}
		}

		var ch InPlaceChange
		dirty := false
		if o.Exposure != n.Exposure {
			e := n.Exposure
			ch.Exposure = &e
			dirty = true
		}
		if o.Framerate != n.Framerate {
			f := n.Framerate
			ch.Framerate = &f
			dirty = true
		}
		if o.Rotation != n.Rotation {
			r := n.Rotation
			ch.Rotation = &r
			dirty = true
		}
		if o.WriterFourcc != n.WriterFourcc {
			w := n.WriterFourcc
			ch.WriterFourcc = &w
			dirty = true
		}
		if dirty {
			ch.CameraID = id
			changes = append(changes, ch)
		}
	}

	if len(changes) == 0 {
		return Plan{Kind: PlanNone}
	}
	return Plan{Kind: PlanInPlace, InPlace: changes}
}
