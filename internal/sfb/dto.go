package sfb

// CameraBufferDTO is the cross-process descriptor for one camera's shared
// memory regions: names, shape, and implicit dtype (image bytes are always
// uint8, spec §3/§4.3).
type CameraBufferDTO struct {
	CameraID  int    `cbor:"camera_id"`
	ImageName string `cbor:"image_name"`
	MetaName  string `cbor:"meta_name"`
	Height    int    `cbor:"height"`
	Width     int    `cbor:"width"`
	Channels  int    `cbor:"channels"`
}

// GroupDTO is the full CameraGroupSharedMemory descriptor the Camera Group
// Process hands to a Frame Router in another process (spec §3 Lifecycles,
// §9 one-way ownership with DTOs). It is serialized with
// github.com/fxamacker/cbor/v2 for the file the CGP writes and the FR reads
// (see internal/sfb.WriteDescriptor / ReadDescriptor).
type GroupDTO struct {
	Session     string            `cbor:"session"`
	Dir         string            `cbor:"dir"`
	Cameras     []CameraBufferDTO `cbor:"cameras"`
	CounterPath string            `cbor:"counter_path"`
}

// Group is the aggregate CameraGroupSharedMemory: one Buffer per camera,
// lifecycle-owned by the Camera Group Process (spec §3 Ownership).
type Group struct {
	Session string
	Dir     string
	buffers map[int]*Buffer
	order   []int
}

// newGroupFromBuffers wraps already created or attached per-camera buffers
// into a Group, keeping order as the camera iteration order.
func newGroupFromBuffers(session, dir string, order []int, buffers map[int]*Buffer) *Group {
	return &Group{Session: session, Dir: dir, buffers: buffers, order: order}
}

// CreateGroup allocates the SFB for every camera in order, as the owning
// CGP does at connect time. order is expected to come from an ordered
// CameraConfigs.IDs() so orchestrator iteration stays deterministic
// (spec §3).
func CreateGroup(dir, session string, order []int, shapes map[int][3]int) (*Group, error) {
	buffers := make(map[int]*Buffer, len(order))
	for _, id := range order {
		shape := shapes[id]
		buf, err := Create(dir, session, id, shape[0], shape[1], shape[2])
		if err != nil {
			for _, b := range buffers {
				b.Close()
				b.Unlink()
			}
			return nil, err
		}
		buffers[id] = buf
	}
	return newGroupFromBuffers(session, dir, order, buffers), nil
}

// AttachGroup reconstructs a read-only Group from a GroupDTO, as the Frame
// Router does in its own process (spec §3).
func AttachGroup(d GroupDTO) (*Group, error) {
	buffers := make(map[int]*Buffer, len(d.Cameras))
	order := make([]int, 0, len(d.Cameras))
	for _, cd := range d.Cameras {
		buf, err := Attach(d.Dir, cd)
		if err != nil {
			for _, b := range buffers {
				b.Close()
			}
			return nil, err
		}
		buffers[cd.CameraID] = buf
		order = append(order, cd.CameraID)
	}
	return newGroupFromBuffers(d.Session, d.Dir, order, buffers), nil
}

// Buffer returns the per-camera Buffer for id.
func (g *Group) Buffer(id int) (*Buffer, bool) {
	b, ok := g.buffers[id]
	return b, ok
}

// IDs returns the camera IDs in this group's order.
func (g *Group) IDs() []int {
	out := make([]int, len(g.order))
	copy(out, g.order)
	return out
}

// DTO builds the cross-process descriptor for this group.
func (g *Group) DTO() GroupDTO {
	cams := make([]CameraBufferDTO, 0, len(g.order))
	for _, id := range g.order {
		cams = append(cams, g.buffers[id].DTO())
	}
	return GroupDTO{Session: g.Session, Dir: g.Dir, Cameras: cams}
}

// Close detaches every buffer's mappings in the group.
func (g *Group) Close() error {
	var firstErr error
	for _, id := range g.order {
		if err := g.buffers[id].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Unlink removes every buffer's OS-level shared-memory names. Only the
// owning group (the one CreateGroup built) may call this;
// calling it on an attached group returns an error from each Buffer.Unlink.
func (g *Group) Unlink() error {
	var firstErr error
	for _, id := range g.order {
		if err := g.buffers[id].Unlink(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
