package sfb

import (
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// WriteDescriptor serializes a GroupDTO to path using CBOR — a compact,
// schema-stable binary format (already a direct dependency elsewhere in the
// retrieved pack) appropriate for a descriptor that is produced and
// consumed by code, never hand-edited.
func WriteDescriptor(path string, d GroupDTO) error {
	data, err := cbor.Marshal(d)
	if err != nil {
		return fmt.Errorf("sfb: marshal descriptor: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// ReadDescriptor reads and decodes a GroupDTO written by WriteDescriptor —
// this is how the Frame Router process discovers the shared-memory names,
// shape, and dtype of a Camera Group Process it did not create (spec §3).
func ReadDescriptor(path string) (GroupDTO, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return GroupDTO{}, fmt.Errorf("sfb: read descriptor: %w", err)
	}
	var d GroupDTO
	if err := cbor.Unmarshal(data, &d); err != nil {
		return GroupDTO{}, fmt.Errorf("sfb: unmarshal descriptor: %w", err)
	}
	return d, nil
}
