package dataset

import (
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/seismolab/waveset/pkg/core"
)

// TargetsFileName is the conventional name of the external label table
// stored next to (or instead of) embedded container targets.
const TargetsFileName = "targets.cbor"

// ReadTargets loads a CBOR label table from disk.
func ReadTargets(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeTargets(b)
}

// DecodeTargets parses a CBOR-encoded label table.
func DecodeTargets(b []byte) ([]string, error) {
	var targets []string
	if err := cbor.Unmarshal(b, &targets); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal targets: %v", core.ErrCorrupt, err)
	}
	return targets, nil
}

// EncodeTargets renders a label table as CBOR.
func EncodeTargets(targets []string) ([]byte, error) {
	return cbor.Marshal(targets)
}

// WriteTargets writes a CBOR label table to disk.
func WriteTargets(path string, targets []string) error {
	b, err := EncodeTargets(targets)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}
