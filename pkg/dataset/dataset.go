// Package dataset defines the waveform dataset abstractions: a common
// BaseDataset capability, generic path/file/directory-backed variants, and
// the default Dataset layout that packaged datasets materialize into.
package dataset

import (
	"context"
	"fmt"
	"os"

	"github.com/seismolab/waveset/pkg/core"
)

// Sample is one waveform record with its target label. Data holds
// Components × Points float32 values in component-major order.
type Sample struct {
	Data       []float32
	Components int
	Points     int
	Target     string
}

// BaseDataset is the capability shared by all dataset variants.
type BaseDataset interface {
	// Len returns the number of samples.
	Len() int
	// Sample returns the i-th waveform record.
	Sample(ctx context.Context, i int) (Sample, error)
	// Targets returns the label of every sample, in index order. May be
	// empty for unlabeled datasets.
	Targets() []string
	Close() error
}

// IsDataset reports whether v implements BaseDataset.
func IsDataset(v any) bool {
	_, ok := v.(BaseDataset)
	return ok
}

// PathDataset is the embeddable base for datasets keyed by a filesystem
// path. Construction verifies the path exists.
type PathDataset struct {
	root string
}

func NewPathDataset(path string) (PathDataset, error) {
	if _, err := os.Stat(path); err != nil {
		return PathDataset{}, fmt.Errorf("%w: %s: %v", core.ErrNotFound, path, err)
	}
	return PathDataset{root: path}, nil
}

// Root returns the filesystem path the dataset is keyed by. Empty for
// datasets backed by a reader rather than a path.
func (p PathDataset) Root() string {
	return p.root
}
