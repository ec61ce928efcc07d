package dataset

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/seismolab/waveset/pkg/core"
)

// FileDataset serves samples from a single waveset container, either a file
// on disk or any io.ReaderAt (e.g. a cache-backed handle).
type FileDataset struct {
	PathDataset

	c       *Container
	f       *os.File // nil when reader-backed
	targets []string
	closed  bool
}

// OpenFileDataset opens a waveset container file from disk.
func OpenFileDataset(path string) (*FileDataset, error) {
	base, err := NewPathDataset(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset file: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	ds, err := NewFileDataset(f, fi.Size())
	if err != nil {
		f.Close()
		return nil, err
	}

	ds.PathDataset = base
	ds.f = f
	return ds, nil
}

// NewFileDataset opens a waveset container over an arbitrary reader.
// Close does not close ra.
func NewFileDataset(ra io.ReaderAt, size int64) (*FileDataset, error) {
	c, err := OpenContainer(ra, size)
	if err != nil {
		return nil, err
	}

	return &FileDataset{
		c:       c,
		targets: c.Header().Targets,
	}, nil
}

// SetTargets replaces the dataset's labels, e.g. from an external targets
// table. The length must match the record count.
func (d *FileDataset) SetTargets(targets []string) error {
	if len(targets) != 0 && uint32(len(targets)) != d.c.Header().Count {
		return fmt.Errorf("%w: %d targets for %d records", core.ErrInvalidInput, len(targets), d.c.Header().Count)
	}
	d.targets = targets
	return nil
}

func (d *FileDataset) Len() int {
	return int(d.c.Header().Count)
}

func (d *FileDataset) Targets() []string {
	return d.targets
}

func (d *FileDataset) Sample(ctx context.Context, i int) (Sample, error) {
	if d.closed {
		return Sample{}, core.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}

	data, err := d.c.Record(i)
	if err != nil {
		return Sample{}, err
	}

	hdr := d.c.Header()
	s := Sample{
		Data:       data,
		Components: int(hdr.Components),
		Points:     int(hdr.Points),
	}
	if i < len(d.targets) {
		s.Target = d.targets[i]
	}
	return s, nil
}

func (d *FileDataset) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if d.f != nil {
		return d.f.Close()
	}
	return nil
}
