package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/seismolab/waveset/pkg/core"
)

// DirDataset serves samples from a directory of single-record waveset files
// (extension .wf), one file per sample, in lexicographic name order. An
// optional targets.cbor in the same directory supplies the labels.
type DirDataset struct {
	PathDataset

	files   []string
	targets []string
	closed  bool
}

// OpenDirDataset scans dir for sample files and the optional label table.
func OpenDirDataset(dir string) (*DirDataset, error) {
	base, err := NewPathDataset(dir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".wf") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)

	var targets []string
	tPath := filepath.Join(dir, TargetsFileName)
	if _, err := os.Stat(tPath); err == nil {
		targets, err = ReadTargets(tPath)
		if err != nil {
			return nil, err
		}
		if len(targets) != len(files) {
			return nil, fmt.Errorf("%w: %d targets for %d sample files", core.ErrCorrupt, len(targets), len(files))
		}
	}

	return &DirDataset{
		PathDataset: base,
		files:       files,
		targets:     targets,
	}, nil
}

func (d *DirDataset) Len() int {
	return len(d.files)
}

func (d *DirDataset) Targets() []string {
	return d.targets
}

func (d *DirDataset) Sample(ctx context.Context, i int) (Sample, error) {
	if d.closed {
		return Sample{}, core.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}
	if i < 0 || i >= len(d.files) {
		return Sample{}, fmt.Errorf("%w: sample %d of %d", core.ErrNotFound, i, len(d.files))
	}

	f, err := os.Open(d.files[i])
	if err != nil {
		return Sample{}, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return Sample{}, err
	}

	c, err := OpenContainer(f, fi.Size())
	if err != nil {
		return Sample{}, fmt.Errorf("sample file %s: %w", filepath.Base(d.files[i]), err)
	}
	if c.Header().Count != 1 {
		return Sample{}, fmt.Errorf("%w: sample file %s holds %d records", core.ErrCorrupt, filepath.Base(d.files[i]), c.Header().Count)
	}

	data, err := c.Record(0)
	if err != nil {
		return Sample{}, err
	}

	s := Sample{
		Data:       data,
		Components: int(c.Header().Components),
		Points:     int(c.Header().Points),
	}
	if i < len(d.targets) {
		s.Target = d.targets[i]
	}
	return s, nil
}

func (d *DirDataset) Close() error {
	d.closed = true
	return nil
}
