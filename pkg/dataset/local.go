package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/seismolab/waveset/pkg/core"
)

// SamplesFileName is the conventional container name inside a Dataset
// directory.
const SamplesFileName = "samples.wset"

// Dataset is the default concrete dataset: a directory holding a
// samples.wset container plus a targets.cbor label table. This is the layout
// packaged datasets materialize into.
type Dataset struct {
	PathDataset

	file *FileDataset
}

// OpenDataset opens the directory layout. An external targets.cbor, when
// present, takes precedence over targets embedded in the container.
func OpenDataset(dir string) (*Dataset, error) {
	base, err := NewPathDataset(dir)
	if err != nil {
		return nil, err
	}

	file, err := OpenFileDataset(filepath.Join(dir, SamplesFileName))
	if err != nil {
		return nil, err
	}

	tPath := filepath.Join(dir, TargetsFileName)
	if _, err := os.Stat(tPath); err == nil {
		targets, err := ReadTargets(tPath)
		if err != nil {
			file.Close()
			return nil, err
		}
		if err := file.SetTargets(targets); err != nil {
			file.Close()
			return nil, err
		}
	}

	return &Dataset{PathDataset: base, file: file}, nil
}

func (d *Dataset) Len() int {
	return d.file.Len()
}

func (d *Dataset) Targets() []string {
	return d.file.Targets()
}

func (d *Dataset) Sample(ctx context.Context, i int) (Sample, error) {
	return d.file.Sample(ctx, i)
}

func (d *Dataset) Close() error {
	return d.file.Close()
}

// Create writes the Dataset directory layout from in-memory samples. All
// samples must share one shape; targets go to the external label table.
func Create(dir string, components, points int, samples []Sample) error {
	if components <= 0 || points <= 0 {
		return fmt.Errorf("%w: invalid shape %dx%d", core.ErrInvalidInput, components, points)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(dir, SamplesFileName))
	if err != nil {
		return err
	}
	defer f.Close()

	wr, err := NewWriter(f, Header{
		Count:      uint32(len(samples)),
		Components: uint16(components),
		Points:     uint32(points),
	})
	if err != nil {
		return err
	}

	targets := make([]string, 0, len(samples))
	for _, s := range samples {
		if err := wr.Append(s.Data); err != nil {
			return err
		}
		targets = append(targets, s.Target)
	}
	if err := wr.Close(); err != nil {
		return err
	}

	return WriteTargets(filepath.Join(dir, TargetsFileName), targets)
}
