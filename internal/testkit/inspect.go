package testkit

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/seismolab/waveset/pkg/core"
	"github.com/seismolab/waveset/pkg/dataset"
	"github.com/seismolab/waveset/pkg/pack"
)

// CountUniqueBlocks returns the number of unique CIDs stored across all
// sealed packs.
func CountUniqueBlocks(ctx context.Context, pm pack.Manager) (int, error) {
	unique := make(map[string]struct{})
	sealed := pm.ListSealedPacks()

	for _, pid := range sealed {
		err := pm.IteratePackBlocks(ctx, pid, func(c core.CID) error {
			unique[string(c.Bytes)] = struct{}{}
			return nil
		})
		if err != nil {
			return 0, err
		}
	}

	return len(unique), nil
}

// DatasetArchive builds an in-memory tar.gz dataset archive, the shape a
// packaged dataset download unpacks to: a top-level directory holding
// samples.wset and targets.cbor.
func DatasetArchive(name string, samples []dataset.Sample, components, points int) ([]byte, error) {
	var container bytes.Buffer
	wr, err := dataset.NewWriter(&container, dataset.Header{
		Count:      uint32(len(samples)),
		Components: uint16(components),
		Points:     uint32(points),
	})
	if err != nil {
		return nil, err
	}

	targets := make([]string, 0, len(samples))
	for _, s := range samples {
		if err := wr.Append(s.Data); err != nil {
			return nil, err
		}
		targets = append(targets, s.Target)
	}
	if err := wr.Close(); err != nil {
		return nil, err
	}

	targetsBytes, err := dataset.EncodeTargets(targets)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	files := []struct {
		name string
		data []byte
	}{
		{filepath.Join(name, dataset.SamplesFileName), container.Bytes()},
		{filepath.Join(name, dataset.TargetsFileName), targetsBytes},
	}
	for _, f := range files {
		hdr := &tar.Header{
			Name:     f.name,
			Mode:     0644,
			Size:     int64(len(f.data)),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, err
		}
		if _, err := tw.Write(f.data); err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteSampleFile writes one single-record .wf container, as consumed by
// DirDataset.
func WriteSampleFile(path string, rec []float32, components, points int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	wr, err := dataset.NewWriter(f, dataset.Header{
		Count:      1,
		Components: uint16(components),
		Points:     uint32(points),
	})
	if err != nil {
		return err
	}
	if err := wr.Append(rec); err != nil {
		return err
	}
	return wr.Close()
}
