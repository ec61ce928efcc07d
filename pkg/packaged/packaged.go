// Package packaged provides the named, bundled datasets: archives fetched
// from fixed URLs, verified against pinned digests, and ingested into the
// local cache store for random-access reads.
package packaged

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	logging "github.com/ipfs/go-log/v2"

	"github.com/seismolab/waveset/pkg/cache"
	"github.com/seismolab/waveset/pkg/core"
	"github.com/seismolab/waveset/pkg/dataset"
	"github.com/seismolab/waveset/pkg/fetch"
	"github.com/seismolab/waveset/pkg/manifest"
)

var log = logging.Logger("waveset/packaged")

// Spec pins down one packaged dataset: where its archive lives and what the
// archive must hash to.
type Spec struct {
	Name          string
	URL           string
	ArchiveSize   uint64 // bytes; zero skips the size check
	ArchiveDigest string // canonical CID string of the archive
	Format        string // fetch.FormatTarGz or fetch.FormatTarBz2
}

func (s Spec) validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: packaged dataset has no name", core.ErrInvalidInput)
	}
	if s.URL == "" {
		return fmt.Errorf("%w: packaged dataset %s has no URL", core.ErrInvalidInput, s.Name)
	}
	return nil
}

// PackagedDataset is a bundled dataset served out of the local cache store.
type PackagedDataset struct {
	*dataset.FileDataset

	spec   Spec
	store  cache.Store
	reader *cache.Reader
}

// Spec returns the descriptor this dataset was opened from.
func (p *PackagedDataset) Spec() Spec {
	return p.spec
}

func (p *PackagedDataset) Close() error {
	err := p.FileDataset.Close()
	p.reader.Close()
	if cerr := p.store.Close(); err == nil {
		err = cerr
	}
	return err
}

// Open returns the packaged dataset described by spec, downloading and
// ingesting its archive on first use. Subsequent opens are served entirely
// from the cache under cfg.Dir.
func Open(ctx context.Context, spec Spec, cfg core.Config) (*PackagedDataset, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}

	store, err := cache.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pd, err := openFromStore(ctx, store, spec)
	if errors.Is(err, core.ErrNotFound) {
		if err := materialize(ctx, store, spec, cfg); err != nil {
			store.Close()
			return nil, err
		}
		pd, err = openFromStore(ctx, store, spec)
	}
	if err != nil {
		store.Close()
		return nil, err
	}

	pd.store = store
	return pd, nil
}

func openFromStore(ctx context.Context, store cache.Store, spec Spec) (*PackagedDataset, error) {
	ref, err := store.Resolve(ctx, core.MemberKey{Dataset: spec.Name, Member: dataset.SamplesFileName})
	if err != nil {
		return nil, err
	}

	reader, info, err := store.OpenAt(ctx, ref)
	if err != nil {
		return nil, err
	}

	file, err := dataset.NewFileDataset(reader, reader.Size())
	if err != nil {
		reader.Close()
		return nil, err
	}

	if l := info.Samples; l != nil && int(l.Count) != file.Len() {
		reader.Close()
		return nil, fmt.Errorf("%w: manifest records %d samples, container holds %d", core.ErrCorrupt, l.Count, file.Len())
	}

	if err := loadTargets(ctx, store, spec, file); err != nil {
		reader.Close()
		return nil, err
	}

	return &PackagedDataset{
		FileDataset: file,
		spec:        spec,
		reader:      reader,
	}, nil
}

func loadTargets(ctx context.Context, store cache.Store, spec Spec, file *dataset.FileDataset) error {
	ref, err := store.Resolve(ctx, core.MemberKey{Dataset: spec.Name, Member: dataset.TargetsFileName})
	if errors.Is(err, core.ErrNotFound) {
		return nil // unlabeled
	}
	if err != nil {
		return err
	}

	rc, _, err := store.Get(ctx, ref)
	if err != nil {
		return err
	}
	defer rc.Close()

	b, err := io.ReadAll(rc)
	if err != nil {
		return err
	}

	targets, err := dataset.DecodeTargets(b)
	if err != nil {
		return err
	}
	return file.SetTargets(targets)
}

// materialize downloads, verifies, extracts, and ingests the archive. The
// cache never sees a partially ingested dataset: ingestion happens member by
// member with the samples container committed last, and openFromStore keys
// off the samples member.
func materialize(ctx context.Context, store cache.Store, spec Spec, cfg core.Config) error {
	log.Infow("materializing packaged dataset", "name", spec.Name, "url", spec.URL)

	tmp, err := os.MkdirTemp(cfg.Dir, "fetch-"+spec.Name+"-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	var client *http.Client
	if cfg.Fetch.Timeout > 0 {
		client = &http.Client{Timeout: cfg.Fetch.Timeout}
	}

	archive := filepath.Join(tmp, "archive")
	if err := fetch.Download(ctx, spec.URL, archive, fetch.Options{
		Client:       client,
		ExpectedSize: spec.ArchiveSize,
		MaxElapsed:   cfg.Fetch.MaxElapsed,
		UserAgent:    cfg.Fetch.UserAgent,
	}); err != nil {
		return err
	}

	if spec.ArchiveDigest != "" {
		if err := fetch.VerifyFile(archive, spec.ArchiveDigest); err != nil {
			return err
		}
	}

	unpacked := filepath.Join(tmp, "unpacked")
	if err := fetch.Extract(ctx, archive, unpacked); err != nil {
		return err
	}

	samplesPath, targetsPath, err := locatePayload(unpacked)
	if err != nil {
		return err
	}

	if targetsPath != "" {
		if err := ingestFile(ctx, store, spec.Name, dataset.TargetsFileName, targetsPath, nil); err != nil {
			return err
		}
	}

	layout, err := sampleLayout(samplesPath)
	if err != nil {
		return err
	}
	return ingestFile(ctx, store, spec.Name, dataset.SamplesFileName, samplesPath, layout)
}

// locatePayload finds the samples container and optional label table in the
// extracted tree. Archives usually nest everything in a top-level directory.
func locatePayload(root string) (samples, targets string, err error) {
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		switch d.Name() {
		case dataset.SamplesFileName:
			samples = path
		case dataset.TargetsFileName:
			targets = path
		}
		return nil
	})
	if err != nil {
		return "", "", err
	}
	if samples == "" {
		return "", "", fmt.Errorf("%w: archive holds no %s", core.ErrCorrupt, dataset.SamplesFileName)
	}
	return samples, targets, nil
}

func sampleLayout(samplesPath string) (*manifest.SampleLayout, error) {
	f, err := os.Open(samplesPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	c, err := dataset.OpenContainer(f, fi.Size())
	if err != nil {
		return nil, err
	}

	hdr := c.Header()
	return &manifest.SampleLayout{
		Count:  hdr.Count,
		Stride: uint32(hdr.Stride()),
		Offset: uint64(c.DataOffset()),
	}, nil
}

func ingestFile(ctx context.Context, store cache.Store, name, member, path string, layout *manifest.SampleLayout) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = store.Put(ctx, core.MemberKey{Dataset: name, Member: member}, f, cache.PutMeta{
		Samples: layout,
	})
	return err
}
