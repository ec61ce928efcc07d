package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/seismolab/waveset/pkg/catalog"
	"github.com/seismolab/waveset/pkg/chunker"
	"github.com/seismolab/waveset/pkg/core"
	"github.com/seismolab/waveset/pkg/digest"
	"github.com/seismolab/waveset/pkg/evict"
	"github.com/seismolab/waveset/pkg/manifest"
	"github.com/seismolab/waveset/pkg/pack"
	"github.com/seismolab/waveset/pkg/transform"
)

var log = logging.Logger("waveset/cache")

// PutMeta carries metadata and retention settings for an ingested member.
type PutMeta struct {
	// Samples, when set, records the fixed-stride sample layout of the
	// member so datasets can address individual records.
	Samples *manifest.SampleLayout
	Tags    map[string]string

	// Retention override:
	// - If Deadline != nil: use exactly that deadline.
	// - Else if TTL != nil: deadline = now + *TTL.
	// - Else if cfg.Evict.DefaultTTL > 0: deadline = now + cfg.Evict.DefaultTTL.
	// - Else: the member is never evicted.
	Deadline *time.Time
	TTL      *time.Duration
}

// Info describes a retrieved member.
type Info struct {
	Length  uint64
	Samples *manifest.SampleLayout
}

// Stat summarizes a cached member.
type Stat struct {
	Length     uint64
	ChunkCount uint32
}

// Store is the local content-addressed cache holding downloaded dataset
// payloads: chunked, compressed, packed into CAR files, and indexed in the
// catalog.
type Store interface {
	Put(ctx context.Context, key core.MemberKey, r io.Reader, meta PutMeta) (core.Ref, error)
	Resolve(ctx context.Context, key core.MemberKey) (core.Ref, error)
	Get(ctx context.Context, ref core.Ref) (io.ReadCloser, Info, error)

	// OpenAt returns a random-access handle over the member payload.
	OpenAt(ctx context.Context, ref core.Ref) (*Reader, Info, error)

	Members(ctx context.Context, dataset string, fn func(member string, ref core.Ref) error) error

	HasChunk(ctx context.Context, c core.CID) (bool, error)
	GetChunk(ctx context.Context, c core.CID) (io.ReadCloser, uint32, error)

	Stat(ctx context.Context, ref core.Ref) (Stat, error)
	EvictNow(ctx context.Context) (evict.Result, error)
	Close() error
}

type store struct {
	cfg core.Config

	chunker   chunker.Chunker
	cidHub    digest.Builder
	manifests manifest.Codec
	packs     pack.Manager
	catalog   catalog.Catalog
	transform transform.Transform
	evictor   evict.Runner

	putMu sync.Mutex // single-writer invariant
}

// Open initializes and opens the cache store under cfg.Dir.
func Open(ctx context.Context, cfg core.Config) (Store, error) {
	cacheDir := filepath.Join(cfg.Dir, "cache")
	if cfg.Pack.Dir == "" {
		cfg.Pack.Dir = filepath.Join(cacheDir, "packs")
	}
	if cfg.Catalog.Dir == "" {
		cfg.Catalog.Dir = filepath.Join(cacheDir, "catalog")
	}
	if cfg.Pack.TargetPackBytes == 0 {
		cfg.Pack.TargetPackBytes = 512 << 20
	}
	if cfg.Chunking.Min == 0 {
		cfg.Chunking.Min = 64 << 10
	}
	if cfg.Chunking.Avg == 0 {
		cfg.Chunking.Avg = 256 << 10
	}
	if cfg.Chunking.Max == 0 {
		cfg.Chunking.Max = 1 << 20
	}

	cat, err := catalog.Open(cfg.Catalog.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	pm, err := pack.NewManager(cfg.Pack)
	if err != nil {
		cat.Close()
		return nil, fmt.Errorf("failed to open pack manager: %w", err)
	}

	var tr transform.Transform
	switch cfg.Transform.Name {
	case "zstd", "":
		level := cfg.Transform.ZstdLevel
		if level == 0 {
			level = 3
		}
		tr = transform.NewZstd(level)
	case "none":
		tr = transform.NewNone()
	default:
		cat.Close()
		pm.Close()
		return nil, fmt.Errorf("unsupported transform: %s", cfg.Transform.Name)
	}

	s := &store{
		cfg:       cfg,
		chunker:   chunker.New(chunker.Config{Min: cfg.Chunking.Min, Avg: cfg.Chunking.Avg, Max: cfg.Chunking.Max}),
		cidHub:    digest.NewBuilder(),
		manifests: manifest.NewCodec(cfg.Limits),
		packs:     pm,
		catalog:   cat,
		transform: tr,
	}

	s.evictor = evict.NewRunner(cfg.Evict, cat, pm, s.manifests, s.cidHub, tr)
	if cfg.Evict.Enabled {
		s.evictor.Start(ctx)
	}

	return s, nil
}

func (s *store) Close() error {
	s.evictor.Stop()
	err1 := s.catalog.Close()
	err2 := s.packs.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *store) Put(ctx context.Context, key core.MemberKey, in io.Reader, meta PutMeta) (core.Ref, error) {
	if meta.Deadline != nil && meta.TTL != nil {
		return core.Ref{}, core.ErrInvalidInput
	}

	s.putMu.Lock()
	defer s.putMu.Unlock()

	chunks, errs := s.chunker.Split(ctx, in)

	var chunkRefs []manifest.ChunkRef
	var totalLen uint64

	batch := s.catalog.NewBatch()
	defer batch.Close()

	// Drain the chunks channel fully before reading errs. A select over
	// both channels can skip the final chunk when both close together.
	for c := range chunks {
		if ctx.Err() != nil {
			s.chunker.ReturnBuffer(c.Buf)
			return core.Ref{}, ctx.Err()
		}

		cid, err := s.cidHub.BlockCID(c.Buf[:c.N])
		if err != nil {
			s.chunker.ReturnBuffer(c.Buf)
			return core.Ref{}, err
		}

		_, exists, err := s.catalog.PackForBlock(ctx, cid)
		if err != nil {
			s.chunker.ReturnBuffer(c.Buf)
			return core.Ref{}, err
		}

		if !exists {
			stored, err := s.transform.Encode(c.Buf[:c.N])
			if err != nil {
				s.chunker.ReturnBuffer(c.Buf)
				return core.Ref{}, err
			}

			packID, err := s.packs.PutBlock(ctx, cid, stored)
			if err != nil {
				s.chunker.ReturnBuffer(c.Buf)
				return core.Ref{}, err
			}

			if err := s.catalog.SetPackForBlock(batch, cid, packID); err != nil {
				s.chunker.ReturnBuffer(c.Buf)
				return core.Ref{}, err
			}
		}

		chunkRefs = append(chunkRefs, manifest.ChunkRef{
			CID: cid,
			Len: uint32(c.N),
		})
		totalLen += uint64(c.N)

		s.chunker.ReturnBuffer(c.Buf)
	}

	if err, ok := <-errs; ok && err != nil {
		return core.Ref{}, err
	}

	if s.cfg.Limits.MaxMemberBytes > 0 && totalLen > s.cfg.Limits.MaxMemberBytes {
		return core.Ref{}, fmt.Errorf("%w: member is %d bytes", core.ErrTooLarge, totalLen)
	}

	m := &manifest.MemberManifest{
		Version: 1,
		Dataset: key.Dataset,
		Member:  key.Member,
		Length:  totalLen,
		Chunks:  chunkRefs,
		Samples: meta.Samples,
		Tags:    meta.Tags,
	}

	mBytes, err := s.manifests.Encode(m)
	if err != nil {
		return core.Ref{}, err
	}

	mCID, err := s.cidHub.ManifestCID(mBytes)
	if err != nil {
		return core.Ref{}, err
	}

	mStored, err := s.transform.Encode(mBytes)
	if err != nil {
		return core.Ref{}, err
	}

	mPackID, err := s.packs.PutBlock(ctx, mCID, mStored)
	if err != nil {
		return core.Ref{}, err
	}

	if err := s.catalog.SetPackForBlock(batch, mCID, mPackID); err != nil {
		return core.Ref{}, err
	}

	if err := s.catalog.SetManifestForMember(batch, key, mCID); err != nil {
		return core.Ref{}, err
	}

	// A root entry is always written: eviction treats unrooted blocks as
	// garbage, so a zero deadline (pinned forever) still needs its root.
	if err := s.catalog.SetRootDeadline(batch, mCID, s.computeDeadline(meta)); err != nil {
		return core.Ref{}, err
	}

	if err := batch.Commit(nil); err != nil {
		return core.Ref{}, err
	}

	_ = s.packs.SealAndRotateIfNeeded(ctx)

	log.Debugw("cached member", "dataset", key.Dataset, "member", key.Member, "bytes", totalLen, "chunks", len(chunkRefs))

	return core.Ref{ManifestCID: mCID}, nil
}

func (s *store) computeDeadline(meta PutMeta) time.Time {
	if meta.Deadline != nil {
		return *meta.Deadline
	}
	if meta.TTL != nil {
		return time.Now().Add(*meta.TTL)
	}
	if s.cfg.Evict.DefaultTTL > 0 {
		return time.Now().Add(s.cfg.Evict.DefaultTTL)
	}
	return time.Time{}
}

func (s *store) Resolve(ctx context.Context, key core.MemberKey) (core.Ref, error) {
	cid, ok, err := s.catalog.ManifestForMember(ctx, key)
	if err != nil {
		return core.Ref{}, err
	}
	if !ok {
		return core.Ref{}, fmt.Errorf("%w: %s/%s", core.ErrNotFound, key.Dataset, key.Member)
	}
	return core.Ref{ManifestCID: cid}, nil
}

func (s *store) Members(ctx context.Context, dataset string, fn func(member string, ref core.Ref) error) error {
	return s.catalog.Members(ctx, dataset, func(member string, mCID core.CID) error {
		return fn(member, core.Ref{ManifestCID: mCID})
	})
}

func (s *store) loadManifest(ctx context.Context, ref core.Ref) (*manifest.MemberManifest, error) {
	packID, ok, err := s.catalog.PackForBlock(ctx, ref.ManifestCID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, core.ErrNotFound
	}

	mStored, err := s.packs.GetBlock(ctx, packID, ref.ManifestCID)
	if err != nil {
		return nil, err
	}

	mBytes, err := s.transform.Decode(mStored)
	if err != nil {
		return nil, err
	}

	if err := s.cidHub.Verify(ref.ManifestCID, mBytes); err != nil {
		return nil, err
	}

	return s.manifests.Decode(mBytes)
}

func (s *store) Get(ctx context.Context, ref core.Ref) (io.ReadCloser, Info, error) {
	m, err := s.loadManifest(ctx, ref)
	if err != nil {
		return nil, Info{}, err
	}

	r := &memberReadCloser{
		ctx:    ctx,
		s:      s,
		chunks: m.Chunks,
	}

	return r, Info{Length: m.Length, Samples: m.Samples}, nil
}

func (s *store) OpenAt(ctx context.Context, ref core.Ref) (*Reader, Info, error) {
	m, err := s.loadManifest(ctx, ref)
	if err != nil {
		return nil, Info{}, err
	}

	return newReader(ctx, s, m), Info{Length: m.Length, Samples: m.Samples}, nil
}

func (s *store) HasChunk(ctx context.Context, c core.CID) (bool, error) {
	_, ok, err := s.catalog.PackForBlock(ctx, c)
	return ok, err
}

func (s *store) GetChunk(ctx context.Context, c core.CID) (io.ReadCloser, uint32, error) {
	plain, err := s.chunkBytes(ctx, c)
	if err != nil {
		return nil, 0, err
	}
	return io.NopCloser(bytes.NewReader(plain)), uint32(len(plain)), nil
}

func (s *store) chunkBytes(ctx context.Context, c core.CID) ([]byte, error) {
	packID, ok, err := s.catalog.PackForBlock(ctx, c)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, core.ErrNotFound
	}

	stored, err := s.packs.GetBlock(ctx, packID, c)
	if err != nil {
		return nil, err
	}

	plain, err := s.transform.Decode(stored)
	if err != nil {
		return nil, err
	}

	if err := s.cidHub.Verify(c, plain); err != nil {
		return nil, err
	}

	return plain, nil
}

func (s *store) Stat(ctx context.Context, ref core.Ref) (Stat, error) {
	m, err := s.loadManifest(ctx, ref)
	if err != nil {
		return Stat{}, err
	}

	return Stat{
		Length:     m.Length,
		ChunkCount: uint32(len(m.Chunks)),
	}, nil
}

func (s *store) EvictNow(ctx context.Context) (evict.Result, error) {
	return s.evictor.RunOnce(ctx)
}
