package evict_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/seismolab/waveset/internal/testkit"
	"github.com/seismolab/waveset/pkg/catalog"
	"github.com/seismolab/waveset/pkg/core"
	"github.com/seismolab/waveset/pkg/digest"
	"github.com/seismolab/waveset/pkg/evict"
	"github.com/seismolab/waveset/pkg/manifest"
	"github.com/seismolab/waveset/pkg/pack"
	"github.com/seismolab/waveset/pkg/transform"
)

type evictEnv struct {
	cat       catalog.Catalog
	packs     pack.Manager
	manifests manifest.Codec
	cidHub    digest.Builder
	tr        transform.Transform
}

func newEvictEnv(t *testing.T) *evictEnv {
	t.Helper()
	dir := t.TempDir()

	cat, err := catalog.Open(filepath.Join(dir, "catalog"))
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	t.Cleanup(func() { cat.Close() })

	pm, err := pack.NewManager(core.PackConfig{
		Dir:             filepath.Join(dir, "packs"),
		TargetPackBytes: 1 << 20,
	})
	if err != nil {
		t.Fatalf("failed to open pack manager: %v", err)
	}
	t.Cleanup(func() { pm.Close() })

	return &evictEnv{
		cat:       cat,
		packs:     pm,
		manifests: manifest.NewCodec(core.LimitsConfig{}),
		cidHub:    digest.NewBuilder(),
		tr:        transform.NewNone(),
	}
}

// ingest stores a member made of the given chunk payloads and registers its
// retention root. A zero deadline pins the member forever.
func (e *evictEnv) ingest(t *testing.T, ctx context.Context, dataset, member string, chunks [][]byte, deadline time.Time) core.CID {
	t.Helper()

	batch := e.cat.NewBatch()
	defer batch.Close()

	var refs []manifest.ChunkRef
	var total uint64
	for _, data := range chunks {
		c, err := e.cidHub.BlockCID(data)
		if err != nil {
			t.Fatalf("BlockCID failed: %v", err)
		}
		pid, err := e.packs.PutBlock(ctx, c, data)
		if err != nil {
			t.Fatalf("PutBlock failed: %v", err)
		}
		if err := e.cat.SetPackForBlock(batch, c, pid); err != nil {
			t.Fatalf("SetPackForBlock failed: %v", err)
		}
		refs = append(refs, manifest.ChunkRef{CID: c, Len: uint32(len(data))})
		total += uint64(len(data))
	}

	m := &manifest.MemberManifest{
		Version: 1,
		Dataset: dataset,
		Member:  member,
		Length:  total,
		Chunks:  refs,
	}
	mBytes, err := e.manifests.Encode(m)
	if err != nil {
		t.Fatalf("manifest encode failed: %v", err)
	}
	mCID, err := e.cidHub.ManifestCID(mBytes)
	if err != nil {
		t.Fatalf("ManifestCID failed: %v", err)
	}
	mPID, err := e.packs.PutBlock(ctx, mCID, mBytes)
	if err != nil {
		t.Fatalf("PutBlock failed: %v", err)
	}
	if err := e.cat.SetPackForBlock(batch, mCID, mPID); err != nil {
		t.Fatalf("SetPackForBlock failed: %v", err)
	}
	if err := e.cat.SetManifestForMember(batch, core.MemberKey{Dataset: dataset, Member: member}, mCID); err != nil {
		t.Fatalf("SetManifestForMember failed: %v", err)
	}
	if err := e.cat.SetRootDeadline(batch, mCID, deadline); err != nil {
		t.Fatalf("SetRootDeadline failed: %v", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		t.Fatalf("batch commit failed: %v", err)
	}

	return mCID
}

func (e *evictEnv) readBlock(t *testing.T, ctx context.Context, c core.CID) []byte {
	t.Helper()
	pid, ok, err := e.cat.PackForBlock(ctx, c)
	if err != nil || !ok {
		t.Fatalf("PackForBlock(%x) = %v, %v", c.Bytes, ok, err)
	}
	data, err := e.packs.GetBlock(ctx, pid, c)
	if err != nil {
		t.Fatalf("GetBlock failed: %v", err)
	}
	return data
}

func TestRunOnce(t *testing.T) {
	ctx := context.Background()
	r := testkit.RNG(1)

	t.Run("ExpiredRootSwept", func(t *testing.T) {
		e := newEvictEnv(t)

		// One pack holds only the expired member, another only the pinned
		// one. The first is fully dead after the mark phase and must go.
		expired := e.ingest(t, ctx, "Old", "samples.wset",
			[][]byte{testkit.RandomBytes(r, 512)}, time.Now().Add(-time.Hour))
		if err := e.packs.SealActivePack(ctx); err != nil {
			t.Fatalf("seal failed: %v", err)
		}

		pinnedChunk := testkit.RandomBytes(r, 512)
		pinned := e.ingest(t, ctx, "Keep", "samples.wset",
			[][]byte{pinnedChunk}, time.Time{})
		if err := e.packs.SealActivePack(ctx); err != nil {
			t.Fatalf("seal failed: %v", err)
		}

		runner := evict.NewRunner(core.EvictConfig{}, e.cat, e.packs, e.manifests, e.cidHub, e.tr)
		res, err := runner.RunOnce(ctx)
		if err != nil {
			t.Fatalf("RunOnce failed: %v", err)
		}

		if res.RootsExpired != 1 {
			t.Errorf("expected 1 expired root, got %d", res.RootsExpired)
		}
		if res.PacksSwept != 1 {
			t.Errorf("expected 1 pack swept, got %d", res.PacksSwept)
		}

		// Only the pinned root survives.
		var roots []core.CID
		err = e.cat.Roots(ctx, func(c core.CID, deadline time.Time) error {
			roots = append(roots, c)
			if !deadline.IsZero() {
				t.Errorf("surviving root has a deadline: %v", deadline)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Roots failed: %v", err)
		}
		if len(roots) != 1 || string(roots[0].Bytes) != string(pinned.Bytes) {
			t.Errorf("unexpected surviving roots: %v", roots)
		}

		// The pinned member's payload is still readable.
		c, err := e.cidHub.BlockCID(pinnedChunk)
		if err != nil {
			t.Fatalf("BlockCID failed: %v", err)
		}
		got := e.readBlock(t, ctx, c)
		if string(got) != string(pinnedChunk) {
			t.Error("pinned chunk corrupted after eviction")
		}

		// The expired member's pack is gone.
		if pid, ok, _ := e.cat.PackForBlock(ctx, expired); ok {
			if _, err := e.packs.GetBlock(ctx, pid, expired); err == nil {
				t.Error("expected expired manifest block to be unreadable")
			}
		}
	})

	t.Run("LowUtilizationCompacted", func(t *testing.T) {
		e := newEvictEnv(t)

		// Shared pack: the expired member contributes 4 blocks, the pinned
		// one 2, so only a third of the pack stays live and it compacts.
		e.ingest(t, ctx, "Old", "samples.wset", [][]byte{
			testkit.RandomBytes(r, 512),
			testkit.RandomBytes(r, 512),
			testkit.RandomBytes(r, 512),
		}, time.Now().Add(-time.Hour))

		pinnedChunk := testkit.RandomBytes(r, 512)
		e.ingest(t, ctx, "Keep", "samples.wset", [][]byte{pinnedChunk}, time.Time{})

		if err := e.packs.SealActivePack(ctx); err != nil {
			t.Fatalf("seal failed: %v", err)
		}

		runner := evict.NewRunner(core.EvictConfig{}, e.cat, e.packs, e.manifests, e.cidHub, e.tr)
		res, err := runner.RunOnce(ctx)
		if err != nil {
			t.Fatalf("RunOnce failed: %v", err)
		}

		if res.BlocksMoved != 2 {
			t.Errorf("expected 2 blocks moved, got %d", res.BlocksMoved)
		}
		if res.PacksSwept != 1 {
			t.Errorf("expected 1 pack swept, got %d", res.PacksSwept)
		}

		// The moved chunk reads back from its new pack.
		c, err := e.cidHub.BlockCID(pinnedChunk)
		if err != nil {
			t.Fatalf("BlockCID failed: %v", err)
		}
		got := e.readBlock(t, ctx, c)
		if string(got) != string(pinnedChunk) {
			t.Error("chunk corrupted by compaction")
		}
	})

	t.Run("NothingExpired", func(t *testing.T) {
		e := newEvictEnv(t)

		e.ingest(t, ctx, "Keep", "samples.wset",
			[][]byte{testkit.RandomBytes(r, 512)}, time.Now().Add(time.Hour))
		if err := e.packs.SealActivePack(ctx); err != nil {
			t.Fatalf("seal failed: %v", err)
		}

		runner := evict.NewRunner(core.EvictConfig{}, e.cat, e.packs, e.manifests, e.cidHub, e.tr)
		res, err := runner.RunOnce(ctx)
		if err != nil {
			t.Fatalf("RunOnce failed: %v", err)
		}
		if res.RootsExpired != 0 || res.PacksSwept != 0 || res.BlocksMoved != 0 {
			t.Errorf("expected no-op run, got %+v", res)
		}
	})
}
