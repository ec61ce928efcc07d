package evict

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	logging "github.com/ipfs/go-log/v2"

	"github.com/seismolab/waveset/pkg/catalog"
	"github.com/seismolab/waveset/pkg/core"
	"github.com/seismolab/waveset/pkg/digest"
	"github.com/seismolab/waveset/pkg/manifest"
	"github.com/seismolab/waveset/pkg/pack"
	"github.com/seismolab/waveset/pkg/transform"
)

var log = logging.Logger("waveset/evict")

// Result contains statistics from an eviction run.
type Result struct {
	RootsExpired   int
	PacksSwept     int
	BlocksMoved    int
	BytesReclaimed uint64
}

// Runner expires cached dataset members past their retention deadline and
// reclaims the pack space their blocks occupied.
type Runner interface {
	RunOnce(ctx context.Context) (Result, error)
	Start(ctx context.Context)
	Stop()
}

type runner struct {
	cfg       core.EvictConfig
	cat       catalog.Catalog
	packs     pack.Manager
	manifests manifest.Codec
	cidHub    digest.Builder
	tr        transform.Transform

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewRunner creates an eviction runner over the given cache components.
func NewRunner(
	cfg core.EvictConfig,
	cat catalog.Catalog,
	packs pack.Manager,
	manifests manifest.Codec,
	cidHub digest.Builder,
	tr transform.Transform,
) Runner {
	if cfg.RunEvery == 0 {
		cfg.RunEvery = 24 * time.Hour
	}
	return &runner{
		cfg:       cfg,
		cat:       cat,
		packs:     packs,
		manifests: manifests,
		cidHub:    cidHub,
		tr:        tr,
		stopCh:    make(chan struct{}),
	}
}

func (r *runner) RunOnce(ctx context.Context) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res Result

	// 1. Mark: collect live blocks, dropping expired roots along the way.
	liveBlocks, expired, err := r.mark(ctx)
	if err != nil {
		return res, fmt.Errorf("mark phase failed: %w", err)
	}
	res.RootsExpired = expired

	// 2. Group live blocks by owning pack.
	liveByPack := make(map[uint64][]core.CID)
	for cStr := range liveBlocks {
		c := core.CID{Bytes: []byte(cStr)}
		pid, ok, err := r.cat.PackForBlock(ctx, c)
		if err != nil {
			return res, err
		}
		if ok {
			liveByPack[pid] = append(liveByPack[pid], c)
		}
	}

	sealedPacks := r.packs.ListSealedPacks()
	var toCompact []uint64
	var toSweep []uint64

	for _, pid := range sealedPacks {
		liveCIDs := liveByPack[pid]

		totalCount := 0
		_ = r.packs.IteratePackBlocks(ctx, pid, func(c core.CID) error {
			totalCount++
			return nil
		})

		switch {
		case totalCount == 0 || len(liveCIDs) == 0:
			toSweep = append(toSweep, pid)
		case float64(len(liveCIDs))/float64(totalCount) < 0.5:
			toCompact = append(toCompact, pid)
		}
	}

	// 3. Compact low-utilization packs by moving their live blocks forward.
	for _, pid := range toCompact {
		moved, err := r.compactPack(ctx, pid, liveByPack[pid])
		if err != nil {
			return res, fmt.Errorf("compaction failed for pack %d: %w", pid, err)
		}
		res.BlocksMoved += moved
		toSweep = append(toSweep, pid)
	}

	// 4. Seal the active pack so the moved blocks are visible on disk.
	if res.BlocksMoved > 0 {
		_ = r.packs.SealActivePack(ctx)
	}

	// 5. Sweep.
	for _, pid := range toSweep {
		if err := r.packs.RemovePack(pid); err == nil {
			res.PacksSwept++
		}
	}

	log.Debugw("eviction run complete",
		"rootsExpired", res.RootsExpired,
		"packsSwept", res.PacksSwept,
		"blocksMoved", res.BlocksMoved)

	return res, nil
}

// mark walks the retention roots. Roots past their deadline are deleted and
// not marked; everything reachable from a live root (the manifest block and
// its chunks) is marked live.
func (r *runner) mark(ctx context.Context) (map[string]struct{}, int, error) {
	live := make(map[string]struct{})
	expired := 0

	batch := r.cat.NewBatch()
	defer batch.Close()

	err := r.cat.Roots(ctx, func(mCID core.CID, deadline time.Time) error {
		if !deadline.IsZero() && time.Now().After(deadline) {
			expired++
			return r.cat.DeleteRoot(batch, mCID)
		}

		live[string(mCID.Bytes)] = struct{}{}

		pid, ok, err := r.cat.PackForBlock(ctx, mCID)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		mStored, err := r.packs.GetBlock(ctx, pid, mCID)
		if err != nil {
			return err
		}

		mBytes, err := r.tr.Decode(mStored)
		if err != nil {
			return err
		}

		m, err := r.manifests.Decode(mBytes)
		if err != nil {
			return err
		}

		for _, chunk := range m.Chunks {
			live[string(chunk.CID.Bytes)] = struct{}{}
		}

		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return nil, 0, err
	}

	return live, expired, nil
}

func (r *runner) compactPack(ctx context.Context, packID uint64, toMove []core.CID) (int, error) {
	var moved int
	batch := r.cat.NewBatch()
	defer batch.Close()

	for _, c := range toMove {
		stored, err := r.packs.GetBlock(ctx, packID, c)
		if err != nil {
			log.Warnw("skipping unreadable block during compaction", "pack", packID, "err", err)
			continue
		}

		newPackID, err := r.packs.PutBlock(ctx, c, stored)
		if err != nil {
			return moved, err
		}

		if err := r.cat.SetPackForBlock(batch, c, newPackID); err != nil {
			return moved, err
		}
		moved++
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return moved, err
	}

	// Rotate so a reopen sees the moved blocks in a sealed pack.
	if moved > 0 {
		_ = r.packs.SealAndRotateIfNeeded(ctx)
	}

	return moved, nil
}

func (r *runner) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running || !r.cfg.Enabled {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	go func() {
		ticker := time.NewTicker(r.cfg.RunEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			case <-ticker.C:
				_, _ = r.RunOnce(ctx)
			}
		}
	}()
}

func (r *runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		r.running = false
		close(r.stopCh)
	}
}
