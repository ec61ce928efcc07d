package catalog

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/seismolab/waveset/pkg/core"
)

var (
	PrefixB2P    = []byte("b2p:") // block CID -> pack ID
	PrefixM2R    = []byte("m2r:") // member key -> manifest CID
	PrefixRoots  = []byte("rt:")  // manifest CID -> retention deadline
	memberKeySep = byte(0x00)
)

// Catalog is the embedded KV index for the local dataset cache.
type Catalog interface {
	PackForBlock(ctx context.Context, c core.CID) (uint64, bool, error)
	SetPackForBlock(batch *pebble.Batch, c core.CID, packID uint64) error

	ManifestForMember(ctx context.Context, key core.MemberKey) (core.CID, bool, error)
	SetManifestForMember(batch *pebble.Batch, key core.MemberKey, manifest core.CID) error
	Members(ctx context.Context, dataset string, fn func(member string, manifest core.CID) error) error

	SetRootDeadline(batch *pebble.Batch, manifest core.CID, deadline time.Time) error
	DeleteRoot(batch *pebble.Batch, manifest core.CID) error
	Roots(ctx context.Context, fn func(manifest core.CID, deadline time.Time) error) error

	NewBatch() *pebble.Batch
	Close() error
}

type pebbleCatalog struct {
	db *pebble.DB
}

// Open opens a Pebble-backed catalog in the specified directory.
func Open(dir string) (Catalog, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db: %w", err)
	}
	return &pebbleCatalog{db: db}, nil
}

func (c *pebbleCatalog) Close() error {
	return c.db.Close()
}

func (c *pebbleCatalog) NewBatch() *pebble.Batch {
	return c.db.NewBatch()
}

func (c *pebbleCatalog) PackForBlock(ctx context.Context, id core.CID) (uint64, bool, error) {
	key := append(append([]byte{}, PrefixB2P...), id.Bytes...)
	val, closer, err := c.db.Get(key)
	if err != nil {
		if err == pebble.ErrNotFound {
			return 0, false, nil
		}
		return 0, false, err
	}
	defer closer.Close()

	if len(val) != 8 {
		return 0, false, fmt.Errorf("%w: invalid pack ID length", core.ErrCorrupt)
	}
	return binary.BigEndian.Uint64(val), true, nil
}

func (c *pebbleCatalog) SetPackForBlock(batch *pebble.Batch, id core.CID, packID uint64) error {
	key := append(append([]byte{}, PrefixB2P...), id.Bytes...)
	val := make([]byte, 8)
	binary.BigEndian.PutUint64(val, packID)

	if batch != nil {
		return batch.Set(key, val, nil)
	}
	return c.db.Set(key, val, pebble.Sync)
}

func (c *pebbleCatalog) ManifestForMember(ctx context.Context, key core.MemberKey) (core.CID, bool, error) {
	k, err := encodeMemberKey(key)
	if err != nil {
		return core.CID{}, false, err
	}
	val, closer, err := c.db.Get(k)
	if err != nil {
		if err == pebble.ErrNotFound {
			return core.CID{}, false, nil
		}
		return core.CID{}, false, err
	}
	defer closer.Close()

	res := make([]byte, len(val))
	copy(res, val)
	return core.CID{Bytes: res}, true, nil
}

func (c *pebbleCatalog) SetManifestForMember(batch *pebble.Batch, key core.MemberKey, manifest core.CID) error {
	k, err := encodeMemberKey(key)
	if err != nil {
		return err
	}
	if batch != nil {
		return batch.Set(k, manifest.Bytes, nil)
	}
	return c.db.Set(k, manifest.Bytes, pebble.Sync)
}

// Members iterates every cached member of the given dataset in lexicographic
// member order.
func (c *pebbleCatalog) Members(ctx context.Context, dataset string, fn func(member string, manifest core.CID) error) error {
	if strings.IndexByte(dataset, memberKeySep) >= 0 {
		return fmt.Errorf("%w: dataset name contains NUL", core.ErrInvalidInput)
	}

	lower := append(append([]byte{}, PrefixM2R...), dataset...)
	lower = append(lower, memberKeySep)
	iter, err := c.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: incrementByte(lower),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		member := string(iter.Key()[len(lower):])

		val := iter.Value()
		cidCopy := make([]byte, len(val))
		copy(cidCopy, val)

		if err := fn(member, core.CID{Bytes: cidCopy}); err != nil {
			return err
		}
	}
	return nil
}

// SetRootDeadline registers a retention root. A zero deadline pins the root
// forever (stored as timestamp 0).
func (c *pebbleCatalog) SetRootDeadline(batch *pebble.Batch, manifest core.CID, deadline time.Time) error {
	key := append(append([]byte{}, PrefixRoots...), manifest.Bytes...)
	val := make([]byte, 8)
	if !deadline.IsZero() {
		binary.BigEndian.PutUint64(val, uint64(deadline.Unix()))
	}

	if batch != nil {
		return batch.Set(key, val, nil)
	}
	return c.db.Set(key, val, pebble.Sync)
}

func (c *pebbleCatalog) DeleteRoot(batch *pebble.Batch, manifest core.CID) error {
	key := append(append([]byte{}, PrefixRoots...), manifest.Bytes...)
	if batch != nil {
		return batch.Delete(key, nil)
	}
	return c.db.Delete(key, pebble.Sync)
}

func (c *pebbleCatalog) Roots(ctx context.Context, fn func(manifest core.CID, deadline time.Time) error) error {
	iter, err := c.db.NewIter(&pebble.IterOptions{
		LowerBound: PrefixRoots,
		UpperBound: incrementByte(PrefixRoots),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		mCID := iter.Key()[len(PrefixRoots):]
		cidCopy := make([]byte, len(mCID))
		copy(cidCopy, mCID)

		val := iter.Value()
		if len(val) != 8 {
			continue
		}
		var deadline time.Time
		if ts := int64(binary.BigEndian.Uint64(val)); ts != 0 {
			deadline = time.Unix(ts, 0)
		}

		if err := fn(core.CID{Bytes: cidCopy}, deadline); err != nil {
			return err
		}
	}
	return nil
}

// encodeMemberKey renders m2r:<dataset>\x00<member>. The NUL separator keeps
// dataset names with "/" or ":" in them unambiguous.
func encodeMemberKey(k core.MemberKey) ([]byte, error) {
	if strings.IndexByte(k.Dataset, memberKeySep) >= 0 || strings.IndexByte(k.Member, memberKeySep) >= 0 {
		return nil, fmt.Errorf("%w: member key contains NUL", core.ErrInvalidInput)
	}
	out := append(append([]byte{}, PrefixM2R...), k.Dataset...)
	out = append(out, memberKeySep)
	out = append(out, k.Member...)
	return out, nil
}

func incrementByte(b []byte) []byte {
	res := make([]byte, len(b))
	copy(res, b)
	for i := len(res) - 1; i >= 0; i-- {
		res[i]++
		if res[i] != 0 {
			return res
		}
	}
	return nil
}
