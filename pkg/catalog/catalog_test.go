package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/seismolab/waveset/pkg/core"
)

func TestCatalog(t *testing.T) {
	cat, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	defer cat.Close()

	ctx := context.Background()

	t.Run("BlockToPack", func(t *testing.T) {
		cid := core.CID{Bytes: []byte("chunk1")}
		packID := uint64(123)

		if err := cat.SetPackForBlock(nil, cid, packID); err != nil {
			t.Fatalf("SetPackForBlock failed: %v", err)
		}

		gotPack, ok, err := cat.PackForBlock(ctx, cid)
		if err != nil {
			t.Fatalf("PackForBlock failed: %v", err)
		}
		if !ok || gotPack != packID {
			t.Errorf("expected %d, got %d (ok=%v)", packID, gotPack, ok)
		}

		_, ok, err = cat.PackForBlock(ctx, core.CID{Bytes: []byte("absent")})
		if err != nil {
			t.Fatalf("PackForBlock failed: %v", err)
		}
		if ok {
			t.Error("expected absent block to be missing")
		}
	})

	t.Run("MemberToManifest", func(t *testing.T) {
		key := core.MemberKey{Dataset: "Wenchuan", Member: "samples.wset"}
		cid := core.CID{Bytes: []byte("manifest1")}

		if err := cat.SetManifestForMember(nil, key, cid); err != nil {
			t.Fatalf("SetManifestForMember failed: %v", err)
		}

		gotCID, ok, err := cat.ManifestForMember(ctx, key)
		if err != nil {
			t.Fatalf("ManifestForMember failed: %v", err)
		}
		if !ok || string(gotCID.Bytes) != string(cid.Bytes) {
			t.Errorf("expected %v, got %v (ok=%v)", cid, gotCID, ok)
		}
	})

	t.Run("MemberKeyNUL", func(t *testing.T) {
		key := core.MemberKey{Dataset: "bad\x00name", Member: "samples.wset"}
		if err := cat.SetManifestForMember(nil, key, core.CID{Bytes: []byte("m")}); err == nil {
			t.Error("expected NUL in dataset name to be rejected")
		}
	})

	t.Run("Members", func(t *testing.T) {
		// Two members for one dataset, one for a sibling dataset that must
		// not leak into the scan.
		for _, k := range []core.MemberKey{
			{Dataset: "SCSN", Member: "samples.wset"},
			{Dataset: "SCSN", Member: "targets.cbor"},
			{Dataset: "SCSN_polarity", Member: "samples.wset"},
		} {
			if err := cat.SetManifestForMember(nil, k, core.CID{Bytes: []byte("m-" + k.Member)}); err != nil {
				t.Fatalf("SetManifestForMember failed: %v", err)
			}
		}

		var got []string
		err := cat.Members(ctx, "SCSN", func(member string, _ core.CID) error {
			got = append(got, member)
			return nil
		})
		if err != nil {
			t.Fatalf("Members failed: %v", err)
		}

		if len(got) != 2 || got[0] != "samples.wset" || got[1] != "targets.cbor" {
			t.Errorf("unexpected members: %v", got)
		}
	})

	t.Run("Roots", func(t *testing.T) {
		cid := core.CID{Bytes: []byte("manifest1")}
		deadline := time.Now().Add(24 * time.Hour).Truncate(time.Second)

		if err := cat.SetRootDeadline(nil, cid, deadline); err != nil {
			t.Fatalf("SetRootDeadline failed: %v", err)
		}

		found := false
		err := cat.Roots(ctx, func(gotCID core.CID, gotDeadline time.Time) error {
			if string(gotCID.Bytes) == string(cid.Bytes) {
				if gotDeadline.Equal(deadline) {
					found = true
				} else {
					t.Errorf("deadline mismatch: expected %v, got %v", deadline, gotDeadline)
				}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Roots failed: %v", err)
		}
		if !found {
			t.Error("root not found during iteration")
		}
	})

	t.Run("PinnedRoot", func(t *testing.T) {
		cid := core.CID{Bytes: []byte("pinned-manifest")}
		if err := cat.SetRootDeadline(nil, cid, time.Time{}); err != nil {
			t.Fatalf("SetRootDeadline failed: %v", err)
		}

		found := false
		err := cat.Roots(ctx, func(gotCID core.CID, gotDeadline time.Time) error {
			if string(gotCID.Bytes) == string(cid.Bytes) {
				found = true
				if !gotDeadline.IsZero() {
					t.Errorf("pinned root came back with deadline %v", gotDeadline)
				}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Roots failed: %v", err)
		}
		if !found {
			t.Error("pinned root not found")
		}
	})

	t.Run("DeleteRoot", func(t *testing.T) {
		cid := core.CID{Bytes: []byte("doomed-manifest")}
		if err := cat.SetRootDeadline(nil, cid, time.Now()); err != nil {
			t.Fatalf("SetRootDeadline failed: %v", err)
		}
		if err := cat.DeleteRoot(nil, cid); err != nil {
			t.Fatalf("DeleteRoot failed: %v", err)
		}

		err := cat.Roots(ctx, func(gotCID core.CID, _ time.Time) error {
			if string(gotCID.Bytes) == string(cid.Bytes) {
				t.Error("deleted root still present")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Roots failed: %v", err)
		}
	})

	t.Run("BatchAtomicity", func(t *testing.T) {
		cid1 := core.CID{Bytes: []byte("batch_chunk1")}
		cid2 := core.CID{Bytes: []byte("batch_chunk2")}
		packID := uint64(999)

		batch := cat.NewBatch()

		_ = cat.SetPackForBlock(batch, cid1, packID)
		_ = cat.SetPackForBlock(batch, cid2, packID)

		_, ok, _ := cat.PackForBlock(ctx, cid1)
		if ok {
			t.Error("expected entry not to be visible before commit")
		}

		batch.Close() // discard without commit

		_, ok, _ = cat.PackForBlock(ctx, cid1)
		if ok {
			t.Error("expected entry not to be visible after discarded batch")
		}

		batch2 := cat.NewBatch()
		_ = cat.SetPackForBlock(batch2, cid1, packID)
		_ = cat.SetPackForBlock(batch2, cid2, packID)
		_ = batch2.Commit(pebble.Sync)
		batch2.Close()

		_, ok1, _ := cat.PackForBlock(ctx, cid1)
		_, ok2, _ := cat.PackForBlock(ctx, cid2)
		if !ok1 || !ok2 {
			t.Error("expected both entries after committed batch")
		}
	})
}
