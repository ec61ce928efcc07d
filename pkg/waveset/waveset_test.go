package waveset_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/seismolab/waveset/internal/testkit"
	"github.com/seismolab/waveset/pkg/core"
	"github.com/seismolab/waveset/pkg/dataset"
	"github.com/seismolab/waveset/pkg/waveset"
)

func TestNames(t *testing.T) {
	want := []string{
		"Mariana",
		"SCSN",
		"SCSN_polarity",
		"Taiwan20092010",
		"Taiwan_focal_mechanism",
		"Wenchuan",
	}

	got := waveset.Names()
	if len(got) != len(want) {
		t.Fatalf("Names() returned %d entries, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	// The two Taiwan datasets are distinct entries; a run-together name
	// must never appear.
	for _, name := range got {
		if name == "Taiwan_focal_mechanismTaiwan20092010" {
			t.Fatal("Taiwan dataset names are fused into one entry")
		}
	}
}

func TestLookup(t *testing.T) {
	for _, name := range waveset.Names() {
		open, ok := waveset.Lookup(name)
		if !ok {
			t.Errorf("Lookup(%q) missed a registered dataset", name)
		}
		if open == nil {
			t.Errorf("Lookup(%q) returned a nil opener", name)
		}
	}

	if _, ok := waveset.Lookup("NoSuchDataset"); ok {
		t.Error("Lookup returned an opener for an unregistered name")
	}
}

func TestOpenUnknown(t *testing.T) {
	_, err := waveset.Open(context.Background(), "NoSuchDataset", waveset.Config{Dir: t.TempDir()})
	if !errors.Is(err, waveset.ErrUnknownDataset) {
		t.Fatalf("expected ErrUnknownDataset, got %v", err)
	}
}

func TestErrorAliases(t *testing.T) {
	pairs := []struct {
		alias, orig error
	}{
		{waveset.ErrNotFound, core.ErrNotFound},
		{waveset.ErrInvalidInput, core.ErrInvalidInput},
		{waveset.ErrCorrupt, core.ErrCorrupt},
		{waveset.ErrTooLarge, core.ErrTooLarge},
		{waveset.ErrClosed, core.ErrClosed},
		{waveset.ErrChecksumMismatch, core.ErrChecksumMismatch},
		{waveset.ErrUnknownDataset, core.ErrUnknownDataset},
	}
	for _, p := range pairs {
		if !errors.Is(p.alias, p.orig) {
			t.Errorf("re-exported error %v is not the original", p.alias)
		}
	}
}

func TestTypeAliases(t *testing.T) {
	ctx := context.Background()
	r := testkit.RNG(41)

	dir := filepath.Join(t.TempDir(), "quakes")
	samples := testkit.Samples(r, 3, 1, 20, []string{"P"})
	if err := dataset.Create(dir, 1, 20, samples); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// The facade constructor produces a value usable as both alias and
	// original type.
	ds, err := waveset.OpenDataset(dir)
	if err != nil {
		t.Fatalf("OpenDataset failed: %v", err)
	}
	defer ds.Close()

	var viaAlias waveset.BaseDataset = ds
	var viaOrig dataset.BaseDataset = ds
	if viaAlias.Len() != viaOrig.Len() {
		t.Error("alias and original disagree")
	}

	if !waveset.IsDataset(ds) {
		t.Error("IsDataset rejected a Dataset")
	}
	if waveset.IsDataset("not a dataset") {
		t.Error("IsDataset accepted a string")
	}

	s, err := ds.Sample(ctx, 0)
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	var alias waveset.Sample = s
	if alias.Target != "P" {
		t.Errorf("unexpected target %q", alias.Target)
	}
}
