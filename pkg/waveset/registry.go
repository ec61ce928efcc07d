package waveset

import (
	"context"
	"fmt"
	"sort"

	"github.com/seismolab/waveset/pkg/core"
	"github.com/seismolab/waveset/pkg/packaged"
)

// Opener opens one packaged dataset under the given configuration.
type Opener func(ctx context.Context, cfg Config) (*PackagedDataset, error)

// registry enumerates every packaged dataset exposed by the library.
// Registration runs once at package init; a bad entry is a programming
// error and fails loudly rather than leaving a silently partial surface.
//
// The upstream export list fused Taiwan_focal_mechanism and Taiwan20092010
// into one name through a missing list separator; they are deliberately
// distinct entries here, with a test pinning the corrected set.
var registry = map[string]Opener{}

func register(name string, open Opener) {
	if name == "" {
		panic("waveset: registered packaged dataset with empty name")
	}
	if open == nil {
		panic(fmt.Sprintf("waveset: packaged dataset %s registered with nil opener", name))
	}
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("waveset: packaged dataset %s registered twice", name))
	}
	registry[name] = open
}

func init() {
	register(packaged.WenchuanSpec.Name, packaged.OpenWenchuan)
	register(packaged.MarianaSpec.Name, packaged.OpenMariana)
	register(packaged.SCSNSpec.Name, packaged.OpenSCSN)
	register(packaged.SCSNPolaritySpec.Name, packaged.OpenSCSNPolarity)
	register(packaged.TaiwanFocalMechanismSpec.Name, packaged.OpenTaiwanFocalMechanism)
	register(packaged.Taiwan20092010Spec.Name, packaged.OpenTaiwan20092010)
}

// Names returns the registered packaged dataset names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the opener registered under name.
func Lookup(name string) (Opener, bool) {
	open, ok := registry[name]
	return open, ok
}

// Open opens a packaged dataset by its registered name.
func Open(ctx context.Context, name string, cfg Config) (*PackagedDataset, error) {
	open, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownDataset, name)
	}
	return open(ctx, cfg)
}
