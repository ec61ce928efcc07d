// Package waveset is the public surface of the library. It re-exports the
// dataset types from pkg/dataset and pkg/packaged and the shared errors and
// configuration from pkg/core, so consumers depend on one import path and
// stay decoupled from the internal package layout.
//
// The packaged datasets are additionally exposed through an explicit name
// registry (Names, Open) so callers can enumerate and open them without
// referencing the constructors directly.
package waveset
