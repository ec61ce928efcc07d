package waveset

import (
	"github.com/seismolab/waveset/pkg/core"
)

var (
	ErrNotFound         = core.ErrNotFound
	ErrInvalidInput     = core.ErrInvalidInput
	ErrCorrupt          = core.ErrCorrupt
	ErrTooLarge         = core.ErrTooLarge
	ErrClosed           = core.ErrClosed
	ErrChecksumMismatch = core.ErrChecksumMismatch
	ErrUnknownDataset   = core.ErrUnknownDataset
)
