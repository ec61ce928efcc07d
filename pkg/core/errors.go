package core

import (
	"errors"
)

var (
	ErrNotFound         = errors.New("waveset: not found")
	ErrInvalidInput     = errors.New("waveset: invalid input")
	ErrCorrupt          = errors.New("waveset: corrupt data")
	ErrTooLarge         = errors.New("waveset: too large")
	ErrClosed           = errors.New("waveset: closed")
	ErrChecksumMismatch = errors.New("waveset: checksum mismatch")
	ErrUnknownDataset   = errors.New("waveset: unknown dataset")
)
