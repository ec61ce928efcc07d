package core

import (
	"time"
)

type Config struct {
	Dir string // library root; cache subdirectories default underneath it

	Chunking  ChunkingConfig
	Pack      PackConfig
	Catalog   CatalogConfig
	Transform TransformConfig
	Limits    LimitsConfig
	Fetch     FetchConfig
	Evict     EvictConfig
}

type ChunkingConfig struct {
	Min int
	Avg int
	Max int
}

type PackConfig struct {
	Dir             string
	TargetPackBytes uint64
	MaxPackBytes    uint64
	SealFsync       bool
}

type CatalogConfig struct {
	Dir string
}

type TransformConfig struct {
	Name      string
	ZstdLevel int
}

type LimitsConfig struct {
	MaxMemberBytes     uint64
	MaxChunksPerObject uint32
	MaxMemberNameLen   int
	MaxTags            int
	MaxTagKeyLen       int
	MaxTagValLen       int
}

type FetchConfig struct {
	// Timeout bounds a single download attempt. Zero means no limit.
	Timeout time.Duration
	// MaxElapsed bounds the whole retry loop. Zero uses the backoff default.
	MaxElapsed time.Duration
	UserAgent  string
}

type EvictConfig struct {
	Enabled    bool
	DefaultTTL time.Duration
	RunEvery   time.Duration
}
