package waveset

import (
	"github.com/seismolab/waveset/pkg/core"
)

type Config = core.Config
type ChunkingConfig = core.ChunkingConfig
type PackConfig = core.PackConfig
type CatalogConfig = core.CatalogConfig
type TransformConfig = core.TransformConfig
type LimitsConfig = core.LimitsConfig
type FetchConfig = core.FetchConfig
type EvictConfig = core.EvictConfig
