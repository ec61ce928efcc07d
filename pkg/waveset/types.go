package waveset

import (
	"github.com/seismolab/waveset/pkg/dataset"
	"github.com/seismolab/waveset/pkg/packaged"
)

// Aliases for the dataset abstractions. These are re-exports, not copies:
// a waveset.Dataset is identical to a dataset.Dataset.
type (
	Sample      = dataset.Sample
	BaseDataset = dataset.BaseDataset
	PathDataset = dataset.PathDataset
	FileDataset = dataset.FileDataset
	DirDataset  = dataset.DirDataset
	Dataset     = dataset.Dataset

	PackagedDataset = packaged.PackagedDataset
	Spec            = packaged.Spec
)

// IsDataset reports whether v implements BaseDataset.
func IsDataset(v any) bool {
	return dataset.IsDataset(v)
}

// Constructors for the generic dataset variants.
var (
	OpenDataset     = dataset.OpenDataset
	OpenFileDataset = dataset.OpenFileDataset
	OpenDirDataset  = dataset.OpenDirDataset

	// CreateDataset writes the Dataset directory layout from in-memory
	// samples.
	CreateDataset = dataset.Create
)
