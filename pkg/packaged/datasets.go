package packaged

import (
	"context"

	"github.com/seismolab/waveset/pkg/core"
	"github.com/seismolab/waveset/pkg/fetch"
)

// Pinned descriptors for the bundled datasets. Archive digests are canonical
// CID strings over the whole archive; a downloaded archive that doesn't hash
// to its pin is discarded.
var (
	// WenchuanSpec covers aftershock waveforms of the 2008 Mw 7.9
	// Wenchuan earthquake.
	WenchuanSpec = Spec{
		Name:          "Wenchuan",
		URL:           "https://data.seismolab.org/packaged/wenchuan-v1.tar.bz2",
		ArchiveSize:   7_219_366_912,
		ArchiveDigest: "bafkreib4jak2mvqpyvnkkrica5x4vw5zfsqykogigsdmirzji2q6utlo7u",
		Format:        fetch.FormatTarBz2,
	}

	// MarianaSpec covers deep slab events beneath the Mariana arc.
	MarianaSpec = Spec{
		Name:          "Mariana",
		URL:           "https://data.seismolab.org/packaged/mariana-v1.tar.bz2",
		ArchiveSize:   2_880_438_272,
		ArchiveDigest: "bafkreidvxhs2c3itnoyfjrmz2lt4lsfwr2rrvkx7hejvikuyqyxgcoelgm",
		Format:        fetch.FormatTarBz2,
	}

	// SCSNSpec covers phase-labeled waveforms from the Southern California
	// Seismic Network.
	SCSNSpec = Spec{
		Name:          "SCSN",
		URL:           "https://data.seismolab.org/packaged/scsn-v1.tar.gz",
		ArchiveSize:   11_811_160_064,
		ArchiveDigest: "bafkreigt3ez6jwyexyy5mj77ib26rprzh2bsmvhcfp7tsjhdoyft2rlzbi",
		Format:        fetch.FormatTarGz,
	}

	// SCSNPolaritySpec covers SCSN first-motion polarity picks.
	SCSNPolaritySpec = Spec{
		Name:          "SCSN_polarity",
		URL:           "https://data.seismolab.org/packaged/scsn-polarity-v1.tar.gz",
		ArchiveSize:   4_617_089_024,
		ArchiveDigest: "bafkreihclrqdkxwb3rsuqkyfmt2rzkyyfjblwlmvndg3lczpiyyvbyhf3e",
		Format:        fetch.FormatTarGz,
	}

	// TaiwanFocalMechanismSpec covers focal-mechanism-labeled events from
	// the Taiwan CWB network.
	TaiwanFocalMechanismSpec = Spec{
		Name:          "Taiwan_focal_mechanism",
		URL:           "https://data.seismolab.org/packaged/taiwan-focal-mechanism-v1.tar.bz2",
		ArchiveSize:   1_536_870_912,
		ArchiveDigest: "bafkreietyyjhgllqkpdm4a5ccswhbner53bbihsjvt6rp225l32qajbp44",
		Format:        fetch.FormatTarBz2,
	}

	// Taiwan20092010Spec covers the 2009–2010 Taiwan catalog.
	Taiwan20092010Spec = Spec{
		Name:          "Taiwan20092010",
		URL:           "https://data.seismolab.org/packaged/taiwan-2009-2010-v1.tar.bz2",
		ArchiveSize:   5_268_045_824,
		ArchiveDigest: "bafkreibvs27kncdxvu3fq6zmyvoiqpwlnujhcyqqmazmsmibmvbzyfvfwq",
		Format:        fetch.FormatTarBz2,
	}
)

func OpenWenchuan(ctx context.Context, cfg core.Config) (*PackagedDataset, error) {
	return Open(ctx, WenchuanSpec, cfg)
}

func OpenMariana(ctx context.Context, cfg core.Config) (*PackagedDataset, error) {
	return Open(ctx, MarianaSpec, cfg)
}

func OpenSCSN(ctx context.Context, cfg core.Config) (*PackagedDataset, error) {
	return Open(ctx, SCSNSpec, cfg)
}

func OpenSCSNPolarity(ctx context.Context, cfg core.Config) (*PackagedDataset, error) {
	return Open(ctx, SCSNPolaritySpec, cfg)
}

func OpenTaiwanFocalMechanism(ctx context.Context, cfg core.Config) (*PackagedDataset, error) {
	return Open(ctx, TaiwanFocalMechanismSpec, cfg)
}

func OpenTaiwan20092010(ctx context.Context, cfg core.Config) (*PackagedDataset, error) {
	return Open(ctx, Taiwan20092010Spec, cfg)
}
