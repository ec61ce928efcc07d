package manifest

import (
	"testing"

	"github.com/seismolab/waveset/pkg/core"
)

func FuzzManifestDecode(f *testing.F) {
	codec := NewCodec(core.LimitsConfig{
		MaxChunksPerObject: 1000,
		MaxMemberNameLen:   128,
		MaxTags:            10,
		MaxTagKeyLen:       64,
		MaxTagValLen:       256,
	})

	m := &MemberManifest{
		Version: 1,
		Dataset: "SCSN",
		Member:  "samples.wset",
		Length:  10,
		Chunks: []ChunkRef{
			{CID: core.CID{Bytes: []byte("chunkcid12345")}, Len: 10},
		},
	}
	encoded, _ := codec.Encode(m)
	f.Add(encoded)
	f.Add([]byte("garbage input"))
	f.Add([]byte{})
	f.Add([]byte{0xa1, 0x61, 0x76, 0x01})

	f.Fuzz(func(t *testing.T, data []byte) {
		// Untrusted input must never panic the decoder.
		_, _ = codec.Decode(data)
	})
}
