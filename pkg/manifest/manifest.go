package manifest

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/seismolab/waveset/pkg/core"
)

// ChunkRef references a chunk by its CID and its plaintext length.
type ChunkRef struct {
	CID core.CID `cbor:"cid"`
	Len uint32   `cbor:"len"`
}

// SampleLayout describes fixed-stride sample records inside a cached member,
// enabling random access to individual waveforms without reading the whole
// payload.
type SampleLayout struct {
	Count  uint32 `cbor:"count"`
	Stride uint32 `cbor:"stride"` // bytes per record
	Offset uint64 `cbor:"offset"` // byte offset of record 0 in the member
}

// MemberManifest is the on-disk format describing one cached dataset member.
type MemberManifest struct {
	Version uint16            `cbor:"version"`
	Dataset string            `cbor:"dataset"`
	Member  string            `cbor:"member"`
	Length  uint64            `cbor:"length"`
	Chunks  []ChunkRef        `cbor:"chunks"`
	Samples *SampleLayout     `cbor:"samples,omitempty"`
	Tags    map[string]string `cbor:"tags,omitempty"`
}

// Codec encodes, decodes, and validates member manifests.
type Codec interface {
	Encode(m *MemberManifest) ([]byte, error)
	Decode(b []byte) (*MemberManifest, error)
}

type codec struct {
	limits  core.LimitsConfig
	encMode cbor.EncMode
}

// NewCodec returns a new Codec implementation.
func NewCodec(limits core.LimitsConfig) Codec {
	// Canonical CBOR so identical manifests produce identical CIDs.
	em, _ := cbor.CanonicalEncOptions().EncMode()
	return &codec{
		limits:  limits,
		encMode: em,
	}
}

func (c *codec) Encode(m *MemberManifest) ([]byte, error) {
	if err := c.validate(m); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidInput, err)
	}

	return c.encMode.Marshal(m)
}

func (c *codec) Decode(b []byte) (*MemberManifest, error) {
	var m MemberManifest
	if err := cbor.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal manifest: %v", core.ErrCorrupt, err)
	}

	if err := c.validate(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrCorrupt, err)
	}

	return &m, nil
}

func (c *codec) validate(m *MemberManifest) error {
	if m.Version != 1 {
		return fmt.Errorf("unsupported manifest version %d", m.Version)
	}

	if m.Dataset == "" {
		return fmt.Errorf("empty dataset name")
	}
	if m.Member == "" {
		return fmt.Errorf("empty member name")
	}
	if c.limits.MaxMemberNameLen > 0 && len(m.Member) > c.limits.MaxMemberNameLen {
		return fmt.Errorf("member name too long: %d > %d", len(m.Member), c.limits.MaxMemberNameLen)
	}

	if c.limits.MaxChunksPerObject > 0 && uint32(len(m.Chunks)) > c.limits.MaxChunksPerObject {
		return fmt.Errorf("too many chunks: %d > %d", len(m.Chunks), c.limits.MaxChunksPerObject)
	}

	var sumLength uint64
	for i, chunk := range m.Chunks {
		if len(chunk.CID.Bytes) == 0 {
			return fmt.Errorf("chunk %d has empty CID", i)
		}
		sumLength += uint64(chunk.Len)
	}

	if sumLength != m.Length {
		return fmt.Errorf("length mismatch: manifest says %d, chunks sum to %d", m.Length, sumLength)
	}

	if m.Length == 0 && len(m.Chunks) > 0 {
		return fmt.Errorf("length is 0 but chunks are present")
	}

	if s := m.Samples; s != nil {
		end := s.Offset + uint64(s.Count)*uint64(s.Stride)
		if end > m.Length {
			return fmt.Errorf("sample layout exceeds member: %d > %d", end, m.Length)
		}
		if s.Count > 0 && s.Stride == 0 {
			return fmt.Errorf("sample layout has records but zero stride")
		}
	}

	if c.limits.MaxTags > 0 && len(m.Tags) > c.limits.MaxTags {
		return fmt.Errorf("too many tags: %d > %d", len(m.Tags), c.limits.MaxTags)
	}

	for k, v := range m.Tags {
		if c.limits.MaxTagKeyLen > 0 && len(k) > c.limits.MaxTagKeyLen {
			return fmt.Errorf("tag key too long: %d > %d", len(k), c.limits.MaxTagKeyLen)
		}
		if c.limits.MaxTagValLen > 0 && len(v) > c.limits.MaxTagValLen {
			return fmt.Errorf("tag value too long: %d > %d", len(v), c.limits.MaxTagValLen)
		}
	}

	return nil
}
