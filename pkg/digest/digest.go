package digest

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"github.com/seismolab/waveset/pkg/core"
)

// Builder creates and verifies CIDs for cached blocks and manifests.
type Builder interface {
	BlockCID(plain []byte) (core.CID, error)
	ManifestCID(dagCbor []byte) (core.CID, error)
	Verify(c core.CID, plain []byte) error
}

type builder struct{}

// NewBuilder returns a new CID builder.
func NewBuilder() Builder {
	return &builder{}
}

func (b *builder) BlockCID(plain []byte) (core.CID, error) {
	return b.buildCID(cid.Raw, plain)
}

func (b *builder) ManifestCID(dagCbor []byte) (core.CID, error) {
	return b.buildCID(cid.DagCBOR, dagCbor)
}

func (b *builder) buildCID(codec uint64, data []byte) (core.CID, error) {
	hash, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return core.CID{}, fmt.Errorf("failed to compute multihash: %w", err)
	}

	c := cid.NewCidV1(codec, hash)
	return core.CID{Bytes: c.Bytes()}, nil
}

func (b *builder) Verify(c core.CID, plain []byte) error {
	id, err := cid.Cast(c.Bytes)
	if err != nil {
		return fmt.Errorf("%w: invalid CID bytes: %v", core.ErrCorrupt, err)
	}

	prefix := id.Prefix()
	hash, err := multihash.Sum(plain, prefix.MhType, prefix.MhLength)
	if err != nil {
		return fmt.Errorf("failed to compute multihash for verification: %w", err)
	}

	if !bytes.Equal(id.Hash(), hash) {
		return fmt.Errorf("%w: CID mismatch", core.ErrCorrupt)
	}

	return nil
}

// SumReader hashes an entire stream and returns a raw-codec CIDv1 for it,
// along with the number of bytes read. Used for whole-archive digests where
// the payload does not fit in memory.
func SumReader(r io.Reader) (core.CID, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return core.CID{}, n, fmt.Errorf("failed to hash stream: %w", err)
	}

	mh, err := multihash.Encode(h.Sum(nil), multihash.SHA2_256)
	if err != nil {
		return core.CID{}, n, fmt.Errorf("failed to encode multihash: %w", err)
	}

	c := cid.NewCidV1(cid.Raw, mh)
	return core.CID{Bytes: c.Bytes()}, n, nil
}

// Format renders a CID in its canonical string form (base32, CIDv1).
func Format(c core.CID) (string, error) {
	id, err := cid.Cast(c.Bytes)
	if err != nil {
		return "", fmt.Errorf("%w: invalid CID bytes: %v", core.ErrCorrupt, err)
	}
	return id.String(), nil
}

// Parse decodes a CID string back into binary form.
func Parse(s string) (core.CID, error) {
	id, err := cid.Decode(s)
	if err != nil {
		return core.CID{}, fmt.Errorf("%w: invalid CID string: %v", core.ErrInvalidInput, err)
	}
	return core.CID{Bytes: id.Bytes()}, nil
}
