package cache

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/seismolab/waveset/pkg/core"
	"github.com/seismolab/waveset/pkg/manifest"
)

// memberReadCloser streams a cached member sequentially, fetching chunks
// lazily.
type memberReadCloser struct {
	ctx    context.Context
	s      *store
	chunks []manifest.ChunkRef

	currentChunk io.ReadCloser
	chunkIdx     int
}

func (r *memberReadCloser) Read(p []byte) (n int, err error) {
	for {
		if r.currentChunk == nil {
			if r.chunkIdx >= len(r.chunks) {
				return 0, io.EOF
			}

			cRef := r.chunks[r.chunkIdx]
			rc, _, err := r.s.GetChunk(r.ctx, cRef.CID)
			if err != nil {
				return 0, err
			}
			r.currentChunk = rc
		}

		n, err = r.currentChunk.Read(p)
		if err == io.EOF {
			r.currentChunk.Close()
			r.currentChunk = nil
			r.chunkIdx++
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (r *memberReadCloser) Close() error {
	if r.currentChunk != nil {
		return r.currentChunk.Close()
	}
	return nil
}

// Reader is a random-access handle over a cached member. Offsets into the
// member payload are resolved to chunks via the manifest, so reading one
// sample touches only the chunk (usually one) that holds it. The most
// recently fetched chunk is kept decoded, which makes sequential and
// sample-stride access patterns cheap.
//
// Reader is safe for concurrent use.
type Reader struct {
	ctx    context.Context
	s      *store
	chunks []manifest.ChunkRef
	starts []uint64 // starts[i] = byte offset of chunks[i] in the member
	length uint64

	mu       sync.Mutex
	lastIdx  int
	lastData []byte
}

func newReader(ctx context.Context, s *store, m *manifest.MemberManifest) *Reader {
	starts := make([]uint64, len(m.Chunks))
	var off uint64
	for i, c := range m.Chunks {
		starts[i] = off
		off += uint64(c.Len)
	}
	return &Reader{
		ctx:     ctx,
		s:       s,
		chunks:  m.Chunks,
		starts:  starts,
		length:  m.Length,
		lastIdx: -1,
	}
}

// Size returns the member payload length in bytes.
func (r *Reader) Size() int64 {
	return int64(r.length)
}

// ReadAt implements io.ReaderAt over the member payload.
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset", core.ErrInvalidInput)
	}
	if uint64(off) >= r.length {
		return 0, io.EOF
	}

	n := 0
	for n < len(p) && uint64(off) < r.length {
		idx := sort.Search(len(r.starts), func(i int) bool {
			return r.starts[i] > uint64(off)
		}) - 1

		data, err := r.chunkData(idx)
		if err != nil {
			return n, err
		}

		within := uint64(off) - r.starts[idx]
		copied := copy(p[n:], data[within:])
		n += copied
		off += int64(copied)
	}

	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (r *Reader) chunkData(idx int) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if idx == r.lastIdx {
		return r.lastData, nil
	}

	data, err := r.s.chunkBytes(r.ctx, r.chunks[idx].CID)
	if err != nil {
		return nil, err
	}

	r.lastIdx = idx
	r.lastData = data
	return data, nil
}

// Section returns an io.SectionReader over [off, off+n) of the member.
func (r *Reader) Section(off, n int64) *io.SectionReader {
	return io.NewSectionReader(r, off, n)
}

// Close releases the cached chunk. The underlying store stays open.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastIdx = -1
	r.lastData = nil
	return nil
}
