package chunker

import (
	"context"
	"io"
	"sync"

	"github.com/jotfs/fastcdc-go"
)

// Chunk is a single content-defined chunk of an ingested payload.
type Chunk struct {
	Buf []byte // owned by the chunker; consumer returns it via ReturnBuffer
	N   int
}

// Config defines the chunking parameters. Avg should be half of Max.
type Config struct {
	Min int
	Avg int
	Max int
}

// Chunker splits an io.Reader into content-defined chunks so that
// near-identical payloads (e.g. re-downloaded dataset archives) share
// most of their blocks.
type Chunker interface {
	Split(ctx context.Context, r io.Reader) (<-chan Chunk, <-chan error)
	// ReturnBuffer returns a chunk buffer to the internal pool for reuse.
	ReturnBuffer(buf []byte)
}

type cdcChunker struct {
	cfg  Config
	pool sync.Pool
}

// New returns a FastCDC-backed Chunker.
func New(cfg Config) Chunker {
	return &cdcChunker{
		cfg: cfg,
		pool: sync.Pool{
			New: func() interface{} {
				return make([]byte, cfg.Max)
			},
		},
	}
}

func (c *cdcChunker) Split(ctx context.Context, r io.Reader) (<-chan Chunk, <-chan error) {
	chunks := make(chan Chunk, 1)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		cdc, err := fastcdc.NewChunker(r, fastcdc.Options{
			MinSize:     c.cfg.Min,
			AverageSize: c.cfg.Avg,
			MaxSize:     c.cfg.Max,
		})
		if err != nil {
			errs <- err
			return
		}

		for {
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			default:
				chunk, err := cdc.Next()
				if err != nil {
					if err != io.EOF {
						errs <- err
					}
					return
				}

				// The fastcdc chunk buffer is only valid until the next call,
				// so copy into a pooled buffer owned by the consumer.
				buf := c.pool.Get().([]byte)
				n := copy(buf, chunk.Data)

				select {
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				case chunks <- Chunk{Buf: buf, N: n}:
				}
			}
		}
	}()

	return chunks, errs
}

func (c *cdcChunker) ReturnBuffer(buf []byte) {
	c.pool.Put(buf)
}
