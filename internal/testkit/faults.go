package testkit

import (
	"errors"
	"io"
)

var ErrInjectedFault = errors.New("injected fault")

// ErrorReader wraps an io.Reader and returns an error after returning N bytes.
type ErrorReader struct {
	r     io.Reader
	limit int64
	read  int64
	err   error
}

// NewErrorReader returns a reader that injects the given error after 'limit'
// bytes. If err is nil, ErrInjectedFault is used.
func NewErrorReader(r io.Reader, limit int64, err error) *ErrorReader {
	if err == nil {
		err = ErrInjectedFault
	}
	return &ErrorReader{
		r:     r,
		limit: limit,
		err:   err,
	}
}

func (e *ErrorReader) Read(p []byte) (n int, err error) {
	if e.read >= e.limit {
		return 0, e.err
	}

	space := e.limit - e.read
	if int64(len(p)) > space {
		p = p[:space]
	}

	n, err = e.r.Read(p)
	e.read += int64(n)

	if err != nil {
		return n, err
	}

	if e.read >= e.limit {
		return n, e.err
	}

	return n, nil
}

// BlockingReader stalls exactly once on the first read, signalling BlockCh
// and waiting for ResumeCh. Useful for exercising cancellation mid-ingest.
type BlockingReader struct {
	r        io.Reader
	BlockCh  chan struct{}
	ResumeCh chan struct{}
	blocked  bool
}

func NewBlockingReader(r io.Reader) *BlockingReader {
	return &BlockingReader{
		r:        r,
		BlockCh:  make(chan struct{}),
		ResumeCh: make(chan struct{}),
	}
}

func (b *BlockingReader) Read(p []byte) (n int, err error) {
	if !b.blocked {
		b.blocked = true
		close(b.BlockCh)
		<-b.ResumeCh
	}
	return b.r.Read(p)
}
