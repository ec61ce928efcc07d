package dataset

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/fxamacker/cbor/v2"

	"github.com/seismolab/waveset/pkg/core"
)

// Waveset container file layout:
//
//	magic "WSET" | version byte | uint32 BE header length | CBOR header | records
//
// Records are Count fixed-stride blocks of Components × Points float32
// little-endian values, so sample i lives at DataOffset + i*Stride.

const (
	containerMagic   = "WSET"
	containerVersion = 1
	preludeLen       = 4 + 1 + 4
)

// Header describes the records of a waveset container.
type Header struct {
	Count      uint32   `cbor:"count"`
	Components uint16   `cbor:"components"`
	Points     uint32   `cbor:"points"`
	Targets    []string `cbor:"targets,omitempty"`
}

func (h Header) validate() error {
	if h.Components == 0 || h.Points == 0 {
		return fmt.Errorf("%w: zero components or points", core.ErrInvalidInput)
	}
	if len(h.Targets) != 0 && uint32(len(h.Targets)) != h.Count {
		return fmt.Errorf("%w: %d targets for %d records", core.ErrInvalidInput, len(h.Targets), h.Count)
	}
	return nil
}

// Stride returns the record size in bytes.
func (h Header) Stride() int64 {
	return int64(h.Components) * int64(h.Points) * 4
}

// Container provides random access to the records of a waveset file.
type Container struct {
	hdr     Header
	ra      io.ReaderAt
	dataOff int64
}

// OpenContainer parses the container prelude and header from ra. size is the
// total container length; a container whose records extend past it is
// rejected as corrupt.
func OpenContainer(ra io.ReaderAt, size int64) (*Container, error) {
	prelude := make([]byte, preludeLen)
	if _, err := ra.ReadAt(prelude, 0); err != nil {
		return nil, fmt.Errorf("%w: short container prelude: %v", core.ErrCorrupt, err)
	}

	if string(prelude[:4]) != containerMagic {
		return nil, fmt.Errorf("%w: bad container magic", core.ErrCorrupt)
	}
	if prelude[4] != containerVersion {
		return nil, fmt.Errorf("%w: unsupported container version %d", core.ErrCorrupt, prelude[4])
	}

	hlen := binary.BigEndian.Uint32(prelude[5:9])
	if int64(preludeLen)+int64(hlen) > size {
		return nil, fmt.Errorf("%w: header extends past container", core.ErrCorrupt)
	}

	hbuf := make([]byte, hlen)
	if _, err := ra.ReadAt(hbuf, preludeLen); err != nil {
		return nil, fmt.Errorf("%w: short container header: %v", core.ErrCorrupt, err)
	}

	var hdr Header
	if err := cbor.Unmarshal(hbuf, &hdr); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal container header: %v", core.ErrCorrupt, err)
	}
	if err := hdr.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrCorrupt, err)
	}

	dataOff := int64(preludeLen) + int64(hlen)
	if dataOff+int64(hdr.Count)*hdr.Stride() > size {
		return nil, fmt.Errorf("%w: records extend past container", core.ErrCorrupt)
	}

	return &Container{hdr: hdr, ra: ra, dataOff: dataOff}, nil
}

func (c *Container) Header() Header {
	return c.hdr
}

// DataOffset returns the byte offset of record 0.
func (c *Container) DataOffset() int64 {
	return c.dataOff
}

// Record reads the i-th waveform record.
func (c *Container) Record(i int) ([]float32, error) {
	if i < 0 || uint32(i) >= c.hdr.Count {
		return nil, fmt.Errorf("%w: record %d of %d", core.ErrNotFound, i, c.hdr.Count)
	}

	buf := make([]byte, c.hdr.Stride())
	if _, err := c.ra.ReadAt(buf, c.dataOff+int64(i)*c.hdr.Stride()); err != nil {
		return nil, fmt.Errorf("%w: short record read: %v", core.ErrCorrupt, err)
	}

	out := make([]float32, len(buf)/4)
	for j := range out {
		out[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[j*4:]))
	}
	return out, nil
}

// Writer appends records to a waveset container. The header, including the
// final record count, is written up front; Close fails if fewer or more
// records were appended.
type Writer struct {
	w       io.Writer
	hdr     Header
	written uint32
	buf     []byte
}

// NewWriter writes the container prelude and header to w and returns a
// Writer expecting exactly hdr.Count records.
func NewWriter(w io.Writer, hdr Header) (*Writer, error) {
	if err := hdr.validate(); err != nil {
		return nil, err
	}

	hbuf, err := cbor.Marshal(hdr)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal container header: %w", err)
	}

	prelude := make([]byte, 0, preludeLen)
	prelude = append(prelude, containerMagic...)
	prelude = append(prelude, containerVersion)
	prelude = binary.BigEndian.AppendUint32(prelude, uint32(len(hbuf)))

	if _, err := w.Write(prelude); err != nil {
		return nil, err
	}
	if _, err := w.Write(hbuf); err != nil {
		return nil, err
	}

	return &Writer{
		w:   w,
		hdr: hdr,
		buf: make([]byte, hdr.Stride()),
	}, nil
}

// Append writes one record. rec must hold Components × Points values.
func (wr *Writer) Append(rec []float32) error {
	if wr.written >= wr.hdr.Count {
		return fmt.Errorf("%w: container already holds %d records", core.ErrInvalidInput, wr.hdr.Count)
	}
	if int64(len(rec))*4 != wr.hdr.Stride() {
		return fmt.Errorf("%w: record has %d values, want %d", core.ErrInvalidInput, len(rec), wr.hdr.Stride()/4)
	}

	for j, v := range rec {
		binary.LittleEndian.PutUint32(wr.buf[j*4:], math.Float32bits(v))
	}
	if _, err := wr.w.Write(wr.buf); err != nil {
		return err
	}

	wr.written++
	return nil
}

// Close verifies the declared record count was written.
func (wr *Writer) Close() error {
	if wr.written != wr.hdr.Count {
		return fmt.Errorf("%w: wrote %d of %d records", core.ErrInvalidInput, wr.written, wr.hdr.Count)
	}
	return nil
}
