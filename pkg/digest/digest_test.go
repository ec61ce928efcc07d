package digest

import (
	"bytes"
	"errors"
	"testing"

	"github.com/seismolab/waveset/pkg/core"
)

func TestBuilder(t *testing.T) {
	b := NewBuilder()

	t.Run("Deterministic", func(t *testing.T) {
		data := []byte("three-component waveform record")

		c1, err := b.BlockCID(data)
		if err != nil {
			t.Fatalf("BlockCID failed: %v", err)
		}
		c2, err := b.BlockCID(data)
		if err != nil {
			t.Fatalf("BlockCID failed: %v", err)
		}
		if !bytes.Equal(c1.Bytes, c2.Bytes) {
			t.Error("same input produced different CIDs")
		}
	})

	t.Run("CodecSeparation", func(t *testing.T) {
		data := []byte("payload")
		block, _ := b.BlockCID(data)
		man, _ := b.ManifestCID(data)
		if bytes.Equal(block.Bytes, man.Bytes) {
			t.Error("block and manifest CIDs should differ by codec")
		}
	})

	t.Run("VerifyOK", func(t *testing.T) {
		data := []byte("verify me")
		c, _ := b.BlockCID(data)
		if err := b.Verify(c, data); err != nil {
			t.Errorf("Verify failed on valid data: %v", err)
		}
	})

	t.Run("VerifyMismatch", func(t *testing.T) {
		c, _ := b.BlockCID([]byte("original"))
		err := b.Verify(c, []byte("tampered"))
		if !errors.Is(err, core.ErrCorrupt) {
			t.Errorf("expected ErrCorrupt, got %v", err)
		}
	})

	t.Run("VerifyBadCID", func(t *testing.T) {
		err := b.Verify(core.CID{Bytes: []byte("not a cid")}, []byte("data"))
		if !errors.Is(err, core.ErrCorrupt) {
			t.Errorf("expected ErrCorrupt, got %v", err)
		}
	})
}

func TestSumReader(t *testing.T) {
	b := NewBuilder()
	data := []byte("an archive payload hashed in streaming fashion")

	streamed, n, err := SumReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("SumReader failed: %v", err)
	}
	if n != int64(len(data)) {
		t.Errorf("expected %d bytes read, got %d", len(data), n)
	}

	whole, err := b.BlockCID(data)
	if err != nil {
		t.Fatalf("BlockCID failed: %v", err)
	}

	if !bytes.Equal(streamed.Bytes, whole.Bytes) {
		t.Error("streaming and whole-buffer CIDs differ")
	}
}

func TestFormatParse(t *testing.T) {
	c, err := NewBuilder().BlockCID([]byte("round trip"))
	if err != nil {
		t.Fatalf("BlockCID failed: %v", err)
	}

	s, err := Format(c)
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}

	back, err := Parse(s)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !bytes.Equal(back.Bytes, c.Bytes) {
		t.Error("Format/Parse round trip changed the CID")
	}

	if _, err := Parse("not a cid"); !errors.Is(err, core.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
