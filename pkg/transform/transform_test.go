package transform

import (
	"bytes"
	"errors"
	"testing"

	"github.com/seismolab/waveset/internal/testkit"
	"github.com/seismolab/waveset/pkg/core"
)

func TestNone(t *testing.T) {
	tr := NewNone()
	data := []byte("pass through untouched")

	enc, err := tr.Encode(data)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !bytes.Equal(enc, data) {
		t.Error("none transform modified the payload")
	}

	dec, err := tr.Decode(enc)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(dec, data) {
		t.Error("round trip mismatch")
	}
}

func TestZstd(t *testing.T) {
	tr := NewZstd(3)

	t.Run("RoundTrip", func(t *testing.T) {
		r := testkit.RNG(11)
		data := testkit.CompressibleBytes(r, 64*1024)

		enc, err := tr.Encode(data)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}

		if len(enc) >= len(data) {
			t.Errorf("compressible payload did not shrink: %d >= %d", len(enc), len(data))
		}

		dec, err := tr.Decode(enc)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if !bytes.Equal(dec, data) {
			t.Error("round trip mismatch")
		}
	})

	t.Run("EmptyPayload", func(t *testing.T) {
		enc, err := tr.Encode(nil)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		dec, err := tr.Decode(enc)
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if len(dec) != 0 {
			t.Errorf("expected empty payload, got %d bytes", len(dec))
		}
	})

	t.Run("TruncatedEnvelope", func(t *testing.T) {
		if _, err := tr.Decode([]byte("WS")); !errors.Is(err, core.ErrCorrupt) {
			t.Errorf("expected ErrCorrupt, got %v", err)
		}
	})

	t.Run("BadMagic", func(t *testing.T) {
		enc, _ := tr.Encode([]byte("data"))
		enc[0] ^= 0xFF
		if _, err := tr.Decode(enc); !errors.Is(err, core.ErrCorrupt) {
			t.Errorf("expected ErrCorrupt, got %v", err)
		}
	})

	t.Run("BadVersion", func(t *testing.T) {
		enc, _ := tr.Encode([]byte("data"))
		enc[4] = 99
		if _, err := tr.Decode(enc); !errors.Is(err, core.ErrCorrupt) {
			t.Errorf("expected ErrCorrupt, got %v", err)
		}
	})
}
