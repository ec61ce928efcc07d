package fetch

import (
	"archive/tar"
	"compress/bzip2"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/gzip"

	"github.com/seismolab/waveset/pkg/core"
)

// Archive formats accepted by Extract.
const (
	FormatTarGz  = "tar.gz"
	FormatTarBz2 = "tar.bz2"
)

// DetectFormat sniffs the archive format of a file, falling back to the
// filename extension when the content is ambiguous.
func DetectFormat(path string) (string, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "", err
	}

	switch {
	case mt.Is("application/gzip"):
		return FormatTarGz, nil
	case mt.Is("application/x-bzip2"):
		return FormatTarBz2, nil
	}

	switch {
	case strings.HasSuffix(path, ".tar.gz"), strings.HasSuffix(path, ".tgz"):
		return FormatTarGz, nil
	case strings.HasSuffix(path, ".tar.bz2"):
		return FormatTarBz2, nil
	}

	return "", fmt.Errorf("%w: unrecognized archive format: %s", core.ErrInvalidInput, path)
}

// Extract unpacks a tar.gz or tar.bz2 archive into dstDir. Entries that
// would escape dstDir are rejected.
func Extract(ctx context.Context, archive, dstDir string) error {
	format, err := DetectFormat(archive)
	if err != nil {
		return err
	}

	f, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer f.Close()

	var decompressed io.Reader
	switch format {
	case FormatTarGz:
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("%w: bad gzip stream: %v", core.ErrCorrupt, err)
		}
		defer gz.Close()
		decompressed = gz
	case FormatTarBz2:
		// bzip2 decompression only exists in the stdlib; klauspost/compress
		// has no bzip2 reader.
		decompressed = bzip2.NewReader(f)
	default:
		return fmt.Errorf("%w: unsupported archive format %q", core.ErrInvalidInput, format)
	}

	tr := tar.NewReader(decompressed)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: bad tar stream: %v", core.ErrCorrupt, err)
		}

		name := filepath.Clean(hdr.Name)
		if !filepath.IsLocal(name) {
			return fmt.Errorf("%w: archive entry escapes destination: %s", core.ErrInvalidInput, hdr.Name)
		}
		target := filepath.Join(dstDir, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			if err := writeEntry(target, tr); err != nil {
				return err
			}
		default:
			// Symlinks and specials are not part of any dataset archive.
			return fmt.Errorf("%w: unsupported archive entry type %d: %s", core.ErrInvalidInput, hdr.Typeflag, hdr.Name)
		}
	}
}

func writeEntry(target string, r io.Reader) error {
	f, err := os.Create(target)
	if err != nil {
		return err
	}

	_, err = io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}
