// Package fetch downloads and unpacks dataset archives: URL probing,
// retrying streaming downloads, digest verification, and archive
// extraction.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/dustin/go-humanize"
	logging "github.com/ipfs/go-log/v2"

	"github.com/seismolab/waveset/pkg/core"
	"github.com/seismolab/waveset/pkg/digest"
)

var log = logging.Logger("waveset/fetch")

// Options controls a download.
type Options struct {
	Client *http.Client // defaults to http.DefaultClient
	// ExpectedSize, when nonzero, rejects a completed download of any
	// other length.
	ExpectedSize uint64
	// MaxElapsed bounds the retry loop. Zero uses the backoff default
	// (15 minutes).
	MaxElapsed time.Duration
	UserAgent  string
}

// URLSize probes the payload size of url with a HEAD request.
func URLSize(ctx context.Context, client *http.Client, url string) (int64, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("HEAD %s: unexpected status %s", url, resp.Status)
	}
	if resp.ContentLength < 0 {
		return 0, fmt.Errorf("HEAD %s: size not reported", url)
	}
	return resp.ContentLength, nil
}

// Download streams url into dst, retrying transient failures with
// exponential backoff. The payload lands in dst only after a fully
// successful attempt; partial attempts go to a temp file that is truncated
// on retry.
func Download(ctx context.Context, url, dst string, opts Options) error {
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}

	tmp := dst + ".part"
	defer os.Remove(tmp)

	policy := backoff.NewExponentialBackOff()
	if opts.MaxElapsed > 0 {
		policy.MaxElapsedTime = opts.MaxElapsed
	}

	attempt := 0
	op := func() error {
		attempt++
		n, err := downloadOnce(ctx, client, url, tmp, opts.UserAgent)
		if err != nil {
			log.Warnw("download attempt failed", "url", url, "attempt", attempt, "err", err)
			return err
		}

		if opts.ExpectedSize > 0 && uint64(n) != opts.ExpectedSize {
			// A short body on a 200 is worth one more try.
			return fmt.Errorf("downloaded %d bytes, want %d", n, opts.ExpectedSize)
		}

		log.Infow("downloaded", "url", url, "size", humanize.Bytes(uint64(n)), "attempts", attempt)
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return fmt.Errorf("failed to download %s: %w", url, err)
	}

	return os.Rename(tmp, dst)
}

func downloadOnce(ctx context.Context, client *http.Client, url, tmp, userAgent string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		return 0, fmt.Errorf("GET %s: status %s", url, resp.Status)
	default:
		// Client errors will not improve with retries.
		return 0, backoff.Permanent(fmt.Errorf("GET %s: status %s", url, resp.Status))
	}

	f, err := os.Create(tmp)
	if err != nil {
		return 0, backoff.Permanent(err)
	}

	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, err
	}
	return n, nil
}

// VerifyFile checks a file against its expected digest, given as a canonical
// CID string (raw codec, sha2-256).
func VerifyFile(path, want string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	got, n, err := digest.SumReader(f)
	if err != nil {
		return err
	}

	gotStr, err := digest.Format(got)
	if err != nil {
		return err
	}

	if gotStr != want {
		return fmt.Errorf("%w: %s is %s (%s), want %s", core.ErrChecksumMismatch, path, gotStr, humanize.Bytes(uint64(n)), want)
	}
	return nil
}
