// Package source opens inspection inputs. A target is a local path, a
// file:// URL, or an http(s):// URL; compression is undone transparently by
// extension, and an optional charset decode normalizes legacy encodings to
// UTF-8 before tokenization.
package source

import (
	"compress/bzip2"
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Format is the tabular format of an input, decided by extension.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// Options controls how a target is opened.
type Options struct {
	// Encoding selects a charset decode applied before parsing. Empty or
	// "utf-8" means none. Supported: "latin1", "windows-1252".
	Encoding string

	// InsecureTLS skips certificate verification on https targets; useful
	// for self-signed internal endpoints.
	InsecureTLS bool

	// Client overrides the HTTP client. Nil uses a default. Tests use this
	// seam to avoid real network I/O.
	Client *http.Client
}

// DetectFormat decides the format from the target's extension, looking
// beneath a trailing compression suffix. An unsupported extension is a
// usage error.
func DetectFormat(target string) (Format, error) {
	name := strings.ToLower(path.Base(strings.TrimSuffix(target, "/")))
	name = strings.TrimSuffix(name, compressionExt(name))

	switch path.Ext(name) {
	case ".csv":
		return FormatCSV, nil
	case ".tsv", ".tab":
		return FormatTSV, nil
	case ".json", ".jsonl":
		return FormatJSON, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported file type %q", path.Ext(name))
	}
}

func compressionExt(name string) string {
	for _, ext := range []string{".gz", ".bz2", ".xz", ".zst"} {
		if strings.HasSuffix(name, ext) {
			return ext
		}
	}
	return ""
}

// Open returns a reader over the decoded, decompressed content of target.
// The caller owns the returned closer.
func Open(ctx context.Context, target string, opt Options) (io.ReadCloser, error) {
	raw, err := openRaw(ctx, target, opt)
	if err != nil {
		return nil, err
	}

	r, closeInner, err := wrapDecompression(raw, target)
	if err != nil {
		raw.Close()
		return nil, err
	}

	r, err = wrapEncoding(r, opt.Encoding)
	if err != nil {
		closeInner()
		raw.Close()
		return nil, err
	}

	return &readCloser{
		Reader: r,
		close: func() error {
			err := closeInner()
			if cerr := raw.Close(); err == nil {
				err = cerr
			}
			return err
		},
	}, nil
}

func openRaw(ctx context.Context, target string, opt Options) (io.ReadCloser, error) {
	switch {
	case strings.HasPrefix(target, "http://"), strings.HasPrefix(target, "https://"):
		return openHTTP(ctx, target, opt)
	case strings.HasPrefix(target, "file://"):
		target = strings.TrimPrefix(target, "file://")
		fallthrough
	default:
		f, err := os.Open(target)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", target, err)
		}
		return f, nil
	}
}

func openHTTP(ctx context.Context, url string, opt Options) (io.ReadCloser, error) {
	client := opt.Client
	if client == nil {
		client = http.DefaultClient
		if opt.InsecureTLS {
			client = insecureClient()
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
	}
	return resp.Body, nil
}

// wrapDecompression wraps r according to the target's compression suffix.
// The returned func closes only the decompressor, not the underlying
// reader.
func wrapDecompression(r io.Reader, target string) (io.Reader, func() error, error) {
	noop := func() error { return nil }

	switch compressionExt(strings.ToLower(target)) {
	case "":
		return r, noop, nil
	case ".gz":
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip reader: %w", err)
		}
		return gr, gr.Close, nil
	case ".bz2":
		return bzip2.NewReader(r), noop, nil
	case ".xz":
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("xz reader: %w", err)
		}
		return xr, noop, nil
	case ".zst":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd reader: %w", err)
		}
		return zr.IOReadCloser(), func() error { zr.Close(); return nil }, nil
	default:
		return r, noop, nil
	}
}

func wrapEncoding(r io.Reader, name string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf8", "utf-8":
		return r, nil
	case "latin1", "iso-8859-1":
		return transform.NewReader(r, charmap.ISO8859_1.NewDecoder()), nil
	case "windows-1252", "cp1252":
		return transform.NewReader(r, charmap.Windows1252.NewDecoder()), nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
}

func insecureClient() *http.Client {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	return &http.Client{Transport: t}
}

type readCloser struct {
	io.Reader
	close func() error
}

func (rc *readCloser) Close() error { return rc.close() }
