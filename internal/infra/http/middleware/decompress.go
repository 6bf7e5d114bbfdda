package middleware

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/vulntrack/api/pkg/apierror"
)

// DecompressConfig bounds what an inflated request body may cost. The
// ratio cap is the zipbomb guard: a tiny payload may not expand past
// MaxRatio times its wire size even when the absolute cap would allow it.
type DecompressConfig struct {
	MaxCompressedBytes int64
	MaxInflatedBytes   int64
	MaxRatio           float64
}

func (c DecompressConfig) withDefaults() DecompressConfig {
	if c.MaxCompressedBytes <= 0 {
		c.MaxCompressedBytes = 10 << 20
	}
	if c.MaxInflatedBytes <= 0 {
		c.MaxInflatedBytes = 50 << 20
	}
	if c.MaxRatio <= 0 {
		c.MaxRatio = 100
	}
	return c
}

// DecompressForImport returns the decompression middleware sized for
// scanner feed uploads. Feeds are repetitive JSON, so both the absolute
// cap and the ratio cap sit above the defaults.
func DecompressForImport() func(http.Handler) http.Handler {
	return Decompress(DecompressConfig{
		MaxCompressedBytes: 20 << 20,
		MaxInflatedBytes:   100 << 20,
		MaxRatio:           200,
	})
}

// Decompress inflates gzip and zstd request bodies in place. Runs before
// any body limit middleware so limits apply to the inflated size.
func Decompress(cfg DecompressConfig) func(http.Handler) http.Handler {
	cfg = cfg.withDefaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}

			enc := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Encoding")))
			switch enc {
			case "", "identity":
				next.ServeHTTP(w, r)
				return
			case "gzip", "zstd":
			default:
				apierror.New(http.StatusUnsupportedMediaType, "UNSUPPORTED_ENCODING",
					"Unsupported Content-Encoding: "+enc).WriteJSON(w)
				return
			}

			body, err := inflate(r.Body, enc, cfg)
			if err != nil {
				// The caller gets no detail; compressed garbage and bombs
				// read the same from outside.
				apierror.BadRequest("Invalid compressed request body").WriteJSON(w)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			r.ContentLength = int64(len(body))
			r.Header.Del("Content-Encoding")

			next.ServeHTTP(w, r)
		})
	}
}

var errInflateTooLarge = errors.New("inflated payload exceeds limit")

// inflate reads the whole compressed body and expands it under the
// configured caps.
func inflate(rc io.ReadCloser, enc string, cfg DecompressConfig) ([]byte, error) {
	defer rc.Close()

	raw, err := io.ReadAll(io.LimitReader(rc, cfg.MaxCompressedBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > cfg.MaxCompressedBytes {
		return nil, errors.New("compressed payload exceeds limit")
	}
	if len(raw) == 0 {
		return []byte{}, nil
	}

	var src io.Reader
	switch enc {
	case "gzip":
		gz, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		src = gz
	case "zstd":
		//nolint:gosec // G115: MaxInflatedBytes is positive after withDefaults.
		zr, err := zstd.NewReader(bytes.NewReader(raw),
			zstd.WithDecoderMaxMemory(uint64(cfg.MaxInflatedBytes)),
			zstd.WithDecoderConcurrency(1),
		)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		src = zr
	}

	// Effective cap: the absolute limit or the ratio-derived one,
	// whichever bites first.
	limit := cfg.MaxInflatedBytes
	if byRatio := int64(float64(len(raw)) * cfg.MaxRatio); byRatio < limit {
		limit = byRatio
	}

	var out bytes.Buffer
	n, err := io.Copy(&out, io.LimitReader(src, limit+1))
	if err != nil {
		return nil, err
	}
	if n > limit {
		return nil, errInflateTooLarge
	}
	return out.Bytes(), nil
}
