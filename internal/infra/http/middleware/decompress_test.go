package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	_, err := gw.Write(data)
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	return buf.Bytes()
}

func zstdBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// echoHandler writes the request body back and records what the middleware
// left in the request.
func echoHandler(t *testing.T) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Content-Encoding"), "encoding header should be stripped after inflation")
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, int64(len(body)), r.ContentLength)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}

func TestDecompress_PassthroughWithoutEncoding(t *testing.T) {
	payload := []byte(`{"source":"scanner"}`)

	wrapped := Decompress(DecompressConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, payload, body)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/import", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDecompress_Gzip(t *testing.T) {
	payload := []byte(`{"assets":[{"hostname":"web-01"}]}`)

	wrapped := Decompress(DecompressConfig{})(echoHandler(t))

	req := httptest.NewRequest(http.MethodPost, "/import", bytes.NewReader(gzipBytes(t, payload)))
	req.Header.Set("Content-Encoding", "gzip")
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, payload, rec.Body.Bytes())
}

func TestDecompress_Zstd(t *testing.T) {
	payload := []byte(`{"assets":[{"hostname":"db-01"}]}`)

	wrapped := Decompress(DecompressConfig{})(echoHandler(t))

	req := httptest.NewRequest(http.MethodPost, "/import", bytes.NewReader(zstdBytes(t, payload)))
	req.Header.Set("Content-Encoding", "zstd")
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, payload, rec.Body.Bytes())
}

func TestDecompress_UnsupportedEncoding(t *testing.T) {
	wrapped := Decompress(DecompressConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for unsupported encodings")
	}))

	req := httptest.NewRequest(http.MethodPost, "/import", bytes.NewReader([]byte("x")))
	req.Header.Set("Content-Encoding", "br")
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestDecompress_RejectsOversizedCompressedPayload(t *testing.T) {
	payload := bytes.Repeat([]byte("vulntrack "), 100)

	wrapped := Decompress(DecompressConfig{MaxCompressedBytes: 8})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run when the compressed payload is oversized")
	}))

	req := httptest.NewRequest(http.MethodPost, "/import", bytes.NewReader(gzipBytes(t, payload)))
	req.Header.Set("Content-Encoding", "gzip")
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDecompress_RejectsExcessiveExpansion(t *testing.T) {
	// Zeros compress extremely well, so a tight ratio cap must trip.
	payload := make([]byte, 1<<20)

	wrapped := Decompress(DecompressConfig{MaxRatio: 2})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for decompression bombs")
	}))

	req := httptest.NewRequest(http.MethodPost, "/import", bytes.NewReader(gzipBytes(t, payload)))
	req.Header.Set("Content-Encoding", "gzip")
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDecompress_EmptyCompressedBody(t *testing.T) {
	wrapped := Decompress(DecompressConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Empty(t, body)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/import", bytes.NewReader(nil))
	req.Header.Set("Content-Encoding", "gzip")
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
