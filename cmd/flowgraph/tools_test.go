package main

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMermaidASCIIAssetName(t *testing.T) {
	tests := []struct {
		goos, goarch string
		want         string
		wantErr      bool
	}{
		{"darwin", "arm64", "mermaid-ascii_Darwin_arm64.tar.gz", false},
		{"linux", "amd64", "mermaid-ascii_Linux_x86_64.tar.gz", false},
		{"windows", "amd64", "", true},
		{"linux", "riscv64", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.goos+"/"+tt.goarch, func(t *testing.T) {
			got, err := mermaidASCIIAssetName(tt.goos, tt.goarch)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, mermaidASCIIChecksums, got)
		})
	}
}

func TestSha256File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.bin")
	data := []byte("flowgraph test data")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	got, err := sha256File(path)
	require.NoError(t, err)

	h := sha256.Sum256(data)
	assert.Equal(t, hex.EncodeToString(h[:]), got)

	_, err = sha256File("/nonexistent/file")
	assert.Error(t, err)
}

func tarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name, Mode: 0o755, Size: int64(len(body)), Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestExtractTarGz(t *testing.T) {
	dir := t.TempDir()
	archive := tarGz(t, map[string]string{
		"README.md":                         "docs",
		"mermaid-ascii_1.1.0/mermaid-ascii": "#!/bin/sh\necho ok\n",
	})

	require.NoError(t, extractTarGz(bytes.NewReader(archive), dir, "mermaid-ascii"))
	got, err := os.ReadFile(filepath.Join(dir, "mermaid-ascii"))
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\necho ok\n", string(got))

	err = extractTarGz(bytes.NewReader(archive), dir, "missing")
	assert.ErrorContains(t, err, "not found in archive")

	err = extractTarGz(strings.NewReader("not gzip"), dir, "mermaid-ascii")
	assert.ErrorContains(t, err, "gzip")
}

type fakeGetter struct {
	status int
	body   []byte
	urls   []string
}

func (f *fakeGetter) Get(url string) (*http.Response, error) {
	f.urls = append(f.urls, url)
	return &http.Response{
		StatusCode: f.status,
		Body:       io.NopCloser(bytes.NewReader(f.body)),
	}, nil
}

func TestInstallMermaidASCII_ChecksumMismatch(t *testing.T) {
	dir := t.TempDir()
	getter := &fakeGetter{
		status: http.StatusOK,
		body:   tarGz(t, map[string]string{"mermaid-ascii": "tampered"}),
	}

	_, err := installMermaidASCII(dir, getter, "linux", "amd64")
	assert.ErrorContains(t, err, "checksum mismatch")
	require.Len(t, getter.urls, 1)
	assert.Contains(t, getter.urls[0], "/1.1.0/mermaid-ascii_Linux_x86_64.tar.gz")

	_, statErr := os.Stat(filepath.Join(dir, "mermaid-ascii"))
	assert.True(t, os.IsNotExist(statErr))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary download must be removed")
}

func TestInstallMermaidASCII_DownloadError(t *testing.T) {
	getter := &fakeGetter{status: http.StatusNotFound}
	_, err := installMermaidASCII(t.TempDir(), getter, "darwin", "arm64")
	assert.ErrorContains(t, err, "download returned 404")
}

func TestInstallMermaidASCII_AlreadyInstalled(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "mermaid-ascii")
	require.NoError(t, os.WriteFile(dest, []byte("bin"), 0o755))

	getter := &fakeGetter{status: http.StatusOK}
	got, err := installMermaidASCII(dir, getter, "linux", "amd64")
	require.NoError(t, err)
	assert.Equal(t, dest, got)
	assert.Empty(t, getter.urls)
}

func TestInstallMermaidASCII_UnsupportedPlatform(t *testing.T) {
	_, err := installMermaidASCII(t.TempDir(), &fakeGetter{}, "plan9", "amd64")
	assert.ErrorContains(t, err, "unsupported OS")
}
