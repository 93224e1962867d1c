package main

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const (
	mermaidASCIIVersion = "1.1.0"
	mermaidASCIIBinary  = "mermaid-ascii"
	mermaidASCIIRepo    = "https://github.com/AlexanderGrooff/mermaid-ascii/releases/download"
)

// SHA-256 checksums for mermaid-ascii v1.1.0 release assets.
var mermaidASCIIChecksums = map[string]string{
	"mermaid-ascii_Darwin_arm64.tar.gz":  "068d2ff869d4921655cab471500fffd8c3ed28155b100518ed3cf3835d53d3d0",
	"mermaid-ascii_Darwin_x86_64.tar.gz": "0cd4c9c01a03284fe866f39a1ce1aaee1e6a2fbd91deedc4ec254cb87622eec8",
	"mermaid-ascii_Linux_arm64.tar.gz":   "3b7d0a95141bfbca838e445ea802ffb7fba8873b3c4af498482c84f83526f2db",
	"mermaid-ascii_Linux_x86_64.tar.gz":  "838ea93d561b3bc83aa15531c6ed7d2d261a8edc521d5484f7e91fe831cc4c65",
}

var installToolsCmd = &cobra.Command{
	Use:   "install-tools",
	Short: "Download the mermaid-ascii renderer used for ASCII diagrams",
	Long: "install-tools fetches mermaid-ascii into <data dir>/bin and verifies its\n" +
		"checksum. Without it ASCII diagrams use the built-in renderer.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client := &http.Client{Timeout: 60 * time.Second}
		path, err := installMermaidASCII(cfg.binDir(), client, runtime.GOOS, runtime.GOARCH)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "mermaid-ascii installed at %s\n", path)
		return nil
	},
}

// httpGetter is satisfied by *http.Client.
type httpGetter interface {
	Get(url string) (*http.Response, error)
}

// installMermaidASCII downloads, verifies and extracts the binary into binDir.
// An existing binary is left in place.
func installMermaidASCII(binDir string, client httpGetter, goos, goarch string) (string, error) {
	dest := filepath.Join(binDir, mermaidASCIIBinary)
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	asset, err := mermaidASCIIAssetName(goos, goarch)
	if err != nil {
		return "", err
	}
	expected, ok := mermaidASCIIChecksums[asset]
	if !ok {
		return "", fmt.Errorf("no known checksum for %s", asset)
	}
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", binDir, err)
	}

	url := fmt.Sprintf("%s/%s/%s", mermaidASCIIRepo, mermaidASCIIVersion, asset)
	tmp, err := downloadToTempFile(url, binDir, client)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", asset, err)
	}
	defer os.Remove(tmp)

	actual, err := sha256File(tmp)
	if err != nil {
		return "", err
	}
	if actual != expected {
		return "", fmt.Errorf("checksum mismatch for %s: expected %s, got %s", asset, expected, actual)
	}

	f, err := os.Open(tmp)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := extractTarGz(f, binDir, mermaidASCIIBinary); err != nil {
		_ = os.Remove(dest)
		return "", err
	}
	return dest, os.Chmod(dest, 0o755)
}

// mermaidASCIIAssetName returns the release asset name for a platform.
func mermaidASCIIAssetName(goos, goarch string) (string, error) {
	var osName string
	switch goos {
	case "darwin":
		osName = "Darwin"
	case "linux":
		osName = "Linux"
	default:
		return "", fmt.Errorf("mermaid-ascii: unsupported OS %q", goos)
	}

	var archName string
	switch goarch {
	case "amd64":
		archName = "x86_64"
	case "arm64":
		archName = "arm64"
	default:
		return "", fmt.Errorf("mermaid-ascii: unsupported architecture %q", goarch)
	}
	return fmt.Sprintf("mermaid-ascii_%s_%s.tar.gz", osName, archName), nil
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// downloadToTempFile saves url to a temporary file in dir. The caller removes it.
func downloadToTempFile(url, dir string, client httpGetter) (string, error) {
	resp, err := client.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download returned %d", resp.StatusCode)
	}

	f, err := os.CreateTemp(dir, "download-*")
	if err != nil {
		return "", err
	}
	path := f.Name()
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// extractTarGz writes the regular file named target from a tar.gz stream
// into destDir. Directory prefixes inside the archive are ignored.
func extractTarGz(r io.Reader, destDir, target string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("gzip: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("file %q not found in archive", target)
		}
		if err != nil {
			return fmt.Errorf("tar: %w", err)
		}
		if filepath.Base(hdr.Name) != target || hdr.Typeflag != tar.TypeReg {
			continue
		}
		if strings.Contains(hdr.Name, "..") {
			return fmt.Errorf("unsafe archive path %q", hdr.Name)
		}

		dest := filepath.Join(destDir, target)
		f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
		if err != nil {
			return fmt.Errorf("create %s: %w", dest, err)
		}
		if _, err := io.Copy(f, tr); err != nil { //nolint:gosec // bounded by tar header size
			f.Close()
			return fmt.Errorf("write %s: %w", dest, err)
		}
		return f.Close()
	}
}
