package binary

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Provenance identifies which acquisition strategy produced a binary.
type Provenance int

const (
	Cached Provenance = iota
	Downloaded
	Built
	Existing
)

func (p Provenance) String() string {
	switch p {
	case Cached:
		return "cached"
	case Downloaded:
		return "downloaded"
	case Built:
		return "built"
	case Existing:
		return "existing"
	default:
		return "unknown"
	}
}

// Result is a resolved runnable binary and how it was obtained.
type Result struct {
	Path       string
	Provenance Provenance
}

// NotFoundError reports that every acquisition strategy failed.
type NotFoundError struct {
	Service string
	Reason  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("binary not found for %s: %s", e.Service, e.Reason)
}

// Options configures an Acquirer.
type Options struct {
	CacheDir     string
	DownloadBase string // release base URL, e.g. https://github.com/txtx/surfpool/releases/download
	Version      string // pinned release tag
	BuildCommand string // optional build command run in SourceDir
	SourceDir    string
}

// Acquirer resolves a runnable path for a required executable through an
// ordered fallback: cached artifact, downloaded release, built from source,
// pre-existing on PATH. First success wins; no internal retries.
type Acquirer struct {
	client *http.Client
	opts   Options
}

func New(opts Options) *Acquirer {
	return &Acquirer{
		client: &http.Client{Timeout: 60 * time.Second},
		opts:   opts,
	}
}

// Acquire tries each strategy in order and returns the first success.
// It fails with NotFoundError only when every strategy has failed.
func (a *Acquirer) Acquire(ctx context.Context, name string) (Result, error) {
	var reasons []string

	if path, err := a.cached(name); err == nil {
		slog.Debug("Using cached binary", "name", name, "path", path)
		return Result{Path: path, Provenance: Cached}, nil
	} else {
		reasons = append(reasons, "cache: "+err.Error())
	}

	if path, err := a.download(ctx, name); err == nil {
		slog.Info("Downloaded binary", "name", name, "path", path)
		return Result{Path: path, Provenance: Downloaded}, nil
	} else {
		reasons = append(reasons, "download: "+err.Error())
	}

	if path, err := a.build(ctx, name); err == nil {
		slog.Info("Built binary from source", "name", name, "path", path)
		return Result{Path: path, Provenance: Built}, nil
	} else {
		reasons = append(reasons, "build: "+err.Error())
	}

	if path, err := exec.LookPath(name); err == nil {
		slog.Debug("Using existing binary on PATH", "name", name, "path", path)
		return Result{Path: path, Provenance: Existing}, nil
	} else {
		reasons = append(reasons, "path: "+err.Error())
	}

	return Result{}, &NotFoundError{Service: name, Reason: strings.Join(reasons, "; ")}
}

func (a *Acquirer) cached(name string) (string, error) {
	path := filepath.Join(a.opts.CacheDir, name)
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	if err := ensureExecutable(path, info); err != nil {
		return "", err
	}
	return path, nil
}

func (a *Acquirer) download(ctx context.Context, name string) (string, error) {
	if a.opts.DownloadBase == "" || a.opts.Version == "" {
		return "", errors.New("no download source configured")
	}
	archive, err := archiveName(name)
	if err != nil {
		return "", err
	}
	url := fmt.Sprintf("%s/%s/%s", strings.TrimRight(a.opts.DownloadBase, "/"), a.opts.Version, archive)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: HTTP %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(a.opts.CacheDir, 0o750); err != nil {
		return "", err
	}
	var path string
	switch {
	case strings.HasSuffix(archive, ".tar.gz"):
		path, err = extractTarGz(data, name, a.opts.CacheDir)
	case strings.HasSuffix(archive, ".zip"):
		path, err = extractZip(data, name, a.opts.CacheDir)
	default:
		path = filepath.Join(a.opts.CacheDir, name)
		err = os.WriteFile(path, data, 0o750)
	}
	if err != nil {
		return "", err
	}
	if err := os.Chmod(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

func (a *Acquirer) build(ctx context.Context, name string) (string, error) {
	if a.opts.BuildCommand == "" {
		return "", errors.New("no build command configured")
	}
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", a.opts.BuildCommand)
	if a.opts.SourceDir != "" {
		cmd.Dir = a.opts.SourceDir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%q failed: %w: %s", a.opts.BuildCommand, err, firstLine(out))
	}
	// Accept whichever conventional output location the build produced.
	candidates := []string{
		filepath.Join(a.opts.SourceDir, name),
		filepath.Join(a.opts.SourceDir, "bin", name),
		filepath.Join(a.opts.SourceDir, "target", "release", name),
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			if err := ensureExecutable(c, info); err != nil {
				return "", err
			}
			return c, nil
		}
	}
	return "", fmt.Errorf("build succeeded but %s not found under %s", name, a.opts.SourceDir)
}

// archiveName maps GOOS/GOARCH to the release asset filename.
func archiveName(name string) (string, error) {
	switch runtime.GOOS {
	case "linux":
		if runtime.GOARCH == "amd64" {
			return name + "-linux-x86_64.tar.gz", nil
		}
	case "darwin":
		switch runtime.GOARCH {
		case "amd64":
			return name + "-darwin-x86_64.tar.gz", nil
		case "arm64":
			return name + "-darwin-arm64.tar.gz", nil
		}
	case "windows":
		if runtime.GOARCH == "amd64" {
			return name + "-windows-x86_64.zip", nil
		}
	}
	return "", fmt.Errorf("unsupported platform %s/%s", runtime.GOOS, runtime.GOARCH)
}

func extractTarGz(data []byte, name, destDir string) (string, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	defer func() { _ = gz.Close() }()
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		base := filepath.Base(hdr.Name)
		if hdr.Typeflag == tar.TypeReg && (base == name || base == name+".exe") {
			out := filepath.Join(destDir, base)
			f, err := os.OpenFile(out, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o750)
			if err != nil {
				return "", err
			}
			// Bounded copy: release archives hold one binary, not arbitrary input.
			if _, err := io.Copy(f, tr); err != nil { // #nosec G110
				_ = f.Close()
				return "", err
			}
			if err := f.Close(); err != nil {
				return "", err
			}
			return out, nil
		}
	}
	return "", fmt.Errorf("no %s binary found in archive", name)
}

func extractZip(data []byte, name, destDir string) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	for _, f := range zr.File {
		base := filepath.Base(f.Name)
		if base != name && base != name+".exe" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		out := filepath.Join(destDir, base)
		w, err := os.OpenFile(out, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o750)
		if err != nil {
			_ = rc.Close()
			return "", err
		}
		if _, err := io.Copy(w, rc); err != nil { // #nosec G110
			_ = w.Close()
			_ = rc.Close()
			return "", err
		}
		_ = rc.Close()
		if err := w.Close(); err != nil {
			return "", err
		}
		return out, nil
	}
	return "", fmt.Errorf("no %s binary found in zip archive", name)
}

func ensureExecutable(path string, info os.FileInfo) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	if info.Mode()&0o111 == 0 {
		return os.Chmod(path, info.Mode()|0o755)
	}
	return nil
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
