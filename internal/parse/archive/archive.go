// Package archive expands batch submission archives into scoped temp
// directories. Zip is the only accepted container.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Limits caps how much an archive may expand to. Zero values fall back to
// the package defaults.
type Limits struct {
	MaxUncompressedBytes int64
	MaxEntries           int
}

const (
	defaultMaxBytes   = int64(2) << 30
	defaultMaxEntries = 4096
)

func (l Limits) maxBytes() int64 {
	if l.MaxUncompressedBytes > 0 {
		return l.MaxUncompressedBytes
	}
	return defaultMaxBytes
}

func (l Limits) maxEntries() int {
	if l.MaxEntries > 0 {
		return l.MaxEntries
	}
	return defaultMaxEntries
}

// Extracted is one regular file recovered from an archive. Name keeps the
// archive-internal path so nested layouts stay distinguishable.
type Extracted struct {
	Path string
	Name string
}

// Expand unpacks the zip at path into a fresh temp directory and returns the
// extracted files together with a cleanup that removes the directory. The
// cleanup is non-nil on every return, error returns included.
func Expand(path string, limits Limits) ([]Extracted, func(), error) {
	cleanup := func() {}

	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, cleanup, fmt.Errorf("open archive %s: %w", path, err)
	}
	defer r.Close()

	if len(r.File) > limits.maxEntries() {
		return nil, cleanup, fmt.Errorf("archive %s has %d entries, limit %d", path, len(r.File), limits.maxEntries())
	}

	dir, err := os.MkdirTemp("", "fiscalflow-batch-")
	if err != nil {
		return nil, cleanup, fmt.Errorf("create extraction dir: %w", err)
	}
	cleanup = func() { os.RemoveAll(dir) }

	var files []Extracted
	budget := limits.maxBytes()
	for _, f := range r.File {
		name := normalize(f.Name)
		if f.FileInfo().IsDir() || skipEntry(name) {
			continue
		}
		if escapes(name) {
			cleanup()
			return nil, func() {}, fmt.Errorf("archive %s entry %q escapes extraction dir", path, f.Name)
		}

		written, dest, err := extractOne(f, dir, name, budget)
		if err != nil {
			cleanup()
			return nil, func() {}, err
		}
		budget -= written
		if budget < 0 {
			cleanup()
			return nil, func() {}, fmt.Errorf("archive %s exceeds uncompressed size limit %d", path, limits.maxBytes())
		}
		files = append(files, Extracted{Path: dest, Name: name})
	}
	return files, cleanup, nil
}

// normalize maps archive separators to slashes so traversal checks and skip
// rules see one canonical form.
func normalize(name string) string {
	return strings.TrimPrefix(strings.ReplaceAll(name, `\`, "/"), "./")
}

// skipEntry drops OS packaging noise that rides along in user-built zips.
func skipEntry(name string) bool {
	if strings.HasPrefix(name, "__MACOSX/") {
		return true
	}
	base := name
	if i := strings.LastIndex(name, "/"); i >= 0 {
		base = name[i+1:]
	}
	return base == ".DS_Store" || strings.HasPrefix(base, "._")
}

// escapes reports whether the entry would land outside the extraction dir.
func escapes(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") {
		return true
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

func extractOne(f *zip.File, dir, name string, budget int64) (int64, string, error) {
	dest := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, "", fmt.Errorf("create entry dir for %s: %w", name, err)
	}

	rc, err := f.Open()
	if err != nil {
		return 0, "", fmt.Errorf("open archive entry %s: %w", name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, "", fmt.Errorf("create extracted file %s: %w", dest, err)
	}
	defer out.Close()

	// Copy one byte past the remaining budget so declared sizes cannot lie
	// the limit away; the caller detects the overrun.
	written, err := io.Copy(out, io.LimitReader(rc, budget+1))
	if err != nil {
		return written, "", fmt.Errorf("extract %s: %w", name, err)
	}
	return written, dest, nil
}
