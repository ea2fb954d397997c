package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fiscalflow/fiscalflow/internal/parse/archive"
)

// ingestExts are the file extensions the pipeline stages. Anything else
// found during discovery is skipped and reported, never staged.
var ingestExts = map[string]bool{
	".xlsx": true,
	".pdf":  true,
	".txt":  true,
	".xml":  true,
}

// Item is one concrete file the pipeline will stage and parse. Path is
// always readable at parse time; for archive members it points into the
// extraction dir while Origin keeps the durable provenance string.
type Item struct {
	Path        string
	Name        string
	Origin      string
	SizeBytes   int64
	Fingerprint string
}

// Discovery is a resolved submission: the batch identity plus every
// ingestible file it contains.
type Discovery struct {
	Name        string
	Fingerprint string
	Items       []Item
	Skipped     []string
}

// Discover resolves a submission path into its ingestible files. A single
// file yields itself, a directory is walked, a zip archive is expanded
// under the given limits. The returned cleanup releases any extraction dir
// and is non-nil on every return; callers defer it and must not use Item
// paths afterwards.
func Discover(path string, limits archive.Limits) (*Discovery, func(), error) {
	cleanup := func() {}

	info, err := os.Stat(path)
	if err != nil {
		return nil, cleanup, fmt.Errorf("stat submission %s: %w", path, err)
	}

	if info.IsDir() {
		d, err := discoverDir(path)
		return d, cleanup, err
	}
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		return discoverArchive(path, limits)
	}
	d, err := discoverFile(path, info.Size())
	return d, cleanup, err
}

func discoverFile(path string, size int64) (*Discovery, error) {
	name := filepath.Base(path)
	if !ingestExts[strings.ToLower(filepath.Ext(name))] {
		return nil, fmt.Errorf("unsupported submission file type %s", name)
	}
	digest, err := fileDigest(path)
	if err != nil {
		return nil, err
	}
	return &Discovery{
		Name:        name,
		Fingerprint: digest,
		Items: []Item{{
			Path:        path,
			Name:        name,
			Origin:      path,
			SizeBytes:   size,
			Fingerprint: digest,
		}},
	}, nil
}

// discoverDir walks the directory collecting ingestible files. Nested
// archives are not expanded in place; they are reported as skipped so a
// stray zip never silently changes the batch identity.
func discoverDir(root string) (*Discovery, error) {
	d := &Discovery{Name: filepath.Base(root)}

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = entry.Name()
		}
		rel = filepath.ToSlash(rel)
		if !ingestExts[strings.ToLower(filepath.Ext(path))] {
			d.Skipped = append(d.Skipped, rel)
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		digest, err := fileDigest(path)
		if err != nil {
			return err
		}
		d.Items = append(d.Items, Item{
			Path:        path,
			Name:        rel,
			Origin:      path,
			SizeBytes:   info.Size(),
			Fingerprint: digest,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk submission dir %s: %w", root, err)
	}
	if len(d.Items) == 0 {
		return nil, fmt.Errorf("submission dir %s holds no ingestible files", root)
	}

	d.Fingerprint = combinedDigest(d.Items)
	return d, nil
}

func discoverArchive(path string, limits archive.Limits) (*Discovery, func(), error) {
	// The archive's own digest identifies the batch; re-zipping the same
	// members reorders bytes and is deliberately a new submission.
	digest, err := fileDigest(path)
	if err != nil {
		return nil, func() {}, err
	}

	extracted, cleanup, err := archive.Expand(path, limits)
	if err != nil {
		return nil, cleanup, err
	}

	d := &Discovery{Name: filepath.Base(path), Fingerprint: digest}
	for _, ex := range extracted {
		if !ingestExts[strings.ToLower(filepath.Ext(ex.Name))] {
			d.Skipped = append(d.Skipped, ex.Name)
			continue
		}
		info, err := os.Stat(ex.Path)
		if err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("stat extracted %s: %w", ex.Name, err)
		}
		memberDigest, err := fileDigest(ex.Path)
		if err != nil {
			cleanup()
			return nil, func() {}, err
		}
		d.Items = append(d.Items, Item{
			Path:        ex.Path,
			Name:        ex.Name,
			Origin:      path + "::" + ex.Name,
			SizeBytes:   info.Size(),
			Fingerprint: memberDigest,
		})
	}
	if len(d.Items) == 0 {
		cleanup()
		return nil, func() {}, fmt.Errorf("archive %s holds no ingestible files", path)
	}
	return d, cleanup, nil
}

// fileDigest streams the file through SHA-256 and returns the hex digest.
func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s for fingerprinting: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// combinedDigest derives the batch identity of a directory submission from
// its member digests. Sorting makes the identity independent of walk order
// and of member renames; only content changes produce a new batch.
func combinedDigest(items []Item) string {
	digests := make([]string, 0, len(items))
	for _, it := range items {
		digests = append(digests, it.Fingerprint)
	}
	sort.Strings(digests)

	h := sha256.New()
	for _, d := range digests {
		io.WriteString(h, d)
		io.WriteString(h, "\n")
	}
	return hex.EncodeToString(h.Sum(nil))
}
