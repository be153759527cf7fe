package cache

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/jcdickinson/ferrisindex/internal/config"
)

// Dir returns the cache directory path.
func Dir() string {
	return config.CacheDir()
}

// Key returns the SHA-256 hex digest used to store source.
func Key(source string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(source)))
}

// path returns the sharded file path for a key: fetched/<first2>/<rest>.zst
func path(key string) string {
	return filepath.Join(Dir(), key[:2], key[2:]+".zst")
}

// Has reports whether data for source is cached.
func Has(source string) bool {
	_, err := os.Stat(path(Key(source)))
	return err == nil
}

// Write stores data fetched from source, replacing any earlier copy.
func Write(source string, data []byte) error {
	p := path(Key(source))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	if err != nil {
		return fmt.Errorf("creating zstd writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("compressing cache entry: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing zstd writer: %w", err)
	}

	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("replacing cache file: %w", err)
	}
	return nil
}

// Read returns the cached data for source. A miss wraps fs.ErrNotExist.
func Read(source string) ([]byte, error) {
	f, err := os.Open(path(Key(source)))
	if err != nil {
		return nil, fmt.Errorf("reading cache entry for %s: %w", source, err)
	}
	defer f.Close()

	r, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("creating zstd reader: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompressing cache entry for %s: %w", source, err)
	}
	return data, nil
}

// Clear removes every cached entry and returns how many were removed.
func Clear() (int, error) {
	n := 0
	err := filepath.WalkDir(Dir(), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(p) == ".zst" {
			n++
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("scanning cache: %w", err)
	}
	if err := os.RemoveAll(Dir()); err != nil {
		return 0, fmt.Errorf("removing cache: %w", err)
	}
	return n, nil
}
