package docset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jcdickinson/ferrisindex/internal/cache"
	"github.com/jcdickinson/ferrisindex/internal/implementors"
	"github.com/jcdickinson/ferrisindex/internal/searchindex"
)

// maxConcurrentLoads bounds the number of files read at once.
const maxConcurrentLoads = 8

// Report describes the outcome of loading one or more sources. Errors are
// scoped per crate or per shard; a failure never hides the crates or
// shards that did load.
type Report struct {
	Crates  []string
	Shards  int
	Entries int
	Errors  []error
}

// Err joins the report's errors.
func (r *Report) Err() error { return errors.Join(r.Errors...) }

func (r *Report) merge(o Report) {
	r.Crates = append(r.Crates, o.Crates...)
	r.Shards += o.Shards
	r.Entries += o.Entries
	r.Errors = append(r.Errors, o.Errors...)
}

func isURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// readSource returns the bytes at source, a file path or an http(s) URL.
// URLs are served from the fetch cache unless refresh is set.
func readSource(ctx context.Context, source string, refresh bool) ([]byte, error) {
	if !isURL(source) {
		data, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", source, err)
		}
		return data, nil
	}

	if !refresh {
		if data, err := cache.Read(source); err == nil {
			slog.Debug("serving cached source", "source", source)
			return data, nil
		}
	}
	data, err := searchindex.Fetch(ctx, source)
	if err != nil {
		return nil, err
	}
	if err := cache.Write(source, data); err != nil {
		slog.Warn("failed to cache fetched source", "source", source, "error", err)
	}
	return data, nil
}

// LoadIndex loads one index source and adds every crate that decoded.
func (s *Set) LoadIndex(ctx context.Context, source string, refresh bool) Report {
	data, err := readSource(ctx, source, refresh)
	if err != nil {
		slog.Error("failed to read index", "source", source, "error", err)
		return Report{Errors: []error{err}}
	}
	return s.LoadIndexData(source, data)
}

// LoadIndexData decodes index bytes read from source and adds every crate
// that decoded.
func (s *Set) LoadIndexData(source string, data []byte) Report {
	indexes, err := searchindex.Load(data)
	var report Report
	if err != nil {
		report.Errors = splitJoined(err)
		for _, e := range report.Errors {
			slog.Error("failed to decode crate index", "source", source, "error", e)
		}
	}
	for _, idx := range indexes {
		report.Crates = append(report.Crates, idx.Name())
		if n := idx.SignatureErrors(); n > 0 {
			slog.Warn("crate has unresolved signatures", "crate", idx.Name(), "count", n)
		}
	}
	s.Add(indexes...)
	slog.Info("loaded index", "source", source, "crates", len(indexes), "errors", len(report.Errors))
	return report
}

// LoadIndexes loads sources concurrently. Crates are added in source order
// regardless of which load finishes first.
func (s *Set) LoadIndexes(ctx context.Context, sources []string, refresh bool) Report {
	loaded := make([][]*searchindex.CrateIndex, len(sources))
	errs := make([][]error, len(sources))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLoads)
	for i, source := range sources {
		g.Go(func() error {
			data, err := readSource(ctx, source, refresh)
			if err != nil {
				slog.Error("failed to read index", "source", source, "error", err)
				errs[i] = []error{err}
				return nil
			}
			indexes, err := searchindex.Load(data)
			if err != nil {
				errs[i] = splitJoined(err)
			}
			loaded[i] = indexes
			return nil
		})
	}
	g.Wait()

	var report Report
	for i := range sources {
		for _, err := range errs[i] {
			slog.Error("failed to decode crate index", "source", sources[i], "error", err)
		}
		report.Errors = append(report.Errors, errs[i]...)
		for _, idx := range loaded[i] {
			report.Crates = append(report.Crates, idx.Name())
		}
		s.Add(loaded[i]...)
	}
	return report
}

func splitJoined(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}

// shardSuffix marks a JSON shard outside an implementors/ tree.
const shardSuffix = ".impls.json"

// IsShardFile reports whether path names an implementor shard: a rustdoc
// trait.*.js file, a *.impls.json file, or a .json file below an
// implementors directory. Other JSON a rustdoc output tree holds is not a
// shard.
func IsShardFile(path string) bool {
	base := filepath.Base(path)
	switch filepath.Ext(base) {
	case ".json":
		if strings.HasSuffix(base, shardSuffix) {
			return true
		}
		dir := filepath.ToSlash(filepath.Dir(path))
		return slices.Contains(strings.Split(dir, "/"), "implementors")
	case ".js":
		return strings.HasPrefix(base, "trait.")
	}
	return false
}

// DecodeShardFile decodes the shards in one file. JSON shards that name no
// crate take the file's base name.
func DecodeShardFile(path string, data []byte) ([]implementors.Shard, error) {
	if filepath.Ext(path) == ".js" {
		return implementors.ParseLegacyShardJS(data, implementors.TraitPathFromFile(path))
	}
	base := filepath.Base(path)
	crate := strings.TrimSuffix(strings.TrimSuffix(base, shardSuffix), filepath.Ext(base))
	shard, err := implementors.DecodeShard(crate, data)
	if err != nil {
		return nil, err
	}
	return []implementors.Shard{shard}, nil
}

// SubmitShardFile reads path and submits its shards to the registry.
func (s *Set) SubmitShardFile(path string) Report {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{Errors: []error{fmt.Errorf("reading shard: %w", err)}}
	}
	return s.SubmitShardData(path, data)
}

// SubmitShardData decodes shard bytes read from source and submits them.
func (s *Set) SubmitShardData(source string, data []byte) Report {
	var report Report
	shards, err := DecodeShardFile(source, data)
	if err != nil {
		slog.Warn("dropping shard file", "source", source, "error", err)
		report.Errors = append(report.Errors, err)
		return report
	}
	for _, shard := range shards {
		if err := s.registry.SubmitShard(shard); err != nil {
			report.Errors = append(report.Errors, err)
			continue
		}
		report.Shards++
		report.Entries += len(shard.Entries)
	}
	return report
}

// shardFiles expands a source into shard file paths. Directories are walked
// recursively.
func shardFiles(source string) ([]string, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{source}, nil
	}
	var files []string
	err = filepath.WalkDir(source, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsShardFile(p) {
			files = append(files, p)
		}
		return nil
	})
	return files, err
}

// LoadShards submits every shard under sources concurrently. Shards reach
// the registry in completion order, which the registry tolerates.
func (s *Set) LoadShards(ctx context.Context, sources []string) Report {
	var (
		mu     sync.Mutex
		report Report
	)
	record := func(r Report) {
		mu.Lock()
		report.merge(r)
		mu.Unlock()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLoads)
	for _, source := range sources {
		files, err := shardFiles(source)
		if err != nil {
			slog.Error("failed to list shards", "source", source, "error", err)
			record(Report{Errors: []error{err}})
			continue
		}
		for _, file := range files {
			g.Go(func() error {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				record(s.SubmitShardFile(file))
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		report.Errors = append(report.Errors, err)
	}
	slog.Info("loaded implementor shards", "shards", report.Shards, "entries", report.Entries, "errors", len(report.Errors))
	return report
}
