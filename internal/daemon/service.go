package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/jcdickinson/ferrisindex/internal/cache"
	"github.com/jcdickinson/ferrisindex/internal/config"
	"github.com/jcdickinson/ferrisindex/internal/docset"
	"github.com/jcdickinson/ferrisindex/internal/implementors"
	md "github.com/jcdickinson/ferrisindex/internal/markdown"
	"github.com/jcdickinson/ferrisindex/internal/query"
	"github.com/jcdickinson/ferrisindex/internal/rpc"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
)

const summaryWidth = 120

// Backend is the set of operations served by the daemon. Client implements
// it over the socket; Service implements it in-process.
type Backend interface {
	LoadIndex(ctx context.Context, req rpc.LoadIndexRequest, onProgress func(string)) (*rpc.LoadResponse, error)
	SubmitShard(ctx context.Context, req rpc.SubmitShardRequest) (*rpc.LoadResponse, error)
	MarkReady(ctx context.Context) (*rpc.MarkReadyResponse, error)
	Search(ctx context.Context, req rpc.SearchRequest) (*rpc.SearchResponse, error)
	Implementors(ctx context.Context, req rpc.ImplementorsRequest) (*rpc.ImplementorsResponse, error)
	Get(ctx context.Context, req rpc.GetRequest) (*rpc.GetResponse, error)
	Status(ctx context.Context) (*rpc.StatusResponse, error)
	ClearCache(ctx context.Context) (*rpc.ClearCacheResponse, error)
}

var (
	_ Backend = (*Service)(nil)
	_ Backend = (*Client)(nil)
)

// Service owns the loaded crate indexes, the implementor registry and a
// cache of recent search results.
type Service struct {
	cfg     *config.Config
	set     *docset.Set
	engine  *query.Engine
	metrics *Metrics

	// results is nil when the query cache is disabled. generation counts
	// invalidations; a search only caches what it computed within one.
	results    *lru.Cache[string, []rpc.SymbolResult]
	resultsMu  sync.Mutex
	generation uint64
	loadGroup  singleflight.Group

	watchMu sync.Mutex
	watched map[string]bool
}

// NewService builds a service from cfg. A nil m gets a private registry.
func NewService(cfg *config.Config, m *Metrics) (*Service, error) {
	engine, err := query.NewEngine(cfg.Search.Options())
	if err != nil {
		return nil, fmt.Errorf("configuring search: %w", err)
	}
	if m == nil {
		m = NewMetrics()
	}

	s := &Service{
		cfg:     cfg,
		set:     docset.New(),
		engine:  engine,
		metrics: m,
		watched: make(map[string]bool),
	}
	if size := cfg.Daemon.QueryCacheSize; size > 0 {
		s.results, err = lru.New[string, []rpc.SymbolResult](size)
		if err != nil {
			return nil, fmt.Errorf("creating query cache: %w", err)
		}
	}

	s.set.Registry().OnMerge(func(crate string, entries []implementors.Entry) {
		s.metrics.Implementors.Add(float64(len(entries)))
		slog.Debug("implementors merged", "crate", crate, "entries", len(entries))
	})
	return s, nil
}

// Set returns the underlying document set.
func (s *Service) Set() *docset.Set { return s.set }

// Bootstrap loads the configured index and shard sources, marks the
// registry ready and, when enabled, watches shard directories until ctx is
// done. Load errors are logged, not returned.
func (s *Service) Bootstrap(ctx context.Context) {
	src := s.cfg.Sources
	if len(src.Indexes) > 0 {
		resp, _ := s.LoadIndex(ctx, rpc.LoadIndexRequest{Sources: src.Indexes}, func(msg string) {
			slog.Info(msg)
		})
		slog.Info("indexes loaded", "crates", len(resp.Crates), "errors", len(resp.Errors))
	}
	if len(src.Shards) > 0 {
		resp, _ := s.SubmitShard(ctx, rpc.SubmitShardRequest{Sources: src.Shards})
		slog.Info("shards loaded", "shards", resp.Shards, "entries", resp.Entries, "errors", len(resp.Errors))
	}
	s.MarkReady(ctx)

	if !src.Watch {
		return
	}
	for _, dir := range src.Shards {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			s.watch(ctx, dir)
		}
	}
}

func (s *Service) watch(ctx context.Context, dir string) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watched[dir] {
		return
	}
	s.watched[dir] = true

	go func() {
		err := s.set.Watch(ctx, dir, func(path string, r docset.Report) {
			s.countErrors("shard", r)
			slog.Info("shard submitted", "path", path, "entries", r.Entries, "errors", len(r.Errors))
		})
		if err != nil {
			slog.Warn("shard watcher stopped", "dir", dir, "error", err)
		}
		s.watchMu.Lock()
		delete(s.watched, dir)
		s.watchMu.Unlock()
	}()
}

func (s *Service) countErrors(source string, r docset.Report) {
	if n := len(r.Errors); n > 0 {
		s.metrics.LoadErrorsTotal.WithLabelValues(source).Add(float64(n))
	}
}

func toLoadResponse(r docset.Report) *rpc.LoadResponse {
	resp := &rpc.LoadResponse{
		Crates:  r.Crates,
		Shards:  r.Shards,
		Entries: r.Entries,
	}
	for _, err := range r.Errors {
		resp.Errors = append(resp.Errors, err.Error())
	}
	return resp
}

// LoadIndex loads each source in order. Concurrent loads of the same
// source share one fetch. Loading invalidates cached search results.
func (s *Service) LoadIndex(ctx context.Context, req rpc.LoadIndexRequest, onProgress func(string)) (*rpc.LoadResponse, error) {
	progress := func(msg string) {
		if onProgress != nil {
			onProgress(msg)
		}
	}

	var total docset.Report
	if req.Data != nil {
		name := "inline"
		if len(req.Sources) > 0 {
			name = req.Sources[0]
		}
		progress(fmt.Sprintf("decoding %s (%d bytes)", name, len(req.Data)))
		total = s.set.LoadIndexData(name, req.Data)
	} else {
		if len(req.Sources) == 0 {
			return nil, fmt.Errorf("%w: no index sources", ErrInvalidRequest)
		}
		for _, source := range req.Sources {
			progress(fmt.Sprintf("loading %s", source))
			key := source + "|" + strconv.FormatBool(req.Refresh)
			v, _, _ := s.loadGroup.Do(key, func() (any, error) {
				return s.set.LoadIndex(ctx, source, req.Refresh), nil
			})
			r := v.(docset.Report)
			progress(fmt.Sprintf("%s: %d crates, %d errors", source, len(r.Crates), len(r.Errors)))
			total.Crates = append(total.Crates, r.Crates...)
			total.Errors = append(total.Errors, r.Errors...)
		}
	}

	s.countErrors("index", total)
	s.metrics.Crates.Set(float64(len(s.set.Crates())))
	if len(total.Crates) > 0 {
		s.invalidateResults()
	}
	return toLoadResponse(total), nil
}

// SubmitShard decodes implementor shards from files, directories or inline
// data and submits them to the registry.
func (s *Service) SubmitShard(ctx context.Context, req rpc.SubmitShardRequest) (*rpc.LoadResponse, error) {
	var r docset.Report
	switch {
	case req.Data != nil:
		if req.Name == "" {
			return nil, fmt.Errorf("%w: shard data needs a file name", ErrInvalidRequest)
		}
		r = s.set.SubmitShardData(req.Name, req.Data)
	case len(req.Sources) > 0:
		r = s.set.LoadShards(ctx, req.Sources)
	default:
		return nil, fmt.Errorf("%w: no shard sources", ErrInvalidRequest)
	}
	s.countErrors("shard", r)
	return toLoadResponse(r), nil
}

// MarkReady flushes buffered shards into the registry.
func (s *Service) MarkReady(_ context.Context) (*rpc.MarkReadyResponse, error) {
	reg := s.set.Registry()
	pending := reg.Pending()
	reg.MarkReady()
	return &rpc.MarkReadyResponse{State: reg.State().String(), Flushed: pending}, nil
}

func searchKey(req rpc.SearchRequest) string {
	return req.Query + "\x00" + strings.Join(req.Crates, ",") + "\x00" + strconv.Itoa(req.Limit)
}

// Search runs a query over the selected crates, serving repeated queries
// from the result cache.
func (s *Service) Search(_ context.Context, req rpc.SearchRequest) (*rpc.SearchResponse, error) {
	key := searchKey(req)
	if s.results != nil {
		if cached, ok := s.results.Get(key); ok {
			s.metrics.SearchCacheTotal.WithLabelValues("hit").Inc()
			return &rpc.SearchResponse{Results: cached, Cached: true}, nil
		}
		s.metrics.SearchCacheTotal.WithLabelValues("miss").Inc()
	}

	gen := s.resultsGeneration()
	hits := s.engine.SearchString(req.Query, s.set.Select(req.Crates), req.Limit)
	results := make([]rpc.SymbolResult, 0, len(hits))
	for _, h := range hits {
		r := rpc.SymbolResult{
			Crate:   h.Crate,
			ID:      h.ID,
			Path:    h.Path,
			Kind:    h.Kind.String(),
			Summary: md.Summary(h.Doc, summaryWidth),
			Score:   h.Score,
			Match:   h.Match.String(),
		}
		if h.Signature != nil {
			r.Signature = h.Signature.String()
		}
		results = append(results, r)
	}

	s.storeResults(key, gen, results)
	return &rpc.SearchResponse{Results: results}, nil
}

func (s *Service) resultsGeneration() uint64 {
	s.resultsMu.Lock()
	defer s.resultsMu.Unlock()
	return s.generation
}

// storeResults caches results unless the cache was invalidated since gen
// was read, in which case they may describe crates no longer loaded.
func (s *Service) storeResults(key string, gen uint64, results []rpc.SymbolResult) {
	if s.results == nil {
		return
	}
	s.resultsMu.Lock()
	defer s.resultsMu.Unlock()
	if gen == s.generation {
		s.results.Add(key, results)
	}
}

func (s *Service) invalidateResults() {
	s.resultsMu.Lock()
	defer s.resultsMu.Unlock()
	s.generation++
	if s.results != nil {
		s.results.Purge()
	}
}

func toImplementorDoc(e implementors.Entry, known map[string]bool) rpc.ImplementorDoc {
	return rpc.ImplementorDoc{
		Crate:         e.Crate,
		Trait:         e.TraitPath,
		For:           e.ForTypePath,
		Text:          e.Text,
		Synthetic:     e.Synthetic,
		Negative:      e.Negative,
		Applicability: implementors.Evaluate(e, known).String(),
		DependsOn:     e.AutoTraitDependencies,
	}
}

// Implementors lists the impls of a type, of a trait, or of a trait for a
// type. Synthetic impls known not to hold are hidden from type lookups.
func (s *Service) Implementors(_ context.Context, req rpc.ImplementorsRequest) (*rpc.ImplementorsResponse, error) {
	reg := s.set.Registry()

	var entries []implementors.Entry
	switch {
	case req.Type != "":
		for _, e := range reg.LookupApplicable(req.Type, req.Known) {
			if req.Trait == "" || e.TraitPath == req.Trait {
				entries = append(entries, e)
			}
		}
	case req.Trait != "":
		entries = reg.ImplementorsOf(req.Trait)
	default:
		return nil, fmt.Errorf("%w: need a type or trait path", ErrInvalidRequest)
	}

	resp := &rpc.ImplementorsResponse{
		State:        reg.State().String(),
		Implementors: make([]rpc.ImplementorDoc, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Implementors = append(resp.Implementors, toImplementorDoc(e, req.Known))
	}
	return resp, nil
}

// Get renders the documentation page of the item at req.Path.
func (s *Service) Get(_ context.Context, req rpc.GetRequest) (*rpc.GetResponse, error) {
	if req.Path == "" {
		return nil, fmt.Errorf("%w: missing path", ErrInvalidRequest)
	}

	indexes := s.set.Indexes()
	if req.Crate != "" {
		indexes = s.set.Select([]string{req.Crate})
	}

	for _, idx := range indexes {
		ids := idx.Lookup(req.Path)
		if len(ids) == 0 {
			continue
		}
		entry := idx.Entry(ids[0])

		doc := md.Document{
			Title: entry.Path,
			Kind:  entry.Kind.String(),
			Doc:   entry.Doc,
			Meta: map[string]string{
				"crate": entry.Crate,
				"kind":  entry.Kind.String(),
			},
		}
		if entry.Signature != nil {
			doc.Signature = entry.Signature.String()
		}

		var children []string
		for id := 0; id < idx.Len(); id++ {
			if p, ok := idx.Parent(id); ok && p == entry.ID {
				children = append(children, idx.Path(id))
			}
		}
		doc.Sections = append(doc.Sections, md.Section{Heading: "Items", Items: children})

		var impls []string
		for _, e := range s.set.Registry().Lookup(entry.Path) {
			impls = append(impls, e.Text)
		}
		doc.Sections = append(doc.Sections, md.Section{Heading: "Trait Implementations", Items: impls})

		return &rpc.GetResponse{Markdown: md.Render(doc)}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, req.Path)
}

// Status reports the loaded crates and the registry state.
func (s *Service) Status(_ context.Context) (*rpc.StatusResponse, error) {
	reg := s.set.Registry()
	resp := &rpc.StatusResponse{
		RegistryState:  reg.State().String(),
		PendingShards:  reg.Pending(),
		RegistryCrates: reg.Crates(),
		Implementors:   reg.Len(),
	}
	for _, idx := range s.set.Indexes() {
		resp.Crates = append(resp.Crates, rpc.CrateStatus{
			Name:            idx.Name(),
			Items:           idx.Len(),
			SignatureErrors: idx.SignatureErrors(),
		})
	}
	return resp, nil
}

// ClearCache empties the on-disk fetch cache and the search result cache.
func (s *Service) ClearCache(_ context.Context) (*rpc.ClearCacheResponse, error) {
	removed, err := cache.Clear()
	if err != nil {
		return nil, fmt.Errorf("clearing fetch cache: %w", err)
	}
	s.invalidateResults()
	return &rpc.ClearCacheResponse{Status: "ok", Removed: removed}, nil
}
