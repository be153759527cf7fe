package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jcdickinson/ferrisindex/internal/config"
	"github.com/jcdickinson/ferrisindex/internal/rpc"
)

type Server struct {
	svc        *Service
	metrics    *Metrics
	cfg        *config.Config
	socketPath string
	expiration time.Duration

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	expTimer   *time.Timer
	// cancel stops startup loading and shard watchers.
	cancel context.CancelFunc
}

func NewServer(cfg *config.Config, socketPath string) (*Server, error) {
	metrics := NewMetrics()
	svc, err := NewService(cfg, metrics)
	if err != nil {
		return nil, err
	}

	expSec := cfg.Daemon.ExpirationSeconds
	if expSec <= 0 {
		expSec = 600
	}

	return &Server{
		svc:        svc,
		metrics:    metrics,
		cfg:        cfg,
		socketPath: socketPath,
		expiration: time.Duration(expSec) * time.Second,
	}, nil
}

// Service returns the server's backing service.
func (s *Server) Service() *Service { return s.svc }

// Handler returns the daemon's HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, s.metrics.instrument(endpoint, s.withExpReset(h)))
	}
	route("POST /load-index", "load-index", s.handleLoadIndex)
	route("POST /submit-shard", "submit-shard", s.handleSubmitShard)
	route("POST /mark-ready", "mark-ready", s.handleMarkReady)
	route("POST /search", "search", s.handleSearch)
	route("POST /implementors", "implementors", s.handleImplementors)
	route("POST /get", "get", s.handleGet)
	route("GET /status", "status", s.handleStatus)
	route("POST /clear-cache", "clear-cache", s.handleClearCache)
	mux.HandleFunc("POST /shutdown", s.handleShutdown)
	mux.Handle("GET /metrics", s.metrics.Handler())
	return mux
}

func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0755); err != nil {
		return fmt.Errorf("creating socket directory: %w", err)
	}
	os.Remove(s.socketPath)

	httpServer := &http.Server{Handler: s.Handler()}
	s.mu.Lock()
	s.httpServer = httpServer
	s.mu.Unlock()

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on socket: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("setting socket permissions: %w", err)
	}

	bootCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.listener = listener
	s.cancel = cancel
	s.expTimer = time.AfterFunc(s.expiration, s.expire)
	s.mu.Unlock()

	go s.svc.Bootstrap(bootCtx)

	log.Printf("daemon: listening on %s (expires after %s of inactivity)", s.socketPath, s.expiration)

	if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	var errs []error
	s.mu.Lock()
	httpServer, listener := s.httpServer, s.listener
	if s.cancel != nil {
		s.cancel()
	}
	if s.expTimer != nil {
		s.expTimer.Stop()
	}
	s.mu.Unlock()
	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Printf("daemon: shutdown error: %v", err)
			errs = append(errs, err)
		}
	}
	if listener != nil {
		if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Printf("daemon: listener close error: %v", err)
			errs = append(errs, err)
		}
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		log.Printf("daemon: socket remove error: %v", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Server) expire() {
	log.Printf("daemon: expiring due to inactivity")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Stop(ctx)
	os.Exit(0)
}

func (s *Server) resetExpiration() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expTimer != nil {
		s.expTimer.Stop()
		s.expTimer.Reset(s.expiration)
	}
}

func (s *Server) withExpReset(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.resetExpiration()
		handler(w, r)
	}
}

// handleLoadIndex streams progress as NDJSON and ends with the result.
func (s *Server) handleLoadIndex(w http.ResponseWriter, r *http.Request) {
	var req rpc.LoadIndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Sources) == 0 && req.Data == nil {
		writeError(w, http.StatusBadRequest, "missing sources")
		return
	}

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	disconnected := false
	send := func(line rpc.ProgressLine) {
		if disconnected {
			return
		}
		if err := enc.Encode(line); err != nil {
			log.Printf("daemon: client disconnected: %v", err)
			disconnected = true
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	resp, err := s.svc.LoadIndex(r.Context(), req, func(msg string) {
		log.Printf("daemon: %s", msg)
		send(rpc.ProgressLine{Type: "progress", Message: msg})
	})
	if err != nil {
		resp = &rpc.LoadResponse{Errors: []string{err.Error()}}
	}
	send(rpc.ProgressLine{Type: "result", Result: resp})
}

func (s *Server) handleSubmitShard(w http.ResponseWriter, r *http.Request) {
	var req rpc.SubmitShardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := s.svc.SubmitShard(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMarkReady(w http.ResponseWriter, r *http.Request) {
	resp, err := s.svc.MarkReady(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	log.Printf("daemon: registry ready, %d buffered shards merged", resp.Flushed)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req rpc.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := s.svc.Search(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleImplementors(w http.ResponseWriter, r *http.Request) {
	var req rpc.ImplementorsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := s.svc.Implementors(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	var req rpc.GetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := s.svc.Get(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := s.svc.Status(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	resp, err := s.svc.ClearCache(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	log.Printf("daemon: fetch cache cleared (%d files)", resp.Removed)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "shutting down"})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Stop(ctx)
		os.Exit(0)
	}()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
