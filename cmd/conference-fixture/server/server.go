// Package server provides an importable stand-in for the conferencing
// application. It serves the UI the workflows drive, the REST API the
// room client talks to and a receive-only WebRTC endpoint, so end-to-end
// scenarios can start and stop it from tests without running main().
package server

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/mux"
)

// Config holds server configuration options.
type Config struct {
	Addr         string        // Listen address (e.g., ":8080" or ":0" for random port)
	ReadTimeout  time.Duration // HTTP read timeout
	WriteTimeout time.Duration // HTTP write timeout
	// Title is the document title of every UI page.
	Title string
	// Secret signs bearer tokens. A random secret is generated if empty.
	Secret []byte
	// Users maps login email to password.
	Users  map[string]string
	Logger logr.Logger
}

// DefaultConfig returns a configuration suitable for testing.
// Uses ":0" to bind to a random available port.
func DefaultConfig() Config {
	return Config{
		Addr:         ":0",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Title:        "QuavStreams (dev)",
		Users: map[string]string{
			"owner@example.com": "owner-password",
			"user@example.com":  "user-password",
		},
		Logger: logr.Discard(),
	}
}

// Server is an in-process conferencing application.
type Server struct {
	cfg        Config
	log        logr.Logger
	store      *Store
	media      *media
	metrics    *metrics
	httpServer *http.Server
	listener   net.Listener
	addr       string
	mu         sync.Mutex
	running    bool
}

// NewServer creates a new server with the given configuration.
// The server is not started until Start() is called.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Logger.GetSink() == nil {
		cfg.Logger = logr.Discard()
	}
	if cfg.Title == "" {
		return nil, errors.New("title is required")
	}
	if len(cfg.Secret) == 0 {
		cfg.Secret = make([]byte, 32)
		if _, err := rand.Read(cfg.Secret); err != nil {
			return nil, fmt.Errorf("generating token secret: %w", err)
		}
	}

	s := &Server{
		cfg:     cfg,
		log:     cfg.Logger,
		store:   NewStore(cfg.Users),
		metrics: newMetrics(),
	}
	var err error
	if s.media, err = newMedia(cfg.Logger.WithName("media"), s.metrics); err != nil {
		return nil, err
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

// Handler returns the routes of the server, for use with httptest.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.metrics.instrument, s.authenticate)
	r.Handle("/metrics", s.metrics.handler()).Methods(http.MethodGet)
	s.addAPIRoutes(r)
	s.addPageRoutes(r)
	return r
}

// Start begins listening and serving HTTP requests.
// Returns the actual address the server is listening on (useful when port is 0).
// This method is non-blocking - the server runs in a goroutine.
func (s *Server) Start() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return s.addr, nil
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen: %w", err)
	}

	s.listener = ln
	s.addr = ln.Addr().String()
	s.running = true

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error(err, "server stopped")
		}
	}()

	s.log.Info("listening", "addr", s.addr)
	return s.addr, nil
}

// Shutdown gracefully shuts down the server and closes every peer
// connection.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.running = false
	return errors.Join(s.httpServer.Shutdown(ctx), s.media.CloseAll())
}

// Addr returns the address the server is listening on.
// Returns empty string if server is not running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// URL returns the base URL of the running server, with loopback in place
// of an unspecified host.
func (s *Server) URL() string {
	addr := s.Addr()
	if addr == "" {
		return ""
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// Store returns the server's state, for seeding and inspection in tests.
func (s *Server) Store() *Store {
	return s.store
}
