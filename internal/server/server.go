// Package server is the development server: it serves the output directory
// over HTTP and pushes reload and CSS-inject messages to connected browsers.
package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/sitepipe/internal/logging"
)

// Options configure a DevServer.
type Options struct {
	// Root is the directory served, normally the output directory.
	Root string
	Host string
	// Port is the first candidate; the next PortAttempts-1 ports are tried
	// when it is taken.
	Port         int
	PortAttempts int
	// Notify shows an in-page banner on reload events.
	Notify bool
	// Open launches the system browser once the server is listening.
	Open bool
}

// DevServer serves static files with live reload. It implements
// build.Notifier.
type DevServer struct {
	options    Options
	hub        *Hub
	logger     logging.Logger
	httpServer *http.Server
	listener   net.Listener
	ready      chan struct{}

	shutdownOnce sync.Once
	serverMutex  sync.RWMutex
}

// New creates a dev server. Nothing is bound until Start.
func New(options Options, logger logging.Logger) *DevServer {
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.WithComponent("server")
	if options.PortAttempts < 1 {
		options.PortAttempts = 1
	}
	return &DevServer{
		options: options,
		hub:     NewHub(logger),
		logger:  logger,
		ready:   make(chan struct{}),
	}
}

// Handler returns the HTTP routes of the server.
func (s *DevServer) Handler() http.Handler {
	script := clientScript(s.options.Notify)

	mux := http.NewServeMux()
	mux.Handle(LiveReloadPath, s.hub)
	mux.HandleFunc(LiveReloadScript, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write([]byte(script))
	})
	mux.Handle("/", &staticHandler{root: s.options.Root, inject: true})

	return s.logRequests(mux)
}

func (s *DevServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "Request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// Start binds the first free port and serves until ctx is done. A port
// search that finds nothing is returned as an error.
func (s *DevServer) Start(ctx context.Context) error {
	listener, err := FindPort(s.options.Host, s.options.Port, s.options.PortAttempts)
	if err != nil {
		return fmt.Errorf("binding dev server: %w", err)
	}

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.hub.Run(hubCtx)

	s.serverMutex.Lock()
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()
	close(s.ready)

	url := s.URL()
	if port := PortOf(listener); port != s.options.Port {
		s.logger.Info(ctx, "Port in use, using next free port", "requested", s.options.Port, "port", port)
	}
	s.logger.Info(ctx, "Serving", "url", url, "root", s.options.Root)
	if s.options.Open {
		go s.openBrowser(url)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Ready is closed once the server is listening.
func (s *DevServer) Ready() <-chan struct{} {
	return s.ready
}

// Port returns the bound port, or 0 before Start.
func (s *DevServer) Port() int {
	s.serverMutex.RLock()
	defer s.serverMutex.RUnlock()
	if s.listener == nil {
		return 0
	}
	return PortOf(s.listener)
}

// URL returns the address browsers should open.
func (s *DevServer) URL() string {
	host := s.options.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s", net.JoinHostPort(host, fmt.Sprint(s.Port())))
}

// Clients returns the number of connected live-reload clients.
func (s *DevServer) Clients() int {
	return s.hub.Clients()
}

// Reload asks every browser for a full page reload.
func (s *DevServer) Reload() {
	s.hub.Send(UpdateMessage{Type: MessageFullReload})
}

// Inject asks every browser to swap in the stylesheet written to path.
// Files outside the served root fall back to a full reload.
func (s *DevServer) Inject(path string) {
	target, ok := s.urlPath(path)
	if !ok {
		s.Reload()
		return
	}
	s.hub.Send(UpdateMessage{Type: MessageCSSUpdate, Target: target})
}

// urlPath converts a file below the root into its URL path.
func (s *DevServer) urlPath(file string) (string, bool) {
	root, err := filepath.Abs(s.options.Root)
	if err != nil {
		return "", false
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return "/" + filepath.ToSlash(rel), true
}

// Shutdown closes the HTTP server. Live-reload clients are closed when the
// context given to Start is done.
func (s *DevServer) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()

		if server != nil {
			s.logger.Info(ctx, "Shutting down server")
			err = server.Shutdown(ctx)
		}
	})
	return err
}

func (s *DevServer) openBrowser(url string) {
	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}

	if err != nil {
		s.logger.Warn(context.Background(), err, "Failed to open browser", "url", url)
	}
}
