package web

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"procmux/internal/app"
	"procmux/internal/domain"
)

// Request headers understood by the daemon.
const (
	HeaderAuthToken = "X-PMX-Auth-Token"
	HeaderContext   = "X-PMX-Context"
)

// Options carries the daemon's runtime settings.
type Options struct {
	Host            string
	Port            int
	AuthToken       string
	ParentCtx       string
	DataDir         string
	BaseURLPrefix   string
	ShutdownTimeout time.Duration
}

// Server is the HTTP front of the manager: it authenticates requests,
// resolves the target backend from the request path and context header, and
// reverse-proxies to it. Every session of the owning context funnels
// through one Server.
type Server struct {
	opts    Options
	manager *app.Manager
	state   *State
	procs   domain.ProcessController
	logger  domain.Logger

	// route extracts (identity, rest) from a request path.
	route *regexp.Regexp
	// redirectSuffix is the prefix without its trailing slash; a path
	// ending in it is redirected to the default identity.
	redirectSuffix string
}

func NewServer(opts Options, manager *app.Manager, state *State, procs domain.ProcessController, logger domain.Logger) *Server {
	trimmed := strings.TrimSuffix(opts.BaseURLPrefix, "/")
	return &Server{
		opts:           opts,
		manager:        manager,
		state:          state,
		procs:          procs,
		logger:         logger,
		route:          regexp.MustCompile(".*?" + regexp.QuoteMeta(trimmed) + "/([^/]+)/(.*)"),
		redirectSuffix: trimmed,
	}
}

// Run starts the default shared backend, the data-dir watcher, the orphan
// monitor and the HTTP listener, then blocks until ctx is cancelled or the
// listener fails. On the way out it drains orphaned backends.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.state.Reload(); err != nil {
		return fmt.Errorf("preload server state: %w", err)
	}

	backend, err := s.manager.StartForLauncherSession(ctx, s.opts.ParentCtx, true, s.opts.AuthToken)
	if err != nil {
		return err
	}
	if backend.Failed() {
		return fmt.Errorf("start default backend: %s", strings.Join(backend.Errors, ": "))
	}
	s.state.Put(backend)

	watcher, err := NewWatcher(s.state, s.opts.DataDir, s.logger)
	if err != nil {
		return err
	}
	go watcher.Run(ctx)
	go NewMonitor(s.opts.ParentCtx, s.procs, s.manager, cancel, s.logger).Run(ctx)

	srv := &http.Server{
		Addr:    net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port)),
		Handler: s.Routes(),
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("manager daemon listening", "addr", srv.Addr, "parent_ctx", s.opts.ParentCtx)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("http shutdown failed", "err", err)
	}
	s.manager.SweepOrphans("")
	return nil
}

// Routes builds the daemon's router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.authenticate)
	r.HandleFunc("/*", s.proxy)
	return r
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(HeaderAuthToken)
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.AuthToken)) != 1 {
			http.Error(w, "invalid or missing authentication token", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// proxy resolves the backend for a request and forwards it, upgrades
// included.
func (s *Server) proxy(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if strings.HasSuffix(path, s.redirectSuffix) {
		http.Redirect(w, r, path+"/default/", http.StatusFound)
		return
	}

	match := s.route.FindStringSubmatch(path)
	if match == nil {
		s.errorPage(w, "incorrect request path in the URL, please try with the correct URL")
		return
	}
	identity := strings.TrimSuffix(match[1], "/")
	rest := match[2]

	ctxID := r.Header.Get(HeaderContext)
	if ctxID == "" {
		s.errorPage(w, fmt.Sprintf("required header %s not found in the request", HeaderContext))
		return
	}

	backend := s.lookupBackend(ctxID, identity)
	if backend == nil {
		s.errorPage(w, "no running backend server for this session")
		return
	}

	target, err := url.Parse(backend.ServerURL)
	if err != nil {
		s.logger.Error("bad backend url", "url", backend.ServerURL, "err", err)
		s.errorPage(w, "backend server address is invalid")
		return
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Scheme = target.Scheme
			pr.Out.URL.Host = target.Host
			pr.Out.URL.Path = backend.BasePath + "/" + rest
			pr.Out.URL.RawQuery = r.URL.RawQuery
			pr.Out.Header.Set("X-Forwarded-Proto", "http")
			for k, v := range backend.Headers {
				pr.Out.Header.Set(k, v)
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			s.logger.Debug("backend request failed", "pid", backend.PID, "err", err)
			http.Error(w, "backend server is not reachable", http.StatusServiceUnavailable)
		},
	}
	proxy.ServeHTTP(w, r)
}

// lookupBackend returns the backend for (ctx, identity), falling back to
// the context's shared backend when the identity is unknown.
func (s *Server) lookupBackend(ctxID, identity string) *domain.ServerProcess {
	if backend, ok := s.state.Lookup(domain.MakeGroupKey(ctxID, identity)); ok {
		return backend
	}
	backend, ok := s.state.Lookup(domain.MakeGroupKey(ctxID, domain.SharedIdentity))
	if !ok {
		return nil
	}
	return backend
}

func (s *Server) errorPage(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusServiceUnavailable)
	fmt.Fprintf(w, `<p style="color: red;">%s</p>`, html.EscapeString(msg))
}
