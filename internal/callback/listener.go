// Package callback implements the short-lived loopback HTTP listener that
// receives the provider's authorization redirect.
package callback

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

//go:embed templates/*.html
var templatesFS embed.FS

const (
	// DefaultPath is the redirect path registered with the provider.
	DefaultPath = "/auth/callback"

	cancelPath   = "/cancel"
	loopbackHost = "127.0.0.1"

	// shutdownGrace bounds how long in-flight responses may take to drain.
	shutdownGrace = 2 * time.Second
)

// Config describes one listener.
type Config struct {
	// Port to bind on the loopback interface. 0 asks the OS for a free port.
	Port int

	// ExpectedState is the CSRF state the redirect must echo byte for byte.
	ExpectedState string

	// MaxWait is how long Wait blocks before giving up with ErrTimeout.
	MaxWait time.Duration

	// Path is the redirect path. Defaults to DefaultPath.
	Path string
}

type result struct {
	code string
	err  error
}

// Listener accepts requests until exactly one callback outcome is produced.
type Listener struct {
	cfg        Config
	listener   net.Listener
	httpServer *http.Server
	mux        *http.ServeMux
	templates  *template.Template
	limiter    *rate.Limiter

	once sync.Once
	done chan struct{}
	res  result

	closeOnce sync.Once
	serveDone chan struct{}
}

// Listen binds the loopback port synchronously and starts serving in the
// background. A bind failure is returned as *BindError and is not retried.
func Listen(cfg Config) (*Listener, error) {
	l, err := newListener(cfg)
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(loopbackHost, strconv.Itoa(cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, &BindError{Addr: addr, Err: err}
	}
	l.listener = ln

	slog.Info("callback listener started",
		"addr", ln.Addr().String(),
		"path", l.cfg.Path,
		"max_wait", l.cfg.MaxWait,
	)

	go l.serve()

	return l, nil
}

// newListener builds the handler chain without binding a socket.
func newListener(cfg Config) (*Listener, error) {
	if cfg.ExpectedState == "" {
		return nil, fmt.Errorf("expected state is required")
	}
	if cfg.MaxWait <= 0 {
		return nil, fmt.Errorf("max wait must be positive")
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}

	// Parse templates
	templates, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	l := &Listener{
		cfg:       cfg,
		mux:       http.NewServeMux(),
		templates: templates,
		// 10 requests per second, burst of 50
		limiter:   rate.NewLimiter(10, 50),
		done:      make(chan struct{}),
		serveDone: make(chan struct{}),
	}

	// Register routes
	l.mux.HandleFunc(cfg.Path, l.handleCallback)
	l.mux.HandleFunc(cancelPath, l.handleCancel)
	l.mux.HandleFunc("/", l.handleNotFound)

	// Wrap with middleware
	handler := loggingMiddleware(l.mux)
	handler = recoveryMiddleware(handler)
	handler = l.rateLimitMiddleware(handler)
	handler = securityHeadersMiddleware(handler)

	l.httpServer = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return l, nil
}

func (l *Listener) serve() {
	defer close(l.serveDone)
	if err := l.httpServer.Serve(l.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("callback listener stopped unexpectedly", "error", err)
		l.finish(result{err: fmt.Errorf("callback listener failed: %w", err)})
	}
}

// Port returns the bound port.
func (l *Listener) Port() int {
	return l.listener.Addr().(*net.TCPAddr).Port
}

// RedirectURI returns the redirect URI that points at this listener.
func (l *Listener) RedirectURI() string {
	return fmt.Sprintf("http://localhost:%d%s", l.Port(), l.cfg.Path)
}

// Wait blocks until a callback outcome is produced, MaxWait elapses or ctx
// is done, whichever comes first. It returns the authorization code on
// success. The listener is shut down and its port released before Wait
// returns, on every path.
func (l *Listener) Wait(ctx context.Context) (string, error) {
	defer func() { _ = l.Close() }()

	timer := time.NewTimer(l.cfg.MaxWait)
	defer timer.Stop()

	select {
	case <-l.done:
	case <-timer.C:
		l.finish(result{err: ErrTimeout})
	case <-ctx.Done():
		l.finish(result{err: ctx.Err()})
	}

	return l.res.code, l.res.err
}

// finish records the outcome. Only the first call wins; it reports whether
// this call was the one that recorded the outcome.
func (l *Listener) finish(r result) bool {
	won := false
	l.once.Do(func() {
		l.res = r
		close(l.done)
		won = true
	})
	return won
}

// Close stops accepting connections, lets in-flight responses drain for a
// short grace period and releases the port. It is safe to call repeatedly.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.finish(result{err: ErrCancelled})

		if l.listener == nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		if err = l.httpServer.Shutdown(ctx); err != nil {
			slog.Warn("callback listener did not drain in time, closing", "error", err)
			err = l.httpServer.Close()
		}
		<-l.serveDone

		slog.Debug("callback listener closed", "addr", l.listener.Addr().String())
	})
	return err
}
