// Package login drives one browser-based OAuth login from the authorization
// URL to a persisted credential.
package login

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/waskosky/codex/internal/authstore"
	"github.com/waskosky/codex/internal/callback"
	"github.com/waskosky/codex/internal/oidc"
	"github.com/waskosky/codex/internal/session"
)

const (
	// DefaultCallbackTimeout bounds how long the flow waits for the browser.
	DefaultCallbackTimeout = 10 * time.Minute

	// DefaultExchangeTimeout bounds the token exchange round trip.
	DefaultExchangeTimeout = 30 * time.Second
)

// ErrAlreadyRun is returned when Run is called more than once on a Flow.
var ErrAlreadyRun = errors.New("login flow has already run")

// Store receives the credential of a successful login.
type Store interface {
	Save(cred *authstore.Credential) error
}

// Options are the explicit inputs of a login. Nothing is read from
// process-wide state.
type Options struct {
	Issuer   string
	ClientID string

	// Port is the loopback port for the callback listener (0 = OS-assigned).
	Port int

	// OpenBrowser launches the browser on the authorization URL.
	OpenBrowser bool

	// Home is the directory the credential is saved under when no Store is set.
	Home string

	CallbackTimeout time.Duration
	ExchangeTimeout time.Duration

	// Output receives the authorization URL. Defaults to os.Stderr.
	Output io.Writer
}

// Option customizes a Flow.
type Option func(*Flow) error

// WithOverrides makes the session deterministic: the CSRF state is fixed
// and the login may be restricted to one account.
func WithOverrides(o session.Overrides) Option {
	return func(f *Flow) error {
		f.overrides = &o
		return nil
	}
}

// WithBrowser replaces the browser launcher.
func WithBrowser(open BrowserFunc) Option {
	return func(f *Flow) error {
		if open == nil {
			return fmt.Errorf("browser launcher must not be nil")
		}
		f.openURL = open
		return nil
	}
}

// WithStore replaces the credential store.
func WithStore(store Store) Option {
	return func(f *Flow) error {
		if store == nil {
			return fmt.Errorf("store must not be nil")
		}
		f.store = store
		return nil
	}
}

// WithHTTPClient sets the client used for the token exchange.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Flow) error {
		f.httpClient = client
		return nil
	}
}

// WithObserver registers a function called on every state transition.
func WithObserver(observe func(State)) Option {
	return func(f *Flow) error {
		f.observe = observe
		return nil
	}
}

// Flow is a single login attempt. It is not reusable.
type Flow struct {
	opts      Options
	overrides *session.Overrides

	openURL    BrowserFunc
	store      Store
	httpClient *http.Client
	observe    func(State)
	now        func() time.Time

	mu      sync.Mutex
	state   State
	started bool

	sess     *session.Session
	listener *callback.Listener
}

// New validates opts and prepares a flow. No port is bound and no CSRF
// state is generated until Run.
func New(opts Options, options ...Option) (*Flow, error) {
	if opts.Issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}
	if opts.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if opts.Port < 0 || opts.Port > 65535 {
		return nil, fmt.Errorf("port out of range: %d", opts.Port)
	}
	if opts.CallbackTimeout <= 0 {
		opts.CallbackTimeout = DefaultCallbackTimeout
	}
	if opts.ExchangeTimeout <= 0 {
		opts.ExchangeTimeout = DefaultExchangeTimeout
	}
	if opts.Output == nil {
		opts.Output = os.Stderr
	}

	f := &Flow{
		opts:    opts,
		openURL: openBrowser,
		now:     time.Now,
		state:   NotStarted,
	}
	for _, o := range options {
		if err := o(f); err != nil {
			return nil, err
		}
	}

	if f.store == nil {
		if opts.Home == "" {
			return nil, fmt.Errorf("home directory is required when no store is set")
		}
		f.store = &authstore.FileStore{Home: opts.Home}
	}

	// The session itself is created by Run; only the forced state is checked
	// here so a bad override fails before anything is bound.
	if f.overrides != nil && f.overrides.State == "" {
		return nil, fmt.Errorf("forced state must not be empty")
	}

	return f, nil
}

func (f *Flow) newSession() (*session.Session, error) {
	params := session.Params{
		Issuer:   f.opts.Issuer,
		ClientID: f.opts.ClientID,
		Port:     f.opts.Port,
		Home:     f.opts.Home,
	}
	if f.overrides != nil {
		return session.NewWithOverrides(params, *f.overrides)
	}
	return session.New(params)
}

// sessionID is the log correlation id, empty before the session exists.
func (f *Flow) sessionID() string {
	if f.sess == nil {
		return ""
	}
	return f.sess.ID
}

// State returns the current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Run drives the login to Complete or Failed. Every failure is a
// *FailedError. Cancelling ctx shuts the callback listener down and
// releases its port before Run returns.
func (f *Flow) Run(ctx context.Context) (*authstore.Credential, error) {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return nil, ErrAlreadyRun
	}
	f.started = true
	f.mu.Unlock()

	// NotStarted -> AwaitingBrowserOpen: a fresh session (CSRF state, PKCE
	// verifier) for this attempt, then the listener is bound so the
	// redirect URI carries the real port.
	sess, err := f.newSession()
	if err != nil {
		return nil, f.fail(KindInternal, fmt.Errorf("failed to create login session: %w", err))
	}
	f.sess = sess
	log := slog.With("session_id", sess.ID)

	f.transition(AwaitingBrowserOpen)

	ln, err := callback.Listen(callback.Config{
		Port:          f.sess.Port,
		ExpectedState: f.sess.State,
		MaxWait:       f.opts.CallbackTimeout,
	})
	if err != nil {
		kind := KindInternal
		var bindErr *callback.BindError
		if errors.As(err, &bindErr) {
			kind = KindBind
		}
		return nil, f.fail(kind, err)
	}
	f.listener = ln

	client, err := oidc.NewClient(oidc.ClientConfig{
		Issuer:      f.sess.Issuer,
		ClientID:    f.sess.ClientID,
		RedirectURI: ln.RedirectURI(),
		Timeout:     f.opts.ExchangeTimeout,
		HTTPClient:  f.httpClient,
	})
	if err != nil {
		return nil, f.fail(KindInternal, err)
	}

	authURL := client.AuthURL(f.sess.State, f.sess.CodeVerifier, f.sess.ForcedAccountID)

	_, _ = fmt.Fprintf(f.opts.Output, "Starting local login server on %s.\n", ln.RedirectURI())
	_, _ = fmt.Fprintf(f.opts.Output, "If your browser did not open, navigate to this URL to authenticate:\n\n%s\n\n", authURL)

	if f.opts.OpenBrowser {
		if err := f.openURL(authURL); err != nil {
			log.Warn("failed to open browser", "error", err)
		}
	}

	// AwaitingCallback
	f.transition(AwaitingCallback)
	log.Info("waiting for authorization callback", "port", ln.Port(), "timeout", f.opts.CallbackTimeout)

	code, err := ln.Wait(ctx)
	if err != nil {
		return nil, f.fail(callbackKind(err), err)
	}

	// ExchangingToken
	f.transition(ExchangingToken)

	tokens, err := client.Exchange(ctx, code, f.sess.CodeVerifier)
	if err != nil {
		return nil, f.fail(KindExchange, err)
	}

	// ParsingClaims
	f.transition(ParsingClaims)

	claims, err := oidc.ParseIDToken(tokens.IDToken)
	if err != nil {
		return nil, f.fail(claimsKind(err), err)
	}

	if f.sess.ForcedAccountID != "" && claims.AccountID != f.sess.ForcedAccountID {
		return nil, f.fail(KindWorkspaceMismatch, &WorkspaceMismatchError{
			Want: f.sess.ForcedAccountID,
			Got:  claims.AccountID,
		})
	}

	cred, err := authstore.NewCredential(tokens, claims, f.sess.Issuer, f.sess.ClientID, f.now())
	if err != nil {
		return nil, f.fail(KindInternal, err)
	}

	if err := f.store.Save(cred); err != nil {
		return nil, f.fail(KindPersist, err)
	}

	f.transition(Complete)
	log.Info("login complete",
		"plan_type", claims.PlanType,
		"account_id", claims.AccountID,
	)

	return cred, nil
}

func (f *Flow) transition(to State) {
	f.mu.Lock()
	from := f.state
	f.state = to
	f.mu.Unlock()

	if to.Terminal() && f.listener != nil {
		_ = f.listener.Close()
	}

	slog.Debug("login state transition", "session_id", f.sessionID(), "from", from.String(), "to", to.String())

	if f.observe != nil {
		f.observe(to)
	}
}

// fail moves the flow to Failed and returns the error describing why.
func (f *Flow) fail(kind ErrorKind, err error) error {
	ferr := &FailedError{From: f.State(), Kind: kind, Err: err}

	slog.Error("login failed", // #nosec G706 -- error values never carry tokens
		"session_id", f.sessionID(),
		"from", ferr.From.String(),
		"kind", string(kind),
		"error", err,
	)

	f.transition(Failed)
	return ferr
}
