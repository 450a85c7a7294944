// Package session owns the authenticated-user state machine. It is the
// only writer of session state; reactive consumers subscribe with OnChange
// while imperative callers use the returned errors (every failure is
// reported both ways).
package session

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/dgarza/acceso/auth"
)

// State is the coarse position of the session state machine.
type State int

// Session states.
const (
	StateUninitialized State = iota
	StateAuthenticating
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// ErrOperationInFlight is returned when an auth operation is started while
// another one is still outstanding. The browser original relied on the UI
// disabling its buttons; as a library this guard is explicit.
var ErrOperationInFlight = errors.New("auth operation already in flight")

// Snapshot is an immutable view of the session handed to subscribers.
type Snapshot struct {
	State           State
	User            *auth.User
	IsAuthenticated bool
	IsLoading       bool
	Err             string
}

// Controller drives the session state machine over the auth service.
type Controller struct {
	svc    *auth.Service
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	user     *auth.User
	errMsg   string
	inFlight bool
	onChange []func(Snapshot)
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewController creates a Controller in the uninitialized state. Like the
// page-load state of the original, it reports loading until Initialize has
// run.
func NewController(svc *auth.Service, opts ...Option) *Controller {
	c := &Controller{
		svc:    svc,
		logger: slog.Default(),
		state:  StateUninitialized,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnChange registers a subscriber notified after every state transition.
// Subscribers are invoked synchronously without the controller lock held.
func (c *Controller) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = append(c.onChange, fn)
}

// Snapshot returns the current session view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		State:           c.state,
		User:            c.user,
		IsAuthenticated: c.user != nil,
		IsLoading:       c.state == StateUninitialized || c.state == StateAuthenticating,
		Err:             c.errMsg,
	}
}

// transition applies a state change and notifies subscribers.
func (c *Controller) transition(mutate func()) {
	c.mu.Lock()
	mutate()
	// isAuthenticated must equal user presence; authenticated state with a
	// nil user (or the inverse) is a programming error, so normalize.
	if c.state == StateAuthenticated && c.user == nil {
		c.state = StateUnauthenticated
	}
	if c.state != StateAuthenticated {
		c.user = nil
	}
	snap := c.snapshotLocked()
	subs := append(([]func(Snapshot))(nil), c.onChange...)
	c.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// begin claims the in-flight slot. The returned release must be called
// once the operation reaches a terminal transition.
func (c *Controller) begin() (release func(), err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight {
		return nil, ErrOperationInFlight
	}
	c.inFlight = true
	return func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}, nil
}

// normalizeUser enforces the aggregate two-factor invariant on every user
// mutation.
func normalizeUser(u *auth.User) *auth.User {
	if u == nil {
		return nil
	}
	cp := *u
	cp.SyncTwoFactorFlags()
	return &cp
}
