package confirm

import (
	"errors"
	"sync"
	"time"

	"github.com/unison-systems/actuation-core/internal/envelope"
)

// State is the confirmation lifecycle state for one held action.
type State string

const (
	// StatePending means the action is waiting for confirmations.
	StatePending State = "pending_confirmation"

	// StateConfirmed means enough distinct confirmations arrived.
	StateConfirmed State = "confirmed"

	// StateDenied means the action was explicitly refused.
	StateDenied State = "denied"

	// StateExpired means the expiry elapsed with too few confirmations.
	// A timeout never counts as approval.
	StateExpired State = "expired"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateDenied || s == StateExpired
}

// Domain errors for the confirm package.
var (
	// ErrNotFound is returned when no pending confirmation exists for
	// the given action.
	ErrNotFound = errors.New("confirm: no pending confirmation for action")

	// ErrAlreadyResolved is returned when confirming or denying an
	// action whose confirmation already reached a terminal state.
	ErrAlreadyResolved = errors.New("confirm: confirmation already resolved")
)

// Pending is one action held awaiting confirmation.
type Pending struct {
	ConfirmationID string
	ActionID       string
	Envelope       *envelope.ActionEnvelope
	Required       int
	CreatedAt      time.Time
	ExpiresAt      time.Time

	state      State
	confirmers map[string]struct{}
	timer      *time.Timer
}

// State returns the current lifecycle state. Callers must hold no
// assumptions about it remaining current; use the coordinator callback
// for transition notifications.
func (p *Pending) State() State { return p.state }

// Confirmations returns how many distinct confirmers have approved.
func (p *Pending) Confirmations() int { return len(p.confirmers) }

// Logger is the minimal logging interface the coordinator needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ResolvedFunc is invoked exactly once per held action when it reaches
// a terminal state. It runs outside the coordinator lock, so it may
// call back into the coordinator or start driver execution directly.
type ResolvedFunc func(p *Pending, outcome State)

// Coordinator tracks actions held in pending_confirmation until an
// external confirmation event arrives or the configured expiry elapses.
//
// State machine per held action:
//
//	pending_confirmation → confirmed            (enough approvals)
//	pending_confirmation → denied               (explicit refusal)
//	pending_confirmation → expired              (timer, never assumed)
//
// All terminal transitions fire the ResolvedFunc. Thread-safe.
type Coordinator struct {
	mu      sync.Mutex
	pending map[string]*Pending // keyed by action ID

	expiry     time.Duration
	logger     Logger
	onResolved ResolvedFunc
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger attaches a logger.
func WithLogger(l Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCoordinator constructs a coordinator whose holds expire after the
// given duration. A zero or negative expiry disables the timer (holds
// persist until explicitly resolved).
func NewCoordinator(expiry time.Duration, opts ...Option) *Coordinator {
	c := &Coordinator{
		pending: make(map[string]*Pending),
		expiry:  expiry,
		logger:  noopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetOnResolved registers the terminal-transition callback. Must be
// called before the first Hold.
func (c *Coordinator) SetOnResolved(fn ResolvedFunc) {
	c.mu.Lock()
	c.onResolved = fn
	c.mu.Unlock()
}

// Hold places an envelope into pending_confirmation. The returned
// Pending is owned by the coordinator; callers read it only through
// the resolved callback or Get.
func (c *Coordinator) Hold(env *envelope.ActionEnvelope, confirmationID string, required int) *Pending {
	if required < 1 {
		required = 1
	}

	now := time.Now().UTC()
	p := &Pending{
		ConfirmationID: confirmationID,
		ActionID:       env.ActionID,
		Envelope:       env,
		Required:       required,
		CreatedAt:      now,
		state:          StatePending,
		confirmers:     make(map[string]struct{}),
	}

	c.mu.Lock()
	c.pending[env.ActionID] = p
	if c.expiry > 0 {
		p.ExpiresAt = now.Add(c.expiry)
		actionID := env.ActionID
		p.timer = time.AfterFunc(c.expiry, func() {
			c.expire(actionID)
		})
	}
	c.mu.Unlock()

	c.logger.Info("confirmation hold created",
		"action_id", env.ActionID,
		"confirmation_id", confirmationID,
		"required", required)

	return p
}

// Confirm records one approval from the given confirmer. Repeat
// approvals from the same confirmer are idempotent. When the number of
// distinct confirmers reaches the required count the hold transitions
// to confirmed and the resolved callback fires.
//
// Returns the state after this confirmation.
func (c *Coordinator) Confirm(actionID, confirmerID string) (State, error) {
	c.mu.Lock()
	p, ok := c.pending[actionID]
	if !ok {
		c.mu.Unlock()
		return "", ErrNotFound
	}
	if p.state.Terminal() {
		state := p.state
		c.mu.Unlock()
		return state, ErrAlreadyResolved
	}

	p.confirmers[confirmerID] = struct{}{}
	if len(p.confirmers) < p.Required {
		state := p.state
		c.mu.Unlock()
		c.logger.Debug("confirmation recorded",
			"action_id", actionID,
			"got", len(p.confirmers),
			"required", p.Required)
		return state, nil
	}

	c.resolveLocked(p, StateConfirmed)
	c.mu.Unlock()

	c.notify(p, StateConfirmed)
	return StateConfirmed, nil
}

// Deny refuses a pending confirmation. The hold transitions to denied
// and the resolved callback fires.
func (c *Coordinator) Deny(actionID string) error {
	c.mu.Lock()
	p, ok := c.pending[actionID]
	if !ok {
		c.mu.Unlock()
		return ErrNotFound
	}
	if p.state.Terminal() {
		c.mu.Unlock()
		return ErrAlreadyResolved
	}

	c.resolveLocked(p, StateDenied)
	c.mu.Unlock()

	c.notify(p, StateDenied)
	return nil
}

// Get returns the hold for an action, pending or terminal, and whether
// one exists.
func (c *Coordinator) Get(actionID string) (*Pending, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[actionID]
	return p, ok
}

// PendingCount returns the number of unresolved holds.
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, p := range c.pending {
		if !p.state.Terminal() {
			n++
		}
	}
	return n
}

// Close cancels all expiry timers. Unresolved holds stay pending; this
// is a shutdown aid, not a resolution.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
	}
}

// expire is the timer callback for one hold.
func (c *Coordinator) expire(actionID string) {
	c.mu.Lock()
	p, ok := c.pending[actionID]
	if !ok || p.state.Terminal() {
		c.mu.Unlock()
		return
	}
	c.resolveLocked(p, StateExpired)
	c.mu.Unlock()

	c.logger.Info("confirmation expired",
		"action_id", actionID,
		"got", p.Confirmations(),
		"required", p.Required)
	c.notify(p, StateExpired)
}

// resolveLocked marks the hold terminal and stops its timer.
// Caller holds c.mu.
func (c *Coordinator) resolveLocked(p *Pending, outcome State) {
	p.state = outcome
	if p.timer != nil {
		p.timer.Stop()
	}
}

// notify fires the resolved callback outside the lock.
func (c *Coordinator) notify(p *Pending, outcome State) {
	c.mu.Lock()
	fn := c.onResolved
	c.mu.Unlock()
	if fn != nil {
		fn(p, outcome)
	}
}
