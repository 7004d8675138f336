// Package session holds the per-connection session state machine. One
// machine lives for the lifetime of one terminal connection.
package session

import (
	"context"
	"sync"
	"time"

	"warnet-server-go/internal/domain/billing"
	"warnet-server-go/internal/domain/ledger/model"
	platformerrors "warnet-server-go/internal/platform/errors"
)

// State of a terminal connection.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Ledger is the slice of the billing service a session needs.
type Ledger interface {
	Authenticate(ctx context.Context, username, password, pcType string) (float64, error)
	Settle(ctx context.Context, entry model.SessionEntry) error
}

// Machine drives one connection through login and settlement. Stop and
// Abort may race on connection teardown; the settled flag guarantees the
// balance is debited exactly once.
type Machine struct {
	ledger   Ledger
	clock    func() time.Time
	connID   string
	clientIP string

	mutex    sync.Mutex
	state    State
	username string
	tier     string
	start    time.Time
	settled  bool
}

// Option customizes a machine.
type Option func(*Machine)

// WithClock replaces the wall clock, for tests.
func WithClock(clock func() time.Time) Option {
	return func(m *Machine) { m.clock = clock }
}

// New creates a machine in the unauthenticated state.
func New(ledger Ledger, connID, clientIP string, opts ...Option) *Machine {
	m := &Machine{
		ledger:   ledger,
		clock:    time.Now,
		connID:   connID,
		clientIP: clientIP,
		state:    StateUnauthenticated,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current state.
func (m *Machine) State() State {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.state
}

// Username returns the logged-in account, empty before login.
func (m *Machine) Username() string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.username
}

// Tier returns the PC class of the running session.
func (m *Machine) Tier() string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.tier
}

// StartTime returns the session start, zero before login.
func (m *Machine) StartTime() time.Time {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.start
}

// Login verifies credentials against the ledger and, on success, starts the
// session clock. It returns the balance in fractional hours for the
// terminal countdown. Ledger rejections pass through untouched so the
// caller can forward their message to the terminal.
func (m *Machine) Login(ctx context.Context, username, password, pcType string) (float64, error) {
	m.mutex.Lock()
	if m.state != StateUnauthenticated {
		state := m.state
		m.mutex.Unlock()
		return 0, platformerrors.New(platformerrors.KindSession, "session.Login",
			"login not allowed in state "+state.String())
	}
	m.mutex.Unlock()

	hours, err := m.ledger.Authenticate(ctx, username, password, pcType)
	if err != nil {
		return 0, err
	}

	m.mutex.Lock()
	m.state = StateAuthenticated
	m.username = username
	m.tier = pcType
	m.start = m.clock()
	m.mutex.Unlock()
	return hours, nil
}

// Stop ends the session at the terminal's request and settles it. The
// returned minute count is what was debited.
func (m *Machine) Stop(ctx context.Context) (int, error) {
	minutes, settledNow, err := m.settle(ctx)
	if err != nil {
		return 0, err
	}
	if !settledNow {
		return 0, platformerrors.New(platformerrors.KindSession, "session.Stop", "no session to stop")
	}
	return minutes, nil
}

// Abort settles a session torn down by connection loss. Unauthenticated or
// already settled connections are a no-op. It reports whether a settlement
// happened and the minutes debited.
func (m *Machine) Abort(ctx context.Context) (int, bool, error) {
	return m.settle(ctx)
}

// settle transitions to closed and debits elapsed minutes exactly once.
func (m *Machine) settle(ctx context.Context) (int, bool, error) {
	m.mutex.Lock()
	if m.state != StateAuthenticated || m.settled {
		m.state = StateClosed
		m.mutex.Unlock()
		return 0, false, nil
	}
	m.settled = true
	m.state = StateClosed
	entry := model.SessionEntry{
		ClientIP:        m.clientIP,
		Username:        m.username,
		StartTime:       m.start,
		DurationMinutes: billing.SettleMinutes(m.start, m.clock()),
		Tier:            m.tier,
	}
	m.mutex.Unlock()

	if err := m.ledger.Settle(ctx, entry); err != nil {
		return 0, false, err
	}
	return entry.DurationMinutes, true, nil
}
