package amt8000

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Defaults for the polling coordinator. The panel copes badly with being
// hammered, so failures push the next attempt out exponentially.
const (
	DefaultPollInterval = 10 * time.Second
	DefaultBaseBackoff  = 2 * time.Second
	DefaultMaxBackoff   = time.Minute
	DefaultMaxFailures  = 5
)

// ZoneStatus is the merged per-zone view handed to consumers: the paired
// flag from the dedicated query combined with the open bit from the last
// status.
type ZoneStatus struct {
	Number int
	Paired bool
	Open   bool
}

func (z ZoneStatus) Display() string {
	switch {
	case !z.Paired:
		return "unpaired"
	case z.Open:
		return "open"
	default:
		return "closed"
	}
}

// Snapshot is the coordinator's cached view of the panel. It is replaced
// wholesale on every successful poll and retained unchanged across failed
// ones, so consumers always have the last known-good state.
type Snapshot struct {
	Status  Status
	Paired  [ZoneCount]bool
	Zones   [ZoneCount]ZoneStatus
	TakenAt time.Time
	Attempt int
}

type panelConn interface {
	Connect() error
	Auth(password string) error
	Close()
	Status() (Status, error)
	PairedSensors() ([ZoneCount]bool, error)
}

// Coordinator owns the poll cadence against one panel: it throttles after
// failures, fetches the paired-zone set once, and serves stale snapshots
// rather than going blank when the panel is slow or rebooting.
type Coordinator struct {
	cfg         ConnConfig
	baseBackoff time.Duration
	maxBackoff  time.Duration
	maxFailures int
	now         func() time.Time
	dial        func() panelConn

	poll sync.Mutex // at most one cycle in flight

	mu       sync.Mutex
	snapshot *Snapshot
	failures int
	deadline time.Time
	attempts int
	paired   [ZoneCount]bool
	pairedOK bool
}

func NewCoordinator(cfg ConnConfig) *Coordinator {
	return &Coordinator{
		cfg:         cfg,
		baseBackoff: DefaultBaseBackoff,
		maxBackoff:  DefaultMaxBackoff,
		maxFailures: DefaultMaxFailures,
		now:         time.Now,
		dial:        func() panelConn { return New(cfg) },
	}
}

// Poll runs one update cycle. Inside the backoff window, or while another
// cycle is still in flight, it serves the cached snapshot without touching
// the network. A failed cycle also serves the cached snapshot; an error
// surfaces only when there has never been a successful poll.
func (c *Coordinator) Poll(ctx context.Context) (Snapshot, error) {
	if !c.poll.TryLock() {
		return c.cached()
	}
	defer c.poll.Unlock()

	c.mu.Lock()
	deadline := c.deadline
	c.attempts++
	attempt := c.attempts
	c.mu.Unlock()

	if c.now().Before(deadline) {
		return c.cached()
	}

	status, err := c.fetch(ctx)
	switch {
	case err == nil:
		return c.succeed(status, attempt), nil
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// Teardown, not a panel problem: do not arm the backoff.
		if snap, cerr := c.cached(); cerr == nil {
			return snap, nil
		}
		return Snapshot{}, err
	default:
		return c.fail(err)
	}
}

// Last returns the most recent snapshot, if any poll ever succeeded.
func (c *Coordinator) Last() (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil {
		return Snapshot{}, false
	}
	return *c.snapshot, true
}

// RefreshZones forces a fresh paired-zone query on its own connection,
// outside the poll cadence, for when sensors are added to or removed from
// the panel.
func (c *Coordinator) RefreshZones(ctx context.Context) error {
	var paired [ZoneCount]bool
	if err := c.withConn(ctx, func(conn panelConn) error {
		var err error
		paired, err = conn.PairedSensors()
		return err
	}); err != nil {
		return err
	}
	c.mu.Lock()
	c.paired = paired
	c.pairedOK = true
	c.mu.Unlock()
	return nil
}

// Run polls at the given interval until ctx is canceled. Cycles never
// overlap: Poll itself skips when one is still running.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration, onUpdate func(Snapshot)) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		snap, err := c.Poll(ctx)
		if err != nil {
			log.Error("could not update panel state", "err", err)
		} else if onUpdate != nil {
			onUpdate(snap)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}

func (c *Coordinator) fetch(ctx context.Context) (Status, error) {
	var status Status
	err := c.withConn(ctx, func(conn panelConn) error {
		c.mu.Lock()
		needZones := !c.pairedOK
		c.mu.Unlock()
		if needZones {
			paired, err := conn.PairedSensors()
			if err != nil {
				return err
			}
			c.mu.Lock()
			c.paired = paired
			c.pairedOK = true
			c.mu.Unlock()
		}
		var err error
		status, err = conn.Status()
		return err
	})
	return status, err
}

// withConn is the scoped-acquisition path for coordinator I/O: connect,
// auth, run fn, and close on every exit, including ctx cancellation, which
// closes the socket out from under any blocked read.
func (c *Coordinator) withConn(ctx context.Context, fn func(conn panelConn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn := c.dial()
	if err := conn.Connect(); err != nil {
		return err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, conn.Close)
	defer stop()
	err := func() error {
		if err := conn.Auth(c.cfg.Password); err != nil {
			return err
		}
		return fn(conn)
	}()
	// A cancel closes the socket under whatever was blocked, so the I/O
	// error it produces is really the context's.
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	return err
}

func (c *Coordinator) succeed(status Status, attempt int) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		Status:  status,
		Paired:  c.paired,
		TakenAt: c.now(),
		Attempt: attempt,
	}
	for i := range snap.Zones {
		snap.Zones[i] = ZoneStatus{
			Number: i + 1,
			Paired: c.paired[i],
			Open:   status.Zones[i],
		}
	}
	c.snapshot = &snap
	c.failures = 0
	c.deadline = time.Time{}
	return snap
}

func (c *Coordinator) fail(err error) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failures < c.maxFailures {
		c.failures++
	}
	delay := nextBackoff(c.baseBackoff, c.maxBackoff, c.failures)
	c.deadline = c.now().Add(delay)
	log.Error("poll failed", "failures", c.failures, "retry-in", delay, "err", err)
	if c.snapshot == nil {
		return Snapshot{}, fmt.Errorf("panel update failed: %w", err)
	}
	return *c.snapshot, nil
}

func (c *Coordinator) cached() (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil {
		return Snapshot{}, fmt.Errorf("no panel state available yet")
	}
	return *c.snapshot, nil
}

// nextBackoff doubles the delay with each consecutive failure, starting at
// base, capped at max. Pure, so the schedule is testable without a clock.
func nextBackoff(base, max time.Duration, failures int) time.Duration {
	if failures < 1 {
		return 0
	}
	d := base
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
