package amt8000

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPoll(t *testing.T) {
	conn := &fakeConn{}
	conn.status.Model = "AMT-8000"
	conn.status.State = StateDisarmed
	conn.status.Zones[0] = true
	conn.paired[0] = true
	conn.paired[2] = true
	coord, _ := testCoordinator(conn)

	snap, err := coord.Poll(context.Background())
	require.NoError(t, err)
	require.Equal(t, "AMT-8000", snap.Status.Model)
	require.Equal(t, 1, snap.Attempt)
	require.Equal(t, ZoneStatus{Number: 1, Paired: true, Open: true}, snap.Zones[0])
	require.Equal(t, ZoneStatus{Number: 2}, snap.Zones[1])
	require.Equal(t, ZoneStatus{Number: 3, Paired: true}, snap.Zones[2])
	require.Equal(t, "open", snap.Zones[0].Display())
	require.Equal(t, "unpaired", snap.Zones[1].Display())
	require.Equal(t, "closed", snap.Zones[2].Display())

	// the paired-zone set is fetched on the first cycle only.
	_, err = coord.Poll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, conn.calls.paired)
	require.Equal(t, 2, conn.calls.status)

	// every cycle releases its connection.
	require.Equal(t, conn.calls.connect, conn.calls.close)

	last, ok := coord.Last()
	require.True(t, ok)
	require.Equal(t, 2, last.Attempt)
}

func TestPollFirstFailure(t *testing.T) {
	conn := &fakeConn{connectErr: &CommunicationError{Op: "connect", Err: errNotConnected}}
	coord, _ := testCoordinator(conn)

	_, err := coord.Poll(context.Background())
	require.ErrorContains(t, err, "panel update failed")
	_, ok := coord.Last()
	require.False(t, ok)
}

func TestPollServesStaleOnFailure(t *testing.T) {
	conn := &fakeConn{}
	conn.status.Model = "AMT-8000"
	coord, clock := testCoordinator(conn)

	good, err := coord.Poll(context.Background())
	require.NoError(t, err)

	conn.statusErr = &CommunicationError{Op: "status", Err: errNotConnected}
	clock.Advance(time.Hour)
	stale, err := coord.Poll(context.Background())
	require.NoError(t, err)
	require.Equal(t, good, stale)

	// still inside the backoff window: cached snapshot, no I/O.
	connects := conn.calls.connect
	again, err := coord.Poll(context.Background())
	require.NoError(t, err)
	require.Equal(t, good, again)
	require.Equal(t, connects, conn.calls.connect)

	// past the deadline the coordinator tries again.
	clock.Advance(DefaultMaxBackoff + time.Second)
	conn.statusErr = nil
	fresh, err := coord.Poll(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, good.TakenAt, fresh.TakenAt)
}

func TestPollFailureCounterCap(t *testing.T) {
	conn := &fakeConn{}
	coord, clock := testCoordinator(conn)
	_, err := coord.Poll(context.Background())
	require.NoError(t, err)

	conn.statusErr = &CommunicationError{Op: "status", Err: errNotConnected}
	for i := 0; i < DefaultMaxFailures*3; i++ {
		clock.Advance(time.Hour)
		_, err := coord.Poll(context.Background())
		require.NoError(t, err)
		require.LessOrEqual(t, coord.failures, DefaultMaxFailures)
	}
	require.Equal(t, DefaultMaxFailures, coord.failures)
}

func TestPollSingleFlight(t *testing.T) {
	conn := &fakeConn{}
	coord, _ := testCoordinator(conn)

	coord.poll.Lock()
	_, err := coord.Poll(context.Background())
	require.ErrorContains(t, err, "no panel state available")
	require.Zero(t, conn.calls.connect)
	coord.poll.Unlock()

	_, err = coord.Poll(context.Background())
	require.NoError(t, err)
}

func TestPollCanceledContext(t *testing.T) {
	conn := &fakeConn{}
	coord, _ := testCoordinator(conn)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := coord.Poll(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, conn.calls.connect)
}

func TestPollCanceledContextNoBackoff(t *testing.T) {
	t.Run("canceled before the cycle", func(t *testing.T) {
		conn := &fakeConn{}
		coord, _ := testCoordinator(conn)
		good, err := coord.Poll(context.Background())
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		stale, err := coord.Poll(ctx)
		require.NoError(t, err)
		require.Equal(t, good, stale)
		require.Zero(t, coord.failures)

		// no backoff window was armed: the next poll goes out immediately.
		fresh, err := coord.Poll(context.Background())
		require.NoError(t, err)
		require.Equal(t, good.Attempt+2, fresh.Attempt)
	})

	t.Run("canceled mid-cycle", func(t *testing.T) {
		conn := &fakeConn{}
		coord, _ := testCoordinator(conn)
		good, err := coord.Poll(context.Background())
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		coord.dial = func() panelConn { return &cancelingConn{fakeConn: conn, cancel: cancel} }
		stale, err := coord.Poll(ctx)
		require.NoError(t, err)
		require.Equal(t, good, stale)
		require.Zero(t, coord.failures)
	})
}

// cancelingConn cancels its context during the status query and then fails
// with the kind of I/O error the closed socket would produce.
type cancelingConn struct {
	*fakeConn
	cancel context.CancelFunc
}

func (c *cancelingConn) Status() (Status, error) {
	c.cancel()
	return unknownStatus(), &CommunicationError{Op: "status", Err: errNotConnected}
}

func TestRefreshZones(t *testing.T) {
	conn := &fakeConn{}
	coord, _ := testCoordinator(conn)
	_, err := coord.Poll(context.Background())
	require.NoError(t, err)

	conn.mu.Lock()
	conn.paired[5] = true
	conn.mu.Unlock()
	require.NoError(t, coord.RefreshZones(context.Background()))
	require.Equal(t, 2, conn.calls.paired)

	snap, err := coord.Poll(context.Background())
	require.NoError(t, err)
	require.True(t, snap.Zones[5].Paired)
	// refresh uses its own short-lived connection and releases it.
	require.Equal(t, conn.calls.connect, conn.calls.close)
}

func TestNextBackoff(t *testing.T) {
	base, max := DefaultBaseBackoff, DefaultMaxBackoff
	require.Zero(t, nextBackoff(base, max, 0))

	prev := time.Duration(0)
	for failures := 1; failures <= 10; failures++ {
		d := nextBackoff(base, max, failures)
		require.GreaterOrEqual(t, d, prev, "failures=%d", failures)
		require.LessOrEqual(t, d, max, "failures=%d", failures)
		prev = d
	}
	require.Equal(t, base, nextBackoff(base, max, 1))
	require.Equal(t, 2*base, nextBackoff(base, max, 2))
	require.Equal(t, max, nextBackoff(base, max, 10))
}

type callCounts struct {
	connect int
	auth    int
	status  int
	paired  int
	close   int
}

type fakeConn struct {
	mu     sync.Mutex
	status Status
	paired [ZoneCount]bool

	connectErr error
	authErr    error
	statusErr  error
	pairedErr  error

	calls callCounts
}

func (f *fakeConn) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls.connect++
	return f.connectErr
}

func (f *fakeConn) Auth(string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls.auth++
	return f.authErr
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls.close++
}

func (f *fakeConn) Status() (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls.status++
	if f.statusErr != nil {
		return unknownStatus(), f.statusErr
	}
	return f.status, nil
}

func (f *fakeConn) PairedSensors() ([ZoneCount]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls.paired++
	if f.pairedErr != nil {
		return [ZoneCount]bool{}, f.pairedErr
	}
	return f.paired, nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testCoordinator(conn *fakeConn) (*Coordinator, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	coord := NewCoordinator(ConnConfig{Host: "127.0.0.1", Port: "9009", Password: "123456"})
	coord.now = clock.Now
	coord.dial = func() panelConn { return conn }
	return coord, clock
}
