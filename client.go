package amt8000

import (
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/caarlos0/sync/cio"
	logp "github.com/charmbracelet/log"
	"github.com/j-keck/arping"
)

var log = logp.NewWithOptions(os.Stderr, logp.Options{
	ReportTimestamp: true,
	TimeFormat:      time.Kitchen,
	Prefix:          "isec2",
})

// DefaultTimeout bounds every dial, read, and write. The panel either
// answers quickly or not at all.
const DefaultTimeout = 2 * time.Second

// AllPartitions is the wire value for "every partition"; callers use
// partition 0 for the same thing.
const AllPartitions = 0xff

const (
	deviceTypeMobileApp = 0x01
	ourSoftwareVersion  = 0x10
)

// Panic kinds accepted by the panel.
const (
	PanicSilent  byte = 0x00
	PanicAudible byte = 0x01
)

const readBufferSize = 1024

// ConnConfig carries everything needed to reach a panel. It is passed by
// value: callers never share mutable connection state.
type ConnConfig struct {
	Host     string
	Port     string
	Password string
	Timeout  time.Duration
}

func (c ConnConfig) addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func (c ConnConfig) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// Client talks ISEC2 to a single panel. It owns at most one TCP connection
// at a time; any I/O failure invalidates it and the next Connect starts
// over with a fresh socket. Close may be called from another goroutine to
// abort an in-flight exchange, so conn is behind a lock.
type Client struct {
	mu      sync.Mutex // guards conn
	conn    net.Conn
	addr    string
	timeout time.Duration
}

func New(cfg ConnConfig) *Client {
	return &Client{
		addr:    cfg.addr(),
		timeout: cfg.timeout(),
	}
}

// Connect opens a fresh connection, closing any previous one first. A
// half-broken socket is never reused.
func (c *Client) Connect() error {
	c.Close()
	conn, err := net.DialTimeout("tcp", c.addr, c.timeout)
	if err != nil {
		return &CommunicationError{Op: "connect", Addr: c.addr, Err: err}
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// Close is best effort and idempotent: the socket may already be gone, and
// that is fine. Closing from another goroutine unblocks any read in
// flight, which then fails with a closed-connection error.
func (c *Client) Close() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// Auth authenticates the current connection. The password must be exactly
// 6 digits; anything else fails before any I/O happens. Malformed or short
// responses fail loudly here, unlike status decoding: authentication is a
// trust boundary.
func (c *Client) Auth(password string) error {
	payload, err := makeAuthPayload(deviceTypeMobileApp, password, ourSoftwareVersion)
	if err != nil {
		return &CommunicationError{Op: "auth", Addr: c.addr, Err: err}
	}
	resp, err := c.roundTrip("auth", payload)
	if err != nil {
		return err
	}
	if len(resp) < 9 {
		return &CommunicationError{
			Op:   "auth",
			Addr: c.addr,
			Err:  fmt.Errorf("response too short: %d bytes", len(resp)),
		}
	}
	switch result := resp[8]; result {
	case 0x00:
		return nil
	case ErrInvalidPassword.Result:
		return ErrInvalidPassword
	case ErrWrongSoftwareVersion.Result:
		return ErrWrongSoftwareVersion
	case ErrPanelWillCallBack.Result:
		return ErrPanelWillCallBack
	case ErrWaitingUserPermission.Result:
		return ErrWaitingUserPermission
	default:
		return &CommunicationError{
			Op:   "auth",
			Addr: c.addr,
			Err:  fmt.Errorf("unknown auth result: 0x%02x", result),
		}
	}
}

// Status queries the panel and decodes whatever came back. Decoding never
// fails: partial responses degrade to unknown fields.
func (c *Client) Status() (Status, error) {
	log.Debug("status")
	resp, err := c.roundTrip("status", makePayload(cmdStatus, nil))
	if err != nil {
		return unknownStatus(), err
	}
	return buildStatus(resp), nil
}

// Arm arms the given partition, 0 meaning all partitions. The returned
// bool tells whether the panel acknowledged the command; firmware variants
// answer slightly differently, so false is not an error and the caller
// should re-check Status afterwards.
func (c *Client) Arm(partition byte) (bool, error) {
	log.Debug("arm", "partition", partition)
	return c.armDisarm("arm", partition, subCmdArm)
}

// Disarm disarms the given partition, 0 meaning all partitions. Same soft
// acknowledgement contract as Arm.
func (c *Client) Disarm(partition byte) (bool, error) {
	log.Debug("disarm", "partition", partition)
	return c.armDisarm("disarm", partition, subCmdDisarm)
}

func (c *Client) armDisarm(op string, partition, mode byte) (bool, error) {
	payload := makePayload(cmdArmDisarm, []byte{toPartition(partition), mode})
	resp, err := c.roundTrip(op, payload)
	if err != nil {
		return false, err
	}
	return len(resp) > 8 && resp[8] == armedMarker, nil
}

func toPartition(p byte) byte {
	if p == 0 {
		return AllPartitions
	}
	return p
}

// Panic triggers a panic alarm. Same soft acknowledgement contract as Arm.
func (c *Client) Panic(kind byte) (bool, error) {
	log.Debug("panic", "kind", kind)
	resp, err := c.roundTrip("panic", makePayload(cmdPanic, []byte{kind}))
	if err != nil {
		return false, err
	}
	return len(resp) > 7 && resp[7] == panicMarker, nil
}

// PairedSensors reports which of the 64 zone slots have a sensor paired.
// Panels that cannot answer the query reply with an error marker; that
// decodes to an empty set, not a failure.
func (c *Client) PairedSensors() ([ZoneCount]bool, error) {
	log.Debug("paired sensors")
	var zones [ZoneCount]bool
	resp, err := c.roundTrip("paired-sensors", makePayload(cmdPairedSensors, nil))
	if err != nil {
		return zones, err
	}
	if len(resp) > 8 && resp[8] == pairedErrMarker {
		return zones, nil
	}
	return zoneBitmap(resp, 8), nil
}

func (c *Client) roundTrip(op string, payload []byte) ([]byte, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, &CommunicationError{Op: op, Addr: c.addr, Err: errNotConnected}
	}
	if _, err := conn.Write(payload); err != nil {
		return nil, &CommunicationError{Op: op, Addr: c.addr, Err: err}
	}
	buf := make([]byte, readBufferSize)
	n, err := cio.TimeoutReader(conn, c.timeout).Read(buf)
	if err != nil {
		return nil, &CommunicationError{Op: op, Addr: c.addr, Err: err}
	}
	return buf[:n], nil
}

// WithConnection connects, authenticates, hands the client to fn, and
// releases the socket on every exit path. One-shot exchanges, both the
// coordinator's polls and standalone commands, all go through here.
func WithConnection(cfg ConnConfig, fn func(cli *Client) error) error {
	cli := New(cfg)
	if err := cli.Connect(); err != nil {
		return err
	}
	defer cli.Close()
	if err := cli.Auth(cfg.Password); err != nil {
		return err
	}
	return fn(cli)
}

// MacAddress resolves the panel's MAC via ARP, useful as a stable serial
// number for the device.
func MacAddress(ip string) (string, error) {
	hw, _, err := arping.Ping(net.ParseIP(ip))
	if err != nil {
		return "", fmt.Errorf("could not get the mac address: %w", err)
	}
	return hw.String(), nil
}
