package amt8000

import (
	"errors"
	"fmt"
	"net"
	"syscall"
)

// CommunicationError covers everything that went wrong talking to the
// panel: dial failures, timed out or failed reads and writes, malformed
// authentication responses, and bad request preconditions. Op and Addr
// identify which exchange against which panel failed.
type CommunicationError struct {
	Op   string
	Addr string
	Err  error
}

func (e *CommunicationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: communication error", e.Op, e.Addr)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *CommunicationError) Unwrap() error { return e.Err }

// Timeout reports whether the underlying failure was a network timeout.
func (e *CommunicationError) Timeout() bool {
	var nerr net.Error
	return errors.As(e.Err, &nerr) && nerr.Timeout()
}

// Refused reports whether the panel actively refused the connection.
func (e *CommunicationError) Refused() bool {
	return errors.Is(e.Err, syscall.ECONNREFUSED)
}

// AuthError is a rejection by the panel itself rather than a transport
// failure. Unlike a CommunicationError it is actionable by the user: fix
// the password, wait for the callback, grant permission on the keypad.
type AuthError struct {
	Reason string
	Result byte
}

func (e *AuthError) Error() string { return e.Reason }

var (
	ErrInvalidPassword       = &AuthError{Reason: "invalid password", Result: 0x01}
	ErrWrongSoftwareVersion  = &AuthError{Reason: "incorrect software version", Result: 0x02}
	ErrPanelWillCallBack     = &AuthError{Reason: "alarm panel will call back", Result: 0x03}
	ErrWaitingUserPermission = &AuthError{Reason: "waiting for user permission", Result: 0x04}
)

var errNotConnected = errors.New("not connected")
