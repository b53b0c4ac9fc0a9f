package transport

import (
	"errors"
	"fmt"
)

// Common errors for pubsock transports
var (
	// ErrInvalidAddress indicates the address string does not match the
	// accepted tcp://host:port grammar
	ErrInvalidAddress = errors.New("invalid address")

	// ErrBindFailed indicates the listening endpoint could not be created
	ErrBindFailed = errors.New("bind failed")

	// ErrConnectFailed indicates the connection to the publisher could not
	// be established
	ErrConnectFailed = errors.New("connect failed")

	// ErrTimeout indicates no data became readable within the supplied
	// bound. It is a distinct outcome, not a hard failure: callers poll
	// again or give up, the connection stays usable.
	ErrTimeout = errors.New("receive timed out")

	// ErrMalformedFrame indicates the received bytes contain no topic
	// separator
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrConnectionClosed indicates the peer disconnected
	ErrConnectionClosed = errors.New("connection closed")

	// ErrSocketClosed indicates the socket was already closed locally
	ErrSocketClosed = errors.New("socket closed")
)

// SockError represents a transport error with operational context.
type SockError struct {
	Op   string // operation that caused the error
	Addr string // address if relevant
	Err  error  // underlying error
}

func (e *SockError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("pubsock %s %s: %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("pubsock %s: %v", e.Op, e.Err)
}

func (e *SockError) Unwrap() error {
	return e.Err
}

// newSockError creates a new SockError
func newSockError(op, addr string, err error) *SockError {
	return &SockError{
		Op:   op,
		Addr: addr,
		Err:  err,
	}
}
