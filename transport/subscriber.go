package transport

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultDialTimeout bounds the connect attempt to a publisher.
const DefaultDialTimeout = 5 * time.Second

// DialOptions configures a Subscriber connection. The zero value selects
// DefaultDialTimeout and DefaultReadBufferSize.
type DialOptions struct {
	// Timeout bounds the connect attempt.
	Timeout time.Duration

	// ReadBufferSize is the size of the single-read receive buffer. A frame
	// larger than the buffer is truncated at the read.
	ReadBufferSize int
}

// Subscriber owns one connected TCP endpoint to a publisher and receives
// framed messages with a bounded wait. It never accepts inbound
// connections.
type Subscriber struct {
	conn     net.Conn
	endpoint *Endpoint

	mu            sync.Mutex
	buf           []byte
	subscriptions []string
	closed        bool

	log *logrus.Entry
}

// Dial connects to a publisher at the parsed address. The connect attempt
// blocks up to the configured timeout; on success the connection is used
// only with per-call read deadlines.
func Dial(ep *Endpoint, opts DialOptions) (*Subscriber, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	bufSize := opts.ReadBufferSize
	if bufSize <= 0 {
		bufSize = DefaultReadBufferSize
	}

	conn, err := net.DialTimeout("tcp4", ep.HostPort(), timeout)
	if err != nil {
		return nil, newSockError("dial", ep.String(),
			fmt.Errorf("%w: %v", ErrConnectFailed, err))
	}

	s := &Subscriber{
		conn:     conn,
		endpoint: ep,
		buf:      make([]byte, bufSize),
		log: logrus.WithFields(logrus.Fields{
			"component": "Subscriber",
			"address":   ep.String(),
		}),
	}
	s.log.Info("Subscriber connected")
	return s, nil
}

// Subscribe records a topic of interest. No transport-level filtering is
// performed: every message the publisher broadcasts is delivered regardless
// of the recorded topics. The call exists for wire compatibility with
// filtering subscribers and is a documented placeholder.
func (s *Subscriber) Subscribe(topic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return newSockError("subscribe", s.endpoint.String(), ErrSocketClosed)
	}
	s.subscriptions = append(s.subscriptions, topic)
	s.log.WithField("topic", topic).Debug("Subscription recorded")
	return nil
}

// Subscriptions returns the recorded topics in subscription order.
func (s *Subscriber) Subscriptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.subscriptions))
	copy(out, s.subscriptions)
	return out
}

// Receive waits up to timeout for a message and decodes it into topic and
// payload.
//
// The returned slices alias an internal buffer that the next Receive call
// overwrites; callers that retain a message across calls must copy it.
// Outcomes are classified with errors.Is:
//   - ErrTimeout: nothing arrived within the bound (the connection stays
//     usable, poll again)
//   - ErrConnectionClosed: the publisher disconnected
//   - ErrMalformedFrame: the read bytes contain no topic separator
//
// Receive holds the subscriber's lock for the duration of the wait; calling
// Close from another goroutine while Receive is blocked waits for the
// timeout to elapse. Call Close only after Receive returns.
func (s *Subscriber) Receive(timeout time.Duration) (topic, payload []byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, nil, newSockError("receive", s.endpoint.String(), ErrSocketClosed)
	}

	// A deadline already in the past fails before the read is attempted,
	// so a zero timeout still gets one minimal poll.
	if timeout < time.Millisecond {
		timeout = time.Millisecond
	}
	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, nil, newSockError("receive", s.endpoint.String(),
			fmt.Errorf("%w: %v", ErrConnectionClosed, err))
	}

	n, err := s.conn.Read(s.buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, nil, newSockError("receive", s.endpoint.String(), ErrTimeout)
		}
		if err == io.EOF {
			return nil, nil, newSockError("receive", s.endpoint.String(), ErrConnectionClosed)
		}
		return nil, nil, newSockError("receive", s.endpoint.String(),
			fmt.Errorf("%w: %v", ErrConnectionClosed, err))
	}
	if n == 0 {
		return nil, nil, newSockError("receive", s.endpoint.String(), ErrConnectionClosed)
	}

	topic, payload, err = DecodeFrame(s.buf[:n])
	if err != nil {
		return nil, nil, err
	}

	s.log.WithFields(logrus.Fields{
		"topic":       string(topic),
		"payload_len": len(payload),
	}).Debug("Message received")
	return topic, payload, nil
}

// Close releases the transport endpoint. Idempotent.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	err := s.conn.Close()
	s.log.Info("Subscriber closed")
	return err
}
