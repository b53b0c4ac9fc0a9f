package pubsock

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/pubsock/registry"
	"github.com/opd-ai/pubsock/transport"
)

// version identifies the library, reported by Version.
const version = "0.1.0"

// Version returns the pubsock library version string.
func Version() string {
	return version
}

// Facade-level errors. Transport and registry errors pass through unchanged
// and are classified with errors.Is against transport.Err* and
// registry.ErrInvalidHandle.
var (
	// ErrNotInitialized indicates the service was already terminated
	ErrNotInitialized = errors.New("service not initialized")

	// ErrWrongSocketKind indicates a publisher operation was invoked on a
	// subscriber handle or vice versa
	ErrWrongSocketKind = errors.New("wrong socket kind for operation")
)

// Options contains configuration options for creating a PubSock instance.
type Options struct {
	// ReadBufferSize is the subscriber receive buffer. A frame larger than
	// the buffer is truncated at the read; the default preserves the
	// historical 4096-byte message ceiling.
	ReadBufferSize int

	// DialTimeout bounds subscriber connect attempts.
	DialTimeout time.Duration

	// BroadcastWriteTimeout bounds each per-peer write during Send. A peer
	// that cannot absorb the frame within the bound is skipped for that
	// message, not disconnected.
	BroadcastWriteTimeout time.Duration
}

// NewOptions creates a new default Options.
func NewOptions() *Options {
	return &Options{
		ReadBufferSize:        transport.DefaultReadBufferSize,
		DialTimeout:           transport.DefaultDialTimeout,
		BroadcastWriteTimeout: transport.DefaultWriteTimeout,
	}
}

// PubSock is the pub/sub service instance. It owns the handle registry and
// every socket created through it; there is no other process-wide state.
// Multiple independent instances may coexist, each with its own handle
// space.
//
// All methods are safe for concurrent use on different handles. Receive is
// the only method that blocks, bounded by its timeout; every other method
// returns promptly.
type PubSock struct {
	options  *Options
	registry *registry.Registry

	mu      sync.Mutex
	running bool

	log *logrus.Entry
}

// New creates a running PubSock instance. A nil options selects defaults.
func New(options *Options) (*PubSock, error) {
	if options == nil {
		options = NewOptions()
	}
	if options.ReadBufferSize <= 0 {
		options.ReadBufferSize = transport.DefaultReadBufferSize
	}

	ps := &PubSock{
		options:  options,
		registry: registry.New(),
		running:  true,
		log:      logrus.WithField("component", "PubSock"),
	}
	ps.log.WithField("version", version).Info("PubSock instance created")
	return ps, nil
}

// IsRunning reports whether the instance has not been terminated.
func (ps *PubSock) IsRunning() bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.running
}

// checkRunning fails with ErrNotInitialized after Kill.
func (ps *PubSock) checkRunning() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if !ps.running {
		return ErrNotInitialized
	}
	return nil
}

// CreatePublisher binds a listening publisher at an address of the form
// "tcp://host:port" (host "*" binds all interfaces) and returns its handle.
func (ps *PubSock) CreatePublisher(address string) (registry.Handle, error) {
	if err := ps.checkRunning(); err != nil {
		return 0, err
	}

	ep, err := transport.ParseAddress(address)
	if err != nil {
		return 0, err
	}

	pub, err := transport.Listen(ep)
	if err != nil {
		return 0, err
	}
	pub.SetWriteTimeout(ps.options.BroadcastWriteTimeout)

	h := ps.registry.Add(pub)
	ps.log.WithFields(logrus.Fields{
		"handle":  h,
		"address": address,
	}).Info("Publisher created")
	return h, nil
}

// CreateSubscriber connects a subscriber to a publisher at an address of
// the form "tcp://host:port" and returns its handle.
func (ps *PubSock) CreateSubscriber(address string) (registry.Handle, error) {
	if err := ps.checkRunning(); err != nil {
		return 0, err
	}

	ep, err := transport.ParseAddress(address)
	if err != nil {
		return 0, err
	}

	sub, err := transport.Dial(ep, transport.DialOptions{
		Timeout:        ps.options.DialTimeout,
		ReadBufferSize: ps.options.ReadBufferSize,
	})
	if err != nil {
		return 0, err
	}

	h := ps.registry.Add(sub)
	ps.log.WithFields(logrus.Fields{
		"handle":  h,
		"address": address,
	}).Info("Subscriber created")
	return h, nil
}

// Send broadcasts one (topic, payload) message through the publisher
// identified by handle. Neither topic nor payload may contain a NUL byte;
// this is a caller responsibility and is not validated.
//
// Delivery is best-effort: Send succeeds once every attached subscriber has
// been attempted, even if individual deliveries were skipped or a peer was
// dropped. Absence of subscribers is not an error.
func (ps *PubSock) Send(h registry.Handle, topic, payload []byte) error {
	if err := ps.checkRunning(); err != nil {
		return err
	}

	sock, err := ps.registry.Get(h)
	if err != nil {
		return err
	}
	pub, ok := sock.(*transport.Publisher)
	if !ok {
		return ErrWrongSocketKind
	}
	return pub.Broadcast(topic, payload)
}

// Receive waits up to timeout for a message on the subscriber identified by
// handle. A timeout is reported as transport.ErrTimeout, distinct from
// transport.ErrConnectionClosed and transport.ErrMalformedFrame.
//
// The returned slices are valid until the next Receive on the same handle.
func (ps *PubSock) Receive(h registry.Handle, timeout time.Duration) (topic, payload []byte, err error) {
	if err := ps.checkRunning(); err != nil {
		return nil, nil, err
	}

	sock, err := ps.registry.Get(h)
	if err != nil {
		return nil, nil, err
	}
	sub, ok := sock.(*transport.Subscriber)
	if !ok {
		return nil, nil, ErrWrongSocketKind
	}
	return sub.Receive(timeout)
}

// Subscribe records a topic of interest on a subscriber handle. No
// filtering is applied; see transport.Subscriber.Subscribe.
func (ps *PubSock) Subscribe(h registry.Handle, topic string) error {
	if err := ps.checkRunning(); err != nil {
		return err
	}

	sock, err := ps.registry.Get(h)
	if err != nil {
		return err
	}
	sub, ok := sock.(*transport.Subscriber)
	if !ok {
		return ErrWrongSocketKind
	}
	return sub.Subscribe(topic)
}

// CloseSocket releases the socket identified by handle and retires the
// handle permanently. An unknown or already-closed handle fails with
// registry.ErrInvalidHandle and has no side effects.
func (ps *PubSock) CloseSocket(h registry.Handle) error {
	if err := ps.checkRunning(); err != nil {
		return err
	}

	sock, err := ps.registry.Remove(h)
	if err != nil {
		return err
	}

	err = sock.Close()
	ps.log.WithField("handle", h).Info("Socket closed")
	return err
}

// Kill terminates the instance: every live socket is closed and discarded,
// and subsequent operations fail with ErrNotInitialized. Idempotent.
func (ps *PubSock) Kill() {
	ps.mu.Lock()
	if !ps.running {
		ps.mu.Unlock()
		return
	}
	ps.running = false
	ps.mu.Unlock()

	if err := ps.registry.CloseAll(); err != nil {
		ps.log.WithError(err).Warn("Error while closing sockets during shutdown")
	}
	ps.log.Info("PubSock instance terminated")
}
