package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// admitPollInterval bounds the per-call wait for pending connections. Go has
// no truly non-blocking accept; an expired deadline fails before the syscall,
// so the drain loop uses the smallest deadline that still observes pending
// connections.
const admitPollInterval = time.Millisecond

// DefaultWriteTimeout bounds each per-peer broadcast write. A write that
// does not complete within the bound marks the peer slow, not disconnected.
const DefaultWriteTimeout = 10 * time.Millisecond

// ConnAdmitter supplies newly connected peers to a Publisher. The default
// implementation drains the listener's pending backlog inside each
// Broadcast call; an alternative (a dedicated accept loop feeding a channel)
// can be substituted without changing the Publisher contract.
type ConnAdmitter interface {
	Admit() ([]net.Conn, error)
}

// drainAdmitter accepts until the listener reports nothing pending.
type drainAdmitter struct {
	listener *net.TCPListener
}

func (d *drainAdmitter) Admit() ([]net.Conn, error) {
	var conns []net.Conn
	for {
		if err := d.listener.SetDeadline(time.Now().Add(admitPollInterval)); err != nil {
			return conns, err
		}
		conn, err := d.listener.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return conns, nil // backlog drained
			}
			return conns, err
		}
		conns = append(conns, conn)
	}
}

// Publisher owns a listening TCP endpoint and broadcasts framed messages to
// every currently connected subscriber. It never initiates outbound
// connections and never blocks waiting for a subscriber: admission of
// pending connections happens opportunistically at the start of each
// Broadcast call.
type Publisher struct {
	listener *net.TCPListener
	endpoint *Endpoint
	admitter ConnAdmitter

	mu           sync.Mutex
	peers        []net.Conn
	closed       bool
	writeTimeout time.Duration

	log *logrus.Entry
}

// Listen binds a listening endpoint at the parsed address. The listener is
// created with address reuse so a restarted publisher can rebind promptly.
func Listen(ep *Endpoint) (*Publisher, error) {
	listener, err := net.ListenTCP("tcp4", ep.TCPAddr())
	if err != nil {
		return nil, newSockError("listen", ep.String(),
			fmt.Errorf("%w: %v", ErrBindFailed, err))
	}

	p := &Publisher{
		listener:     listener,
		endpoint:     ep,
		writeTimeout: DefaultWriteTimeout,
		log: logrus.WithFields(logrus.Fields{
			"component": "Publisher",
			"address":   ep.String(),
		}),
	}
	p.admitter = &drainAdmitter{listener: listener}

	p.log.Info("Publisher listening")
	return p, nil
}

// SetAdmitter replaces the connection admission strategy. Intended for
// substituting a dedicated accept loop or a test double.
func (p *Publisher) SetAdmitter(a ConnAdmitter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.admitter = a
}

// SetWriteTimeout adjusts the per-peer write bound used during Broadcast.
func (p *Publisher) SetWriteTimeout(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if d > 0 {
		p.writeTimeout = d
	}
}

// Addr returns the bound listener address.
func (p *Publisher) Addr() net.Addr {
	return p.listener.Addr()
}

// PeerCount returns the number of currently attached subscribers.
func (p *Publisher) PeerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.peers)
}

// Broadcast delivers one framed message to every attached subscriber,
// best-effort and at-most-once.
//
// Each call first admits all pending inbound connections, then attempts one
// bounded write of the encoded frame to every peer in list order. A write
// that times out is skipped silently (the peer is slow, not gone; there is
// no queue or retry). A write that fails for any other reason drops that
// peer. Broadcast reports success once the loop completes, even with zero
// peers or with every delivery skipped: messages published before a
// subscriber attaches are permanently lost to it.
func (p *Publisher) Broadcast(topic, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return newSockError("broadcast", p.endpoint.String(), ErrSocketClosed)
	}

	p.admitPending()

	frame := EncodeFrame(topic, payload)

	var delivered, skipped int
	var dropped []net.Conn
	for _, peer := range p.peers {
		if err := peer.SetWriteDeadline(time.Now().Add(p.writeTimeout)); err != nil {
			dropped = append(dropped, peer)
			continue
		}
		if _, err := peer.Write(frame); err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				skipped++ // slow peer, delivery skipped for this message
				continue
			}
			dropped = append(dropped, peer)
			continue
		}
		delivered++
	}

	p.removePeers(dropped)

	p.log.WithFields(logrus.Fields{
		"topic":     string(topic),
		"frame_len": len(frame),
		"delivered": delivered,
		"skipped":   skipped,
		"dropped":   len(dropped),
		"peers":     len(p.peers),
	}).Debug("Broadcast completed")
	return nil
}

// admitPending drains the listener backlog into the peer list. Caller holds
// the mutex.
func (p *Publisher) admitPending() {
	conns, err := p.admitter.Admit()
	if err != nil {
		p.log.WithError(err).Warn("Connection admission interrupted")
	}
	for _, conn := range conns {
		p.peers = append(p.peers, conn)
		p.log.WithFields(logrus.Fields{
			"remote": conn.RemoteAddr().String(),
			"peers":  len(p.peers),
		}).Info("Subscriber admitted")
	}
}

// removePeers closes and removes the given connections. Caller holds the
// mutex.
func (p *Publisher) removePeers(dropped []net.Conn) {
	if len(dropped) == 0 {
		return
	}
	for _, conn := range dropped {
		conn.Close()
		p.log.WithField("remote", conn.RemoteAddr().String()).Info("Subscriber disconnected")
	}
	kept := p.peers[:0]
	for _, peer := range p.peers {
		gone := false
		for _, conn := range dropped {
			if peer == conn {
				gone = true
				break
			}
		}
		if !gone {
			kept = append(kept, peer)
		}
	}
	p.peers = kept
}

// Close closes every peer connection, then the listening endpoint.
// Idempotent.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	for _, peer := range p.peers {
		peer.Close()
	}
	p.peers = nil

	err := p.listener.Close()
	p.log.Info("Publisher closed")
	return err
}
