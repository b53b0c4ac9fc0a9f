package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrInvalidHandle indicates the handle is unknown or was already removed.
var ErrInvalidHandle = errors.New("invalid handle")

// Handle is an opaque positive integer identifying one live socket. Handles
// are assigned monotonically starting at 1 and are never reused within a
// Registry's lifetime, even after removal.
type Handle int32

// Socket is the minimal surface the registry requires from the objects it
// owns. Concrete socket types live in the transport package.
type Socket interface {
	Close() error
}

// Registry owns the mapping from handle to socket. All mutations are
// serialized under one mutex; a concurrent lookup never observes a torn
// insert or remove.
type Registry struct {
	mu      sync.Mutex
	next    Handle
	sockets map[Handle]Socket
	log     *logrus.Entry
}

// New creates an empty registry whose first handle is 1.
func New() *Registry {
	return &Registry{
		next:    1,
		sockets: make(map[Handle]Socket),
		log:     logrus.WithField("component", "Registry"),
	}
}

// Add assigns the next handle value and inserts the socket atomically.
func (r *Registry) Add(s Socket) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.next
	r.next++
	r.sockets[h] = s

	r.log.WithFields(logrus.Fields{
		"handle":  h,
		"sockets": len(r.sockets),
	}).Debug("Socket registered")
	return h
}

// Get resolves a handle to its socket. An unknown or previously removed
// handle fails with ErrInvalidHandle.
func (r *Registry) Get(h Handle) (Socket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sockets[h]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHandle, h)
	}
	return s, nil
}

// Remove takes a socket out of the registry and returns it for the caller
// to close. The handle value is retired permanently.
func (r *Registry) Remove(h Handle) (Socket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sockets[h]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHandle, h)
	}
	delete(r.sockets, h)

	r.log.WithFields(logrus.Fields{
		"handle":  h,
		"sockets": len(r.sockets),
	}).Debug("Socket removed")
	return s, nil
}

// Len returns the number of live sockets.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sockets)
}

// CloseAll closes every live socket and clears the mapping. It is
// idempotent and safe to call with no sockets registered. The first close
// error is returned after every socket has been visited.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for h, s := range r.sockets {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.sockets, h)
	}

	r.log.Debug("All sockets closed")
	return firstErr
}
