package main

import (
	"errors"
	"sync"
	"time"
	"unsafe"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/pubsock"
	"github.com/opd-ai/pubsock/registry"
	"github.com/opd-ai/pubsock/transport"
)

// This is the main package required for building as c-shared.
// It provides C-compatible flat-function wrappers around the pubsock
// service for host applications that can only call exported functions with
// primitive arguments.

func main() {} // Required for c-shared build mode

// The flat API carries one implicit service instance plus a process-wide
// last-error string. The last-error value is last-write-wins: concurrent
// failing calls from different threads race on it, and a reader may observe
// the text of another thread's failure. This is retained deliberately for
// compatibility with the historical DLL surface; the Go API underneath
// returns errors directly and has no such channel.
var (
	serviceMutex    sync.Mutex
	service         *pubsock.PubSock
	lastError       string
	lastRecvTimeout bool
)

func setLastError(msg string) {
	serviceMutex.Lock()
	defer serviceMutex.Unlock()
	lastError = msg
}

// currentService returns the live instance, or nil when not initialized.
func currentService() *pubsock.PubSock {
	serviceMutex.Lock()
	defer serviceMutex.Unlock()
	return service
}

// ensureService lazily initializes the service, mirroring the historical
// behavior where create calls auto-initialized the library.
func ensureService() *pubsock.PubSock {
	serviceMutex.Lock()
	defer serviceMutex.Unlock()
	if service == nil {
		ps, err := pubsock.New(nil)
		if err != nil {
			lastError = err.Error()
			return nil
		}
		service = ps
	}
	return service
}

// goBytes copies n bytes from a caller-owned buffer into a Go slice.
func goBytes(ptr *byte, n int32) []byte {
	if ptr == nil || n <= 0 {
		return nil
	}
	out := make([]byte, n)
	copy(out, unsafe.Slice(ptr, n))
	return out
}

// copyOut copies src into a caller-owned buffer of the given capacity and
// returns the number of bytes written. Oversized values are truncated.
func copyOut(dst *byte, capacity int32, src []byte) int32 {
	if dst == nil || capacity <= 0 {
		return 0
	}
	n := int32(len(src))
	if n > capacity {
		n = capacity
	}
	copy(unsafe.Slice(dst, capacity), src[:n])
	return n
}

//export pubsock_init
func pubsock_init() int32 {
	if ensureService() == nil {
		return -1
	}
	return 0
}

//export pubsock_term
func pubsock_term() {
	serviceMutex.Lock()
	ps := service
	service = nil
	serviceMutex.Unlock()

	if ps != nil {
		ps.Kill()
	}
}

//export pubsock_create_publisher
func pubsock_create_publisher(address *byte, addressLen int32) int32 {
	ps := ensureService()
	if ps == nil {
		return -1
	}

	h, err := ps.CreatePublisher(string(goBytes(address, addressLen)))
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "pubsock_create_publisher",
			"error":    err.Error(),
		}).Error("Failed to create publisher")
		setLastError(err.Error())
		return -1
	}
	return int32(h)
}

//export pubsock_create_subscriber
func pubsock_create_subscriber(address *byte, addressLen int32) int32 {
	ps := ensureService()
	if ps == nil {
		return -1
	}

	h, err := ps.CreateSubscriber(string(goBytes(address, addressLen)))
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "pubsock_create_subscriber",
			"error":    err.Error(),
		}).Error("Failed to create subscriber")
		setLastError(err.Error())
		return -1
	}
	return int32(h)
}

//export pubsock_send_message
func pubsock_send_message(handle int32, topic *byte, topicLen int32, payload *byte, payloadLen int32) int32 {
	ps := currentService()
	if ps == nil {
		setLastError("not initialized")
		return -1
	}

	err := ps.Send(registry.Handle(handle), goBytes(topic, topicLen), goBytes(payload, payloadLen))
	if err != nil {
		setLastError(err.Error())
		return -1
	}
	return 0
}

//export pubsock_recv_message
func pubsock_recv_message(handle int32, topic *byte, topicCap int32, payload *byte, payloadCap int32, timeoutMs int32) int32 {
	ps := currentService()
	if ps == nil {
		setLastError("not initialized")
		return -1
	}

	// The historical surface reports timeout and failure with the same
	// status; pubsock_recv_is_timeout disambiguates the two after the fact.
	gotTopic, gotPayload, err := ps.Receive(registry.Handle(handle), time.Duration(timeoutMs)*time.Millisecond)
	if err != nil {
		serviceMutex.Lock()
		lastError = err.Error()
		lastRecvTimeout = errors.Is(err, transport.ErrTimeout)
		serviceMutex.Unlock()
		return -1
	}
	serviceMutex.Lock()
	lastRecvTimeout = false
	serviceMutex.Unlock()

	copyOut(topic, topicCap, gotTopic)
	copyOut(payload, payloadCap, gotPayload)
	return 0
}

//export pubsock_subscribe
func pubsock_subscribe(handle int32, topic *byte, topicLen int32) int32 {
	ps := currentService()
	if ps == nil {
		setLastError("not initialized")
		return -1
	}

	if err := ps.Subscribe(registry.Handle(handle), string(goBytes(topic, topicLen))); err != nil {
		setLastError(err.Error())
		return -1
	}
	return 0
}

//export pubsock_close
func pubsock_close(handle int32) int32 {
	ps := currentService()
	if ps == nil {
		setLastError("not initialized")
		return -1
	}

	if err := ps.CloseSocket(registry.Handle(handle)); err != nil {
		setLastError(err.Error())
		return -1
	}
	return 0
}

//export pubsock_version
func pubsock_version(buffer *byte, capacity int32) int32 {
	return copyOut(buffer, capacity, []byte(pubsock.Version()))
}

//export pubsock_get_last_error
func pubsock_get_last_error(buffer *byte, capacity int32) int32 {
	serviceMutex.Lock()
	msg := lastError
	serviceMutex.Unlock()
	return copyOut(buffer, capacity, []byte(msg))
}

// pubsock_recv_is_timeout lets flat-API hosts distinguish "nothing arrived"
// from a hard failure: it reports whether the most recent receive failure
// in this process was a timeout. Like the last-error string it is
// last-write-wins across threads.
//
//export pubsock_recv_is_timeout
func pubsock_recv_is_timeout() int32 {
	serviceMutex.Lock()
	defer serviceMutex.Unlock()
	if lastRecvTimeout {
		return 1
	}
	return 0
}
