// Package transport implements the TCP publish/subscribe transports for
// pubsock.
//
// A Publisher binds a listening endpoint and broadcasts framed messages to
// every attached subscriber; a Subscriber connects to a publisher and
// receives framed messages with a bounded wait. Both sides share one wire
// encoding: topic bytes, a NUL separator, then payload bytes, written and
// read as a single logical message.
//
// Delivery is best-effort and at-most-once. A publisher admits pending
// connections only at broadcast time, keeps no backlog, and never retries:
// a message published before a subscriber attaches, or while its connection
// is not writable, is lost to that subscriber. The package makes this the
// contract rather than an accident; tests assert it.
package transport
