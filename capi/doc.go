// Package main provides the c-shared flat-function surface for pubsock,
// enabling host applications with no native socket or memory-management
// facilities to drive the pub/sub layer through exported functions with
// primitive arguments.
//
// # Build Instructions
//
// To build as a C shared library:
//
//	go build -buildmode=c-shared -o libpubsock.so ./capi/
//
// This generates:
//   - libpubsock.so: The shared library
//   - libpubsock.h: Auto-generated C header file with function declarations
//
// # Usage
//
// Every socket is identified by an opaque positive integer handle. Handles
// are never reused within a process, so a stale handle fails cleanly rather
// than aliasing a newer socket.
//
//	pubsock_init();
//
//	int pub = pubsock_create_publisher("tcp://*:5559", 15);
//	int sub = pubsock_create_subscriber("tcp://127.0.0.1:5559", 22);
//
//	pubsock_send_message(pub, "quotes.EURUSD", 13, "{\"bid\":1.0842}", 14);
//
//	char topic[256], payload[4096];
//	if (pubsock_recv_message(sub, topic, sizeof(topic),
//	                         payload, sizeof(payload), 1000) == 0) {
//	    /* message arrived */
//	} else if (pubsock_recv_is_timeout()) {
//	    /* nothing arrived within the bound, socket still usable */
//	}
//
//	pubsock_close(sub);
//	pubsock_close(pub);
//	pubsock_term();
//
// Failing calls return -1 and record a human-readable message retrievable
// with pubsock_get_last_error. The last-error value is process-wide and
// last-write-wins: concurrent failing calls race on it. Hosts that need
// reliable per-call errors should use the Go API, which returns them
// directly.
package main
