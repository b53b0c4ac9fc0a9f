// Package pubsock implements a minimal publish/subscribe messaging layer
// over raw TCP streams, exposed through an opaque integer-handle API.
//
// The package exists for host applications that can only call flat
// functions with primitive arguments: a caller obtains a handle from
// publisher or subscriber creation and drives every further operation
// through that handle. A c-shared wrapper with the corresponding flat entry
// points lives in the capi directory.
//
// Example:
//
//	ps, err := pubsock.New(pubsock.NewOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ps.Kill()
//
//	pub, err := ps.CreatePublisher("tcp://*:5559")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sub, err := ps.CreateSubscriber("tcp://127.0.0.1:5559")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Admission happens inside Send: the first call attaches the
//	// subscriber, later calls reach it.
//	ps.Send(pub, []byte("quotes.EURUSD"), []byte(`{"bid":1.0842}`))
//
//	topic, payload, err := ps.Receive(sub, time.Second)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%s: %s\n", topic, payload)
//
// # Delivery semantics
//
// Delivery is best-effort and at-most-once, with no backlog. A publisher
// admits pending subscriber connections at the start of each Send call and
// then attempts one bounded write per peer. Messages published before a
// subscriber connects, or while it is too slow to absorb them, are
// permanently lost to that subscriber. Subscribers receive every broadcast
// message; topic subscriptions are recorded but not filtered.
//
// # Frame format
//
// One message is topic bytes, a single NUL separator, then payload bytes,
// written and read as one logical unit. Topics and payloads must not
// contain NUL; frames larger than the configured read buffer (4096 bytes by
// default) are truncated at the subscriber.
package pubsock
