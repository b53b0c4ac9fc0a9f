package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// listenLoopback binds a publisher on an ephemeral loopback port and
// returns it with the endpoint a subscriber should dial.
func listenLoopback(t *testing.T) (*Publisher, *Endpoint) {
	t.Helper()

	pub, err := Listen(&Endpoint{Host: "127.0.0.1", Port: 0})
	require.NoError(t, err)
	t.Cleanup(func() { pub.Close() })

	port := pub.Addr().(*net.TCPAddr).Port
	return pub, &Endpoint{Host: "127.0.0.1", Port: uint16(port)}
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	pub, ep := listenLoopback(t)

	sub, err := Dial(ep, DialOptions{})
	require.NoError(t, err)
	defer sub.Close()

	// The pending connection is admitted at the start of the broadcast,
	// before the frame is written, so this first message reaches the peer.
	require.NoError(t, pub.Broadcast([]byte("unit.test"), []byte(`{"test":"data"}`)))
	assert.Equal(t, 1, pub.PeerCount())

	topic, payload, err := sub.Receive(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "unit.test", string(topic))
	assert.Equal(t, `{"test":"data"}`, string(payload))
}

func TestReceiveTimeout(t *testing.T) {
	pub, ep := listenLoopback(t)

	sub, err := Dial(ep, DialOptions{})
	require.NoError(t, err)
	defer sub.Close()

	// Attach the peer without giving it anything to read afterwards.
	require.NoError(t, pub.Broadcast([]byte("warm"), []byte("up")))
	_, _, err = sub.Receive(time.Second)
	require.NoError(t, err)

	start := time.Now()
	_, _, err = sub.Receive(100 * time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrConnectionClosed)
	assert.NotErrorIs(t, err, ErrMalformedFrame)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	// The socket stays usable after a timeout.
	require.NoError(t, pub.Broadcast([]byte("again"), []byte("ok")))
	topic, _, err := sub.Receive(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "again", string(topic))
}

func TestBroadcastFanOut(t *testing.T) {
	pub, ep := listenLoopback(t)

	first, err := Dial(ep, DialOptions{})
	require.NoError(t, err)
	defer first.Close()

	second, err := Dial(ep, DialOptions{})
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, pub.Broadcast([]byte("fan.out"), []byte("to everyone")))
	assert.Equal(t, 2, pub.PeerCount())

	for _, sub := range []*Subscriber{first, second} {
		topic, payload, err := sub.Receive(time.Second)
		require.NoError(t, err)
		assert.Equal(t, "fan.out", string(topic))
		assert.Equal(t, "to everyone", string(payload))
	}
}

func TestBroadcastWithoutSubscribers(t *testing.T) {
	pub, _ := listenLoopback(t)

	// Fire-and-forget: no peers is success, the message is simply gone.
	assert.NoError(t, pub.Broadcast([]byte("into"), []byte("the void")))
	assert.Equal(t, 0, pub.PeerCount())
}

func TestBroadcastPrunesDisconnectedPeer(t *testing.T) {
	pub, ep := listenLoopback(t)

	sub, err := Dial(ep, DialOptions{})
	require.NoError(t, err)

	require.NoError(t, pub.Broadcast([]byte("attach"), []byte("")))
	require.Equal(t, 1, pub.PeerCount())

	require.NoError(t, sub.Close())

	// The first write after the close may still land in the dead peer's
	// buffer; a later one surfaces the reset and drops the peer. Every
	// Broadcast keeps reporting success throughout.
	deadline := time.Now().Add(2 * time.Second)
	for pub.PeerCount() > 0 && time.Now().Before(deadline) {
		require.NoError(t, pub.Broadcast([]byte("probe"), []byte("x")))
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, 0, pub.PeerCount())
}

func TestSubscriberConnectionClosed(t *testing.T) {
	pub, ep := listenLoopback(t)

	sub, err := Dial(ep, DialOptions{})
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, pub.Broadcast([]byte("attach"), []byte("")))
	_, _, err = sub.Receive(time.Second)
	require.NoError(t, err)

	require.NoError(t, pub.Close())

	_, _, err = sub.Receive(time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestReceiveMalformedFrame(t *testing.T) {
	// A raw server standing in for a publisher that violates the framing.
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("no separator here"))
		time.Sleep(500 * time.Millisecond)
	}()

	port := listener.Addr().(*net.TCPAddr).Port
	sub, err := Dial(&Endpoint{Host: "127.0.0.1", Port: uint16(port)}, DialOptions{})
	require.NoError(t, err)
	defer sub.Close()

	_, _, err = sub.Receive(time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedFrame)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestDialConnectFailed(t *testing.T) {
	// Grab a port that nothing is listening on.
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	_, err = Dial(&Endpoint{Host: "127.0.0.1", Port: uint16(port)}, DialOptions{Timeout: time.Second})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectFailed)
}

func TestListenBindFailed(t *testing.T) {
	pub, ep := listenLoopback(t)
	defer pub.Close()

	// Second bind on the same port fails.
	_, err := Listen(ep)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBindFailed)
}

func TestSubscribeRecordsWithoutFiltering(t *testing.T) {
	pub, ep := listenLoopback(t)

	sub, err := Dial(ep, DialOptions{})
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, sub.Subscribe("quotes.EURUSD"))
	require.NoError(t, sub.Subscribe("quotes.GBPUSD"))
	assert.Equal(t, []string{"quotes.EURUSD", "quotes.GBPUSD"}, sub.Subscriptions())

	// A message on an unrelated topic is still delivered.
	require.NoError(t, pub.Broadcast([]byte("status.heartbeat"), []byte("alive")))
	topic, _, err := sub.Receive(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "status.heartbeat", string(topic))
}

func TestCloseIdempotent(t *testing.T) {
	pub, ep := listenLoopback(t)

	sub, err := Dial(ep, DialOptions{})
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	require.NoError(t, pub.Close())
	require.NoError(t, pub.Close())

	// Operations on a closed socket fail uniformly.
	_, _, err = sub.Receive(100 * time.Millisecond)
	assert.ErrorIs(t, err, ErrSocketClosed)
	assert.ErrorIs(t, pub.Broadcast([]byte("t"), []byte("p")), ErrSocketClosed)
}

// fixedAdmitter substitutes the drain-on-send admission strategy with a
// preloaded peer list.
type fixedAdmitter struct {
	conns []net.Conn
	done  bool
}

func (f *fixedAdmitter) Admit() ([]net.Conn, error) {
	if f.done {
		return nil, nil
	}
	f.done = true
	return f.conns, nil
}

func TestSetAdmitterSubstitutesAdmission(t *testing.T) {
	pub, ep := listenLoopback(t)

	client, server := net.Pipe()
	defer client.Close()
	pub.SetAdmitter(&fixedAdmitter{conns: []net.Conn{server}})

	// The real pending connection is ignored; only the injected peer is
	// admitted.
	sub, err := Dial(ep, DialOptions{})
	require.NoError(t, err)
	defer sub.Close()

	received := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 256)
		n, err := client.Read(buf)
		if err == nil {
			received <- buf[:n]
		}
	}()

	require.NoError(t, pub.Broadcast([]byte("injected"), []byte("peer")))
	assert.Equal(t, 1, pub.PeerCount())

	select {
	case frame := <-received:
		topic, payload, err := DecodeFrame(frame)
		require.NoError(t, err)
		assert.Equal(t, "injected", string(topic))
		assert.Equal(t, "peer", string(payload))
	case <-time.After(time.Second):
		t.Fatal("injected peer never received the broadcast")
	}
}
