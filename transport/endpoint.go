package transport

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// addressScheme is the only transport scheme the parser accepts.
const addressScheme = "tcp://"

// Endpoint is a parsed tcp:// address: an IPv4 host and a port.
type Endpoint struct {
	Host string
	Port uint16
}

// String returns the endpoint in the tcp://host:port form it was parsed from.
func (e *Endpoint) String() string {
	return addressScheme + e.HostPort()
}

// HostPort returns the host:port form accepted by the net package.
func (e *Endpoint) HostPort() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(int(e.Port)))
}

// TCPAddr converts the endpoint to a *net.TCPAddr for listening or dialing.
func (e *Endpoint) TCPAddr() *net.TCPAddr {
	return &net.TCPAddr{IP: net.ParseIP(e.Host), Port: int(e.Port)}
}

// ParseAddress parses an address of the form "tcp://host:port".
//
// The host may be "*" (bind all interfaces), "localhost", or a literal IPv4
// address; the port must be a decimal integer in [1, 65535]. No DNS
// resolution is performed. Any deviation fails with ErrInvalidAddress.
func ParseAddress(address string) (*Endpoint, error) {
	if !strings.HasPrefix(address, addressScheme) {
		return nil, newSockError("parse", address,
			fmt.Errorf("%w: unsupported scheme (must be tcp://)", ErrInvalidAddress))
	}

	hostPort := address[len(addressScheme):]
	colon := strings.LastIndex(hostPort, ":")
	if colon < 0 {
		return nil, newSockError("parse", address,
			fmt.Errorf("%w: missing port", ErrInvalidAddress))
	}

	host := hostPort[:colon]
	switch host {
	case "*":
		host = "0.0.0.0"
	case "localhost":
		host = "127.0.0.1"
	default:
		ip := net.ParseIP(host)
		if ip == nil || ip.To4() == nil {
			return nil, newSockError("parse", address,
				fmt.Errorf("%w: host must be *, localhost or an IPv4 literal", ErrInvalidAddress))
		}
	}

	port, err := strconv.Atoi(hostPort[colon+1:])
	if err != nil {
		return nil, newSockError("parse", address,
			fmt.Errorf("%w: invalid port number", ErrInvalidAddress))
	}
	if port < 1 || port > 65535 {
		return nil, newSockError("parse", address,
			fmt.Errorf("%w: port out of range", ErrInvalidAddress))
	}

	ep := &Endpoint{Host: host, Port: uint16(port)}
	logrus.WithFields(logrus.Fields{
		"address": address,
		"host":    ep.Host,
		"port":    ep.Port,
	}).Debug("Address parsed")
	return ep, nil
}
