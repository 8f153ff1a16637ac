// Package upstream contains the UDP sockets that forwarded queries are sent on and
// the protectors that keep their traffic out of the tunnel.
package upstream

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// Conn is a connectionless upstream socket.
type Conn interface {
	// Fd returns the descriptor that is polled for the reply.
	Fd() int

	// Send sends one datagram to the given address.
	Send(payload []byte, to *net.UDPAddr) error

	// Receive receives one datagram into buf and returns its length.
	Receive(buf []byte) (int, error)

	Close() error
}

// An Opener creates the socket for a forwarded query.
type Opener interface {
	Open(ctx context.Context) (Conn, error)
}

// OpenerFunc adapts an ordinary function to the Opener interface.
type OpenerFunc func(ctx context.Context) (Conn, error)

func (f OpenerFunc) Open(ctx context.Context) (Conn, error) {
	return f(ctx)
}

// Dialer opens non-blocking IPv4 UDP sockets and applies its Protector to each of them.
type Dialer struct {
	Protector Protector
}

func (d Dialer) Open(_ context.Context) (Conn, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_UDP)
	if err != nil {
		return nil, fmt.Errorf("create upstream socket: %w", err)
	}
	s := &Socket{fd: fd}
	if d.Protector != nil {
		if err = d.Protector.Protect(fd); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("protect upstream socket: %w", err)
		}
	}
	return s, nil
}

// Socket is a Conn backed by a raw descriptor. It is used directly with poll rather
// than with the runtime network poller.
type Socket struct {
	fd int
}

func (s *Socket) Fd() int {
	return s.fd
}

func (s *Socket) Send(payload []byte, to *net.UDPAddr) error {
	ip4 := to.IP.To4()
	if ip4 == nil {
		return fmt.Errorf("upstream address %s is not IPv4", to)
	}
	sa := &unix.SockaddrInet4{Port: to.Port}
	copy(sa.Addr[:], ip4)
	if err := unix.Sendto(s.fd, payload, 0, sa); err != nil {
		return fmt.Errorf("send to %s: %w", to, err)
	}
	return nil
}

func (s *Socket) Receive(buf []byte) (int, error) {
	n, _, err := unix.Recvfrom(s.fd, buf, 0)
	if err != nil {
		return 0, fmt.Errorf("receive: %w", err)
	}
	return n, nil
}

func (s *Socket) Close() error {
	if s.fd < 0 {
		return nil
	}
	err := unix.Close(s.fd)
	s.fd = -1
	return err
}
