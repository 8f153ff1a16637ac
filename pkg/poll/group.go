// Package poll waits for readiness on the tunnel device and on the sockets of the
// queries that are waiting for an upstream reply.
package poll

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/telepresenceio/dnsfilter/pkg/errcat"
)

// An Event is one of SocketReady, DeviceWritable, or DeviceReadable.
type Event interface {
	isEvent()
}

// SocketReady is reported for an upstream socket that has a datagram or an error
// waiting.
type SocketReady struct {
	Fd int
}

// DeviceWritable is reported when output was requested and the device accepts it.
type DeviceWritable struct{}

// DeviceReadable is reported when a packet can be read from the device.
type DeviceReadable struct{}

func (SocketReady) isEvent()    {}
func (DeviceWritable) isEvent() {}
func (DeviceReadable) isEvent() {}

func (e SocketReady) String() string  { return fmt.Sprintf("socket-ready(%d)", e.Fd) }
func (DeviceWritable) String() string { return "device-writable" }
func (DeviceReadable) String() string { return "device-readable" }

const (
	deviceIdx = iota
	cancelIdx
	firstSocketIdx
)

// Group is a snapshot of the descriptors to wait for. A new Group is created for
// each iteration of the forwarding loop.
type Group struct {
	fds []unix.PollFd
}

// NewGroup returns a Group that waits for input on device, for output on device when
// canWrite is true, for a hangup on cancel, and for input on every socket.
func NewGroup(device, cancel int, sockets []int, canWrite bool) *Group {
	fds := make([]unix.PollFd, firstSocketIdx, firstSocketIdx+len(sockets))
	fds[deviceIdx] = unix.PollFd{Fd: int32(device), Events: unix.POLLIN}
	if canWrite {
		fds[deviceIdx].Events |= unix.POLLOUT
	}
	fds[cancelIdx] = unix.PollFd{Fd: int32(cancel), Events: unix.POLLHUP | unix.POLLERR}
	for _, s := range sockets {
		fds = append(fds, unix.PollFd{Fd: int32(s), Events: unix.POLLIN})
	}
	return &Group{fds: fds}
}

// Wait blocks until at least one descriptor is ready. A false ok means that the
// cancel descriptor signalled and that the caller must stop. Otherwise, the returned
// events are ordered so that every SocketReady comes first, followed by
// DeviceWritable and DeviceReadable.
func (g *Group) Wait() (events []Event, ok bool, err error) {
	for {
		if _, err = unix.Poll(g.fds, -1); err == nil {
			break
		}
		if !errors.Is(err, unix.EINTR) {
			return nil, false, errcat.Network.Newf("poll: %w", err)
		}
	}

	if g.fds[cancelIdx].Revents != 0 {
		return nil, false, nil
	}

	dev := g.fds[deviceIdx].Revents
	if dev&(unix.POLLERR|unix.POLLNVAL) != 0 {
		return nil, false, errcat.Network.Newf("poll: device signalled error (revents %#x)", dev)
	}

	for _, pfd := range g.fds[firstSocketIdx:] {
		if pfd.Revents&(unix.POLLIN|unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			events = append(events, SocketReady{Fd: int(pfd.Fd)})
		}
	}
	if dev&unix.POLLOUT != 0 {
		events = append(events, DeviceWritable{})
	}
	// A hangup is reported as readable so that the following read surfaces it
	if dev&(unix.POLLIN|unix.POLLHUP) != 0 {
		events = append(events, DeviceReadable{})
	}
	return events, true, nil
}
