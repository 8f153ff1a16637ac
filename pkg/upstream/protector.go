package upstream

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// A Protector marks an upstream socket so that the queries sent on it are routed
// around the tunnel instead of being captured by it.
type Protector interface {
	Protect(fd int) error
}

// ProtectorFunc adapts an ordinary function to the Protector interface.
type ProtectorFunc func(fd int) error

func (f ProtectorFunc) Protect(fd int) error {
	return f(fd)
}

// NoProtection leaves sockets untouched.
type NoProtection struct{}

func (NoProtection) Protect(int) error {
	return nil
}

// MarkProtector sets the SO_MARK socket option. The policy rule installed for the
// tunnel skips the tunnel's routing table for packets carrying the mark.
type MarkProtector struct {
	Mark int
}

// DeviceProtector binds sockets to a named interface with SO_BINDTODEVICE.
type DeviceProtector struct {
	Interface string
}

func (p MarkProtector) Protect(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_MARK, p.Mark); err != nil {
		return fmt.Errorf("set SO_MARK %#x: %w", p.Mark, err)
	}
	return nil
}

func (p DeviceProtector) Protect(fd int) error {
	if err := unix.BindToDevice(fd, p.Interface); err != nil {
		return fmt.Errorf("bind to device %s: %w", p.Interface, err)
	}
	return nil
}
