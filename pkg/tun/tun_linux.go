// Package tun opens a Tunnel (L3 virtual interface) using the Universal TUN/TAP device driver.
package tun

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

const devicePath = "/dev/net/tun"

// DefaultName is the name pattern used when no name is given. The kernel replaces
// %d with the lowest free number.
const DefaultName = "dnsf%d"

// Device is a TUN device. Its descriptor is non-blocking and is polled directly.
type Device struct {
	fd   int
	name string
}

// Open creates a new TUN device with the given name or name pattern. The device is
// created down and without addresses.
func Open(name string) (*Device, error) {
	// https://www.kernel.org/doc/Documentation/networking/tuntap.txt
	if name == "" {
		name = DefaultName
	}
	if len(name) >= unix.IFNAMSIZ {
		return nil, fmt.Errorf("device name %q is too long", name)
	}

	fd, err := unix.Open(devicePath, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", devicePath, err)
	}

	var flagsRequest struct {
		name  [unix.IFNAMSIZ]byte
		flags int16
	}
	copy(flagsRequest.name[:], name)
	flagsRequest.flags = unix.IFF_TUN | unix.IFF_NO_PI

	err = unix.IoctlSetInt(fd, unix.TUNSETIFF, int(uintptr(unsafe.Pointer(&flagsRequest))))
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("create tun device %q: %w", name, err)
	}
	if err = unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	return &Device{fd: fd, name: ifName(flagsRequest.name[:])}, nil
}

func ifName(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// Name returns the name of this device, e.g. "dnsf0"
func (t *Device) Name() string {
	return t.name
}

func (t *Device) Fd() int {
	return t.fd
}

// Read reads one packet into p and returns its length.
func (t *Device) Read(p []byte) (int, error) {
	n, err := unix.Read(t.fd, p)
	if n < 0 {
		n = 0
	}
	return n, err
}

// Write writes one packet.
func (t *Device) Write(p []byte) (int, error) {
	n, err := unix.Write(t.fd, p)
	if n < 0 {
		n = 0
	}
	return n, err
}

// Close closes the descriptor, which also removes the device and its routes.
func (t *Device) Close() error {
	if t.fd < 0 {
		return nil
	}
	err := unix.Close(t.fd)
	t.fd = -1
	return err
}
