package upstream

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestDialer_SendReceive(t *testing.T) {
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	protected := -1
	d := Dialer{Protector: ProtectorFunc(func(fd int) error {
		protected = fd
		return nil
	})}
	c, err := d.Open(context.Background())
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, c.Fd(), protected)

	require.NoError(t, c.Send([]byte("ping"), pc.LocalAddr().(*net.UDPAddr)))
	buf := make([]byte, 64)
	require.NoError(t, pc.SetReadDeadline(time.Now().Add(5*time.Second)))
	n, from, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))

	// The socket is non-blocking
	_, err = c.Receive(buf)
	assert.True(t, errors.Is(err, unix.EAGAIN))

	_, err = pc.WriteTo([]byte("pong"), from)
	require.NoError(t, err)
	fds := []unix.PollFd{{Fd: int32(c.Fd()), Events: unix.POLLIN}}
	_, err = unix.Poll(fds, 5000)
	require.NoError(t, err)
	n, err = c.Receive(buf)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(buf[:n]))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestDialer_ProtectFailure(t *testing.T) {
	boom := errors.New("boom")
	d := Dialer{Protector: ProtectorFunc(func(int) error { return boom })}
	_, err := d.Open(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestSocket_SendIPv6(t *testing.T) {
	c, err := Dialer{Protector: NoProtection{}}.Open(context.Background())
	require.NoError(t, err)
	defer c.Close()
	assert.Error(t, c.Send([]byte("x"), &net.UDPAddr{IP: net.ParseIP("::1"), Port: 53}))
}
