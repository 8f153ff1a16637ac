package engine

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/telepresenceio/dnsfilter/pkg/errcat"
	"github.com/telepresenceio/dnsfilter/pkg/pending"
	"github.com/telepresenceio/dnsfilter/pkg/poll"
	"github.com/telepresenceio/dnsfilter/pkg/translate"
)

// deviceBufferSize is large enough for any packet the tunnel MTU permits.
const deviceBufferSize = 0x7fff

// forward runs the forwarding loop. It returns nil when the interrupter signals, and
// an error when an event could not be handled.
func forward(ctx context.Context, dev Device, intr *poll.Interrupter, tr *translate.Translator) error {
	buf := make([]byte, deviceBufferSize)
	for {
		events, ok, err := poll.NewGroup(dev.Fd(), intr.Fd(), tr.PendingFds(), tr.HasOutput()).Wait()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		for _, ev := range events {
			switch ev := ev.(type) {
			case poll.SocketReady:
				err = tr.HandleUpstreamReady(ctx, pending.Key(ev.Fd))
			case poll.DeviceWritable:
				err = writeDevice(dev, tr)
			case poll.DeviceReadable:
				err = readDevice(ctx, dev, buf, tr)
			}
			if err != nil {
				return fmt.Errorf("%s: %w", ev, err)
			}
		}
	}
}

func writeDevice(dev Device, tr *translate.Translator) error {
	pkt := tr.NextOutput()
	if pkt == nil {
		return nil
	}
	if _, err := dev.Write(pkt); err != nil {
		return errcat.Network.Newf("write to tunnel: %w", err)
	}
	return nil
}

func readDevice(ctx context.Context, dev Device, buf []byte, tr *translate.Translator) error {
	n, err := dev.Read(buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return nil
		}
		return errcat.Network.Newf("read from tunnel: %w", err)
	}
	if n == 0 {
		return errcat.Network.New("tunnel closed")
	}
	return tr.HandleDevicePacket(ctx, buf[:n])
}
