// Package translate turns packets read from the tunnel into upstream queries or
// synthesized negative replies, and turns upstream replies into packets that are
// written back to the tunnel.
package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/miekg/dns"
	"golang.org/x/sys/unix"

	"github.com/datawire/dlib/dlog"

	"github.com/telepresenceio/dnsfilter/pkg/connid"
	"github.com/telepresenceio/dnsfilter/pkg/errcat"
	"github.com/telepresenceio/dnsfilter/pkg/pending"
	"github.com/telepresenceio/dnsfilter/pkg/rules"
	"github.com/telepresenceio/dnsfilter/pkg/tun/ip"
	"github.com/telepresenceio/dnsfilter/pkg/tun/udp"
	"github.com/telepresenceio/dnsfilter/pkg/upstream"
)

// replyBufferSize is the size of the buffer that upstream replies are received into.
const replyBufferSize = 0x400

// Stats counts what happened to the queries handled by a Translator.
type Stats struct {
	Forwarded int
	Blocked   int
	Replied   int
	Dropped   int
}

func (s Stats) String() string {
	return fmt.Sprintf("forwarded=%d, blocked=%d, replied=%d, dropped=%d", s.Forwarded, s.Blocked, s.Replied, s.Dropped)
}

// Translator is owned by the goroutine that runs the forwarding loop and is not
// safe for concurrent use.
type Translator struct {
	blocked rules.HostSet
	table   *pending.Table
	opener  upstream.Opener
	output  [][]byte
	buf     []byte
	stats   Stats
}

func New(blocked rules.HostSet, table *pending.Table, opener upstream.Opener) *Translator {
	return &Translator{
		blocked: blocked,
		table:   table,
		opener:  opener,
		buf:     make([]byte, replyBufferSize),
	}
}

// HandleDevicePacket handles one packet read from the tunnel. Packets that aren't
// complete IPv4 UDP datagrams with a DNS query are discarded. The returned error is
// always of category Network and means that the tunnel is unusable.
func (t *Translator) HandleDevicePacket(ctx context.Context, pkt []byte) error {
	ipHdr, err := ip.ParseV4(pkt)
	if err != nil {
		dlog.Tracef(ctx, "discarding packet: %v", err)
		return nil
	}
	if ipHdr.IsFragment() {
		dlog.Tracef(ctx, "discarding fragment %s", ipHdr)
		return nil
	}
	udpHdr, err := udp.ParseHeader(ipHdr)
	if err != nil {
		dlog.Tracef(ctx, "discarding packet %s: %v", ipHdr, err)
		return nil
	}
	id := udp.ConnID(ipHdr, udpHdr)
	msg := new(dns.Msg)
	if err = msg.Unpack(udpHdr.Payload()); err != nil {
		dlog.Tracef(ctx, "discarding %s: invalid dns message: %v", id, err)
		return nil
	}
	if len(msg.Question) == 0 {
		dlog.Tracef(ctx, "discarding %s: dns message has no question", id)
		return nil
	}

	name := strings.ToLower(strings.TrimSuffix(msg.Question[0].Name, "."))
	if t.blocked.Contains(name) {
		dlog.Debugf(ctx, "blocked %s query for %s from %s", dns.TypeToString[msg.Question[0].Qtype], name, id)
		t.block(ctx, ipHdr, id, msg)
		return nil
	}
	dlog.Debugf(ctx, "forwarding %s query for %s from %s", dns.TypeToString[msg.Question[0].Qtype], name, id)
	return t.forward(ctx, ipHdr, udpHdr, id)
}

// block turns the query itself into a negative response, so that everything the
// client sent, including an EDNS OPT record, is echoed back.
func (t *Translator) block(ctx context.Context, ipHdr ip.V4Header, id connid.ConnID, msg *dns.Msg) {
	msg.Response = true
	msg.Rcode = dns.RcodeNameError
	payload, err := msg.Pack()
	if err != nil {
		dlog.Tracef(ctx, "unable to pack negative reply to %s: %v", id, err)
		return
	}
	t.stats.Blocked++
	t.enqueue(udp.NewReply(ipHdr, id, payload))
}

func (t *Translator) forward(ctx context.Context, ipHdr ip.V4Header, udpHdr udp.Header, id connid.ConnID) error {
	conn, err := t.opener.Open(ctx)
	if err != nil {
		return t.forwardFailed(ctx, id, err)
	}
	if err = conn.Send(udpHdr.Payload(), id.DestinationAddr()); err != nil {
		_ = conn.Close()
		return t.forwardFailed(ctx, id, err)
	}
	// The packet is retained, so it must not share memory with the caller's read buffer.
	packet := make([]byte, len(ipHdr))
	copy(packet, ipHdr)
	t.table.Insert(ctx, pending.Key(conn.Fd()), conn, packet)
	t.stats.Forwarded++
	return nil
}

func (t *Translator) forwardFailed(ctx context.Context, id connid.ConnID, err error) error {
	err = classifyForwardError(id, err)
	if errcat.Network.Is(err) {
		return err
	}
	t.drop(ctx, err)
	return nil
}

// classifyForwardError returns a Network error when err means that the upstream
// network cannot be used at all, and an Upstream error otherwise.
func classifyForwardError(id connid.ConnID, err error) error {
	if errors.Is(err, unix.ENETUNREACH) || errors.Is(err, unix.EPERM) {
		return errcat.Network.Newf("forward %s: %w", id, err)
	}
	return errcat.Upstream.Newf("forward %s: %w", id, err)
}

// drop logs an Upstream error. The client is left to time out.
func (t *Translator) drop(ctx context.Context, err error) {
	dlog.Warnf(ctx, "dropping query: %v", err)
	t.stats.Dropped++
}

// HandleUpstreamReady receives the reply that is waiting on the socket identified by
// key and queues the reply packet for the tunnel. Unknown keys are ignored.
func (t *Translator) HandleUpstreamReady(ctx context.Context, key pending.Key) error {
	q, ok := t.table.Take(key)
	if !ok {
		dlog.Tracef(ctx, "no pending query for socket %d", key)
		return nil
	}
	conn, ok := q.Conn.(upstream.Conn)
	if !ok {
		_ = q.Conn.Close()
		return errcat.Unknown.Newf("pending query %d has no upstream connection", q.ID)
	}
	n, err := conn.Receive(t.buf)
	_ = conn.Close()

	ipHdr := ip.V4Header(q.Packet)
	udpHdr, perr := udp.ParseHeader(ipHdr)
	if perr != nil {
		return errcat.Unknown.Newf("pending query %d: %w", q.ID, perr)
	}
	id := udp.ConnID(ipHdr, udpHdr)
	if err != nil {
		t.drop(ctx, errcat.Upstream.Newf("receive reply to %s: %w", id, err))
		return nil
	}
	dlog.Tracef(ctx, "reply to %s, %d bytes", id, n)
	t.stats.Replied++
	t.enqueue(udp.NewReply(ipHdr, id, t.buf[:n]))
	return nil
}

func (t *Translator) enqueue(pkt []byte) {
	t.output = append(t.output, pkt)
}

// HasOutput returns true when there are packets waiting to be written to the tunnel.
func (t *Translator) HasOutput() bool {
	return len(t.output) > 0
}

// NextOutput dequeues the oldest packet that waits to be written to the tunnel, or
// returns nil when there is none.
func (t *Translator) NextOutput() []byte {
	if len(t.output) == 0 {
		return nil
	}
	pkt := t.output[0]
	t.output[0] = nil
	t.output = t.output[1:]
	return pkt
}

// PendingFds returns the descriptors of the sockets that wait for an upstream reply.
func (t *Translator) PendingFds() []int {
	keys := t.table.Keys()
	fds := make([]int, len(keys))
	for i, k := range keys {
		fds[i] = int(k)
	}
	return fds
}

func (t *Translator) Stats() Stats {
	return t.stats
}
