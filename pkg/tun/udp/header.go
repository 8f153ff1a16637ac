// Package udp contains the UDP header codec and the builder for the reply datagrams
// that are written to the tunnel.
package udp

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/net/ipv4"

	"github.com/telepresenceio/dnsfilter/pkg/connid"
	"github.com/telepresenceio/dnsfilter/pkg/errcat"
	"github.com/telepresenceio/dnsfilter/pkg/ipproto"
	"github.com/telepresenceio/dnsfilter/pkg/tun/ip"
)

const HeaderLen = 8

// The UDP datagram and its payload
type Header []byte

// ParseHeader returns the UDP header found in the payload of the given IPv4 packet,
// truncated to the length declared in the header.
func ParseHeader(ipHdr ip.V4Header) (Header, error) {
	if ipHdr.L4Protocol() != ipproto.UDP {
		return nil, errcat.Malformed.Newf("not a udp packet: %s", ipproto.String(ipHdr.L4Protocol()))
	}
	p := ipHdr.Payload()
	if len(p) < HeaderLen {
		return nil, errcat.Malformed.Newf("udp datagram too short: %d bytes", len(p))
	}
	u := Header(p)
	if tl := int(u.TotalLen()); tl < HeaderLen || tl > len(p) {
		return nil, errcat.Malformed.Newf("invalid udp length %d, datagram has %d bytes", tl, len(p))
	}
	return u[:u.TotalLen()], nil
}

func (u Header) SourcePort() uint16 {
	return binary.BigEndian.Uint16(u)
}

func (u Header) SetSourcePort(port uint16) {
	binary.BigEndian.PutUint16(u, port)
}

func (u Header) DestinationPort() uint16 {
	return binary.BigEndian.Uint16(u[2:])
}

func (u Header) SetDestinationPort(port uint16) {
	binary.BigEndian.PutUint16(u[2:], port)
}

func (u Header) PayloadLen() uint16 {
	return u.TotalLen() - HeaderLen
}

func (u Header) TotalLen() uint16 {
	return binary.BigEndian.Uint16(u[4:])
}

func (u Header) SetPayloadLen(l uint16) {
	binary.BigEndian.PutUint16(u[4:], l+HeaderLen)
}

func (u Header) Checksum() uint16 {
	return binary.BigEndian.Uint16(u[6:])
}

func (u Header) SetChecksum(ipHdr ip.V4Header) {
	ip.L4Checksum(ipHdr, 6, ipproto.UDP)
}

func (u Header) Payload() []byte {
	return u[HeaderLen:u.TotalLen()]
}

func (u Header) String() string {
	return fmt.Sprintf("src=%d, dst=%d, length=%d, crc=%d", u.SourcePort(), u.DestinationPort(), u.PayloadLen(), u.Checksum())
}

// ConnID returns the flow key of a UDP datagram carried by the given IPv4 packet.
func ConnID(ipHdr ip.V4Header, u Header) connid.ConnID {
	return connid.New(ipproto.UDP, ipHdr.Source(), ipHdr.Destination(), u.SourcePort(), u.DestinationPort())
}

// NewReply builds a complete IPv4 packet that carries payload from the destination
// of the query packet back to its source. The TOS and ID of the query are retained and
// both checksums are computed.
func NewReply(query ip.V4Header, id connid.ConnID, payload []byte) ip.V4Header {
	reply := id.Reply()
	ipHdr := ip.V4Header(make([]byte, ipv4.HeaderLen+HeaderLen+len(payload)))
	ipHdr.Initialize()
	ipHdr.SetTOS(query.TOS())
	ipHdr.SetID(query.ID())
	ipHdr.SetTTL(64)
	ipHdr.SetL4Protocol(ipproto.UDP)
	ipHdr.SetSource(reply.Source())
	ipHdr.SetDestination(reply.Destination())
	ipHdr.SetPayloadLen(HeaderLen + len(payload))
	ipHdr.SetChecksum()

	udpHdr := Header(ipHdr.Payload())
	udpHdr.SetSourcePort(reply.SourcePort())
	udpHdr.SetDestinationPort(reply.DestinationPort())
	udpHdr.SetPayloadLen(uint16(len(payload)))
	copy(udpHdr.Payload(), payload)
	udpHdr.SetChecksum(ipHdr)
	return ipHdr
}
