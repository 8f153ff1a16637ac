// Package ip contains the IPv4 header codec used when inspecting packets read from
// the tunnel and when building the replies that are written back to it.
package ip

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync/atomic"

	"golang.org/x/net/ipv4"

	"github.com/telepresenceio/dnsfilter/pkg/errcat"
	"github.com/telepresenceio/dnsfilter/pkg/ipproto"
)

// V4Header is an IPv4 packet, starting with its header. The header accessors never
// look beyond the header, the payload accessors rely on the total length field.
type V4Header []byte

// ParseV4 returns a V4Header backed by the given bytes, truncated to the total length
// declared in the header. A Malformed error is returned when the bytes don't hold a
// complete IPv4 datagram.
func ParseV4(b []byte) (V4Header, error) {
	if len(b) < ipv4.HeaderLen {
		return nil, errcat.Malformed.Newf("ipv4 packet too short: %d bytes", len(b))
	}
	h := V4Header(b)
	if v := h.Version(); v != ipv4.Version {
		return nil, errcat.Malformed.Newf("unhandled protocol version %d", v)
	}
	hl := h.HeaderLen()
	if hl < ipv4.HeaderLen || hl > len(b) {
		return nil, errcat.Malformed.Newf("invalid ipv4 header length %d", hl)
	}
	tl := h.TotalLen()
	if tl < hl || tl > len(b) {
		return nil, errcat.Malformed.Newf("invalid ipv4 total length %d, packet has %d bytes", tl, len(b))
	}
	return h[:tl], nil
}

// Initialize sets the version and a 20 byte header length and zeroes all other header bytes.
func (h V4Header) Initialize() {
	h[0] = byte(ipv4.Version<<4) | byte(ipv4.HeaderLen>>2)
	for i := 1; i < ipv4.HeaderLen; i++ {
		h[i] = 0
	}
}

func (h V4Header) Version() int {
	return int(h[0] >> 4)
}

func (h V4Header) HeaderLen() int {
	return int(h[0]&0x0f) << 2
}

func (h V4Header) TOS() int {
	return int(h[1])
}

func (h V4Header) SetTOS(tos int) {
	h[1] = byte(tos)
}

func (h V4Header) TotalLen() int {
	return int(binary.BigEndian.Uint16(h[2:]))
}

func (h V4Header) ID() int {
	return int(binary.BigEndian.Uint16(h[4:]))
}

func (h V4Header) SetID(id int) {
	binary.BigEndian.PutUint16(h[4:], uint16(id))
}

func (h V4Header) Flags() ipv4.HeaderFlags {
	return ipv4.HeaderFlags(h[6] >> 5)
}

func (h V4Header) FragmentOffset() int {
	return int(binary.BigEndian.Uint16(h[6:]) & 0x1fff)
}

// IsFragment is true when this packet is a part, but not the whole, of a datagram.
func (h V4Header) IsFragment() bool {
	return h.Flags()&ipv4.MoreFragments != 0 || h.FragmentOffset() != 0
}

func (h V4Header) TTL() int {
	return int(h[8])
}

func (h V4Header) SetTTL(ttl int) {
	h[8] = byte(ttl)
}

// L4Protocol is the protocol of the layer-4 header.
func (h V4Header) L4Protocol() int {
	return int(h[9])
}

func (h V4Header) SetL4Protocol(proto int) {
	h[9] = byte(proto)
}

func (h V4Header) Checksum() int {
	return int(binary.BigEndian.Uint16(h[10:]))
}

// SetChecksum computes the checksum for this header. No further modifications must be
// made once this is called.
func (h V4Header) SetChecksum() {
	h[10] = 0
	h[11] = 0
	binary.BigEndian.PutUint16(h[10:], ^onesSum(0, h[:h.HeaderLen()]))
}

// ChecksumValid reports whether the header checksum is correct.
func (h V4Header) ChecksumValid() bool {
	return onesSum(0, h[:h.HeaderLen()]) == 0xffff
}

func (h V4Header) Source() net.IP {
	return net.IP(h[12:16])
}

func (h V4Header) SetSource(ip net.IP) {
	copy(h[12:16], ip.To4())
}

func (h V4Header) Destination() net.IP {
	return net.IP(h[16:20])
}

func (h V4Header) SetDestination(ip net.IP) {
	copy(h[16:20], ip.To4())
}

// Packet returns the full packet that this header is backed by.
func (h V4Header) Packet() []byte {
	return h[:h.TotalLen()]
}

func (h V4Header) Payload() []byte {
	return h[h.HeaderLen():h.TotalLen()]
}

func (h V4Header) PayloadLen() int {
	return h.TotalLen() - h.HeaderLen()
}

// SetPayloadLen sets the total length to the header length plus the given length.
func (h V4Header) SetPayloadLen(l int) {
	binary.BigEndian.PutUint16(h[2:], uint16(h.HeaderLen()+l))
}

// PseudoHeader returns the pseudo header used when computing the checksum for a layer-4 header.
// All fields must be filled in before requesting this header.
func (h V4Header) PseudoHeader(l4Proto int) []byte {
	b := make([]byte, 12)
	copy(b, h[12:20])
	b[9] = byte(l4Proto)
	binary.BigEndian.PutUint16(b[10:], uint16(h.PayloadLen()))
	return b
}

func (h V4Header) String() string {
	return fmt.Sprintf("%s %s -> %s, id=%d, len=%d",
		ipproto.String(h.L4Protocol()), h.Source(), h.Destination(), h.ID(), h.TotalLen())
}

var id uint32

// NextID returns a new identifier to use in packets that aren't replies.
func NextID() int {
	return int(uint16(atomic.AddUint32(&id, 1)))
}

// L4Checksum computes a checksum for a layer 4 TCP or UDP header using a pseudo header
// created from the given IP header and assigns that checksum to the two bytes starting
// at checksumPosition.
//
// The checksumPosition is the offset into the IP payload for the checksum for the given
// level-4 protocol which should be ipproto.TCP or ipproto.UDP.
//
// It is assumed that the ipHdr represents an un-fragmented package with a complete L4
// payload.
func L4Checksum(ipHdr V4Header, checksumPosition, l4Proto int) {
	p := ipHdr.Payload()
	p[checksumPosition] = 0
	p[checksumPosition+1] = 0

	c := ^onesSum(onesSum(0, ipHdr.PseudoHeader(l4Proto)), p)
	if c == 0 && l4Proto == ipproto.UDP {
		// From RFC 768: If the computed checksum is zero, it is transmitted as all ones.
		c = 0xffff
	}
	binary.BigEndian.PutUint16(p[checksumPosition:], c)
}

// L4ChecksumValid reports whether the layer 4 checksum of the payload is correct.
func L4ChecksumValid(ipHdr V4Header, l4Proto int) bool {
	return onesSum(onesSum(0, ipHdr.PseudoHeader(l4Proto)), ipHdr.Payload()) == 0xffff
}

// onesSum adds the big endian 16 bit words of b to the ones complement sum s.
func onesSum(s uint16, b []byte) uint16 {
	sum := uint32(s)
	n := len(b)
	if n%2 != 0 {
		// uneven length, add last byte << 8
		n--
		sum += uint32(b[n]) << 8
	}
	for i := 0; i < n; i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	for sum > 0xffff {
		sum = (sum >> 16) + (sum & 0xffff)
	}
	return uint16(sum)
}
