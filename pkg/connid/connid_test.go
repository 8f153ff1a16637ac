package connid

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/telepresenceio/dnsfilter/pkg/ipproto"
)

func TestConnID_Reply(t *testing.T) {
	id := New(ipproto.UDP, net.ParseIP("192.168.50.1"), net.ParseIP("8.8.8.8"), 40000, 53)
	assert.True(t, id.IsIPv4())
	assert.Equal(t, "udp 192.168.50.1:40000 -> 8.8.8.8:53", id.String())

	r := id.Reply()
	assert.True(t, r.Source().Equal(net.ParseIP("8.8.8.8")))
	assert.True(t, r.Destination().Equal(net.ParseIP("192.168.50.1")))
	assert.Equal(t, uint16(53), r.SourcePort())
	assert.Equal(t, uint16(40000), r.DestinationPort())
	assert.Equal(t, ipproto.UDP, r.Protocol())
	assert.Equal(t, id, r.Reply())
}

func TestConnID_DestinationAddr(t *testing.T) {
	id := New(ipproto.UDP, net.IPv4(10, 0, 0, 2), net.IPv4(1, 1, 1, 1), 1234, 53)
	addr := id.DestinationAddr()
	assert.Equal(t, "1.1.1.1:53", addr.String())
}

func TestConnID_IPv6(t *testing.T) {
	id := New(ipproto.UDP, net.ParseIP("fd00::1"), net.ParseIP("fd00::2"), 1, 2)
	assert.False(t, id.IsIPv4())
	assert.Equal(t, "fd00::2", id.Destination().String())
	assert.Equal(t, uint16(2), id.DestinationPort())
}
