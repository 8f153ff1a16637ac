// Package ipproto contains IP protocol numbers
// https://www.iana.org/assignments/protocol-numbers/protocol-numbers.xhtml
package ipproto

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const (
	ICMP = unix.IPPROTO_ICMP
	TCP  = unix.IPPROTO_TCP
	UDP  = unix.IPPROTO_UDP
)

func String(proto int) string {
	switch proto {
	case ICMP:
		return "icmp"
	case TCP:
		return "tcp"
	case UDP:
		return "udp"
	default:
		return fmt.Sprintf("IP-protocol %d", proto)
	}
}
