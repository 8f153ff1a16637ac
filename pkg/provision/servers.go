package provision

import (
	"context"
	"net"

	"github.com/miekg/dns"

	"github.com/datawire/dlib/dlog"

	"github.com/telepresenceio/dnsfilter/pkg/errcat"
)

const DefaultResolvConf = "/etc/resolv.conf"

// ErrUnavailable is returned by Provision when no upstream DNS server can be routed
// through the tunnel. The condition is recoverable.
var ErrUnavailable = errcat.Network.New("no upstream IPv4 DNS servers available")

// Servers returns the configured servers followed by the nameservers of the given
// resolv.conf file. Loopback, IPv6, and duplicate addresses are omitted. A resolv.conf
// that can't be read is logged and then ignored.
func Servers(ctx context.Context, configured []net.IP, resolvConf string) []net.IP {
	candidates := append([]net.IP(nil), configured...)
	if resolvConf != "" {
		cc, err := dns.ClientConfigFromFile(resolvConf)
		if err != nil {
			dlog.Warnf(ctx, "unable to read nameservers from %s: %v", resolvConf, err)
		} else {
			for _, s := range cc.Servers {
				if ip := net.ParseIP(s); ip != nil {
					candidates = append(candidates, ip)
				} else {
					dlog.Debugf(ctx, "ignoring nameserver %q in %s", s, resolvConf)
				}
			}
		}
	}

	var servers []net.IP
	seen := make(map[string]struct{}, len(candidates))
	for _, ip := range candidates {
		ip4 := ip.To4()
		switch {
		case ip4 == nil:
			dlog.Debugf(ctx, "ignoring non IPv4 nameserver %s", ip)
			continue
		case ip4.IsLoopback():
			dlog.Debugf(ctx, "ignoring loopback nameserver %s", ip)
			continue
		}
		if _, ok := seen[string(ip4)]; ok {
			continue
		}
		seen[string(ip4)] = struct{}{}
		servers = append(servers, ip4)
	}
	return servers
}
