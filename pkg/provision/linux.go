// Package provision creates and configures the tunnel interface that intercepts the
// traffic to the upstream DNS servers.
package provision

import (
	"context"
	"fmt"
	"net"

	"github.com/hashicorp/go-multierror"
	"github.com/vishvananda/netlink"

	"github.com/datawire/dlib/dlog"

	"github.com/telepresenceio/dnsfilter/pkg/engine"
	"github.com/telepresenceio/dnsfilter/pkg/errcat"
	"github.com/telepresenceio/dnsfilter/pkg/tun"
)

// Config describes the tunnel interface and the routing that sends DNS traffic to it.
type Config struct {
	// Name is the interface name or name pattern, e.g. "dnsf%d"
	Name    string
	Address *net.IPNet
	MTU     int

	// Traffic to the upstream servers is routed through Table, except for packets
	// carrying FwMark. The policy rule that implements this has RulePriority.
	FwMark       int
	Table        int
	RulePriority int

	// Servers are the configured upstream servers. The nameservers of ResolvConf are
	// added to them.
	Servers    []net.IP
	ResolvConf string
}

// Linux provisions the tunnel using netlink.
type Linux struct {
	cfg Config
}

func NewLinux(cfg Config) *Linux {
	return &Linux{cfg: cfg}
}

// Tunnel is a provisioned TUN device. Closing it removes the policy rule and the
// device together with its address and routes.
type Tunnel struct {
	*tun.Device
	rule    *netlink.Rule
	Servers []net.IP
}

func (l *Linux) Provision(ctx context.Context) (engine.Device, error) {
	servers := Servers(ctx, l.cfg.Servers, l.cfg.ResolvConf)
	if len(servers) == 0 {
		return nil, ErrUnavailable
	}
	dev, err := tun.Open(l.cfg.Name)
	if err != nil {
		return nil, errcat.Network.New(err)
	}
	t := &Tunnel{Device: dev, Servers: servers}
	if err = l.configure(ctx, t); err != nil {
		if cerr := t.Close(); cerr != nil {
			dlog.Errorf(ctx, "cleanup after failed provisioning: %v", cerr)
		}
		return nil, errcat.Network.New(err)
	}
	dlog.Infof(ctx, "tunnel %s is up, intercepting %v", dev.Name(), servers)
	return t, nil
}

func (l *Linux) configure(ctx context.Context, t *Tunnel) error {
	name := t.Name()
	link, err := netlink.LinkByName(name)
	if err != nil {
		return fmt.Errorf("failed to find link for interface %s: %w", name, err)
	}
	if l.cfg.Address != nil {
		if err = netlink.AddrAdd(link, &netlink.Addr{IPNet: l.cfg.Address}); err != nil {
			return fmt.Errorf("failed to add address %s to interface %s: %w", l.cfg.Address, name, err)
		}
	}
	if l.cfg.MTU > 0 {
		if err = netlink.LinkSetMTU(link, l.cfg.MTU); err != nil {
			return fmt.Errorf("set MTU on %s failed: %w", name, err)
		}
	}
	if err = netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("failed to bring up %s: %w", name, err)
	}

	for _, s := range t.Servers {
		route := &netlink.Route{
			LinkIndex: link.Attrs().Index,
			Dst:       &net.IPNet{IP: s, Mask: net.CIDRMask(32, 32)},
			Scope:     netlink.SCOPE_LINK,
			Table:     l.cfg.Table,
		}
		dlog.Debugf(ctx, "adding route %s via %s in table %d", route.Dst, name, l.cfg.Table)
		if err = netlink.RouteAdd(route); err != nil {
			return fmt.Errorf("failed to add route %s via %s: %w", route.Dst, name, err)
		}
	}

	rule := netlink.NewRule()
	rule.Family = netlink.FAMILY_V4
	rule.Table = l.cfg.Table
	rule.Mark = uint32(l.cfg.FwMark)
	rule.Invert = true
	rule.Priority = l.cfg.RulePriority
	dlog.Debugf(ctx, "adding rule %d: not fwmark %#x lookup %d", rule.Priority, rule.Mark, rule.Table)
	if err = netlink.RuleAdd(rule); err != nil {
		return fmt.Errorf("failed to add policy rule for table %d: %w", l.cfg.Table, err)
	}
	t.rule = rule
	return nil
}

func (t *Tunnel) Close() error {
	var result *multierror.Error
	if t.rule != nil {
		if err := netlink.RuleDel(t.rule); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to delete policy rule: %w", err))
		}
		t.rule = nil
	}
	if err := t.Device.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
