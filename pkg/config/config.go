// Package config contains the dnsfilter configuration, loaded from config.yml files
// in the system and user configuration directories.
package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/datawire/dlib/dlog"

	"github.com/telepresenceio/dnsfilter/pkg/errcat"
	"github.com/telepresenceio/dnsfilter/pkg/rules"
)

const ConfigFile = "config.yml"

type Config struct {
	LogLevel   logrus.Level `yaml:"logLevel,omitempty"`
	Hosts      Hosts        `yaml:"hosts,omitempty"`
	DNSServers DNSServers   `yaml:"dnsServers,omitempty"`
	Tunnel     Tunnel       `yaml:"tunnel,omitempty"`
	Retry      Retry        `yaml:"retry,omitempty"`
	Pending    Pending      `yaml:"pending,omitempty"`
}

// merge merges this instance with the non-zero values of the given argument. The argument values take priority.
func (c *Config) merge(o *Config) {
	if o.LogLevel != 0 {
		c.LogLevel = o.LogLevel
	}
	c.Hosts.merge(&o.Hosts)
	c.DNSServers.merge(&o.DNSServers)
	c.Tunnel.merge(&o.Tunnel)
	c.Retry.merge(&o.Retry)
	c.Pending.merge(&o.Pending)
}

func stringKey(n *yaml.Node) (string, error) {
	var s string
	if err := n.Decode(&s); err != nil {
		return "", errors.New(withLoc("key must be a string", n))
	}
	return s, nil
}

func (c *Config) UnmarshalYAML(node *yaml.Node) (err error) {
	if node.Kind != yaml.MappingNode {
		return errors.New(withLoc("config must be an object", node))
	}
	ms := node.Content
	top := len(ms)
	for i := 0; i < top; i += 2 {
		kv, err := stringKey(ms[i])
		if err != nil {
			return err
		}
		v := ms[i+1]
		switch kv {
		case "logLevel":
			if c.LogLevel, err = logrus.ParseLevel(v.Value); err != nil {
				return errors.New(withLoc("invalid log-level", v))
			}
		case "hosts":
			err = v.Decode(&c.Hosts)
		case "dnsServers":
			err = v.Decode(&c.DNSServers)
		case "tunnel":
			err = v.Decode(&c.Tunnel)
		case "retry":
			err = v.Decode(&c.Retry)
		case "pending":
			err = v.Decode(&c.Pending)
		default:
			if parseContext != nil {
				dlog.Warn(parseContext, withLoc(fmt.Sprintf("unknown key %q", kv), ms[i]))
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// HostItem is a host or a host-list file that is allowed, denied, or ignored.
type HostItem struct {
	Location string `yaml:"location" validate:"required"`
	State    string `yaml:"state" validate:"oneof=allow deny ignore"`
	Kind     string `yaml:"kind,omitempty" validate:"omitempty,oneof=host file"`
}

type Hosts struct {
	Enabled *bool      `yaml:"enabled,omitempty"`
	Items   []HostItem `yaml:"items,omitempty" validate:"dive"`
}

func (h *Hosts) merge(o *Hosts) {
	if o.Enabled != nil {
		h.Enabled = o.Enabled
	}
	if o.Items != nil {
		h.Items = o.Items
	}
}

// IsEnabled returns false only if filtering has been explicitly disabled.
func (h *Hosts) IsEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}

// Rules returns the rule list described by the items, in order. No rules are
// returned when filtering is disabled.
func (h *Hosts) Rules() ([]rules.Rule, error) {
	if !h.IsEnabled() {
		return nil, nil
	}
	rs := make([]rules.Rule, 0, len(h.Items))
	for i, item := range h.Items {
		kind, err := rules.ParseKind(item.Kind, item.Location)
		if err != nil {
			return nil, errcat.Config.Newf("hosts.items[%d]: %w", i, err)
		}
		state, err := rules.ParseState(item.State)
		if err != nil {
			return nil, errcat.Config.Newf("hosts.items[%d]: %w", i, err)
		}
		rs = append(rs, rules.Rule{Location: item.Location, Kind: kind, State: state})
	}
	return rs, nil
}

// ServerItem is an upstream DNS server. Only servers in state "allow" are used.
type ServerItem struct {
	Location string `yaml:"location" validate:"required,ip"`
	State    string `yaml:"state,omitempty" validate:"omitempty,oneof=allow deny ignore"`
}

type DNSServers struct {
	Enabled *bool        `yaml:"enabled,omitempty"`
	Items   []ServerItem `yaml:"items,omitempty" validate:"dive"`
}

func (d *DNSServers) merge(o *DNSServers) {
	if o.Enabled != nil {
		d.Enabled = o.Enabled
	}
	if o.Items != nil {
		d.Items = o.Items
	}
}

// Servers returns the addresses of the allowed servers. No servers are returned when
// the configured servers are disabled.
func (d *DNSServers) Servers() []net.IP {
	if d.Enabled != nil && !*d.Enabled {
		return nil
	}
	var ips []net.IP
	for _, item := range d.Items {
		if item.State != "" && item.State != "allow" {
			continue
		}
		if ip := net.ParseIP(item.Location); ip != nil {
			ips = append(ips, ip)
		}
	}
	return ips
}

type Tunnel struct {
	// Name is the interface name, or a pattern such as "dnsf%d"
	Name         string `yaml:"name,omitempty" validate:"omitempty,max=15"`
	Address      string `yaml:"address,omitempty" validate:"omitempty,ipv4prefix"`
	MTU          int    `yaml:"mtu,omitempty" validate:"omitempty,min=576,max=65535"`
	FwMark       int    `yaml:"fwmark,omitempty" validate:"omitempty,min=1"`
	Table        int    `yaml:"table,omitempty" validate:"omitempty,min=1"`
	RulePriority int    `yaml:"rulePriority,omitempty" validate:"omitempty,min=1,max=32765"`
}

func (t *Tunnel) merge(o *Tunnel) {
	if o.Name != "" {
		t.Name = o.Name
	}
	if o.Address != "" {
		t.Address = o.Address
	}
	if o.MTU != 0 {
		t.MTU = o.MTU
	}
	if o.FwMark != 0 {
		t.FwMark = o.FwMark
	}
	if o.Table != 0 {
		t.Table = o.Table
	}
	if o.RulePriority != 0 {
		t.RulePriority = o.RulePriority
	}
}

// AddressNet returns the interface address with its network mask.
func (t *Tunnel) AddressNet() (*net.IPNet, error) {
	ipNet, err := parseIPv4Prefix(t.Address)
	if err != nil {
		return nil, errcat.Config.Newf("tunnel.address: %w", err)
	}
	return ipNet, nil
}

// parseIPv4Prefix parses a host address with a prefix length, e.g. 192.168.50.1/24.
// The returned IPNet holds the host address, not the network address.
func parseIPv4Prefix(s string) (*net.IPNet, error) {
	ip, ipNet, err := net.ParseCIDR(s)
	if err != nil {
		return nil, err
	}
	ip4 := ip.To4()
	if ip4 == nil || len(ipNet.Mask) != net.IPv4len {
		return nil, fmt.Errorf("%s is not an IPv4 address", s)
	}
	ipNet.IP = ip4
	return ipNet, nil
}

// Retry controls the delay between connection attempts.
type Retry struct {
	MinDelay time.Duration `yaml:"minDelay,omitempty"`
	MaxDelay time.Duration `yaml:"maxDelay,omitempty" validate:"omitempty,gtefield=MinDelay"`
}

// UnmarshalYAML caters for the unfortunate fact that time.Duration doesn't do YAML or JSON at all.
func (r *Retry) UnmarshalYAML(node *yaml.Node) error {
	return unmarshalDurations(node, "retry", map[string]*time.Duration{
		"minDelay": &r.MinDelay,
		"maxDelay": &r.MaxDelay,
	}, nil)
}

func (r *Retry) merge(o *Retry) {
	if o.MinDelay != 0 {
		r.MinDelay = o.MinDelay
	}
	if o.MaxDelay != 0 {
		r.MaxDelay = o.MaxDelay
	}
}

// Pending controls the table of queries that wait for an upstream reply.
type Pending struct {
	Capacity int           `yaml:"capacity,omitempty" validate:"min=0"`
	Timeout  time.Duration `yaml:"timeout,omitempty" validate:"min=0"`
}

func (p *Pending) UnmarshalYAML(node *yaml.Node) error {
	return unmarshalDurations(node, "pending", map[string]*time.Duration{
		"timeout": &p.Timeout,
	}, map[string]*int{
		"capacity": &p.Capacity,
	})
}

func (p *Pending) merge(o *Pending) {
	if o.Capacity != 0 {
		p.Capacity = o.Capacity
	}
	if o.Timeout != 0 {
		p.Timeout = o.Timeout
	}
}

// unmarshalDurations decodes a mapping whose values are durations or integers. A
// duration is an integer number of seconds, a float number of seconds, or a string
// accepted by time.ParseDuration.
func unmarshalDurations(node *yaml.Node, what string, durations map[string]*time.Duration, ints map[string]*int) error {
	if node.Kind != yaml.MappingNode {
		return errors.New(withLoc(what+" must be an object", node))
	}
	ms := node.Content
	top := len(ms)
	for i := 0; i < top; i += 2 {
		kv, err := stringKey(ms[i])
		if err != nil {
			return err
		}
		v := ms[i+1]
		if ip, ok := ints[kv]; ok {
			if err = v.Decode(ip); err != nil {
				return errors.New(withLoc(fmt.Sprintf("%s.%s must be an integer", what, kv), v))
			}
			continue
		}
		dp, ok := durations[kv]
		if !ok {
			if parseContext != nil {
				dlog.Warn(parseContext, withLoc(fmt.Sprintf("unknown key %q", kv), ms[i]))
			}
			continue
		}

		var vv any
		if err = v.Decode(&vv); err != nil {
			return errors.New(withLoc("unable to parse value", v))
		}
		switch vv := vv.(type) {
		case int:
			*dp = time.Duration(vv) * time.Second
		case float64:
			*dp = time.Duration(vv * float64(time.Second))
		case string:
			if *dp, err = time.ParseDuration(vv); err != nil {
				return errors.New(withLoc(fmt.Sprintf("%q is not a valid duration", vv), v))
			}
		default:
			return errors.New(withLoc(fmt.Sprintf("%s.%s must be a duration", what, kv), v))
		}
	}
	return nil
}

// GetDefaultConfig returns the configuration that files are merged into.
func GetDefaultConfig() *Config {
	return &Config{
		LogLevel: logrus.InfoLevel,
		Tunnel: Tunnel{
			Name:         "dnsf%d",
			Address:      "192.168.50.1/24",
			MTU:          1500,
			FwMark:       0x444e,
			Table:        5353,
			RulePriority: 5353,
		},
		Retry: Retry{
			MinDelay: 5 * time.Second,
			MaxDelay: 2 * time.Minute,
		},
		Pending: Pending{
			Capacity: 1024,
			Timeout:  10 * time.Second,
		},
	}
}

var parseContext context.Context

type parsedFile struct{}

func withLoc(s string, n *yaml.Node) string {
	if parseContext != nil {
		if fileName, ok := parseContext.Value(parsedFile{}).(string); ok {
			return fmt.Sprintf("file %s, line %d: %s", fileName, n.Line, s)
		}
	}
	return fmt.Sprintf("line %d: %s", n.Line, s)
}
