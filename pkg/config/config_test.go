package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/dlib/dlog"

	"github.com/telepresenceio/dnsfilter/pkg/errcat"
	"github.com/telepresenceio/dnsfilter/pkg/filelocation"
	"github.com/telepresenceio/dnsfilter/pkg/rules"
)

func writeConfigs(t *testing.T, configs ...string) []string {
	t.Helper()
	tmp := t.TempDir()
	dirs := make([]string, len(configs))
	for i, cfg := range configs {
		dirs[i] = filepath.Join(tmp, string(rune('a'+i)))
		require.NoError(t, os.MkdirAll(dirs[i], 0o700))
		require.NoError(t, os.WriteFile(filepath.Join(dirs[i], ConfigFile), []byte(cfg), 0o600))
	}
	return dirs
}

func TestLoadConfig(t *testing.T) {
	dirs := writeConfigs(t,
		/* sys1 */ `
logLevel: debug
tunnel:
  name: filter%d
  table: 100
hosts:
  items:
    - location: /etc/dnsfilter/ads.txt
      state: deny
`,
		/* sys2 */ `
retry:
  minDelay: 2
  maxDelay: 90.5
pending:
  capacity: 16
`,
		/* user */ `
logLevel: trace
hosts:
  enabled: true
  items:
    - location: lists/ads.txt
      state: deny
      kind: file
    - location: good.example
      state: allow
dnsServers:
  items:
    - location: 9.9.9.9
      state: allow
    - location: 8.8.8.8
      state: ignore
pending:
  timeout: 1m30s
unknownKey: true
`)

	c := dlog.NewTestContext(t, false)
	c = filelocation.WithAppSystemConfigDirs(c, dirs[:2])
	c = filelocation.WithAppUserConfigDir(c, dirs[2])

	cfg, err := LoadConfig(c)
	require.NoError(t, err)
	c = WithConfig(c, cfg)
	cfg = GetConfig(c)

	assert.Equal(t, logrus.TraceLevel, cfg.LogLevel)          // from user
	assert.Equal(t, "filter%d", cfg.Tunnel.Name)               // from sys1
	assert.Equal(t, 100, cfg.Tunnel.Table)                     // from sys1
	assert.Equal(t, "192.168.50.1/24", cfg.Tunnel.Address)     // default
	assert.Equal(t, 2*time.Second, cfg.Retry.MinDelay)         // from sys2
	assert.Equal(t, 90500*time.Millisecond, cfg.Retry.MaxDelay) // from sys2
	assert.Equal(t, 16, cfg.Pending.Capacity)                  // from sys2
	assert.Equal(t, 90*time.Second, cfg.Pending.Timeout)       // from user
	require.Len(t, cfg.Hosts.Items, 2)                         // from user, replacing sys1

	rs, err := cfg.Hosts.Rules()
	require.NoError(t, err)
	assert.Equal(t, []rules.Rule{
		{Location: "lists/ads.txt", Kind: rules.File, State: rules.Deny},
		{Location: "good.example", Kind: rules.Host, State: rules.Allow},
	}, rs)

	servers := cfg.DNSServers.Servers()
	require.Len(t, servers, 1)
	assert.Equal(t, "9.9.9.9", servers[0].String())
}

func TestLoadConfig_NoFiles(t *testing.T) {
	c := dlog.NewTestContext(t, false)
	c = filelocation.WithAppSystemConfigDirs(c, []string{filepath.Join(t.TempDir(), "missing")})
	c = filelocation.WithAppUserConfigDir(c, t.TempDir())
	cfg, err := LoadConfig(c)
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), cfg)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := map[string]string{
		"not an object":    "- a\n- b\n",
		"bad log level":    "logLevel: loud\n",
		"bad duration":     "retry:\n  minDelay: soon\n",
		"bad capacity":     "pending:\n  capacity: many\n",
		"bad state":        "hosts:\n  items:\n    - location: a.example\n      state: maybe\n",
		"missing location": "hosts:\n  items:\n    - state: deny\n",
		"bad server":       "dnsServers:\n  items:\n    - location: not-an-ip\n",
		"bad address":      "tunnel:\n  address: 192.168.50.1\n",
		"ipv6 address":     "tunnel:\n  address: fd00::1/64\n",
		"max below min":    "retry:\n  minDelay: 10s\n  maxDelay: 5s\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			dirs := writeConfigs(t, content)
			c := dlog.NewTestContext(t, false)
			cfg, err := LoadConfigFile(c, filepath.Join(dirs[0], ConfigFile))
			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Equal(t, errcat.Config, errcat.GetCategory(err), err.Error())
		})
	}
}

func TestLoadConfigFile_Missing(t *testing.T) {
	c := dlog.NewTestContext(t, false)
	_, err := LoadConfigFile(c, filepath.Join(t.TempDir(), ConfigFile))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestHosts_Disabled(t *testing.T) {
	disabled := false
	h := Hosts{Enabled: &disabled, Items: []HostItem{{Location: "a.example", State: "deny"}}}
	rs, err := h.Rules()
	require.NoError(t, err)
	assert.Empty(t, rs)

	d := DNSServers{Enabled: &disabled, Items: []ServerItem{{Location: "1.1.1.1"}}}
	assert.Empty(t, d.Servers())
}

func TestValidate_Defaults(t *testing.T) {
	require.NoError(t, Validate(GetDefaultConfig()))

	for _, addr := range []string{"192.168.50.1/24", "10.0.0.0/8", "172.16.5.9/32"} {
		cfg := GetDefaultConfig()
		cfg.Tunnel.Address = addr
		assert.NoError(t, Validate(cfg), addr)
	}
	for _, addr := range []string{"192.168.50.1", "fd00::1/64", "192.168.50.1/33"} {
		cfg := GetDefaultConfig()
		cfg.Tunnel.Address = addr
		assert.Error(t, Validate(cfg), addr)
	}
}

func TestTunnel_AddressNet(t *testing.T) {
	tn := GetDefaultConfig().Tunnel
	n, err := tn.AddressNet()
	require.NoError(t, err)
	assert.Equal(t, "192.168.50.1/24", n.String())
	assert.Len(t, n.IP, 4)

	tn.Address = "fd00::1/64"
	_, err = tn.AddressNet()
	assert.Equal(t, errcat.Config, errcat.GetCategory(err))
}

func TestRuleSource(t *testing.T) {
	c := dlog.NewTestContext(t, false)
	loads := 0
	src := RuleSource{Load: func(context.Context) (*Config, error) {
		loads++
		cfg := GetDefaultConfig()
		cfg.Hosts.Items = []HostItem{{Location: "/lists/a.txt", State: "deny"}}
		return cfg, nil
	}}
	rs, err := src.Rules(c)
	require.NoError(t, err)
	assert.Equal(t, []rules.Rule{{Location: "/lists/a.txt", Kind: rules.File, State: rules.Deny}}, rs)
	_, _ = src.Rules(c)
	assert.Equal(t, 2, loads)

	boom := errors.New("boom")
	_, err = RuleSource{Load: func(context.Context) (*Config, error) { return nil, boom }}.Rules(c)
	assert.ErrorIs(t, err, boom)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("DNSFILTER_CONFIG_DIR", "/tmp/dnsfilter")
	t.Setenv("DNSFILTER_LOG_LEVEL", "debug")
	c := dlog.NewTestContext(t, false)
	env, err := LoadEnv(c)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/dnsfilter", env.ConfigDir)
	assert.Equal(t, "debug", env.LogLevel)
	assert.Equal(t, "/etc/resolv.conf", env.ResolvConf)

	c = WithEnv(c, &env)
	assert.Equal(t, &env, GetEnv(c))
	assert.Nil(t, GetEnv(context.Background()))
}
