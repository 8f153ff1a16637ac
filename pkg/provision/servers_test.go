package provision

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/dlib/dlog"

	"github.com/telepresenceio/dnsfilter/pkg/errcat"
)

func ipStrings(ips []net.IP) []string {
	ss := make([]string, len(ips))
	for i, ip := range ips {
		ss[i] = ip.String()
	}
	return ss
}

func TestServers(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	resolvConf := filepath.Join(t.TempDir(), "resolv.conf")
	require.NoError(t, os.WriteFile(resolvConf, []byte(`# generated
nameserver 127.0.0.53
nameserver 10.0.0.1
nameserver fd00::53
nameserver 1.1.1.1
search example.com
`), 0o600))

	configured := []net.IP{net.ParseIP("9.9.9.9"), net.ParseIP("1.1.1.1"), net.ParseIP("::1")}
	servers := Servers(ctx, configured, resolvConf)
	assert.Equal(t, []string{"9.9.9.9", "1.1.1.1", "10.0.0.1"}, ipStrings(servers))
	for _, s := range servers {
		assert.Len(t, s, net.IPv4len)
	}
}

func TestServers_MissingResolvConf(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	servers := Servers(ctx, []net.IP{net.ParseIP("8.8.8.8")}, filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, []string{"8.8.8.8"}, ipStrings(servers))
	assert.Empty(t, Servers(ctx, nil, ""))
}

func TestProvision_Unavailable(t *testing.T) {
	ctx := dlog.NewTestContext(t, false)
	l := NewLinux(Config{Servers: []net.IP{net.ParseIP("127.0.0.1")}})
	dev, err := l.Provision(ctx)
	assert.Nil(t, dev)
	assert.Equal(t, ErrUnavailable, err)
	assert.Equal(t, errcat.Network, errcat.GetCategory(err))
}
