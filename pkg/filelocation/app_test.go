package filelocation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppUserConfigDir(t *testing.T) {
	ctx := context.Background()

	t.Setenv("XDG_CONFIG_HOME", "/xdg/home")
	dir, err := AppUserConfigDir(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/xdg/home/dnsfilter", dir)

	t.Setenv("XDG_CONFIG_HOME", "")
	dir, err = AppUserConfigDir(WithUserHomeDir(ctx, "/home/alice"))
	require.NoError(t, err)
	assert.Equal(t, "/home/alice/.config/dnsfilter", dir)

	dir, err = AppUserConfigDir(WithAppUserConfigDir(ctx, "/tmp/cfg"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/cfg", dir)
}

func TestAppSystemConfigDirs(t *testing.T) {
	ctx := context.Background()

	t.Setenv("XDG_CONFIG_DIRS", "")
	dirs, err := AppSystemConfigDirs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/etc/dnsfilter", "/etc/xdg/dnsfilter"}, dirs)

	t.Setenv("XDG_CONFIG_DIRS", "/first:/second")
	dirs, err = AppSystemConfigDirs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/etc/dnsfilter", "/second/dnsfilter", "/first/dnsfilter"}, dirs)

	dirs, err = AppSystemConfigDirs(WithAppSystemConfigDirs(ctx, []string{"/a"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"/a"}, dirs)
}
