package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/dlib/dlog"

	"github.com/telepresenceio/dnsfilter/pkg/errcat"
)

const testConfig = `
hosts:
  items:
    - location: lists/ads.txt
      state: deny
    - location: Tracker.Example
      state: deny
    - location: good.ads.example
      state: allow
`

const testHosts = `# ad servers
0.0.0.0 banner.ads.example
0.0.0.0 good.ads.example
127.0.0.1 pixel.ads.example
`

func writeConfigDir(t *testing.T) string {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "lists"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(testConfig), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lists", "ads.txt"), []byte(testHosts), 0o644))
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Setenv("DNSFILTER_CONFIG_DIR", "")
	t.Setenv("DNSFILTER_LOG_LEVEL", "")
	cmd := Command()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(dlog.NewTestContext(t, false))
	return out.String(), err
}

func TestCompile(t *testing.T) {
	dir := writeConfigDir(t)

	out, err := execute(t, "--config-dir", dir, "compile")
	require.NoError(t, err)
	assert.Equal(t, "banner.ads.example\npixel.ads.example\ntracker.example\n", out)

	out, err = execute(t, "--config-dir", dir, "compile", "--count")
	require.NoError(t, err)
	assert.Equal(t, "3\n", out)
}

func TestCompileExplicitFile(t *testing.T) {
	dir := writeConfigDir(t)
	out, err := execute(t, "--config", filepath.Join(dir, "config.yml"), "compile", "--count")
	require.NoError(t, err)
	assert.Equal(t, "3\n", out)
}

func TestCompileConfigDirFromEnv(t *testing.T) {
	dir := writeConfigDir(t)
	cmd := Command()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"compile", "--count"})
	t.Setenv("DNSFILTER_CONFIG_DIR", dir)
	require.NoError(t, cmd.ExecuteContext(dlog.NewTestContext(t, false)))
	assert.Equal(t, "3\n", out.String())
}

func TestCheck(t *testing.T) {
	dir := writeConfigDir(t)
	out, err := execute(t, "--config-dir", dir, "check", "banner.ads.example.", "good.ads.example", "TRACKER.example")
	require.NoError(t, err)
	assert.Equal(t, "banner.ads.example.: blocked\ngood.ads.example   : allowed\nTRACKER.example    : blocked\n", out)

	_, err = execute(t, "--config-dir", dir, "check")
	assert.Error(t, err)
}

func TestConfigErrors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte("hosts:\n  items:\n    - location: a.example\n      state: maybe\n"), 0o644))
	_, err := execute(t, "--config-dir", dir, "compile")
	require.Error(t, err)
	assert.Equal(t, errcat.Config, errcat.GetCategory(err))

	_, err = execute(t, "--config", filepath.Join(dir, "missing.yml"), "compile")
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestEmptyConfigDir(t *testing.T) {
	out, err := execute(t, "--config-dir", t.TempDir(), "compile", "--count")
	require.NoError(t, err)
	assert.Equal(t, "0\n", out)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Regexp(t, `^dnsfilter: \S+.*\ngo       : go.*\nplatform : linux/\w+\n$`, out)
}
