package filelocation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
)

const appName = "dnsfilter"

// AppSystemConfigDirs returns a list of directories to search for
// application-specific (but not user-specific) configuration data. The list
// is ordered lowest-precedence first, and every directory has lower precedence
// than AppUserConfigDir.
//
// The list is "/etc/dnsfilter" followed by each entry of $XDG_CONFIG_DIRS with
// "/dnsfilter" appended (defaulting to "/etc/xdg/dnsfilter").
func AppSystemConfigDirs(ctx context.Context) ([]string, error) {
	if untyped := ctx.Value(sysConfigsCtxKey{}); untyped != nil {
		return untyped.([]string), nil
	}
	str := os.Getenv("XDG_CONFIG_DIRS")
	if str == "" {
		str = "/etc/xdg"
	}
	xdg := filepath.SplitList(str)
	ret := make([]string, 0, len(xdg)+1)
	ret = append(ret, filepath.Join("/etc", appName))
	// XDG lists directories highest-precedence first
	for i := len(xdg) - 1; i >= 0; i-- {
		ret = append(ret, filepath.Join(xdg[i], appName))
	}
	return ret, nil
}

// AppUserConfigDir returns the directory to use for application-specific
// user-specific configuration data. This is "$XDG_CONFIG_HOME/dnsfilter", or
// "$HOME/.config/dnsfilter" when $XDG_CONFIG_HOME is unset.
//
// If the location cannot be determined (for example, $HOME is not defined),
// then it will return an error.
func AppUserConfigDir(ctx context.Context) (string, error) {
	if untyped := ctx.Value(configCtxKey{}); untyped != nil {
		return untyped.(string), nil
	}
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName), nil
	}
	home, err := UserHomeDir(ctx)
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName), nil
}

// UserHomeDir returns the $HOME environment variable, or the value given to
// WithUserHomeDir.
func UserHomeDir(ctx context.Context) (string, error) {
	if untyped := ctx.Value(homeCtxKey{}); untyped != nil {
		return untyped.(string), nil
	}
	if home := os.Getenv("HOME"); home != "" {
		return home, nil
	}
	return "", errors.New("$HOME is not defined")
}
