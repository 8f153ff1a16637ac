package filelocation

import (
	"context"
)

type homeCtxKey struct{}

// WithUserHomeDir spoofs the UserHomeDir and all derived values for all functions in this package.
// This is useful for testing, and should not be used in the normal code.
func WithUserHomeDir(ctx context.Context, home string) context.Context {
	return context.WithValue(ctx, homeCtxKey{}, home)
}

type configCtxKey struct{}

// WithAppUserConfigDir spoofs the AppUserConfigDir. This is useful for testing, and
// for the --config-dir flag.
func WithAppUserConfigDir(ctx context.Context, configDir string) context.Context {
	return context.WithValue(ctx, configCtxKey{}, configDir)
}

type sysConfigsCtxKey struct{}

// WithAppSystemConfigDirs spoofs the AppSystemConfigDirs. This is useful for testing.
func WithAppSystemConfigDirs(ctx context.Context, configDirs []string) context.Context {
	return context.WithValue(ctx, sysConfigsCtxKey{}, configDirs)
}
