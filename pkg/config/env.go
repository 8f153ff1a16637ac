package config

import (
	"context"

	"github.com/sethvargo/go-envconfig"
)

type Env struct {
	ConfigDir  string `env:"DNSFILTER_CONFIG_DIR,default="`
	LogLevel   string `env:"DNSFILTER_LOG_LEVEL,default="`
	ResolvConf string `env:"DNSFILTER_RESOLV_CONF,default=/etc/resolv.conf"`
}

func LoadEnv(ctx context.Context) (Env, error) {
	var env Env
	err := envconfig.Process(ctx, &env)
	return env, err
}

type envKey struct{}

// WithEnv returns a context with the given Env
func WithEnv(ctx context.Context, env *Env) context.Context {
	return context.WithValue(ctx, envKey{}, env)
}

func GetEnv(ctx context.Context) *Env {
	env, ok := ctx.Value(envKey{}).(*Env)
	if !ok {
		return nil
	}
	return env
}
