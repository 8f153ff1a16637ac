// Package cli contains the dnsfilter commands.
package cli

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/telepresenceio/dnsfilter/pkg/config"
	"github.com/telepresenceio/dnsfilter/pkg/errcat"
	"github.com/telepresenceio/dnsfilter/pkg/filelocation"
	"github.com/telepresenceio/dnsfilter/pkg/log"
)

type globalFlags struct {
	logLevel   string
	configFile string
	configDir  string
}

// Command returns the root command with all subcommands added.
func Command() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "dnsfilter",
		Short:         "Filter DNS lookups through a local tunnel",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&g.logLevel, "log-level", "",
		"Log level (error, warning, info, debug, or trace). Overrides the environment and config.yml")
	flags.StringVar(&g.configFile, "config", "",
		"Read this file instead of searching the config directories")
	flags.StringVar(&g.configDir, "config-dir", "",
		"Read config.yml from this directory only")
	root.AddCommand(
		runCommand(g),
		compileCommand(g),
		checkCommand(g),
		versionCommand(),
	)
	return root
}

// session is what a command needs once the environment and the configuration are loaded.
type session struct {
	env *config.Env
	cfg *config.Config

	// load rereads the configuration from where cfg was read.
	load func(context.Context) (*config.Config, error)

	// ruleDir is the directory that relative rule file locations are resolved against.
	ruleDir string
}

// prepare loads the environment and the configuration and sets the log level. The
// returned context carries both.
func (g *globalFlags) prepare(ctx context.Context) (context.Context, *session, error) {
	env, err := config.LoadEnv(ctx)
	if err != nil {
		return ctx, nil, errcat.Config.Newf("environment: %w", err)
	}
	ctx = config.WithEnv(ctx, &env)
	s := &session{env: &env}

	dir := g.configDir
	if dir == "" {
		dir = env.ConfigDir
	}
	switch {
	case g.configFile != "":
		file := g.configFile
		s.ruleDir = filepath.Dir(file)
		s.load = func(c context.Context) (*config.Config, error) {
			return config.LoadConfigFile(c, file)
		}
	case dir != "":
		ctx = filelocation.WithAppSystemConfigDirs(ctx, nil)
		ctx = filelocation.WithAppUserConfigDir(ctx, dir)
		s.ruleDir = dir
		s.load = config.LoadConfig
	default:
		if s.ruleDir, err = filelocation.AppUserConfigDir(ctx); err != nil {
			return ctx, nil, errcat.Config.New(err)
		}
		s.load = config.LoadConfig
	}

	if s.cfg, err = s.load(ctx); err != nil {
		return ctx, nil, err
	}
	ctx = config.WithConfig(ctx, s.cfg)

	level := g.logLevel
	if level == "" {
		level = env.LogLevel
	}
	if level == "" {
		level = s.cfg.LogLevel.String()
	}
	log.SetLevel(ctx, level)
	return ctx, s, nil
}
