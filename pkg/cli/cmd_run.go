package cli

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"

	"github.com/telepresenceio/dnsfilter/pkg/config"
	"github.com/telepresenceio/dnsfilter/pkg/connectivity"
	"github.com/telepresenceio/dnsfilter/pkg/engine"
	"github.com/telepresenceio/dnsfilter/pkg/provision"
	"github.com/telepresenceio/dnsfilter/pkg/rules"
	"github.com/telepresenceio/dnsfilter/pkg/upstream"
)

func runCommand(g *globalFlags) *cobra.Command {
	var bindInterface string
	cmd := &cobra.Command{
		Use:   "run",
		Args:  cobra.NoArgs,
		Short: "Create the tunnel and filter DNS lookups until interrupted",
		Long: `Create the tunnel and filter DNS lookups until interrupted.

A SIGHUP, or a change in the state of a network interface, rereads the rules and
recreates the tunnel. Requires CAP_NET_ADMIN.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, s, err := g.prepare(cmd.Context())
			if err != nil {
				return err
			}
			ctrl, err := newController(s, bindInterface)
			if err != nil {
				return err
			}
			return serve(ctx, ctrl, s.cfg.Tunnel.Name)
		},
	}
	cmd.Flags().StringVar(&bindInterface, "bind-interface", "",
		"Bind upstream sockets to this interface instead of marking them")
	return cmd
}

func newController(s *session, bindInterface string) (*engine.Controller, error) {
	cfg := s.cfg
	addr, err := cfg.Tunnel.AddressNet()
	if err != nil {
		return nil, err
	}
	var protector upstream.Protector = upstream.MarkProtector{Mark: cfg.Tunnel.FwMark}
	if bindInterface != "" {
		protector = upstream.DeviceProtector{Interface: bindInterface}
	}
	return engine.NewController(engine.Options{
		Provisioner: provision.NewLinux(provision.Config{
			Name:         cfg.Tunnel.Name,
			Address:      addr,
			MTU:          cfg.Tunnel.MTU,
			FwMark:       cfg.Tunnel.FwMark,
			Table:        cfg.Tunnel.Table,
			RulePriority: cfg.Tunnel.RulePriority,
			Servers:      cfg.DNSServers.Servers(),
			ResolvConf:   s.env.ResolvConf,
		}),
		RuleSource:      config.RuleSource{Load: s.load},
		RuleOpener:      rules.FileOpener{Dir: s.ruleDir},
		Upstream:        upstream.Dialer{Protector: protector},
		Observer:        engine.Observers{engine.LogObserver{}},
		MinRetryDelay:   cfg.Retry.MinDelay,
		MaxRetryDelay:   cfg.Retry.MaxDelay,
		PendingCapacity: cfg.Pending.Capacity,
		PendingTimeout:  cfg.Pending.Timeout,
	}), nil
}

// lifecycle is the part of *engine.Controller that serve drives.
type lifecycle interface {
	Start(ctx context.Context)
	Restart(ctx context.Context)
	Stop()
}

// serve runs the controller until ctx is cancelled or a termination signal arrives.
func serve(ctx context.Context, ctrl lifecycle, tunnelName string) error {
	g := dgroup.NewGroup(ctx, dgroup.GroupConfig{
		SoftShutdownTimeout:  2 * time.Second,
		EnableSignalHandling: true,
		ShutdownOnNonError:   true,
	})

	restarts := make(chan string, 1)
	g.Go("engine", func(ctx context.Context) error {
		return runEngine(ctx, ctrl, restarts)
	})

	w := &connectivity.Watcher{
		Ignore: connectivity.IgnorePattern(tunnelName),
		OnChange: func(context.Context) {
			requestRestart(restarts, "network changed")
		},
	}
	g.Go("connectivity", w.Run)

	g.Go("reload", func(ctx context.Context) error {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, unix.SIGHUP)
		defer signal.Stop(sigs)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-sigs:
				requestRestart(restarts, "SIGHUP received")
			}
		}
	})
	return g.Wait()
}

// runEngine starts ctrl and restarts it on every request until ctx is done. The
// controller always runs with ctx, whoever asked for the restart.
func runEngine(ctx context.Context, ctrl lifecycle, restarts <-chan string) error {
	ctrl.Start(ctx)
	defer ctrl.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case why := <-restarts:
			dlog.Infof(ctx, "%s, restarting", why)
			ctrl.Restart(ctx)
		}
	}
}

// requestRestart queues a restart. A restart that is already queued covers this one.
func requestRestart(restarts chan<- string, why string) {
	select {
	case restarts <- why:
	default:
	}
}
