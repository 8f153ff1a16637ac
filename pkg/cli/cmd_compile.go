package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/telepresenceio/dnsfilter/pkg/ioutil"
	"github.com/telepresenceio/dnsfilter/pkg/rules"
)

func compileCommand(g *globalFlags) *cobra.Command {
	var count bool
	cmd := &cobra.Command{
		Use:   "compile",
		Args:  cobra.NoArgs,
		Short: "Print the hosts that the configured rules block",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, s, err := g.prepare(cmd.Context())
			if err != nil {
				return err
			}
			blocked, err := compile(ctx, s)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if count {
				fmt.Fprintln(out, len(blocked))
				return nil
			}
			for _, host := range blocked.Sorted() {
				fmt.Fprintln(out, host)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&count, "count", false, "Print the number of blocked hosts only")
	return cmd
}

func checkCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check HOST...",
		Args:  cobra.MinimumNArgs(1),
		Short: "Tell whether the configured rules block the given hosts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, s, err := g.prepare(cmd.Context())
			if err != nil {
				return err
			}
			blocked, err := compile(ctx, s)
			if err != nil {
				return err
			}
			kvf := ioutil.DefaultKeyValueFormatter()
			for _, host := range args {
				verdict := "allowed"
				if blocked.Contains(strings.TrimSuffix(host, ".")) {
					verdict = "blocked"
				}
				kvf.Add(host, verdict)
			}
			_, err = kvf.WriteTo(cmd.OutOrStdout())
			return err
		},
	}
}

func compile(ctx context.Context, s *session) (rules.HostSet, error) {
	rs, err := s.cfg.Hosts.Rules()
	if err != nil {
		return nil, err
	}
	return rules.Compile(ctx, rs, rules.FileOpener{Dir: s.ruleDir})
}
