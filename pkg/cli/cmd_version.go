package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/telepresenceio/dnsfilter/pkg/ioutil"
	"github.com/telepresenceio/dnsfilter/pkg/version"
)

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Args:  cobra.NoArgs,
		Short: "Show version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			kvf := ioutil.DefaultKeyValueFormatter()
			kvf.Add("dnsfilter", version.Version)
			kvf.Add("go", runtime.Version())
			kvf.Add("platform", fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH))
			_, err := kvf.WriteTo(cmd.OutOrStdout())
			return err
		},
	}
}
