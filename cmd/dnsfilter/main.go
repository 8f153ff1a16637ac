package main

import (
	"context"
	"os"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"

	"github.com/telepresenceio/dnsfilter/pkg/cli"
	"github.com/telepresenceio/dnsfilter/pkg/log"
)

func main() {
	ctx := log.MakeBaseLogger(context.Background(), os.Stderr, os.Getenv("DNSFILTER_LOG_LEVEL"))
	ctx = dgroup.WithGoroutineName(ctx, "/dnsfilter")
	if err := cli.Command().ExecuteContext(ctx); err != nil {
		dlog.Errorf(ctx, "quit: %v", err)
		os.Exit(1)
	}
}
