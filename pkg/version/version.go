// Package version holds the version of the dnsfilter binary.
package version

import (
	"fmt"
	"os"
	"runtime/debug"
	"strings"

	"github.com/blang/semver"
)

const (
	develVersion   = "(devel)"
	unknownVersion = "(unknown version)"
)

// Version is a "vSEMVER" string. It is set at build time using
// `-ldflags -X github.com/telepresenceio/dnsfilter/pkg/version.Version=vX.Y.Z`, or at init
// time from the module information of the binary.
var Version string

func init() {
	Version = resolve(Version, debug.ReadBuildInfo, os.Getenv("DNSFILTER_VERSION"))
}

func resolve(v string, buildInfo func() (*debug.BuildInfo, bool), env string) string {
	if v != "" {
		return v
	}
	if i, ok := buildInfo(); ok && i.Main.Version != "" {
		v = i.Main.Version
	} else {
		v = unknownVersion
	}
	if _, err := semver.ParseTolerant(v); err != nil {
		if v != develVersion && v != unknownVersion {
			panic(fmt.Errorf("this binary's compiled-in version looks invalid: %w", err))
		}
		if strings.HasPrefix(env, "v") {
			v = env
		}
	}
	return v
}

// Structured returns Version as a semver.Version. Development builds map to
// 0.0.0-devel and builds without version information to 0.0.0-unknownversion.
func Structured() semver.Version {
	switch Version {
	case develVersion:
		return semver.MustParse("0.0.0-devel")
	case unknownVersion:
		return semver.MustParse("0.0.0-unknownversion")
	}
	v, err := semver.ParseTolerant(Version)
	if err != nil {
		panic(fmt.Errorf("this binary's version is unparsable: %w", err))
	}
	return v
}
