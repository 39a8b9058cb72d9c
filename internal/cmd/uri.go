package cmd

import (
	"strings"

	"github.com/3leaps/nimbusurf/pkg/cloudpath"
)

// parseLocation resolves a browse argument. A bare scheme name ("gs", "s3")
// or "" (using defaultScheme) addresses the all-buckets location.
func parseLocation(arg string, defaultScheme cloudpath.Scheme) (cloudpath.Path, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return cloudpath.Root(defaultScheme), nil
	}
	if !strings.Contains(arg, "://") {
		scheme, err := cloudpath.ParseScheme(arg)
		if err != nil {
			return cloudpath.Path{}, err
		}
		return cloudpath.Root(scheme), nil
	}
	return cloudpath.Parse(arg)
}
