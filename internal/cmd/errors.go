package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"

	"github.com/3leaps/nimbusurf/pkg/provider"
)

// providerExit maps a provider failure to an exit error.
func providerExit(message string, err error) error {
	switch {
	case provider.IsCancelled(err):
		return exitError(foundry.ExitSignalInt, message, err)
	case provider.IsInvalidConfiguration(err), provider.IsInvalidArgument(err):
		return exitError(foundry.ExitInvalidArgument, message, err)
	case provider.IsNotFound(err), provider.IsBucketNotFound(err):
		return exitError(foundry.ExitFileNotFound, message, err)
	default:
		return exitError(foundry.ExitExternalServiceUnavailable, message, err)
	}
}
