package transfer

import (
	"errors"

	"github.com/3leaps/nimbusurf/pkg/output"
	"github.com/3leaps/nimbusurf/pkg/provider"
)

func classifyErrCode(err error) string {
	switch {
	case provider.IsNotFound(err), provider.IsBucketNotFound(err):
		return output.ErrCodeNotFound
	case provider.IsForbidden(err):
		return output.ErrCodeAccessDenied
	case provider.IsInvalidConfiguration(err):
		return output.ErrCodeInvalidConfiguration
	case provider.IsThrottled(err):
		return output.ErrCodeThrottled
	case provider.IsProviderUnavailable(err):
		return output.ErrCodeProviderUnavailable
	case provider.IsCancelled(err):
		return output.ErrCodeCancelled
	case errors.Is(err, ErrUnsafePath):
		return output.ErrCodeAccessDenied
	default:
		return output.ErrCodeInternal
	}
}
