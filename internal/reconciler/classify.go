package reconciler

import (
	"context"

	"github.com/cockroachdb/errors"
	apierrors "k8s.io/apimachinery/pkg/api/errors"

	"github.com/lexfrei/webapp-operator/internal/status"
)

// classify maps an API error to a failure reason.
func classify(err error) status.Reason {
	switch {
	case apierrors.IsConflict(err):
		return status.ReasonConflict
	case errors.Is(err, context.DeadlineExceeded), apierrors.IsTimeout(err), apierrors.IsServerTimeout(err):
		return status.ReasonTimeout
	case apierrors.IsForbidden(err), apierrors.IsUnauthorized(err):
		return status.ReasonPermissionDenied
	default:
		return status.ReasonAPIError
	}
}
