package metrics

import (
	"context"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// Error type constants for metrics labels.
const (
	ErrorTypeAuth          = "auth"
	ErrorTypeRateLimit     = "rate_limit"
	ErrorTypeConflict      = "conflict"
	ErrorTypeNotFound      = "not_found"
	ErrorTypeAlreadyExists = "already_exists"
	ErrorTypeServerError   = "server_error"
	ErrorTypeClientError   = "client_error"
	ErrorTypeTimeout       = "timeout"
	ErrorTypeNetwork       = "network"
	ErrorTypeUnknown       = "unknown"
)

// ClassifyAPIError classifies an error from the Kubernetes API for metrics labeling.
// Returns an empty string for nil errors.
func ClassifyAPIError(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}

	var status apierrors.APIStatus
	if errors.As(err, &status) {
		return classifyByReason(err, int(status.Status().Code))
	}

	// Fallback for transport errors based on error message
	return classifyByErrorMessage(err.Error())
}

func classifyByReason(err error, statusCode int) string {
	switch {
	case apierrors.IsConflict(err):
		return ErrorTypeConflict
	case apierrors.IsAlreadyExists(err):
		return ErrorTypeAlreadyExists
	case apierrors.IsNotFound(err):
		return ErrorTypeNotFound
	case apierrors.IsTimeout(err), apierrors.IsServerTimeout(err):
		return ErrorTypeTimeout
	default:
		return classifyByStatusCode(statusCode)
	}
}

func classifyByStatusCode(statusCode int) string {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return ErrorTypeAuth
	case statusCode == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case statusCode >= http.StatusInternalServerError && statusCode < 600:
		return ErrorTypeServerError
	case statusCode >= http.StatusBadRequest && statusCode < http.StatusInternalServerError:
		return ErrorTypeClientError
	default:
		return ErrorTypeUnknown
	}
}

func classifyByErrorMessage(errStr string) string {
	errLower := strings.ToLower(errStr)

	switch {
	case strings.Contains(errLower, "timeout") || strings.Contains(errLower, "deadline"):
		return ErrorTypeTimeout
	case strings.Contains(errLower, "connection refused") || strings.Contains(errLower, "no such host"):
		return ErrorTypeNetwork
	default:
		return ErrorTypeUnknown
	}
}
