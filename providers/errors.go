package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/aws/smithy-go"
)

// ErrorKind classifies provider failures for retry decisions.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindThrottled
	KindUnauthorized
	KindNotFound
	KindTransient
)

// String names the kind for logs and reports.
func (k ErrorKind) String() string {
	switch k {
	case KindThrottled:
		return "throttled"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Error is a provider failure tagged with its kind.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with an explicit kind.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// API error codes that indicate throttling.
var throttleCodes = map[string]bool{
	"Throttling":                             true,
	"ThrottlingException":                    true,
	"ThrottledException":                     true,
	"RequestLimitExceeded":                   true,
	"TooManyRequestsException":               true,
	"ProvisionedThroughputExceededException": true,
	"SlowDown":                               true,
}

// API error codes that indicate a permission problem. These are never
// retried: the task fails immediately.
var authCodes = map[string]bool{
	"AccessDenied":                true,
	"AccessDeniedException":       true,
	"UnauthorizedOperation":       true,
	"UnrecognizedClientException": true,
	"InvalidClientTokenId":        true,
	"ExpiredToken":                true,
	"ExpiredTokenException":       true,
}

// Classify maps an arbitrary provider error to its kind.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch {
		case throttleCodes[code]:
			return KindThrottled
		case authCodes[code]:
			return KindUnauthorized
		case strings.Contains(code, "NotFound") || strings.Contains(code, "NoSuch"):
			return KindNotFound
		case apiErr.ErrorFault() == smithy.FaultServer:
			return KindTransient
		}
	}

	return KindUnknown
}

// Retryable reports whether a failure is worth another attempt.
// Throttled and transient failures are; auth and config failures
// never are.
func Retryable(err error) bool {
	switch Classify(err) {
	case KindThrottled, KindTransient:
		return true
	default:
		return false
	}
}
