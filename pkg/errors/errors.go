// Package apperrors classifies exchange and trading failures so callers can
// dispatch on kind instead of matching error strings.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind identifies the class of a failure
type Kind int

const (
	KindUnknown Kind = iota
	KindAuthentication
	KindRateLimit
	KindInvalidParameter
	KindMarketNotFound
	KindInsufficientMargin
	KindOrderNotFound
	KindOrderRejected
	KindNetwork
	KindAPI
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindRateLimit:
		return "rate_limit"
	case KindInvalidParameter:
		return "invalid_parameter"
	case KindMarketNotFound:
		return "market_not_found"
	case KindInsufficientMargin:
		return "insufficient_margin"
	case KindOrderNotFound:
		return "order_not_found"
	case KindOrderRejected:
		return "order_rejected"
	case KindNetwork:
		return "network"
	case KindAPI:
		return "api"
	default:
		return "unknown"
	}
}

// Standardized Exchange Errors
var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrRateLimitExceeded    = errors.New("rate limit exceeded")
	ErrInvalidParameter     = errors.New("invalid parameter")
	ErrMarketNotFound       = errors.New("market not found")
	ErrInsufficientMargin   = errors.New("insufficient margin")
	ErrOrderNotFound        = errors.New("order not found")
	ErrOrderRejected        = errors.New("order rejected")
	ErrNetwork              = errors.New("network error")
	ErrAPI                  = errors.New("api error")
)

var sentinels = map[Kind]error{
	KindAuthentication:     ErrAuthenticationFailed,
	KindRateLimit:          ErrRateLimitExceeded,
	KindInvalidParameter:   ErrInvalidParameter,
	KindMarketNotFound:     ErrMarketNotFound,
	KindInsufficientMargin: ErrInsufficientMargin,
	KindOrderNotFound:      ErrOrderNotFound,
	KindOrderRejected:      ErrOrderRejected,
	KindNetwork:            ErrNetwork,
	KindAPI:                ErrAPI,
}

// Error is a classified failure raised by an exchange backend or the executor
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New builds a classified error. err may be nil.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds a classified error from a formatted message
func Newf(kind Kind, op string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match an *Error against the sentinel of its kind
func (e *Error) Is(target error) bool {
	if s, ok := sentinels[e.Kind]; ok && s == target {
		return true
	}
	return false
}

// KindOf returns the kind of the first classified error in err's chain.
// Bare sentinels are recognised as well.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	for kind, s := range sentinels {
		if errors.Is(err, s) {
			return kind
		}
	}
	return KindUnknown
}

// IsFatal reports whether the trading loop must stop. Only authentication
// failures qualify: every later call would fail the same way.
func IsFatal(err error) bool {
	return KindOf(err) == KindAuthentication
}

// IsConfiguration reports failures that belong to startup validation
func IsConfiguration(err error) bool {
	switch KindOf(err) {
	case KindInvalidParameter, KindMarketNotFound:
		return true
	}
	return false
}

// IsRecoverable reports failures after which the next scheduled tick may succeed
func IsRecoverable(err error) bool {
	switch KindOf(err) {
	case KindRateLimit, KindAPI, KindNetwork, KindUnknown:
		return true
	}
	return false
}

// IsOrderLevel reports failures tied to a single order attempt
func IsOrderLevel(err error) bool {
	switch KindOf(err) {
	case KindInsufficientMargin, KindOrderNotFound, KindOrderRejected:
		return true
	}
	return false
}
