// Package errs defines the typed error taxonomy shared by every write path
// in the trading engine. Errors carry a Kind (a closed set of failure
// categories) so callers can branch on the category without string matching.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies a failure category.
type Kind string

const (
	Unauthenticated Kind = "UNAUTHENTICATED"
	BadRequest      Kind = "BAD_REQUEST"
	NotFound        Kind = "NOT_FOUND"
	MarketClosed    Kind = "MARKET_CLOSED"
	Duplicate       Kind = "DUPLICATE"
	RiskDisabled    Kind = "RISK_DISABLED"
	KillSwitch      Kind = "KILL_SWITCH"
	CircuitLockout  Kind = "CIRCUIT_LOCKOUT"
	DailyLossBreach Kind = "DAILY_LOSS_BREACH"
	PerOrderRisk    Kind = "PER_ORDER_RISK"
	LotsCap         Kind = "LOTS_CAP"
	RateLimit       Kind = "RATE_LIMIT"
	BrokerError     Kind = "BROKER_ERROR"
	BrokerTimeout   Kind = "BROKER_TIMEOUT"
	WideSpread      Kind = "WIDE_SPREAD"
	DataQuality     Kind = "DATA_QUALITY"
	Internal        Kind = "INTERNAL"
)

// Error is a categorized error. The zero Kind is treated as Internal.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.Err }

// New creates an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a kind and message. Returns nil if err is nil.
func Wrap(kind Kind, msg string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the Kind of err, or Internal when err carries no kind.
// A nil err returns the empty Kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == "" {
			return Internal
		}
		return e.Kind
	}
	return Internal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// RiskKinds lists the kinds produced by the risk gate, in check order.
var RiskKinds = []Kind{
	RiskDisabled, KillSwitch, CircuitLockout, DailyLossBreach,
	PerOrderRisk, LotsCap, RateLimit,
}

// IsRiskKind reports whether kind is one of the risk-gate failure kinds.
func IsRiskKind(kind Kind) bool {
	for _, k := range RiskKinds {
		if k == kind {
			return true
		}
	}
	return false
}
