package verify

import "errors"

// Kind is a stable category for programmatic error handling. Every way a
// verification can fail has its own Kind so callers never have to parse
// error strings to learn which policy clause broke.
type Kind string

const (
	KindLayoutSignature    Kind = "LayoutSignature"
	KindExpired            Kind = "Expired"
	KindMissingLink        Kind = "MissingLink"
	KindUnauthorizedSigner Kind = "UnauthorizedSigner"
	KindThreshold          Kind = "Threshold"
	KindDigestMismatch     Kind = "DigestMismatch"
	KindRule               Kind = "Rule"
	KindNoEvidence         Kind = "NoEvidence"
	KindInspection         Kind = "Inspection"
	KindParse              Kind = "Parse"
	KindInternal           Kind = "Internal"
)

// Error is the package's structured error type.
//
// RuleID is a stable identifier (e.g. LATCH-VER-301) naming the violated
// invariant.
type Error struct {
	Kind    Kind
	RuleID  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(kind Kind, ruleID, msg string) error {
	return &Error{Kind: kind, RuleID: ruleID, Message: msg}
}

func wrapError(kind Kind, ruleID, msg string, cause error) error {
	if cause == nil {
		return newError(kind, ruleID, msg)
	}
	return &Error{Kind: kind, RuleID: ruleID, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// RuleID returns the stable RuleID for a structured error, or "" if unknown.
func RuleID(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.RuleID
}
