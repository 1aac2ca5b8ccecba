// Package errs implements the engine's error taxonomy: a small set of kinds
// (not names) that every caller-visible failure is classified into, plus the
// wrapping helpers used throughout the storage and graph layers to attach
// that classification to an underlying cause.
package errs

import (
	"database/sql"
	"errors"
	"fmt"
)

// Kind classifies a failure into one of the taxonomy's top-level buckets.
type Kind string

const (
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindConstraint  Kind = "constraint"
	KindValidation  Kind = "validation"
	KindMembership  Kind = "membership"
	KindSignature   Kind = "signature"
	KindTimeout     Kind = "timeout"
)

// Reason is a second-level discriminant within a Kind, mirroring the
// `Kind{Reason}` notation spec.md §7 uses (e.g. Conflict{DuplicateName}).
type Reason string

const (
	ReasonDuplicateName       Reason = "duplicate_name"
	ReasonDuplicateDependency Reason = "duplicate_dependency"

	ReasonImmutable               Reason = "immutable"
	ReasonTypeMismatch            Reason = "type_mismatch"
	ReasonInvalidStatus           Reason = "invalid_status"
	ReasonAlreadyInPlan           Reason = "already_in_plan"
	ReasonDirectChannelMembership Reason = "direct_channel_membership"

	ReasonInvalidInput        Reason = "invalid_input"
	ReasonMissingRequiredField Reason = "missing_required_field"
	ReasonInvalidID           Reason = "invalid_id"

	ReasonNotAMember         Reason = "not_a_member"
	ReasonCannotModifyMembers Reason = "cannot_modify_members"

	ReasonNoCurrentKey    Reason = "no_current_key"
	ReasonInvalidSignature Reason = "invalid_signature"
	ReasonSignatureExpired Reason = "signature_expired"
	ReasonAlreadyRevoked   Reason = "already_revoked"
	ReasonInvalidNewKey    Reason = "invalid_new_key"
)

// Error is the concrete error type returned across the engine's public API.
// It carries the classification plus a detail bag identifying the offending
// id/field/expected shape, as required by spec.md §7.
type Error struct {
	Kind    Kind
	Reason  Reason
	Op      string
	Message string
	Detail  map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s{%s}: %s", e.Op, e.Kind, e.Reason, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is supports errors.Is comparisons against another *Error by Kind+Reason.
// It does not match the package sentinels below itself; errors.Is reaches
// them through Unwrap when the cause is a sentinel (NotFound and Conflict
// set ErrNotFound and ErrConflict as the cause).
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind && (other.Reason == "" || e.Reason == other.Reason)
	}
	return false
}

// New constructs an *Error with an optional detail bag.
func New(op string, kind Kind, reason Reason, msg string, detail map[string]any) *Error {
	return &Error{Op: op, Kind: kind, Reason: reason, Message: msg, Detail: detail}
}

// Wrap classifies an underlying cause, converting sql.ErrNoRows into
// KindNotFound the way the teacher's wrapDBError converts it to ErrNotFound.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, ErrNotFound) {
		return &Error{Op: op, Kind: KindNotFound, Message: "not found", cause: err}
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Op: op, Kind: KindConstraint, Message: err.Error(), cause: err}
}

// Wrapf is Wrap with a formatted op string.
func Wrapf(err error, format string, args ...any) error {
	return Wrap(fmt.Sprintf(format, args...), err)
}

// Sentinel values for use with errors.Is against non-*Error producers (the
// in-memory backend and lower-level helpers raise these directly).
var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflict")
	ErrCycle     = errors.New("dependency cycle detected")
	ErrImmutable = errors.New("element is immutable")
)

// NotFound builds a KindNotFound error.
func NotFound(op, what, id string) error {
	return &Error{Op: op, Kind: KindNotFound, Message: fmt.Sprintf("%s %q not found", what, id), Detail: map[string]any{"id": id}, cause: ErrNotFound}
}

// Conflict builds a KindConflict error with the given reason.
func Conflict(op string, reason Reason, msg string, detail map[string]any) error {
	return &Error{Op: op, Kind: KindConflict, Reason: reason, Message: msg, Detail: detail, cause: ErrConflict}
}

// Constraint builds a KindConstraint error with the given reason.
func Constraint(op string, reason Reason, msg string, detail map[string]any) error {
	return &Error{Op: op, Kind: KindConstraint, Reason: reason, Message: msg, Detail: detail}
}

// Validation builds a KindValidation error with the given reason.
func Validation(op string, reason Reason, msg string, detail map[string]any) error {
	return &Error{Op: op, Kind: KindValidation, Reason: reason, Message: msg, Detail: detail}
}

// Membership builds a KindMembership error with the given reason.
func Membership(op string, reason Reason, msg string, detail map[string]any) error {
	return &Error{Op: op, Kind: KindMembership, Reason: reason, Message: msg, Detail: detail}
}

// Signature builds a KindSignature error with the given reason.
func Signature(op string, reason Reason, msg string, detail map[string]any) error {
	return &Error{Op: op, Kind: KindSignature, Reason: reason, Message: msg, Detail: detail}
}

// Timeout builds a KindTimeout error.
func Timeout(op string, msg string) error {
	return &Error{Op: op, Kind: KindTimeout, Message: msg}
}

// IsNotFound reports whether err is a KindNotFound failure.
func IsNotFound(err error) bool { return hasKind(err, KindNotFound) }

// IsConflict reports whether err is a KindConflict failure.
func IsConflict(err error) bool { return hasKind(err, KindConflict) }

// IsConstraint reports whether err is a KindConstraint failure.
func IsConstraint(err error) bool { return hasKind(err, KindConstraint) }

func hasKind(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	if k == KindNotFound {
		return errors.Is(err, ErrNotFound) || errors.Is(err, sql.ErrNoRows)
	}
	if k == KindConflict {
		return errors.Is(err, ErrConflict)
	}
	return false
}
