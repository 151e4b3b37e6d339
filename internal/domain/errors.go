package domain

import (
	"errors"
	"fmt"
)

// The five error kinds every custody operation reports. Handlers map each
// kind to exactly one HTTP status; callers test for them with errors.Is.
var (
	// ErrNotFound means no tag, stamp, product or confirmation matched the key.
	// Handlers map this to HTTP 404.
	ErrNotFound = errors.New("not found")

	// ErrConflict means the request collides with state already recorded:
	// a repeated arrival, a stamp code held by another tag, a tag already
	// linked to a product, a confirmation already consumed.
	// Handlers map this to HTTP 409.
	ErrConflict = errors.New("conflict")

	// ErrPreconditionFailed means the tag is not at the stage the action
	// requires (e.g. dispatch before arrival).
	// Handlers map this to HTTP 412.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrUnauthorized means the caller's role may not perform the action.
	// Handlers map this to HTTP 403.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidInput means a required action field is missing or malformed.
	// Handlers map this to HTTP 422.
	ErrInvalidInput = errors.New("invalid input")
)

// Reason names the exact cause of a rejection. It is stable and safe to
// expose to API clients.
type Reason string

const (
	ReasonAlreadyArrived     Reason = "already_arrived"
	ReasonAlreadyDispatched  Reason = "already_dispatched"
	ReasonNotYetArrived      Reason = "not_yet_arrived"
	ReasonNotYetDispatched   Reason = "not_yet_dispatched"
	ReasonStampCodeConflict  Reason = "stamp_code_conflict"
	ReasonStampMismatch      Reason = "stamp_mismatch"
	ReasonAlreadyLinked      Reason = "already_linked"
	ReasonConfirmationUsed   Reason = "confirmation_used"
	ReasonCodeSpaceExhausted Reason = "code_space_exhausted"
	ReasonDuplicateCode      Reason = "duplicate_code"
	ReasonMissingField       Reason = "missing_field"
	ReasonInvalidValue       Reason = "invalid_value"
	ReasonRoleMismatch       Reason = "role_mismatch"
	ReasonBatchRejected      Reason = "batch_rejected"
	ReasonTagNotFound        Reason = "tag_not_found"
	ReasonProductNotFound    Reason = "product_not_found"
	ReasonUnknownReference   Reason = "unknown_reference"
	ReasonClockSkew          Reason = "clock_skew"
)

// Rejection is a typed refusal. errors.Is matches its Kind (one of the
// sentinel errors above); it unwraps to the Cause alone, so a lone Rejection
// is never split into parts by multi-error helpers.
type Rejection struct {
	Kind    error
	Reason  Reason
	Message string
	Cause   error
}

func (r *Rejection) Error() string {
	if r.Message == "" {
		return fmt.Sprintf("%v: %s", r.Kind, r.Reason)
	}
	return fmt.Sprintf("%v: %s", r.Kind, r.Message)
}

// Is reports whether target is r's Kind.
func (r *Rejection) Is(target error) bool { return target == r.Kind }

func (r *Rejection) Unwrap() error { return r.Cause }

// Reject builds a Rejection with a formatted message.
func Reject(kind error, reason Reason, format string, args ...any) error {
	return &Rejection{Kind: kind, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// AsRejection returns the outermost Rejection in err's chain, if any.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// ReasonOf returns the Reason of the outermost Rejection in err, or "".
func ReasonOf(err error) Reason {
	if r, ok := AsRejection(err); ok {
		return r.Reason
	}
	return ""
}

// KindOf returns which sentinel kind err carries, or nil when err is
// unclassified. The outermost Rejection decides, so a batch rejection reports
// its own kind rather than that of a nested per-tag failure.
func KindOf(err error) error {
	if r, ok := AsRejection(err); ok {
		return r.Kind
	}
	for _, k := range []error{ErrNotFound, ErrConflict, ErrPreconditionFailed, ErrUnauthorized, ErrInvalidInput} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
