package procurement

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("procurement: invalid input")
	// ErrIllegalTransition occurs when an action is not allowed from the current status.
	ErrIllegalTransition = errors.New("procurement: illegal transition")
	// ErrOutOfOrderApproval occurs when a level is decided before its predecessors.
	ErrOutOfOrderApproval = errors.New("procurement: out of order approval")
	// ErrUnknownSupplier occurs when a supplier was never invited.
	ErrUnknownSupplier = errors.New("procurement: unknown supplier")
	// ErrNoResponseFromSupplier occurs when a winner has no stored response.
	ErrNoResponseFromSupplier = errors.New("procurement: no response from supplier")
	// ErrOverReceipt occurs when receiving would exceed the ordered quantity.
	ErrOverReceipt = errors.New("procurement: over receipt")
	// ErrIllegalLifecycleJump occurs when a conversion skips or reverses a stage.
	ErrIllegalLifecycleJump = errors.New("procurement: illegal lifecycle jump")
	// ErrConcurrentModification indicates a stale write; re-read and retry.
	ErrConcurrentModification = errors.New("procurement: concurrent modification")
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("procurement: not found")
)

var kinds = []error{
	ErrValidation,
	ErrIllegalTransition,
	ErrOutOfOrderApproval,
	ErrUnknownSupplier,
	ErrNoResponseFromSupplier,
	ErrOverReceipt,
	ErrIllegalLifecycleJump,
	ErrConcurrentModification,
	ErrNotFound,
}

// Error carries an error kind plus the human readable reason.
type Error struct {
	Kind   error
	Reason string
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Reason
}

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// KindOf returns the sentinel err wraps, or nil for foreign errors.
func KindOf(err error) error {
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// KindName returns a short label for err, used as a metric outcome.
func KindName(err error) string {
	switch KindOf(err) {
	case nil:
		if err == nil {
			return "ok"
		}
		return "internal"
	case ErrValidation:
		return "validation"
	case ErrIllegalTransition:
		return "illegal_transition"
	case ErrOutOfOrderApproval:
		return "out_of_order_approval"
	case ErrUnknownSupplier:
		return "unknown_supplier"
	case ErrNoResponseFromSupplier:
		return "no_response"
	case ErrOverReceipt:
		return "over_receipt"
	case ErrIllegalLifecycleJump:
		return "illegal_lifecycle_jump"
	case ErrConcurrentModification:
		return "concurrent_modification"
	default:
		return "not_found"
	}
}
