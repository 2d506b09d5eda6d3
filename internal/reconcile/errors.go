package reconcile

import (
	"errors"
	"fmt"

	"github.com/park285/h2h-ledger/internal/ledger"
	"go.uber.org/multierr"
)

var (
	ErrIndexOutOfRange = ledger.ErrIndexOutOfRange
	ErrEntryBusy       = errors.New("ledger entry already has an operation in flight")
	ErrInvalidResult   = errors.New("result must be win, draw or loss")
	ErrIntegrity       = errors.New("reversal would drive an aggregate below zero")
)

// EditError is returned when the new entry of an edit was rejected after the
// old one had already been reversed. Compensated tells whether the old entry
// was re-submitted successfully.
type EditError struct {
	Cause           error
	Compensated     bool
	CompensationErr error
}

func (e *EditError) Error() string {
	if e.Compensated {
		return fmt.Sprintf("edit failed, previous entry restored: %v", e.Cause)
	}
	return fmt.Sprintf("edit failed, previous entry could not be restored: %v", multierr.Combine(e.Cause, e.CompensationErr))
}

func (e *EditError) Unwrap() []error {
	return multierr.Errors(multierr.Append(e.Cause, e.CompensationErr))
}
