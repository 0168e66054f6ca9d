package order

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("order not found")
	ErrForbidden    = errors.New("not allowed to access this order")
	ErrAlreadyPaid  = errors.New("order already paid with a different transaction")
	ErrInvalidState = errors.New("invalid order state")
	ErrOutOfStock   = errors.New("insufficient stock")

	// ErrConflict is returned by Repository.Update when the stored version
	// no longer matches.
	ErrConflict = errors.New("order was modified concurrently")
	// ErrDuplicateKey is returned by Repository.Create when the idempotency
	// key was already used by the same user.
	ErrDuplicateKey = errors.New("idempotency key already used")
)

type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ErrProductNotFound is returned by a Catalog for an unknown product id.
var ErrProductNotFound = errors.New("product not found")
