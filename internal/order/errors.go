package order

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrOrderNotActive = errors.New("order is not active")
	ErrCancelPending  = errors.New("cancel already pending")
	ErrInvalidModify  = errors.New("invalid modification")
	ErrManagerClosed  = errors.New("order manager closed")
)

// ValidationError describes malformed order input. Such orders are never registered.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a *ValidationError
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
