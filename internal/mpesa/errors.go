package mpesa

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadySettled      = errors.New("checkout request already settled")
	ErrTransactionNotFound = errors.New("gateway transaction not found")
	ErrUserNotFound        = errors.New("no user matches the callback phone number")
	ErrMalformedCallback   = errors.New("malformed stk callback payload")
)

// GatewayError wraps a failed or malformed response from the Daraja API.
type GatewayError struct {
	StatusCode int
	Body       string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("daraja returned status %d: %s", e.StatusCode, e.Body)
}
