package wallet

import "errors"

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDuplicateReference  = errors.New("transaction reference already processed")
	ErrMissingParameter    = errors.New("missing required parameter")
)
