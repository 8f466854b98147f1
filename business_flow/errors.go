// Package businessflow contains the core business logic for fee computation,
// gateway configuration resolution and payment settlement
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Fee engine errors
	ErrUnknownCategory     = errors.New("unknown fee category")
	ErrUnknownLocationType = errors.New("unknown location type")
	ErrInvalidValidity     = errors.New("validity must be 1 or 3 years")

	// Configuration errors
	ErrPlaceholderConfig = errors.New("placeholder gateway configuration refused in production")

	// Transaction errors
	ErrTransactionNotFound         = errors.New("payment transaction not found")
	ErrTransactionAlreadyProcessed = errors.New("payment transaction already processed")
	ErrTransactionExpired          = errors.New("payment transaction expired")
	ErrTransactionNotConfirmable   = errors.New("payment transaction is not awaiting confirmation")
	ErrBankRefRequired             = errors.New("bank transaction identifier is required")
	ErrApplicationIDRequired       = errors.New("application ID is required")
	ErrDistrictRequired            = errors.New("district is required")

	// Operator errors
	ErrOperatorNotFound   = errors.New("operator not found")
	ErrIncorrectPassword  = errors.New("incorrect password")
	ErrCredentialRequired = errors.New("username and password are required")

	// Filter errors
	ErrInvalidPage           = errors.New("page must be at least 1")
	ErrInvalidPageSize       = errors.New("page size must be between 1 and 100")
	ErrStartDateAfterEndDate = errors.New("start date cannot be after end date")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsTransactionNotFound(err error) bool {
	return errors.Is(err, ErrTransactionNotFound)
}

func IsTransactionAlreadyProcessed(err error) bool {
	return errors.Is(err, ErrTransactionAlreadyProcessed)
}

func IsTransactionExpired(err error) bool {
	return errors.Is(err, ErrTransactionExpired)
}

func IsTransactionNotConfirmable(err error) bool {
	return errors.Is(err, ErrTransactionNotConfirmable)
}

func IsPlaceholderConfig(err error) bool {
	return errors.Is(err, ErrPlaceholderConfig)
}

func IsInvalidFeeInput(err error) bool {
	return errors.Is(err, ErrUnknownCategory) ||
		errors.Is(err, ErrUnknownLocationType) ||
		errors.Is(err, ErrInvalidValidity)
}

func IsIncorrectPassword(err error) bool {
	return errors.Is(err, ErrIncorrectPassword)
}

func IsOperatorNotFound(err error) bool {
	return errors.Is(err, ErrOperatorNotFound)
}

func IsCredentialRequired(err error) bool {
	return errors.Is(err, ErrCredentialRequired)
}
