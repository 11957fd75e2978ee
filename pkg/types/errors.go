package types

import (
	"errors"
	"fmt"
)

// Repository errors.
var (
	ErrNotFound    = errors.New("entity not found")
	ErrInvalidID   = errors.New("invalid entity ID")
	ErrInvalidData = errors.New("invalid entity data")
	ErrDuplicateID = errors.New("entity ID already exists")
)

// Field validation errors for trace records and suppliers.
var (
	ErrInvalidName         = errors.New("invalid name")
	ErrInvalidProduct      = errors.New("product ID must not be empty")
	ErrInvalidMaterialType = errors.New("invalid material type")
	ErrInvalidUnit         = errors.New("invalid quantity unit")
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrInvalidTier         = errors.New("invalid tier")
	ErrInvalidCountry      = errors.New("invalid ISO country code")
	ErrInvalidEmail        = errors.New("invalid email address")
)

// Graph errors raised when a write would break the shape of a product tree.
var (
	ErrDanglingParent  = errors.New("parent record does not exist")
	ErrProductMismatch = errors.New("parent record belongs to a different product")
	ErrTierMismatch    = errors.New("tier does not match parent tier + 1")
	ErrCycle           = errors.New("parent links form a cycle")
	ErrHasChildren     = errors.New("record has child records")
	ErrUnknownSupplier = errors.New("supplier does not exist")
)

// Status errors.
var (
	ErrInvalidStatus     = errors.New("invalid compliance status")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidRole       = errors.New("invalid role")
	ErrForbidden         = errors.New("role may not perform this transition")
)

// Store lifecycle errors.
var (
	ErrStoreDetached   = errors.New("store is detached")
	ErrAlreadyAttached = errors.New("store is already attached")
)

// ValidationError reports which field of an entity failed validation.
// It unwraps to the sentinel describing the failure.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func fieldError(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}
