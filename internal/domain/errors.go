package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrEmptyCart          = errors.New("cart is empty, nothing to checkout")
	ErrIllegalTransition  = errors.New("illegal order status transition")
	ErrRecordNotFound     = errors.New("storage record not found")
	ErrAttemptNotFound    = errors.New("checkout attempt not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrCheckoutInProgress = errors.New("checkout already in progress for this session")
	ErrSessionNotFound    = errors.New("session not found")
	ErrTierMismatch       = errors.New("storage record belongs to another tier")
	ErrNotCancelable      = errors.New("checkout can only be canceled while awaiting capture")

	ErrPaymentSubmission = errors.New("payment submission failed")
	ErrCaptureFailed     = errors.New("payment capture failed")
	ErrCaptureTimeout    = errors.New("payment capture timed out")
	ErrCaptureMismatch   = errors.New("captured amount does not match order")
	ErrCheckoutCanceled  = errors.New("checkout canceled")
	// ErrOrderNotRecorded means funds were captured but the order record was
	// not confirmed.
	ErrOrderNotRecorded = errors.New("payment captured but order not recorded")
)

// ValidationError carries field-level messages for bad user input.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(field, msg string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, msg)
	return v
}

func (v *ValidationError) Add(field, msg string) {
	if v.Fields == nil {
		v.Fields = make(map[string]string)
	}
	v.Fields[field] = msg
}

func (v *ValidationError) HasErrors() bool {
	return len(v.Fields) > 0
}

func (v *ValidationError) Error() string {
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, v.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// StorageWriteError is logged and never surfaced to the shopper.
type StorageWriteError struct {
	Tier Tier
	Key  string
	Err  error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("write %s tier key %q: %v", e.Tier, e.Key, e.Err)
}

func (e *StorageWriteError) Unwrap() error {
	return e.Err
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
