// Package service implements the account, entitlement, reset-token,
// discount and billing rules on top of the repositories.
package service

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every service.  Handlers map these to HTTP
// status codes with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicate          = errors.New("already exists")
	ErrExpired            = errors.New("expired")
	ErrAlreadyUsed        = errors.New("already used")
	ErrExhausted          = errors.New("exhausted")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrProvider           = errors.New("provider error")
	ErrInvalidInput       = errors.New("invalid input")
	ErrDenied             = errors.New("denied")
)

// InputError is a validation failure with a message safe to show to the
// user.  It matches ErrInvalidInput.
type InputError struct{ Msg string }

func (e *InputError) Error() string        { return e.Msg }
func (e *InputError) Is(target error) bool { return target == ErrInvalidInput }

func invalid(msg string) error { return &InputError{Msg: msg} }

// DeniedError is an entitlement refusal whose reason is shown to the
// user.  It matches ErrDenied.
type DeniedError struct{ Reason string }

func (e *DeniedError) Error() string        { return e.Reason }
func (e *DeniedError) Is(target error) bool { return target == ErrDenied }

// ProviderError wraps a failure from the payment or identity provider and
// keeps the provider's message.  It matches ErrProvider.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string        { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *ProviderError) Unwrap() error        { return e.Err }
func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

func providerErr(op string, err error) error { return &ProviderError{Op: op, Err: err} }
