// Package services defines the business logic for accounts, the friendship
// workflow, and the user directory. This file centralizes common service-level
// error values so that they can be consistently returned by service methods
// and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import (
	"errors"
	"strings"
)

// Input and lookup errors.
var (
	// ErrValidation marks malformed or missing input. ValidationError wraps it
	// when the offending fields are known.
	ErrValidation = errors.New("validation failed")

	// ErrUserNotFound indicates that a referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrRequestNotFound indicates that a referenced friend request does not exist.
	ErrRequestNotFound = errors.New("friend request not found")

	// ErrForbidden is returned when the caller may not act on the record,
	// e.g. accepting a request addressed to someone else.
	ErrForbidden = errors.New("forbidden")
)

// Friendship workflow rule violations.
var (
	ErrSelfRequest      = errors.New("cannot send a friend request to yourself")
	ErrAlreadyFriends   = errors.New("already friends")
	ErrDuplicateRequest = errors.New("friend request already exists")
	ErrInvalidState     = errors.New("friend request is not pending")
)

// Account errors.
var (
	// ErrEmailTaken is returned by Signup when the email is registered already.
	ErrEmailTaken = errors.New("email already exists")

	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrChatUnavailable is returned when the chat provider is not configured.
	ErrChatUnavailable = errors.New("chat provider unavailable")
)

// ValidationError describes rejected input. It matches ErrValidation with
// errors.Is.
type ValidationError struct {
	Msg     string
	Missing []string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) > 0 {
		return e.Msg + ": " + strings.Join(e.Missing, ", ")
	}
	return e.Msg
}

// Is lets errors.Is(err, ErrValidation) succeed for any *ValidationError.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(msg string, missing ...string) error {
	return &ValidationError{Msg: msg, Missing: missing}
}

// StorageError wraps a persistence failure. Its message is for logs only;
// handlers answer with a generic 500.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return "storage: " + e.Op + ": " + e.Err.Error() }

func (e *StorageError) Unwrap() error { return e.Err }

func storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
