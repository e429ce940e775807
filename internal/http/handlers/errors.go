// This file holds the error codes returned in ErrorResponse.Code and the one
// place where service errors become HTTP statuses.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-lingo-backend/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeUnavailable      = "unavailable"
	ErrCodeInternal         = "internal_error"

	// Domain-specific:
	ErrCodeSelfRequest      = "self_request"
	ErrCodeAlreadyFriends   = "already_friends"
	ErrCodeDuplicateRequest = "duplicate_request"
	ErrCodeInvalidState     = "invalid_state"
	ErrCodeEmailTaken       = "email_taken"
)

type errorMapping struct {
	err    error
	status int
	code   string
	msg    string
}

// serviceErrors is checked in order with errors.Is.
var serviceErrors = []errorMapping{
	{services.ErrSelfRequest, http.StatusBadRequest, ErrCodeSelfRequest, "You can't send friend request to yourself"},
	{services.ErrAlreadyFriends, http.StatusBadRequest, ErrCodeAlreadyFriends, "You are already friends with this user"},
	{services.ErrDuplicateRequest, http.StatusBadRequest, ErrCodeDuplicateRequest, "A friend request already exists between you and this user"},
	{services.ErrInvalidState, http.StatusBadRequest, ErrCodeInvalidState, "Friend request is no longer pending"},
	{services.ErrEmailTaken, http.StatusBadRequest, ErrCodeEmailTaken, "Email already exists, please use a different one"},
	{services.ErrInvalidCredentials, http.StatusUnauthorized, ErrCodeUnauthorized, "Invalid email or password"},
	{services.ErrForbidden, http.StatusForbidden, ErrCodeForbidden, "You are not authorized to accept this request"},
	{services.ErrUserNotFound, http.StatusNotFound, ErrCodeNotFound, "User not found"},
	{services.ErrRequestNotFound, http.StatusNotFound, ErrCodeNotFound, "Friend request not found"},
	{services.ErrChatUnavailable, http.StatusServiceUnavailable, ErrCodeUnavailable, "Chat is not available"},
}

// writeServiceError translates err into an error response. Anything that is
// not a known business error, StorageError included, becomes a generic 500
// and the cause is logged but never returned.
func writeServiceError(c *gin.Context, err error) {
	var ve *services.ValidationError
	if errors.As(err, &ve) {
		failWith(c, http.StatusBadRequest, ErrorResponse{
			Code:          ErrCodeBadRequest,
			Message:       ve.Msg,
			MissingFields: ve.Missing,
		})
		return
	}
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			fail(c, m.status, m.code, m.msg)
			return
		}
	}
	if errors.Is(err, services.ErrValidation) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Invalid input")
		return
	}
	_ = c.Error(err)
	fail(c, http.StatusInternalServerError, ErrCodeInternal, "Internal Server Error")
}
