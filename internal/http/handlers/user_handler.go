// Friendship and directory HTTP handlers.
//
// This file exposes the /users endpoints, all behind authentication:
//   - GET  /users                              (recommendations)
//   - GET  /users/friends                      (friend list, ETag)
//   - POST /users/friend-request/{id}          (send, Idempotency-Key aware)
//   - PUT  /users/friend-request/{id}/accept   (accept)
//   - GET  /users/friend-requests              (incoming + accepted, ETag)
//   - GET  /users/outgoing-friend-requests     (pending sent, ETag)
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-lingo-backend/internal/http/middleware"
	"github.com/tbourn/go-lingo-backend/internal/repo"
	"github.com/tbourn/go-lingo-backend/internal/services"
)

// SendFriendRequestResponse is returned when a request is created or replayed.
type SendFriendRequestResponse struct {
	Success       bool              `json:"success" example:"true"`
	Message       string            `json:"message" example:"Friend request sent"`
	FriendRequest FriendRequestView `json:"friendRequest"`
}

// FriendRequestsResponse lists pending requests addressed to the caller and
// requests the caller sent that were accepted.
type FriendRequestsResponse struct {
	Success      bool                `json:"success" example:"true"`
	IncomingReqs []FriendRequestView `json:"incomingReqs"`
	AcceptedReqs []FriendRequestView `json:"acceptedReqs"`
}

// RecommendedUsers godoc
// @ID          recommendedUsers
// @Summary     Recommend learners
// @Description Onboarded users other than the caller and the caller's friends.
// @Tags        users
// @Produce     json
// @Success     200  {array}   services.PublicProfile
// @Failure     401  {object}  ErrorResponse
// @Failure     404  {object}  ErrorResponse
// @Failure     500  {object}  ErrorResponse
// @Security    CookieAuth
// @Router      /users [get]
func (h *Handlers) RecommendedUsers(c *gin.Context) {
	out, err := h.directory.Recommend(c.Request.Context(), userID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// MyFriends godoc
// @ID          myFriends
// @Summary     List the caller's friends
// @Tags        users
// @Produce     json
// @Param       If-None-Match  header    string  false  "ETag from a previous response"
// @Success     200  {array}   services.ProfileSummary
// @Success     304  {string}  string  "Not Modified"
// @Header      200  {string}  ETag    "Weak ETag of the friend set"
// @Failure     401  {object}  ErrorResponse
// @Failure     404  {object}  ErrorResponse
// @Failure     500  {object}  ErrorResponse
// @Security    CookieAuth
// @Router      /users/friends [get]
func (h *Handlers) MyFriends(c *gin.Context) {
	if h.notModifiedSince(c, "friends", repo.FriendsStats) {
		return
	}
	out, err := h.directory.ListFriends(c.Request.Context(), userID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// SendFriendRequest godoc
// @ID          sendFriendRequest
// @Summary     Send a friend request
// @Description Retrying with the same Idempotency-Key replays the original 201.
// @Tags        users
// @Produce     json
// @Param       id               path    string  true   "Recipient user ID"
// @Param       Idempotency-Key  header  string  false  "Idempotency key for safe retries"
// @Success     201  {object}  SendFriendRequestResponse
// @Header      201  {string}  Idempotency-Replayed  "true when served from a previous attempt"
// @Failure     400  {object}  ErrorResponse
// @Failure     401  {object}  ErrorResponse
// @Failure     404  {object}  ErrorResponse
// @Failure     429  {object}  ErrorResponse
// @Failure     500  {object}  ErrorResponse
// @Security    CookieAuth
// @Router      /users/friend-request/{id} [post]
func (h *Handlers) SendFriendRequest(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	recipientID := strings.TrimSpace(c.Param("id"))
	key, _ := middleware.GetIdempotencyKey(c)

	if key != "" && h.db != nil {
		if rec, err := repo.GetIdempotency(ctx, h.db, uid, recipientID, key, time.Now().UTC()); err == nil {
			if fr, err := h.friends.Request(ctx, rec.ResourceID, uid); err == nil {
				c.Header(headerReplayed, "true")
				ok(c, rec.Status, SendFriendRequestResponse{Success: true, Message: "Friend request sent", FriendRequest: viewOf(fr)})
				return
			}
		}
	}

	fr, err := h.friends.SendRequest(ctx, uid, recipientID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "Recipient not found")
			return
		}
		writeServiceError(c, err)
		return
	}

	// Best effort; a lost record only means a retry gets the duplicate error.
	if key != "" && h.db != nil {
		if _, err := repo.CreateIdempotency(ctx, h.db, uid, recipientID, key, fr.ID, http.StatusCreated, h.idemTTL); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("store idempotency record")
		}
	}

	ok(c, http.StatusCreated, SendFriendRequestResponse{Success: true, Message: "Friend request sent", FriendRequest: viewOf(fr)})
}

// AcceptFriendRequest godoc
// @ID          acceptFriendRequest
// @Summary     Accept a friend request
// @Description Only the recipient may accept, and only while the request is pending.
// @Tags        users
// @Produce     json
// @Param       id   path      string  true  "Friend request ID"
// @Success     200  {object}  MessageResponse
// @Failure     400  {object}  ErrorResponse
// @Failure     401  {object}  ErrorResponse
// @Failure     403  {object}  ErrorResponse
// @Failure     404  {object}  ErrorResponse
// @Failure     500  {object}  ErrorResponse
// @Security    CookieAuth
// @Router      /users/friend-request/{id}/accept [put]
func (h *Handlers) AcceptFriendRequest(c *gin.Context) {
	if err := h.friends.AcceptRequest(c.Request.Context(), c.Param("id"), userID(c)); err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, MessageResponse{Success: true, Message: "Friend request accepted"})
}

// FriendRequests godoc
// @ID          friendRequests
// @Summary     Incoming and accepted friend requests
// @Description incomingReqs are pending requests to the caller with sender profiles; acceptedReqs are the caller's sent requests that were accepted, with recipient profiles.
// @Tags        users
// @Produce     json
// @Param       If-None-Match  header    string  false  "ETag from a previous response"
// @Success     200  {object}  FriendRequestsResponse
// @Success     304  {string}  string  "Not Modified"
// @Header      200  {string}  ETag    "Weak ETag of the caller's requests"
// @Failure     401  {object}  ErrorResponse
// @Failure     500  {object}  ErrorResponse
// @Security    CookieAuth
// @Router      /users/friend-requests [get]
func (h *Handlers) FriendRequests(c *gin.Context) {
	if h.notModifiedSince(c, "friend-requests", repo.FriendRequestsStats) {
		return
	}
	ctx, uid := c.Request.Context(), userID(c)
	incoming, err := h.friends.ListIncoming(ctx, uid)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	accepted, err := h.friends.ListSentAccepted(ctx, uid)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, FriendRequestsResponse{
		Success:      true,
		IncomingReqs: viewsOf(incoming),
		AcceptedReqs: viewsOf(accepted),
	})
}

// OutgoingFriendRequests godoc
// @ID          outgoingFriendRequests
// @Summary     Pending requests sent by the caller
// @Tags        users
// @Produce     json
// @Param       If-None-Match  header    string  false  "ETag from a previous response"
// @Success     200  {array}   FriendRequestView
// @Success     304  {string}  string  "Not Modified"
// @Header      200  {string}  ETag    "Weak ETag of the caller's requests"
// @Failure     401  {object}  ErrorResponse
// @Failure     500  {object}  ErrorResponse
// @Security    CookieAuth
// @Router      /users/outgoing-friend-requests [get]
func (h *Handlers) OutgoingFriendRequests(c *gin.Context) {
	if h.notModifiedSince(c, "outgoing", repo.FriendRequestsStats) {
		return
	}
	out, err := h.friends.ListOutgoing(c.Request.Context(), userID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, viewsOf(out))
}
