// Package services – FriendshipService
//
// This file implements the friend-request workflow. A request is created
// pending by its sender and moves once to accepted when its recipient accepts
// it; acceptance makes the two users friends of each other.
//
// Rules are checked in a fixed order before anything is written, and the
// first failing rule decides the error:
//
//	send:   self -> recipient exists -> not friends -> no request for the pair
//	accept: request exists -> still pending -> caller is the recipient
//
// Concurrency:
//   - A unique index on the unordered pair stops two concurrent senders from
//     both creating a request; the loser gets ErrDuplicateRequest.
//   - Acceptance runs in one transaction: a conditional status write
//     (pending -> accepted) followed by the two friendship edges. A caller that
//     loses the race on the status write gets ErrInvalidState and nothing else
//     is written.
package services

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-lingo-backend/internal/domain"
	"github.com/tbourn/go-lingo-backend/internal/observability"
	"github.com/tbourn/go-lingo-backend/internal/repo"
)

// FriendRequestRepo defines the friend request persistence contract required
// by FriendshipService.
type FriendRequestRepo interface {
	// CreateFriendRequest inserts a pending request; repo.ErrDuplicate when the
	// pair already has one.
	CreateFriendRequest(ctx context.Context, db *gorm.DB, senderID, recipientID string) (*domain.FriendRequest, error)
	GetFriendRequest(ctx context.Context, db *gorm.DB, id string) (*domain.FriendRequest, error)
	FindFriendRequestBetween(ctx context.Context, db *gorm.DB, a, b string) (*domain.FriendRequest, error)

	// MarkFriendRequestAccepted reports whether this call moved the request
	// from pending to accepted.
	MarkFriendRequestAccepted(ctx context.Context, db *gorm.DB, id string) (bool, error)

	ListIncomingRequests(ctx context.Context, db *gorm.DB, userID string) ([]domain.FriendRequest, error)
	ListOutgoingRequests(ctx context.Context, db *gorm.DB, userID string) ([]domain.FriendRequest, error)
	ListSentAcceptedRequests(ctx context.Context, db *gorm.DB, userID string) ([]domain.FriendRequest, error)
}

// FriendshipService owns the friend-request lifecycle.
type FriendshipService struct {
	DB       *gorm.DB
	Users    UserRepo
	Requests FriendRequestRepo
}

// NewFriendshipService constructs a FriendshipService.
func NewFriendshipService(db *gorm.DB, users UserRepo, requests FriendRequestRepo) *FriendshipService {
	return &FriendshipService{DB: db, Users: users, Requests: requests}
}

// SendRequest creates a pending request from senderID to recipientID and
// returns it. See the package comment for the order in which rules apply.
func (s *FriendshipService) SendRequest(ctx context.Context, senderID, recipientID string) (*domain.FriendRequest, error) {
	ctx, span := otel.Tracer("services/FriendshipService").Start(ctx, "SendRequest",
		trace.WithAttributes(
			attribute.String("sender.id", senderID),
			attribute.String("recipient.id", recipientID),
		),
	)
	defer span.End()

	fr, err := s.sendRequest(ctx, strings.TrimSpace(senderID), strings.TrimSpace(recipientID))
	if err != nil {
		recordRejection(span, err)
		return nil, err
	}
	observability.RecordFriendRequest(observability.FriendRequestSent, "")
	span.SetAttributes(attribute.String("request.id", fr.ID))
	return fr, nil
}

func (s *FriendshipService) sendRequest(ctx context.Context, senderID, recipientID string) (*domain.FriendRequest, error) {
	var missing []string
	if senderID == "" {
		missing = append(missing, "senderId")
	}
	if recipientID == "" {
		missing = append(missing, "recipientId")
	}
	if len(missing) > 0 {
		return nil, invalid("user ids are required", missing...)
	}

	if senderID == recipientID {
		return nil, ErrSelfRequest
	}

	exists, err := s.Users.UserExists(ctx, s.DB, recipientID)
	if err != nil {
		return nil, storage("recipient exists", err)
	}
	if !exists {
		return nil, ErrUserNotFound
	}

	friends, err := s.Users.AreFriends(ctx, s.DB, senderID, recipientID)
	if err != nil {
		return nil, storage("are friends", err)
	}
	if friends {
		return nil, ErrAlreadyFriends
	}

	if _, err := s.Requests.FindFriendRequestBetween(ctx, s.DB, senderID, recipientID); err == nil {
		return nil, ErrDuplicateRequest
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, storage("find request", err)
	}

	fr, err := s.Requests.CreateFriendRequest(ctx, s.DB, senderID, recipientID)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrDuplicateRequest
		}
		return nil, storage("create request", err)
	}
	return fr, nil
}

// AcceptRequest lets the recipient of requestID accept it. On success both
// users are in each other's friend set.
func (s *FriendshipService) AcceptRequest(ctx context.Context, requestID, userID string) error {
	ctx, span := otel.Tracer("services/FriendshipService").Start(ctx, "AcceptRequest",
		trace.WithAttributes(
			attribute.String("request.id", requestID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	if err := s.acceptRequest(ctx, strings.TrimSpace(requestID), strings.TrimSpace(userID)); err != nil {
		recordRejection(span, err)
		return err
	}
	observability.RecordFriendRequest(observability.FriendRequestAccepted, "")
	return nil
}

func (s *FriendshipService) acceptRequest(ctx context.Context, requestID, userID string) error {
	if requestID == "" {
		return ErrRequestNotFound
	}

	fr, err := s.Requests.GetFriendRequest(ctx, s.DB, requestID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrRequestNotFound
		}
		return storage("get request", err)
	}
	if !fr.IsPending() {
		return ErrInvalidState
	}
	if fr.RecipientID != userID {
		return ErrForbidden
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		changed, err := s.Requests.MarkFriendRequestAccepted(ctx, tx, fr.ID)
		if err != nil {
			return storage("mark accepted", err)
		}
		if !changed {
			return ErrInvalidState
		}
		if err := s.Users.AddMutualFriendship(ctx, tx, fr.SenderID, fr.RecipientID); err != nil {
			return storage("add friendship", err)
		}
		return nil
	})
	// Begin and commit failures come back from gorm unwrapped.
	var se *StorageError
	if err != nil && !errors.Is(err, ErrInvalidState) && !errors.As(err, &se) {
		return storage("commit accept", err)
	}
	return err
}

// Request returns requestID when userID is its sender or recipient. Anyone
// else gets ErrForbidden.
func (s *FriendshipService) Request(ctx context.Context, requestID, userID string) (*domain.FriendRequest, error) {
	ctx, span := otel.Tracer("services/FriendshipService").Start(ctx, "Request",
		trace.WithAttributes(attribute.String("request.id", requestID)),
	)
	defer span.End()

	if strings.TrimSpace(requestID) == "" {
		return nil, ErrRequestNotFound
	}
	fr, err := s.Requests.GetFriendRequest(ctx, s.DB, requestID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		span.RecordError(err)
		return nil, storage("get request", err)
	}
	if fr.SenderID != userID && fr.RecipientID != userID {
		return nil, ErrForbidden
	}
	return fr, nil
}

// ListIncoming returns pending requests addressed to userID, each with the
// sender's summary loaded.
func (s *FriendshipService) ListIncoming(ctx context.Context, userID string) ([]domain.FriendRequest, error) {
	return s.list(ctx, "ListIncoming", userID, s.Requests.ListIncomingRequests)
}

// ListOutgoing returns pending requests sent by userID, each with the
// recipient's summary loaded.
func (s *FriendshipService) ListOutgoing(ctx context.Context, userID string) ([]domain.FriendRequest, error) {
	return s.list(ctx, "ListOutgoing", userID, s.Requests.ListOutgoingRequests)
}

// ListSentAccepted returns requests sent by userID that were accepted, so the
// sender can be told about them.
func (s *FriendshipService) ListSentAccepted(ctx context.Context, userID string) ([]domain.FriendRequest, error) {
	return s.list(ctx, "ListSentAccepted", userID, s.Requests.ListSentAcceptedRequests)
}

type listFn func(ctx context.Context, db *gorm.DB, userID string) ([]domain.FriendRequest, error)

func (s *FriendshipService) list(ctx context.Context, name, userID string, fn listFn) ([]domain.FriendRequest, error) {
	ctx, span := otel.Tracer("services/FriendshipService").Start(ctx, name,
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return nil, invalid("user id is required")
	}
	items, err := fn(ctx, s.DB, userID)
	if err != nil {
		span.RecordError(err)
		return nil, storage(name, err)
	}
	span.SetAttributes(attribute.Int("requests.count", len(items)))
	return items, nil
}

// recordRejection annotates the span and counts business-rule refusals.
// Storage failures and unclassified errors are marked as span errors instead.
func recordRejection(span trace.Span, err error) {
	reason := rejectionReason(err)
	var se *StorageError
	if errors.As(err, &se) || reason == "other" {
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage")
		return
	}
	span.SetAttributes(attribute.String("rejected.reason", reason))
	observability.RecordFriendRequest(observability.FriendRequestRejected, reason)
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrSelfRequest):
		return "self_request"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, ErrAlreadyFriends):
		return "already_friends"
	case errors.Is(err, ErrDuplicateRequest):
		return "duplicate_request"
	case errors.Is(err, ErrRequestNotFound):
		return "request_not_found"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	default:
		return "other"
	}
}
