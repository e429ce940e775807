package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-lingo-backend/internal/domain"
)

// summaryColumns limits preloaded users to what other learners may see.
func summaryColumns(db *gorm.DB) *gorm.DB {
	return db.Select("id", "full_name", "profile_pic", "native_language", "learning_language")
}

// CreateFriendRequest inserts a pending request from senderID to recipientID.
// A second request for the same unordered pair returns ErrDuplicate.
func CreateFriendRequest(ctx context.Context, db *gorm.DB, senderID, recipientID string) (*domain.FriendRequest, error) {
	now := time.Now().UTC()
	fr := &domain.FriendRequest{
		ID:          uuid.NewString(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Status:      domain.StatusPending,
		PairKey:     domain.PairKey(senderID, recipientID),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.WithContext(ctx).Create(fr).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return fr, nil
}

// GetFriendRequest fetches a request by id, or ErrNotFound.
func GetFriendRequest(ctx context.Context, db *gorm.DB, id string) (*domain.FriendRequest, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrNotFound
	}
	var fr domain.FriendRequest
	if err := db.WithContext(ctx).Where("id = ?", id).First(&fr).Error; err != nil {
		return nil, err
	}
	return &fr, nil
}

// FindFriendRequestBetween returns the request between a and b in either
// direction, or ErrNotFound.
func FindFriendRequestBetween(ctx context.Context, db *gorm.DB, a, b string) (*domain.FriendRequest, error) {
	var fr domain.FriendRequest
	err := db.WithContext(ctx).
		Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)", a, b, b, a).
		First(&fr).Error
	if err != nil {
		return nil, err
	}
	return &fr, nil
}

// MarkFriendRequestAccepted flips id from pending to accepted only if it is
// still pending. It reports whether this call performed the transition.
func MarkFriendRequestAccepted(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.FriendRequest{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(map[string]any{
			"status":     domain.StatusAccepted,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListIncomingRequests returns pending requests addressed to userID with the
// sender's summary preloaded, oldest first.
func ListIncomingRequests(ctx context.Context, db *gorm.DB, userID string) ([]domain.FriendRequest, error) {
	out := []domain.FriendRequest{}
	err := db.WithContext(ctx).
		Preload("Sender", summaryColumns).
		Where("recipient_id = ? AND status = ?", userID, domain.StatusPending).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// ListOutgoingRequests returns pending requests sent by userID with the
// recipient's summary preloaded, oldest first.
func ListOutgoingRequests(ctx context.Context, db *gorm.DB, userID string) ([]domain.FriendRequest, error) {
	return listSent(ctx, db, userID, domain.StatusPending)
}

// ListSentAcceptedRequests returns requests sent by userID that the recipient
// has accepted, with the recipient's summary preloaded.
func ListSentAcceptedRequests(ctx context.Context, db *gorm.DB, userID string) ([]domain.FriendRequest, error) {
	return listSent(ctx, db, userID, domain.StatusAccepted)
}

func listSent(ctx context.Context, db *gorm.DB, userID, status string) ([]domain.FriendRequest, error) {
	out := []domain.FriendRequest{}
	err := db.WithContext(ctx).
		Preload("Recipient", summaryColumns).
		Where("sender_id = ? AND status = ?", userID, status).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}
