// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer. Each function is context-aware and safe to call from services or
// handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-lingo-backend/internal/domain"
)

// FriendRequestsStats returns aggregate metadata for the requests a user takes
// part in (as sender or recipient): the row count and the latest UpdatedAt
// among those requests and the users on the other side of them. Profile edits
// by a counterpart therefore change the result as well.
//
// When the user has no requests, the returned count is 0 and maxUpdatedAt is nil.
func FriendRequestsStats(ctx context.Context, db *gorm.DB, userID string) (count int64, maxUpdatedAt *time.Time, err error) {
	base := func() *gorm.DB {
		return db.WithContext(ctx).Model(&domain.FriendRequest{}).
			Where("friend_requests.sender_id = ? OR friend_requests.recipient_id = ?", userID, userID)
	}

	if err = base().Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Latest row (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = base().Select("friend_requests.updated_at").Order("friend_requests.updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	latest := row.UpdatedAt

	var peer struct {
		UpdatedAt time.Time
	}
	err = base().
		Joins("JOIN users u ON u.id = CASE WHEN friend_requests.sender_id = ? THEN friend_requests.recipient_id ELSE friend_requests.sender_id END", userID).
		Select("u.updated_at").
		Order("u.updated_at DESC").
		Limit(1).
		Scan(&peer).Error
	if err != nil {
		return 0, nil, err
	}
	if peer.UpdatedAt.After(latest) {
		latest = peer.UpdatedAt
	}
	return count, &latest, nil
}

// FriendsStats returns the size of userID's friend set and the latest
// UpdatedAt among the friends' profiles, or nil when the set is empty.
func FriendsStats(ctx context.Context, db *gorm.DB, userID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Friendship{}).Where("friendships.user_id = ?", userID)
	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}
	var row struct {
		UpdatedAt time.Time
	}
	err = db.WithContext(ctx).Model(&domain.Friendship{}).
		Joins("JOIN users u ON u.id = friendships.friend_id").
		Where("friendships.user_id = ?", userID).
		Select("u.updated_at").
		Order("u.updated_at DESC").
		Limit(1).
		Scan(&row).Error
	if err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
