// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for users and the
// friendship graph.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a user is not found, functions return ErrNotFound
//     (an alias of gorm.ErrRecordNotFound).
//   - A duplicate email on insert returns ErrDuplicate.
//   - Other DB errors (connectivity, constraint violations) are propagated raw.
//
// Functions:
//
//   - CreateUser(ctx, db, u) -> error
//     Inserts a user, assigning a UUID when ID is empty.
//
//   - GetUserByID / GetUserByEmail(ctx, db, key) -> *domain.User, error
//
//   - UserExists(ctx, db, id) -> bool, error
//
//   - UpdateProfile(ctx, db, id, ProfileUpdate) -> error
//     Writes the onboarding fields and marks the user onboarded.
//
//   - AddMutualFriendship(ctx, db, a, b) -> error
//     Inserts both directed edges; already-present edges are left untouched.
//
//   - AreFriends(ctx, db, a, b) -> bool, error
//     True when either directed edge exists.
//
//   - ListFriendIDs(ctx, db, userID) -> []string, error
//   - ListFriends(ctx, db, userID) -> []domain.User, error
//   - ListRecommended(ctx, db, userID, exclude) -> []domain.User, error
//
// Usage:
//
//	u, err := repo.GetUserByID(ctx, db, id)
//	if errors.Is(err, repo.ErrNotFound) {
//	    // handle missing
//	} else if err != nil {
//	    // handle DB failure
//	}
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-lingo-backend/internal/domain"
)

// ProfileUpdate carries the fields written when a user completes onboarding.
type ProfileUpdate struct {
	FullName         string
	Bio              string
	NativeLanguage   string
	LearningLanguage string
	Location         string
	ProfilePic       string // optional; kept when empty
}

// publicUserColumns are the columns projected for other users' views.
var publicUserColumns = []string{
	"users.id", "users.full_name", "users.profile_pic", "users.native_language",
	"users.learning_language", "users.bio", "users.location", "users.is_onboarded",
	"users.created_at", "users.updated_at",
}

// CreateUser inserts u. The email is lower-cased and an ID is generated when
// missing. A unique-index hit on the email returns ErrDuplicate.
func CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetUserByID fetches a user by primary key, or ErrNotFound.
func GetUserByID(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByEmail fetches a user by (case-insensitive) email, or ErrNotFound.
func GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UserExists reports whether a user row with id exists.
func UserExists(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

// UpdateProfile writes the onboarding fields for id and sets is_onboarded.
// Returns ErrNotFound when no row matched.
func UpdateProfile(ctx context.Context, db *gorm.DB, id string, p ProfileUpdate) error {
	fields := map[string]any{
		"full_name":         p.FullName,
		"bio":               p.Bio,
		"native_language":   p.NativeLanguage,
		"learning_language": p.LearningLanguage,
		"location":          p.Location,
		"is_onboarded":      true,
		"updated_at":        time.Now().UTC(),
	}
	if p.ProfilePic != "" {
		fields["profile_pic"] = p.ProfilePic
	}
	res := db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddMutualFriendship records a and b as friends of each other. Edges that
// already exist are skipped, so repeating the call leaves the graph unchanged.
func AddMutualFriendship(ctx context.Context, db *gorm.DB, a, b string) error {
	if a == b {
		return errors.New("repo: cannot befriend self")
	}
	now := time.Now().UTC()
	edges := []domain.Friendship{
		{UserID: a, FriendID: b, CreatedAt: now},
		{UserID: b, FriendID: a, CreatedAt: now},
	}
	return db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&edges).Error
}

// AreFriends reports whether a and b are connected in either direction.
func AreFriends(ctx context.Context, db *gorm.DB, a, b string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Friendship{}).
		Where("(user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)", a, b, b, a).
		Count(&n).Error
	return n > 0, err
}

// ListFriendIDs returns the ids in userID's friend set.
func ListFriendIDs(ctx context.Context, db *gorm.DB, userID string) ([]string, error) {
	ids := []string{}
	err := db.WithContext(ctx).Model(&domain.Friendship{}).
		Where("user_id = ?", userID).
		Order("created_at ASC, friend_id ASC").
		Pluck("friend_id", &ids).Error
	return ids, err
}

// ListFriends resolves userID's friend set to user rows (public columns only),
// in the order the friendships were made.
func ListFriends(ctx context.Context, db *gorm.DB, userID string) ([]domain.User, error) {
	out := []domain.User{}
	err := db.WithContext(ctx).
		Model(&domain.User{}).
		Select(publicUserColumns).
		Joins("JOIN friendships f ON f.friend_id = users.id").
		Where("f.user_id = ?", userID).
		Order("f.created_at ASC, users.id ASC").
		Find(&out).Error
	return out, err
}

// ListRecommended returns onboarded users other than userID and anything in
// exclude, in storage order (created_at, then id). An empty exclude list is
// not turned into a NOT IN clause.
func ListRecommended(ctx context.Context, db *gorm.DB, userID string, exclude []string) ([]domain.User, error) {
	out := []domain.User{}
	q := db.WithContext(ctx).
		Model(&domain.User{}).
		Select(publicUserColumns).
		Where("users.is_onboarded = ?", true).
		Where("users.id <> ?", userID)
	if len(exclude) > 0 {
		q = q.Where("users.id NOT IN ?", exclude)
	}
	err := q.Order("users.created_at ASC, users.id ASC").Find(&out).Error
	return out, err
}
