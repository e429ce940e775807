// Package services – DirectoryService
//
// This file implements DirectoryService, the read side of the user directory:
// resolving a user's friend set to profile summaries, and recommending
// onboarded learners the caller is not yet connected to.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// the user identifier and result sizes.
package services

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-lingo-backend/internal/domain"
	"github.com/tbourn/go-lingo-backend/internal/repo"
)

// UserRepo defines the user and friendship-graph persistence contract used by
// the services. Implementations are thin wrappers over the repo package.
type UserRepo interface {
	CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) error
	GetUserByID(ctx context.Context, db *gorm.DB, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error)
	UserExists(ctx context.Context, db *gorm.DB, id string) (bool, error)
	UpdateProfile(ctx context.Context, db *gorm.DB, id string, p repo.ProfileUpdate) error

	// AddMutualFriendship inserts both directed edges; existing edges are kept.
	AddMutualFriendship(ctx context.Context, db *gorm.DB, a, b string) error
	AreFriends(ctx context.Context, db *gorm.DB, a, b string) (bool, error)
	ListFriendIDs(ctx context.Context, db *gorm.DB, userID string) ([]string, error)
	ListFriends(ctx context.Context, db *gorm.DB, userID string) ([]domain.User, error)
	ListRecommended(ctx context.Context, db *gorm.DB, userID string, exclude []string) ([]domain.User, error)
}

// ProfileSummary is the view of another learner shown in friend lists and
// friend requests.
type ProfileSummary struct {
	ID               string `json:"id"`
	FullName         string `json:"fullName,omitempty"`
	ProfilePic       string `json:"profilePic,omitempty"`
	NativeLanguage   string `json:"nativeLanguage,omitempty"`
	LearningLanguage string `json:"learningLanguage,omitempty"`
}

// PublicProfile extends ProfileSummary with the fields shown on
// recommendation cards.
type PublicProfile struct {
	ProfileSummary
	Bio      string `json:"bio"`
	Location string `json:"location"`
}

// SummaryOf projects u to a ProfileSummary. A nil user yields the zero value.
func SummaryOf(u *domain.User) ProfileSummary {
	if u == nil {
		return ProfileSummary{}
	}
	return ProfileSummary{
		ID:               u.ID,
		FullName:         u.FullName,
		ProfilePic:       u.ProfilePic,
		NativeLanguage:   u.NativeLanguage,
		LearningLanguage: u.LearningLanguage,
	}
}

// PublicProfileOf projects u to a PublicProfile.
func PublicProfileOf(u *domain.User) PublicProfile {
	p := PublicProfile{ProfileSummary: SummaryOf(u)}
	if u != nil {
		p.Bio, p.Location = u.Bio, u.Location
	}
	return p
}

// DirectoryService answers friend-list and recommendation queries.
type DirectoryService struct {
	DB    *gorm.DB
	Users UserRepo
}

// NewDirectoryService constructs a DirectoryService.
func NewDirectoryService(db *gorm.DB, users UserRepo) *DirectoryService {
	return &DirectoryService{DB: db, Users: users}
}

// ListFriends returns userID's friends as profile summaries.
// It fails with ErrUserNotFound when userID does not exist.
func (s *DirectoryService) ListFriends(ctx context.Context, userID string) ([]ProfileSummary, error) {
	ctx, span := otel.Tracer("services/DirectoryService").Start(ctx, "ListFriends",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return nil, invalid("user id is required")
	}
	exists, err := s.Users.UserExists(ctx, s.DB, userID)
	if err != nil {
		return nil, storage("user exists", err)
	}
	if !exists {
		return nil, ErrUserNotFound
	}

	friends, err := s.Users.ListFriends(ctx, s.DB, userID)
	if err != nil {
		return nil, storage("list friends", err)
	}
	out := make([]ProfileSummary, 0, len(friends))
	for i := range friends {
		out = append(out, SummaryOf(&friends[i]))
	}
	span.SetAttributes(attribute.Int("friends.count", len(out)))
	return out, nil
}

// Recommend returns every onboarded user other than userID and its friends,
// in storage order. There is no ranking and no pagination.
func (s *DirectoryService) Recommend(ctx context.Context, userID string) ([]PublicProfile, error) {
	ctx, span := otel.Tracer("services/DirectoryService").Start(ctx, "Recommend",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return nil, invalid("user id is required")
	}
	if _, err := s.Users.GetUserByID(ctx, s.DB, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storage("get user", err)
	}

	friendIDs, err := s.Users.ListFriendIDs(ctx, s.DB, userID)
	if err != nil {
		return nil, storage("list friend ids", err)
	}
	users, err := s.Users.ListRecommended(ctx, s.DB, userID, friendIDs)
	if err != nil {
		return nil, storage("list recommended", err)
	}

	out := make([]PublicProfile, 0, len(users))
	for i := range users {
		out = append(out, PublicProfileOf(&users[i]))
	}
	span.SetAttributes(
		attribute.Int("friends.count", len(friendIDs)),
		attribute.Int("recommended.count", len(out)),
	)
	return out, nil
}
