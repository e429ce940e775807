// Package services – AccountService
//
// This file implements account use-cases: signup, login, onboarding, reading
// the caller's own record, and issuing a chat-provider token. Every new or
// updated profile is mirrored to the chat provider so the provider shows the
// right name and avatar; a failure there is logged and counted but does not
// fail the account operation.
package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/go-lingo-backend/internal/auth"
	"github.com/tbourn/go-lingo-backend/internal/domain"
	"github.com/tbourn/go-lingo-backend/internal/observability"
	"github.com/tbourn/go-lingo-backend/internal/repo"
	"github.com/tbourn/go-lingo-backend/internal/streamchat"
)

const (
	minPasswordLen = 6
	maxPasswordLen = 72 // bcrypt input limit, in bytes
	avatarCount    = 70
)

var emailRE = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// SignupInput is the payload for Signup.
type SignupInput struct {
	FullName string
	Email    string
	Password string
}

// OnboardInput is the payload for Onboard. All fields are required.
type OnboardInput struct {
	FullName         string
	Bio              string
	NativeLanguage   string
	LearningLanguage string
	Location         string
	ProfilePic       string // optional
}

// AccountService implements signup, login and profile onboarding.
type AccountService struct {
	DB    *gorm.DB
	Users UserRepo
	Chat  streamchat.Provider

	// Avatar picks the initial profile picture. Defaults to a random
	// pravatar.cc image.
	Avatar func() string

	lower cases.Caser
}

// NewAccountService constructs an AccountService. A nil chat provider is
// replaced by the no-op provider.
func NewAccountService(db *gorm.DB, users UserRepo, chat streamchat.Provider) *AccountService {
	if chat == nil {
		chat = streamchat.Noop{}
	}
	return &AccountService{
		DB:     db,
		Users:  users,
		Chat:   chat,
		Avatar: randomAvatar,
		lower:  cases.Lower(language.Und),
	}
}

func randomAvatar() string {
	return fmt.Sprintf("https://i.pravatar.cc/150?img=%d", rand.IntN(avatarCount)+1)
}

// Signup validates in, creates the user with a hashed password and a random
// avatar, and registers the user with the chat provider.
func (s *AccountService) Signup(ctx context.Context, in SignupInput) (*domain.User, error) {
	ctx, span := otel.Tracer("services/AccountService").Start(ctx, "Signup")
	defer span.End()

	u, err := s.signup(ctx, in)
	observability.RecordAccountEvent("signup", err)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", u.ID))
	s.syncChatUser(ctx, u)
	return u, nil
}

func (s *AccountService) signup(ctx context.Context, in SignupInput) (*domain.User, error) {
	name := strings.TrimSpace(in.FullName)
	email := strings.ToLower(strings.TrimSpace(in.Email))

	var missing []string
	if name == "" {
		missing = append(missing, "fullName")
	}
	if email == "" {
		missing = append(missing, "email")
	}
	if in.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return nil, invalid("All fields are required", missing...)
	}
	if len(in.Password) < minPasswordLen {
		return nil, invalid("Password must be at least 6 characters long")
	}
	if len(in.Password) > maxPasswordLen {
		return nil, invalid("Password must be at most 72 bytes long")
	}
	if !emailRE.MatchString(email) {
		return nil, invalid("Invalid email format")
	}

	if _, err := s.Users.GetUserByEmail(ctx, s.DB, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, storage("get user by email", err)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &domain.User{
		FullName:     name,
		Email:        email,
		PasswordHash: hash,
		ProfilePic:   s.avatar(),
	}
	if err := s.Users.CreateUser(ctx, s.DB, u); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, storage("create user", err)
	}
	return u, nil
}

// Login returns the user for email when password matches. Unknown emails and
// wrong passwords both yield ErrInvalidCredentials.
func (s *AccountService) Login(ctx context.Context, email, password string) (*domain.User, error) {
	ctx, span := otel.Tracer("services/AccountService").Start(ctx, "Login")
	defer span.End()

	u, err := s.login(ctx, email, password)
	observability.RecordAccountEvent("login", err)
	return u, err
}

func (s *AccountService) login(ctx context.Context, email, password string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, invalid("All fields are required")
	}
	u, err := s.Users.GetUserByEmail(ctx, s.DB, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, storage("get user by email", err)
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// Onboard completes userID's profile and marks the user onboarded.
// Languages are stored lower-cased.
func (s *AccountService) Onboard(ctx context.Context, userID string, in OnboardInput) (*domain.User, error) {
	ctx, span := otel.Tracer("services/AccountService").Start(ctx, "Onboard",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	u, err := s.onboard(ctx, userID, in)
	observability.RecordAccountEvent("onboard", err)
	if err != nil {
		return nil, err
	}
	s.syncChatUser(ctx, u)
	return u, nil
}

func (s *AccountService) onboard(ctx context.Context, userID string, in OnboardInput) (*domain.User, error) {
	p := repo.ProfileUpdate{
		FullName:         strings.TrimSpace(in.FullName),
		Bio:              strings.TrimSpace(in.Bio),
		NativeLanguage:   s.lower.String(strings.TrimSpace(in.NativeLanguage)),
		LearningLanguage: s.lower.String(strings.TrimSpace(in.LearningLanguage)),
		Location:         strings.TrimSpace(in.Location),
		ProfilePic:       strings.TrimSpace(in.ProfilePic),
	}

	var missing []string
	for _, f := range []struct{ name, val string }{
		{"fullName", p.FullName},
		{"bio", p.Bio},
		{"nativeLanguage", p.NativeLanguage},
		{"learningLanguage", p.LearningLanguage},
		{"location", p.Location},
	} {
		if f.val == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, invalid("All fields are required", missing...)
	}

	if err := s.Users.UpdateProfile(ctx, s.DB, userID, p); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storage("update profile", err)
	}
	return s.me(ctx, userID)
}

// Me returns the caller's own user record.
func (s *AccountService) Me(ctx context.Context, userID string) (*domain.User, error) {
	ctx, span := otel.Tracer("services/AccountService").Start(ctx, "Me",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()
	return s.me(ctx, userID)
}

func (s *AccountService) me(ctx context.Context, userID string) (*domain.User, error) {
	u, err := s.Users.GetUserByID(ctx, s.DB, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storage("get user", err)
	}
	return u, nil
}

// FriendIDs returns the ids in userID's friend set, never nil.
func (s *AccountService) FriendIDs(ctx context.Context, userID string) ([]string, error) {
	ctx, span := otel.Tracer("services/AccountService").Start(ctx, "FriendIDs",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	ids, err := s.Users.ListFriendIDs(ctx, s.DB, userID)
	if err != nil {
		span.RecordError(err)
		return nil, storage("list friend ids", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// ChatToken mints a chat-provider token for userID.
func (s *AccountService) ChatToken(ctx context.Context, userID string) (string, error) {
	_, span := otel.Tracer("services/AccountService").Start(ctx, "ChatToken",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	tok, err := s.Chat.CreateToken(userID)
	if err != nil {
		if errors.Is(err, streamchat.ErrChatDisabled) {
			return "", ErrChatUnavailable
		}
		span.RecordError(err)
		return "", fmt.Errorf("create chat token: %w", err)
	}
	return tok, nil
}

func (s *AccountService) avatar() string {
	if s.Avatar != nil {
		return s.Avatar()
	}
	return randomAvatar()
}

// syncChatUser mirrors u to the chat provider. Failures do not fail the caller.
func (s *AccountService) syncChatUser(ctx context.Context, u *domain.User) {
	if err := s.Chat.UpsertUser(ctx, u.ID, u.FullName, u.ProfilePic); err != nil {
		observability.RecordChatSyncFailure()
		zerolog.Ctx(ctx).Warn().Err(err).Str("user_id", u.ID).Msg("chat user sync failed")
	}
}
