package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-lingo-backend/internal/domain"
	"github.com/tbourn/go-lingo-backend/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// seed inserts onboarded users with ascending creation times.
func seed(t *testing.T, db *gorm.DB, ids ...string) {
	t.Helper()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range ids {
		u := domain.User{
			ID:          id,
			FullName:    "User " + id,
			Email:       id + "@example.com",
			IsOnboarded: true,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
			UpdatedAt:   base,
		}
		if err := db.Create(&u).Error; err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
}

// sqlUsers and sqlRequests bind the repo package to the service interfaces.
type sqlUsers struct{}

func (sqlUsers) CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	return repo.CreateUser(ctx, db, u)
}
func (sqlUsers) GetUserByID(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	return repo.GetUserByID(ctx, db, id)
}
func (sqlUsers) GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	return repo.GetUserByEmail(ctx, db, email)
}
func (sqlUsers) UserExists(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	return repo.UserExists(ctx, db, id)
}
func (sqlUsers) UpdateProfile(ctx context.Context, db *gorm.DB, id string, p repo.ProfileUpdate) error {
	return repo.UpdateProfile(ctx, db, id, p)
}
func (sqlUsers) AddMutualFriendship(ctx context.Context, db *gorm.DB, a, b string) error {
	return repo.AddMutualFriendship(ctx, db, a, b)
}
func (sqlUsers) AreFriends(ctx context.Context, db *gorm.DB, a, b string) (bool, error) {
	return repo.AreFriends(ctx, db, a, b)
}
func (sqlUsers) ListFriendIDs(ctx context.Context, db *gorm.DB, userID string) ([]string, error) {
	return repo.ListFriendIDs(ctx, db, userID)
}
func (sqlUsers) ListFriends(ctx context.Context, db *gorm.DB, userID string) ([]domain.User, error) {
	return repo.ListFriends(ctx, db, userID)
}
func (sqlUsers) ListRecommended(ctx context.Context, db *gorm.DB, userID string, exclude []string) ([]domain.User, error) {
	return repo.ListRecommended(ctx, db, userID, exclude)
}

type sqlRequests struct{}

func (sqlRequests) CreateFriendRequest(ctx context.Context, db *gorm.DB, s, r string) (*domain.FriendRequest, error) {
	return repo.CreateFriendRequest(ctx, db, s, r)
}
func (sqlRequests) GetFriendRequest(ctx context.Context, db *gorm.DB, id string) (*domain.FriendRequest, error) {
	return repo.GetFriendRequest(ctx, db, id)
}
func (sqlRequests) FindFriendRequestBetween(ctx context.Context, db *gorm.DB, a, b string) (*domain.FriendRequest, error) {
	return repo.FindFriendRequestBetween(ctx, db, a, b)
}
func (sqlRequests) MarkFriendRequestAccepted(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	return repo.MarkFriendRequestAccepted(ctx, db, id)
}
func (sqlRequests) ListIncomingRequests(ctx context.Context, db *gorm.DB, userID string) ([]domain.FriendRequest, error) {
	return repo.ListIncomingRequests(ctx, db, userID)
}
func (sqlRequests) ListOutgoingRequests(ctx context.Context, db *gorm.DB, userID string) ([]domain.FriendRequest, error) {
	return repo.ListOutgoingRequests(ctx, db, userID)
}
func (sqlRequests) ListSentAcceptedRequests(ctx context.Context, db *gorm.DB, userID string) ([]domain.FriendRequest, error) {
	return repo.ListSentAcceptedRequests(ctx, db, userID)
}

// ----- Fakes -----

// failingUsers embeds sqlUsers and overrides selected calls with errors.
type failingUsers struct {
	sqlUsers
	existsErr   error
	friendsErr  error
	addErr      error
	byEmailErr  error
	byEmailUser *domain.User
}

func (f failingUsers) UserExists(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.sqlUsers.UserExists(ctx, db, id)
}

func (f failingUsers) AreFriends(ctx context.Context, db *gorm.DB, a, b string) (bool, error) {
	if f.friendsErr != nil {
		return false, f.friendsErr
	}
	return f.sqlUsers.AreFriends(ctx, db, a, b)
}

func (f failingUsers) AddMutualFriendship(ctx context.Context, db *gorm.DB, a, b string) error {
	if f.addErr != nil {
		return f.addErr
	}
	return f.sqlUsers.AddMutualFriendship(ctx, db, a, b)
}

func (f failingUsers) GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	if f.byEmailErr != nil || f.byEmailUser != nil {
		return f.byEmailUser, f.byEmailErr
	}
	return f.sqlUsers.GetUserByEmail(ctx, db, email)
}

// raceRequests reports the pair as free and then loses the insert race.
type raceRequests struct {
	sqlRequests
	createErr error
	markFalse bool
}

func (r raceRequests) FindFriendRequestBetween(ctx context.Context, db *gorm.DB, a, b string) (*domain.FriendRequest, error) {
	if r.createErr != nil {
		return nil, repo.ErrNotFound
	}
	return r.sqlRequests.FindFriendRequestBetween(ctx, db, a, b)
}

func (r raceRequests) CreateFriendRequest(ctx context.Context, db *gorm.DB, s, rc string) (*domain.FriendRequest, error) {
	if r.createErr != nil {
		return nil, r.createErr
	}
	return r.sqlRequests.CreateFriendRequest(ctx, db, s, rc)
}

func (r raceRequests) MarkFriendRequestAccepted(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	if r.markFalse {
		return false, nil
	}
	return r.sqlRequests.MarkFriendRequestAccepted(ctx, db, id)
}

// staticRequests serves one request without touching the database.
type staticRequests struct {
	sqlRequests
	fr *domain.FriendRequest
}

func (r staticRequests) GetFriendRequest(context.Context, *gorm.DB, string) (*domain.FriendRequest, error) {
	return r.fr, nil
}

type fakeChat struct {
	upserts   []string
	upsertErr error
	token     string
	tokenErr  error
}

func (f *fakeChat) UpsertUser(_ context.Context, id, name, imageURL string) error {
	f.upserts = append(f.upserts, id+"|"+name+"|"+imageURL)
	return f.upsertErr
}

func (f *fakeChat) CreateToken(userID string) (string, error) {
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	return f.token + userID, nil
}

func countFriendships(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&domain.Friendship{}).Count(&n).Error; err != nil {
		t.Fatalf("count friendships: %v", err)
	}
	return n
}
