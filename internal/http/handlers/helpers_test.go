package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-lingo-backend/internal/domain"
	"github.com/tbourn/go-lingo-backend/internal/http/middleware"
	"github.com/tbourn/go-lingo-backend/internal/repo"
	"github.com/tbourn/go-lingo-backend/internal/services"
)

// ---------- test DB + repo shims ----------

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())

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
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedUsers(t *testing.T, db *gorm.DB, ids ...string) {
	t.Helper()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range ids {
		u := domain.User{
			ID:               id,
			FullName:         "User " + id,
			Email:            id + "@example.com",
			NativeLanguage:   "spanish",
			LearningLanguage: "english",
			IsOnboarded:      true,
			CreatedAt:        base.Add(time.Duration(i) * time.Minute),
			UpdatedAt:        base,
		}
		if err := db.Create(&u).Error; err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
}

type testUsers struct{}

func (testUsers) CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	return repo.CreateUser(ctx, db, u)
}
func (testUsers) GetUserByID(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	return repo.GetUserByID(ctx, db, id)
}
func (testUsers) GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	return repo.GetUserByEmail(ctx, db, email)
}
func (testUsers) UserExists(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	return repo.UserExists(ctx, db, id)
}
func (testUsers) UpdateProfile(ctx context.Context, db *gorm.DB, id string, p repo.ProfileUpdate) error {
	return repo.UpdateProfile(ctx, db, id, p)
}
func (testUsers) AddMutualFriendship(ctx context.Context, db *gorm.DB, a, b string) error {
	return repo.AddMutualFriendship(ctx, db, a, b)
}
func (testUsers) AreFriends(ctx context.Context, db *gorm.DB, a, b string) (bool, error) {
	return repo.AreFriends(ctx, db, a, b)
}
func (testUsers) ListFriendIDs(ctx context.Context, db *gorm.DB, userID string) ([]string, error) {
	return repo.ListFriendIDs(ctx, db, userID)
}
func (testUsers) ListFriends(ctx context.Context, db *gorm.DB, userID string) ([]domain.User, error) {
	return repo.ListFriends(ctx, db, userID)
}
func (testUsers) ListRecommended(ctx context.Context, db *gorm.DB, userID string, exclude []string) ([]domain.User, error) {
	return repo.ListRecommended(ctx, db, userID, exclude)
}

type testRequests struct{}

func (testRequests) CreateFriendRequest(ctx context.Context, db *gorm.DB, s, r string) (*domain.FriendRequest, error) {
	return repo.CreateFriendRequest(ctx, db, s, r)
}
func (testRequests) GetFriendRequest(ctx context.Context, db *gorm.DB, id string) (*domain.FriendRequest, error) {
	return repo.GetFriendRequest(ctx, db, id)
}
func (testRequests) FindFriendRequestBetween(ctx context.Context, db *gorm.DB, a, b string) (*domain.FriendRequest, error) {
	return repo.FindFriendRequestBetween(ctx, db, a, b)
}
func (testRequests) MarkFriendRequestAccepted(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	return repo.MarkFriendRequestAccepted(ctx, db, id)
}
func (testRequests) ListIncomingRequests(ctx context.Context, db *gorm.DB, userID string) ([]domain.FriendRequest, error) {
	return repo.ListIncomingRequests(ctx, db, userID)
}
func (testRequests) ListOutgoingRequests(ctx context.Context, db *gorm.DB, userID string) ([]domain.FriendRequest, error) {
	return repo.ListOutgoingRequests(ctx, db, userID)
}
func (testRequests) ListSentAcceptedRequests(ctx context.Context, db *gorm.DB, userID string) ([]domain.FriendRequest, error) {
	return repo.ListSentAcceptedRequests(ctx, db, userID)
}

// ---------- stubs ----------

type stubSessions struct{ err error }

func (s stubSessions) Issue(uid string) (string, time.Time, error) {
	if s.err != nil {
		return "", time.Time{}, s.err
	}
	return "tok-" + uid, time.Now().Add(time.Hour), nil
}

// stubAccounts returns err from every method when set.
type stubAccounts struct {
	err   error
	token string
}

func (s stubAccounts) Signup(context.Context, services.SignupInput) (*domain.User, error) {
	return &domain.User{ID: "new"}, s.err
}
func (s stubAccounts) Login(context.Context, string, string) (*domain.User, error) {
	return &domain.User{ID: "u1"}, s.err
}
func (s stubAccounts) Onboard(_ context.Context, id string, _ services.OnboardInput) (*domain.User, error) {
	return &domain.User{ID: id}, s.err
}
func (s stubAccounts) Me(_ context.Context, id string) (*domain.User, error) {
	return &domain.User{ID: id}, s.err
}
func (s stubAccounts) ChatToken(context.Context, string) (string, error) {
	return s.token, s.err
}
func (s stubAccounts) FriendIDs(context.Context, string) ([]string, error) {
	return []string{}, s.err
}

// ---------- server ----------

type fixture struct {
	db *gorm.DB
	h  *Handlers
	r  *gin.Engine
}

// newFixture wires real services over a fresh database with users u1..u4.
// The X-Test-User header stands in for RequireAuth.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	seedUsers(t, db, "u1", "u2", "u3", "u4")
	h := New(
		services.NewAccountService(db, testUsers{}, nil),
		services.NewFriendshipService(db, testUsers{}, testRequests{}),
		services.NewDirectoryService(db, testUsers{}),
		stubSessions{},
		Options{DB: db, Cookie: CookieOptions{Name: "jwt"}},
	)
	return &fixture{db: db, h: h, r: newRouter(h)}
}

func newRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-test")
		if uid := c.GetHeader("X-Test-User"); uid != "" {
			c.Set("userID", uid)
		}
		c.Next()
	})
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))

	r.POST("/auth/signup", h.Signup)
	r.POST("/auth/login", h.Login)
	r.POST("/auth/logout", h.Logout)
	r.POST("/auth/onboard", h.Onboard)
	r.GET("/auth/me", h.Me)
	r.GET("/users", h.RecommendedUsers)
	r.GET("/users/friends", h.MyFriends)
	r.POST("/users/friend-request/:id", h.SendFriendRequest)
	r.PUT("/users/friend-request/:id/accept", h.AcceptFriendRequest)
	r.GET("/users/friend-requests", h.FriendRequests)
	r.GET("/users/outgoing-friend-requests", h.OutgoingFriendRequests)
	r.GET("/chat/token", h.ChatToken)
	return r
}

func do(r http.Handler, method, path, user string, body any, hdr ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		raw, _ := json.Marshal(b)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("json: %v; body=%s", err, w.Body.String())
	}
	return v
}

func wantError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) ErrorResponse {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d; want %d; body=%s", w.Code, status, w.Body.String())
	}
	er := decode[ErrorResponse](t, w)
	if er.Success || er.Code != code || er.Message == "" || er.RequestID != "rid-test" {
		t.Fatalf("envelope = %+v; want code %q", er, code)
	}
	return er
}
