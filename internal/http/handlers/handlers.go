package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-lingo-backend/internal/domain"
	"github.com/tbourn/go-lingo-backend/internal/http/middleware"
	"github.com/tbourn/go-lingo-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// AccountService covers signup, login, onboarding and the chat token.
type AccountService interface {
	Signup(ctx context.Context, in services.SignupInput) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*domain.User, error)
	Onboard(ctx context.Context, userID string, in services.OnboardInput) (*domain.User, error)
	Me(ctx context.Context, userID string) (*domain.User, error)
	ChatToken(ctx context.Context, userID string) (string, error)
	FriendIDs(ctx context.Context, userID string) ([]string, error)
}

// FriendshipService defines the friend-request workflow consumed by handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type FriendshipService interface {
	SendRequest(ctx context.Context, senderID, recipientID string) (*domain.FriendRequest, error)
	AcceptRequest(ctx context.Context, requestID, userID string) error
	// Request loads a request the caller takes part in (idempotent replay).
	Request(ctx context.Context, requestID, userID string) (*domain.FriendRequest, error)
	ListIncoming(ctx context.Context, userID string) ([]domain.FriendRequest, error)
	ListOutgoing(ctx context.Context, userID string) ([]domain.FriendRequest, error)
	ListSentAccepted(ctx context.Context, userID string) ([]domain.FriendRequest, error)
}

// DirectoryService answers friend-list and recommendation queries.
type DirectoryService interface {
	ListFriends(ctx context.Context, userID string) ([]services.ProfileSummary, error)
	Recommend(ctx context.Context, userID string) ([]services.PublicProfile, error)
}

// SessionIssuer signs session tokens; *auth.Tokens satisfies it.
type SessionIssuer interface {
	Issue(userID string) (string, time.Time, error)
}

//
// Handler wiring
//

// CookieOptions describes the session cookie.
type CookieOptions struct {
	Name   string
	Secure bool
}

// Options carries optional handler dependencies.
type Options struct {
	// DB backs ETags and idempotent replays. Nil turns both off.
	DB     *gorm.DB
	Cookie CookieOptions
	// IdempotencyTTL defaults to 24h.
	IdempotencyTTL time.Duration
}

// Handlers groups the HTTP endpoints. It depends on abstract service
// interfaces to keep transport concerns separate from business logic.
type Handlers struct {
	accounts  AccountService
	friends   FriendshipService
	directory DirectoryService
	sessions  SessionIssuer

	db      *gorm.DB
	cookie  CookieOptions
	idemTTL time.Duration
}

// New constructs a Handlers bound to the given services.
func New(accounts AccountService, friends FriendshipService, directory DirectoryService, sessions SessionIssuer, opts Options) *Handlers {
	if opts.Cookie.Name == "" {
		opts.Cookie.Name = "jwt"
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	return &Handlers{
		accounts:  accounts,
		friends:   friends,
		directory: directory,
		sessions:  sessions,
		db:        opts.DB,
		cookie:    opts.Cookie,
		idemTTL:   opts.IdempotencyTTL,
	}
}

// userID is the authenticated caller; RequireAuth guarantees it is set on
// protected routes.
func userID(c *gin.Context) string {
	return middleware.CurrentUserID(c)
}

//
// Views
//

// FriendRequestView is a friend request as returned to clients. Sender and
// Recipient carry a profile summary when it was loaded and only the id
// otherwise.
type FriendRequestView struct {
	ID        string                  `json:"id"`
	Sender    services.ProfileSummary `json:"sender"`
	Recipient services.ProfileSummary `json:"recipient"`
	Status    string                  `json:"status" example:"pending"`
	CreatedAt time.Time               `json:"createdAt"`
	UpdatedAt time.Time               `json:"updatedAt"`
}

func viewOf(fr *domain.FriendRequest) FriendRequestView {
	v := FriendRequestView{
		ID:        fr.ID,
		Sender:    services.ProfileSummary{ID: fr.SenderID},
		Recipient: services.ProfileSummary{ID: fr.RecipientID},
		Status:    fr.Status,
		CreatedAt: fr.CreatedAt,
		UpdatedAt: fr.UpdatedAt,
	}
	if fr.Sender != nil {
		v.Sender = services.SummaryOf(fr.Sender)
	}
	if fr.Recipient != nil {
		v.Recipient = services.SummaryOf(fr.Recipient)
	}
	return v
}

func viewsOf(frs []domain.FriendRequest) []FriendRequestView {
	out := make([]FriendRequestView, 0, len(frs))
	for i := range frs {
		out = append(out, viewOf(&frs[i]))
	}
	return out
}

//
// Conditional GET
//

type statsFunc func(ctx context.Context, db *gorm.DB, userID string) (int64, *time.Time, error)

// notModifiedSince sets a weak ETag built from stats and reports whether the
// client's If-None-Match already matches it, in which case a 304 has been
// written. A stats failure only disables the ETag.
func (h *Handlers) notModifiedSince(c *gin.Context, kind string, stats statsFunc) bool {
	if h.db == nil {
		return false
	}
	uid := userID(c)
	count, maxUpdated, err := stats(c.Request.Context(), h.db, uid)
	if err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Str("kind", kind).Msg("etag stats failed")
		return false
	}
	var ts int64
	if maxUpdated != nil {
		ts = maxUpdated.UTC().UnixNano()
	}
	etag := fmt.Sprintf(`W/"%s:%s:%d:%s"`, kind, uid, count, strconv.FormatInt(ts, 36))
	c.Header("ETag", etag)
	if c.GetHeader("If-None-Match") == etag {
		notModified(c)
		return true
	}
	return false
}

// headerReplayed marks a response served from an idempotency record.
const headerReplayed = "Idempotency-Replayed"

// badJSON answers a body that failed to decode.
func badJSON(c *gin.Context) {
	fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body")
}
