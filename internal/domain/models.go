// Package domain defines the persistence models for users, their friendship
// graph, and friend requests. These types are mapped with GORM and form the
// core data layer of the language-exchange backend.
package domain

import (
	"strings"
	"time"
)

// Friend request states. A request is created pending and moves once to
// accepted; there is no rejected or withdrawn state.
const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
)

// User represents a learner registered in the application.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - FullName: display name shown to other learners.
//   - Email: login identifier, unique and stored lower-cased.
//   - PasswordHash: bcrypt hash; never serialised.
//   - Bio / Location: free-form profile text.
//   - ProfilePic: avatar URL.
//   - NativeLanguage / LearningLanguage: lower-cased language names.
//   - IsOnboarded: true once the profile has been completed.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type User struct {
	ID               string    `json:"id"               gorm:"type:char(36);primaryKey"`
	FullName         string    `json:"fullName"         gorm:"type:varchar(255);not null"`
	Email            string    `json:"email"            gorm:"type:varchar(320);not null;uniqueIndex:ux_users_email"`
	PasswordHash     string    `json:"-"                gorm:"type:varchar(255);not null"`
	Bio              string    `json:"bio"              gorm:"type:text;not null;default:''"`
	ProfilePic       string    `json:"profilePic"       gorm:"type:varchar(512);not null;default:''"`
	NativeLanguage   string    `json:"nativeLanguage"   gorm:"type:varchar(64);not null;default:''"`
	LearningLanguage string    `json:"learningLanguage" gorm:"type:varchar(64);not null;default:''"`
	Location         string    `json:"location"         gorm:"type:varchar(255);not null;default:''"`
	IsOnboarded      bool      `json:"isOnboarded"      gorm:"not null;default:false;index:idx_users_onboarded,priority:1"`
	CreatedAt        time.Time `json:"createdAt"        gorm:"index:idx_users_onboarded,priority:2"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Friendship is one direction of an edge in the friendship graph. An accepted
// request produces two rows, (a,b) and (b,a), so a user's friend set is the
// set of FriendID values for its UserID.
type Friendship struct {
	UserID    string    `gorm:"type:char(36);primaryKey;check:chk_friendships_not_self,user_id <> friend_id"`
	FriendID  string    `gorm:"type:char(36);primaryKey;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`

	User   *User `gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Friend *User `gorm:"foreignKey:FriendID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Friendship.
func (Friendship) TableName() string { return "friendships" }

// FriendRequest records one learner asking another to become friends.
//
// PairKey is the unordered pair (see PairKey) and carries a unique index, so
// at most one request can exist between two users regardless of direction.
type FriendRequest struct {
	ID          string    `json:"id"          gorm:"type:char(36);primaryKey"`
	SenderID    string    `json:"senderId"    gorm:"type:char(36);not null;index:idx_fr_sender_status,priority:1"`
	RecipientID string    `json:"recipientId" gorm:"type:char(36);not null;index:idx_fr_recipient_status,priority:1"`
	Status      string    `json:"status"      gorm:"type:varchar(16);not null;default:'pending';check:chk_fr_status,status IN ('pending','accepted');index:idx_fr_sender_status,priority:2;index:idx_fr_recipient_status,priority:2"`
	PairKey     string    `json:"-"           gorm:"type:varchar(80);not null;uniqueIndex:ux_fr_pair"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	Sender    *User `json:"-" gorm:"foreignKey:SenderID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Recipient *User `json:"-" gorm:"foreignKey:RecipientID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for FriendRequest.
func (FriendRequest) TableName() string { return "friend_requests" }

// IsPending reports whether the request can still be accepted.
func (r *FriendRequest) IsPending() bool { return r.Status == StatusPending }

// PairKey returns the direction-independent key for two user ids:
// the lexically smaller id, a colon, then the larger one.
func PairKey(a, b string) string {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}
