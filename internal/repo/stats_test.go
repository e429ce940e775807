package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-lingo-backend/internal/domain"
)

func TestFriendRequestsStats_CountError_NoTable(t *testing.T) {
	db := newRepoDB(t, false)
	if _, _, err := FriendRequestsStats(context.Background(), db, "u1"); err == nil {
		t.Fatalf("expected error due to missing friend_requests table")
	}
}

func TestFriendRequestsStats_ZeroRows(t *testing.T) {
	db := newRepoDB(t, true)
	count, maxAt, err := FriendRequestsStats(context.Background(), db, "u1")
	if err != nil {
		t.Fatalf("FriendRequestsStats error: %v", err)
	}
	if count != 0 || maxAt != nil {
		t.Fatalf("expected (0, nil), got (%d, %v)", count, maxAt)
	}
}

func TestFriendRequestsStats_TracksRequestsAndPeers(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()
	seedUsers(t, db, true, "me", "a", "b", "x", "y")

	r1, _ := CreateFriendRequest(ctx, db, "a", "me")
	r2, _ := CreateFriendRequest(ctx, db, "me", "b")
	_, _ = CreateFriendRequest(ctx, db, "x", "y") // unrelated

	t1 := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC)
	db.Model(&domain.FriendRequest{}).Where("id = ?", r1.ID).Update("updated_at", t1)
	db.Model(&domain.FriendRequest{}).Where("id = ?", r2.ID).Update("updated_at", t2)
	// Peers were seeded in January, older than both requests.

	count, maxAt, err := FriendRequestsStats(ctx, db, "me")
	if err != nil {
		t.Fatalf("FriendRequestsStats: %v", err)
	}
	if count != 2 || maxAt == nil || !maxAt.Equal(t2) {
		t.Fatalf("expected (2, %v), got (%d, %v)", t2, count, maxAt)
	}

	// A counterpart editing their profile moves the marker forward.
	t3 := t2.Add(24 * time.Hour)
	db.Model(&domain.User{}).Where("id = ?", "a").Update("updated_at", t3)
	_, maxAt, err = FriendRequestsStats(ctx, db, "me")
	if err != nil || maxAt == nil || !maxAt.Equal(t3) {
		t.Fatalf("expected peer update %v to win, got %v err=%v", t3, maxAt, err)
	}
}

func TestFriendsStats(t *testing.T) {
	db := newRepoDB(t, true)
	ctx := context.Background()
	seedUsers(t, db, true, "me", "a", "b")

	count, maxAt, err := FriendsStats(ctx, db, "me")
	if err != nil || count != 0 || maxAt != nil {
		t.Fatalf("expected (0, nil), got (%d, %v) err=%v", count, maxAt, err)
	}

	_ = AddMutualFriendship(ctx, db, "me", "a")
	_ = AddMutualFriendship(ctx, db, "me", "b")
	tb := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	db.Model(&domain.User{}).Where("id = ?", "b").Update("updated_at", tb)

	count, maxAt, err = FriendsStats(ctx, db, "me")
	if err != nil || count != 2 || maxAt == nil || !maxAt.Equal(tb) {
		t.Fatalf("expected (2, %v), got (%d, %v) err=%v", tb, count, maxAt, err)
	}
}
