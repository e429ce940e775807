package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-lingo-backend/internal/domain"
)

// newRepoDB opens a file-backed SQLite database in a temp dir with foreign
// keys enabled and, unless migrate is false, the full schema applied.
func newRepoDB(t *testing.T, migrate bool) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("repo_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	// One connection so the PRAGMA below applies to every statement.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db.Exec("PRAGMA foreign_keys=ON;")
	if migrate {
		if err := AutoMigrate(db); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

// seedUsers inserts users with ids in creation order, spaced one minute apart.
func seedUsers(t *testing.T, db *gorm.DB, onboarded bool, ids ...string) {
	t.Helper()
	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range ids {
		u := &domain.User{
			ID:               id,
			FullName:         "User " + id,
			Email:            id + "@example.com",
			PasswordHash:     "hash",
			NativeLanguage:   "english",
			LearningLanguage: "spanish",
			IsOnboarded:      onboarded,
		}
		if err := CreateUser(context.Background(), db, u); err != nil {
			t.Fatalf("seed user %s: %v", id, err)
		}
		ts := base.Add(time.Duration(i) * time.Minute)
		db.Model(&domain.User{}).Where("id = ?", id).Updates(map[string]any{"created_at": ts, "updated_at": ts})
	}
}
