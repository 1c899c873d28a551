package notes

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/quillhq/quill/internal/users"
)

func mustUserID(t *testing.T, value string) UserID {
	t.Helper()
	id, err := NewUserID(value)
	if err != nil {
		t.Fatalf("unexpected user id error: %v", err)
	}
	return id
}

func mustNoteID(t *testing.T, value string) NoteID {
	t.Helper()
	id, err := NewNoteID(value)
	if err != nil {
		t.Fatalf("unexpected note id error: %v", err)
	}
	return id
}

type sequenceIDGenerator struct {
	next int
}

func (g *sequenceIDGenerator) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("%04d", g.next), nil
}

func newTestStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:notes_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Note{}, &Collaboration{}, &users.User{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	clockSeconds := int64(1700000000)
	store, err := NewStore(StoreConfig{
		Database:   db,
		IDProvider: &sequenceIDGenerator{},
		Clock: func() time.Time {
			clockSeconds++
			return time.Unix(clockSeconds, 0).UTC()
		},
	})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	return store, db
}

func seedUser(t *testing.T, db *gorm.DB, id, username string) {
	t.Helper()
	user := users.User{ID: id, Username: username, PasswordHash: "x", FullName: username}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to seed user %s: %v", id, err)
	}
}
