package notes

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidNoteID indicates that a note identifier is empty or exceeds storage bounds.
	ErrInvalidNoteID = errors.New("notes: invalid note id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("notes: invalid user id")
)

// NoteID represents a validated note identifier.
type NoteID string

// NewNoteID validates raw input and returns a NoteID.
func NewNoteID(rawInput string) (NoteID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidNoteID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidNoteID, maxIdentifierLength)
	}
	return NoteID(trimmed), nil
}

// String returns the underlying string identifier.
func (id NoteID) String() string {
	return string(id)
}

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// Note is the persisted note record. The owner is fixed at creation and the
// timestamps are ISO-8601 text. Tags are stored as a JSON-encoded array.
type Note struct {
	ID        string `gorm:"column:id;primaryKey;size:190;not null"`
	Title     string `gorm:"column:title;type:text;not null"`
	Body      string `gorm:"column:body;type:text;not null"`
	TagsJSON  string `gorm:"column:tags_json;type:text;not null"`
	Owner     string `gorm:"column:owner;size:190;not null;index"`
	CreatedAt string `gorm:"column:created_at;size:64;not null"`
	UpdatedAt string `gorm:"column:updated_at;size:64;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Note) TableName() string {
	return "notes"
}

// Collaboration grants a user edit and visibility rights on a note owned by
// someone else. The (note, user) pair is unique.
type Collaboration struct {
	ID     string `gorm:"column:id;primaryKey;size:190;not null"`
	NoteID string `gorm:"column:note_id;size:190;not null;uniqueIndex:idx_collaborations_note_user,priority:1"`
	UserID string `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_collaborations_note_user,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Collaboration) TableName() string {
	return "collaborations"
}

// View is the externally visible projection of a Note, carrying the owner's
// username for display and decoded tags. It is also the unit serialized into
// the cache.
type View struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Tags      []string `json:"tags"`
	Owner     string   `json:"owner"`
	Username  string   `json:"username,omitempty"`
	CreatedAt string   `json:"createdAt"`
	UpdatedAt string   `json:"updatedAt"`
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeTags(raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, err
	}
	return tags, nil
}
