package notes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/quillhq/quill/internal/apperr"
	"github.com/quillhq/quill/internal/identifier"
)

const (
	noteIDPrefix   = "note-"
	collabIDPrefix = "collab-"
	timeLayout     = time.RFC3339
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// StoreConfig describes the dependencies for the record store.
type StoreConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider identifier.Provider
	Logger     *zap.Logger
}

// Store is the durable record store for notes and collaboration grants.
// It performs no authorization; Access and Directory compose it.
type Store struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider identifier.Provider
	logger     *zap.Logger
}

// NewStore constructs the record store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{db: cfg.Database, clock: clock, idProvider: cfg.IDProvider, logger: logger}, nil
}

// CreateInput carries the fields supplied when creating a note.
type CreateInput struct {
	Title string
	Body  string
	Tags  []string
	Owner UserID
}

// UpdateInput carries the mutable fields of a note.
type UpdateInput struct {
	Title string
	Body  string
	Tags  []string
}

// Create inserts a new note with created-at = updated-at = now and returns
// its identifier.
func (s *Store) Create(ctx context.Context, input CreateInput) (NoteID, error) {
	rawID, err := s.idProvider.NewID()
	if err != nil {
		return "", err
	}
	tagsJSON, err := encodeTags(input.Tags)
	if err != nil {
		return "", err
	}

	now := s.clock().UTC().Format(timeLayout)
	note := Note{
		ID:        noteIDPrefix + rawID,
		Title:     input.Title,
		Body:      input.Body,
		TagsJSON:  tagsJSON,
		Owner:     input.Owner.String(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&note).Error; err != nil {
		s.logger.Error("note insert failed", zap.Error(err), zap.String("owner", input.Owner.String()))
		return "", fmt.Errorf("%w: note could not be created", apperr.ErrInvariant)
	}
	return NoteID(note.ID), nil
}

type noteRow struct {
	ID        string
	Title     string
	Body      string
	TagsJSON  string `gorm:"column:tags_json"`
	Owner     string
	CreatedAt string `gorm:"column:created_at"`
	UpdatedAt string `gorm:"column:updated_at"`
	Username  string
}

func (r noteRow) view() (View, error) {
	tags, err := decodeTags(r.TagsJSON)
	if err != nil {
		return View{}, err
	}
	return View{
		ID:        r.ID,
		Title:     r.Title,
		Body:      r.Body,
		Tags:      tags,
		Owner:     r.Owner,
		Username:  r.Username,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

// GetByID returns a single note joined with its owner's username.
func (s *Store) GetByID(ctx context.Context, id NoteID) (View, error) {
	var row noteRow
	err := s.db.WithContext(ctx).
		Table("notes").
		Select("notes.*, users.username AS username").
		Joins("LEFT JOIN users ON users.id = notes.owner").
		Where("notes.id = ?", id.String()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return View{}, fmt.Errorf("%w: note %s", apperr.ErrNotFound, id)
	}
	if err != nil {
		s.logger.Error("note lookup failed", zap.Error(err), zap.String("note_id", id.String()))
		return View{}, err
	}
	return row.view()
}

// OwnerOf returns the owner of the note without loading the full record.
func (s *Store) OwnerOf(ctx context.Context, id NoteID) (UserID, error) {
	var note Note
	err := s.db.WithContext(ctx).Select("id", "owner").Where("id = ?", id.String()).Take(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("%w: note %s", apperr.ErrNotFound, id)
	}
	if err != nil {
		s.logger.Error("note owner lookup failed", zap.Error(err), zap.String("note_id", id.String()))
		return "", err
	}
	return UserID(note.Owner), nil
}

// ListVisibleTo returns the union of notes owned by the subject and notes
// the subject collaborates on, de-duplicated by note id. The result is
// ordered by created_at then id so cached and uncached reads agree.
func (s *Store) ListVisibleTo(ctx context.Context, subjectID UserID) ([]View, error) {
	var rows []noteRow
	err := s.db.WithContext(ctx).
		Table("notes").
		Select("notes.*").
		Joins("LEFT JOIN collaborations ON collaborations.note_id = notes.id").
		Where("notes.owner = ? OR collaborations.user_id = ?", subjectID.String(), subjectID.String()).
		Group("notes.id").
		Order("notes.created_at, notes.id").
		Find(&rows).Error
	if err != nil {
		s.logger.Error("visible notes query failed", zap.Error(err), zap.String("subject_id", subjectID.String()))
		return nil, err
	}

	views := make([]View, 0, len(rows))
	for _, row := range rows {
		view, err := row.view()
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// Update rewrites the mutable fields of a note, sets updated-at = now, and
// returns the note's owner for cache invalidation.
func (s *Store) Update(ctx context.Context, id NoteID, input UpdateInput) (UserID, error) {
	owner, err := s.OwnerOf(ctx, id)
	if err != nil {
		return "", err
	}
	tagsJSON, err := encodeTags(input.Tags)
	if err != nil {
		return "", err
	}

	result := s.db.WithContext(ctx).Model(&Note{}).Where("id = ?", id.String()).Updates(map[string]any{
		"title":      input.Title,
		"body":       input.Body,
		"tags_json":  tagsJSON,
		"updated_at": s.clock().UTC().Format(timeLayout),
	})
	if result.Error != nil {
		s.logger.Error("note update failed", zap.Error(result.Error), zap.String("note_id", id.String()))
		return "", result.Error
	}
	if result.RowsAffected == 0 {
		return "", fmt.Errorf("%w: note %s", apperr.ErrNotFound, id)
	}
	return owner, nil
}

// Delete removes the note and returns its owner for cache invalidation.
func (s *Store) Delete(ctx context.Context, id NoteID) (UserID, error) {
	owner, err := s.OwnerOf(ctx, id)
	if err != nil {
		return "", err
	}

	result := s.db.WithContext(ctx).Where("id = ?", id.String()).Delete(&Note{})
	if result.Error != nil {
		s.logger.Error("note delete failed", zap.Error(result.Error), zap.String("note_id", id.String()))
		return "", result.Error
	}
	if result.RowsAffected == 0 {
		return "", fmt.Errorf("%w: note %s", apperr.ErrNotFound, id)
	}
	return owner, nil
}

// CreateCollaboration grants userID access to noteID. Granting the same pair
// twice reports ErrInvariant; the unique index on (note_id, user_id) backs
// the pre-check, so one revoke always removes the only grant.
func (s *Store) CreateCollaboration(ctx context.Context, noteID NoteID, userID UserID) (string, error) {
	exists, err := s.HasCollaboration(ctx, noteID, userID)
	if err != nil {
		return "", err
	}
	if exists {
		return "", fmt.Errorf("%w: collaboration already granted", apperr.ErrInvariant)
	}

	rawID, err := s.idProvider.NewID()
	if err != nil {
		return "", err
	}
	grant := Collaboration{
		ID:     collabIDPrefix + rawID,
		NoteID: noteID.String(),
		UserID: userID.String(),
	}
	if err := s.db.WithContext(ctx).Create(&grant).Error; err != nil {
		s.logger.Warn("collaboration insert failed", zap.Error(err),
			zap.String("note_id", noteID.String()), zap.String("user_id", userID.String()))
		return "", fmt.Errorf("%w: collaboration could not be created", apperr.ErrInvariant)
	}
	return grant.ID, nil
}

// DeleteCollaboration revokes the grant for the (note, user) pair.
func (s *Store) DeleteCollaboration(ctx context.Context, noteID NoteID, userID UserID) error {
	result := s.db.WithContext(ctx).
		Where("note_id = ? AND user_id = ?", noteID.String(), userID.String()).
		Delete(&Collaboration{})
	if result.Error != nil {
		s.logger.Error("collaboration delete failed", zap.Error(result.Error),
			zap.String("note_id", noteID.String()), zap.String("user_id", userID.String()))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: collaboration could not be deleted", apperr.ErrInvariant)
	}
	return nil
}

// HasCollaboration reports whether a grant for the (note, user) pair exists.
func (s *Store) HasCollaboration(ctx context.Context, noteID NoteID, userID UserID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Collaboration{}).
		Where("note_id = ? AND user_id = ?", noteID.String(), userID.String()).
		Count(&count).Error
	if err != nil {
		s.logger.Error("collaboration lookup failed", zap.Error(err),
			zap.String("note_id", noteID.String()), zap.String("user_id", userID.String()))
		return false, err
	}
	return count > 0, nil
}
