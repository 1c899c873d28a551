package notes

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/quillhq/quill/internal/cache"
)

// DirectoryConfig describes the dependencies for the note directory.
type DirectoryConfig struct {
	Store    *Store
	Access   *Access
	Cache    cache.Cache
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// Directory orchestrates note CRUD: it applies access control before every
// mutation and keeps the visibility cache consistent with the record store.
// Invalidation runs after the store write and before the call returns; a
// crash between the two leaves a stale entry for at most one TTL.
type Directory struct {
	store    *Store
	access   *Access
	cache    cache.Cache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewDirectory constructs the note directory.
func NewDirectory(cfg DirectoryConfig) (*Directory, error) {
	if cfg.Store == nil {
		return nil, errors.New("record store is required")
	}
	if cfg.Access == nil {
		return nil, errors.New("access control is required")
	}
	if cfg.Cache == nil {
		return nil, errors.New("cache is required")
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Directory{
		store:    cfg.Store,
		access:   cfg.Access,
		cache:    cfg.Cache,
		cacheTTL: ttl,
		logger:   logger,
	}, nil
}

// Create inserts a new note and invalidates the owner's visibility list.
func (d *Directory) Create(ctx context.Context, input CreateInput) (NoteID, error) {
	id, err := d.store.Create(ctx, input)
	if err != nil {
		return "", err
	}
	if err := d.invalidate(ctx, input.Owner); err != nil {
		return "", err
	}
	return id, nil
}

// List returns the notes visible to the subject through a read-through
// cache. An empty result list is still cached; there is no negative caching
// beyond that.
func (d *Directory) List(ctx context.Context, subjectID UserID) ([]View, error) {
	key := cache.NotesKey(subjectID.String())

	serialized, err := d.cache.Get(ctx, key)
	if err == nil {
		var views []View
		if unmarshalErr := json.Unmarshal([]byte(serialized), &views); unmarshalErr == nil {
			return views, nil
		}
		// A corrupt entry is treated as a miss and rebuilt below.
		d.logger.Warn("cached note list unreadable", zap.String("key", key))
	} else if !errors.Is(err, cache.ErrMiss) {
		// A cache backend fault must not take down the read path.
		d.logger.Warn("cache read failed", zap.Error(err), zap.String("key", key))
	}

	views, err := d.store.ListVisibleTo(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(views)
	if err != nil {
		return nil, err
	}
	if err := d.cache.Set(ctx, key, string(raw), d.cacheTTL); err != nil {
		return nil, err
	}
	return views, nil
}

// Get returns a single note after verifying the subject may see it.
func (d *Directory) Get(ctx context.Context, noteID NoteID, userID UserID) (View, error) {
	if err := d.access.VerifyAccess(ctx, noteID, userID); err != nil {
		return View{}, err
	}
	return d.store.GetByID(ctx, noteID)
}

// Edit rewrites a note's mutable fields. Both the owner and collaborators
// may edit; the invalidated entry belongs to the note's owner, not
// necessarily the editing user.
func (d *Directory) Edit(ctx context.Context, noteID NoteID, userID UserID, input UpdateInput) error {
	if err := d.access.VerifyAccess(ctx, noteID, userID); err != nil {
		return err
	}
	owner, err := d.store.Update(ctx, noteID, input)
	if err != nil {
		return err
	}
	return d.invalidate(ctx, owner)
}

// Delete removes a note. Only the owner may delete, even though
// collaborators may edit.
func (d *Directory) Delete(ctx context.Context, noteID NoteID, userID UserID) error {
	if err := d.access.VerifyOwner(ctx, noteID, userID); err != nil {
		return err
	}
	owner, err := d.store.Delete(ctx, noteID)
	if err != nil {
		return err
	}
	return d.invalidate(ctx, owner)
}

// AddCollaborator grants collaboratorID access to the note. The invalidated
// entry is the newly granted user's; the owner's visibility is unaffected.
func (d *Directory) AddCollaborator(ctx context.Context, noteID NoteID, userID, collaboratorID UserID) (string, error) {
	if err := d.access.VerifyOwner(ctx, noteID, userID); err != nil {
		return "", err
	}
	grantID, err := d.store.CreateCollaboration(ctx, noteID, collaboratorID)
	if err != nil {
		return "", err
	}
	if err := d.invalidate(ctx, collaboratorID); err != nil {
		return "", err
	}
	return grantID, nil
}

// RemoveCollaborator revokes collaboratorID's access to the note.
func (d *Directory) RemoveCollaborator(ctx context.Context, noteID NoteID, userID, collaboratorID UserID) error {
	if err := d.access.VerifyOwner(ctx, noteID, userID); err != nil {
		return err
	}
	if err := d.store.DeleteCollaboration(ctx, noteID, collaboratorID); err != nil {
		return err
	}
	return d.invalidate(ctx, collaboratorID)
}

func (d *Directory) invalidate(ctx context.Context, subjectID UserID) error {
	key := cache.NotesKey(subjectID.String())
	if err := d.cache.Delete(ctx, key); err != nil {
		d.logger.Error("cache invalidation failed", zap.Error(err), zap.String("key", key))
		return err
	}
	return nil
}
