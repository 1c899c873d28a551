package notes

import (
	"context"
	"errors"
	"fmt"

	"github.com/quillhq/quill/internal/apperr"
)

// Decision is the tagged outcome of an authorization check.
type Decision int

const (
	// DecisionNotFound means the note does not exist. It takes precedence
	// over any permission outcome so a missing note is never reported as a
	// rights problem.
	DecisionNotFound Decision = iota
	// DecisionOwner means the subject owns the note.
	DecisionOwner
	// DecisionCollaborator means the subject holds a collaboration grant.
	DecisionCollaborator
	// DecisionDenied means the subject has no rights on the note.
	DecisionDenied
)

// Access decides whether a subject may act on a note by composing ownership
// and collaboration facts from the record store.
type Access struct {
	store *Store
}

// NewAccess constructs the access-control component.
func NewAccess(store *Store) (*Access, error) {
	if store == nil {
		return nil, errors.New("record store is required")
	}
	return &Access{store: store}, nil
}

// Authorize returns the subject's relationship to the note. The ownership
// check runs first; only an ownership mismatch falls through to the
// collaborator check, never a missing note.
func (a *Access) Authorize(ctx context.Context, noteID NoteID, userID UserID) (Decision, error) {
	owner, err := a.store.OwnerOf(ctx, noteID)
	if errors.Is(err, apperr.ErrNotFound) {
		return DecisionNotFound, nil
	}
	if err != nil {
		return DecisionDenied, err
	}
	if owner == userID {
		return DecisionOwner, nil
	}

	collaborates, err := a.store.HasCollaboration(ctx, noteID, userID)
	if err != nil {
		return DecisionDenied, err
	}
	if collaborates {
		return DecisionCollaborator, nil
	}
	return DecisionDenied, nil
}

// VerifyOwner succeeds only when the subject owns the note. It guards the
// owner-only mutations: delete, grant, and revoke.
func (a *Access) VerifyOwner(ctx context.Context, noteID NoteID, userID UserID) error {
	owner, err := a.store.OwnerOf(ctx, noteID)
	if err != nil {
		return err
	}
	if owner != userID {
		return fmt.Errorf("%w: not authorized for this resource", apperr.ErrForbidden)
	}
	return nil
}

// VerifyAccess succeeds when the subject owns the note or collaborates on it.
func (a *Access) VerifyAccess(ctx context.Context, noteID NoteID, userID UserID) error {
	decision, err := a.Authorize(ctx, noteID, userID)
	if err != nil {
		return err
	}
	switch decision {
	case DecisionOwner, DecisionCollaborator:
		return nil
	case DecisionNotFound:
		return fmt.Errorf("%w: note %s", apperr.ErrNotFound, noteID)
	default:
		return fmt.Errorf("%w: not authorized for this resource", apperr.ErrForbidden)
	}
}
