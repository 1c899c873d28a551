package notes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quillhq/quill/internal/apperr"
	"github.com/quillhq/quill/internal/cache"
)

func newTestDirectory(t *testing.T) (*Directory, *Store, *cache.MemoryCache) {
	t.Helper()

	store, _ := newTestStore(t)
	access, err := NewAccess(store)
	if err != nil {
		t.Fatalf("failed to construct access control: %v", err)
	}
	memCache := cache.NewMemoryCache(cache.MemoryCacheConfig{})
	directory, err := NewDirectory(DirectoryConfig{
		Store:    store,
		Access:   access,
		Cache:    memCache,
		CacheTTL: time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to construct directory: %v", err)
	}
	return directory, store, memCache
}

func assertInvalidated(t *testing.T, memCache *cache.MemoryCache, subjectID string) {
	t.Helper()
	_, err := memCache.Get(context.Background(), cache.NotesKey(subjectID))
	if !errors.Is(err, cache.ErrMiss) {
		t.Fatalf("expected cache entry for %s to be invalidated, got %v", subjectID, err)
	}
}

func TestDirectoryCreateInvalidatesOwnerList(t *testing.T) {
	directory, _, memCache := newTestDirectory(t)
	ctx := context.Background()
	owner := mustUserID(t, "user-a")

	// Warm the cache, then mutate.
	if _, err := directory.List(ctx, owner); err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if _, err := directory.Create(ctx, CreateInput{Title: "n", Body: "b", Owner: owner}); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	assertInvalidated(t, memCache, "user-a")

	views, err := directory.List(ctx, owner)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected rebuilt list with 1 note, got %d", len(views))
	}
}

func TestDirectoryListReadsThroughCache(t *testing.T) {
	directory, store, _ := newTestDirectory(t)
	ctx := context.Background()
	owner := mustUserID(t, "user-a")

	id, err := directory.Create(ctx, CreateInput{Title: "cached", Body: "b", Owner: owner})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	first, err := directory.List(ctx, owner)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("expected 1 note, got %d", len(first))
	}

	// Mutate the store behind the directory's back: the cached list must be
	// served until something invalidates it.
	if _, err := store.Update(ctx, id, UpdateInput{Title: "changed", Body: "b"}); err != nil {
		t.Fatalf("unexpected raw update error: %v", err)
	}
	second, err := directory.List(ctx, owner)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if second[0].Title != "cached" {
		t.Fatalf("expected cache hit to serve stale title, got %q", second[0].Title)
	}
}

func TestDirectoryListCachesEmptyResult(t *testing.T) {
	directory, _, memCache := newTestDirectory(t)
	ctx := context.Background()
	subject := mustUserID(t, "user-empty")

	views, err := directory.List(ctx, subject)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(views) != 0 {
		t.Fatalf("expected empty list, got %d", len(views))
	}
	if _, err := memCache.Get(ctx, cache.NotesKey("user-empty")); err != nil {
		t.Fatalf("an empty result must still be cached: %v", err)
	}
}

func TestDirectoryEditInvalidatesNoteOwnerNotEditor(t *testing.T) {
	directory, store, memCache := newTestDirectory(t)
	ctx := context.Background()
	owner := mustUserID(t, "user-a")
	collaborator := mustUserID(t, "user-b")

	id, err := directory.Create(ctx, CreateInput{Title: "n", Body: "b", Owner: owner})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if _, err := store.CreateCollaboration(ctx, id, collaborator); err != nil {
		t.Fatalf("unexpected grant error: %v", err)
	}

	// Warm both subjects' lists.
	if _, err := directory.List(ctx, owner); err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if _, err := directory.List(ctx, collaborator); err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}

	if err := directory.Edit(ctx, id, collaborator, UpdateInput{Title: "edited", Body: "b"}); err != nil {
		t.Fatalf("collaborator edit must succeed: %v", err)
	}

	assertInvalidated(t, memCache, "user-a")
	if _, err := memCache.Get(ctx, cache.NotesKey("user-b")); err != nil {
		t.Fatalf("the editing collaborator's own entry is deliberately untouched: %v", err)
	}
}

func TestDirectoryDeleteRequiresOwner(t *testing.T) {
	directory, store, memCache := newTestDirectory(t)
	ctx := context.Background()
	owner := mustUserID(t, "user-a")
	collaborator := mustUserID(t, "user-b")

	id, err := directory.Create(ctx, CreateInput{Title: "n", Body: "b", Owner: owner})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if _, err := store.CreateCollaboration(ctx, id, collaborator); err != nil {
		t.Fatalf("unexpected grant error: %v", err)
	}

	if err := directory.Delete(ctx, id, collaborator); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("collaborator delete must be forbidden, got %v", err)
	}

	if _, err := directory.List(ctx, owner); err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if err := directory.Delete(ctx, id, owner); err != nil {
		t.Fatalf("owner delete must succeed: %v", err)
	}
	assertInvalidated(t, memCache, "user-a")

	if _, err := directory.Get(ctx, id, owner); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestDirectoryCollaborationGrantAndRevoke(t *testing.T) {
	directory, _, memCache := newTestDirectory(t)
	ctx := context.Background()
	owner := mustUserID(t, "user-a")
	collaborator := mustUserID(t, "user-b")

	id, err := directory.Create(ctx, CreateInput{Title: "shared", Body: "b", Owner: owner})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	// Only the owner may grant.
	if _, err := directory.AddCollaborator(ctx, id, collaborator, collaborator); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("non-owner grant must be forbidden, got %v", err)
	}

	if _, err := directory.List(ctx, collaborator); err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if _, err := directory.AddCollaborator(ctx, id, owner, collaborator); err != nil {
		t.Fatalf("unexpected grant error: %v", err)
	}
	assertInvalidated(t, memCache, "user-b")

	views, err := directory.List(ctx, collaborator)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(views) != 1 || views[0].ID != id.String() {
		t.Fatalf("collaborator must now see the shared note, got %+v", views)
	}

	if err := directory.RemoveCollaborator(ctx, id, owner, collaborator); err != nil {
		t.Fatalf("unexpected revoke error: %v", err)
	}
	assertInvalidated(t, memCache, "user-b")

	views, err = directory.List(ctx, collaborator)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(views) != 0 {
		t.Fatalf("revoked collaborator must no longer see the note, got %+v", views)
	}
}

func TestDirectoryListExcludesUnrelatedUser(t *testing.T) {
	directory, _, _ := newTestDirectory(t)
	ctx := context.Background()

	if _, err := directory.Create(ctx, CreateInput{Title: "Shopping List", Body: "b", Owner: mustUserID(t, "user-a")}); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	mine, err := directory.List(ctx, mustUserID(t, "user-a"))
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(mine) != 1 || mine[0].Title != "Shopping List" {
		t.Fatalf("owner must see the note, got %+v", mine)
	}

	theirs, err := directory.List(ctx, mustUserID(t, "user-b"))
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(theirs) != 0 {
		t.Fatalf("unrelated user must not see the note, got %+v", theirs)
	}
}
