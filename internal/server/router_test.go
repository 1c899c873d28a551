package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/quillhq/quill/internal/auth"
	"github.com/quillhq/quill/internal/cache"
	"github.com/quillhq/quill/internal/exports"
	"github.com/quillhq/quill/internal/identifier"
	"github.com/quillhq/quill/internal/notes"
	"github.com/quillhq/quill/internal/storage"
	"github.com/quillhq/quill/internal/users"
)

type nullPublisher struct {
	published int
}

func (p *nullPublisher) Publish(context.Context, string, []byte) error {
	p.published++
	return nil
}

func newTestHandler(t *testing.T) (http.Handler, *nullPublisher) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:server_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&users.User{}, &notes.Note{}, &notes.Collaboration{}, &auth.RefreshToken{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	idProvider := identifier.NewUUIDProvider()
	userService, err := users.NewService(users.ServiceConfig{Database: db, IDProvider: idProvider})
	if err != nil {
		t.Fatalf("failed to construct user service: %v", err)
	}

	issuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
	})
	refreshStore, err := auth.NewRefreshStore(db)
	if err != nil {
		t.Fatalf("failed to construct refresh store: %v", err)
	}
	authService, err := auth.NewService(auth.ServiceConfig{Users: userService, Tokens: issuer, Store: refreshStore})
	if err != nil {
		t.Fatalf("failed to construct auth service: %v", err)
	}

	noteStore, err := notes.NewStore(notes.StoreConfig{Database: db, IDProvider: idProvider})
	if err != nil {
		t.Fatalf("failed to construct note store: %v", err)
	}
	access, err := notes.NewAccess(noteStore)
	if err != nil {
		t.Fatalf("failed to construct access control: %v", err)
	}
	directory, err := notes.NewDirectory(notes.DirectoryConfig{
		Store:  noteStore,
		Access: access,
		Cache:  cache.NewMemoryCache(cache.MemoryCacheConfig{}),
	})
	if err != nil {
		t.Fatalf("failed to construct directory: %v", err)
	}

	publisher := &nullPublisher{}
	exportService, err := exports.NewService(exports.ServiceConfig{Publisher: publisher})
	if err != nil {
		t.Fatalf("failed to construct export service: %v", err)
	}
	uploads, err := storage.NewLocalStorage(storage.LocalStorageConfig{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to construct storage: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Users:   userService,
		Auth:    authService,
		Notes:   directory,
		Exports: exportService,
		Uploads: uploads,
		Tokens:  issuer,
	})
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}
	return handler, publisher
}

func performRequest(t *testing.T, handler http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var decoded map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return decoded
}

func registerAndLogin(t *testing.T, handler http.Handler, username string) (userID, accessToken string) {
	t.Helper()

	body := fmt.Sprintf(`{"username":%q,"password":"secret-password","fullname":"Test User"}`, username)
	recorder := performRequest(t, handler, http.MethodPost, "/users", body, "")
	if recorder.Code != http.StatusCreated {
		t.Fatalf("register failed with %d: %s", recorder.Code, recorder.Body.String())
	}
	userID = decodeBody(t, recorder)["user_id"].(string)

	body = fmt.Sprintf(`{"username":%q,"password":"secret-password"}`, username)
	recorder = performRequest(t, handler, http.MethodPost, "/authentications", body, "")
	if recorder.Code != http.StatusCreated {
		t.Fatalf("login failed with %d: %s", recorder.Code, recorder.Body.String())
	}
	accessToken = decodeBody(t, recorder)["access_token"].(string)
	return userID, accessToken
}
