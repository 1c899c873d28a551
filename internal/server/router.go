package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/quillhq/quill/internal/apperr"
	"github.com/quillhq/quill/internal/auth"
	"github.com/quillhq/quill/internal/exports"
	"github.com/quillhq/quill/internal/notes"
	"github.com/quillhq/quill/internal/storage"
	"github.com/quillhq/quill/internal/users"
)

const userIDContextKey = "quill_user_id"

var (
	errMissingUserService   = errors.New("user service dependency required")
	errMissingAuthService   = errors.New("auth service dependency required")
	errMissingDirectory     = errors.New("note directory dependency required")
	errMissingTokenVerifier = errors.New("token verifier dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// AccessTokenVerifier validates bearer tokens on protected routes.
type AccessTokenVerifier interface {
	VerifyAccessToken(token string) (string, error)
}

// Dependencies collects every service the HTTP boundary exposes.
type Dependencies struct {
	Users   *users.Service
	Auth    *auth.Service
	Notes   *notes.Directory
	Exports *exports.Service
	Uploads *storage.LocalStorage
	Tokens  AccessTokenVerifier
	Logger  *zap.Logger
}

// NewHTTPHandler builds the gin router for the API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Users == nil {
		return nil, errMissingUserService
	}
	if deps.Auth == nil {
		return nil, errMissingAuthService
	}
	if deps.Notes == nil {
		return nil, errMissingDirectory
	}
	if deps.Tokens == nil {
		return nil, errMissingTokenVerifier
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		users:   deps.Users,
		auth:    deps.Auth,
		notes:   deps.Notes,
		exports: deps.Exports,
		uploads: deps.Uploads,
		tokens:  deps.Tokens,
		logger:  logger,
	}

	router.POST("/users", handler.handleRegister)
	router.GET("/users/:id", handler.handleGetUser)
	router.POST("/authentications", handler.handleLogin)
	router.PUT("/authentications", handler.handleRefresh)
	router.DELETE("/authentications", handler.handleLogout)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/notes", handler.handleCreateNote)
	protected.GET("/notes", handler.handleListNotes)
	protected.GET("/notes/:id", handler.handleGetNote)
	protected.PUT("/notes/:id", handler.handleEditNote)
	protected.DELETE("/notes/:id", handler.handleDeleteNote)
	protected.POST("/collaborations", handler.handleAddCollaboration)
	protected.DELETE("/collaborations", handler.handleDeleteCollaboration)
	protected.POST("/export/notes", handler.handleExportNotes)

	if deps.Uploads != nil {
		protected.POST("/upload/images", handler.handleUploadImage)
		router.Static("/upload/images", deps.Uploads.Dir())
	}

	return router, nil
}

type httpHandler struct {
	users   *users.Service
	auth    *auth.Service
	notes   *notes.Directory
	exports *exports.Service
	uploads *storage.LocalStorage
	tokens  AccessTokenVerifier
	logger  *zap.Logger
}

// respondError maps the shared error taxonomy to status codes. Anything
// outside the taxonomy is an opaque server fault: logged in full, surfaced
// as a generic message.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperr.ErrInvariant):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed", zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.VerifyAccessToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}

type registerPayload struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	FullName string `json:"fullname" binding:"required"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	id, err := h.users.Register(c.Request.Context(), request.Username, request.Password, request.FullName)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user_id": id})
}

func (h *httpHandler) handleGetUser(c *gin.Context) {
	profile, err := h.users.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": profile})
}

type loginPayload struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	pair, err := h.auth.Login(c.Request.Context(), request.Username, request.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_in":    pair.ExpiresIn,
		"token_type":    "Bearer",
	})
}

type refreshPayload struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (h *httpHandler) handleRefresh(c *gin.Context) {
	var request refreshPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	access, err := h.auth.Refresh(c.Request.Context(), request.RefreshToken)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": access})
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	var request refreshPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if err := h.auth.Logout(c.Request.Context(), request.RefreshToken); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "refresh token revoked"})
}

type notePayload struct {
	Title string   `json:"title" binding:"required"`
	Body  string   `json:"body" binding:"required"`
	Tags  []string `json:"tags"`
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	var request notePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	owner, ok := h.subject(c)
	if !ok {
		return
	}

	id, err := h.notes.Create(c.Request.Context(), notes.CreateInput{
		Title: request.Title,
		Body:  request.Body,
		Tags:  request.Tags,
		Owner: owner,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"note_id": id.String()})
}

func (h *httpHandler) handleListNotes(c *gin.Context) {
	subject, ok := h.subject(c)
	if !ok {
		return
	}

	views, err := h.notes.List(c.Request.Context(), subject)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notes": views})
}

func (h *httpHandler) handleGetNote(c *gin.Context) {
	noteID, subject, ok := h.noteAndSubject(c)
	if !ok {
		return
	}

	view, err := h.notes.Get(c.Request.Context(), noteID, subject)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"note": view})
}

func (h *httpHandler) handleEditNote(c *gin.Context) {
	var request notePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	noteID, subject, ok := h.noteAndSubject(c)
	if !ok {
		return
	}

	err := h.notes.Edit(c.Request.Context(), noteID, subject, notes.UpdateInput{
		Title: request.Title,
		Body:  request.Body,
		Tags:  request.Tags,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "note updated"})
}

func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	noteID, subject, ok := h.noteAndSubject(c)
	if !ok {
		return
	}

	if err := h.notes.Delete(c.Request.Context(), noteID, subject); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "note deleted"})
}

type collaborationPayload struct {
	NoteID string `json:"note_id" binding:"required"`
	UserID string `json:"user_id" binding:"required"`
}

func (h *httpHandler) handleAddCollaboration(c *gin.Context) {
	noteID, collaborator, subject, ok := h.collaborationInput(c)
	if !ok {
		return
	}

	grantID, err := h.notes.AddCollaborator(c.Request.Context(), noteID, subject, collaborator)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"collaboration_id": grantID})
}

func (h *httpHandler) handleDeleteCollaboration(c *gin.Context) {
	noteID, collaborator, subject, ok := h.collaborationInput(c)
	if !ok {
		return
	}

	if err := h.notes.RemoveCollaborator(c.Request.Context(), noteID, subject, collaborator); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "collaboration revoked"})
}

type exportPayload struct {
	TargetEmail string `json:"target_email" binding:"required,email"`
}

func (h *httpHandler) handleExportNotes(c *gin.Context) {
	if h.exports == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "exports disabled"})
		return
	}
	var request exportPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	subject, ok := h.subject(c)
	if !ok {
		return
	}

	if err := h.exports.RequestExport(c.Request.Context(), subject.String(), request.TargetEmail); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "export request queued"})
}

func (h *httpHandler) handleUploadImage(c *gin.Context) {
	fileHeader, err := c.FormFile("data")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	contentType := fileHeader.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payload must be an image"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer file.Close()

	filename, err := h.uploads.Save(file, fileHeader.Filename)
	if err != nil {
		h.respondError(c, err)
		return
	}
	location := fmt.Sprintf("http://%s/upload/images/%s", c.Request.Host, filename)
	c.JSON(http.StatusCreated, gin.H{"file_location": location})
}

func (h *httpHandler) subject(c *gin.Context) (notes.UserID, bool) {
	raw := c.GetString(userIDContextKey)
	subject, err := notes.NewUserID(raw)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	return subject, true
}

func (h *httpHandler) noteAndSubject(c *gin.Context) (notes.NoteID, notes.UserID, bool) {
	subject, ok := h.subject(c)
	if !ok {
		return "", "", false
	}
	noteID, err := notes.NewNoteID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_note_id"})
		return "", "", false
	}
	return noteID, subject, true
}

func (h *httpHandler) collaborationInput(c *gin.Context) (notes.NoteID, notes.UserID, notes.UserID, bool) {
	var request collaborationPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return "", "", "", false
	}
	subject, ok := h.subject(c)
	if !ok {
		return "", "", "", false
	}
	noteID, err := notes.NewNoteID(request.NoteID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_note_id"})
		return "", "", "", false
	}
	collaborator, err := notes.NewUserID(request.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_user_id"})
		return "", "", "", false
	}
	return noteID, collaborator, subject, true
}
