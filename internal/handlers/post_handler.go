package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/compareyuv/backend/internal/middleware"
	"github.com/compareyuv/backend/internal/models"
	"github.com/compareyuv/backend/internal/ratelimit"
	"github.com/compareyuv/backend/internal/repositories"
	"github.com/compareyuv/backend/internal/storage"
	"github.com/compareyuv/backend/validators"
	"github.com/labstack/echo/v4"
)

// PostHandler handles HTTP requests related to comparison posts
type PostHandler struct {
	postRepository repositories.PostRepository
	objectStore    storage.ObjectStore
}

// NewPostHandler creates a new PostHandler
func NewPostHandler(postRepo repositories.PostRepository, objectStore storage.ObjectStore) *PostHandler {
	return &PostHandler{
		postRepository: postRepo,
		objectStore:    objectStore,
	}
}

// RegisterPostRoutes registers post CRUD routes on the authenticated group,
// each throttled by its own operation class
func (h *PostHandler) RegisterPostRoutes(g *echo.Group, limiter *ratelimit.Store, env string) {
	g.GET("/posts", h.GetPosts, middleware.RateLimitMiddleware(limiter, ratelimit.ClassRead, env))
	g.POST("/posts", h.CreatePost, middleware.RateLimitMiddleware(limiter, ratelimit.ClassUpload, env))
	g.PATCH("/posts", h.UpdatePost, middleware.RateLimitMiddleware(limiter, ratelimit.ClassUpdate, env))
	g.DELETE("/posts", h.DeletePost, middleware.RateLimitMiddleware(limiter, ratelimit.ClassDelete, env))
	g.GET("/posts/export", h.ExportPosts, middleware.RateLimitMiddleware(limiter, ratelimit.ClassStrict, env))
}

// currentUserID extracts the authenticated Firebase UID set by the auth
// middleware
func currentUserID(c echo.Context) (string, error) {
	uid, ok := c.Get("firebaseUID").(string)
	if !ok || uid == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
	}
	return uid, nil
}

// GetPosts returns all posts owned by the caller, newest first. An empty
// collection is a valid response, not an error.
func (h *PostHandler) GetPosts(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	posts, err := h.postRepository.GetPostsByUserID(c.Request().Context(), userID)
	if err != nil {
		log.Printf("Failed to fetch posts for user %s: %v", userID, err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if posts == nil {
		posts = []models.Post{}
	}

	return c.JSON(http.StatusOK, posts)
}

// CreatePost uploads the before and after images, resolves their public
// URLs and inserts the post row. The two uploads and the insert are not
// atomic: a failure part-way through leaves already-uploaded blobs behind.
func (h *PostHandler) CreatePost(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	beforeFile, beforeErr := c.FormFile("before")
	afterFile, afterErr := c.FormFile("after")
	if beforeErr != nil || afterErr != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing before or after image")
	}
	caption := strings.TrimSpace(c.FormValue("caption"))

	result := validators.ValidateInputs(validators.Inputs{
		BeforeFile: &validators.ImageFile{
			Name:     beforeFile.Filename,
			Size:     beforeFile.Size,
			MIMEType: beforeFile.Header.Get("Content-Type"),
		},
		AfterFile: &validators.ImageFile{
			Name:     afterFile.Filename,
			Size:     afterFile.Size,
			MIMEType: afterFile.Header.Get("Content-Type"),
		},
		Caption: &caption,
	})
	if !result.Valid {
		return echo.NewHTTPError(http.StatusBadRequest, strings.Join(result.Errors, "; "))
	}
	for _, warning := range result.Warnings {
		log.Printf("Create post warning for user %s: %s", userID, warning)
	}

	ctx := c.Request().Context()

	beforeURL, err := h.uploadImage(ctx, userID, "before", beforeFile)
	if err != nil {
		log.Printf("Failed to upload before image for user %s: %v", userID, err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	afterURL, err := h.uploadImage(ctx, userID, "after", afterFile)
	if err != nil {
		log.Printf("Failed to upload after image for user %s: %v", userID, err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	post := &models.Post{
		UserID:         userID,
		BeforeImageURL: beforeURL,
		AfterImageURL:  afterURL,
		Caption:        caption,
	}
	if err := h.postRepository.CreatePost(ctx, post); err != nil {
		log.Printf("Failed to create post in database for user %s: %v", userID, err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusCreated, map[string]string{"message": "Post created successfully"})
}

// uploadImage stores one multipart file under the owner's namespace and
// returns its public URL. The timestamp keeps paths unique across repeated
// uploads of the same file name.
func (h *PostHandler) uploadImage(ctx context.Context, userID, kind string, fileHeader *multipart.FileHeader) (string, error) {
	src, err := fileHeader.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	path := fmt.Sprintf("%s/%s-%d-%s", userID, kind, time.Now().UnixMilli(), validators.SanitizeFileName(fileHeader.Filename))
	if err := h.objectStore.Upload(ctx, path, src, fileHeader.Header.Get("Content-Type")); err != nil {
		return "", err
	}
	return h.objectStore.PublicURL(path), nil
}

// UpdatePost applies a partial update to the caller's post. At least one of
// the mutable flags must be provided; only provided flags are modified and
// only they are echoed back.
func (h *PostHandler) UpdatePost(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	var req models.UpdatePostRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := validators.ValidatePostID(req.PostID); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	update := models.PostFlagUpdate{IsFavorite: req.IsFavorite, IsShared: req.IsShared}
	if update.Empty() {
		return echo.NewHTTPError(http.StatusBadRequest, "No fields to update")
	}

	if err := h.postRepository.UpdatePostFlags(c.Request().Context(), req.PostID, userID, update); err != nil {
		if errors.Is(err, repositories.ErrPostNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Post not found")
		}
		log.Printf("Failed to update post %s for user %s: %v", req.PostID, userID, err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	response := map[string]interface{}{"message": "Post updated"}
	if req.IsFavorite != nil {
		response["is_favorite"] = *req.IsFavorite
	}
	if req.IsShared != nil {
		response["is_shared"] = *req.IsShared
	}
	return c.JSON(http.StatusOK, response)
}

// DeletePost removes the caller's post. Blobs are removed best-effort
// first; a storage failure is logged and does not abort the row deletion.
func (h *PostHandler) DeletePost(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	postID := c.QueryParam("id")
	if postID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Post ID is required")
	}
	if err := validators.ValidatePostID(postID); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()

	// Ownership is re-checked at the data layer; absence and foreign
	// ownership are reported identically
	post, err := h.postRepository.GetOwnedPost(ctx, postID, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrPostNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Post not found")
		}
		log.Printf("Failed to fetch post %s for user %s: %v", postID, userID, err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	paths := []string{
		h.objectStore.PathFromURL(post.BeforeImageURL),
		h.objectStore.PathFromURL(post.AfterImageURL),
	}
	if err := h.objectStore.Remove(ctx, paths); err != nil {
		log.Printf("Storage deletion failed for post %s, proceeding with row delete: %v", postID, err)
	}

	if err := h.postRepository.DeletePost(ctx, postID, userID); err != nil {
		if errors.Is(err, repositories.ErrPostNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Post not found")
		}
		log.Printf("Database deletion failed for post %s (user %s): %v", postID, userID, err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Post deleted successfully"})
}

// ExportPosts returns the caller's posts as a downloadable JSON document
func (h *PostHandler) ExportPosts(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	posts, err := h.postRepository.GetPostsByUserID(c.Request().Context(), userID)
	if err != nil {
		log.Printf("Failed to export posts for user %s: %v", userID, err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if posts == nil {
		posts = []models.Post{}
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="posts-export.json"`)
	return c.JSON(http.StatusOK, posts)
}
