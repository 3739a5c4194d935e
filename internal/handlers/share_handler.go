package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/compareyuv/backend/internal/middleware"
	"github.com/compareyuv/backend/internal/ratelimit"
	"github.com/compareyuv/backend/internal/repositories"
	"github.com/compareyuv/backend/validators"
	"github.com/labstack/echo/v4"
)

// ShareHandler serves the public, unauthenticated read path for posts whose
// owner explicitly marked them as shared
type ShareHandler struct {
	postRepository repositories.PostRepository
}

// NewShareHandler creates a new ShareHandler
func NewShareHandler(postRepo repositories.PostRepository) *ShareHandler {
	return &ShareHandler{postRepository: postRepo}
}

// RegisterShareRoutes registers the public share-view route
func (h *ShareHandler) RegisterShareRoutes(e *echo.Echo, limiter *ratelimit.Store, env string) {
	e.GET("/share/:id", h.GetSharedPost, middleware.RateLimitMiddleware(limiter, ratelimit.ClassBurst, env))
}

// GetSharedPost returns a post by ID while it is shared. A malformed ID, a
// missing post and a private post all collapse into the same not-found
// reply; backend faults surface only as a transient category, never as the
// raw upstream error.
func (h *ShareHandler) GetSharedPost(c echo.Context) error {
	postID := c.Param("id")
	if err := validators.ValidatePostID(postID); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Post not found")
	}

	post, err := h.postRepository.GetSharedPost(c.Request().Context(), postID)
	if err != nil {
		if errors.Is(err, repositories.ErrPostNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Post not found")
		}
		log.Printf("Failed to fetch shared post %s: %v", postID, err)
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Temporarily unavailable")
	}

	return c.JSON(http.StatusOK, post)
}
