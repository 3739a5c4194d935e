package repositories

import (
	"context"
	"errors"

	"github.com/compareyuv/backend/internal/models"
	"gorm.io/gorm"
)

// ErrPostNotFound is returned when a post does not exist or is not owned by
// the requesting user. The two cases are deliberately indistinguishable so
// the existence of other users' posts never leaks.
var ErrPostNotFound = errors.New("post not found")

// PostRepository defines the interface for post data operations.
// Every owner-scoped operation filters by user ID inside the query itself
// rather than trusting application-level checks.
type PostRepository interface {
	CreatePost(ctx context.Context, post *models.Post) error
	GetPostsByUserID(ctx context.Context, userID string) ([]models.Post, error)
	GetOwnedPost(ctx context.Context, id, userID string) (*models.Post, error)
	GetSharedPost(ctx context.Context, id string) (*models.Post, error)
	UpdatePostFlags(ctx context.Context, id, userID string, update models.PostFlagUpdate) error
	DeletePost(ctx context.Context, id, userID string) error
}

// PostgresPostRepository implements PostRepository on PostgreSQL via GORM
type PostgresPostRepository struct {
	db *gorm.DB
}

// NewPostgresPostRepository creates a new PostgresPostRepository
func NewPostgresPostRepository(db *gorm.DB) *PostgresPostRepository {
	return &PostgresPostRepository{db: db}
}

// CreatePost inserts a new post row. ID and CreatedAt are assigned by the
// database.
func (r *PostgresPostRepository) CreatePost(ctx context.Context, post *models.Post) error {
	return r.db.WithContext(ctx).Create(post).Error
}

// GetPostsByUserID returns all posts owned by userID, newest first
func (r *PostgresPostRepository) GetPostsByUserID(ctx context.Context, userID string) ([]models.Post, error) {
	var posts []models.Post
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&posts).Error
	if err != nil {
		return nil, err
	}
	return posts, nil
}

// GetOwnedPost retrieves a single post only if it belongs to userID
func (r *PostgresPostRepository) GetOwnedPost(ctx context.Context, id, userID string) (*models.Post, error) {
	var post models.Post
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&post).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	return &post, nil
}

// GetSharedPost retrieves a single post only while its owner has marked it
// shared. An absent row and a private row report the same not-found error.
func (r *PostgresPostRepository) GetSharedPost(ctx context.Context, id string) (*models.Post, error) {
	var post models.Post
	err := r.db.WithContext(ctx).
		Where("id = ? AND is_shared = ?", id, true).
		First(&post).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	return &post, nil
}

// UpdatePostFlags applies the provided subset of mutable flags to a post
// owned by userID. Fields left nil are not touched.
func (r *PostgresPostRepository) UpdatePostFlags(ctx context.Context, id, userID string, update models.PostFlagUpdate) error {
	if update.Empty() {
		return nil
	}

	fields := map[string]interface{}{}
	if update.IsFavorite != nil {
		fields["is_favorite"] = *update.IsFavorite
	}
	if update.IsShared != nil {
		fields["is_shared"] = *update.IsShared
	}

	res := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrPostNotFound
	}
	return nil
}

// DeletePost removes a post row owned by userID
func (r *PostgresPostRepository) DeletePost(ctx context.Context, id, userID string) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.Post{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrPostNotFound
	}
	return nil
}
