package models

import "time"

// Post represents a before/after comparison stored in PostgreSQL
type Post struct {
	ID             string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID         string    `json:"user_id" gorm:"not null;index"` // Opaque auth UID of the owner, immutable
	BeforeImageURL string    `json:"before_image_url" gorm:"not null"`
	AfterImageURL  string    `json:"after_image_url" gorm:"not null"`
	Caption        string    `json:"caption,omitempty"`
	IsFavorite     bool      `json:"is_favorite" gorm:"not null;default:false"`
	IsShared       bool      `json:"is_shared" gorm:"not null;default:false;index"` // Gates the public share view
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// UpdatePostRequest defines the request body for partially updating a post.
// Only the favorite and shared flags are mutable; at least one must be set.
type UpdatePostRequest struct {
	PostID     string `json:"postId" validate:"required"`
	IsFavorite *bool  `json:"is_favorite,omitempty"`
	IsShared   *bool  `json:"is_shared,omitempty"`
}

// PostFlagUpdate carries the subset of mutable post fields for a partial update
type PostFlagUpdate struct {
	IsFavorite *bool
	IsShared   *bool
}

// Empty reports whether the update would change nothing
func (u PostFlagUpdate) Empty() bool {
	return u.IsFavorite == nil && u.IsShared == nil
}
