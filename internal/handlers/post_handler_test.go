package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/compareyuv/backend/internal/models"
	"github.com/compareyuv/backend/internal/repositories"
	"github.com/compareyuv/backend/validators"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePostRepo is an in-memory stand-in for the PostgreSQL repository
type fakePostRepo struct {
	mu       sync.Mutex
	posts    map[string]*models.Post
	failWith error
}

func newFakePostRepo() *fakePostRepo {
	return &fakePostRepo{posts: make(map[string]*models.Post)}
}

func (r *fakePostRepo) CreatePost(ctx context.Context, post *models.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	post.ID = uuid.NewString()
	post.CreatedAt = time.Now()
	clone := *post
	r.posts[post.ID] = &clone
	return nil
}

func (r *fakePostRepo) GetPostsByUserID(ctx context.Context, userID string) ([]models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	var posts []models.Post
	for _, p := range r.posts {
		if p.UserID == userID {
			posts = append(posts, *p)
		}
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].CreatedAt.After(posts[j].CreatedAt) })
	return posts, nil
}

func (r *fakePostRepo) GetOwnedPost(ctx context.Context, id, userID string) (*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	p, ok := r.posts[id]
	if !ok || p.UserID != userID {
		return nil, repositories.ErrPostNotFound
	}
	clone := *p
	return &clone, nil
}

func (r *fakePostRepo) GetSharedPost(ctx context.Context, id string) (*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	p, ok := r.posts[id]
	if !ok || !p.IsShared {
		return nil, repositories.ErrPostNotFound
	}
	clone := *p
	return &clone, nil
}

func (r *fakePostRepo) UpdatePostFlags(ctx context.Context, id, userID string, update models.PostFlagUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	p, ok := r.posts[id]
	if !ok || p.UserID != userID {
		return repositories.ErrPostNotFound
	}
	if update.IsFavorite != nil {
		p.IsFavorite = *update.IsFavorite
	}
	if update.IsShared != nil {
		p.IsShared = *update.IsShared
	}
	return nil
}

func (r *fakePostRepo) DeletePost(ctx context.Context, id, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	p, ok := r.posts[id]
	if !ok || p.UserID != userID {
		return repositories.ErrPostNotFound
	}
	delete(r.posts, id)
	return nil
}

func (r *fakePostRepo) seed(userID string, shared bool) *models.Post {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := &models.Post{
		ID:             uuid.NewString(),
		UserID:         userID,
		BeforeImageURL: "https://cdn.test/" + userID + "/before-1-photo.jpg",
		AfterImageURL:  "https://cdn.test/" + userID + "/after-1-photo.jpg",
		IsShared:       shared,
		CreatedAt:      time.Now(),
	}
	r.posts[p.ID] = p
	return p
}

// fakeObjectStore records uploads and removals in memory
type fakeObjectStore struct {
	mu        sync.Mutex
	uploads   map[string][]byte
	removed   []string
	uploadErr error
	removeErr error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{uploads: make(map[string][]byte)}
}

func (s *fakeObjectStore) Upload(ctx context.Context, path string, r io.Reader, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadErr != nil {
		return s.uploadErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.uploads[path] = data
	return nil
}

func (s *fakeObjectStore) Remove(ctx context.Context, paths []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removeErr != nil {
		return s.removeErr
	}
	s.removed = append(s.removed, paths...)
	return nil
}

func (s *fakeObjectStore) PublicURL(path string) string {
	return "https://cdn.test/" + path
}

func (s *fakeObjectStore) PathFromURL(url string) string {
	return strings.TrimPrefix(url, "https://cdn.test/")
}

const (
	testUserID  = "a3bb189e-8bf9-3888-9912-ace4e6543002"
	otherUserID = "b4cc290f-9c0a-4999-aa23-bdf5f7654113"
)

func newTestHandler() (*PostHandler, *fakePostRepo, *fakeObjectStore) {
	repo := newFakePostRepo()
	store := newFakeObjectStore()
	return NewPostHandler(repo, store), repo, store
}

func newAuthedContext(t *testing.T, req *http.Request, userID string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	e.Validator = validators.NewValidator()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if userID != "" {
		c.Set("firebaseUID", userID)
	}
	return c, rec
}

// multipartBody builds a multipart form with optional image parts carrying
// real image content types
func multipartBody(t *testing.T, files map[string][]byte, caption string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for field, content := range files {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="photo.jpg"`, field))
		header.Set("Content-Type", "image/jpeg")
		part, err := w.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	if caption != "" {
		require.NoError(t, w.WriteField("caption", caption))
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func imageBytes() []byte {
	return bytes.Repeat([]byte{0xff}, 2048) // comfortably over the 1 KiB floor
}

func httpErrorCode(t *testing.T, err error) int {
	t.Helper()
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	return httpErr.Code
}

func TestGetPostsRequiresAuth(t *testing.T) {
	h, _, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/posts", nil)
	c, _ := newAuthedContext(t, req, "")

	err := h.GetPosts(c)
	assert.Equal(t, http.StatusUnauthorized, httpErrorCode(t, err))
}

func TestGetPostsEmptyIsOK(t *testing.T) {
	h, _, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/posts", nil)
	c, rec := newAuthedContext(t, req, testUserID)

	require.NoError(t, h.GetPosts(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestGetPostsReturnsOwnPostsNewestFirst(t *testing.T) {
	h, repo, _ := newTestHandler()
	first := repo.seed(testUserID, false)
	second := repo.seed(testUserID, false)
	second.CreatedAt = first.CreatedAt.Add(time.Minute)
	repo.seed(otherUserID, false) // someone else's post must not appear

	req := httptest.NewRequest(http.MethodGet, "/posts", nil)
	c, rec := newAuthedContext(t, req, testUserID)
	require.NoError(t, h.GetPosts(c))

	var posts []models.Post
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &posts))
	require.Len(t, posts, 2)
	assert.Equal(t, second.ID, posts[0].ID)
	assert.Equal(t, first.ID, posts[1].ID)
}

func TestCreatePost(t *testing.T) {
	t.Run("creates row with two distinct image URLs", func(t *testing.T) {
		h, repo, store := newTestHandler()
		body, contentType := multipartBody(t, map[string][]byte{
			"before": imageBytes(),
			"after":  imageBytes(),
		}, "my caption")
		req := httptest.NewRequest(http.MethodPost, "/posts", body)
		req.Header.Set(echo.HeaderContentType, contentType)
		c, rec := newAuthedContext(t, req, testUserID)

		require.NoError(t, h.CreatePost(c))
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Len(t, store.uploads, 2)

		require.Len(t, repo.posts, 1)
		for _, p := range repo.posts {
			assert.Equal(t, testUserID, p.UserID)
			assert.Equal(t, "my caption", p.Caption)
			assert.NotEmpty(t, p.BeforeImageURL)
			assert.NotEmpty(t, p.AfterImageURL)
			assert.NotEqual(t, p.BeforeImageURL, p.AfterImageURL)
			assert.True(t, strings.Contains(p.BeforeImageURL, testUserID+"/before-"))
			assert.True(t, strings.Contains(p.AfterImageURL, testUserID+"/after-"))
		}
	})

	t.Run("accepts opaque auth provider UIDs as owners", func(t *testing.T) {
		// Firebase UIDs are ~28-char base62 strings, not UUIDs
		const firebaseUID = "fZk3hW9qXcVbN2mL5pR8tYdA1Gs2"
		h, repo, _ := newTestHandler()
		body, contentType := multipartBody(t, map[string][]byte{
			"before": imageBytes(),
			"after":  imageBytes(),
		}, "")
		req := httptest.NewRequest(http.MethodPost, "/posts", body)
		req.Header.Set(echo.HeaderContentType, contentType)
		c, rec := newAuthedContext(t, req, firebaseUID)

		require.NoError(t, h.CreatePost(c))
		assert.Equal(t, http.StatusCreated, rec.Code)
		require.Len(t, repo.posts, 1)
		for _, p := range repo.posts {
			assert.Equal(t, firebaseUID, p.UserID)
			assert.Contains(t, p.BeforeImageURL, firebaseUID+"/before-")
		}
	})

	t.Run("missing after image is a 400 and nothing is stored", func(t *testing.T) {
		h, repo, store := newTestHandler()
		body, contentType := multipartBody(t, map[string][]byte{"before": imageBytes()}, "")
		req := httptest.NewRequest(http.MethodPost, "/posts", body)
		req.Header.Set(echo.HeaderContentType, contentType)
		c, _ := newAuthedContext(t, req, testUserID)

		err := h.CreatePost(c)
		assert.Equal(t, http.StatusBadRequest, httpErrorCode(t, err))
		assert.Empty(t, store.uploads)
		assert.Empty(t, repo.posts)
	})

	t.Run("unsafe caption is a 400 before any upload", func(t *testing.T) {
		h, repo, store := newTestHandler()
		body, contentType := multipartBody(t, map[string][]byte{
			"before": imageBytes(),
			"after":  imageBytes(),
		}, `<script>alert(1)</script>`)
		req := httptest.NewRequest(http.MethodPost, "/posts", body)
		req.Header.Set(echo.HeaderContentType, contentType)
		c, _ := newAuthedContext(t, req, testUserID)

		err := h.CreatePost(c)
		assert.Equal(t, http.StatusBadRequest, httpErrorCode(t, err))
		assert.Empty(t, store.uploads)
		assert.Empty(t, repo.posts)
	})

	t.Run("undersized image is a 400", func(t *testing.T) {
		h, _, _ := newTestHandler()
		body, contentType := multipartBody(t, map[string][]byte{
			"before": bytes.Repeat([]byte{0xff}, 100),
			"after":  imageBytes(),
		}, "")
		req := httptest.NewRequest(http.MethodPost, "/posts", body)
		req.Header.Set(echo.HeaderContentType, contentType)
		c, _ := newAuthedContext(t, req, testUserID)

		err := h.CreatePost(c)
		assert.Equal(t, http.StatusBadRequest, httpErrorCode(t, err))
	})

	t.Run("upload failure is a 500 and no row is inserted", func(t *testing.T) {
		h, repo, store := newTestHandler()
		store.uploadErr = errors.New("bucket unavailable")
		body, contentType := multipartBody(t, map[string][]byte{
			"before": imageBytes(),
			"after":  imageBytes(),
		}, "")
		req := httptest.NewRequest(http.MethodPost, "/posts", body)
		req.Header.Set(echo.HeaderContentType, contentType)
		c, _ := newAuthedContext(t, req, testUserID)

		err := h.CreatePost(c)
		assert.Equal(t, http.StatusInternalServerError, httpErrorCode(t, err))
		assert.Empty(t, repo.posts)
	})

	t.Run("row insert failure leaves uploaded blobs behind", func(t *testing.T) {
		h, repo, store := newTestHandler()
		repo.failWith = errors.New("insert failed")
		body, contentType := multipartBody(t, map[string][]byte{
			"before": imageBytes(),
			"after":  imageBytes(),
		}, "")
		req := httptest.NewRequest(http.MethodPost, "/posts", body)
		req.Header.Set(echo.HeaderContentType, contentType)
		c, _ := newAuthedContext(t, req, testUserID)

		err := h.CreatePost(c)
		assert.Equal(t, http.StatusInternalServerError, httpErrorCode(t, err))
		// no compensation: both uploads stay orphaned
		assert.Len(t, store.uploads, 2)
	})

	t.Run("requires auth", func(t *testing.T) {
		h, _, _ := newTestHandler()
		req := httptest.NewRequest(http.MethodPost, "/posts", nil)
		c, _ := newAuthedContext(t, req, "")

		err := h.CreatePost(c)
		assert.Equal(t, http.StatusUnauthorized, httpErrorCode(t, err))
	})
}

func patchRequest(t *testing.T, payload string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPatch, "/posts", strings.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestUpdatePost(t *testing.T) {
	t.Run("missing post id is a 400", func(t *testing.T) {
		h, _, _ := newTestHandler()
		c, _ := newAuthedContext(t, patchRequest(t, `{"is_favorite": true}`), testUserID)

		err := h.UpdatePost(c)
		assert.Equal(t, http.StatusBadRequest, httpErrorCode(t, err))
	})

	t.Run("malformed post id is a 400", func(t *testing.T) {
		h, _, _ := newTestHandler()
		c, _ := newAuthedContext(t, patchRequest(t, `{"postId": "nope", "is_favorite": true}`), testUserID)

		err := h.UpdatePost(c)
		assert.Equal(t, http.StatusBadRequest, httpErrorCode(t, err))
	})

	t.Run("empty update payload is a 400 and mutates nothing", func(t *testing.T) {
		h, repo, _ := newTestHandler()
		post := repo.seed(testUserID, false)
		c, _ := newAuthedContext(t, patchRequest(t, fmt.Sprintf(`{"postId": %q}`, post.ID)), testUserID)

		err := h.UpdatePost(c)
		assert.Equal(t, http.StatusBadRequest, httpErrorCode(t, err))
		assert.False(t, repo.posts[post.ID].IsFavorite)
		assert.False(t, repo.posts[post.ID].IsShared)
	})

	t.Run("sets only the provided flag and echoes it", func(t *testing.T) {
		h, repo, _ := newTestHandler()
		post := repo.seed(testUserID, true)
		c, rec := newAuthedContext(t, patchRequest(t, fmt.Sprintf(`{"postId": %q, "is_favorite": true}`, post.ID)), testUserID)

		require.NoError(t, h.UpdatePost(c))
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, true, resp["is_favorite"])
		assert.NotContains(t, resp, "is_shared", "only provided fields are echoed back")

		assert.True(t, repo.posts[post.ID].IsFavorite)
		assert.True(t, repo.posts[post.ID].IsShared, "unprovided flag is untouched")
	})

	t.Run("repeating the same update is idempotent", func(t *testing.T) {
		h, repo, _ := newTestHandler()
		post := repo.seed(testUserID, false)

		for i := 0; i < 2; i++ {
			c, rec := newAuthedContext(t, patchRequest(t, fmt.Sprintf(`{"postId": %q, "is_favorite": true}`, post.ID)), testUserID)
			require.NoError(t, h.UpdatePost(c))
			assert.Equal(t, http.StatusOK, rec.Code)
		}
		assert.True(t, repo.posts[post.ID].IsFavorite)
	})

	t.Run("another user's post reads as not found", func(t *testing.T) {
		h, repo, _ := newTestHandler()
		post := repo.seed(testUserID, false)
		c, _ := newAuthedContext(t, patchRequest(t, fmt.Sprintf(`{"postId": %q, "is_shared": true}`, post.ID)), otherUserID)

		err := h.UpdatePost(c)
		assert.Equal(t, http.StatusNotFound, httpErrorCode(t, err))
		assert.False(t, repo.posts[post.ID].IsShared)
	})
}

func TestDeletePost(t *testing.T) {
	t.Run("missing id is a 400", func(t *testing.T) {
		h, _, _ := newTestHandler()
		req := httptest.NewRequest(http.MethodDelete, "/posts", nil)
		c, _ := newAuthedContext(t, req, testUserID)

		err := h.DeletePost(c)
		assert.Equal(t, http.StatusBadRequest, httpErrorCode(t, err))
	})

	t.Run("removes row and blobs", func(t *testing.T) {
		h, repo, store := newTestHandler()
		post := repo.seed(testUserID, false)
		req := httptest.NewRequest(http.MethodDelete, "/posts?id="+post.ID, nil)
		c, rec := newAuthedContext(t, req, testUserID)

		require.NoError(t, h.DeletePost(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, repo.posts)
		assert.ElementsMatch(t, []string{
			testUserID + "/before-1-photo.jpg",
			testUserID + "/after-1-photo.jpg",
		}, store.removed)
	})

	t.Run("storage failure does not abort the row delete", func(t *testing.T) {
		h, repo, store := newTestHandler()
		store.removeErr = errors.New("bucket unavailable")
		post := repo.seed(testUserID, false)
		req := httptest.NewRequest(http.MethodDelete, "/posts?id="+post.ID, nil)
		c, rec := newAuthedContext(t, req, testUserID)

		require.NoError(t, h.DeletePost(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, repo.posts)
	})

	t.Run("another user's post reads as not found and survives", func(t *testing.T) {
		h, repo, _ := newTestHandler()
		post := repo.seed(testUserID, false)
		req := httptest.NewRequest(http.MethodDelete, "/posts?id="+post.ID, nil)
		c, _ := newAuthedContext(t, req, otherUserID)

		err := h.DeletePost(c)
		assert.Equal(t, http.StatusNotFound, httpErrorCode(t, err))
		assert.Len(t, repo.posts, 1)
	})

	t.Run("absent post reads the same as not owned", func(t *testing.T) {
		h, _, _ := newTestHandler()
		req := httptest.NewRequest(http.MethodDelete, "/posts?id="+uuid.NewString(), nil)
		c, _ := newAuthedContext(t, req, testUserID)

		err := h.DeletePost(c)
		assert.Equal(t, http.StatusNotFound, httpErrorCode(t, err))
	})
}

func TestExportPosts(t *testing.T) {
	h, repo, _ := newTestHandler()
	repo.seed(testUserID, false)
	req := httptest.NewRequest(http.MethodGet, "/posts/export", nil)
	c, rec := newAuthedContext(t, req, testUserID)

	require.NoError(t, h.ExportPosts(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "attachment")

	var posts []models.Post
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &posts))
	assert.Len(t, posts, 1)
}
