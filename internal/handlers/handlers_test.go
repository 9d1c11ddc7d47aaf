package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/render-tgm/server/internal/config"
	"github.com/render-tgm/server/internal/models"
	"github.com/render-tgm/server/internal/repository"
	"github.com/render-tgm/server/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testRequest builds a gin context around a recorder, with the given
// account already attached the way the auth middleware would attach it.
func testRequest(t *testing.T, user models.User, method, target string, body any) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	c.Request = httptest.NewRequest(method, target, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set("current_user", user)
	return c, w
}

// decodeArray fails the test unless the body is a bare JSON array, which
// is the shape the SPA reads list responses in.
func decodeArray(t *testing.T, w *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var out []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out),
		"list responses must be bare JSON arrays, got: %s", w.Body.String())
	return out
}

func decodeObject(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

type fakeUserStore struct {
	users map[int64]models.User
}

func newFakeUserStore(users ...models.User) *fakeUserStore {
	f := &fakeUserStore{users: make(map[int64]models.User)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUserStore) GetByID(_ context.Context, id int64) (models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUserStore) UpdateProfile(_ context.Context, id int64, name, email string) error {
	for otherID, other := range f.users {
		if otherID != id && other.Email == email {
			return repository.ErrEmailTaken
		}
	}
	u, ok := f.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.Name, u.Email = name, email
	f.users[id] = u
	return nil
}

func (f *fakeUserStore) UpdateProfilePhoto(_ context.Context, id int64, fileName string) (*string, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	previous := u.ProfilePhoto
	u.ProfilePhoto = &fileName
	f.users[id] = u
	return previous, nil
}

func (f *fakeUserStore) UpdateRole(_ context.Context, id int64, role models.Role) error {
	u, ok := f.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.Role = role
	f.users[id] = u
	return nil
}

func (f *fakeUserStore) List(_ context.Context) ([]models.User, error) {
	out := make([]models.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeUserStore) ListByRole(_ context.Context, role models.Role) ([]models.User, error) {
	var out []models.User
	for _, u := range f.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

// noopUserCache records invalidations and never hits.
type noopUserCache struct {
	invalidated []int64
}

func (n *noopUserCache) Get(context.Context, int64) (models.User, bool) { return models.User{}, false }
func (n *noopUserCache) Set(context.Context, models.User)               {}
func (n *noopUserCache) Invalidate(_ context.Context, id int64) {
	n.invalidated = append(n.invalidated, id)
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Security: config.SecurityConfig{
			JWTSecret:       "test-secret",
			SuperAdminEmail: "root@rendertgm.local",
		},
	}
}

// newTestHandlers wires a HandlerSet against in-memory stores and a
// throwaway uploads directory.
func newTestHandlers(t *testing.T, users *fakeUserStore) (HandlerSet, *noopUserCache, *storage.Layout) {
	t.Helper()
	layout := storage.NewLayout(t.TempDir(), zerolog.Nop())
	cache := &noopUserCache{}
	h := HandlerSet{
		log:       zerolog.Nop(),
		cfg:       testConfig(),
		layout:    layout,
		users:     users,
		userCache: cache,
	}
	return h, cache, layout
}

func requireStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	require.Equal(t, want, w.Code, "body: %s", w.Body.String())
}
