package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/render-tgm/server/internal/models"
)

const userTTL = 60 * time.Second

// UserCache shields the users table from a lookup on every authenticated
// request. Entries are short-lived; role changes become visible within
// userTTL at worst, and Invalidate drops an entry immediately when a role
// or profile mutation goes through.
type UserCache struct {
	client *redis.Client
}

func NewUserCache(client *redis.Client) *UserCache {
	return &UserCache{client: client}
}

func userKey(id int64) string {
	return fmt.Sprintf("user:%d", id)
}

func (c *UserCache) Get(ctx context.Context, id int64) (models.User, bool) {
	if c == nil || c.client == nil {
		return models.User{}, false
	}

	data, err := c.client.Get(ctx, userKey(id)).Bytes()
	if err != nil {
		return models.User{}, false
	}

	var user models.User
	if err := json.Unmarshal(data, &user); err != nil {
		return models.User{}, false
	}
	return user, true
}

func (c *UserCache) Set(ctx context.Context, user models.User) {
	if c == nil || c.client == nil {
		return
	}

	data, err := json.Marshal(user)
	if err != nil {
		return
	}
	c.client.Set(ctx, userKey(user.ID), data, userTTL)
}

func (c *UserCache) Invalidate(ctx context.Context, id int64) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Del(ctx, userKey(id))
}
