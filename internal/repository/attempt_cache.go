package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const activeAttemptKeyPrefix = "quiz:active_attempt:"

// ActiveAttemptCache 进行中作答的提示缓存，只做参考，读到后必须回库校验。
// rdb 为 nil 时所有操作都是空操作。
type ActiveAttemptCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewActiveAttemptCache(rdb *redis.Client, ttl time.Duration) *ActiveAttemptCache {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &ActiveAttemptCache{rdb: rdb, ttl: ttl}
}

func activeAttemptKey(quizID, studentID uint) string {
	return fmt.Sprintf("%s%d:%d", activeAttemptKeyPrefix, quizID, studentID)
}

func (c *ActiveAttemptCache) Get(ctx context.Context, quizID, studentID uint) (uint, bool) {
	if c == nil || c.rdb == nil {
		return 0, false
	}
	val, err := c.rdb.Get(ctx, activeAttemptKey(quizID, studentID)).Result()
	if err != nil {
		return 0, false
	}
	id, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}

func (c *ActiveAttemptCache) Set(ctx context.Context, quizID, studentID, attemptID uint) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Set(ctx, activeAttemptKey(quizID, studentID), attemptID, c.ttl).Err()
}

func (c *ActiveAttemptCache) Delete(ctx context.Context, quizID, studentID uint) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, activeAttemptKey(quizID, studentID)).Err()
}
