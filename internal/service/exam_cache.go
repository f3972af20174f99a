package service

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"exam_platform_backend/internal/model"
	"exam_platform_backend/pkg/logger"
	"exam_platform_backend/pkg/monitoring"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const examCacheKeyPrefix = "exam:detail:"

// ExamCache is an optional read-through cache of full exam definitions.
// Every method degrades to a miss or a no-op when the backend fails.
type ExamCache interface {
	Get(ctx context.Context, examID string) (*model.Exam, bool)
	Set(ctx context.Context, exam *model.Exam)
	Invalidate(ctx context.Context, examID string)
}

type RedisExamCache struct {
	Redis *redis.Client
	ttl   atomic.Int64
}

// NewExamCache returns a no-op cache when rdb is nil.
func NewExamCache(rdb *redis.Client, ttl time.Duration) ExamCache {
	if rdb == nil {
		return noopExamCache{}
	}
	c := &RedisExamCache{Redis: rdb}
	c.SetTTL(ttl)
	return c
}

// SetTTL changes the expiry used for new entries; zero disables writes.
func (c *RedisExamCache) SetTTL(ttl time.Duration) {
	c.ttl.Store(int64(ttl))
}

func (c *RedisExamCache) TTL() time.Duration {
	return time.Duration(c.ttl.Load())
}

func (c *RedisExamCache) Get(ctx context.Context, examID string) (*model.Exam, bool) {
	if c.TTL() <= 0 {
		return nil, false
	}
	val, err := c.Redis.Get(ctx, examCacheKeyPrefix+examID).Result()
	if err == redis.Nil {
		monitoring.CacheRequests.WithLabelValues("miss").Inc()
		return nil, false
	}
	if err != nil {
		monitoring.CacheRequests.WithLabelValues("error").Inc()
		logger.Log.Warn("exam cache read failed", zap.String("exam_id", examID), zap.Error(err))
		return nil, false
	}
	var exam model.Exam
	if err := json.Unmarshal([]byte(val), &exam); err != nil {
		monitoring.CacheRequests.WithLabelValues("error").Inc()
		c.Invalidate(ctx, examID)
		return nil, false
	}
	monitoring.CacheRequests.WithLabelValues("hit").Inc()
	return &exam, true
}

func (c *RedisExamCache) Set(ctx context.Context, exam *model.Exam) {
	ttl := c.TTL()
	if ttl <= 0 {
		return
	}
	data, err := json.Marshal(exam)
	if err != nil {
		return
	}
	if err := c.Redis.Set(ctx, examCacheKeyPrefix+exam.ID, data, ttl).Err(); err != nil {
		logger.Log.Warn("exam cache write failed", zap.String("exam_id", exam.ID), zap.Error(err))
	}
}

func (c *RedisExamCache) Invalidate(ctx context.Context, examID string) {
	if err := c.Redis.Del(ctx, examCacheKeyPrefix+examID).Err(); err != nil {
		logger.Log.Warn("exam cache invalidate failed", zap.String("exam_id", examID), zap.Error(err))
	}
}

type noopExamCache struct{}

func (noopExamCache) Get(context.Context, string) (*model.Exam, bool) { return nil, false }
func (noopExamCache) Set(context.Context, *model.Exam)                {}
func (noopExamCache) Invalidate(context.Context, string)              {}
