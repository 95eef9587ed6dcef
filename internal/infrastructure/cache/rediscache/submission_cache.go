// Package rediscache keeps finished submissions in Redis in front of the
// primary store. Only done/error records are cached: they never change again.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/kirillkom/plagioguard/internal/core/domain"
	"github.com/kirillkom/plagioguard/internal/core/ports"
)

const (
	DefaultTTL    = 10 * time.Minute
	defaultPrefix = "plagioguard:submission:"
)

func NewClient(url string) (*redis.Client, error) {
	opts := &redis.Options{Addr: url}
	if strings.HasPrefix(url, "redis://") || strings.HasPrefix(url, "rediss://") {
		parsed, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	return redis.NewClient(opts), nil
}

type SubmissionCache struct {
	next   ports.SubmissionRepository
	client redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

func New(next ports.SubmissionRepository, client redis.Cmdable, ttl time.Duration, logger *slog.Logger) *SubmissionCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SubmissionCache{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *SubmissionCache) Create(ctx context.Context, sub *domain.Submission) error {
	return c.next.Create(ctx, sub)
}

func (c *SubmissionCache) GetByID(ctx context.Context, id string) (*domain.Submission, error) {
	key := cacheKey(id)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var sub domain.Submission
		if err := json.Unmarshal(raw, &sub); err == nil {
			return &sub, nil
		}
		c.logger.Warn("submission_cache_decode_failed", "submission_id", id)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("submission_cache_get_failed", "submission_id", id, "error", err)
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		sub, err := c.next.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if sub.Report.Status.IsTerminal() {
			c.store(ctx, key, sub)
		}
		return sub, nil
	})
	if err != nil {
		return nil, err
	}
	sub := *v.(*domain.Submission)
	return &sub, nil
}

func (c *SubmissionCache) SaveFile(ctx context.Context, id string, file domain.FilePointer) error {
	if err := c.next.SaveFile(ctx, id, file); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

func (c *SubmissionCache) TransitionReport(ctx context.Context, id string, report domain.Report) error {
	if err := c.next.TransitionReport(ctx, id, report); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

func (c *SubmissionCache) List(ctx context.Context, filter domain.ListFilter) ([]domain.Submission, error) {
	return c.next.List(ctx, filter)
}

func (c *SubmissionCache) Stats(ctx context.Context, userID string) (domain.SubmissionStats, error) {
	return c.next.Stats(ctx, userID)
}

func (c *SubmissionCache) store(ctx context.Context, key string, sub *domain.Submission) {
	raw, err := json.Marshal(sub)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("submission_cache_set_failed", "submission_id", sub.ID, "error", err)
	}
}

func (c *SubmissionCache) invalidate(ctx context.Context, id string) {
	if err := c.client.Del(ctx, cacheKey(id)).Err(); err != nil {
		c.logger.Warn("submission_cache_del_failed", "submission_id", id, "error", err)
	}
}

func cacheKey(id string) string {
	return defaultPrefix + id
}
