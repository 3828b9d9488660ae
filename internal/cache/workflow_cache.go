package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"complaint-workflow-service/internal/models"
)

// NewRedisClient connects to redis. It returns nil when redis is unreachable,
// and callers degrade to working without a cache.
func NewRedisClient(host string, port int, password string, db int) *redis.Client {
	if host == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}

// WorkflowCache caches workflow definitions by id. Definition versions are
// immutable apart from their state, so entries only expire by TTL or on publish.
type WorkflowCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewWorkflowCache creates a cache on client; a nil client disables caching
func NewWorkflowCache(client *redis.Client, ttl time.Duration) *WorkflowCache {
	return &WorkflowCache{client: client, ttl: ttl}
}

func (c *WorkflowCache) cacheKey(id uuid.UUID) string {
	return fmt.Sprintf("complaints:workflow:%s", id.String())
}

// Get returns a cached definition, nil on miss or when caching is disabled
func (c *WorkflowCache) Get(ctx context.Context, id uuid.UUID) (*models.WorkflowDefinition, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}

	data, err := c.client.Get(ctx, c.cacheKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var workflow models.WorkflowDefinition
	if err := json.Unmarshal(data, &workflow); err != nil {
		return nil, err
	}
	return &workflow, nil
}

// Set stores a definition
func (c *WorkflowCache) Set(ctx context.Context, workflow *models.WorkflowDefinition) error {
	if c == nil || c.client == nil {
		return nil
	}

	data, err := json.Marshal(workflow)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.cacheKey(workflow.ID), data, c.ttl).Err()
}

// Invalidate drops a cached definition
func (c *WorkflowCache) Invalidate(ctx context.Context, ids ...uuid.UUID) error {
	if c == nil || c.client == nil || len(ids) == 0 {
		return nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, c.cacheKey(id))
	}
	return c.client.Del(ctx, keys...).Err()
}
