package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"complaint-workflow-service/internal/models"
)

func TestNewRedisClient_DisabledWithoutHost(t *testing.T) {
	assert.Nil(t, NewRedisClient("", 6379, "", 0))
}

func TestWorkflowCache_WithoutRedis(t *testing.T) {
	c := NewWorkflowCache(nil, time.Minute)
	ctx := context.Background()
	workflow := &models.WorkflowDefinition{ID: uuid.New(), Category: models.CategoryRoads}

	require.NoError(t, c.Set(ctx, workflow))
	got, err := c.Get(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, c.Invalidate(ctx, workflow.ID))

	var disabled *WorkflowCache
	got, err = disabled.Get(ctx, workflow.ID)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestScanLock_WithoutRedisAlwaysAcquires(t *testing.T) {
	lock := NewScanLock(nil, "complaints:sla-scan:lock", time.Minute)

	release, acquired, err := lock.Acquire(context.Background())

	require.NoError(t, err)
	assert.True(t, acquired)
	assert.NotPanics(t, release)
}
