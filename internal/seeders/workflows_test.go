package seeders

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"complaint-workflow-service/internal/clock"
	"complaint-workflow-service/internal/models"
	"complaint-workflow-service/internal/repository"
	"complaint-workflow-service/internal/services"
)

const exampleFile = "../../deploy/workflows.example.json"

func newRegistry() *services.WorkflowRegistry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return services.NewWorkflowRegistry(repository.NewMemoryRepository(), nil, clock.System(), logger)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestExampleFileCoversEveryCategory(t *testing.T) {
	drafts, err := LoadWorkflowFile(exampleFile)
	require.NoError(t, err)

	registry := newRegistry()
	categories := make([]string, 0, len(drafts))
	for _, draft := range drafts {
		assert.Empty(t, registry.Validate(draft), "workflow for %s", draft.Category)
		categories = append(categories, draft.Category)
	}
	assert.ElementsMatch(t, models.Categories, categories)
}

func TestSeedWorkflows_PublishesOncePerCategory(t *testing.T) {
	drafts, err := LoadWorkflowFile(exampleFile)
	require.NoError(t, err)
	registry := newRegistry()
	ctx := context.Background()

	seeded, err := SeedWorkflows(ctx, registry, drafts, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, len(drafts), seeded)

	active, err := registry.GetActiveDefinition(ctx, models.CategoryWaterSupply)
	require.NoError(t, err)
	assert.Equal(t, 1, active.Version)
	assert.Equal(t, SeedActor.ID, active.CreatedBy)

	again, err := SeedWorkflows(ctx, registry, drafts, quietLogger())
	require.NoError(t, err)
	assert.Zero(t, again)

	versions, err := registry.List(ctx, models.CategoryWaterSupply)
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestSeedWorkflows_StopsOnInvalidDraft(t *testing.T) {
	drafts := []services.WorkflowDraft{{Name: "broken", Category: models.CategoryRoads}}

	seeded, err := SeedWorkflows(context.Background(), newRegistry(), drafts, quietLogger())

	assert.ErrorIs(t, err, services.ErrValidation)
	assert.Zero(t, seeded)
}

func TestLoadWorkflowFile_Errors(t *testing.T) {
	_, err := LoadWorkflowFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name": "not an array"}`), 0o600))
	_, err = LoadWorkflowFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse workflow seed file")
}
