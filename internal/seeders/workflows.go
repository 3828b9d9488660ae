package seeders

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"complaint-workflow-service/internal/models"
	"complaint-workflow-service/internal/services"
)

// SeedActor is recorded as the author of seeded workflows
var SeedActor = models.Actor{ID: "system", Role: models.RoleAdmin, Name: "workflow seeder"}

// LoadWorkflowFile reads a JSON array of workflow drafts
func LoadWorkflowFile(path string) ([]services.WorkflowDraft, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow seed file: %w", err)
	}

	var drafts []services.WorkflowDraft
	if err := json.Unmarshal(data, &drafts); err != nil {
		return nil, fmt.Errorf("failed to parse workflow seed file %s: %w", path, err)
	}
	return drafts, nil
}

// SeedWorkflows creates and publishes each draft whose category has no
// workflow yet. Categories that already have a definition are left alone,
// so re-running the seeder is a no-op.
func SeedWorkflows(ctx context.Context, registry *services.WorkflowRegistry, drafts []services.WorkflowDraft, logger *logrus.Logger) (int, error) {
	seeded := 0
	for _, draft := range drafts {
		log := logger.WithField("category", draft.Category)

		existing, err := registry.List(ctx, draft.Category)
		if err != nil {
			return seeded, err
		}
		if len(existing) > 0 {
			log.Debug("Category already has a workflow, skipping seed")
			continue
		}

		created, err := registry.CreateDraft(ctx, draft, SeedActor)
		if err != nil {
			log.WithError(err).Error("Failed to seed workflow")
			return seeded, err
		}
		if _, err := registry.Publish(ctx, created.ID, SeedActor); err != nil {
			log.WithError(err).Error("Failed to publish seeded workflow")
			return seeded, err
		}
		seeded++
		log.WithFields(logrus.Fields{
			"workflowId": created.ID,
			"version":    created.Version,
		}).Info("Seeded workflow")
	}
	return seeded, nil
}

// SeedFromFile loads path and seeds its workflows
func SeedFromFile(ctx context.Context, registry *services.WorkflowRegistry, path string, logger *logrus.Logger) error {
	drafts, err := LoadWorkflowFile(path)
	if err != nil {
		return err
	}
	seeded, err := SeedWorkflows(ctx, registry, drafts, logger)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"file":   path,
		"seeded": seeded,
		"total":  len(drafts),
	}).Info("Workflow seeding finished")
	return nil
}
