package asana

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"jarvis/internal/capture"
)

// Creator adapts the API client to the capture pipeline's TaskCreator
// contract: create the task on the fixed project, set the classification
// custom field, assign the board owner, then file it into its section.
type Creator struct {
	client     *Client
	directory  *Directory
	projectGID string
	logger     *zap.Logger
}

// NewCreator wires a task creator for one project board.
func NewCreator(client *Client, directory *Directory, projectGID string, logger *zap.Logger) *Creator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Creator{
		client:     client,
		directory:  directory,
		projectGID: projectGID,
		logger:     logger,
	}
}

// CreateTask creates the remote task and returns its GID.
func (c *Creator) CreateTask(ctx context.Context, spec capture.TaskSpec) (string, error) {
	req := CreateTaskRequest{
		Name:     spec.Title,
		Notes:    spec.Notes,
		Projects: []string{c.projectGID},
		DueOn:    spec.DueOn,
	}
	if spec.FieldGID != "" && spec.OptionGID != "" {
		req.CustomFields = map[string]string{spec.FieldGID: spec.OptionGID}
	}
	if owner, err := c.directory.OwnerGID(ctx); err == nil && owner != "" {
		req.Assignee = owner
	}

	task, err := c.client.CreateTask(ctx, req)
	if err != nil {
		return "", err
	}

	if spec.SectionGID != "" {
		if err := c.client.AddTaskToSection(ctx, spec.SectionGID, task.GID); err != nil {
			// The task exists but sits in the default section; surface the
			// failure so the pipeline treats the capture as incomplete.
			return "", fmt.Errorf("task %s created but not filed: %w", task.GID, err)
		}
	}

	c.logger.Info("task created",
		zap.String("task", task.GID),
		zap.String("title", spec.Title))
	return task.GID, nil
}
