// Package agenda implements task queries on top of the Asana client and the
// category directory: section listings, task completion, and the weekly
// summary.
package agenda

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"jarvis/internal/asana"
	"jarvis/internal/capture"
)

// ActiveSections are the board sections holding open work, in board order.
var ActiveSections = []string{"Hoy", "Semana", "Backlog"}

// DoneSection is where completed tasks live.
const DoneSection = "Hecho"

// Item is one row in a section listing.
type Item struct {
	TaskGID        string
	Name           string
	Project        string
	Section        string
	PriorityMarker string
}

// Summary is the weekly report: completions in the last seven days plus
// overdue open tasks.
type Summary struct {
	From      time.Time
	To        time.Time
	Completed []Item
	Overdue   []OverdueItem
	ByProject map[string]int
}

// OverdueItem is an open task whose due date has passed.
type OverdueItem struct {
	Name    string
	Project string
	DueOn   time.Time
}

// Agenda answers task queries against one project board.
type Agenda struct {
	client    *asana.Client
	directory *asana.Directory
	fieldName string
	logger    *zap.Logger
}

// New creates an agenda for a board.
func New(client *asana.Client, directory *asana.Directory, fieldName string, logger *zap.Logger) *Agenda {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agenda{
		client:    client,
		directory: directory,
		fieldName: fieldName,
		logger:    logger,
	}
}

// ListSection returns the open tasks of a section ("Hoy", "Semana",
// "Backlog").
func (a *Agenda) ListSection(ctx context.Context, section string) ([]Item, error) {
	sectionGID, err := a.directory.ResolveSection(ctx, section)
	if err != nil {
		return nil, err
	}

	tasks, err := a.client.TasksForSection(ctx, sectionGID)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(tasks))
	for _, t := range tasks {
		if t.Completed {
			continue
		}
		items = append(items, Item{
			TaskGID:        t.GID,
			Name:           taskName(t),
			Project:        a.projectOf(t),
			Section:        section,
			PriorityMarker: priorityMarkerOf(t),
		})
	}
	return items, nil
}

// ListActive returns open tasks across all active sections, in board order.
func (a *Agenda) ListActive(ctx context.Context) ([]Item, error) {
	var all []Item
	for _, section := range ActiveSections {
		items, err := a.ListSection(ctx, section)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
	}
	return all, nil
}

// Complete marks a task completed and moves it to the done section when the
// board has one.
func (a *Agenda) Complete(ctx context.Context, taskGID string) error {
	if err := a.client.CompleteTask(ctx, taskGID); err != nil {
		return err
	}

	doneGID, err := a.directory.ResolveSection(ctx, DoneSection)
	if err != nil {
		// Boards without a done section still complete fine.
		if capture.IsUnknownCategory(err) {
			a.logger.Debug("board has no done section", zap.String("task", taskGID))
			return nil
		}
		return err
	}
	if err := a.client.AddTaskToSection(ctx, doneGID, taskGID); err != nil {
		return err
	}
	a.logger.Info("task completed", zap.String("task", taskGID))
	return nil
}

// WeeklySummary reports tasks completed in the seven days ending today and
// open tasks whose due date passed.
func (a *Agenda) WeeklySummary(ctx context.Context, today time.Time) (*Summary, error) {
	today = today.UTC().Truncate(24 * time.Hour)
	from := today.AddDate(0, 0, -6)

	summary := &Summary{
		From:      from,
		To:        today,
		ByProject: make(map[string]int),
	}

	// Completions from the done section
	doneGID, err := a.directory.ResolveSection(ctx, DoneSection)
	if err != nil && !capture.IsUnknownCategory(err) {
		return nil, err
	}
	if err == nil {
		tasks, err := a.client.TasksForSection(ctx, doneGID)
		if err != nil {
			return nil, err
		}
		for _, t := range tasks {
			if !t.Completed || t.CompletedAt == "" {
				continue
			}
			completedAt, err := time.Parse(time.RFC3339, t.CompletedAt)
			if err != nil {
				a.logger.Warn("unparseable completed_at", zap.String("value", t.CompletedAt))
				continue
			}
			day := completedAt.UTC().Truncate(24 * time.Hour)
			if day.Before(from) || day.After(today) {
				continue
			}
			project := a.projectOf(t)
			summary.Completed = append(summary.Completed, Item{
				TaskGID: t.GID,
				Name:    taskName(t),
				Project: project,
				Section: DoneSection,
			})
			summary.ByProject[project]++
		}
	}

	// Overdue open tasks across the active sections
	for _, section := range ActiveSections {
		sectionGID, err := a.directory.ResolveSection(ctx, section)
		if err != nil {
			if capture.IsUnknownCategory(err) {
				continue
			}
			return nil, err
		}
		tasks, err := a.client.TasksForSection(ctx, sectionGID)
		if err != nil {
			return nil, err
		}
		for _, t := range tasks {
			if t.Completed || t.DueOn == "" {
				continue
			}
			due, err := time.Parse("2006-01-02", t.DueOn)
			if err != nil {
				a.logger.Warn("unparseable due_on", zap.String("value", t.DueOn))
				continue
			}
			if !due.Before(today) {
				continue
			}
			summary.Overdue = append(summary.Overdue, OverdueItem{
				Name:    taskName(t),
				Project: a.projectOf(t),
				DueOn:   due,
			})
		}
	}

	sort.Slice(summary.Completed, func(i, j int) bool {
		if summary.Completed[i].Project != summary.Completed[j].Project {
			return summary.Completed[i].Project < summary.Completed[j].Project
		}
		return summary.Completed[i].Name < summary.Completed[j].Name
	})
	sort.Slice(summary.Overdue, func(i, j int) bool {
		if summary.Overdue[i].Project != summary.Overdue[j].Project {
			return summary.Overdue[i].Project < summary.Overdue[j].Project
		}
		if !summary.Overdue[i].DueOn.Equal(summary.Overdue[j].DueOn) {
			return summary.Overdue[i].DueOn.Before(summary.Overdue[j].DueOn)
		}
		return summary.Overdue[i].Name < summary.Overdue[j].Name
	})

	return summary, nil
}

func taskName(t asana.Task) string {
	if t.Name == "" {
		return "(sin título)"
	}
	return t.Name
}

// projectOf reads the classification project from the task's custom field,
// stripping emoji prefixes; the notes body is the fallback for tasks
// created before the field existed.
func (a *Agenda) projectOf(t asana.Task) string {
	for _, cf := range t.CustomFields {
		if cf.Name != a.fieldName || cf.EnumValue == nil {
			continue
		}
		raw := cf.EnumValue.Name
		if raw == "" {
			break
		}
		if idx := strings.Index(raw, " "); idx > 0 && !isAlnum(rune(raw[0])) {
			return raw[idx+1:]
		}
		return raw
	}

	for _, line := range strings.Split(t.Notes, "\n") {
		if strings.HasPrefix(line, "Proyecto:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "Proyecto:"))
		}
	}
	return "Sin proyecto"
}

// priorityMarkerOf extracts the priority emoji from the notes body written
// at capture time.
func priorityMarkerOf(t asana.Task) string {
	for _, line := range strings.Split(t.Notes, "\n") {
		if !strings.HasPrefix(line, "Prioridad:") {
			continue
		}
		rest := strings.TrimSpace(strings.TrimPrefix(line, "Prioridad:"))
		if rest == "" {
			break
		}
		return strings.Fields(rest)[0]
	}
	return "•"
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// FindByText returns the best open-task match for a free-text query, or an
// error when nothing matches. Scoring is the original substring heuristic:
// proportion of the task name covered by the query.
func FindByText(items []Item, query string) (*Item, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}

	var best *Item
	bestScore := 0.0
	for i := range items {
		name := strings.ToLower(items[i].Name)
		if !strings.Contains(name, query) {
			continue
		}
		score := float64(len(query)) / float64(max(len(name), 1))
		if score > bestScore {
			bestScore = score
			best = &items[i]
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no task matches %q", query)
	}
	return best, nil
}
