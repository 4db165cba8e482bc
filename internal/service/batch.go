package service

import (
	"context"
	"fmt"

	"vibetodo/backend"
)

// batch applies fn to each existing task in ids and saves it.
// Missing ids are skipped. It returns the number of tasks saved; a backend
// error stops the batch and is returned with the count so far.
func (s *Service) batch(ctx context.Context, ids []string, fn func(*backend.Task)) (int, error) {
	count := 0
	for _, id := range ids {
		task, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return count, fmt.Errorf("failed to load task %s: %w", id, err)
		}
		if task == nil {
			continue
		}
		fn(task)
		if _, err := s.repo.Save(ctx, task); err != nil {
			return count, fmt.Errorf("failed to save task %s: %w", id, err)
		}
		count++
	}
	return count, nil
}

// BatchUpdateStatus sets status on every task in ids
func (s *Service) BatchUpdateStatus(ctx context.Context, ids []string, status backend.TaskStatus) (int, error) {
	if !status.Valid() {
		return 0, fmt.Errorf("invalid status %q", status)
	}
	return s.batch(ctx, ids, func(t *backend.Task) { t.SetStatus(status) })
}

// BatchUpdatePriority sets priority on every task in ids
func (s *Service) BatchUpdatePriority(ctx context.Context, ids []string, priority backend.TaskPriority) (int, error) {
	if !priority.Valid() {
		return 0, fmt.Errorf("invalid priority %q", priority)
	}
	return s.batch(ctx, ids, func(t *backend.Task) { t.SetPriority(priority) })
}

// BatchUpdateProject sets project on every task in ids. An empty project clears it.
func (s *Service) BatchUpdateProject(ctx context.Context, ids []string, project string) (int, error) {
	return s.batch(ctx, ids, func(t *backend.Task) { t.SetProject(project) })
}

// BatchAddTags merges tags into every task in ids without duplicates
func (s *Service) BatchAddTags(ctx context.Context, ids []string, tags []string) (int, error) {
	return s.batch(ctx, ids, func(t *backend.Task) { t.AddTags(tags...) })
}

// BatchDelete removes every task in ids and returns how many existed
func (s *Service) BatchDelete(ctx context.Context, ids []string) (int, error) {
	count := 0
	for _, id := range ids {
		ok, err := s.repo.Delete(ctx, id)
		if err != nil {
			return count, fmt.Errorf("failed to delete task %s: %w", id, err)
		}
		if ok {
			count++
		}
	}
	return count, nil
}
