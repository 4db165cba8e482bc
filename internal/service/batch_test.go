package service

import (
	"context"
	"errors"
	"testing"

	"vibetodo/backend"
)

func TestBatchOperations(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	a := mustCreate(t, s, "a", CreateOptions{Tags: []string{"x"}})
	b := mustCreate(t, s, "b", CreateOptions{})
	ids := []string{a.ID, b.ID, "31337"}

	n, err := s.BatchUpdateStatus(ctx, ids, backend.StatusInProgress)
	if err != nil || n != 2 {
		t.Fatalf("BatchUpdateStatus = %d, %v; want 2", n, err)
	}

	n, err = s.BatchUpdatePriority(ctx, ids, backend.PriorityUrgent)
	if err != nil || n != 2 {
		t.Fatalf("BatchUpdatePriority = %d, %v; want 2", n, err)
	}

	n, err = s.BatchUpdateProject(ctx, ids, "Launch")
	if err != nil || n != 2 {
		t.Fatalf("BatchUpdateProject = %d, %v; want 2", n, err)
	}

	n, err = s.BatchAddTags(ctx, ids, []string{"x", "y"})
	if err != nil || n != 2 {
		t.Fatalf("BatchAddTags = %d, %v; want 2", n, err)
	}

	got, _ := s.GetTask(ctx, a.ID)
	if got.Status != backend.StatusInProgress || got.Priority != backend.PriorityUrgent || got.Project != "Launch" {
		t.Errorf("task a = %+v", got)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "x" || got.Tags[1] != "y" {
		t.Errorf("tags not merged without duplicates: %v", got.Tags)
	}

	n, err = s.BatchDelete(ctx, ids)
	if err != nil || n != 2 {
		t.Fatalf("BatchDelete = %d, %v; want 2", n, err)
	}
	if tasks, _ := s.ListTasks(ctx, ""); len(tasks) != 0 {
		t.Errorf("%d tasks left after BatchDelete", len(tasks))
	}
}

func TestBatchRejectsInvalidValues(t *testing.T) {
	s := newTestService(t)
	a := mustCreate(t, s, "a", CreateOptions{})

	if n, err := s.BatchUpdateStatus(context.Background(), []string{a.ID}, "archived"); err == nil || n != 0 {
		t.Errorf("BatchUpdateStatus(archived) = %d, %v", n, err)
	}
	if n, err := s.BatchUpdatePriority(context.Background(), []string{a.ID}, "p0"); err == nil || n != 0 {
		t.Errorf("BatchUpdatePriority(p0) = %d, %v", n, err)
	}
}

// failingRepo fails every Save after the first allowed ones
type failingRepo struct {
	tasks      map[string]*backend.Task
	allowSaves int
}

func (r *failingRepo) Save(ctx context.Context, task *backend.Task) (*backend.Task, error) {
	if r.allowSaves == 0 {
		return nil, &backend.UnavailableError{Backend: "stub", Op: "update", StatusCode: 503}
	}
	r.allowSaves--
	r.tasks[task.ID] = task.Clone()
	return task, nil
}

func (r *failingRepo) GetByID(ctx context.Context, id string) (*backend.Task, error) {
	if t, ok := r.tasks[id]; ok {
		return t.Clone(), nil
	}
	return nil, nil
}

func (r *failingRepo) ListAll(ctx context.Context, status backend.TaskStatus) ([]backend.Task, error) {
	return nil, errors.New("not used")
}

func (r *failingRepo) Delete(ctx context.Context, id string) (bool, error) {
	return false, errors.New("backend offline")
}

func TestBatchStopsOnBackendError(t *testing.T) {
	repo := &failingRepo{tasks: map[string]*backend.Task{
		"1": {ID: "1", Title: "one", Status: backend.StatusTodo, Priority: backend.PriorityLow},
		"2": {ID: "2", Title: "two", Status: backend.StatusTodo, Priority: backend.PriorityLow},
		"3": {ID: "3", Title: "three", Status: backend.StatusTodo, Priority: backend.PriorityLow},
	}, allowSaves: 1}
	s := New(repo)

	n, err := s.BatchUpdatePriority(context.Background(), []string{"1", "2", "3"}, backend.PriorityHigh)
	var unavailable *backend.UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected UnavailableError, got %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
	if repo.tasks["3"].Priority != backend.PriorityLow {
		t.Error("batch continued after a failed save")
	}

	if _, err := s.BatchDelete(context.Background(), []string{"1"}); err == nil {
		t.Error("BatchDelete should propagate backend errors")
	}
	if _, err := s.Statistics(context.Background()); err == nil {
		t.Error("Statistics should propagate listing errors")
	}
}
