package resource

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"taskdash/internal/apperr"
	"taskdash/internal/model"
)

// TaskAPI is the subset of the HTTP adapter used by TaskStore.
type TaskAPI interface {
	ListTasks(ctx context.Context, q model.TaskQuery) (model.Page[model.Task], error)
	GetTask(ctx context.Context, id string) (model.Task, error)
	CreateTask(ctx context.Context, in model.TaskInput) (model.Task, error)
	UpdateTask(ctx context.Context, id string, in model.TaskInput) (model.Task, error)
	UpdateTaskStatus(ctx context.Context, id string, status model.Status, note string) (model.Task, error)
	DeleteTask(ctx context.Context, id string) (string, error)
	ListUserTasks(ctx context.Context, userID string) ([]model.Task, error)
	DownloadDocument(ctx context.Context, taskID, docID string, w io.Writer) (int64, error)
}

type taskBackend struct{ api TaskAPI }

func (b taskBackend) List(ctx context.Context, q model.TaskQuery) (model.Page[model.Task], error) {
	return b.api.ListTasks(ctx, q)
}

func (b taskBackend) Get(ctx context.Context, id string) (model.Task, error) {
	return b.api.GetTask(ctx, id)
}

func (b taskBackend) Create(ctx context.Context, in model.TaskInput) (model.Task, error) {
	return b.api.CreateTask(ctx, withTaskDefaults(in))
}

func (b taskBackend) Update(ctx context.Context, id string, in model.TaskInput) (model.Task, error) {
	return b.api.UpdateTask(ctx, id, withTaskDefaults(in))
}

func (b taskBackend) Delete(ctx context.Context, id string) (string, error) {
	return b.api.DeleteTask(ctx, id)
}

func withTaskDefaults(in model.TaskInput) model.TaskInput {
	if in.Priority == "" {
		in.Priority = model.PriorityMedium
	}
	if in.Status == "" {
		in.Status = model.StatusPending
	}
	return in
}

// TaskStore is the task collection with its task-only operations.
type TaskStore struct {
	*Store[model.Task, model.TaskFilter, model.TaskInput]
	api    TaskAPI
	policy DocumentPolicy
}

func NewTaskStore(api TaskAPI, policy DocumentPolicy, logger *slog.Logger) *TaskStore {
	policy = policy.normalized()
	ts := &TaskStore{api: api, policy: policy}
	ts.Store = NewStore[model.Task, model.TaskFilter, model.TaskInput]("tasks", taskBackend{api: api}, logger,
		WithCreateValidator[model.Task, model.TaskFilter, model.TaskInput](func(in model.TaskInput, _ *model.Task) error {
			return validateTaskInput(in, policy, 0)
		}),
	)
	return ts
}

func (s *TaskStore) Policy() DocumentPolicy { return s.policy }

// Update replaces a task. When documents are uploaded the task's current attachments
// are needed for the count check, so an uncached task is fetched first; that fetch does
// not touch the collection.
func (s *TaskStore) Update(ctx context.Context, id string, in model.TaskInput) (model.Task, error) {
	op := s.op("update")
	id = strings.TrimSpace(id)
	var existing *model.Task
	if id != "" && len(in.Documents) > 0 {
		existing = s.cached(id)
		if existing == nil {
			t, err := s.api.GetTask(ctx, id)
			if err != nil {
				return model.Task{}, s.reject(op, err)
			}
			existing = &t
		}
	}
	return s.mutateOne(ctx, op, id, func(cached *model.Task) error {
		if cached == nil {
			cached = existing
		}
		return validateTaskInput(in, s.policy, keptDocuments(cached, in.RemovedDocumentIDs))
	}, func(ctx context.Context, id string) (model.Task, error) {
		return taskBackend{api: s.api}.Update(ctx, id, in)
	})
}

func validateTaskInput(in model.TaskInput, policy DocumentPolicy, kept int) error {
	if strings.TrimSpace(in.Title) == "" {
		return apperr.Validation("Title is required")
	}
	if strings.TrimSpace(in.AssignedTo) == "" {
		return apperr.Validation("Please assign this task to a user")
	}
	if in.DueDate.IsZero() {
		return apperr.Validation("Due date is required")
	}
	if in.Priority != "" && !in.Priority.Valid() {
		return apperr.Validation("Invalid priority %q", in.Priority)
	}
	if in.Status != "" && !in.Status.Valid() {
		return apperr.Validation("Invalid status %q", in.Status)
	}
	return policy.Check(kept, in.Documents)
}

// TransitionStatus moves a task to status and records note. Any status may follow any
// other; the note is required.
func (s *TaskStore) TransitionStatus(ctx context.Context, id string, status model.Status, note string) (model.Task, error) {
	note = strings.TrimSpace(note)
	return s.mutateOne(ctx, s.op("status"), id, func(*model.Task) error {
		if note == "" {
			return apperr.Validation("Note is required")
		}
		if !status.Valid() {
			return apperr.Validation("Invalid status %q", status)
		}
		return nil
	}, func(ctx context.Context, id string) (model.Task, error) {
		return s.api.UpdateTaskStatus(ctx, id, status, note)
	})
}

// ListForUser replaces the items with the tasks assigned to userID. It takes part in
// the same last-issued-wins ordering as List.
func (s *TaskStore) ListForUser(ctx context.Context, userID string) (model.Page[model.Task], error) {
	op := s.op("list_for_user")
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return model.Page[model.Task]{}, s.reject(op, apperr.Validation("A user id is required"))
	}
	return s.listWith(ctx, op, func(ctx context.Context) (model.Page[model.Task], error) {
		items, err := s.api.ListUserTasks(ctx, userID)
		if err != nil {
			return model.Page[model.Task]{}, err
		}
		n := len(items)
		return model.Page[model.Task]{
			Items:      items,
			Pagination: model.Pagination{Page: 1, Limit: max(n, model.DefaultLimit), Total: n, Pages: 1},
		}, nil
	})
}

// DownloadDocument streams one attachment into w. The collection is not changed.
func (s *TaskStore) DownloadDocument(ctx context.Context, taskID, docID string, w io.Writer) (int64, error) {
	op := s.op("document")
	if strings.TrimSpace(taskID) == "" || strings.TrimSpace(docID) == "" {
		return 0, s.reject(op, apperr.Validation("Task id and document id are required"))
	}
	s.start()
	n, err := s.api.DownloadDocument(ctx, taskID, docID, w)
	if err != nil {
		return n, s.failed(op, err)
	}
	s.finish(nil)
	return n, nil
}
