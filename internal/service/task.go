package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/harlequingg/taskd/internal/authz"
	"github.com/harlequingg/taskd/internal/data"
	"github.com/harlequingg/taskd/internal/mailer"
	"github.com/harlequingg/taskd/internal/validator"
)

type TaskService struct {
	store    Store
	notifier mailer.Notifier
	log      *zap.SugaredLogger
	wg       sync.WaitGroup
}

func NewTaskService(store Store, notifier mailer.Notifier, log *zap.SugaredLogger) *TaskService {
	if notifier == nil {
		notifier = mailer.Noop{}
	}
	return &TaskService{
		store:    store,
		notifier: notifier,
		log:      log.Named("service.task"),
	}
}

// Create stores a new task. The acting user becomes its creator.
func (s *TaskService) Create(ctx context.Context, req data.TaskRequest) (*data.Task, error) {
	p, err := authz.RequireUser(ctx, "task.create")
	if err != nil {
		return nil, err
	}

	assignee, err := s.validate(ctx, req)
	if err != nil {
		return nil, err
	}

	t := &data.Task{
		Message:    req.Message,
		CreatorID:  p.UserID,
		AssigneeID: req.AssigneeID,
	}
	err = s.store.InsertTask(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	s.log.Infow("task created", "task_id", t.ID, "creator_id", t.CreatorID, "assignee_id", t.AssigneeID)

	if t.AssigneeID != p.UserID {
		s.notify(ctx, t, assignee)
	}
	return t, nil
}

// Update replaces message and assignee of task id. Only its creator or its
// current owner may do so; on denial nothing is written.
func (s *TaskService) Update(ctx context.Context, id int64, req data.TaskRequest) (*data.Task, error) {
	p, err := authz.RequireUser(ctx, "task.update")
	if err != nil {
		s.log.Infow("task update denied", "task_id", id, "principal", p.String())
		return nil, err
	}

	t, err := s.store.GetTaskByID(ctx, id)
	if err != nil {
		return nil, err
	}

	err = CanReassign(p, t).Err("task.update", p)
	if err != nil {
		s.log.Infow("task update denied", "task_id", id, "principal", p.String())
		return nil, err
	}

	assignee, err := s.validate(ctx, req)
	if err != nil {
		return nil, err
	}

	previous := t.AssigneeID
	t.Message = req.Message
	t.AssigneeID = req.AssigneeID
	err = s.store.UpdateTask(ctx, t)
	if err != nil {
		return nil, err
	}
	s.log.Infow("task updated", "task_id", t.ID, "principal", p.String(), "from", previous, "to", t.AssigneeID)

	if previous != t.AssigneeID && t.AssigneeID != p.UserID {
		s.notify(ctx, t, assignee)
	}
	return t, nil
}

// Delete removes task id. Only its current owner may do so.
func (s *TaskService) Delete(ctx context.Context, id int64) error {
	p, err := authz.RequireUser(ctx, "task.delete")
	if err != nil {
		s.log.Infow("task delete denied", "task_id", id, "principal", p.String())
		return err
	}

	t, err := s.store.GetTaskByID(ctx, id)
	if err != nil {
		return err
	}

	err = CanDelete(p, t).Err("task.delete", p)
	if err != nil {
		s.log.Infow("task delete denied", "task_id", id, "principal", p.String())
		return err
	}

	err = s.store.DeleteTask(ctx, t)
	if err != nil {
		return err
	}
	s.log.Infow("task deleted", "task_id", id, "principal", p.String())
	return nil
}

// GetTaskByID returns nil, nil when the task does not exist.
func (s *TaskService) GetTaskByID(ctx context.Context, id int64) (*data.Task, error) {
	t, err := s.store.GetTaskByID(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, data.ErrRecordNotFound):
			return nil, nil
		default:
			return nil, err
		}
	}
	return t, nil
}

func (s *TaskService) List(ctx context.Context, f data.TaskFilter) ([]*data.Task, error) {
	return s.store.ListTasks(ctx, f)
}

// Wait blocks until pending notifications are sent.
func (s *TaskService) Wait() {
	s.wg.Wait()
}

func (s *TaskService) validate(ctx context.Context, req data.TaskRequest) (*data.User, error) {
	v := validator.New()
	v.CheckMessage(req.Message)
	v.Check(req.AssigneeID > 0, "assignee_id", "must be provided")
	if !v.Valid() {
		return nil, v.Err()
	}

	assignee, err := s.store.GetUserByID(ctx, req.AssigneeID)
	if err != nil {
		switch {
		case errors.Is(err, data.ErrRecordNotFound):
			v.Check(false, "assignee_id", "must reference an existing user")
			return nil, v.Err()
		default:
			return nil, err
		}
	}
	return assignee, nil
}

func (s *TaskService) notify(ctx context.Context, t *data.Task, assignee *data.User) {
	task := *t
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Errorw("task notification panicked", "task_id", task.ID, "panic", r)
			}
		}()
		err := s.notifier.TaskAssigned(ctx, &task, assignee)
		if err != nil {
			s.log.Warnw("task notification failed", "task_id", task.ID, "assignee_id", assignee.ID, "error", err)
		}
	}()
}
