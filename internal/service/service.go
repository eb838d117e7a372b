// Package service implements task and user operations on top of storage,
// enforcing who may change which task.
package service

import (
	"context"
	"errors"

	"github.com/harlequingg/taskd/internal/data"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

// Store is the persistence the services need. *data.Storage implements it.
type Store interface {
	InsertUser(ctx context.Context, u *data.User) error
	GetUserByID(ctx context.Context, id int64) (*data.User, error)
	GetUserByUsername(ctx context.Context, username string) (*data.User, error)

	InsertTask(ctx context.Context, t *data.Task) error
	GetTaskByID(ctx context.Context, id int64) (*data.Task, error)
	ListTasks(ctx context.Context, f data.TaskFilter) ([]*data.Task, error)
	UpdateTask(ctx context.Context, t *data.Task) error
	DeleteTask(ctx context.Context, t *data.Task) error
}

var _ Store = (*data.Storage)(nil)
