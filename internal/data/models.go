package data

import (
	"time"

	"github.com/harlequingg/taskd/internal/authz"
)

type User struct {
	ID           int64     `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	PasswordHash []byte    `json:"-"`
	Version      int       `json:"-"`
}

// Principal implements authz.Identity.
func (u *User) Principal() authz.Principal {
	return authz.UserPrincipal(u.ID, u.Username)
}

// Task is owned by its assignee. The creator is recorded separately and
// never changes.
type Task struct {
	ID         int64     `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Message    string    `json:"message"`
	CreatorID  int64     `json:"creator_id"`
	AssigneeID int64     `json:"assignee_id"`
	Version    int       `json:"version"`
}

// OwnerID returns the id of the user currently owning t.
func (t *Task) OwnerID() int64 {
	return t.AssigneeID
}

type TaskFilter struct {
	AssigneeID int64
	CreatorID  int64
	Limit      int
	Offset     int
}
