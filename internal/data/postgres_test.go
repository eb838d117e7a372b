package data

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newPostgresStorage opens the database named by TEST_DB_DSN and empties it.
// The test is skipped when the variable is unset.
func newPostgresStorage(t *testing.T) *Storage {
	t.Helper()

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}

	ctx := context.Background()
	s, err := Open(ctx, Config{
		Dialect:            DialectPostgres,
		DSN:                dsn,
		MaxOpenConnections: 4,
		MaxIdleConnections: 4,
		MaxIdleTime:        time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.db.ExecContext(ctx, `TRUNCATE tasks, users RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return s
}

func TestPostgres_SchemaIsReapplicable(t *testing.T) {
	s := newPostgresStorage(t)

	assert.Equal(t, DialectPostgres, s.Dialect())
	require.NoError(t, s.migrate(context.Background()))
}

func TestPostgres_Users(t *testing.T) {
	s := newPostgresStorage(t)
	ctx := context.Background()

	alex := insertUser(t, s, "alex")
	assert.NotZero(t, alex.ID)

	got, err := s.GetUserByUsername(ctx, "alex")
	require.NoError(t, err)
	assert.Equal(t, alex.ID, got.ID)
	assert.Equal(t, []byte("hash"), got.PasswordHash)

	err = s.InsertUser(ctx, &User{Username: "alex", PasswordHash: []byte("x")})
	assert.ErrorIs(t, err, ErrDuplicateUsername)
}

func TestPostgres_Tasks(t *testing.T) {
	s := newPostgresStorage(t)
	ctx := context.Background()

	alex := insertUser(t, s, "alex")
	badBoy := insertUser(t, s, "alex badBoy")

	task := &Task{Message: "Sample", CreatorID: alex.ID, AssigneeID: alex.ID}
	require.NoError(t, s.InsertTask(ctx, task))

	stale := *task
	task.AssigneeID = badBoy.ID
	require.NoError(t, s.UpdateTask(ctx, task))
	assert.Equal(t, 2, task.Version)
	assert.ErrorIs(t, s.UpdateTask(ctx, &stale), ErrEditConflict)

	tasks, err := s.ListTasks(ctx, TaskFilter{AssigneeID: badBoy.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, alex.ID, tasks[0].CreatorID)

	tasks, err = s.ListTasks(ctx, TaskFilter{})
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	require.NoError(t, s.DeleteTask(ctx, task))
	_, err = s.GetTaskByID(ctx, task.ID)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}
