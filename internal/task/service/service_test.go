package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/mhminhas/thinklab/internal/clock"
	taskdomain "github.com/mhminhas/thinklab/internal/task/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type taskFixture struct {
	db      *gorm.DB
	svc     taskdomain.Service
	account snowflake.ID
}

func newTaskFixture(t *testing.T) *taskFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&taskdomain.Task{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
	})

	return &taskFixture{db: db, svc: svc, account: node.Generate()}
}

func statusPtr(s string) *string { return &s }

func TestCreateTaskDefaults(t *testing.T) {
	f := newTaskFixture(t)

	_, err := f.svc.Create(context.Background(), f.account, taskdomain.CreateRequest{Title: " "})
	require.ErrorIs(t, err, taskdomain.ErrInvalidTitle)

	_, err = f.svc.Create(context.Background(), f.account, taskdomain.CreateRequest{
		Title: "x", Priority: "urgent",
	})
	require.ErrorIs(t, err, taskdomain.ErrInvalidPriority)

	task, err := f.svc.Create(context.Background(), f.account, taskdomain.CreateRequest{Title: "Write draft"})
	require.NoError(t, err)
	assert.Equal(t, taskdomain.TaskStatusTodo, task.Status)
	assert.Equal(t, taskdomain.TaskPriorityMedium, task.Priority)
}

func TestTaskStatusFlow(t *testing.T) {
	f := newTaskFixture(t)

	task, err := f.svc.Create(context.Background(), f.account, taskdomain.CreateRequest{Title: "Write draft"})
	require.NoError(t, err)

	for _, status := range []string{"in_progress", "review", "done"} {
		updated, err := f.svc.Update(context.Background(), f.account, task.ID, taskdomain.UpdateRequest{
			Status: statusPtr(status),
		})
		require.NoError(t, err)
		assert.Equal(t, taskdomain.TaskStatus(status), updated.Status)
	}

	_, err = f.svc.Update(context.Background(), f.account, task.ID, taskdomain.UpdateRequest{
		Status: statusPtr("blocked"),
	})
	require.ErrorIs(t, err, taskdomain.ErrInvalidStatus)
}

func TestListTasksFiltersByProject(t *testing.T) {
	f := newTaskFixture(t)

	projectID := snowflake.ID(42)
	_, err := f.svc.Create(context.Background(), f.account, taskdomain.CreateRequest{
		Title: "In project", ProjectID: &projectID,
	})
	require.NoError(t, err)
	_, err = f.svc.Create(context.Background(), f.account, taskdomain.CreateRequest{Title: "Loose"})
	require.NoError(t, err)

	all, err := f.svc.List(context.Background(), f.account, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	scoped, err := f.svc.List(context.Background(), f.account, &projectID)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "In project", scoped[0].Title)
}

func TestTaskScopedToAccount(t *testing.T) {
	f := newTaskFixture(t)

	task, err := f.svc.Create(context.Background(), f.account, taskdomain.CreateRequest{Title: "Mine"})
	require.NoError(t, err)

	other := snowflake.ID(999)
	_, err = f.svc.Get(context.Background(), other, task.ID)
	require.ErrorIs(t, err, taskdomain.ErrNotFound)
	require.ErrorIs(t, f.svc.Delete(context.Background(), other, task.ID), taskdomain.ErrNotFound)
}
