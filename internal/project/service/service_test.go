package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/mhminhas/thinklab/internal/clock"
	projectdomain "github.com/mhminhas/thinklab/internal/project/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type projectFixture struct {
	db      *gorm.DB
	svc     projectdomain.Service
	account snowflake.ID
}

func newProjectFixture(t *testing.T) *projectFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&projectdomain.Project{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
	})

	return &projectFixture{db: db, svc: svc, account: node.Generate()}
}

func strPtr(s string) *string { return &s }

func TestCreateProjectDefaults(t *testing.T) {
	f := newProjectFixture(t)

	_, err := f.svc.Create(context.Background(), f.account, projectdomain.CreateRequest{Name: "  "})
	require.ErrorIs(t, err, projectdomain.ErrInvalidName)

	project, err := f.svc.Create(context.Background(), f.account, projectdomain.CreateRequest{Name: "Research"})
	require.NoError(t, err)
	assert.Equal(t, projectdomain.ProjectStatusActive, project.Status)
	assert.Nil(t, project.Tags)
}

func TestCreateProjectWithStatusTagsSettings(t *testing.T) {
	f := newProjectFixture(t)

	_, err := f.svc.Create(context.Background(), f.account, projectdomain.CreateRequest{
		Name: "x", Status: "paused",
	})
	require.ErrorIs(t, err, projectdomain.ErrInvalidStatus)

	project, err := f.svc.Create(context.Background(), f.account, projectdomain.CreateRequest{
		Name:     "Launch plan",
		Status:   "Draft",
		Tags:     []string{"q3", " growth ", ""},
		Settings: json.RawMessage(`{"visibility":"private"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, projectdomain.ProjectStatusDraft, project.Status)
	assert.JSONEq(t, `["q3","growth"]`, string(project.Tags))
	assert.JSONEq(t, `{"visibility":"private"}`, string(project.Settings))
}

func TestUpdateProjectStatusLifecycle(t *testing.T) {
	f := newProjectFixture(t)

	project, err := f.svc.Create(context.Background(), f.account, projectdomain.CreateRequest{Name: "Research"})
	require.NoError(t, err)

	for _, status := range []string{"completed", "archived", "active"} {
		updated, err := f.svc.Update(context.Background(), f.account, project.ID, projectdomain.UpdateRequest{
			Status: strPtr(status),
		})
		require.NoError(t, err)
		assert.Equal(t, projectdomain.ProjectStatus(status), updated.Status)
	}

	_, err = f.svc.Update(context.Background(), f.account, project.ID, projectdomain.UpdateRequest{
		Status: strPtr("deleted"),
	})
	require.ErrorIs(t, err, projectdomain.ErrInvalidStatus)
}

func TestUpdateProjectTags(t *testing.T) {
	f := newProjectFixture(t)

	project, err := f.svc.Create(context.Background(), f.account, projectdomain.CreateRequest{
		Name: "Research", Tags: []string{"old"},
	})
	require.NoError(t, err)

	tags := []string{"new", "fresh"}
	updated, err := f.svc.Update(context.Background(), f.account, project.ID, projectdomain.UpdateRequest{
		Tags: &tags,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `["new","fresh"]`, string(updated.Tags))

	// Omitting tags leaves them untouched.
	updated, err = f.svc.Update(context.Background(), f.account, project.ID, projectdomain.UpdateRequest{
		Description: strPtr("notes"),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `["new","fresh"]`, string(updated.Tags))
}

func TestProjectScopedToAccount(t *testing.T) {
	f := newProjectFixture(t)

	project, err := f.svc.Create(context.Background(), f.account, projectdomain.CreateRequest{Name: "Mine"})
	require.NoError(t, err)

	other := snowflake.ID(999)
	_, err = f.svc.Get(context.Background(), other, project.ID)
	require.ErrorIs(t, err, projectdomain.ErrNotFound)
	require.ErrorIs(t, f.svc.Delete(context.Background(), other, project.ID), projectdomain.ErrNotFound)
}
