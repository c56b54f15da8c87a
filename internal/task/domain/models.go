package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusReview     TaskStatus = "review"
	TaskStatusDone       TaskStatus = "done"
)

type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
)

var (
	ErrInvalidTitle    = errors.New("invalid_title")
	ErrInvalidStatus   = errors.New("invalid_status")
	ErrInvalidPriority = errors.New("invalid_priority")
	ErrNotFound        = errors.New("not_found")
)

// Task is a user to-do, optionally attached to a project.
type Task struct {
	ID          snowflake.ID  `gorm:"primaryKey" json:"id"`
	ProjectID   *snowflake.ID `gorm:"index:idx_tasks_project" json:"project_id,omitempty"`
	AccountID   snowflake.ID  `gorm:"not null;index:idx_tasks_account" json:"account_id"`
	Title       string        `gorm:"type:text;not null" json:"title"`
	Description string        `gorm:"type:text;not null;default:''" json:"description"`
	Status      TaskStatus    `gorm:"type:text;not null;default:todo" json:"status"`
	Priority    TaskPriority  `gorm:"type:text;not null;default:medium" json:"priority"`
	DueDate     *time.Time    `json:"due_date,omitempty"`
	CreatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Task) TableName() string { return "tasks" }

type CreateRequest struct {
	ProjectID   *snowflake.ID `json:"project_id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Priority    string        `json:"priority"`
	DueDate     *time.Time    `json:"due_date"`
}

type UpdateRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Status      *string    `json:"status"`
	Priority    *string    `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
}

type Service interface {
	Create(ctx context.Context, accountID snowflake.ID, req CreateRequest) (*Task, error)
	Get(ctx context.Context, accountID, taskID snowflake.ID) (*Task, error)
	List(ctx context.Context, accountID snowflake.ID, projectID *snowflake.ID) ([]Task, error)
	Update(ctx context.Context, accountID, taskID snowflake.ID, req UpdateRequest) (*Task, error)
	Delete(ctx context.Context, accountID, taskID snowflake.ID) error
}
