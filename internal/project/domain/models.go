package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ProjectStatus string

const (
	ProjectStatusDraft     ProjectStatus = "draft"
	ProjectStatusActive    ProjectStatus = "active"
	ProjectStatusCompleted ProjectStatus = "completed"
	ProjectStatusArchived  ProjectStatus = "archived"
)

// Valid reports whether the status is one of the known values.
func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectStatusDraft, ProjectStatusActive, ProjectStatusCompleted, ProjectStatusArchived:
		return true
	default:
		return false
	}
}

var (
	ErrInvalidName   = errors.New("invalid_name")
	ErrInvalidStatus = errors.New("invalid_status")
	ErrNotFound      = errors.New("not_found")
)

// Project groups an account's tasks and generated artifacts.
type Project struct {
	ID          snowflake.ID   `gorm:"primaryKey" json:"id"`
	AccountID   snowflake.ID   `gorm:"not null;index:idx_projects_account" json:"account_id"`
	Name        string         `gorm:"type:text;not null" json:"name"`
	Description string         `gorm:"type:text;not null;default:''" json:"description"`
	Status      ProjectStatus  `gorm:"type:text;not null;default:active" json:"status"`
	Tags        datatypes.JSON `gorm:"type:jsonb" json:"tags,omitempty"`
	Settings    datatypes.JSON `gorm:"type:jsonb" json:"settings,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Project) TableName() string { return "projects" }

type CreateRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Status      string          `json:"status"`
	Tags        []string        `json:"tags"`
	Settings    json.RawMessage `json:"settings"`
}

type UpdateRequest struct {
	Name        *string         `json:"name"`
	Description *string         `json:"description"`
	Status      *string         `json:"status"`
	Tags        *[]string       `json:"tags"`
	Settings    json.RawMessage `json:"settings"`
}

type Service interface {
	Create(ctx context.Context, accountID snowflake.ID, req CreateRequest) (*Project, error)
	Get(ctx context.Context, accountID, projectID snowflake.ID) (*Project, error)
	List(ctx context.Context, accountID snowflake.ID) ([]Project, error)
	Update(ctx context.Context, accountID, projectID snowflake.ID, req UpdateRequest) (*Project, error)
	Delete(ctx context.Context, accountID, projectID snowflake.ID) error
}
