package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/mhminhas/thinklab/internal/clock"
	taskdomain "github.com/mhminhas/thinklab/internal/task/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) taskdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("task.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, accountID snowflake.ID, req taskdomain.CreateRequest) (*taskdomain.Task, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, taskdomain.ErrInvalidTitle
	}

	priority := taskdomain.TaskPriorityMedium
	if req.Priority != "" {
		parsed, err := parsePriority(req.Priority)
		if err != nil {
			return nil, err
		}
		priority = parsed
	}

	now := s.clock.Now().UTC()
	task := taskdomain.Task{
		ID:          s.genID.Generate(),
		ProjectID:   req.ProjectID,
		AccountID:   accountID,
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		Status:      taskdomain.TaskStatusTodo,
		Priority:    priority,
		DueDate:     req.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *Service) Get(ctx context.Context, accountID, taskID snowflake.ID) (*taskdomain.Task, error) {
	var task taskdomain.Task
	err := s.db.WithContext(ctx).
		First(&task, "id = ? AND account_id = ?", taskID, accountID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, taskdomain.ErrNotFound
		}
		return nil, err
	}
	return &task, nil
}

func (s *Service) List(ctx context.Context, accountID snowflake.ID, projectID *snowflake.ID) ([]taskdomain.Task, error) {
	query := s.db.WithContext(ctx).Where("account_id = ?", accountID)
	if projectID != nil {
		query = query.Where("project_id = ?", *projectID)
	}

	var tasks []taskdomain.Task
	if err := query.Order("created_at DESC").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *Service) Update(ctx context.Context, accountID, taskID snowflake.ID, req taskdomain.UpdateRequest) (*taskdomain.Task, error) {
	task, err := s.Get(ctx, accountID, taskID)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, taskdomain.ErrInvalidTitle
		}
		task.Title = title
	}
	if req.Description != nil {
		task.Description = strings.TrimSpace(*req.Description)
	}
	if req.Status != nil {
		status, err := parseStatus(*req.Status)
		if err != nil {
			return nil, err
		}
		task.Status = status
	}
	if req.Priority != nil {
		priority, err := parsePriority(*req.Priority)
		if err != nil {
			return nil, err
		}
		task.Priority = priority
	}
	if req.DueDate != nil {
		task.DueDate = req.DueDate
	}
	task.UpdatedAt = s.clock.Now().UTC()

	if err := s.db.WithContext(ctx).Save(task).Error; err != nil {
		return nil, err
	}
	return task, nil
}

func (s *Service) Delete(ctx context.Context, accountID, taskID snowflake.ID) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND account_id = ?", taskID, accountID).
		Delete(&taskdomain.Task{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return taskdomain.ErrNotFound
	}
	return nil
}

func parseStatus(raw string) (taskdomain.TaskStatus, error) {
	status := taskdomain.TaskStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case taskdomain.TaskStatusTodo, taskdomain.TaskStatusInProgress,
		taskdomain.TaskStatusReview, taskdomain.TaskStatusDone:
		return status, nil
	default:
		return "", taskdomain.ErrInvalidStatus
	}
}

func parsePriority(raw string) (taskdomain.TaskPriority, error) {
	priority := taskdomain.TaskPriority(strings.ToLower(strings.TrimSpace(raw)))
	switch priority {
	case taskdomain.TaskPriorityLow, taskdomain.TaskPriorityMedium, taskdomain.TaskPriorityHigh:
		return priority, nil
	default:
		return "", taskdomain.ErrInvalidPriority
	}
}
