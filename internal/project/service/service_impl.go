package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/mhminhas/thinklab/internal/clock"
	projectdomain "github.com/mhminhas/thinklab/internal/project/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
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

func New(p Params) projectdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("project.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, accountID snowflake.ID, req projectdomain.CreateRequest) (*projectdomain.Project, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, projectdomain.ErrInvalidName
	}

	status := projectdomain.ProjectStatusActive
	if req.Status != "" {
		status = projectdomain.ProjectStatus(strings.ToLower(strings.TrimSpace(req.Status)))
		if !status.Valid() {
			return nil, projectdomain.ErrInvalidStatus
		}
	}

	tags, err := encodeTags(req.Tags)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	project := projectdomain.Project{
		ID:          s.genID.Generate(),
		AccountID:   accountID,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Status:      status,
		Tags:        tags,
		Settings:    datatypes.JSON(req.Settings),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(&project).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

func encodeTags(tags []string) (datatypes.JSON, error) {
	if tags == nil {
		return nil, nil
	}
	cleaned := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			cleaned = append(cleaned, tag)
		}
	}
	encoded, err := json.Marshal(cleaned)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(encoded), nil
}

func (s *Service) Get(ctx context.Context, accountID, projectID snowflake.ID) (*projectdomain.Project, error) {
	var project projectdomain.Project
	err := s.db.WithContext(ctx).
		First(&project, "id = ? AND account_id = ?", projectID, accountID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, projectdomain.ErrNotFound
		}
		return nil, err
	}
	return &project, nil
}

func (s *Service) List(ctx context.Context, accountID snowflake.ID) ([]projectdomain.Project, error) {
	var projects []projectdomain.Project
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Find(&projects).Error
	if err != nil {
		return nil, err
	}
	return projects, nil
}

func (s *Service) Update(ctx context.Context, accountID, projectID snowflake.ID, req projectdomain.UpdateRequest) (*projectdomain.Project, error) {
	project, err := s.Get(ctx, accountID, projectID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, projectdomain.ErrInvalidName
		}
		project.Name = name
	}
	if req.Description != nil {
		project.Description = strings.TrimSpace(*req.Description)
	}
	if req.Status != nil {
		status := projectdomain.ProjectStatus(strings.ToLower(strings.TrimSpace(*req.Status)))
		if !status.Valid() {
			return nil, projectdomain.ErrInvalidStatus
		}
		project.Status = status
	}
	if req.Tags != nil {
		tags, err := encodeTags(*req.Tags)
		if err != nil {
			return nil, err
		}
		project.Tags = tags
	}
	if req.Settings != nil {
		project.Settings = datatypes.JSON(req.Settings)
	}
	project.UpdatedAt = s.clock.Now().UTC()

	if err := s.db.WithContext(ctx).Save(project).Error; err != nil {
		return nil, err
	}
	return project, nil
}

func (s *Service) Delete(ctx context.Context, accountID, projectID snowflake.ID) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND account_id = ?", projectID, accountID).
		Delete(&projectdomain.Project{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return projectdomain.ErrNotFound
	}
	return nil
}
