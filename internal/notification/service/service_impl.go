package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/mhminhas/thinklab/internal/clock"
	notificationdomain "github.com/mhminhas/thinklab/internal/notification/domain"
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

func New(p Params) notificationdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("notification.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Notify(ctx context.Context, accountID snowflake.ID, kind notificationdomain.NotificationType, title, body string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil
	}
	if kind == "" {
		kind = notificationdomain.TypeInfo
	}

	notification := notificationdomain.Notification{
		ID:        s.genID.Generate(),
		AccountID: accountID,
		Type:      kind,
		Title:     title,
		Body:      strings.TrimSpace(body),
		Read:      false,
		CreatedAt: s.clock.Now().UTC(),
	}
	return s.db.WithContext(ctx).Create(&notification).Error
}

func (s *Service) List(ctx context.Context, accountID snowflake.ID, unreadOnly bool) ([]notificationdomain.Notification, error) {
	query := s.db.WithContext(ctx).Where("account_id = ?", accountID)
	if unreadOnly {
		// Map condition so gorm quotes "read", a reserved word on mysql.
		query = query.Where(map[string]interface{}{"read": false})
	}

	var notifications []notificationdomain.Notification
	if err := query.Order("created_at DESC").Find(&notifications).Error; err != nil {
		return nil, err
	}
	return notifications, nil
}

func (s *Service) MarkRead(ctx context.Context, accountID, notificationID snowflake.ID) error {
	result := s.db.WithContext(ctx).
		Model(&notificationdomain.Notification{}).
		Where("id = ? AND account_id = ?", notificationID, accountID).
		Update("read", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return notificationdomain.ErrNotFound
	}
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, accountID snowflake.ID) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&notificationdomain.Notification{}).
		Where("account_id = ?", accountID).
		Where(map[string]interface{}{"read": false}).
		Update("read", true)
	return result.RowsAffected, result.Error
}
