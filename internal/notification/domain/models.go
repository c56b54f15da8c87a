package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type NotificationType string

const (
	TypeInfo    NotificationType = "info"
	TypeWarning NotificationType = "warning"
	TypeCredit  NotificationType = "credit"
)

var ErrNotFound = errors.New("not_found")

// Notification is an in-app message for an account.
type Notification struct {
	ID        snowflake.ID     `gorm:"primaryKey" json:"id"`
	AccountID snowflake.ID     `gorm:"not null;index:idx_notifications_account" json:"account_id"`
	Type      NotificationType `gorm:"type:text;not null;default:info" json:"type"`
	Title     string           `gorm:"type:text;not null" json:"title"`
	Body      string           `gorm:"type:text;not null;default:''" json:"body"`
	Read      bool             `gorm:"not null;default:false" json:"read"`
	CreatedAt time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Notification) TableName() string { return "notifications" }

type Service interface {
	Notify(ctx context.Context, accountID snowflake.ID, kind NotificationType, title, body string) error
	List(ctx context.Context, accountID snowflake.ID, unreadOnly bool) ([]Notification, error)
	MarkRead(ctx context.Context, accountID, notificationID snowflake.ID) error
	MarkAllRead(ctx context.Context, accountID snowflake.ID) (int64, error)
}
