package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// APIKey stores hashed API credentials scoped to an account.
type APIKey struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	AccountID  snowflake.ID `gorm:"not null;index:idx_api_keys_account" json:"account_id"`
	Name       string       `gorm:"type:text;not null;default:''" json:"name"`
	KeyHash    string       `gorm:"column:key_hash;type:text;not null;uniqueIndex:ux_api_keys_hash" json:"-"`
	Prefix     string       `gorm:"type:text;not null;default:''" json:"prefix"`
	LastUsedAt *time.Time   `gorm:"column:last_used_at" json:"last_used_at,omitempty"`
	RevokedAt  *time.Time   `gorm:"column:revoked_at" json:"revoked_at,omitempty"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (APIKey) TableName() string { return "api_keys" }
