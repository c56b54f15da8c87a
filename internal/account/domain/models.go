package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Role separates regular users from operators with admin surfaces.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Account owns a credit balance. The balance can never go below zero;
// every change flows through the ledger service.
type Account struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	Email       string       `gorm:"type:text;not null;uniqueIndex:ux_accounts_email" json:"email"`
	DisplayName string       `gorm:"type:text;not null;default:''" json:"display_name"`
	Role        Role         `gorm:"type:text;not null;default:user" json:"role"`
	Balance     int64        `gorm:"not null;default:0" json:"balance"`
	Active      bool         `gorm:"not null;default:true" json:"active"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Account) TableName() string { return "accounts" }
