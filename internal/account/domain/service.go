package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// Provision creates the account and issues its signup credit grant.
	Provision(ctx context.Context, req ProvisionRequest) (*Account, error)
	Get(ctx context.Context, accountID snowflake.ID) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	Deactivate(ctx context.Context, accountID snowflake.ID) error
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, account *Account) error
	FindByID(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*Account, error)
	FindByEmail(ctx context.Context, db *gorm.DB, email string) (*Account, error)
	SetActive(ctx context.Context, db *gorm.DB, accountID snowflake.ID, active bool) (int64, error)
}

type ProvisionRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"-"`
}

var (
	ErrInvalidEmail  = errors.New("invalid_email")
	ErrDuplicateUser = errors.New("duplicate_user")
	ErrNotFound      = errors.New("not_found")
)
