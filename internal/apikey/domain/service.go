package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	List(ctx context.Context, accountID snowflake.ID) ([]Response, error)
	// Create returns the raw key exactly once; only the hash is stored.
	Create(ctx context.Context, accountID snowflake.ID, req CreateRequest) (*SecretResponse, error)
	Revoke(ctx context.Context, accountID, keyID snowflake.ID) error
	// Authenticate resolves a raw bearer key to its identity.
	Authenticate(ctx context.Context, raw string) (*Identity, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, key *APIKey) error
	FindByHash(ctx context.Context, db *gorm.DB, keyHash string) (*APIKey, error)
	List(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]APIKey, error)
	Revoke(ctx context.Context, db *gorm.DB, accountID, keyID snowflake.ID, at time.Time) (int64, error)
	TouchLastUsed(ctx context.Context, db *gorm.DB, keyID snowflake.ID, at time.Time) error
}

type CreateRequest struct {
	Name string `json:"name"`
}

type Response struct {
	ID         snowflake.ID `json:"id"`
	Name       string       `json:"name"`
	Prefix     string       `json:"prefix"`
	CreatedAt  time.Time    `json:"created_at"`
	LastUsedAt *time.Time   `json:"last_used_at,omitempty"`
	RevokedAt  *time.Time   `json:"revoked_at,omitempty"`
}

type SecretResponse struct {
	ID     snowflake.ID `json:"id"`
	Name   string       `json:"name"`
	APIKey string       `json:"api_key"`
}

// Identity is the authenticated principal behind an API key.
type Identity struct {
	KeyID     snowflake.ID
	AccountID snowflake.ID
	Role      string
}

var (
	ErrInvalidName  = errors.New("invalid_name")
	ErrNotFound     = errors.New("not_found")
	ErrUnauthorized = errors.New("unauthorized")
)
