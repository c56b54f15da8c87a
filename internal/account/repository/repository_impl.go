package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/mhminhas/thinklab/internal/account/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() accountdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, account *accountdomain.Account) error {
	return db.WithContext(ctx).Create(account).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*accountdomain.Account, error) {
	var account accountdomain.Account
	err := db.WithContext(ctx).First(&account, "id = ?", accountID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, email string) (*accountdomain.Account, error) {
	var account accountdomain.Account
	err := db.WithContext(ctx).First(&account, "email = ?", email).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *repo) SetActive(ctx context.Context, db *gorm.DB, accountID snowflake.ID, active bool) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE accounts SET active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		active, accountID,
	)
	return result.RowsAffected, result.Error
}
