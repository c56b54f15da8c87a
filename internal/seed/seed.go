package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/mhminhas/thinklab/internal/account/domain"
	"github.com/mhminhas/thinklab/internal/config"
	ledgerdomain "github.com/mhminhas/thinklab/internal/ledger/domain"
	"gorm.io/gorm"
)

const defaultAdminDisplay = "ThinkLab Admin"

// EnsureDefaultAdmin seeds the default admin account for OSS and local
// environments so the service is usable right after first startup.
func EnsureDefaultAdmin(db *gorm.DB, cfg config.Config) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	email := strings.ToLower(strings.TrimSpace(cfg.Bootstrap.AdminEmail))
	if email == "" {
		return errors.New("seed admin email is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account accountdomain.Account
		err := tx.WithContext(ctx).Where("email = ?", email).First(&account).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := time.Now().UTC()
		account = accountdomain.Account{
			ID:          node.Generate(),
			Email:       email,
			DisplayName: defaultAdminDisplay,
			Role:        accountdomain.RoleAdmin,
			Balance:     cfg.SignupCredits,
			Active:      true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.WithContext(ctx).Create(&account).Error; err != nil {
			return err
		}

		if cfg.SignupCredits <= 0 {
			return nil
		}
		grant := ledgerdomain.CreditGrant{
			ID:        node.Generate(),
			AccountID: account.ID,
			Amount:    cfg.SignupCredits,
			Reason:    "bootstrap",
			CreatedAt: now,
		}
		return tx.WithContext(ctx).Create(&grant).Error
	})
}
