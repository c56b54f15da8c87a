package migration

import (
	"strings"

	"github.com/mhminhas/thinklab/internal/config"
	"github.com/mhminhas/thinklab/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if strings.EqualFold(cfg.DBType, "postgres") {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			if err := AutoMigrate(conn); err != nil {
				return err
			}
		}

		if cfg.Bootstrap.EnsureDefaultAdmin {
			return seed.EnsureDefaultAdmin(conn, cfg)
		}
		return nil
	}),
)
