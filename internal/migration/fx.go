package migration

import (
	accountdomain "github.com/studyloop/studyloop/internal/account/domain"
	"github.com/studyloop/studyloop/internal/config"
	ledgerdomain "github.com/studyloop/studyloop/internal/ledger/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}

		// mysql and sqlite are dev conveniences; gorm derives their schema.
		return conn.AutoMigrate(
			&accountdomain.Account{},
			&ledgerdomain.GenerationRecord{},
		)
	}),
)
