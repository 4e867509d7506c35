package db

import (
	"strings"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"github.com/suPer8Hu/salesbot/internal/catalog"
	"github.com/suPer8Hu/salesbot/internal/chat"
	"github.com/suPer8Hu/salesbot/internal/order"
	"github.com/suPer8Hu/salesbot/internal/tenant"
	"github.com/suPer8Hu/salesbot/internal/trigger"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the database named by dsn. A "sqlite:" prefix selects the
// embedded driver, anything else is a MySQL DSN.
func Connect(dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if path, ok := strings.CutPrefix(dsn, "sqlite:"); ok {
		dialector = gormsqlite.Open(path)
	} else {
		dialector = mysql.Open(dsn)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	log.Info().Str("driver", gdb.Dialector.Name()).Msg("database connected")
	return gdb, nil
}

// Migrate creates or updates every table the service owns.
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&tenant.Credential{},
		&catalog.Product{},
		&chat.Chat{},
		&chat.Message{},
		&chat.Tag{},
		&order.Order{},
		&trigger.Trigger{},
		&trigger.Condition{},
		&trigger.Action{},
	)
}
