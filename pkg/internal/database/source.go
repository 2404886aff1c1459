package database

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var C *gorm.DB

// NewSource opens the client-local cache. The cache is an sqlite file next
// to the settings; losing it only costs offline history and the call log.
func NewSource() error {
	dsn := viper.GetString("cache.path")
	if len(dsn) == 0 {
		dsn = "heartlink.db"
	}

	dialector := sqlite.Open(dsn)
	source, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	log.Debug().Str("path", dsn).Msg("Local cache is opened.")

	C = source
	return nil
}
