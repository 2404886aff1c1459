package services

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/heartlink-app/heartlink-core/pkg/internal/database"
	"github.com/heartlink-app/heartlink-core/pkg/internal/models"
)

// DoAutoCacheCleanup trims the local cache: message and call rows older
// than the retention window are dropped for good.
func DoAutoCacheCleanup() {
	retention := viper.GetInt("cache.retention")
	if retention <= 0 {
		retention = 14
	}
	deadline := time.Now().AddDate(0, 0, -retention)
	log.Debug().Time("deadline", deadline).Msg("Now cleaning up the local cache...")

	var count int64
	tx := database.C.Unscoped().Delete(&models.MessageRecord{}, "sent_at < ?", deadline)
	if tx.Error != nil {
		log.Error().Err(tx.Error).Msg("An error occurred when cleaning cached messages...")
	}
	count += tx.RowsAffected

	tx = database.C.Unscoped().Delete(&models.CallRecord{}, "ended_at < ?", deadline)
	if tx.Error != nil {
		log.Error().Err(tx.Error).Msg("An error occurred when cleaning the call log...")
	}
	count += tx.RowsAffected

	log.Debug().Int64("affected", count).Msg("Local cache cleanup accomplished.")
}
