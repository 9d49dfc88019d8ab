package logging

import (
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/civictrack/internal/models"
	"gorm.io/gorm"
)

// Retention is how long system logs are kept.
const Retention = 30 * 24 * time.Hour

// StartCleanup runs a daily goroutine that deletes system_logs older than Retention.
func StartCleanup(db *gorm.DB, done chan struct{}) {
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				result := db.Where("timestamp < ?", time.Now().Add(-Retention)).Delete(&models.SystemLog{})
				if result.Error != nil {
					slog.Error("log cleanup failed", "error", result.Error)
				} else if result.RowsAffected > 0 {
					slog.Info("log cleanup completed", "deleted", result.RowsAffected)
				}
			case <-done:
				return
			}
		}
	}()
}
