package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/remindly/reminder-engine/internal/repository"
	"gorm.io/gorm"
)

func createRemindersTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_reminders",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ReminderModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_reminders_user_scheduled ON reminders (user_id, scheduled_at)`,
				`CREATE INDEX IF NOT EXISTS idx_reminders_user_sent_at ON reminders (user_id, sent_at) WHERE sent = true`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ReminderModel{})
		},
	}
}
