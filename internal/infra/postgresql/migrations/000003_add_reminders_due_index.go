package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// The dispatch scan only ever reads active, unsent, pending rows.
func addRemindersDueIndex() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_add_reminders_due_index",
		Migrate: func(tx *gorm.DB) error {
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_reminders_due ON reminders (scheduled_at, id) WHERE sent = false AND is_active = true AND delivery_status = 'pending'`,
				`CREATE INDEX IF NOT EXISTS idx_reminders_claimed_until ON reminders (claimed_until) WHERE claimed_until IS NOT NULL`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return execAll(tx, []string{
				`DROP INDEX IF EXISTS idx_reminders_claimed_until`,
				`DROP INDEX IF EXISTS idx_reminders_due`,
			})
		},
	}
}
