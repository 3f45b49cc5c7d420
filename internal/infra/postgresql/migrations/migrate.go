package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	return New(db).Migrate()
}

// Rollback reverts the most recently applied migration.
func Rollback(db *gorm.DB) error {
	return New(db).RollbackLast()
}

func New(db *gorm.DB) *gormigrate.Gormigrate {
	return gormigrate.New(db, gormigrate.DefaultOptions, All())
}

func All() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		createRemindersTable(),
		createDeliveryAttemptsTable(),
		addRemindersDueIndex(),
	}
}

func execAll(tx *gorm.DB, statements []string) error {
	for _, sql := range statements {
		if err := tx.Exec(sql).Error; err != nil {
			return err
		}
	}
	return nil
}
