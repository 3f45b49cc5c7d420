package directory

import (
	"context"
	"errors"

	"github.com/remindly/reminder-engine/internal/domain"
	"github.com/remindly/reminder-engine/internal/repository"
	"gorm.io/gorm"
)

var (
	_ ContactDirectory = (*GormContacts)(nil)
	_ TaskDirectory    = (*GormTasks)(nil)
)

// GormContacts reads contacts from the application's users table.
type GormContacts struct {
	db *gorm.DB
}

func NewGormContacts(db *gorm.DB) *GormContacts {
	return &GormContacts{db: db}
}

func (d *GormContacts) GetContact(ctx context.Context, userID string) (*domain.Contact, error) {
	var model repository.UserModel
	err := d.db.WithContext(ctx).
		Select("id", "name", "email", "phone_number", "language", "settings").
		First(&model, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return repository.UserModelToContact(&model), nil
}

// GormTasks reads task ownership from the application's tasks table.
type GormTasks struct {
	db *gorm.DB
}

func NewGormTasks(db *gorm.DB) *GormTasks {
	return &GormTasks{db: db}
}

func (d *GormTasks) GetTask(ctx context.Context, userID string, taskID string) (*domain.TaskRef, error) {
	var model repository.TaskModel
	err := d.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", taskID, userID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return repository.TaskModelToRef(&model), nil
}
