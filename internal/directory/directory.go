package directory

import (
	"context"

	"github.com/remindly/reminder-engine/internal/domain"
)

// ContactDirectory resolves the delivery addresses of a user.
// Unknown users are reported as domain.ErrNotFound.
type ContactDirectory interface {
	GetContact(ctx context.Context, userID string) (*domain.Contact, error)
}

// TaskDirectory resolves tasks owned by a user.
type TaskDirectory interface {
	GetTask(ctx context.Context, userID string, taskID string) (*domain.TaskRef, error)
}
