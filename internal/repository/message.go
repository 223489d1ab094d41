package repository

import (
	"context"
	"errors"
	"fmt"

	"privchat/internal/domain"
)

// MessageRepository is the durable message store. Any failure that is not a
// missing record is reported as domain.ErrStoreUnavailable.
type MessageRepository interface {
	// Create assigns ID and CreatedAt and persists the message.
	Create(ctx context.Context, message *domain.Message) error
	FindByID(ctx context.Context, id string) (*domain.Message, error)
	// ListRecent returns the newest limit messages ordered oldest first.
	ListRecent(ctx context.Context, limit int) ([]*domain.Message, error)
	Save(ctx context.Context, message *domain.Message) error
	DeleteByID(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrMessageNotFound) || errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %v", op, domain.ErrStoreUnavailable, err)
}

func reverse(messages []*domain.Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}
