package fulfillment

import (
	"context"
	"fmt"

	"products-stocks-telegram/internal/domain"
	"products-stocks-telegram/internal/repository"

	"github.com/google/uuid"
)

// StoreCompleter completes requests directly in the store: extraditions go to
// "extradition", moves go to "warehouse" at the destination profile.
type StoreCompleter struct {
	store repository.RequestStore
}

// NewStoreCompleter creates a completer backed by store
func NewStoreCompleter(store repository.RequestStore) *StoreCompleter {
	return &StoreCompleter{store: store}
}

func (c *StoreCompleter) CompleteExtradition(ctx context.Context, requestID uuid.UUID) error {
	return c.complete(ctx, domain.KindExtradition, requestID)
}

func (c *StoreCompleter) CompleteMove(ctx context.Context, requestID uuid.UUID) error {
	return c.complete(ctx, domain.KindMove, requestID)
}

func (c *StoreCompleter) complete(ctx context.Context, kind domain.QueueKind, requestID uuid.UUID) error {
	affected, err := c.store.Complete(ctx, kind, requestID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s is no longer in status %s", domain.ErrCompletionFailed, requestID, kind.Status())
	}
	return nil
}
