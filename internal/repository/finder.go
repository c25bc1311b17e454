package repository

import (
	"context"
	"fmt"

	"products-stocks-telegram/internal/domain"

	"github.com/google/uuid"
)

// EligibleRequestFinder hands out the next request of one queue. The request and
// its lines are resolved in a single call.
type EligibleRequestFinder struct {
	store RequestStore
	kind  domain.QueueKind
}

// NewFinder creates the finder for kind
func NewFinder(store RequestStore, kind domain.QueueKind) *EligibleRequestFinder {
	return &EligibleRequestFinder{store: store, kind: kind}
}

// Kind returns the queue this finder serves
func (f *EligibleRequestFinder) Kind() domain.QueueKind {
	return f.kind
}

// Next returns the oldest request owned by owner that is unclaimed or already claimed by operator
func (f *EligibleRequestFinder) Next(ctx context.Context, owner, operator uuid.UUID) (*domain.WorkItem, error) {
	request, err := f.store.NextRequest(ctx, f.kind, owner, operator)
	if err != nil {
		return nil, err
	}
	return f.withLines(ctx, request)
}

// FindByID loads a request that still sits in this queue, or domain.ErrRequestNotFound
func (f *EligibleRequestFinder) FindByID(ctx context.Context, requestID uuid.UUID) (*domain.WorkItem, error) {
	request, err := f.store.FindRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status != f.kind.Status() {
		return nil, domain.ErrRequestNotFound
	}
	return f.withLines(ctx, request)
}

// LineItems resolves the product lines of request
func (f *EligibleRequestFinder) LineItems(ctx context.Context, request *domain.StockRequest) ([]domain.LineItem, error) {
	return f.store.LineItems(ctx, request)
}

func (f *EligibleRequestFinder) withLines(ctx context.Context, request *domain.StockRequest) (*domain.WorkItem, error) {
	lines, err := f.store.LineItems(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("failed to load line items of %s: %w", request.ID, err)
	}
	return &domain.WorkItem{Request: request, LineItems: lines}, nil
}
