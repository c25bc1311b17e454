package repository

import (
	"context"
	"errors"
	"time"

	"products-stocks-telegram/internal/cache"
	"products-stocks-telegram/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CachedStore caches line items and claimant lookups in front of another Store.
// Claim and Release drop the cached claimant of the request they touch. Line items are
// keyed by a per-profile generation that SaveStockTotal rotates, so a new total reaches
// every cached request of that profile.
type CachedStore struct {
	Store
	cache       cache.Cache
	linesTTL    time.Duration
	claimantTTL time.Duration
	logger      *zap.Logger
}

// NewCachedStore wraps store
func NewCachedStore(store Store, c cache.Cache, linesTTL, claimantTTL time.Duration, logger *zap.Logger) *CachedStore {
	return &CachedStore{
		Store:       store,
		cache:       c,
		linesTTL:    linesTTL,
		claimantTTL: claimantTTL,
		logger:      logger,
	}
}

func generationKey(profile uuid.UUID) string {
	return "stock:generation:" + profile.String()
}

func (s *CachedStore) linesKey(ctx context.Context, request *domain.StockRequest) string {
	generation, err := s.cache.Get(ctx, generationKey(request.Profile))
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Debug("Stock generation read failed", zap.String("profile", request.Profile.String()), zap.Error(err))
	}
	return "stock:lines:" + request.ID.String() + ":" + request.Profile.String() + ":" + string(generation)
}

func claimantKey(requestID uuid.UUID) string {
	return "stock:claimant:" + requestID.String()
}

func (s *CachedStore) LineItems(ctx context.Context, request *domain.StockRequest) ([]domain.LineItem, error) {
	key := s.linesKey(ctx, request)

	var items []domain.LineItem
	err := cache.GetJSON(ctx, s.cache, key, &items)
	if err == nil {
		return items, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Debug("Line items cache read failed", zap.String("key", key), zap.Error(err))
	}

	items, err = s.Store.LineItems(ctx, request)
	if err != nil {
		return nil, err
	}
	if err := cache.SetJSON(ctx, s.cache, key, items, s.linesTTL); err != nil {
		s.logger.Debug("Line items cache write failed", zap.String("key", key), zap.Error(err))
	}
	return items, nil
}

func (s *CachedStore) SaveRequest(ctx context.Context, request *domain.StockRequest, lines []LineRecord) (bool, error) {
	saved, err := s.Store.SaveRequest(ctx, request, lines)
	if err != nil || !saved {
		return saved, err
	}
	key := s.linesKey(ctx, request)
	if err := s.cache.Delete(ctx, key); err != nil {
		s.logger.Debug("Line items cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
	s.forgetClaimant(ctx, request.ID)
	return true, nil
}

func (s *CachedStore) SaveStockTotal(ctx context.Context, total StockTotal) error {
	if err := s.Store.SaveStockTotal(ctx, total); err != nil {
		return err
	}
	// the generation must outlive every line entry written under the previous one
	key := generationKey(total.Profile)
	if err := s.cache.Set(ctx, key, []byte(uuid.NewString()), 2*s.linesTTL); err != nil {
		s.logger.Debug("Stock generation rotation failed", zap.String("key", key), zap.Error(err))
	}
	return nil
}

func (s *CachedStore) FindClaimant(ctx context.Context, requestID uuid.UUID) (*domain.Claimant, error) {
	key := claimantKey(requestID)

	var claimant domain.Claimant
	if err := cache.GetJSON(ctx, s.cache, key, &claimant); err == nil {
		return &claimant, nil
	}

	found, err := s.Store.FindClaimant(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := cache.SetJSON(ctx, s.cache, key, found, s.claimantTTL); err != nil {
		s.logger.Debug("Claimant cache write failed", zap.String("key", key), zap.Error(err))
	}
	return found, nil
}

func (s *CachedStore) Claim(ctx context.Context, requestID, operator uuid.UUID) (int64, error) {
	n, err := s.Store.Claim(ctx, requestID, operator)
	if err == nil && n > 0 {
		s.forgetClaimant(ctx, requestID)
	}
	return n, err
}

func (s *CachedStore) Release(ctx context.Context, requestID uuid.UUID) (int64, error) {
	n, err := s.Store.Release(ctx, requestID)
	if err == nil {
		s.forgetClaimant(ctx, requestID)
	}
	return n, err
}

func (s *CachedStore) Complete(ctx context.Context, kind domain.QueueKind, requestID uuid.UUID) (int64, error) {
	n, err := s.Store.Complete(ctx, kind, requestID)
	if err == nil && n > 0 {
		s.forgetClaimant(ctx, requestID)
	}
	return n, err
}

func (s *CachedStore) forgetClaimant(ctx context.Context, requestID uuid.UUID) {
	if err := s.cache.Delete(ctx, claimantKey(requestID)); err != nil {
		s.logger.Debug("Claimant cache invalidation failed", zap.String("request_id", requestID.String()), zap.Error(err))
	}
}
