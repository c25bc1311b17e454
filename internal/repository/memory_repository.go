package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"products-stocks-telegram/internal/domain"

	"github.com/google/uuid"
)

// InMemoryStore keeps everything in maps behind one mutex. Used by tests and local runs.
type InMemoryStore struct {
	mu       sync.Mutex
	requests map[uuid.UUID]*domain.StockRequest
	lines    map[uuid.UUID][]LineRecord
	totals   []StockTotal
	profiles map[uuid.UUID]string
	accounts map[int64]account
	now      func() time.Time
}

type account struct {
	profile uuid.UUID
	active  bool
}

// NewInMemoryStore creates an empty store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		requests: make(map[uuid.UUID]*domain.StockRequest),
		lines:    make(map[uuid.UUID][]LineRecord),
		profiles: make(map[uuid.UUID]string),
		accounts: make(map[int64]account),
		now:      time.Now,
	}
}

func (s *InMemoryStore) Claim(ctx context.Context, requestID, operator uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[requestID]
	if !ok || r.FixedBy != nil {
		return 0, nil
	}
	op := operator
	at := s.now().UTC()
	r.FixedBy = &op
	r.FixedAt = &at
	return 1, nil
}

func (s *InMemoryStore) Release(ctx context.Context, requestID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[requestID]
	if !ok {
		return 0, nil
	}
	r.FixedBy = nil
	r.FixedAt = nil
	return 1, nil
}

func (s *InMemoryStore) FindClaimant(ctx context.Context, requestID uuid.UUID) (*domain.Claimant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[requestID]
	if !ok || r.FixedBy == nil {
		return nil, domain.ErrClaimantNotFound
	}
	return &domain.Claimant{ProfileID: *r.FixedBy, Username: s.profiles[*r.FixedBy]}, nil
}

func (s *InMemoryStore) ReleaseExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var released int64
	for _, r := range s.requests {
		if r.FixedBy != nil && r.FixedAt != nil && r.FixedAt.Before(olderThan) && r.Status.Actionable() {
			r.FixedBy = nil
			r.FixedAt = nil
			released++
		}
	}
	return released, nil
}

func (s *InMemoryStore) NextRequest(ctx context.Context, kind domain.QueueKind, owner, operator uuid.UUID) (*domain.StockRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []*domain.StockRequest
	for _, r := range s.requests {
		if r.Profile == owner && r.Status == kind.Status() && r.EligibleFor(operator) {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return nil, domain.ErrNoEligibleRequest
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].ModifiedAt.Before(candidates[j].ModifiedAt)
	})
	return s.resolve(candidates[0]), nil
}

func (s *InMemoryStore) FindRequest(ctx context.Context, requestID uuid.UUID) (*domain.StockRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[requestID]
	if !ok {
		return nil, domain.ErrRequestNotFound
	}
	return s.resolve(r), nil
}

// resolve returns a copy with display names filled in; must be called with s.mu held
func (s *InMemoryStore) resolve(r *domain.StockRequest) *domain.StockRequest {
	out := *r
	out.ProfileName = s.profiles[r.Profile]
	if r.Destination != nil {
		out.DestinationName = s.profiles[*r.Destination]
	}
	return &out
}

func (s *InMemoryStore) LineItems(ctx context.Context, request *domain.StockRequest) ([]domain.LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.lines[request.ID]
	items := make([]domain.LineItem, 0, len(records))
	for _, rec := range records {
		item := rec.LineItem
		item.Storage, item.StockTotal = s.storageHint(request.Profile, rec)
		items = append(items, item)
	}
	return items, nil
}

func (s *InMemoryStore) storageHint(profile uuid.UUID, line LineRecord) (string, int) {
	var (
		places []string
		total  int
	)
	for _, t := range s.totals {
		if t.Total > 0 && t.matches(profile, line) {
			places = append(places, fmt.Sprintf("%s: [%d]", t.Storage, t.Total))
			total += t.Total
		}
	}
	return strings.Join(places, ", "), total
}

func (s *InMemoryStore) Complete(ctx context.Context, kind domain.QueueKind, requestID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[requestID]
	if !ok || r.Status != kind.Status() {
		return 0, nil
	}
	if kind == domain.KindMove && r.Destination != nil {
		from := r.Profile
		r.Profile, r.Destination = *r.Destination, &from
	}
	r.Status = kind.CompletedStatus()
	r.FixedBy = nil
	r.FixedAt = nil
	r.ModifiedAt = s.now().UTC()
	return 1, nil
}

func (s *InMemoryStore) SaveRequest(ctx context.Context, request *domain.StockRequest, lines []LineRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *request
	stored.ProfileName, stored.DestinationName = "", ""
	if existing, ok := s.requests[request.ID]; ok {
		if !existing.Status.Actionable() || !existing.ModifiedAt.Before(request.ModifiedAt) {
			return false, nil
		}
		stored.FixedBy, stored.FixedAt = nil, nil
		if existing.Status == request.Status && existing.Profile == request.Profile {
			stored.FixedBy, stored.FixedAt = existing.FixedBy, existing.FixedAt
		}
	}
	s.requests[request.ID] = &stored
	s.lines[request.ID] = append([]LineRecord(nil), lines...)
	return true, nil
}

func (s *InMemoryStore) SaveStockTotal(ctx context.Context, total StockTotal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, t := range s.totals {
		if t.Profile == total.Profile && t.ProductID == total.ProductID && t.Storage == total.Storage &&
			t.OfferValue == total.OfferValue && t.VariationValue == total.VariationValue &&
			t.ModificationValue == total.ModificationValue {
			s.totals[i] = total
			return nil
		}
	}
	s.totals = append(s.totals, total)
	return nil
}

func (s *InMemoryStore) ActiveProfileForChat(ctx context.Context, chatID int64) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[chatID]
	if !ok || !a.active {
		return uuid.Nil, domain.ErrOperatorUnknown
	}
	return a.profile, nil
}

func (s *InMemoryStore) ChatsForProfiles(ctx context.Context, profiles []uuid.UUID) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[uuid.UUID]struct{}, len(profiles))
	for _, p := range profiles {
		wanted[p] = struct{}{}
	}

	var chats []int64
	for chatID, a := range s.accounts {
		if _, ok := wanted[a.profile]; ok && a.active {
			chats = append(chats, chatID)
		}
	}
	sort.Slice(chats, func(i, j int) bool { return chats[i] < chats[j] })
	return chats, nil
}

func (s *InMemoryStore) ProfileName(ctx context.Context, profile uuid.UUID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.profiles[profile], nil
}

func (s *InMemoryStore) SaveProfile(ctx context.Context, profile uuid.UUID, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles[profile] = username
	return nil
}

func (s *InMemoryStore) SaveAccount(ctx context.Context, chatID int64, profile uuid.UUID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[chatID] = account{profile: profile, active: active}
	return nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
