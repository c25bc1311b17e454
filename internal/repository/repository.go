package repository

import (
	"context"
	"time"

	"products-stocks-telegram/internal/domain"

	"github.com/google/uuid"
)

// ClaimStore performs the atomic claim and release of a single stock request
type ClaimStore interface {
	// Claim sets fixed_by to operator only when the request is unclaimed.
	// Returns rows affected: 1 on success, 0 when someone already holds it.
	Claim(ctx context.Context, requestID, operator uuid.UUID) (int64, error)
	// Release clears fixed_by whoever holds it.
	Release(ctx context.Context, requestID uuid.UUID) (int64, error)
	// FindClaimant returns the current holder or domain.ErrClaimantNotFound.
	FindClaimant(ctx context.Context, requestID uuid.UUID) (*domain.Claimant, error)
	// ReleaseExpired clears claims taken before olderThan.
	ReleaseExpired(ctx context.Context, olderThan time.Time) (int64, error)
}

// RequestStore is the persistence backend shared by every queue
type RequestStore interface {
	ClaimStore

	// NextRequest returns the oldest request of kind owned by owner that is unclaimed
	// or claimed by operator, or domain.ErrNoEligibleRequest.
	NextRequest(ctx context.Context, kind domain.QueueKind, owner, operator uuid.UUID) (*domain.StockRequest, error)
	// FindRequest loads a request in any status, or domain.ErrRequestNotFound.
	FindRequest(ctx context.Context, requestID uuid.UUID) (*domain.StockRequest, error)
	// LineItems returns the product lines of request with storage hints at the owner profile.
	LineItems(ctx context.Context, request *domain.StockRequest) ([]domain.LineItem, error)
	// Complete moves an actionable request of kind to its completed status. Moves swap
	// profile and destination. Returns rows affected.
	Complete(ctx context.Context, kind domain.QueueKind, requestID uuid.UUID) (int64, error)
	// SaveRequest inserts a request with its lines. A stored request is replaced only while it
	// is still queued and older than request; its claim survives unless status or owner changed.
	// Reports whether anything was written.
	SaveRequest(ctx context.Context, request *domain.StockRequest, lines []LineRecord) (bool, error)
	// SaveStockTotal records how many units of a product sit at a storage place of a profile.
	SaveStockTotal(ctx context.Context, total StockTotal) error
}

// AccountStore resolves chat accounts and profiles
type AccountStore interface {
	// ActiveProfileForChat returns the operator profile bound to chatID, or domain.ErrOperatorUnknown.
	ActiveProfileForChat(ctx context.Context, chatID int64) (uuid.UUID, error)
	// ChatsForProfiles returns the active chats bound to any of profiles.
	ChatsForProfiles(ctx context.Context, profiles []uuid.UUID) ([]int64, error)
	// ProfileName returns the display name of a profile, empty when unknown.
	ProfileName(ctx context.Context, profile uuid.UUID) (string, error)
	SaveProfile(ctx context.Context, profile uuid.UUID, username string) error
	SaveAccount(ctx context.Context, chatID int64, profile uuid.UUID, active bool) error
}

// Store is a full backend
type Store interface {
	RequestStore
	AccountStore
	Close() error
}

// LineRecord is a stored product line. Product and offer values also key the stock totals.
type LineRecord struct {
	ProductID uuid.UUID
	domain.LineItem
}

// StockTotal is the quantity of one product variant at a storage place of a profile
type StockTotal struct {
	Profile           uuid.UUID
	ProductID         uuid.UUID
	OfferValue        string
	VariationValue    string
	ModificationValue string
	Storage           string
	Total             int
}

func (t StockTotal) matches(profile uuid.UUID, line LineRecord) bool {
	return t.Profile == profile &&
		t.ProductID == line.ProductID &&
		t.OfferValue == line.OfferValue &&
		t.VariationValue == line.VariationValue &&
		t.ModificationValue == line.ModificationValue
}

// timeLayout sorts lexicographically in TEXT columns
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
