package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status of a stock request. Only StatusPackage and StatusMoving are handed out to operators.
type Status string

const (
	StatusIncoming    Status = "incoming"
	StatusPackage     Status = "package"
	StatusMoving      Status = "moving"
	StatusExtradition Status = "extradition"
	StatusWarehouse   Status = "warehouse"
	StatusCompleted   Status = "completed"
	StatusCancel      Status = "cancel"
	StatusError       Status = "error"
)

// Actionable reports whether requests in this status belong to an operator queue
func (s Status) Actionable() bool {
	return s == StatusPackage || s == StatusMoving
}

// QueueKind selects one of the two operator queues
type QueueKind string

const (
	KindExtradition QueueKind = "extradition"
	KindMove        QueueKind = "move"
)

// Capabilities checked against the authorization collaborator
const (
	CapabilityPackage       = "ROLE_PRODUCT_STOCK_PACKAGE"
	CapabilityWarehouseSend = "ROLE_PRODUCT_STOCK_WAREHOUSE_SEND"
	// CapabilityIncomingAccept receives goods arriving at a warehouse; it opens no queue
	CapabilityIncomingAccept = "ROLE_PRODUCT_STOCK_INCOMING_ACCEPT"
)

// QueueKinds lists every queue in menu order
var QueueKinds = []QueueKind{KindExtradition, KindMove}

// ParseQueueKind converts a string to a QueueKind
func ParseQueueKind(s string) (QueueKind, error) {
	switch k := QueueKind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindExtradition, KindMove:
		return k, nil
	default:
		return "", fmt.Errorf("unknown queue kind %q", s)
	}
}

// Status is the only status a request must have to be found in this queue
func (k QueueKind) Status() Status {
	if k == KindMove {
		return StatusMoving
	}
	return StatusPackage
}

// CompletedStatus is the status the downstream completer moves a request to
func (k QueueKind) CompletedStatus() Status {
	if k == KindMove {
		return StatusWarehouse
	}
	return StatusExtradition
}

// Capability an operator needs on a profile to work this queue
func (k QueueKind) Capability() string {
	if k == KindMove {
		return CapabilityWarehouseSend
	}
	return CapabilityPackage
}

// KindOf maps an actionable status back to its queue
func KindOf(status Status) (QueueKind, bool) {
	switch status {
	case StatusPackage:
		return KindExtradition, true
	case StatusMoving:
		return KindMove, true
	default:
		return "", false
	}
}

// StockRequest is one unit of work: an order to pick and pack, or a transfer between warehouses
type StockRequest struct {
	ID          uuid.UUID
	Number      string
	Status      Status
	Profile     uuid.UUID  // owning warehouse profile
	Destination *uuid.UUID // receiving profile, moves only
	FixedBy     *uuid.UUID // operator profile holding the claim
	FixedAt     *time.Time
	Comment     string
	ModifiedAt  time.Time

	// Display fields resolved by the finder
	ProfileName     string
	DestinationName string
	DeliveryName    string
}

// NewStockRequest creates an unclaimed request in the queue's actionable status
func NewStockRequest(number string, kind QueueKind, profile uuid.UUID, destination *uuid.UUID) (*StockRequest, error) {
	if number == "" {
		return nil, ErrInvalidRequest
	}
	if profile == uuid.Nil {
		return nil, ErrInvalidRequest
	}
	if kind == KindMove && (destination == nil || *destination == uuid.Nil) {
		return nil, ErrMissingDestination
	}
	if kind != KindMove {
		destination = nil
	}

	return &StockRequest{
		ID:          uuid.New(),
		Number:      number,
		Status:      kind.Status(),
		Profile:     profile,
		Destination: destination,
		ModifiedAt:  time.Now().UTC(),
	}, nil
}

// Kind returns the queue the request belongs to, false once it left both queues
func (r *StockRequest) Kind() (QueueKind, bool) {
	return KindOf(r.Status)
}

// IsClaimed reports whether any operator holds the request
func (r *StockRequest) IsClaimed() bool {
	return r.FixedBy != nil
}

// ClaimedBy reports whether operator holds the request
func (r *StockRequest) ClaimedBy(operator uuid.UUID) bool {
	return r.FixedBy != nil && *r.FixedBy == operator
}

// EligibleFor reports whether operator may be handed the request: unclaimed or already theirs
func (r *StockRequest) EligibleFor(operator uuid.UUID) bool {
	return r.FixedBy == nil || *r.FixedBy == operator
}

// NextOwner is the profile whose queue continues after this request is completed.
// Extraditions continue on the same warehouse, moves on the receiving one.
func (r *StockRequest) NextOwner() uuid.UUID {
	if r.Status == StatusMoving && r.Destination != nil {
		return *r.Destination
	}
	return r.Profile
}

// LineItem is a read-only snapshot of one product line of a request
type LineItem struct {
	ProductName string `json:"product_name"`

	OfferName    string `json:"offer_name,omitempty"`
	OfferValue   string `json:"offer_value,omitempty"`
	OfferPostfix string `json:"offer_postfix,omitempty"`

	VariationName    string `json:"variation_name,omitempty"`
	VariationValue   string `json:"variation_value,omitempty"`
	VariationPostfix string `json:"variation_postfix,omitempty"`

	ModificationName    string `json:"modification_name,omitempty"`
	ModificationValue   string `json:"modification_value,omitempty"`
	ModificationPostfix string `json:"modification_postfix,omitempty"`

	Quantity   int    `json:"quantity"`
	Storage    string `json:"storage,omitempty"` // "A-01: [5], B-02: [3]"
	StockTotal int    `json:"stock_total"`
}

// Postfix joins the non-empty offer, variation and modification postfixes
func (l LineItem) Postfix() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{l.OfferPostfix, l.VariationPostfix, l.ModificationPostfix} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// WorkItem is what the finder hands out: the request and its lines, resolved together
type WorkItem struct {
	Request   *StockRequest
	LineItems []LineItem
}

// Claimant identifies the operator profile holding a request
type Claimant struct {
	ProfileID uuid.UUID `json:"profile_id"`
	Username  string    `json:"username"`
}
