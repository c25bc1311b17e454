package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"products-stocks-telegram/internal/config"
	"products-stocks-telegram/internal/domain"
	"products-stocks-telegram/internal/events"
	"products-stocks-telegram/internal/repository"
	"products-stocks-telegram/internal/security"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Completer performs the authoritative status change once an operator reports a request done
type Completer interface {
	CompleteExtradition(ctx context.Context, requestID uuid.UUID) error
	CompleteMove(ctx context.Context, requestID uuid.UUID) error
}

// Policy holds the tunable parts of the lifecycle
type Policy struct {
	// ReleaseOnCompletionFailure drops the claim when the completer fails. Off keeps it
	// with the operator so the same person retries.
	ReleaseOnCompletionFailure bool
	// MoveCompletionResource is the profile checked when a move is completed:
	// config.CompletionResourceDestination or config.CompletionResourceOwner.
	MoveCompletionResource string
}

// PolicyFromConfig extracts the lifecycle policy from cfg
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		ReleaseOnCompletionFailure: cfg.ReleaseOnCompletionFailure,
		MoveCompletionResource:     cfg.MoveCompletionResource,
	}
}

// Completion describes a request that has just left its queue
type Completion struct {
	Request   *domain.StockRequest // snapshot taken before completion
	Kind      domain.QueueKind
	NextOwner uuid.UUID // profile whose queue the operator continues with
}

// StateMachine applies Dispatch, Complete and Cancel to a single stock request.
// The conditional claim in the store is the only concurrency guard.
type StateMachine struct {
	store     repository.RequestStore
	authz     security.Authorizer
	completer Completer
	publisher events.EventPublisher
	policy    Policy
	logger    *zap.Logger
	now       func() time.Time
}

// NewStateMachine creates a new state machine
func NewStateMachine(
	store repository.RequestStore,
	authz security.Authorizer,
	completer Completer,
	publisher events.EventPublisher,
	policy Policy,
	logger *zap.Logger,
) *StateMachine {
	return &StateMachine{
		store:     store,
		authz:     authz,
		completer: completer,
		publisher: publisher,
		policy:    policy,
		logger:    logger,
		now:       time.Now,
	}
}

// Dispatch hands the oldest eligible request of the finder's queue at owner to operator.
//
// Errors: domain.ErrNoEligibleRequest when the queue is empty, domain.ErrClaimConflict
// when another operator won the claim, domain.ErrPermissionDenied when the operator
// lacks the capability on the request profile (the claim is released again).
func (m *StateMachine) Dispatch(ctx context.Context, finder *repository.EligibleRequestFinder, owner, operator uuid.UUID) (*domain.WorkItem, error) {
	kind := finder.Kind()

	item, err := finder.Next(ctx, owner, operator)
	if err != nil {
		return nil, err
	}
	request := item.Request

	// already ours: re-fetch without a second claim
	if !request.ClaimedBy(operator) {
		affected, err := m.store.Claim(ctx, request.ID, operator)
		if err != nil {
			return nil, fmt.Errorf("failed to claim stock request %s: %w", request.ID, err)
		}
		if affected == 0 {
			m.logger.Info("Claim lost to another operator",
				zap.String("request_id", request.ID.String()),
				zap.String("operator", operator.String()),
			)
			return nil, domain.ErrClaimConflict
		}

		fixedAt := m.now().UTC()
		request.FixedBy = &operator
		request.FixedAt = &fixedAt
		m.publish(ctx, events.StockRequestFixedEvent{
			RequestID:  request.ID,
			Kind:       kind,
			Operator:   operator,
			OccurredAt: fixedAt,
		})
	}

	if !m.authz.IsGranted(operator, kind.Capability(), request.Profile) {
		m.logger.Warn("Operator not granted on request profile, releasing claim",
			zap.String("request_id", request.ID.String()),
			zap.String("operator", operator.String()),
			zap.String("capability", kind.Capability()),
		)
		if err := m.release(ctx, request.ID, operator, events.ReasonForbidden); err != nil {
			return nil, err
		}
		return nil, domain.ErrPermissionDenied
	}

	return item, nil
}

// Complete moves a claimed request out of its queue through the completer.
//
// The operator's capability is checked again first, against the owner for extraditions
// and against the policy's resource for moves; on failure the claim is released and
// domain.ErrPermissionDenied returned. A completer failure is wrapped in
// domain.ErrCompletionFailed and releases the claim only when the policy says so.
func (m *StateMachine) Complete(ctx context.Context, kind domain.QueueKind, requestID, operator uuid.UUID) (*Completion, error) {
	request, err := m.store.FindRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status != kind.Status() {
		return nil, domain.ErrRequestNotFound
	}

	resource := m.completionResource(kind, request)
	if !m.authz.IsGranted(operator, kind.Capability(), resource) {
		m.logger.Warn("Operator not granted to complete request, releasing claim",
			zap.String("request_id", request.ID.String()),
			zap.String("operator", operator.String()),
			zap.String("resource", resource.String()),
		)
		if err := m.release(ctx, request.ID, operator, events.ReasonForbidden); err != nil {
			return nil, err
		}
		return nil, domain.ErrPermissionDenied
	}

	if err := m.complete(ctx, kind, request.ID); err != nil {
		m.logger.Error("Completion failed",
			zap.String("request_id", request.ID.String()),
			zap.String("kind", string(kind)),
			zap.Bool("release", m.policy.ReleaseOnCompletionFailure),
			zap.Error(err),
		)
		if m.policy.ReleaseOnCompletionFailure {
			if relErr := m.release(ctx, request.ID, operator, events.ReasonCompletionError); relErr != nil {
				m.logger.Error("Failed to release claim after completion failure", zap.Error(relErr))
			}
		}
		if errors.Is(err, domain.ErrCompletionFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrCompletionFailed, err)
	}

	m.publish(ctx, events.StockRequestCompletedEvent{
		RequestID:   request.ID,
		Number:      request.Number,
		Kind:        kind,
		Status:      kind.CompletedStatus(),
		Profile:     request.Profile,
		Destination: request.Destination,
		Owner:       request.NextOwner(),
		Operator:    operator,
		OccurredAt:  m.now().UTC(),
	})

	m.logger.Info("Stock request completed",
		zap.String("request_id", request.ID.String()),
		zap.String("number", request.Number),
		zap.String("kind", string(kind)),
		zap.String("operator", operator.String()),
	)

	return &Completion{
		Request:   request,
		Kind:      kind,
		NextOwner: request.NextOwner(),
	}, nil
}

// Cancel returns the request to its queue whoever holds it
func (m *StateMachine) Cancel(ctx context.Context, requestID, operator uuid.UUID) error {
	return m.release(ctx, requestID, operator, events.ReasonCancelled)
}

func (m *StateMachine) completionResource(kind domain.QueueKind, request *domain.StockRequest) uuid.UUID {
	if kind == domain.KindMove &&
		m.policy.MoveCompletionResource != config.CompletionResourceOwner &&
		request.Destination != nil {
		return *request.Destination
	}
	return request.Profile
}

func (m *StateMachine) complete(ctx context.Context, kind domain.QueueKind, requestID uuid.UUID) error {
	if kind == domain.KindMove {
		return m.completer.CompleteMove(ctx, requestID)
	}
	return m.completer.CompleteExtradition(ctx, requestID)
}

// Release clears the claim without an ownership check. It reports false when the
// request does not exist.
func (m *StateMachine) Release(ctx context.Context, requestID, operator uuid.UUID, reason string) (bool, error) {
	affected, err := m.store.Release(ctx, requestID)
	if err != nil {
		return false, fmt.Errorf("failed to release stock request %s: %w", requestID, err)
	}
	if affected == 0 {
		return false, nil
	}

	m.publish(ctx, events.StockRequestReleasedEvent{
		RequestID:  requestID,
		Operator:   operator,
		Reason:     reason,
		OccurredAt: m.now().UTC(),
	})
	return true, nil
}

func (m *StateMachine) release(ctx context.Context, requestID, operator uuid.UUID, reason string) error {
	_, err := m.Release(ctx, requestID, operator, reason)
	return err
}

func (m *StateMachine) publish(ctx context.Context, event events.Event) {
	if err := m.publisher.Publish(ctx, event); err != nil {
		m.logger.Error("Failed to publish event",
			zap.String("event-type", event.EventType()),
			zap.Error(err),
		)
	}
}
