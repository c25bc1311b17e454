package dispatch

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"products-stocks-telegram/internal/domain"
	"products-stocks-telegram/internal/fulfillment"
	"products-stocks-telegram/internal/notify"
	"products-stocks-telegram/internal/repository"
	"products-stocks-telegram/internal/security"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "products-stocks-telegram/dispatch"

// Store is what the coordinator reads and claims through
type Store interface {
	repository.RequestStore
	repository.AccountStore
}

// Options tunes transport-facing behaviour
type Options struct {
	// DeleteTrailingMessage makes Cancel also remove the chat's previous bot message,
	// not only the one whose button was pressed.
	DeleteTrailingMessage bool
}

// Operator is the explicit identity every coordinator call acts for
type Operator struct {
	ChatID  int64
	Profile uuid.UUID
}

// Coordinator turns operator actions into notifications. Business errors never
// escape it; only infrastructure failures are returned.
type Coordinator struct {
	store   Store
	finders map[domain.QueueKind]*repository.EligibleRequestFinder
	machine *fulfillment.StateMachine
	authz   security.Authorizer
	options Options
	logger  *zap.Logger
	now     func() time.Time

	tracer      trace.Tracer
	dispatched  metric.Int64Counter
	lostClaims  metric.Int64Counter
	completions metric.Int64Counter
	cancels     metric.Int64Counter
}

// NewCoordinator creates a coordinator serving both queues
func NewCoordinator(store Store, machine *fulfillment.StateMachine, authz security.Authorizer, options Options, logger *zap.Logger) *Coordinator {
	c := &Coordinator{
		store:   store,
		finders: make(map[domain.QueueKind]*repository.EligibleRequestFinder, len(domain.QueueKinds)),
		machine: machine,
		authz:   authz,
		options: options,
		logger:  logger,
		now:     time.Now,
		tracer:  otel.Tracer(instrumentationName),
	}
	for _, kind := range domain.QueueKinds {
		c.finders[kind] = repository.NewFinder(store, kind)
	}

	meter := otel.Meter(instrumentationName)
	c.dispatched = newCounter(meter, "stock_requests_dispatched_total", "Requests handed to an operator", logger)
	c.lostClaims = newCounter(meter, "stock_requests_claim_lost_total", "Claims lost to another operator", logger)
	c.completions = newCounter(meter, "stock_requests_completed_total", "Requests completed by operators", logger)
	c.cancels = newCounter(meter, "stock_requests_cancelled_total", "Requests returned to the queue", logger)
	return c
}

func newCounter(meter metric.Meter, name, description string, logger *zap.Logger) metric.Int64Counter {
	counter, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		logger.Warn("Failed to create counter", zap.String("name", name), zap.Error(err))
	}
	return counter
}

func (c *Coordinator) count(ctx context.Context, counter metric.Int64Counter, kind domain.QueueKind) {
	if counter != nil {
		counter.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
	}
}

// ResolveOperator maps a chat to its active operator profile
func (c *Coordinator) ResolveOperator(ctx context.Context, chatID int64) (Operator, error) {
	profile, err := c.store.ActiveProfileForChat(ctx, chatID)
	if err != nil {
		return Operator{}, err
	}
	return Operator{ChatID: chatID, Profile: profile}, nil
}

// RequestNext finds, claims and renders the oldest eligible request of kind at owner
func (c *Coordinator) RequestNext(ctx context.Context, kind domain.QueueKind, op Operator, owner uuid.UUID) (notify.Notification, error) {
	ctx, span := c.tracer.Start(ctx, "dispatch.RequestNext", trace.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("owner", owner.String()),
		attribute.String("operator", op.Profile.String()),
	))
	defer span.End()

	item, err := c.machine.Dispatch(ctx, c.finders[kind], owner, op.Profile)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNoEligibleRequest):
		return c.noWork(kind, op), nil
	case errors.Is(err, domain.ErrClaimConflict):
		// a lost race reads as an empty queue; no retry for the next-oldest
		c.count(ctx, c.lostClaims, kind)
		return c.noWork(kind, op), nil
	case errors.Is(err, domain.ErrPermissionDenied):
		return c.forbidden(kind, op), nil
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return notify.Notification{}, err
	}

	span.SetAttributes(attribute.String("request_id", item.Request.ID.String()))
	c.count(ctx, c.dispatched, kind)
	c.logger.Debug("Stock request dispatched",
		zap.String("kind", string(kind)),
		zap.String("number", item.Request.Number),
		zap.String("request_id", item.Request.ID.String()),
		zap.String("operator", op.Profile.String()),
	)

	return notify.Notification{
		ChatID:  op.ChatID,
		Text:    formatWorkItem(kind, item),
		Actions: workActions(kind, item.Request.ID.String()),
	}, nil
}

// OnDone completes the request and, on success, chains straight into the next one
// at the profile the completed request hands over to.
func (c *Coordinator) OnDone(ctx context.Context, kind domain.QueueKind, op Operator, requestID uuid.UUID) ([]notify.Notification, error) {
	ctx, span := c.tracer.Start(ctx, "dispatch.OnDone", trace.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("request_id", requestID.String()),
		attribute.String("operator", op.Profile.String()),
	))
	defer span.End()

	completion, err := c.machine.Complete(ctx, kind, requestID, op.Profile)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrRequestNotFound):
		return []notify.Notification{c.noWork(kind, op)}, nil
	case errors.Is(err, domain.ErrPermissionDenied):
		return []notify.Notification{c.forbidden(kind, op)}, nil
	case errors.Is(err, domain.ErrCompletionFailed):
		span.RecordError(err)
		return []notify.Notification{{
			ChatID:  op.ChatID,
			Text:    fmt.Sprintf(texts[kind].failure, html.EscapeString(err.Error())),
			Actions: terminalActions(),
		}}, nil
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	c.count(ctx, c.completions, kind)
	done := notify.Notification{
		ChatID: op.ChatID,
		Text:   formatCompleted(kind, completion.Request.Number, c.now()),
	}

	// the completion is committed, so the summary goes out even if chaining fails
	next, err := c.RequestNext(ctx, kind, op, completion.NextOwner)
	if err != nil {
		c.logger.Error("Failed to dispatch the next request",
			zap.String("kind", string(kind)),
			zap.String("owner", completion.NextOwner.String()),
			zap.Error(err),
		)
		return []notify.Notification{done}, nil
	}
	return []notify.Notification{done, next}, nil
}

// OnCancel returns the request to its queue and stops the loop
func (c *Coordinator) OnCancel(ctx context.Context, kind domain.QueueKind, op Operator, requestID uuid.UUID) (notify.Notification, error) {
	ctx, span := c.tracer.Start(ctx, "dispatch.OnCancel", trace.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("request_id", requestID.String()),
	))
	defer span.End()

	if err := c.machine.Cancel(ctx, requestID, op.Profile); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return notify.Notification{}, err
	}
	c.count(ctx, c.cancels, kind)

	c.logger.Debug("Operator stopped processing",
		zap.String("kind", string(kind)),
		zap.String("request_id", requestID.String()),
		zap.String("operator", op.Profile.String()),
	)

	return notify.Notification{
		ChatID: op.ChatID,
		Text:   texts[kind].stopped,
		Actions: []notify.Action{
			deleteAction(),
			menuAction(),
			{Label: texts[kind].resume, Key: keys[kind].profiles},
		},
	}, nil
}

// StartMenu greets the operator with the queues they can work
func (c *Coordinator) StartMenu(op Operator) notify.Notification {
	actions := []notify.Action{deleteAction()}
	for _, kind := range domain.QueueKinds {
		if c.authz.IsGrantedAny(op.Profile, kind.Capability()) {
			actions = append(actions, notify.Action{Label: texts[kind].menuButton, Key: keys[kind].profiles})
		}
	}

	return notify.Notification{
		ChatID:  op.ChatID,
		Text:    fmt.Sprintf(startGreeting, c.now().Format("02.01")),
		Actions: actions,
	}
}

// ProfileMenu lists every profile the operator may work kind for
func (c *Coordinator) ProfileMenu(ctx context.Context, kind domain.QueueKind, op Operator) (notify.Notification, error) {
	profiles := c.authz.ProfilesFor(op.Profile, kind.Capability())
	if len(profiles) == 0 {
		return c.forbidden(kind, op), nil
	}

	actions := make([]notify.Action, 0, len(profiles))
	for _, profile := range profiles {
		name, err := c.store.ProfileName(ctx, profile)
		if err != nil {
			return notify.Notification{}, err
		}
		if name == "" {
			name = profile.String()
		}
		actions = append(actions, notify.Action{Label: name, Key: keys[kind].next, Payload: profile.String()})
	}

	return notify.Notification{
		ChatID:  op.ChatID,
		Text:    texts[kind].profileTitle,
		Actions: actions,
		Columns: 1,
	}, nil
}

// Scan opens a request by id, e.g. from a QR code. An unclaimed request is claimed
// when the operator holds the queue capability anywhere; a request held by someone
// else is shown read-only with the holder's name.
func (c *Coordinator) Scan(ctx context.Context, op Operator, requestID uuid.UUID) (notify.Notification, error) {
	ctx, span := c.tracer.Start(ctx, "dispatch.Scan", trace.WithAttributes(
		attribute.String("request_id", requestID.String()),
	))
	defer span.End()

	request, err := c.store.FindRequest(ctx, requestID)
	if errors.Is(err, domain.ErrRequestNotFound) {
		return notify.Notification{ChatID: op.ChatID, Text: requestNotFound, Actions: terminalActions()}, nil
	}
	if err != nil {
		return notify.Notification{}, err
	}
	kind, ok := request.Kind()
	if !ok {
		return notify.Notification{ChatID: op.ChatID, Text: requestNotFound, Actions: terminalActions()}, nil
	}

	granted := c.authz.IsGrantedAny(op.Profile, kind.Capability())
	if granted && !request.IsClaimed() {
		affected, err := c.store.Claim(ctx, request.ID, op.Profile)
		if err != nil {
			return notify.Notification{}, err
		}
		if affected == 1 {
			request.FixedBy = &op.Profile
			c.count(ctx, c.dispatched, kind)
		} else {
			c.count(ctx, c.lostClaims, kind)
			if request, err = c.store.FindRequest(ctx, requestID); err != nil {
				return notify.Notification{}, err
			}
		}
	}

	lines, err := c.finders[kind].LineItems(ctx, request)
	if err != nil {
		return notify.Notification{}, err
	}
	text := formatWorkItem(kind, &domain.WorkItem{Request: request, LineItems: lines})

	if granted && request.ClaimedBy(op.Profile) {
		return notify.Notification{
			ChatID:  op.ChatID,
			Text:    text,
			Actions: workActions(kind, request.ID.String()),
		}, nil
	}

	if request.IsClaimed() {
		claimant, err := c.store.FindClaimant(ctx, request.ID)
		if err != nil && !errors.Is(err, domain.ErrClaimantNotFound) {
			return notify.Notification{}, err
		}
		if claimant != nil {
			text += "\n" + formatClaimedBy(claimant)
		}
	}

	return notify.Notification{ChatID: op.ChatID, Text: text, Actions: terminalActions()}, nil
}

func (c *Coordinator) noWork(kind domain.QueueKind, op Operator) notify.Notification {
	return notify.Notification{ChatID: op.ChatID, Text: texts[kind].noWork, Actions: terminalActions()}
}

func (c *Coordinator) forbidden(kind domain.QueueKind, op Operator) notify.Notification {
	return notify.Notification{ChatID: op.ChatID, Text: texts[kind].forbidden, Actions: terminalActions()}
}
