package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"products-stocks-telegram/internal/config"
	"products-stocks-telegram/internal/domain"
	"products-stocks-telegram/internal/events"
	"products-stocks-telegram/internal/fulfillment"
	"products-stocks-telegram/internal/notify"
	"products-stocks-telegram/internal/repository"
	"products-stocks-telegram/internal/security"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEnv struct {
	store       *repository.InMemoryStore
	grants      *security.Grants
	publisher   *events.InMemoryEventPublisher
	coordinator *Coordinator
	warehouse   uuid.UUID
}

func newTestEnv(t *testing.T, options Options) *testEnv {
	t.Helper()
	env := &testEnv{
		store:     repository.NewInMemoryStore(),
		grants:    security.NewGrants(zap.NewNop()),
		publisher: events.NewInMemoryEventPublisher(zap.NewNop()),
		warehouse: uuid.New(),
	}
	machine := fulfillment.NewStateMachine(
		env.store,
		env.grants,
		fulfillment.NewStoreCompleter(env.store),
		env.publisher,
		fulfillment.Policy{MoveCompletionResource: config.CompletionResourceDestination},
		zap.NewNop(),
	)
	env.coordinator = NewCoordinator(env.store, machine, env.grants, options, zap.NewNop())
	require.NoError(t, env.store.SaveProfile(context.Background(), env.warehouse, "Склад Москва"))
	return env
}

// operator registers a chat bound to a new profile granted on the warehouse
func (e *testEnv) operator(t *testing.T, chatID int64, capabilities ...string) Operator {
	t.Helper()
	profile := uuid.New()
	require.NoError(t, e.store.SaveAccount(context.Background(), chatID, profile, true))
	for _, capability := range capabilities {
		e.grants.Grant(profile, capability, e.warehouse)
	}
	return Operator{ChatID: chatID, Profile: profile}
}

func (e *testEnv) extradition(t *testing.T, number string, at time.Time) *domain.StockRequest {
	t.Helper()
	request, err := domain.NewStockRequest(number, domain.KindExtradition, e.warehouse, nil)
	require.NoError(t, err)
	request.ModifiedAt = at
	request.DeliveryName = "Курьер"
	_, err = e.store.SaveRequest(context.Background(), request, []repository.LineRecord{{
		ProductID: uuid.New(),
		LineItem: domain.LineItem{
			ProductName:   "Triangle TR259",
			OfferName:     "Радиус",
			OfferValue:    "15",
			OfferPostfix:  "R15",
			VariationName: "Ширина",
			Quantity:      4,
		},
	}})
	require.NoError(t, err)
	return request
}

func hasAction(n notify.Notification, key string) bool {
	for _, a := range n.Actions {
		if a.Key == key {
			return true
		}
	}
	return false
}

func payloadOf(n notify.Notification, key string) string {
	for _, a := range n.Actions {
		if a.Key == key {
			return a.Payload
		}
	}
	return ""
}

func TestRequestNext_NoWork(t *testing.T) {
	env := newTestEnv(t, Options{})
	op := env.operator(t, 1, domain.CapabilityPackage)

	n, err := env.coordinator.RequestNext(context.Background(), domain.KindExtradition, op, env.warehouse)

	require.NoError(t, err)
	assert.Equal(t, "<b>Заказы для сборки отсутствуют</b>", n.Text)
	assert.True(t, hasAction(n, notify.KeyMenu))
	assert.False(t, hasAction(n, notify.KeyExtraditionDone))
}

func TestRequestNext_RendersWorkItem(t *testing.T) {
	env := newTestEnv(t, Options{})
	op := env.operator(t, 1, domain.CapabilityPackage)
	r1 := env.extradition(t, "1001", time.Now())

	n, err := env.coordinator.RequestNext(context.Background(), domain.KindExtradition, op, env.warehouse)

	require.NoError(t, err)
	assert.Equal(t, int64(1), n.ChatID)
	assert.Contains(t, n.Text, "📦 <b>Упаковка заказа:</b>")
	assert.Contains(t, n.Text, "Номер: <b>1001</b>")
	assert.Contains(t, n.Text, "Склад: <b>Склад Москва</b>")
	assert.Contains(t, n.Text, "Доставка: <b>Курьер</b>")
	assert.Contains(t, n.Text, "<b>Triangle TR259</b>")
	assert.Contains(t, n.Text, "Количество: <b>4 шт.</b>")
	assert.Equal(t, r1.ID.String(), payloadOf(n, notify.KeyExtraditionDone))
	assert.Equal(t, r1.ID.String(), payloadOf(n, notify.KeyExtraditionCancel))
}

func TestRequestNext_ConcurrentOperatorsGetDifferentRequests(t *testing.T) {
	env := newTestEnv(t, Options{})
	a := env.operator(t, 1, domain.CapabilityPackage)
	b := env.operator(t, 2, domain.CapabilityPackage)
	t0 := time.Now().Add(-time.Hour)
	r1 := env.extradition(t, "1", t0)
	r2 := env.extradition(t, "2", t0.Add(time.Minute))
	ctx := context.Background()

	na, err := env.coordinator.RequestNext(ctx, domain.KindExtradition, a, env.warehouse)
	require.NoError(t, err)
	nb, err := env.coordinator.RequestNext(ctx, domain.KindExtradition, b, env.warehouse)
	require.NoError(t, err)

	assert.Equal(t, r1.ID.String(), payloadOf(na, notify.KeyExtraditionDone))
	assert.Equal(t, r2.ID.String(), payloadOf(nb, notify.KeyExtraditionDone))
}

func TestRequestNext_IdempotentRefetch(t *testing.T) {
	env := newTestEnv(t, Options{})
	a := env.operator(t, 1, domain.CapabilityPackage)
	t0 := time.Now().Add(-time.Hour)
	r1 := env.extradition(t, "1", t0)
	env.extradition(t, "2", t0.Add(time.Minute))
	ctx := context.Background()

	first, err := env.coordinator.RequestNext(ctx, domain.KindExtradition, a, env.warehouse)
	require.NoError(t, err)
	second, err := env.coordinator.RequestNext(ctx, domain.KindExtradition, a, env.warehouse)
	require.NoError(t, err)

	assert.Equal(t, r1.ID.String(), payloadOf(first, notify.KeyExtraditionDone))
	assert.Equal(t, r1.ID.String(), payloadOf(second, notify.KeyExtraditionDone))
}

func TestRequestNext_AtMostOneClaimant(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.extradition(t, "1", time.Now())
	ctx := context.Background()

	const operators = 16
	ops := make([]Operator, operators)
	for i := range ops {
		ops[i] = env.operator(t, int64(i+1), domain.CapabilityPackage)
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		given int
	)
	for _, op := range ops {
		wg.Add(1)
		go func(op Operator) {
			defer wg.Done()
			n, err := env.coordinator.RequestNext(ctx, domain.KindExtradition, op, env.warehouse)
			assert.NoError(t, err)
			if hasAction(n, notify.KeyExtraditionDone) {
				mu.Lock()
				given++
				mu.Unlock()
			}
		}(op)
	}
	wg.Wait()

	assert.Equal(t, 1, given)
}

func TestRequestNext_ForbiddenReleasesClaim(t *testing.T) {
	env := newTestEnv(t, Options{})
	intruder := env.operator(t, 1)
	authorized := env.operator(t, 2, domain.CapabilityPackage)
	r1 := env.extradition(t, "1", time.Now())
	ctx := context.Background()

	n, err := env.coordinator.RequestNext(ctx, domain.KindExtradition, intruder, env.warehouse)
	require.NoError(t, err)
	assert.Equal(t, "⛔️ Недостаточно прав для упаковки заказа", n.Text)
	assert.False(t, hasAction(n, notify.KeyExtraditionDone))
	assert.False(t, hasAction(n, notify.KeyExtraditionCancel))

	n, err = env.coordinator.RequestNext(ctx, domain.KindExtradition, authorized, env.warehouse)
	require.NoError(t, err)
	assert.Equal(t, r1.ID.String(), payloadOf(n, notify.KeyExtraditionDone))
}

func TestOnCancel_OldestWinsAgain(t *testing.T) {
	env := newTestEnv(t, Options{})
	a := env.operator(t, 1, domain.CapabilityPackage)
	b := env.operator(t, 2, domain.CapabilityPackage)
	t0 := time.Now().Add(-time.Hour)
	r1 := env.extradition(t, "1", t0)
	env.extradition(t, "2", t0.Add(time.Minute))
	ctx := context.Background()

	_, err := env.coordinator.RequestNext(ctx, domain.KindExtradition, a, env.warehouse)
	require.NoError(t, err)

	n, err := env.coordinator.OnCancel(ctx, domain.KindExtradition, a, r1.ID)
	require.NoError(t, err)
	assert.Equal(t, "🛑 Процесс сборки <b>заказов</b> остановлен", n.Text)
	assert.True(t, hasAction(n, notify.KeyExtraditionStart))
	assert.False(t, hasAction(n, notify.KeyExtraditionDone))

	n, err = env.coordinator.RequestNext(ctx, domain.KindExtradition, b, env.warehouse)
	require.NoError(t, err)
	assert.Equal(t, r1.ID.String(), payloadOf(n, notify.KeyExtraditionDone))
}

func TestOnDone_ChainsToNextRequest(t *testing.T) {
	env := newTestEnv(t, Options{})
	a := env.operator(t, 1, domain.CapabilityPackage)
	t0 := time.Now().Add(-time.Hour)
	r1 := env.extradition(t, "1", t0)
	r2 := env.extradition(t, "2", t0.Add(time.Minute))
	ctx := context.Background()

	_, err := env.coordinator.RequestNext(ctx, domain.KindExtradition, a, env.warehouse)
	require.NoError(t, err)

	out, err := env.coordinator.OnDone(ctx, domain.KindExtradition, a, r1.ID)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, strings.HasPrefix(out[0].Text, "<b>Заказ укомплектован:</b>"))
	assert.Contains(t, out[0].Text, "Номер: <b>1</b>")
	assert.Equal(t, r2.ID.String(), payloadOf(out[1], notify.KeyExtraditionDone))

	// completion is terminal
	out, err = env.coordinator.OnDone(ctx, domain.KindExtradition, a, r2.ID)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "<b>Заказы для сборки отсутствуют</b>", out[1].Text)

	stored, err := env.store.FindRequest(ctx, r1.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExtradition, stored.Status)
}

func TestOnDone_MoveContinuesAtDestination(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	destination := uuid.New()
	require.NoError(t, env.store.SaveProfile(ctx, destination, "Склад Казань"))

	op := env.operator(t, 1, domain.CapabilityWarehouseSend)
	env.grants.Grant(op.Profile, domain.CapabilityWarehouseSend, destination)

	move, err := domain.NewStockRequest("M-1", domain.KindMove, env.warehouse, &destination)
	require.NoError(t, err)
	_, err = env.store.SaveRequest(ctx, move, nil)
	require.NoError(t, err)

	onward, err := domain.NewStockRequest("M-2", domain.KindMove, destination, &env.warehouse)
	require.NoError(t, err)
	_, err = env.store.SaveRequest(ctx, onward, nil)
	require.NoError(t, err)

	n, err := env.coordinator.RequestNext(ctx, domain.KindMove, op, env.warehouse)
	require.NoError(t, err)
	assert.Contains(t, n.Text, "Склад отгрузки: <b>Склад Москва</b>")
	assert.Contains(t, n.Text, "Склад назначения: <b>Склад Казань</b>")

	out, err := env.coordinator.OnDone(ctx, domain.KindMove, op, move.ID)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, strings.HasPrefix(out[0].Text, "<b>Заявка на перемещение укомплектована:</b>"))
	assert.Equal(t, onward.ID.String(), payloadOf(out[1], notify.KeyMoveDone))
}

func TestOnDone_ForbiddenReleasesClaim(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	destination := uuid.New()
	op := env.operator(t, 1, domain.CapabilityWarehouseSend)

	move, err := domain.NewStockRequest("M-1", domain.KindMove, env.warehouse, &destination)
	require.NoError(t, err)
	_, err = env.store.SaveRequest(ctx, move, nil)
	require.NoError(t, err)

	_, err = env.coordinator.RequestNext(ctx, domain.KindMove, op, env.warehouse)
	require.NoError(t, err)

	out, err := env.coordinator.OnDone(ctx, domain.KindMove, op, move.ID)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "⛔️ Недостаточно прав для выполнения заявки перемещения продукции между складами", out[0].Text)

	_, err = env.store.FindClaimant(ctx, move.ID)
	assert.ErrorIs(t, err, domain.ErrClaimantNotFound)
}

func TestStartMenu_ListsGrantedQueues(t *testing.T) {
	env := newTestEnv(t, Options{})
	op := env.operator(t, 1, domain.CapabilityPackage)

	n := env.coordinator.StartMenu(op)

	assert.True(t, hasAction(n, notify.KeyExtraditionStart))
	assert.False(t, hasAction(n, notify.KeyMoveStart))
	assert.True(t, hasAction(n, notify.KeyDeleteMessage))
}

func TestProfileMenu(t *testing.T) {
	env := newTestEnv(t, Options{})
	op := env.operator(t, 1, domain.CapabilityPackage)

	n, err := env.coordinator.ProfileMenu(context.Background(), domain.KindExtradition, op)

	require.NoError(t, err)
	assert.Equal(t, 1, n.Columns)
	require.Len(t, n.Actions, 1)
	assert.Equal(t, "Склад Москва", n.Actions[0].Label)
	assert.Equal(t, notify.KeyExtraditionNext, n.Actions[0].Key)
	assert.Equal(t, env.warehouse.String(), n.Actions[0].Payload)
}

func TestScan(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	a := env.operator(t, 1, domain.CapabilityPackage)
	b := env.operator(t, 2, domain.CapabilityPackage)
	require.NoError(t, env.store.SaveProfile(ctx, a.Profile, "ivanov"))
	r1 := env.extradition(t, "1", time.Now())

	n, err := env.coordinator.Scan(ctx, a, r1.ID)
	require.NoError(t, err)
	assert.Equal(t, r1.ID.String(), payloadOf(n, notify.KeyExtraditionDone))

	n, err = env.coordinator.Scan(ctx, b, r1.ID)
	require.NoError(t, err)
	assert.False(t, hasAction(n, notify.KeyExtraditionDone))
	assert.Contains(t, n.Text, "На сборке пользователем: <b>ivanov</b>")

	n, err = env.coordinator.Scan(ctx, b, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, requestNotFound, n.Text)
}

func TestHandle_RoutesAndDeletes(t *testing.T) {
	env := newTestEnv(t, Options{DeleteTrailingMessage: true})
	env.operator(t, 7, domain.CapabilityPackage)
	r1 := env.extradition(t, "1", time.Now())
	ctx := context.Background()

	out, err := env.coordinator.Handle(ctx, Event{
		ChatID:        7,
		MessageID:     10,
		LastMessageID: 9,
		Action:        notify.KeyExtraditionNext,
		Payload:       env.warehouse.String(),
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []int{10}, out[0].Delete, "only cancel removes the trailing message")
	assert.Equal(t, r1.ID.String(), payloadOf(out[0], notify.KeyExtraditionDone))

	out, err = env.coordinator.Handle(ctx, Event{
		ChatID:        7,
		MessageID:     13,
		LastMessageID: 9,
		Action:        notify.KeyExtraditionCancel,
		Payload:       r1.ID.String(),
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []int{13, 9}, out[0].Delete)

	out, err = env.coordinator.Handle(ctx, Event{ChatID: 7, MessageID: 11, Action: notify.KeyDeleteMessage})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []int{11}, out[0].Delete)
	assert.Empty(t, out[0].Text)

	out, err = env.coordinator.Handle(ctx, Event{ChatID: 7, MessageID: 12, Action: notify.KeyExtraditionDone, Payload: "not-a-uuid"})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestHandle_KeepsTrailingMessageWhenDisabled(t *testing.T) {
	env := newTestEnv(t, Options{DeleteTrailingMessage: false})
	env.operator(t, 7, domain.CapabilityPackage)

	r1 := env.extradition(t, "1", time.Now())
	ctx := context.Background()

	out, err := env.coordinator.Handle(ctx, Event{ChatID: 7, MessageID: 10, LastMessageID: 9, Text: "/start"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []int{10}, out[0].Delete)

	out, err = env.coordinator.Handle(ctx, Event{
		ChatID:        7,
		MessageID:     11,
		LastMessageID: 9,
		Action:        notify.KeyExtraditionCancel,
		Payload:       r1.ID.String(),
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []int{11}, out[0].Delete)
}

func TestHandle_UnknownChat(t *testing.T) {
	env := newTestEnv(t, Options{})

	out, err := env.coordinator.Handle(context.Background(), Event{ChatID: 99, MessageID: 1, Text: "/start"})

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, unknownOperator, out[0].Text)
}

// unavailableQueueStore fails every queue lookup
type unavailableQueueStore struct {
	*repository.InMemoryStore
}

func (s unavailableQueueStore) NextRequest(ctx context.Context, kind domain.QueueKind, owner, operator uuid.UUID) (*domain.StockRequest, error) {
	return nil, errors.New("connection refused")
}

func TestOnDone_DeliversSummaryWhenChainingFails(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	a := env.operator(t, 1, domain.CapabilityPackage)
	r1 := env.extradition(t, "1", time.Now().Add(-time.Hour))

	_, err := env.coordinator.RequestNext(ctx, domain.KindExtradition, a, env.warehouse)
	require.NoError(t, err)

	machine := fulfillment.NewStateMachine(
		env.store,
		env.grants,
		fulfillment.NewStoreCompleter(env.store),
		env.publisher,
		fulfillment.Policy{MoveCompletionResource: config.CompletionResourceDestination},
		zap.NewNop(),
	)
	coordinator := NewCoordinator(unavailableQueueStore{env.store}, machine, env.grants, Options{}, zap.NewNop())

	out, err := coordinator.OnDone(ctx, domain.KindExtradition, a, r1.ID)

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, strings.HasPrefix(out[0].Text, "<b>Заказ укомплектован:</b>"))

	stored, err := env.store.FindRequest(ctx, r1.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExtradition, stored.Status)
}
