package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"products-stocks-telegram/internal/domain"
	"products-stocks-telegram/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func run(t *testing.T, store repository.Store, args ...string) (string, error) {
	t.Helper()
	open := func(ctx context.Context) (repository.Store, error) { return store, nil }

	cmd := newRootCmd(open, zap.NewNop())
	var out strings.Builder
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func seedClaimed(t *testing.T, store *repository.InMemoryStore, operator uuid.UUID) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	request, err := domain.NewStockRequest("EX-1", domain.KindExtradition, uuid.New(), nil)
	require.NoError(t, err)
	_, err = store.SaveRequest(ctx, request, nil)
	require.NoError(t, err)
	affected, err := store.Claim(ctx, request.ID, operator)
	require.NoError(t, err)
	require.EqualValues(t, 1, affected)
	return request.ID
}

func TestMigrateCmd(t *testing.T) {
	out, err := run(t, repository.NewInMemoryStore(), "migrate")

	require.NoError(t, err)
	assert.Contains(t, out, "Schema is up to date")
}

func TestMigrateCmd_OpenFailure(t *testing.T) {
	open := func(ctx context.Context) (repository.Store, error) { return nil, errors.New("disk full") }
	cmd := newRootCmd(open, zap.NewNop())
	cmd.SetArgs([]string{"migrate"})

	err := cmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestClaimantAndReleaseCmds(t *testing.T) {
	store := repository.NewInMemoryStore()
	operator := uuid.New()
	require.NoError(t, store.SaveProfile(context.Background(), operator, "ivanov"))
	id := seedClaimed(t, store, operator)

	out, err := run(t, store, "claimant", id.String())
	require.NoError(t, err)
	assert.Contains(t, out, "claimed by ivanov")

	out, err = run(t, store, "release", id.String())
	require.NoError(t, err)
	assert.Contains(t, out, "Released request "+id.String())

	out, err = run(t, store, "claimant", id.String())
	require.NoError(t, err)
	assert.Contains(t, out, "is not claimed")
}

func TestReleaseCmd_Errors(t *testing.T) {
	store := repository.NewInMemoryStore()

	_, err := run(t, store, "release", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid request id")

	_, err = run(t, store, "release", uuid.New().String())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSweepCmd(t *testing.T) {
	store := repository.NewInMemoryStore()
	id := seedClaimed(t, store, uuid.New())
	time.Sleep(5 * time.Millisecond)

	out, err := run(t, store, "sweep", "--lease", "1ms")
	require.NoError(t, err)
	assert.Contains(t, out, "Released 1 expired claims")

	_, err = store.FindClaimant(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrClaimantNotFound)
}

func TestSweepCmd_RequiresLease(t *testing.T) {
	_, err := run(t, repository.NewInMemoryStore(), "sweep")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "--lease")
}

func TestLinkChatCmd(t *testing.T) {
	store := repository.NewInMemoryStore()
	profile := uuid.New()
	ctx := context.Background()

	out, err := run(t, store, "link-chat", "42", profile.String(), "--username", "petrov")
	require.NoError(t, err)
	assert.Contains(t, out, "Linked chat 42")

	got, err := store.ActiveProfileForChat(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, profile, got)
	name, err := store.ProfileName(ctx, profile)
	require.NoError(t, err)
	assert.Equal(t, "petrov", name)

	_, err = run(t, store, "link-chat", "42", profile.String(), "--inactive")
	require.NoError(t, err)
	_, err = store.ActiveProfileForChat(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrOperatorUnknown)
}
