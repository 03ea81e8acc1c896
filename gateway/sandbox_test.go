package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSandboxLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewSandbox()

	in, err := s.CreateIntent(ctx, CreateIntentParams{AmountMinor: 250000, Currency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, IntentPending, in.Status)
	assert.Equal(t, "usd", in.Currency)
	assert.NotEmpty(t, in.ClientSecret)

	require.NoError(t, s.Settle(in.ID, IntentSucceeded, "pm_sandbox"))
	got, err := s.RetrieveIntent(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, IntentSucceeded, got.Status)
	assert.Equal(t, "pm_sandbox", got.PaymentMethod)

	_, err = s.RetrieveIntent(ctx, "pi_missing")
	assert.ErrorIs(t, err, ErrRejected)
	assert.ErrorIs(t, err, ErrUnknownIntent)
}

func TestSandboxIdempotencyKey(t *testing.T) {
	s := NewSandbox()
	p := CreateIntentParams{AmountMinor: 100000, Currency: "usd", IdempotencyKey: "k1"}
	a, err := s.CreateIntent(context.Background(), p)
	require.NoError(t, err)
	b, err := s.CreateIntent(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
}

func TestSandboxInjectedFailures(t *testing.T) {
	s := NewSandbox()
	boom := transient("create intent", errors.New("connection reset"))
	s.FailNextCreate(boom)

	_, err := s.CreateIntent(context.Background(), CreateIntentParams{AmountMinor: 100000, Currency: "usd"})
	assert.ErrorIs(t, err, ErrTransient)

	in, err := s.CreateIntent(context.Background(), CreateIntentParams{AmountMinor: 100000, Currency: "usd"})
	require.NoError(t, err)

	s.FailNextRetrieve(rejected("retrieve intent", errors.New("no such intent")))
	_, err = s.RetrieveIntent(context.Background(), in.ID)
	assert.ErrorIs(t, err, ErrRejected)
	_, err = s.RetrieveIntent(context.Background(), in.ID)
	assert.NoError(t, err)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "rejected", Outcome(rejected("op", errors.New("x"))))
	assert.Equal(t, "transient", Outcome(transient("op", errors.New("x"))))
	assert.Equal(t, "transient", Outcome(errors.New("unclassified")))
}

func TestInstrumentPassesThrough(t *testing.T) {
	s := NewSandbox()
	g := Instrument(s, nil)
	in, err := g.CreateIntent(context.Background(), CreateIntentParams{AmountMinor: 100000, Currency: "usd"})
	require.NoError(t, err)
	got, err := g.RetrieveIntent(context.Background(), in.ID)
	require.NoError(t, err)
	assert.Equal(t, in.ID, got.ID)
}
