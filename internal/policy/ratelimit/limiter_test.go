package ratelimit

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterWaitDelaysSecondToken(t *testing.T) {
	t.Parallel()

	// 10 RPS with burst 1 releases a token every 100ms.
	l := New(Config{DefaultRPS: 10, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://steamcommunity.com/id/a"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://steamcommunity.com/id/b"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiterDomainsAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 1, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.example.com/1"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.example.com/1"))
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiterWaitHonorsContext(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 0.1, DefaultBurst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://a.example.com"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx, "https://a.example.com"))
}

func TestLimiterZeroRateIsUnlimited(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	start := time.Now()
	for range 50 {
		require.NoError(t, l.Wait(context.Background(), "https://a.example.com"))
	}
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

type countingFetcher struct {
	calls atomic.Int32
	err   error
}

func (f *countingFetcher) Fetch(context.Context, string) ([]byte, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return []byte("ok"), nil
}

func TestWrapDelegates(t *testing.T) {
	t.Parallel()

	next := &countingFetcher{}
	fetcher := New(Config{DefaultRPS: 100, DefaultBurst: 5}).Wrap(next)

	body, err := fetcher.Fetch(context.Background(), "https://steamcommunity.com/x")
	require.NoError(t, err)
	require.Equal(t, "ok", string(body))
	require.EqualValues(t, 1, next.calls.Load())

	boom := errors.New("boom")
	next.err = boom
	_, err = fetcher.Fetch(context.Background(), "https://steamcommunity.com/x")
	require.ErrorIs(t, err, boom)
}

func TestWrapSkipsFetchWhenWaitFails(t *testing.T) {
	t.Parallel()

	next := &countingFetcher{}
	fetcher := New(Config{DefaultRPS: 1, DefaultBurst: 1}).Wrap(next)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fetcher.Fetch(ctx, "https://steamcommunity.com/x")
	require.Error(t, err)
	require.Zero(t, next.calls.Load())
}
