package feed

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPaginatorScenario(t *testing.T) {
	ctx := context.Background()
	pager := newFakePager(2)
	pager.seed("c1", 5)
	f := NewFeed(OrphanDrop)
	p := NewPaginator(f, pager, 2)

	require.NoError(t, p.LoadInitial(ctx, "c1"))
	require.Equal(t, 3, p.Remaining())
	require.True(t, p.HasMore())

	require.NoError(t, p.LoadOlder(ctx))
	require.Equal(t, 1, p.Remaining())
	require.Equal(t, []fetchCall{{"c1", 0}, {"c1", 2}}, pager.fetches())
	require.Equal(t, []string{"c1-m5", "c1-m4", "c1-m3", "c1-m2"}, ids(f.Snapshot()))
}

func TestPaginatorRemainingNeverIncreases(t *testing.T) {
	ctx := context.Background()
	pager := newFakePager(3)
	pager.seed("c1", 10)
	f := NewFeed(OrphanDrop)
	p := NewPaginator(f, pager, 3)

	require.NoError(t, p.LoadInitial(ctx, "c1"))
	prev := p.Remaining()
	require.Equal(t, 7, prev)

	for range 6 {
		require.NoError(t, p.LoadOlder(ctx))
		cur := p.Remaining()
		require.LessOrEqual(t, cur, prev)
		require.GreaterOrEqual(t, cur, 0)
		prev = cur
	}
	require.False(t, p.HasMore())
	require.Equal(t, 10, f.Snapshot().Len())
	require.Len(t, pager.fetches(), 4, "no fetch once history is exhausted")
}

func TestPaginatorEmptyInitialPage(t *testing.T) {
	pager := newFakePager(20)
	p := NewPaginator(NewFeed(OrphanDrop), pager, 0)

	require.Equal(t, DefaultPageSize, p.PageSize())
	require.NoError(t, p.LoadInitial(context.Background(), "empty"))
	require.Zero(t, p.Remaining())
	require.NoError(t, p.LoadOlder(context.Background()))
	require.Len(t, pager.fetches(), 1)
}

func TestPaginatorLoadOlderIsSingleFlight(t *testing.T) {
	ctx := context.Background()
	pager := newFakePager(2)
	pager.seed("c1", 6)
	p := NewPaginator(NewFeed(OrphanDrop), pager, 2)
	require.NoError(t, p.LoadInitial(ctx, "c1"))

	pager.block()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		require.NoError(t, p.LoadOlder(ctx))
	}()
	<-pager.started

	require.NoError(t, p.LoadOlder(ctx))
	require.NoError(t, p.LoadOlder(ctx))

	pager.release()
	wg.Wait()

	require.Len(t, pager.fetches(), 2)
	require.Equal(t, 2, p.Remaining())

	require.NoError(t, p.LoadOlder(ctx))
	require.Len(t, pager.fetches(), 3, "trigger fires again after completion")
}

func TestPaginatorDiscardsLatePageAfterSwitch(t *testing.T) {
	ctx := context.Background()
	pager := newFakePager(2)
	pager.seed("c1", 6)
	pager.seed("c2", 1)
	f := NewFeed(OrphanDrop)
	p := NewPaginator(f, pager, 2)
	require.NoError(t, p.LoadInitial(ctx, "c1"))

	pager.block()
	done := make(chan error, 1)
	go func() { done <- p.LoadOlder(ctx) }()
	<-pager.started

	f.Apply(Reset{ConversationID: "c2"})
	p.Reset()
	pager.release()
	require.NoError(t, <-done)

	require.NoError(t, p.LoadInitial(ctx, "c2"))
	require.Equal(t, []string{"c2-m1"}, ids(f.Snapshot()))
	require.Zero(t, p.Remaining())
}

func TestPaginatorFetchError(t *testing.T) {
	ctx := context.Background()
	pager := newFakePager(2)
	pager.seed("c1", 4)
	p := NewPaginator(NewFeed(OrphanDrop), pager, 2)
	require.NoError(t, p.LoadInitial(ctx, "c1"))

	pager.fail(errBackend)
	err := p.LoadOlder(ctx)
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, 2, fetchErr.Offset)
	require.True(t, errors.Is(err, errBackend))
	require.Equal(t, 2, p.Remaining(), "failed fetch keeps the cursor")

	pager.fail(nil)
	require.NoError(t, p.LoadOlder(ctx))
	require.Zero(t, p.Remaining())

	require.ErrorIs(t, p.LoadInitial(ctx, ""), ErrNoConversation)
}
