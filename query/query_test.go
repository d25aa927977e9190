package query

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adeilh/aura/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type product struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func newTestClient(t *testing.T, store *countingStore, opts ...ClientOption) *Client {
	t.Helper()
	c, err := NewClient(store, opts...)
	require.NoError(t, err)
	return c
}

func waitIdle[T any](t *testing.T, q *Query[T]) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Wait(ctx))
}

func TestNewValidatesArguments(t *testing.T) {
	c := newTestClient(t, newCountingStore())
	fetch := func(context.Context) (int, error) { return 1, nil }

	_, err := New[int](context.Background(), c, "", fetch)
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = New[int](context.Background(), c, "k", nil)
	assert.ErrorIs(t, err, ErrNilFetcher)

	_, err = NewClient(nil)
	assert.ErrorIs(t, err, ErrNilStore)
}

func TestCachedValueServedBeforeFetchResolves(t *testing.T) {
	store := newCountingStore()
	store.seed("aura_campaigns", `["cached"]`)
	c := newTestClient(t, store)

	release := make(chan struct{})
	q, err := New(context.Background(), c, "aura_campaigns", func(context.Context) ([]string, error) {
		<-release
		return []string{"fresh"}, nil
	})
	require.NoError(t, err)
	defer q.Close()

	st := q.State()
	assert.Equal(t, []string{"cached"}, st.Data)
	assert.False(t, st.Loading)
	assert.True(t, st.HasData)

	close(release)
	waitIdle(t, q)
	assert.Equal(t, []string{"fresh"}, q.State().Data)
}

func TestSuccessfulFetchWritesThrough(t *testing.T) {
	store := newCountingStore()
	c := newTestClient(t, store)

	var n atomic.Int32
	q, err := New(context.Background(), c, "aura_brain_voice", func(context.Context) (map[string]string, error) {
		if n.Add(1) == 1 {
			return map[string]string{"tone": "warm"}, nil
		}
		return map[string]string{"tone": "bold"}, nil
	})
	require.NoError(t, err)
	defer q.Close()
	waitIdle(t, q)

	raw, ok := store.raw("aura_brain_voice")
	require.True(t, ok)
	assert.JSONEq(t, `{"tone":"warm"}`, raw)

	require.NoError(t, q.Refresh(context.Background()))
	raw, _ = store.raw("aura_brain_voice")
	assert.JSONEq(t, `{"tone":"bold"}`, raw)

	decoded, ok, err := Read[map[string]string](context.Background(), c, "aura_brain_voice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, q.State().Data, decoded)
}

func TestFetchErrorKeepsDataAndNextSuccessClearsIt(t *testing.T) {
	store := newCountingStore()
	c := newTestClient(t, store)

	results := []struct {
		v   string
		err error
	}{
		{v: "a"},
		{err: errors.New("backend unavailable")},
		{v: "c"},
	}
	var n atomic.Int32
	q, err := New(context.Background(), c, "aura_campaign_1", func(context.Context) (string, error) {
		r := results[n.Add(1)-1]
		return r.v, r.err
	})
	require.NoError(t, err)
	defer q.Close()
	waitIdle(t, q)
	require.Equal(t, "a", q.State().Data)

	err = q.Refresh(context.Background())
	require.Error(t, err)
	st := q.State()
	assert.Equal(t, "a", st.Data)
	assert.EqualError(t, st.Err, "backend unavailable")
	assert.False(t, st.Loading)
	raw, _ := store.raw("aura_campaign_1")
	assert.Equal(t, `"a"`, raw)

	require.NoError(t, q.Refresh(context.Background()))
	st = q.State()
	assert.Equal(t, "c", st.Data)
	assert.NoError(t, st.Err)
}

func TestFailedFirstFetchStopsLoading(t *testing.T) {
	c := newTestClient(t, newCountingStore())
	q, err := New(context.Background(), c, "aura_assets_experts", func(context.Context) ([]product, error) {
		return nil, errors.New("timeout")
	}, WithInitialData([]product{}))
	require.NoError(t, err)
	defer q.Close()
	waitIdle(t, q)

	st := q.State()
	assert.False(t, st.Loading)
	assert.Error(t, st.Err)
	assert.Equal(t, []product{}, st.Data)
	assert.False(t, st.HasData)
}

func TestDisabledQueryDoesNothingUntilEnabled(t *testing.T) {
	store := newCountingStore()
	store.seed("aura_assets_products", `[{"id":"p0","name":"Old"}]`)
	c := newTestClient(t, store)

	var fetches atomic.Int32
	q, err := New(context.Background(), c, "aura_assets_products", func(context.Context) ([]product, error) {
		fetches.Add(1)
		return []product{{ID: "p1", Name: "Widget"}}, nil
	}, WithEnabled[[]product](false))
	require.NoError(t, err)
	defer q.Close()

	assert.ErrorIs(t, q.Refresh(context.Background()), ErrInactive)
	time.Sleep(20 * time.Millisecond)
	gets, sets := store.counts()
	assert.Zero(t, gets)
	assert.Zero(t, sets)
	assert.Zero(t, fetches.Load())
	assert.True(t, q.State().Loading)

	q.SetEnabled(true)
	gets, _ = store.counts()
	assert.Equal(t, 1, gets)
	assert.Equal(t, "p0", q.State().Data[0].ID)

	waitIdle(t, q)
	gets, _ = store.counts()
	assert.Equal(t, 1, gets)
	assert.EqualValues(t, 1, fetches.Load())

	q.SetEnabled(true)
	waitIdle(t, q)
	assert.EqualValues(t, 1, fetches.Load(), "re-enabling an active query is a no-op")
}

func TestIdentityGating(t *testing.T) {
	store := newCountingStore()
	ident := newFakeIdentity(nil)
	c := newTestClient(t, store, WithIdentitySource(ident))

	var fetches atomic.Int32
	q, err := New(context.Background(), c, "aura_campaigns", func(context.Context) (int, error) {
		return int(fetches.Add(1)), nil
	})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	gets, _ := store.counts()
	assert.Zero(t, gets)
	assert.Zero(t, fetches.Load())

	ident.set(&auth.Identity{ID: "user-1"})
	waitIdle(t, q)
	gets, _ = store.counts()
	assert.Equal(t, 1, gets)
	assert.EqualValues(t, 1, fetches.Load())

	// Token refresh re-delivers the same principal.
	ident.set(&auth.Identity{ID: "user-1", Email: "new@example.com"})
	waitIdle(t, q)
	assert.EqualValues(t, 1, fetches.Load())

	ident.set(nil)
	assert.ErrorIs(t, q.Refresh(context.Background()), ErrInactive)
	assert.Equal(t, 1, q.State().Data, "data survives sign-out")

	ident.set(&auth.Identity{ID: "user-2"})
	waitIdle(t, q)
	assert.EqualValues(t, 2, fetches.Load())

	q.Close()
	assert.Zero(t, ident.subscribers())
	ident.set(&auth.Identity{ID: "user-3"})
	assert.EqualValues(t, 2, fetches.Load())
}

func TestSetDataIsLocalOnly(t *testing.T) {
	store := newCountingStore()
	c := newTestClient(t, store)

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var fetches atomic.Int32
	q, err := New(context.Background(), c, "aura_content_email", func(context.Context) ([]string, error) {
		fetches.Add(1)
		started <- struct{}{}
		<-release
		return []string{"server"}, nil
	}, WithInitialData([]string{}))
	require.NoError(t, err)
	defer q.Close()
	<-started

	_, setsBefore := store.counts()
	q.SetData([]string{"optimistic"})

	assert.Equal(t, []string{"optimistic"}, q.State().Data)
	_, setsAfter := store.counts()
	assert.Equal(t, setsBefore, setsAfter)
	assert.EqualValues(t, 1, fetches.Load())

	close(release)
	waitIdle(t, q)
}

func TestConcurrentRefreshLastResolvedWins(t *testing.T) {
	store := newCountingStore()
	c := newTestClient(t, store)

	gates := []chan string{make(chan string), make(chan string), make(chan string)}
	started := make(chan int, len(gates))
	var calls atomic.Int32
	q, err := New(context.Background(), c, "aura_campaigns", func(context.Context) (string, error) {
		n := int(calls.Add(1)) - 1
		started <- n
		return <-gates[n], nil
	})
	require.NoError(t, err)
	defer q.Close()

	require.Equal(t, 0, <-started)
	gates[0] <- "initial"
	waitIdle(t, q)

	firstDone := make(chan struct{})
	go func() {
		_ = q.Refresh(context.Background())
		close(firstDone)
	}()
	require.Equal(t, 1, <-started)

	secondDone := make(chan struct{})
	go func() {
		_ = q.Refresh(context.Background())
		close(secondDone)
	}()
	require.Equal(t, 2, <-started)

	gates[2] <- "second"
	<-secondDone
	assert.Equal(t, "second", q.State().Data)

	gates[1] <- "first"
	<-firstDone

	assert.Equal(t, "first", q.State().Data)
	raw, _ := store.raw("aura_campaigns")
	assert.Equal(t, `"first"`, raw)
}

func TestAssetsEndToEnd(t *testing.T) {
	store := newCountingStore()
	c := newTestClient(t, store)

	q, err := New(context.Background(), c, "assets_products", func(ctx context.Context) ([]product, error) {
		select {
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return []product{{ID: "p1", Name: "Widget"}}, nil
	}, WithInitialData([]product{}))
	require.NoError(t, err)
	defer q.Close()

	st := q.State()
	assert.Equal(t, []product{}, st.Data)
	assert.True(t, st.Loading)

	waitIdle(t, q)

	st = q.State()
	assert.Equal(t, []product{{ID: "p1", Name: "Widget"}}, st.Data)
	assert.False(t, st.Loading)
	raw, ok := store.raw("assets_products")
	require.True(t, ok)
	assert.JSONEq(t, `[{"id":"p1","name":"Widget"}]`, raw)
}

func TestUndecodableEntryIsTreatedAsMiss(t *testing.T) {
	store := newCountingStore()
	store.seed("aura_brain_files", "{not json")
	var logs bytes.Buffer
	c := newTestClient(t, store, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	release := make(chan struct{})
	q, err := New(context.Background(), c, "aura_brain_files", func(context.Context) ([]string, error) {
		<-release
		return []string{"brand.pdf"}, nil
	})
	require.NoError(t, err)
	defer q.Close()

	st := q.State()
	assert.True(t, st.Loading)
	assert.NoError(t, st.Err)
	assert.False(t, st.HasData)

	close(release)
	waitIdle(t, q)
	assert.Equal(t, []string{"brand.pdf"}, q.State().Data)
	assert.Contains(t, logs.String(), "undecodable cache entry")
}

func TestPersistFailureIsReported(t *testing.T) {
	store := newCountingStore()
	store.setErr = errors.New("quota exceeded")
	c := newTestClient(t, store)

	q, err := New(context.Background(), c, "aura_campaigns", func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	defer q.Close()
	waitIdle(t, q)

	st := q.State()
	assert.Equal(t, 7, st.Data)
	assert.ErrorIs(t, st.Err, ErrPersist)
}

func TestFetchPanicBecomesError(t *testing.T) {
	c := newTestClient(t, newCountingStore())
	q, err := New(context.Background(), c, "aura_profile", func(context.Context) (string, error) {
		panic("nil map")
	})
	require.NoError(t, err)
	defer q.Close()
	waitIdle(t, q)

	assert.ErrorContains(t, q.State().Err, "panicked")
}

func TestSubscribeAndClose(t *testing.T) {
	store := newCountingStore()
	store.seed("aura_campaigns", `1`)
	c := newTestClient(t, store)

	release := make(chan struct{})
	q, err := New(context.Background(), c, "aura_campaigns", func(context.Context) (int, error) {
		<-release
		return 2, nil
	}, WithEnabled[int](false))
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []int
	unsubscribe := q.Subscribe(func(s State[int]) {
		mu.Lock()
		seen = append(seen, s.Data)
		mu.Unlock()
	})

	q.SetEnabled(true)
	close(release)
	waitIdle(t, q)
	q.SetData(3)

	mu.Lock()
	assert.Equal(t, []int{1, 2, 3}, seen)
	mu.Unlock()

	unsubscribe()
	q.SetData(4)
	mu.Lock()
	assert.Len(t, seen, 3)
	mu.Unlock()

	q.Close()
	assert.ErrorIs(t, q.Refresh(context.Background()), ErrClosed)
}

func TestSharedKeyConsumersAreIndependent(t *testing.T) {
	store := newCountingStore()
	c := newTestClient(t, store)

	var fetches atomic.Int32
	fetch := func(context.Context) (int, error) { return int(fetches.Add(1)), nil }

	a, err := New(context.Background(), c, "aura_campaigns", fetch)
	require.NoError(t, err)
	defer a.Close()
	waitIdle(t, a)

	b, err := New(context.Background(), c, "aura_campaigns", fetch)
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, 1, b.State().Data, "second consumer starts from the persisted snapshot")
	waitIdle(t, b)

	assert.EqualValues(t, 2, fetches.Load())
	assert.Equal(t, 1, a.State().Data)
	assert.Equal(t, 2, b.State().Data)
	raw, _ := store.raw("aura_campaigns")
	assert.Equal(t, "2", raw)
}

func TestListenerCanSetDataOnFetchedValue(t *testing.T) {
	store := newCountingStore()
	c := newTestClient(t, store)

	release := make(chan struct{})
	q, err := New(context.Background(), c, "aura_assets_products", func(context.Context) ([]product, error) {
		<-release
		return []product{{ID: "p1", Name: "Widget"}}, nil
	}, WithInitialData([]product{}))
	require.NoError(t, err)
	defer q.Close()

	q.Subscribe(func(st State[[]product]) {
		if st.UpdatedAt.IsZero() || (len(st.Data) > 0 && st.Data[0].ID == "new") {
			return
		}
		q.SetData(append([]product{{ID: "new"}}, st.Data...))
	})
	close(release)
	waitIdle(t, q)

	assert.Equal(t, []product{{ID: "new"}, {ID: "p1", Name: "Widget"}}, q.State().Data)
}

func TestListenerCanRefreshAfterError(t *testing.T) {
	store := newCountingStore()
	c := newTestClient(t, store)

	release := make(chan struct{})
	var calls atomic.Int32
	q, err := New(context.Background(), c, "aura_campaigns", func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			<-release
			return "", errors.New("offline")
		}
		return "fresh", nil
	})
	require.NoError(t, err)
	defer q.Close()

	var (
		mu   sync.Mutex
		seen []string
	)
	q.Subscribe(func(st State[string]) {
		mu.Lock()
		seen = append(seen, st.Data)
		mu.Unlock()
		if st.Err != nil {
			_ = q.Refresh(context.Background())
		}
	})
	close(release)
	waitIdle(t, q)

	st := q.State()
	assert.NoError(t, st.Err)
	assert.Equal(t, "fresh", st.Data)
	assert.EqualValues(t, 2, calls.Load())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"", "fresh"}, seen)
}
