package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/eldtechnologies/abxy/internal/client"
	"github.com/eldtechnologies/abxy/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeTicker struct {
	ch      chan time.Time
	stopped atomic.Int32
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               { f.stopped.Add(1) }

type tickerFactory struct {
	mu      sync.Mutex
	tickers []*fakeTicker
}

func (f *tickerFactory) New(time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time)}
	f.tickers = append(f.tickers, t)
	return t
}

func (f *tickerFactory) all() []*fakeTicker {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeTicker(nil), f.tickers...)
}

// gatedFetch hands out one gate per call; call n returns replies[n] once its
// gate is released.
type gatedFetch struct {
	mu      sync.Mutex
	calls   int
	gates   []chan struct{}
	replies [][]models.Message
	errs    []error
}

func newGatedFetch(n int) *gatedFetch {
	g := &gatedFetch{}
	for i := 0; i < n; i++ {
		g.gates = append(g.gates, make(chan struct{}))
		g.replies = append(g.replies, []models.Message{msg(fmt.Sprint(i), fmt.Sprintf("reply %d", i))})
		g.errs = append(g.errs, nil)
	}
	return g
}

func (g *gatedFetch) Fetch(ctx context.Context) ([]models.Message, error) {
	g.mu.Lock()
	n := g.calls
	g.calls++
	g.mu.Unlock()

	if n >= len(g.gates) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	select {
	case <-g.gates[n]:
		return g.replies[n], g.errs[n]
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *gatedFetch) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *gatedFetch) release(n int) { close(g.gates[n]) }

func msg(id, content string) models.Message {
	return models.Message{
		ID:        id,
		Content:   content,
		CreatedAt: models.NewTimestamp(time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)),
		User:      &models.Author{Email: "a@x.com"},
	}
}

func receive(t *testing.T, p *Poller) FetchResult {
	t.Helper()
	select {
	case r := <-p.Results():
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fetch result")
		return FetchResult{}
	}
}

func newTestRoom(t *testing.T, fetch FetchFunc) (*Room, *Poller, *tickerFactory) {
	t.Helper()
	tf := &tickerFactory{}
	p := NewPoller(fetch, time.Second, WithTicker(tf.New))
	r := NewRoom(p, zerolog.Nop())
	t.Cleanup(r.Close)
	return r, p, tf
}

var alice = &models.Identity{ID: "u1", Email: "a@x.com"}

func TestPollerStartFetchesImmediatelyAndOnTick(t *testing.T) {
	g := newGatedFetch(2)
	tf := &tickerFactory{}
	p := NewPoller(g.Fetch, time.Second, WithTicker(tf.New))
	defer p.Stop()

	gen := p.Start()
	assert.EqualValues(t, 1, gen)
	require.Len(t, tf.all(), 1)

	g.release(0)
	r := receive(t, p)
	assert.Equal(t, gen, r.Generation)
	assert.Equal(t, "reply 0", r.Messages[0].Content)
	assert.Equal(t, 1, g.Calls())

	tf.all()[0].ch <- time.Now()
	g.release(1)
	r = receive(t, p)
	assert.Equal(t, "reply 1", r.Messages[0].Content)
	assert.Equal(t, 2, g.Calls())
}

func TestPollerStartTwiceKeepsOneTimer(t *testing.T) {
	g := newGatedFetch(1)
	tf := &tickerFactory{}
	p := NewPoller(g.Fetch, time.Second, WithTicker(tf.New))
	defer p.Stop()

	first := p.Start()
	second := p.Start()
	assert.Equal(t, first, second)
	assert.Len(t, tf.all(), 1)
}

func TestPollerStopIsIdempotent(t *testing.T) {
	g := newGatedFetch(1)
	tf := &tickerFactory{}
	p := NewPoller(g.Fetch, time.Second, WithTicker(tf.New))

	p.Stop() // before Start
	p.Start()
	p.Stop()
	p.Stop()

	require.Len(t, tf.all(), 1)
	assert.EqualValues(t, 1, tf.all()[0].stopped.Load())
	assert.False(t, p.Running())

	// the in-flight fetch was cancelled and nothing was delivered
	select {
	case r := <-p.Results():
		t.Fatalf("unexpected result after stop: %+v", r)
	default:
	}
}

func TestPollerRestartBumpsGeneration(t *testing.T) {
	g := newGatedFetch(2)
	tf := &tickerFactory{}
	p := NewPoller(g.Fetch, time.Second, WithTicker(tf.New))
	defer p.Stop()

	first := p.Start()
	p.Stop()
	second := p.Start()
	assert.Equal(t, first+1, second)
	assert.Len(t, tf.all(), 2)
}

func TestPollerKeepsPollingAfterError(t *testing.T) {
	g := newGatedFetch(2)
	g.errs[0] = errors.New("boom")
	tf := &tickerFactory{}
	p := NewPoller(g.Fetch, time.Second, WithTicker(tf.New))
	defer p.Stop()

	p.Start()
	g.release(0)
	r := receive(t, p)
	assert.EqualError(t, r.Err, "boom")

	tf.all()[0].ch <- time.Now()
	g.release(1)
	r = receive(t, p)
	assert.NoError(t, r.Err)
}

func TestNewPollerDefaultsInterval(t *testing.T) {
	p := NewPoller(nil, 0)
	assert.Equal(t, DefaultPollInterval, p.interval)
}

func TestRoomGateStartsAndStopsPolling(t *testing.T) {
	g := newGatedFetch(1)
	room, p, tf := newTestRoom(t, g.Fetch)

	assert.Equal(t, ViewAuth, room.View())

	room.SetAuthenticated(true, alice)
	assert.Equal(t, ViewChat, room.View())
	assert.True(t, p.Running())
	require.Len(t, tf.all(), 1)

	g.release(0)
	room.Apply(receive(t, p))
	require.Len(t, room.Messages(), 1)

	room.SetAuthenticated(false, nil)
	assert.Equal(t, ViewAuth, room.View())
	assert.False(t, p.Running())
	assert.Empty(t, room.Messages())
	assert.EqualValues(t, 1, tf.all()[0].stopped.Load())

	// same flag again is a no-op
	room.SetAuthenticated(false, nil)
	assert.EqualValues(t, 1, tf.all()[0].stopped.Load())
}

func TestRoomPreservesBackendOrder(t *testing.T) {
	g := newGatedFetch(1)
	g.replies[0] = []models.Message{msg("3", "c"), msg("1", "a"), msg("2", "b")}
	room, p, _ := newTestRoom(t, g.Fetch)

	room.SetAuthenticated(true, alice)
	g.release(0)
	room.Apply(receive(t, p))

	var got []string
	for _, m := range room.Messages() {
		got = append(got, m.Content)
	}
	assert.Equal(t, []string{"c", "a", "b"}, got)
}

func TestRoomLastProcessedFetchWins(t *testing.T) {
	g := newGatedFetch(2)
	room, p, tf := newTestRoom(t, g.Fetch)

	room.SetAuthenticated(true, alice)
	tf.all()[0].ch <- time.Now()
	require.Eventually(t, func() bool { return g.Calls() == 2 }, time.Second, time.Millisecond)

	// the later-issued fetch resolves first
	g.release(1)
	room.Apply(receive(t, p))
	assert.Equal(t, "reply 1", room.Messages()[0].Content)

	g.release(0)
	room.Apply(receive(t, p))
	assert.Equal(t, "reply 0", room.Messages()[0].Content)
}

func TestRoomFailedFetchKeepsList(t *testing.T) {
	room, _, _ := newTestRoom(t, func(ctx context.Context) ([]models.Message, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	room.SetAuthenticated(true, alice)
	gen := room.Generation()

	room.Apply(FetchResult{Generation: gen, Messages: []models.Message{msg("1", "hi")}})
	unauthorized := room.Apply(FetchResult{Generation: gen, Err: errors.New("network down")})

	assert.False(t, unauthorized)
	assert.Len(t, room.Messages(), 1)
	assert.EqualError(t, room.FetchErr(), "network down")

	assert.True(t, room.Apply(FetchResult{Generation: gen, Err: client.ErrUnauthorized}))
}

func TestRoomDropsStaleGeneration(t *testing.T) {
	room, _, _ := newTestRoom(t, func(ctx context.Context) ([]models.Message, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	room.SetAuthenticated(true, alice)
	old := room.Generation()
	room.SetAuthenticated(false, nil)
	room.SetAuthenticated(true, alice)

	room.Apply(FetchResult{Generation: old, Messages: []models.Message{msg("1", "stale")}})
	assert.Empty(t, room.Messages())

	room.SetAuthenticated(false, nil)
	room.Apply(FetchResult{Generation: room.Generation(), Messages: []models.Message{msg("1", "late")}})
	assert.Empty(t, room.Messages())
}

func TestRoomWhitespaceSubmitIsNoop(t *testing.T) {
	room, _, _ := newTestRoom(t, newGatedFetch(0).Fetch)
	room.SetAuthenticated(true, alice)

	for _, in := range []string{"", "   ", "\n\t "} {
		room.SetInput(in)
		_, ok := room.BeginSubmit()
		assert.False(t, ok)
		assert.False(t, room.Pending())
		assert.Empty(t, room.Err())
		assert.Equal(t, in, room.Input())
	}
}

func TestRoomRejectsSubmitWhilePending(t *testing.T) {
	room, _, _ := newTestRoom(t, newGatedFetch(0).Fetch)
	room.SetAuthenticated(true, alice)

	room.SetInput("  hello ")
	req, ok := room.BeginSubmit()
	require.True(t, ok)
	assert.Equal(t, SubmitRequest{UserID: "u1", Content: "hello", Generation: room.Generation()}, req)
	assert.True(t, room.Pending())

	_, ok = room.BeginSubmit()
	assert.False(t, ok)
}

func TestRoomSubmitOutcome(t *testing.T) {
	room, _, _ := newTestRoom(t, newGatedFetch(0).Fetch)
	room.SetAuthenticated(true, alice)

	tests := []struct {
		name    string
		err     error
		wantErr string
	}{
		{"graphql error", &client.QueryError{Messages: []string{"bad"}}, ErrTextSendFailed},
		{"transport error", errors.New("connection refused"), ErrTextSendNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			room.SetInput("hello")
			req, ok := room.BeginSubmit()
			require.True(t, ok)

			assert.True(t, room.FinishSubmit(req, tt.err))
			assert.Equal(t, "hello", room.Input())
			assert.Equal(t, tt.wantErr, room.Err())
			assert.False(t, room.Pending())
		})
	}

	room.Apply(FetchResult{Generation: room.Generation(), Messages: []models.Message{msg("1", "old")}})
	req, ok := room.BeginSubmit()
	require.True(t, ok)
	assert.True(t, room.FinishSubmit(req, nil))
	assert.Empty(t, room.Input())
	assert.Empty(t, room.Err())
	assert.Len(t, room.Messages(), 1)
}

func TestRoomDropsSendResultFromPreviousSession(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"success", nil},
		{"failure", errors.New("connection reset")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			room, _, _ := newTestRoom(t, newGatedFetch(0).Fetch)
			room.SetAuthenticated(true, alice)

			room.SetInput("sent before sign-out")
			old, ok := room.BeginSubmit()
			require.True(t, ok)

			room.SetAuthenticated(false, nil)
			assert.False(t, room.FinishSubmit(old, tt.err), "signed out")
			assert.Empty(t, room.Err())

			room.SetAuthenticated(true, alice)
			room.SetInput("new draft")
			assert.False(t, room.FinishSubmit(old, tt.err), "signed back in")
			assert.Equal(t, "new draft", room.Input())
			assert.Empty(t, room.Err())
			assert.False(t, room.Pending())

			// the new session can still submit and finish normally
			req, ok := room.BeginSubmit()
			require.True(t, ok)
			assert.NotEqual(t, old.Generation, req.Generation)
			assert.True(t, room.Pending())
			assert.False(t, room.FinishSubmit(old, nil))
			assert.True(t, room.Pending())
			assert.True(t, room.FinishSubmit(req, nil))
			assert.Empty(t, room.Input())
		})
	}
}

func TestRoomSubmitRequiresUser(t *testing.T) {
	room, _, _ := newTestRoom(t, newGatedFetch(0).Fetch)

	room.SetInput("hello")
	_, ok := room.BeginSubmit()
	assert.False(t, ok)
	assert.Equal(t, ErrTextSignInRequired, room.Err())
}

func TestAuthErrorText(t *testing.T) {
	assert.Equal(t, "Incorrect email or password",
		AuthErrorText(&client.AuthError{Status: 401, Message: "Incorrect email or password"}))
	assert.Equal(t, ErrTextAuthGeneric, AuthErrorText(errors.New("dial tcp: refused")))
	assert.Equal(t, ErrTextAuthGeneric, AuthErrorText(&client.AuthError{Status: 500}))
}
