// Package chat holds the client-side chat state: the message poller and the
// room view state it feeds.
package chat

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/abxy/internal/models"
)

// DefaultPollInterval is the period between message fetches.
const DefaultPollInterval = 2 * time.Second

// FetchFunc retrieves the current message feed. It must return once ctx is
// cancelled.
type FetchFunc func(ctx context.Context) ([]models.Message, error)

// FetchResult is the outcome of one fetch, tagged with the poller
// generation that issued it.
type FetchResult struct {
	Generation uint64
	Messages   []models.Message
	Err        error
}

// Ticker is the subset of time.Ticker the poller needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker wraps time.NewTicker.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Poller fetches messages once on Start and then once per interval until
// Stop. Each fetch runs in its own goroutine, so slow fetches may overlap;
// results are delivered in completion order on Results.
type Poller struct {
	fetch     FetchFunc
	interval  time.Duration
	newTicker func(time.Duration) Ticker
	logger    zerolog.Logger
	results   chan FetchResult

	mu         sync.Mutex
	running    bool
	generation uint64
	cancel     context.CancelFunc
	ticker     Ticker
	wg         sync.WaitGroup
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithTicker replaces the ticker factory.
func WithTicker(f func(time.Duration) Ticker) PollerOption {
	return func(p *Poller) { p.newTicker = f }
}

// WithLogger sets the poller's logger.
func WithLogger(l zerolog.Logger) PollerOption {
	return func(p *Poller) { p.logger = l }
}

// NewPoller creates a stopped poller. A non-positive interval falls back to
// DefaultPollInterval.
func NewPoller(fetch FetchFunc, interval time.Duration, opts ...PollerOption) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	p := &Poller{
		fetch:     fetch,
		interval:  interval,
		newTicker: NewTimeTicker,
		logger:    zerolog.Nop(),
		results:   make(chan FetchResult),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Results delivers fetch results. The channel is never closed.
func (p *Poller) Results() <-chan FetchResult {
	return p.results
}

// Generation returns the generation of the current (or last) run.
func (p *Poller) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation
}

// Running reports whether the poller is started.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Start begins polling and returns the run's generation. Starting a running
// poller is a no-op that returns the current generation.
func (p *Poller) Start() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return p.generation
	}

	p.generation++
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.ticker = p.newTicker(p.interval)
	p.running = true

	gen := p.generation
	p.spawnFetch(ctx, gen)

	tick := p.ticker.C()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick:
				if ctx.Err() != nil {
					return
				}
				p.spawnFetch(ctx, gen)
			}
		}
	}()

	p.logger.Debug().Uint64("generation", gen).Dur("interval", p.interval).Msg("poller started")
	return gen
}

// spawnFetch runs one fetch without waiting on earlier ones.
func (p *Poller) spawnFetch(ctx context.Context, gen uint64) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		msgs, err := p.fetch(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			p.logger.Warn().Err(err).Uint64("generation", gen).Msg("message fetch failed")
		}

		select {
		case p.results <- FetchResult{Generation: gen, Messages: msgs, Err: err}:
		case <-ctx.Done():
		}
	}()
}

// Stop cancels the run, releases the ticker and waits until no goroutine
// of the run remains. It is safe to call more than once and before Start.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.ticker.Stop()
	gen := p.generation
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Debug().Uint64("generation", gen).Msg("poller stopped")
}
