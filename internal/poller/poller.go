// Package poller drives each mail source on its own repeating timer,
// classifying and relaying new messages, advancing cursors, and
// persisting session state after every successful tick.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aaronromeo/mailherald/internal/classify"
	"github.com/aaronromeo/mailherald/internal/relay"
	"github.com/aaronromeo/mailherald/internal/session"
	"github.com/aaronromeo/mailherald/pkg/base"
	"github.com/aaronromeo/mailherald/pkg/utils"
	"github.com/pkg/errors"
)

// DefaultInterval is the per-source poll cadence.
const DefaultInterval = 15 * time.Minute

// DefaultRefreshInterval is the cadence of the periodic session re-login.
const DefaultRefreshInterval = 6 * time.Hour

// SourceState reports where a source's timer currently is.
type SourceState string

const (
	StateIdle    SourceState = "idle"
	StatePolling SourceState = "polling"
)

// SourceStatus is a point-in-time snapshot of one source's scheduler.
type SourceStatus struct {
	Source      string      `json:"source"`
	State       SourceState `json:"state"`
	LastSuccess time.Time   `json:"last_success"`
	LastError   string      `json:"last_error,omitempty"`
}

// Poller owns one timer per registered source.
type Poller struct {
	sources    map[string]base.MailSource
	order      []string
	classifier *classify.Classifier
	relay      *relay.Relay
	state      *session.State
	store      *session.Store
	logger     *slog.Logger
	interval   time.Duration
	refresh    time.Duration
	now        func() time.Time

	mu       sync.Mutex
	statuses map[string]*SourceStatus
	running  bool
	triggers map[string]chan struct{}
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// Option configures a Poller.
type Option func(*Poller)

// WithClassifier sets the event classifier.
func WithClassifier(c *classify.Classifier) Option {
	return func(p *Poller) {
		p.classifier = c
	}
}

// WithRelay sets the notification relay.
func WithRelay(r *relay.Relay) Option {
	return func(p *Poller) {
		p.relay = r
	}
}

// WithState sets the session state.
func WithState(s *session.State) Option {
	return func(p *Poller) {
		p.state = s
	}
}

// WithStore sets the session store persisted after each tick.
func WithStore(st *session.Store) Option {
	return func(p *Poller) {
		p.store = st
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) {
		p.logger = logger
	}
}

// WithInterval overrides the poll cadence.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		p.interval = d
	}
}

// WithRefreshInterval overrides the session re-login cadence.
func WithRefreshInterval(d time.Duration) Option {
	return func(p *Poller) {
		p.refresh = d
	}
}

// WithNowFunc overrides the clock, for tests.
func WithNowFunc(now func() time.Time) Option {
	return func(p *Poller) {
		p.now = now
	}
}

// New creates a Poller.
func New(opts ...Option) (*Poller, error) {
	p := &Poller{
		sources:  make(map[string]base.MailSource),
		statuses: make(map[string]*SourceStatus),
		triggers: make(map[string]chan struct{}),
		interval: DefaultInterval,
		refresh:  DefaultRefreshInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.classifier == nil {
		return nil, errors.New("requires classifier")
	}

	if p.relay == nil {
		return nil, errors.New("requires relay")
	}

	if p.state == nil {
		return nil, errors.New("requires session state")
	}

	if p.store == nil {
		return nil, errors.New("requires session store")
	}

	if p.logger == nil {
		return nil, errors.New("requires slogger")
	}

	return p, nil
}

// RegisterSource adds a mail source to the schedule.
func (p *Poller) RegisterSource(src base.MailSource) {
	p.mu.Lock()
	defer p.mu.Unlock()

	name := src.Name()
	p.sources[name] = src
	p.order = append(p.order, name)
	p.statuses[name] = &SourceStatus{Source: name, State: StateIdle}
	p.triggers[name] = make(chan struct{}, 1)
}

// Start launches one polling goroutine per source plus the periodic
// session-refresh timer. It is a no-op if already running.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	sources := make([]base.MailSource, 0, len(p.order))
	for _, name := range p.order {
		sources = append(sources, p.sources[name])
	}
	p.mu.Unlock()

	for _, src := range sources {
		p.wg.Add(1)
		go p.pollLoop(ctx, src)
	}

	p.wg.Add(1)
	go p.refreshLoop(ctx, sources)
}

// Stop halts all timers and waits for in-flight ticks to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
}

// Trigger requests an immediate poll of one source, or of every source
// when name is empty. Unknown names report false.
func (p *Poller) Trigger(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if name == "" {
		for _, ch := range p.triggers {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
		return len(p.triggers) > 0
	}

	ch, ok := p.triggers[name]
	if !ok {
		return false
	}
	select {
	case ch <- struct{}{}:
	default:
	}
	return true
}

// Status returns a snapshot of every source's scheduler state, in
// registration order.
func (p *Poller) Status() []SourceStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	statuses := make([]SourceStatus, 0, len(p.order))
	for _, name := range p.order {
		statuses = append(statuses, *p.statuses[name])
	}
	return statuses
}

func (p *Poller) pollLoop(ctx context.Context, src base.MailSource) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	trigger := p.triggers[src.Name()]

	// First window runs immediately rather than one interval in.
	p.runTick(ctx, src)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runTick(ctx, src)
		case <-trigger:
			p.runTick(ctx, src)
		}
	}
}

// refreshLoop periodically re-establishes each source's session so that
// expired logins do not surface as adapter failures on a poll tick.
func (p *Poller) refreshLoop(ctx context.Context, sources []base.MailSource) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, src := range sources {
				if err := src.Reconnect(ctx); err != nil {
					p.logger.ErrorContext(ctx, "Session refresh failed",
						slog.String("source", src.Name()),
						slog.Any("error", utils.WrapError(err)))
				}
			}
		}
	}
}

func (p *Poller) runTick(ctx context.Context, src base.MailSource) {
	name := src.Name()
	p.setState(name, StatePolling)
	err := p.RunOnce(ctx, name)
	p.mu.Lock()
	status := p.statuses[name]
	status.State = StateIdle
	if err != nil {
		status.LastError = err.Error()
	} else {
		status.LastError = ""
		status.LastSuccess = p.now()
	}
	p.mu.Unlock()
}

func (p *Poller) setState(name string, state SourceState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if status, ok := p.statuses[name]; ok {
		status.State = state
	}
}

// RunOnce executes a single poll cycle for one source: fetch the window
// since the source's cursor, relay each message oldest-first, then
// advance the cursor to the tick's start time and persist session state.
// An adapter failure aborts before the cursor advance so the same window
// is retried on the next tick.
func (p *Poller) RunOnce(ctx context.Context, name string) error {
	p.mu.Lock()
	src, ok := p.sources[name]
	p.mu.Unlock()
	if !ok {
		return errors.Errorf("unknown source %q", name)
	}

	watermark := p.state.Cursor(name)
	// Captured before the fetch; mail arriving mid-poll lands at or
	// after this instant and is picked up by the next window.
	pollStartedAt := p.now()

	messages, err := src.Poll(ctx, watermark)
	if err != nil {
		p.logger.ErrorContext(ctx, "Poll failed",
			slog.String("source", name),
			slog.Any("error", utils.WrapError(err)))
		if rerr := src.Reconnect(ctx); rerr != nil {
			p.logger.ErrorContext(ctx, "Reconnect failed",
				slog.String("source", name),
				slog.Any("error", utils.WrapError(rerr)))
		}
		return err
	}

	for _, msg := range messages {
		event, ok := p.classifier.Classify(msg)
		if !ok {
			p.logger.InfoContext(ctx, "Dropped unparseable booking mail",
				slog.String("source", name),
				slog.String("subject", msg.Subject))
			continue
		}
		scope := base.ScopeModmail
		if event.IsBooking() {
			scope = base.ScopeCancellation
		}
		p.relay.Deliver(ctx, event, scope)
	}

	p.state.AdvanceCursor(name, pollStartedAt)

	if err := p.store.Save(ctx, p.state); err != nil {
		// Degraded mode: the running process keeps correct state, only
		// a restart would lose this cursor advance.
		p.logger.ErrorContext(ctx, "Session persistence failed after tick",
			slog.String("source", name),
			slog.Any("error", utils.WrapError(err)))
	}

	p.logger.InfoContext(ctx, "Poll cycle complete",
		slog.String("source", name),
		slog.Int("messages", len(messages)))
	return nil
}
