package connection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"research-cli/internal/protocol"
)

const (
	DefaultReconnectDelay = 2 * time.Second
	DefaultPollInterval   = 5 * time.Second
	DefaultMaxRetries     = 3

	updateBuffer = 64
	pollTimeout  = 10 * time.Second
)

// Advisory texts. They are fixed so repeated drops do not stack notices.
const (
	MsgConnectionLost     = "Live updates interrupted; reconnecting and checking status periodically"
	MsgConnectionDegraded = "Live updates unavailable; checking job status periodically"
)

// Options configures a Manager. Build them from DefaultOptions; a bare
// Options literal has MaxRetries zero and never reopens the stream.
type Options struct {
	ReconnectDelay time.Duration
	PollInterval   time.Duration
	// MaxRetries bounds reopen attempts after a drop. Zero disables
	// reconnects and polls right away; negative means DefaultMaxRetries.
	MaxRetries int
	Logger     *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// DefaultOptions returns the stock reconnect and polling settings.
func DefaultOptions() Options {
	return Options{
		ReconnectDelay: DefaultReconnectDelay,
		PollInterval:   DefaultPollInterval,
		MaxRetries:     DefaultMaxRetries,
	}
}

// Manager owns the status stream of one job. All stream, timer and poll
// handling happens on a single supervisor goroutine; the owner only sees the
// Updates channel, which is closed once the manager stops.
type Manager struct {
	dialer Dialer
	poller Poller
	opts   Options
	logger *slog.Logger

	updates chan Update

	mu      sync.Mutex
	state   State
	opened  bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closeMu sync.Once
}

func New(dialer Dialer, poller Poller, opts Options) *Manager {
	opts = opts.withDefaults()
	return &Manager{
		dialer:  dialer,
		poller:  poller,
		opts:    opts,
		logger:  opts.Logger,
		updates: make(chan Update, updateBuffer),
		state:   StateClosed,
	}
}

// Updates returns the channel of events, state changes and advisories.
// Updates are delivered one at a time in the order they happened.
func (m *Manager) Updates() <-chan Update {
	return m.updates
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Open starts tracking jobID. It returns once the supervisor is running;
// dial failures are reported through Updates and handled by reconnecting
// and polling. The manager runs until Close or a terminal job event.
func (m *Manager) Open(ctx context.Context, jobID string) error {
	if jobID == "" {
		return ErrEmptyJobID
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.closed:
		return ErrClosed
	case m.opened:
		return ErrAlreadyOpen
	}
	m.opened = true

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel

	s := &session{
		m:      m,
		jobID:  jobID,
		logger: m.logger.With(slog.String("job_id", jobID)),
		retry:  backoff.WithMaxRetries(backoff.NewConstantBackOff(m.opts.ReconnectDelay), uint64(m.opts.MaxRetries)),
	}
	if m.opts.MaxRetries == 0 {
		s.logger.Warn("reconnects disabled, status falls back to polling on the first drop")
	}
	m.wg.Add(1)
	go s.run(runCtx)
	return nil
}

// Close stops the manager. When Close returns, the socket is closed, the
// reconnect timer and poll ticker are stopped, and no further updates will
// be sent.
func (m *Manager) Close() {
	m.closeMu.Do(func() {
		m.mu.Lock()
		m.closed = true
		cancel := m.cancel
		opened := m.opened
		m.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if !opened {
			close(m.updates)
		}
	})
	m.wg.Wait()

	m.mu.Lock()
	if m.state != StateClosedFailed {
		m.state = StateClosed
	}
	m.mu.Unlock()
}

// setState records a transition and returns the previous state.
func (m *Manager) setState(to State) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	from := m.state
	m.state = to
	return from
}

// frame is one read result from a stream.
type frame struct {
	data []byte
	err  error
}

// session is the supervisor state of one Open call. Only run touches it.
type session struct {
	m      *Manager
	jobID  string
	logger *slog.Logger

	conn   Conn
	frames chan frame

	retry      backoff.BackOff
	retryTimer *time.Timer
	ticker     *time.Ticker

	last observed

	// Advisory flags, reset when a reopen succeeds.
	lostNotified     bool
	degradedNotified bool
}

func (s *session) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer s.m.wg.Done()
	defer close(s.m.updates)
	defer cancel()
	defer s.teardown()

	if err := s.connect(ctx); err != nil {
		if !s.dropped(ctx, err) {
			return
		}
	}

	for {
		var retryC, pollC <-chan time.Time
		if s.retryTimer != nil {
			retryC = s.retryTimer.C
		}
		if s.ticker != nil {
			pollC = s.ticker.C
		}

		select {
		case <-ctx.Done():
			s.logger.Debug("connection manager closed")
			return

		case f := <-s.frames:
			if f.err != nil {
				s.logger.Warn("status stream dropped", slog.Any("error", f.err))
				s.closeConn()
				if !s.dropped(ctx, f.err) {
					return
				}
				continue
			}
			ev, err := protocol.Decode(f.data)
			if err != nil {
				s.logger.Warn("skipping undecodable frame", slog.Any("error", err))
				continue
			}
			if !s.deliver(ctx, ev, false) {
				return
			}

		case <-retryC:
			s.retryTimer = nil
			if err := s.connect(ctx); err != nil && !s.dropped(ctx, err) {
				return
			}

		case <-pollC:
			for _, ev := range s.poll(ctx) {
				if !s.deliver(ctx, ev, true) {
					return
				}
			}
		}
	}
}

// connect dials the stream and starts its reader. On success polling stops
// and the retry budget is restored.
func (s *session) connect(ctx context.Context) error {
	s.transition(ctx, StateConnecting, nil)

	conn, err := s.m.dialer.Dial(ctx, s.jobID)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("dialing status stream failed", slog.Any("error", err))
		}
		return err
	}

	s.conn = conn
	s.frames = make(chan frame)
	s.m.wg.Add(1)
	go s.read(ctx, conn, s.frames)

	s.stopPolling()
	s.retry.Reset()
	s.lostNotified = false
	s.degradedNotified = false
	s.transition(ctx, StateOpen, nil)
	return nil
}

// read forwards frames from conn until it fails.
func (s *session) read(ctx context.Context, conn Conn, out chan<- frame) {
	defer s.m.wg.Done()
	for {
		data, err := conn.ReadMessage()
		select {
		case out <- frame{data: data, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// dropped handles the loss (or failed reopen) of the stream: polling starts,
// and a reopen is scheduled unless the retry budget is spent. It returns
// false when the manager should stop.
func (s *session) dropped(ctx context.Context, cause error) bool {
	if ctx.Err() != nil {
		return false
	}
	s.frames = nil

	if !s.lostNotified {
		s.lostNotified = true
		if !s.emit(ctx, AdvisoryUpdate{protocol.Advisory{Class: protocol.ConnectionError, Message: MsgConnectionLost}}) {
			return false
		}
	}
	s.startPolling()

	next := s.retry.NextBackOff()
	if next == backoff.Stop {
		s.logger.Warn("reconnect attempts exhausted, polling only",
			slog.Int("max_retries", s.m.opts.MaxRetries))
		if !s.transition(ctx, StateClosedPolling, cause) {
			return false
		}
		if !s.degradedNotified {
			s.degradedNotified = true
			return s.emit(ctx, AdvisoryUpdate{protocol.Advisory{Class: protocol.ConnectionExhausted, Message: MsgConnectionDegraded}})
		}
		return true
	}

	s.retryTimer = time.NewTimer(next)
	s.logger.Info("scheduling reconnect", slog.Duration("delay", next))
	return s.transition(ctx, StateClosedRetrying, cause)
}

// deliver emits an event and stops the session when it is terminal.
func (s *session) deliver(ctx context.Context, ev protocol.Event, polled bool) bool {
	s.last.observe(ev)
	if !s.emit(ctx, EventUpdate{Event: ev, Polled: polled}) {
		return false
	}
	if !protocol.IsTerminal(ev) {
		return true
	}

	final := StateClosed
	if _, ok := ev.(protocol.Completed); !ok {
		final = StateClosedFailed
	}
	s.logger.Info("job reached terminal status", slog.String("status", string(ev.Status())))
	s.teardown()
	s.transition(ctx, final, nil)
	return false
}

func (s *session) poll(ctx context.Context) []protocol.Event {
	pctx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	snap, err := s.m.poller.JobSnapshot(pctx, s.jobID)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("polling job status failed", slog.Any("error", err))
		}
		return nil
	}
	return deltaEvents(s.last, snap)
}

func (s *session) startPolling() {
	if s.ticker == nil {
		s.ticker = time.NewTicker(s.m.opts.PollInterval)
	}
}

func (s *session) stopPolling() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
}

func (s *session) closeConn() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

// teardown releases the socket and every timer. Safe to call twice.
func (s *session) teardown() {
	s.closeConn()
	s.stopPolling()
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
}

// transition records a new state and reports it. A repeated state is only
// reported when it carries an error.
func (s *session) transition(ctx context.Context, to State, err error) bool {
	from := s.m.setState(to)
	if from == to && err == nil {
		return true
	}
	s.logger.Debug("connection state", slog.String("from", from.String()), slog.String("to", to.String()))
	return s.emit(ctx, StateUpdate{From: from, To: to, Err: err})
}

func (s *session) emit(ctx context.Context, u Update) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case s.m.updates <- u:
		return true
	case <-ctx.Done():
		return false
	}
}
