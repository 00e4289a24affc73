package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/eventlink/internal/clock"
	"github.com/rickgao/eventlink/internal/metrics"
)

// Manager maintains a single resilient real-time connection.
type Manager interface {
	// Start launches background goroutines and, if AutoConnect is set,
	// performs the first connect.
	Start(ctx context.Context) error

	// Stop disconnects and waits for background goroutines, including any
	// running handler. A stopped manager cannot be reconnected.
	Stop(ctx context.Context) error

	// Connect opens the transport unless one is already open. It never
	// blocks on the network; the outcome is observed through Status.
	Connect()

	// Disconnect closes the transport and suppresses automatic retries
	// until the next Connect.
	Disconnect()

	// Send writes payload if the transport is open and drops it otherwise.
	Send(payload any)

	// SetHandlers replaces the handler registry without touching the
	// transport.
	SetHandlers(h Handlers)

	// Status returns the current connection status.
	Status() Status

	// LastEvent returns the most recent non-control event, if any.
	LastEvent() (InboundEvent, bool)

	// IsConnected reports whether Status is StatusConnected.
	IsConnected() bool
}

// Option configures a Manager.
type Option func(*manager)

// WithDialer sets the transport dialer. Defaults to a WSDialer.
func WithDialer(d Dialer) Option {
	return func(m *manager) {
		m.dialer = d
	}
}

// WithClock sets the time source for keepalive and backoff timers.
func WithClock(c clock.Clock) Option {
	return func(m *manager) {
		m.clock = c
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *manager) {
		m.metrics = mt
	}
}

// WithStatusListener registers a listener for status transitions.
// Notifications are delivered once Start has been called.
func WithStatusListener(l StatusListener) Option {
	return func(m *manager) {
		m.listener = l
	}
}

// manager implements the Manager interface.
type manager struct {
	cfg      ManagerConfig
	creds    CredentialProvider
	dialer   Dialer
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics
	listener StatusListener

	handlers atomic.Pointer[Handlers]

	mu         sync.Mutex
	status     Status
	lastEvent  *InboundEvent
	conn       Conn   // Live transport; nil unless open
	open       bool   // Transport open and owned by the current generation
	gen        uint64 // Bumped whenever an attempt or transport is superseded
	attempts   int    // Consecutive retries since the last open or explicit connect
	manual     bool   // Explicitly disconnected; no automatic retries
	retrySeq   uint64
	retryTimer *clock.Timer
	pingTimer  *clock.Timer
	startTimer *clock.Timer
	cancelDial context.CancelFunc

	// Status notifications, delivered in order by notifyLoop
	pending []Status
	wake    chan struct{}

	started bool
	stopped bool // Set by Stop; no further attempts are started
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager creates a new Connection Manager.
func NewManager(cfg ManagerConfig, creds CredentialProvider, logger *slog.Logger, opts ...Option) Manager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &manager{
		cfg:    cfg.withDefaults(),
		creds:  creds,
		clock:  clock.Real(),
		logger: logger.With("component", "connection"),
		status: StatusDisconnected,
		wake:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dialer == nil {
		m.dialer = NewWSDialer(DefaultTransportConfig(), m.logger)
	}

	m.SetHandlers(cfg.Handlers)
	m.metrics.SetStatus(string(m.status))

	return m
}

// Start begins the connection manager.
func (m *manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("connection manager already started")
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	if m.listener != nil {
		m.wg.Add(1)
		go m.notifyLoop()
		m.wakeNotifier()
	}

	if w, ok := m.creds.(SubjectWatcher); ok {
		m.wg.Add(1)
		go m.watchSubject(w.SubjectChanges())
	}

	if m.cfg.AutoConnect {
		m.scheduleInitialConnect()
	}

	m.logger.Info("connection manager started",
		"auto_connect", m.cfg.AutoConnect,
		"reconnect", m.cfg.Reconnect,
		"max_reconnect_attempts", m.cfg.MaxReconnectAttempts,
	)

	return nil
}

// Stop gracefully shuts down.
func (m *manager) Stop(ctx context.Context) error {
	m.logger.Info("stopping connection manager")

	m.Disconnect()

	m.mu.Lock()
	m.stopped = true
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	// Wait for goroutines with timeout
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("shutdown timeout, abandoning background goroutines")
		return ctx.Err()
	}

	m.logger.Info("connection manager stopped")
	return nil
}

// Connect opens the transport unless one is already open.
func (m *manager) Connect() {
	m.connect(false)
}

// connect starts a new attempt. Retries keep the attempt counter and are
// refused once the consumer has explicitly disconnected.
func (m *manager) connect(retry bool) {
	subject, ok := m.creds.Subject()
	if !ok || subject == "" {
		m.logger.Debug("connect skipped", "reason", ErrNoSubject)
		return
	}

	m.mu.Lock()
	if m.stopped || m.open {
		m.mu.Unlock()
		return
	}
	if retry && m.manual {
		m.mu.Unlock()
		return
	}
	if !retry {
		m.manual = false
		m.attempts = 0
		m.stopTimerLocked(&m.retryTimer)
		m.stopTimerLocked(&m.startTimer)
	}

	stale := m.teardownLocked()
	gen := m.gen
	attempt := m.attempts
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.DialTimeout)
	m.cancelDial = cancel
	m.setStatusLocked(StatusConnecting)
	m.wg.Add(1)
	m.mu.Unlock()

	if stale != nil {
		stale.Close()
	}

	logger := m.logger.With("attempt_id", uuid.NewString())
	logger.Info("connecting",
		"subject", subject,
		"retry", retry,
		"attempt", attempt,
	)

	go func() {
		defer m.wg.Done()
		m.dial(ctx, gen, subject, retry, logger)
	}()
}

// dial fetches a fresh token and opens the transport for generation gen.
// On success it becomes the transport's read loop. A token failure on a
// retry is evaluated like an open failure so the retry budget still
// applies; on an explicit connect it settles in error.
func (m *manager) dial(ctx context.Context, gen uint64, subject string, retry bool, logger *slog.Logger) {
	token, err := m.creds.Token(ctx)
	if err == nil && token == "" {
		err = ErrEmptyToken
	}
	if err != nil {
		logger.Warn("token request failed", "error", err, "retry", retry)
		if retry {
			m.handleClosed(gen, err, logger)
			return
		}
		m.failAttempt(gen)
		return
	}

	target, err := buildTarget(m.cfg.URL, m.cfg.SubjectParam, subject, m.cfg.TokenParam, token)
	if err != nil {
		logger.Error("invalid transport target", "error", err)
		m.failAttempt(gen)
		return
	}

	conn, err := m.dialer.Dial(ctx, target)
	if err != nil {
		logger.Warn("open failed", "error", err)
		m.handleClosed(gen, err, logger)
		return
	}

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		logger.Debug("discarding superseded transport")
		conn.Close()
		return
	}
	m.finishDialLocked()
	m.conn = conn
	m.open = true
	m.attempts = 0
	m.setStatusLocked(StatusConnected)
	m.armKeepaliveLocked(gen)
	m.mu.Unlock()

	m.metrics.ConnectionOpened()
	logger.Info("connected", "host", hostOf(target))

	m.readLoop(gen, conn, logger)
}

// failAttempt settles an attempt that never produced a transport. No
// close will follow, so no retry is scheduled.
func (m *manager) failAttempt(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return
	}
	m.finishDialLocked()
	m.setStatusLocked(StatusError)
}

// readLoop reads frames until the transport closes.
func (m *manager) readLoop(gen uint64, conn Conn, logger *slog.Logger) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			m.handleClosed(gen, err, logger)
			return
		}
		m.handleFrame(gen, data)
	}
}

// handleFrame decodes one frame and dispatches it to consumers.
func (m *manager) handleFrame(gen uint64, data []byte) {
	ev, err := decodeFrame(data)
	if err != nil {
		m.metrics.FrameDiscarded("malformed")
		m.logger.Debug("discarding malformed frame", "error", err, "bytes", len(data))
		return
	}
	if ev.IsControl() {
		m.metrics.FrameDiscarded(ev.Type)
		return
	}

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		m.metrics.FrameDiscarded("stale")
		return
	}
	last := ev
	m.lastEvent = &last
	m.mu.Unlock()

	m.metrics.EventReceived(ev.Event)
	m.dispatch(ev)
}

// dispatch invokes the named handler, then the wildcard, from the latest
// registry.
func (m *manager) dispatch(ev InboundEvent) {
	h := m.handlers.Load()
	if h == nil {
		return
	}
	if ev.Event != "" {
		if fn := h.Named[ev.Event]; fn != nil {
			m.invoke(ev.Event, func() { fn(ev.Data) })
		}
	}
	if h.Wildcard != nil {
		m.invoke("*", func() { h.Wildcard(ev) })
	}
}

// invoke runs a consumer callback, containing any panic.
func (m *manager) invoke(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("event handler panic", "handler", name, "panic", r)
		}
	}()
	fn()
}

// handleClosed runs the reconnect policy after the transport for gen
// closed or failed to open. Stale generations are ignored, which is how
// an explicit Disconnect wins over an in-flight close.
func (m *manager) handleClosed(gen uint64, err error, logger *slog.Logger) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}

	conn := m.conn
	m.conn = nil
	m.open = false
	m.finishDialLocked()
	m.stopTimerLocked(&m.pingTimer)

	if isTransportFailure(err) {
		m.setStatusLocked(StatusError)
	}
	m.setStatusLocked(StatusDisconnected)

	var (
		scheduled bool
		delay     time.Duration
	)
	eligible := m.cfg.Reconnect && !m.manual
	if eligible && m.attempts < m.cfg.MaxReconnectAttempts {
		m.attempts++
		delay = backoffDelay(m.cfg.ReconnectInterval, m.cfg.BackoffMultiplier, m.cfg.MaxReconnectDelay, m.attempts)
		m.scheduleRetryLocked(delay)
		scheduled = true
	}
	attempts := m.attempts
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	switch {
	case scheduled:
		m.metrics.ReconnectScheduled(attempts)
		logger.Warn("connection closed, reconnect scheduled",
			"error", err,
			"attempt", attempts,
			"max_attempts", m.cfg.MaxReconnectAttempts,
			"delay", delay,
		)
	case eligible:
		logger.Warn("connection closed, reconnect attempts exhausted",
			"error", err,
			"max_attempts", m.cfg.MaxReconnectAttempts,
		)
	default:
		logger.Info("connection closed", "error", err)
	}
}

// scheduleRetryLocked arms the single reconnect timer.
func (m *manager) scheduleRetryLocked(delay time.Duration) {
	m.stopTimerLocked(&m.retryTimer)
	m.retrySeq++
	seq := m.retrySeq
	m.retryTimer = m.clock.AfterFunc(delay, func() { m.retryFired(seq) })
}

// retryFired runs the connect path for the retry identified by seq,
// unless it was cancelled or superseded.
func (m *manager) retryFired(seq uint64) {
	m.mu.Lock()
	if seq != m.retrySeq || m.retryTimer == nil || m.manual {
		m.mu.Unlock()
		return
	}
	m.retryTimer = nil
	m.mu.Unlock()

	m.connect(true)
}

// armKeepaliveLocked schedules the next ping for generation gen.
func (m *manager) armKeepaliveLocked(gen uint64) {
	m.stopTimerLocked(&m.pingTimer)
	m.pingTimer = m.clock.AfterFunc(m.cfg.KeepaliveInterval, func() { m.keepalive(gen) })
}

// keepalive writes a ping frame if the transport for gen is still open.
func (m *manager) keepalive(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || !m.open {
		m.mu.Unlock()
		return
	}
	conn := m.conn
	m.armKeepaliveLocked(gen)
	m.mu.Unlock()

	if err := conn.WriteMessage(pingFrame); err != nil {
		m.logger.Debug("failed to send ping", "error", err)
		return
	}
	m.metrics.PingSent()
}

// Disconnect closes the transport and suppresses automatic retries.
func (m *manager) Disconnect() {
	m.mu.Lock()
	m.manual = true
	m.stopTimerLocked(&m.retryTimer)
	m.stopTimerLocked(&m.startTimer)
	conn := m.teardownLocked()
	m.setStatusLocked(StatusDisconnected)
	m.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			m.logger.Debug("transport close error", "error", err)
		}
		m.logger.Info("disconnected")
	}
}

// Send writes payload if the transport is open.
func (m *manager) Send(payload any) {
	m.mu.Lock()
	conn, open := m.conn, m.open
	m.mu.Unlock()

	if !open || conn == nil {
		m.metrics.SendDropped()
		m.logger.Debug("send dropped", "reason", ErrNotConnected)
		return
	}

	data, err := encodePayload(payload)
	if err != nil {
		m.logger.Warn("send dropped", "error", err)
		return
	}
	if err := conn.WriteMessage(data); err != nil {
		m.logger.Debug("send failed", "error", err)
	}
}

// SetHandlers replaces the handler registry.
func (m *manager) SetHandlers(h Handlers) {
	named := make(map[string]HandlerFunc, len(h.Named))
	for name, fn := range h.Named {
		named[name] = fn
	}
	m.handlers.Store(&Handlers{Named: named, Wildcard: h.Wildcard})
}

// Status returns the current connection status.
func (m *manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// LastEvent returns the most recent non-control event.
func (m *manager) LastEvent() (InboundEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastEvent == nil {
		return InboundEvent{}, false
	}
	return *m.lastEvent, true
}

// IsConnected reports whether the manager is connected.
func (m *manager) IsConnected() bool {
	return m.Status() == StatusConnected
}

// teardownLocked invalidates the current generation, cancels any
// in-flight attempt and the keepalive, and hands back the transport for
// the caller to close outside the lock.
func (m *manager) teardownLocked() Conn {
	m.gen++
	m.finishDialLocked()
	m.stopTimerLocked(&m.pingTimer)
	conn := m.conn
	m.conn = nil
	m.open = false
	return conn
}

func (m *manager) finishDialLocked() {
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
}

func (m *manager) stopTimerLocked(t **clock.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

// setStatusLocked records a status transition and queues it for the
// listener.
func (m *manager) setStatusLocked(s Status) {
	if m.status == s {
		return
	}
	m.status = s
	m.metrics.SetStatus(string(s))
	m.logger.Debug("status changed", "status", s)

	if m.listener != nil && !m.stopped {
		m.pending = append(m.pending, s)
		m.wakeNotifier()
	}
}

func (m *manager) wakeNotifier() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// notifyLoop delivers queued status transitions in order.
func (m *manager) notifyLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			m.drainNotifications()
			return
		case <-m.wake:
			m.drainNotifications()
		}
	}
}

func (m *manager) drainNotifications() {
	for {
		m.mu.Lock()
		batch := m.pending
		m.pending = nil
		m.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, s := range batch {
			m.listener.OnStatusChanged(s)
		}
	}
}

// scheduleInitialConnect performs the automatic first connect, deferred by
// ConnectDelay when configured.
func (m *manager) scheduleInitialConnect() {
	if m.cfg.ConnectDelay <= 0 {
		m.Connect()
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimerLocked(&m.startTimer)
	m.startTimer = m.clock.AfterFunc(m.cfg.ConnectDelay, m.Connect)
}

// watchSubject follows identity changes reported by the credential
// provider: a new subject reconnects under that identity, an empty one
// disconnects.
func (m *manager) watchSubject(changes <-chan string) {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case subject, ok := <-changes:
			if !ok {
				return
			}
			if subject == "" {
				m.logger.Info("identity cleared, disconnecting")
				m.Disconnect()
				continue
			}
			if !m.cfg.AutoConnect {
				continue
			}
			m.logger.Info("identity changed, reconnecting", "subject", subject)
			m.Disconnect()
			m.Connect()
		}
	}
}
