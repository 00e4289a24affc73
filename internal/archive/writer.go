package archive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	jsoniter "github.com/json-iterator/go"

	"github.com/rickgao/eventlink/internal/connection"
	"github.com/rickgao/eventlink/internal/metrics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const insertEventSQL = `
	INSERT INTO events (id, event, type, data, timestamp, received_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO NOTHING
`

// Batcher sends query batches. Satisfied by *pgxpool.Pool.
type Batcher interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Config holds writer settings.
type Config struct {
	BatchSize     int           // Rows per insert batch
	FlushInterval time.Duration // Maximum time a row waits in a partial batch
	BufferSize    int           // Pending events before Write starts dropping
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    10000,
	}
}

// Stats holds writer counters.
type Stats struct {
	Received  int64 `json:"received"`
	Dropped   int64 `json:"dropped"`
	Inserts   int64 `json:"inserts"`
	Conflicts int64 `json:"conflicts"`
	Flushes   int64 `json:"flushes"`
	Errors    int64 `json:"errors"`
}

// row is one events table row.
type row struct {
	ID         uuid.UUID
	Event      string
	Type       string
	Data       []byte
	Timestamp  float64
	ReceivedAt int64 // Unix microseconds
}

// Writer batches events into the events table.
type Writer struct {
	cfg     Config
	logger  *slog.Logger
	db      Batcher
	metrics *metrics.Metrics
	now     func() time.Time

	input chan connection.InboundEvent

	// Batching
	batch       []row
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats Stats
}

// NewWriter creates a new Writer.
func NewWriter(cfg Config, db Batcher, m *metrics.Metrics, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	d := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = d.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = d.FlushInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = d.BufferSize
	}
	return &Writer{
		cfg:     cfg,
		db:      db,
		metrics: m,
		logger:  logger.With("component", "archive"),
		now:     time.Now,
		input:   make(chan connection.InboundEvent, cfg.BufferSize),
		batch:   make([]row, 0, cfg.BatchSize),
	}
}

// Write queues an event without blocking. It returns false if the buffer
// is full and the event was dropped.
func (w *Writer) Write(ev connection.InboundEvent) bool {
	select {
	case w.input <- ev:
		return true
	default:
		w.batchMu.Lock()
		w.stats.Dropped++
		dropped := w.stats.Dropped
		w.batchMu.Unlock()
		if dropped == 1 || dropped%1000 == 0 {
			w.logger.Warn("archive buffer full, dropping events", "dropped", dropped)
		}
		return false
	}
}

// Start begins consuming events and writing to the database.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("archive writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
		"buffer_size", w.cfg.BufferSize,
	)
	return nil
}

// Stop drains buffered events, performs a final flush, and shuts down.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping archive writer")

	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	// Wait for goroutines
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("archive writer stop timed out")
		return ctx.Err()
	}

	// Drain what is still buffered
drain:
	for {
		select {
		case ev := <-w.input:
			w.add(ev)
		default:
			break drain
		}
	}

	if err := w.flush(ctx); err != nil {
		return fmt.Errorf("final flush: %w", err)
	}

	w.logger.Info("archive writer stopped")
	return nil
}

// Stats returns current counters.
func (w *Writer) Stats() Stats {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.stats
}

// consumeLoop reads from the input buffer and accumulates batches.
func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case ev := <-w.input:
			if w.add(ev) {
				w.flush(w.ctx)
			}
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

// add transforms ev and appends it to the batch. It reports whether the
// batch is full.
func (w *Writer) add(ev connection.InboundEvent) bool {
	r, err := w.transform(ev)
	if err != nil {
		w.logger.Warn("skipping unarchivable event", "event", ev.Event, "error", err)
		return false
	}

	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.stats.Received++
	w.batch = append(w.batch, r)
	return len(w.batch) >= w.cfg.BatchSize
}

// transform converts an event to a row.
func (w *Writer) transform(ev connection.InboundEvent) (row, error) {
	var data []byte
	if ev.Data != nil {
		var err error
		data, err = json.Marshal(ev.Data)
		if err != nil {
			return row{}, fmt.Errorf("marshal data: %w", err)
		}
	}

	return row{
		ID:         uuid.New(),
		Event:      ev.Event,
		Type:       ev.Type,
		Data:       data,
		Timestamp:  ev.Timestamp,
		ReceivedAt: w.now().UnixMicro(),
	}, nil
}

// flush writes the current batch to the database.
func (w *Writer) flush(ctx context.Context) error {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return nil
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]row, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.stats.Errors++
		w.batchMu.Unlock()
		w.metrics.ArchiveFailed()
		return err
	}

	w.batchMu.Lock()
	w.stats.Inserts += int64(len(batch) - conflicts)
	w.stats.Conflicts += int64(conflicts)
	w.stats.Flushes++
	w.batchMu.Unlock()
	w.metrics.ArchiveFlushed(len(batch) - conflicts)

	w.logger.Debug("flushed events",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
	return nil
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *Writer) batchInsert(ctx context.Context, rows []row) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		var data any
		if r.Data != nil {
			data = string(r.Data)
		}
		batch.Queue(insertEventSQL, r.ID, r.Event, r.Type, data, r.Timestamp, r.ReceivedAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
