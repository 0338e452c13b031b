package persistence

import (
	"context"
	"database/sql"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"vol-core/pkg/db"
)

// BatchWriter buffers series points and upserts them in one transaction
// when the buffer fills or the flush interval elapses.
type BatchWriter struct {
	db          *sql.DB
	buffer      []db.Point
	mu          sync.Mutex
	flushMu     sync.Mutex
	maxSize     int
	flushIntval time.Duration
	done        chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup

	totalWrites  atomic.Uint64
	totalBatches atomic.Uint64
	totalErrors  atomic.Uint64
	lastMu       sync.Mutex
	lastSize     int
	lastFlush    time.Time
}

// BatchWriterMetrics provides statistics about batch operations.
type BatchWriterMetrics struct {
	TotalWrites   uint64    `json:"total_writes"`
	TotalBatches  uint64    `json:"total_batches"`
	TotalErrors   uint64    `json:"total_errors"`
	Pending       int       `json:"pending"`
	LastBatchSize int       `json:"last_batch_size"`
	LastFlushTime time.Time `json:"last_flush_time"`
}

// NewBatchWriter creates a batch writer with specified parameters.
// maxSize: max points before auto-flush
// interval: time-based flush interval
func NewBatchWriter(database *sql.DB, maxSize int, interval time.Duration) *BatchWriter {
	if maxSize <= 0 {
		maxSize = 250
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	bw := &BatchWriter{
		db:          database,
		buffer:      make([]db.Point, 0, maxSize),
		maxSize:     maxSize,
		flushIntval: interval,
		done:        make(chan struct{}),
	}

	bw.wg.Add(1)
	go bw.backgroundFlush()

	return bw
}

// Add queues one point.
func (bw *BatchWriter) Add(p db.Point) {
	bw.mu.Lock()
	bw.buffer = append(bw.buffer, p)
	shouldFlush := len(bw.buffer) >= bw.maxSize
	bw.mu.Unlock()

	if shouldFlush {
		if err := bw.Flush(context.Background()); err != nil {
			log.Printf("⚠️ BatchWriter: size flush error: %v", err)
		}
	}
}

// Flush immediately writes all buffered points. Concurrent flushes are
// serialised so a caller returning from Flush sees every point added before it.
// A failed batch goes back to the front of the buffer for the next flush.
func (bw *BatchWriter) Flush(ctx context.Context) error {
	bw.flushMu.Lock()
	defer bw.flushMu.Unlock()

	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return nil
	}
	points := bw.buffer
	bw.buffer = make([]db.Point, 0, bw.maxSize)
	bw.mu.Unlock()

	if err := bw.executeBatch(ctx, points); err != nil {
		bw.mu.Lock()
		bw.buffer = append(points, bw.buffer...)
		bw.mu.Unlock()
		return err
	}
	return nil
}

// executeBatch runs a batch of upserts in a transaction.
func (bw *BatchWriter) executeBatch(ctx context.Context, points []db.Point) error {
	bw.totalBatches.Add(1)
	bw.lastMu.Lock()
	bw.lastSize = len(points)
	bw.lastFlush = time.Now()
	bw.lastMu.Unlock()

	tx, err := bw.db.BeginTx(ctx, nil)
	if err != nil {
		bw.totalErrors.Add(1)
		log.Printf("❌ BatchWriter: failed to begin transaction: %v", err)
		return err
	}

	stmt, err := tx.PrepareContext(ctx, db.UpsertPointSQL)
	if err != nil {
		tx.Rollback()
		bw.totalErrors.Add(1)
		log.Printf("❌ BatchWriter: prepare failed: %v", err)
		return err
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, p.Args()...); err != nil {
			tx.Rollback()
			bw.totalErrors.Add(1)
			log.Printf("❌ BatchWriter: upsert %s,%s failed, rolling back: %v", p.Kind, p.Ticker, err)
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		bw.totalErrors.Add(1)
		log.Printf("❌ BatchWriter: commit failed: %v", err)
		return err
	}

	bw.totalWrites.Add(uint64(len(points)))
	log.Printf("💾 BatchWriter: flushed %d points", len(points))
	return nil
}

// backgroundFlush periodically flushes the buffer.
func (bw *BatchWriter) backgroundFlush() {
	defer bw.wg.Done()
	ticker := time.NewTicker(bw.flushIntval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := bw.Flush(context.Background()); err != nil {
				log.Printf("⚠️ BatchWriter: background flush error: %v", err)
			}
		case <-bw.done:
			// Final flush before shutdown
			if err := bw.Flush(context.Background()); err != nil {
				log.Printf("⚠️ BatchWriter: final flush error: %v", err)
			}
			return
		}
	}
}

// Pending returns the number of buffered points.
func (bw *BatchWriter) Pending() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Metrics returns the current counters.
func (bw *BatchWriter) Metrics() BatchWriterMetrics {
	bw.lastMu.Lock()
	size, at := bw.lastSize, bw.lastFlush
	bw.lastMu.Unlock()
	return BatchWriterMetrics{
		TotalWrites:   bw.totalWrites.Load(),
		TotalBatches:  bw.totalBatches.Load(),
		TotalErrors:   bw.totalErrors.Load(),
		Pending:       bw.Pending(),
		LastBatchSize: size,
		LastFlushTime: at,
	}
}

// Close stops the background flusher after a final flush.
func (bw *BatchWriter) Close() error {
	bw.closeOnce.Do(func() { close(bw.done) })
	bw.wg.Wait()
	return nil
}
