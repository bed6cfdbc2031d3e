// internal/historian/historian.go moves settled rounds from the Redis queue into PostgreSQL.
package historian

import (
	"context"
	"sync"
	"time"

	"github.com/jason-s-yu/oichokabu/internal/models"
	"github.com/sirupsen/logrus"
)

// popTimeout bounds each blocking pop so that cancellation and the flush timer are noticed.
const popTimeout = time.Second

// Source yields queued round records. Pop returns (nil, nil) when nothing arrived in time.
type Source interface {
	Pop(ctx context.Context, timeout time.Duration) (*models.RoundRecord, error)
}

// Sink persists a batch of records atomically.
type Sink func(ctx context.Context, recs []models.RoundRecord) error

// Service drains Source in batches: a batch is written once it holds batchSize
// records or flushDelay has passed since the last write, whichever comes first.
type Service struct {
	src        Source
	sink       Sink
	logger     *logrus.Logger
	batchSize  int
	flushDelay time.Duration

	batchMu sync.Mutex
	batch   []models.RoundRecord
}

// NewService constructs a historian.
func NewService(src Source, sink Sink, logger *logrus.Logger, batchSize int, flushDelay time.Duration) *Service {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Service{
		src:        src,
		sink:       sink,
		logger:     logger,
		batchSize:  batchSize,
		flushDelay: flushDelay,
		batch:      make([]models.RoundRecord, 0, batchSize),
	}
}

// Run reads until ctx is cancelled, then flushes whatever is still buffered.
func (hs *Service) Run(ctx context.Context) error {
	hs.logger.Info("historian started")
	lastFlush := time.Now()
	for {
		if ctx.Err() != nil {
			hs.flush(context.Background())
			hs.logger.Info("historian shutting down")
			return nil
		}

		rec, err := hs.src.Pop(ctx, popTimeout)
		if err != nil {
			if ctx.Err() == nil {
				hs.logger.WithError(err).Error("failed to pop round record")
			}
			continue
		}
		if rec != nil && hs.append(*rec) {
			hs.flush(ctx)
			lastFlush = time.Now()
			continue
		}
		if time.Since(lastFlush) >= hs.flushDelay {
			hs.flush(ctx)
			lastFlush = time.Now()
		}
	}
}

// append buffers rec and reports whether the batch is full.
func (hs *Service) append(rec models.RoundRecord) bool {
	hs.batchMu.Lock()
	defer hs.batchMu.Unlock()
	hs.batch = append(hs.batch, rec)
	return len(hs.batch) >= hs.batchSize
}

// flush writes the buffered batch in one transaction. A failed batch is put back
// so that the next flush retries it.
func (hs *Service) flush(ctx context.Context) {
	hs.batchMu.Lock()
	defer hs.batchMu.Unlock()

	if len(hs.batch) == 0 {
		return
	}
	batchCopy := make([]models.RoundRecord, len(hs.batch))
	copy(batchCopy, hs.batch)

	if err := hs.sink(ctx, batchCopy); err != nil {
		hs.logger.WithError(err).WithField("rounds", len(batchCopy)).Error("failed to flush rounds")
		return
	}
	hs.batch = hs.batch[:0]
	hs.logger.WithField("rounds", len(batchCopy)).Debug("flushed rounds to DB")
}

// Pending returns the number of buffered records.
func (hs *Service) Pending() int {
	hs.batchMu.Lock()
	defer hs.batchMu.Unlock()
	return len(hs.batch)
}
