package metrics

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/bft-labs/hybrid-chain-logger/types"
	"go.uber.org/zap"
)

// SummarySink receives each computed group summary. Publish is called with
// the server's global lock held and must not block on the network.
type SummarySink interface {
	Publish(summary types.GroupSummary) error
}

// BlockRecorder is the part of a record file a StatsLogSink writes to.
type BlockRecorder interface {
	RecordBlock(block string, at time.Time) error
}

// StatsLogSink appends summaries to the statistics log.
type StatsLogSink struct {
	recorder BlockRecorder
}

func NewStatsLogSink(recorder BlockRecorder) *StatsLogSink {
	return &StatsLogSink{recorder: recorder}
}

func (s *StatsLogSink) Publish(summary types.GroupSummary) error {
	return s.recorder.RecordBlock(FormatSummary(summary), summary.ComputedAt)
}

// ReportSink logs summaries at info level.
type ReportSink struct {
	logger *zap.Logger
}

func NewReportSink(logger *zap.Logger) *ReportSink {
	return &ReportSink{logger: logger}
}

func (s *ReportSink) Publish(summary types.GroupSummary) error {
	s.logger.Info("group statistics",
		zap.Uint64("start_height", summary.StartHeight),
		zap.Uint64("end_height", summary.EndHeight),
		zap.Duration("pow_mining_avg", summary.PoW.Mining.Avg),
		zap.Duration("pow_mining_min", summary.PoW.Mining.Min),
		zap.Duration("pow_mining_max", summary.PoW.Mining.Max),
		zap.Duration("pow_propagation_avg", summary.PoW.Propagation.Avg),
		zap.Duration("pos_mining_avg", summary.PoS.Mining.Avg),
		zap.Duration("pos_mining_min", summary.PoS.Mining.Min),
		zap.Duration("pos_mining_max", summary.PoS.Mining.Max),
		zap.Duration("pos_propagation_avg", summary.PoS.Propagation.Avg),
		zap.Int("involved_nodes", summary.PoW.InvolvedNodes),
	)
	return nil
}

// Deliverer hands a summary to an external store.
type Deliverer interface {
	Deliver(ctx context.Context, summary types.GroupSummary) error
}

var ErrSinkFull = errors.New("summary queue is full")

const defaultDeliverTimeout = 10 * time.Second

// QueuedSink decouples a Deliverer from the ingestion path with a bounded
// queue. Publish never blocks; Run performs the deliveries.
type QueuedSink struct {
	name      string
	deliverer Deliverer
	queue     chan types.GroupSummary
	timeout   time.Duration
	logger    *zap.Logger

	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// NewQueuedSink creates a sink holding at most size pending summaries.
func NewQueuedSink(name string, d Deliverer, size int, logger *zap.Logger) *QueuedSink {
	if size <= 0 {
		size = 1
	}
	return &QueuedSink{
		name:      name,
		deliverer: d,
		queue:     make(chan types.GroupSummary, size),
		timeout:   defaultDeliverTimeout,
		logger:    logger.With(zap.String("sink", name)),
	}
}

func (q *QueuedSink) Publish(summary types.GroupSummary) error {
	select {
	case q.queue <- summary:
		return nil
	default:
		q.dropped.Add(1)
		return ErrSinkFull
	}
}

// Run delivers queued summaries until ctx is cancelled, then delivers what
// is already queued and returns.
func (q *QueuedSink) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			q.drain()
			return nil
		case summary := <-q.queue:
			q.deliver(ctx, summary)
		}
	}
}

func (q *QueuedSink) drain() {
	for {
		select {
		case summary := <-q.queue:
			q.deliver(context.Background(), summary)
		default:
			return
		}
	}
}

func (q *QueuedSink) deliver(parent context.Context, summary types.GroupSummary) {
	ctx, cancel := context.WithTimeout(parent, q.timeout)
	defer cancel()

	start := time.Now()
	if err := q.deliverer.Deliver(ctx, summary); err != nil {
		q.failed.Add(1)
		q.logger.Error("summary delivery failed",
			zap.Uint64("end_height", summary.EndHeight),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Error(err),
		)
		return
	}
	q.delivered.Add(1)
	q.logger.Debug("summary delivered",
		zap.Uint64("end_height", summary.EndHeight),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
}

// Counts returns delivered, failed and dropped totals.
func (q *QueuedSink) Counts() (delivered, failed, dropped uint64) {
	return q.delivered.Load(), q.failed.Load(), q.dropped.Load()
}
