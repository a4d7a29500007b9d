package event

import (
	"context"
	"sync"
	"time"

	"github.com/fleetbill/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// RelayConfig tunes the outbox relay. A zero PruneInterval disables pruning.
type RelayConfig struct {
	BatchSize      int
	PollInterval   time.Duration
	PruneInterval  time.Duration
	RetainDelivery time.Duration
}

// DefaultRelayConfig returns the settings used when nothing is configured
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		BatchSize:      100,
		PollInterval:   5 * time.Second,
		PruneInterval:  time.Hour,
		RetainDelivery: 7 * 24 * time.Hour,
	}
}

// DrainResult summarizes one pass over the outbox
type DrainResult struct {
	Delivered int
	Retrying  int
	Dead      int
}

// Relay moves committed outbox rows to the event bus. Rows are claimed
// before delivery so several relays may share one table; handlers still see
// at-least-once delivery.
type Relay struct {
	repo       shared.OutboxRepository
	bus        shared.EventPublisher
	serializer *EventSerializer
	cfg        RelayConfig
	logger     *zap.Logger

	cancel context.CancelFunc
	done   sync.WaitGroup
}

// NewRelay creates a relay reading from repo and publishing on bus
func NewRelay(repo shared.OutboxRepository, bus shared.EventPublisher, serializer *EventSerializer, cfg RelayConfig, logger *zap.Logger) *Relay {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultRelayConfig().BatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultRelayConfig().PollInterval
	}
	return &Relay{
		repo:       repo,
		bus:        bus,
		serializer: serializer,
		cfg:        cfg,
		logger:     logger.Named("outbox"),
	}
}

// Start runs the relay loop until Stop is called or ctx ends
func (r *Relay) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done.Add(1)
	go r.loop(ctx)
	r.logger.Info("outbox relay started",
		zap.Int("batch_size", r.cfg.BatchSize),
		zap.Duration("poll_interval", r.cfg.PollInterval),
	)
}

// Stop cancels the loop and waits for the current pass, bounded by ctx
func (r *Relay) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}
	finished := make(chan struct{})
	go func() {
		r.done.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		r.logger.Info("outbox relay stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Relay) loop(ctx context.Context) {
	defer r.done.Done()

	poll := time.NewTicker(r.cfg.PollInterval)
	defer poll.Stop()

	var prune <-chan time.Time
	if r.cfg.PruneInterval > 0 {
		t := time.NewTicker(r.cfg.PruneInterval)
		defer t.Stop()
		prune = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			if res := r.Drain(ctx); res.Retrying+res.Dead > 0 {
				r.logBacklog(ctx)
			}
		case <-prune:
			r.Prune(ctx)
			r.logBacklog(ctx)
		}
	}
}

// Drain claims one batch of due rows and delivers each in turn
func (r *Relay) Drain(ctx context.Context) DrainResult {
	var res DrainResult

	rows, err := r.repo.ClaimDue(ctx, time.Now().UTC(), r.cfg.BatchSize)
	if err != nil {
		r.logger.Error("outbox claim failed", zap.Error(err))
		return res
	}

	for _, row := range rows {
		if err := r.publish(ctx, row); err != nil {
			row.MarkFailed(err.Error())
			if row.IsDead() {
				res.Dead++
			} else {
				res.Retrying++
			}
			r.logger.Warn("outbox delivery failed",
				zap.String("event_id", row.EventID.String()),
				zap.String("event_type", row.EventType),
				zap.String("status", string(row.Status)),
				zap.Int("retry_count", row.RetryCount),
				zap.Error(err),
			)
		} else {
			row.MarkSent()
			res.Delivered++
		}
		if err := r.repo.Settle(ctx, row); err != nil {
			r.logger.Error("outbox status write failed",
				zap.String("event_id", row.EventID.String()),
				zap.Error(err),
			)
		}
	}
	return res
}

func (r *Relay) publish(ctx context.Context, row *shared.OutboxEntry) error {
	event, err := r.serializer.Deserialize(row.EventType, row.Payload)
	if err != nil {
		return err
	}
	return r.bus.Publish(ctx, event)
}

// Prune deletes rows delivered before the retention window
func (r *Relay) Prune(ctx context.Context) int64 {
	cutoff := time.Now().UTC().Add(-r.cfg.RetainDelivery)
	n, err := r.repo.PurgeDelivered(ctx, cutoff)
	if err != nil {
		r.logger.Error("outbox prune failed", zap.Error(err))
		return 0
	}
	if n > 0 {
		r.logger.Info("outbox pruned", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
	}
	return n
}

func (r *Relay) logBacklog(ctx context.Context) {
	counts, err := r.repo.CountByStatus(ctx)
	if err != nil {
		r.logger.Error("outbox backlog count failed", zap.Error(err))
		return
	}
	r.logger.Info("outbox backlog",
		zap.Int64("pending", counts[shared.OutboxStatusPending]),
		zap.Int64("failed", counts[shared.OutboxStatusFailed]),
		zap.Int64("dead", counts[shared.OutboxStatusDead]),
	)
}
