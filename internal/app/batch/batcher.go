// Package batch accumulates chat messages per channel and persists them in
// batches, handing every stored message to a publisher in enqueue order.
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/core"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/domain"
	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/metrics"
)

const (
	DefaultThreshold      = 10
	DefaultInterval       = 5 * time.Second
	DefaultPersistTimeout = 5 * time.Second
	DefaultConcurrency    = 8
)

type Config struct {
	// Name tags log lines, e.g. "room" or "direct".
	Name string
	// Threshold is the pending count that triggers an immediate flush.
	Threshold int
	// Interval between timer-driven flushes of every channel.
	Interval time.Duration
	// PersistTimeout bounds a single SaveBatch call.
	PersistTimeout time.Duration
	// Concurrency limits how many channels FlushAll persists at once.
	Concurrency int
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = DefaultPersistTimeout
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	return c
}

// channelQueue holds the unflushed messages of one channel.
type channelQueue struct {
	// flushMu serialises flushes so a requeued batch is always retried
	// before anything that was enqueued after it.
	flushMu sync.Mutex

	mu      sync.Mutex
	pending []domain.Message
	dead    bool
}

func (q *channelQueue) swap() []domain.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	batch := q.pending
	q.pending = nil
	return batch
}

// requeue puts a failed batch back in front of whatever arrived meanwhile.
func (q *channelQueue) requeue(batch []domain.Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	merged := make([]domain.Message, 0, len(batch)+len(q.pending))
	merged = append(merged, batch...)
	merged = append(merged, q.pending...)
	q.pending = merged
}

func (q *channelQueue) remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.pending {
		if q.pending[i].ID == id {
			q.pending = append(q.pending[:i:i], q.pending[i+1:]...)
			return true
		}
	}
	return false
}

type Batcher struct {
	cfg   Config
	store core.MessageStore
	pub   core.Publisher
	now   func() time.Time

	mu       sync.RWMutex
	channels map[domain.ChannelKey]*channelQueue

	// index maps pending message IDs to their channel for Delete.
	index sync.Map
}

func New(cfg Config, store core.MessageStore, pub core.Publisher) *Batcher {
	return &Batcher{
		cfg:      cfg.withDefaults(),
		store:    store,
		pub:      pub,
		now:      time.Now,
		channels: make(map[domain.ChannelKey]*channelQueue),
	}
}

func (b *Batcher) queue(key domain.ChannelKey) *channelQueue {
	b.mu.RLock()
	q, ok := b.channels[key]
	b.mu.RUnlock()
	if ok {
		return q
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok = b.channels[key]; ok {
		return q
	}
	q = &channelQueue{}
	b.channels[key] = q
	return q
}

func (b *Batcher) lookup(key domain.ChannelKey) (*channelQueue, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.channels[key]
	return q, ok
}

func (b *Batcher) keys() []domain.ChannelKey {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.ChannelKey, 0, len(b.channels))
	for k := range b.channels {
		out = append(out, k)
	}
	return out
}

// Enqueue normalizes msg and appends it to its channel. Reaching the
// threshold flushes that channel on the caller's goroutine. The normalized
// message (with its ID) is returned.
func (b *Batcher) Enqueue(ctx context.Context, msg domain.Message) (domain.Message, error) {
	msg.Normalize(b.now())
	if err := msg.Validate(); err != nil {
		return domain.Message{}, err
	}
	key := msg.ChannelKey

	var n int
	for {
		q := b.queue(key)
		q.mu.Lock()
		if q.dead {
			q.mu.Unlock()
			continue
		}
		q.pending = append(q.pending, msg)
		n = len(q.pending)
		q.mu.Unlock()
		break
	}
	b.index.Store(msg.ID, key)
	metrics.MessagesEnqueued.WithLabelValues(key.Kind().String()).Inc()

	if n >= b.cfg.Threshold {
		log.Debug().Str("module", "app.batch").Str("batcher", b.cfg.Name).Str("channel", key.String()).Int("pending", n).Msg("threshold reached")
		b.FlushOne(ctx, key)
	}
	return msg, nil
}

// FlushOne persists the pending messages of one channel. Failures are
// logged and the batch is requeued; nothing is returned to the caller.
func (b *Batcher) FlushOne(ctx context.Context, key domain.ChannelKey) {
	q, ok := b.lookup(key)
	if !ok {
		return
	}
	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	batch := q.swap()
	if len(batch) == 0 {
		return
	}
	b.persist(ctx, key, q, batch)
}

func (b *Batcher) persist(ctx context.Context, key domain.ChannelKey, q *channelQueue, batch []domain.Message) {
	logger := log.With().
		Str("module", "app.batch").
		Str("batcher", b.cfg.Name).
		Str("channel", key.String()).
		Int("size", len(batch)).
		Logger()

	pctx, cancel := context.WithTimeout(ctx, b.cfg.PersistTimeout)
	start := time.Now()
	saved, err := b.store.SaveBatch(pctx, batch)
	cancel()
	metrics.PersistLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		q.requeue(batch)
		metrics.BatchesFlushed.WithLabelValues("requeued").Inc()
		logger.Error().Err(domain.Persistence("save batch", err)).Msg("flush failed, batch requeued")
		return
	}
	metrics.BatchesFlushed.WithLabelValues("ok").Inc()
	metrics.BatchSize.Observe(float64(len(batch)))
	for _, m := range batch {
		b.index.Delete(m.ID)
	}
	logger.Debug().Msg("batch persisted")

	if b.pub == nil {
		return
	}
	for _, m := range saved {
		if err := b.pub.Publish(ctx, m); err != nil {
			logger.Warn().Err(err).Str("id", m.ID).Msg("publish failed")
		}
	}
}

// FlushAll flushes every channel independently; one slow or failing
// channel does not hold back the others beyond the concurrency limit.
func (b *Batcher) FlushAll(ctx context.Context) {
	var g errgroup.Group
	g.SetLimit(b.cfg.Concurrency)
	for _, key := range b.keys() {
		key := key
		g.Go(func() error {
			b.FlushOne(ctx, key)
			return nil
		})
	}
	_ = g.Wait()
}

// compact drops idle channel entries so quiet channels do not accumulate.
func (b *Batcher) compact() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, q := range b.channels {
		if !q.flushMu.TryLock() {
			continue
		}
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.dead = true
			delete(b.channels, key)
		}
		q.mu.Unlock()
		q.flushMu.Unlock()
	}
}

// Run drives timer flushes until ctx is done. A flush in progress when ctx
// is cancelled still completes within PersistTimeout.
func (b *Batcher) Run(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()
	flushCtx := context.WithoutCancel(ctx)

	log.Info().Str("module", "app.batch").Str("batcher", b.cfg.Name).Dur("interval", b.cfg.Interval).Int("threshold", b.cfg.Threshold).Msg("batcher started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.batch").Str("batcher", b.cfg.Name).Msg("batcher stopped")
			return
		case <-ticker.C:
			b.FlushAll(flushCtx)
			b.compact()
		}
	}
}

// Close performs a final flush of everything still pending.
func (b *Batcher) Close(ctx context.Context) {
	b.FlushAll(ctx)
	if n := b.PendingTotal(); n > 0 {
		log.Warn().Str("module", "app.batch").Str("batcher", b.cfg.Name).Int("pending", n).Msg("messages left unpersisted at shutdown")
	}
}

// Delete removes message id of channel key while it is still pending, or
// deletes it from the store if it was already flushed. A message of another
// channel is reported as not found.
func (b *Batcher) Delete(ctx context.Context, key domain.ChannelKey, id string) (bool, error) {
	if v, ok := b.index.Load(id); ok && v.(domain.ChannelKey) == key {
		if q, ok := b.lookup(key); ok {
			q.flushMu.Lock()
			removed := q.remove(id)
			q.flushMu.Unlock()
			if removed {
				b.index.Delete(id)
				log.Info().Str("module", "app.batch").Str("batcher", b.cfg.Name).Str("channel", key.String()).Str("id", id).Msg("pending message deleted")
				return true, nil
			}
		}
	}
	ok, err := b.store.DeleteByID(ctx, key, id)
	if err != nil {
		return false, domain.Persistence("delete", err)
	}
	return ok, nil
}

// Pending returns the number of unflushed messages of a channel.
func (b *Batcher) Pending(key domain.ChannelKey) int {
	q, ok := b.lookup(key)
	if !ok {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (b *Batcher) PendingTotal() int {
	total := 0
	for _, key := range b.keys() {
		total += b.Pending(key)
	}
	return total
}

type Stats struct {
	Channels int `json:"channels"`
	Pending  int `json:"pending"`
}

func (b *Batcher) Stats() Stats {
	keys := b.keys()
	s := Stats{Channels: len(keys)}
	for _, key := range keys {
		s.Pending += b.Pending(key)
	}
	return s
}
