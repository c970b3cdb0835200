package filterstore

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"logfilters/internal/config"
	"logfilters/internal/filters"
	"logfilters/internal/logger"
	"logfilters/internal/storage"
	"logfilters/pkg/errors"
	"logfilters/pkg/logging"
	"logfilters/pkg/metrics"
	"logfilters/pkg/models"
)

var partitions = []filters.Partition{filters.Inclusion, filters.Exclusion}

type subscriber struct {
	ch chan []filters.Record
}

// Store implements filters.Store on top of a Repository. Every change made
// through it, or announced by another instance, is followed by a fresh
// snapshot of the affected partition to all of its subscribers.
//
// Subscribers see the latest snapshot only: a slow reader skips snapshots
// it had no time to consume, never a newer one.
type Store struct {
	repo     storage.Repository
	notifier Notifier
	origin   string
	cfg      config.StoreConfig
	logger   logger.Logger

	refreshMu map[filters.Partition]*sync.Mutex

	mu     sync.Mutex
	subs   map[filters.Partition]map[uint64]*subscriber
	nextID uint64
	closed bool
}

// New creates a store. origin identifies this instance in published change
// events so that it can skip its own events when they come back.
func New(repo storage.Repository, notifier Notifier, origin string, cfg config.StoreConfig, log logger.Logger) *Store {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	s := &Store{
		repo:      repo,
		notifier:  notifier,
		origin:    origin,
		cfg:       cfg,
		logger:    log,
		refreshMu: make(map[filters.Partition]*sync.Mutex, len(partitions)),
		subs:      make(map[filters.Partition]map[uint64]*subscriber, len(partitions)),
	}
	for _, p := range partitions {
		s.refreshMu[p] = &sync.Mutex{}
		s.subs[p] = make(map[uint64]*subscriber)
	}
	return s
}

func (s *Store) Origin() string {
	return s.origin
}

func (s *Store) Subscribe(ctx context.Context, partition filters.Partition) (*filters.Subscription, error) {
	if _, err := filters.ParsePartition(string(partition)); err != nil {
		return nil, err
	}

	lock := s.refreshMu[partition]
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.ErrInvalidState.WithDetail("message", "filter store closed")
	}
	id := s.nextID
	s.nextID++
	sub := &subscriber{ch: make(chan []filters.Record, 1)}
	s.subs[partition][id] = sub
	metrics.FilterSubscriptions.WithLabelValues(string(partition)).Set(float64(len(s.subs[partition])))
	s.mu.Unlock()

	records, err := s.repo.List(ctx, partition)
	if err != nil {
		s.unsubscribe(partition, id)
		return nil, fmt.Errorf("failed to load %s: %w", partition, err)
	}

	s.mu.Lock()
	if current, ok := s.subs[partition][id]; ok {
		deliver(current, records)
	}
	s.mu.Unlock()

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.unsubscribe(partition, id)
		case <-stop:
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() { close(stop) })
		s.unsubscribe(partition, id)
	}

	return filters.NewSubscription(sub.ch, cancel), nil
}

func (s *Store) unsubscribe(partition filters.Partition, id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[partition][id]
	if !ok {
		return
	}
	delete(s.subs[partition], id)
	close(sub.ch)
	metrics.FilterSubscriptions.WithLabelValues(string(partition)).Set(float64(len(s.subs[partition])))
}

// deliver replaces any unread snapshot. Callers hold s.mu.
func deliver(sub *subscriber, records []filters.Record) {
	snapshot := make([]filters.Record, len(records))
	copy(snapshot, records)

	select {
	case sub.ch <- snapshot:
		return
	default:
	}
	select {
	case <-sub.ch:
	default:
	}
	select {
	case sub.ch <- snapshot:
	default:
	}
}

// Refresh reloads a partition and broadcasts it. Refreshes of the same
// partition never interleave, so subscribers receive snapshots in load order.
func (s *Store) Refresh(ctx context.Context, partition filters.Partition) error {
	lock := s.refreshMu[partition]
	if lock == nil {
		return errors.ErrInvalidInput.WithDetail("message", fmt.Sprintf("unknown partition %q", partition))
	}
	lock.Lock()
	defer lock.Unlock()

	records, err := s.repo.List(ctx, partition)
	if err != nil {
		return fmt.Errorf("failed to reload %s: %w", partition, err)
	}

	s.mu.Lock()
	for _, sub := range s.subs[partition] {
		deliver(sub, records)
	}
	s.mu.Unlock()

	s.logger.DebugwCtx(ctx, "Filter partition refreshed",
		"partition", partition,
		"records", len(records),
	)
	return nil
}

func (s *Store) Insert(ctx context.Context, records []filters.Record) error {
	if len(records) == 0 {
		return nil
	}
	start := time.Now()

	if err := s.repo.Insert(ctx, records); err != nil {
		metrics.ObserveFilterMutation(models.ActionInsert, "error", time.Since(start))
		return err
	}
	metrics.ObserveFilterMutation(models.ActionInsert, "success", time.Since(start))

	for partition, ids := range groupByPartition(records) {
		s.afterChange(ctx, partition, models.ActionInsert, ids)
	}
	return nil
}

// Delete removes the record. The partition is refreshed even when the
// delete fails, so subscribers that already hid the record get it back.
func (s *Store) Delete(ctx context.Context, record filters.Record) error {
	start := time.Now()
	partition := record.Partition()

	if err := s.repo.Delete(ctx, record.ID); err != nil {
		metrics.ObserveFilterMutation(models.ActionDelete, "error", time.Since(start))
		if refreshErr := s.Refresh(ctx, partition); refreshErr != nil {
			s.logger.WarnwCtx(ctx, "Failed to refresh after failed delete", "error", refreshErr)
		}
		return err
	}
	metrics.ObserveFilterMutation(models.ActionDelete, "success", time.Since(start))

	s.afterChange(ctx, partition, models.ActionDelete, []string{record.ID})
	return nil
}

// afterChange refreshes local subscribers and tells other instances. The
// write already succeeded, so failures here are logged and left to resync.
func (s *Store) afterChange(ctx context.Context, partition filters.Partition, action string, ids []string) {
	ctx = logging.WithPartition(ctx, string(partition))

	if err := s.Refresh(ctx, partition); err != nil {
		s.logger.WarnwCtx(ctx, "Failed to refresh after change, waiting for resync",
			"action", action,
			"error", err,
		)
	}

	event := models.ChangeEvent{
		EventType: models.EventTypeFiltersChanged,
		Partition: string(partition),
		Action:    action,
		RecordIDs: ids,
		Origin:    s.origin,
		Timestamp: time.Now().UTC(),
	}
	if err := s.notifier.Publish(ctx, event); err != nil {
		s.logger.WarnwCtx(ctx, "Failed to publish filter change event",
			"action", action,
			"error", err,
		)
	}
}

func groupByPartition(records []filters.Record) map[filters.Partition][]string {
	out := make(map[filters.Partition][]string)
	for _, r := range records {
		p := r.Partition()
		out[p] = append(out[p], r.ID)
	}
	return out
}

// HandleChangeEvent refreshes the partition named by an event published by
// another instance. Events carrying this store's origin are ignored.
func (s *Store) HandleChangeEvent(ctx context.Context, event models.ChangeEvent) error {
	if err := models.ValidateChangeEvent(event); err != nil {
		return errors.ErrInvalidInput.WithCause(err)
	}
	if event.Origin == s.origin {
		return nil
	}

	partition, err := filters.ParsePartition(event.Partition)
	if err != nil {
		return err
	}

	ctx = logging.WithPartition(ctx, event.Partition)
	s.logger.InfowCtx(ctx, "Received filter change event",
		"action", event.Action,
		"origin", event.Origin,
		"records", len(event.RecordIDs),
	)
	return s.Refresh(ctx, partition)
}

// StartResync refreshes every partition on a jittered interval until ctx
// ends. It heals snapshots after a missed change event. A zero interval
// disables it.
func (s *Store) StartResync(ctx context.Context) error {
	if s.cfg.ResyncIntervalSeconds <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(time.Duration(s.cfg.ResyncIntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.applyJitter(ctx); err != nil {
				return err
			}
			s.resync(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Store) resync(ctx context.Context) {
	for _, p := range partitions {
		if err := s.Refresh(ctx, p); err != nil {
			s.logger.ErrorwCtx(ctx, "Failed to resync filter partition",
				"partition", p,
				"error", err,
			)
		}
	}
}

func (s *Store) applyJitter(ctx context.Context) error {
	if s.cfg.JitterMaxMilliseconds <= 0 {
		return nil
	}

	jitter := time.Duration(rand.Intn(s.cfg.JitterMaxMilliseconds)) * time.Millisecond
	s.logger.DebugwCtx(ctx, "Resync scheduled with jitter",
		"jitter_ms", jitter.Milliseconds(),
	)

	select {
	case <-time.After(jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends every subscription. Later Subscribe calls fail.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for p, subs := range s.subs {
		for id, sub := range subs {
			delete(subs, id)
			close(sub.ch)
		}
		metrics.FilterSubscriptions.WithLabelValues(string(p)).Set(0)
	}
}
