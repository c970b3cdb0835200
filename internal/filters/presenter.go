package filters

import (
	"context"
	"fmt"
	"sync"
	"time"

	"logfilters/internal/logger"
	"logfilters/pkg/errors"
	"logfilters/pkg/logging"
	"logfilters/pkg/metrics"
)

type command func(items []DisplayItem) []DisplayItem

// Presenter projects one partition of the store onto a Surface. A single
// loop goroutine owns the current items and makes every surface call;
// store mutations are handed to the Executor.
//
// Remove and Items must not be called from inside Surface.OnItemsChanged,
// since the loop is blocked on that call.
type Presenter struct {
	partition Partition
	store     Store
	surface   Surface
	executor  Executor
	logger    logger.Logger
	now       func() time.Time

	mu       sync.Mutex
	started  bool
	disposed bool
	sub      *Subscription
	cancel   context.CancelFunc

	cmds chan command
	done chan struct{}
}

func NewPresenter(partition Partition, store Store, surface Surface, executor Executor, log logger.Logger) *Presenter {
	return &Presenter{
		partition: partition,
		store:     store,
		surface:   surface,
		executor:  executor,
		logger:    log,
		now:       time.Now,
		cmds:      make(chan command),
		done:      make(chan struct{}),
	}
}

func (p *Presenter) Partition() Partition {
	return p.partition
}

// Initialize subscribes to the partition and starts delivering snapshots to
// the surface until Dispose is called or ctx ends.
func (p *Presenter) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disposed {
		return errors.ErrInvalidState.WithDetail("message", "presenter disposed")
	}
	if p.started {
		return errors.ErrInvalidState.WithDetail("message", "presenter already initialized")
	}

	loopCtx, cancel := context.WithCancel(logging.WithPartition(ctx, string(p.partition)))
	sub, err := p.store.Subscribe(loopCtx, p.partition)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to %s: %w", p.partition, err)
	}

	p.sub = sub
	p.cancel = cancel
	p.started = true

	go p.loop(loopCtx, sub)
	return nil
}

// Dispose releases the subscription and stops the loop. No surface call
// happens once Dispose returns.
func (p *Presenter) Dispose() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.disposed = true
	started := p.started
	if started {
		p.cancel()
		p.sub.Cancel()
	}
	p.mu.Unlock()

	if started {
		<-p.done
	}
}

func (p *Presenter) loop(ctx context.Context, sub *Subscription) {
	defer close(p.done)

	var items []DisplayItem
	for {
		select {
		case <-ctx.Done():
			return
		case records, ok := <-sub.C:
			if !ok {
				p.logger.DebugwCtx(ctx, "Snapshot stream closed")
				return
			}
			if ctx.Err() != nil {
				return
			}
			items = p.applySnapshot(ctx, items, records)
		case cmd := <-p.cmds:
			items = cmd(items)
		}
	}
}

func (p *Presenter) applySnapshot(ctx context.Context, current []DisplayItem, records []Record) []DisplayItem {
	items, errs := MapSnapshot(records)
	for _, err := range errs {
		metrics.IncFilterMappingFailure(string(p.partition))
		p.logger.WarnwCtx(ctx, "Skipping filter record that cannot be displayed", "error", err)
	}

	if len(records) > 0 && len(items) == 0 {
		metrics.IncFilterSnapshot(string(p.partition), "rejected")
		p.logger.ErrorwCtx(ctx, "Snapshot contained no displayable records, keeping previous items",
			"records", len(records),
			"previous_items", len(current),
		)
		return current
	}

	metrics.IncFilterSnapshot(string(p.partition), "applied")
	p.notify(ctx, items)
	return items
}

func (p *Presenter) notify(ctx context.Context, items []DisplayItem) {
	metrics.SetFilterItems(string(p.partition), len(items))

	out := make([]DisplayItem, len(items))
	copy(out, items)
	if err := errors.Guard(func() { p.surface.OnItemsChanged(out, len(out) == 0) }); err != nil {
		p.logger.ErrorwCtx(ctx, "Surface panicked while handling items", "error", err)
	}
}

// Add builds one record per non-empty field and submits them for insertion.
// An empty request is a no-op and returns no records.
func (p *Presenter) Add(req AddRequest) ([]Record, error) {
	if err := p.checkAlive(); err != nil {
		return nil, err
	}

	records, err := BuildRecords(p.partition, req, p.now())
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	err = p.executor.Submit("insert", func(ctx context.Context) error {
		ctx = logging.WithPartition(ctx, string(p.partition))
		if err := p.store.Insert(ctx, records); err != nil {
			p.logger.ErrorwCtx(ctx, "Failed to insert filters", "count", len(records), "error", err)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, errors.ErrPersistence.WithCause(err).WithDetail("message", "failed to submit insert")
	}

	return records, nil
}

// Remove evicts the item at index, signals the surface and submits the
// delete of the underlying record. An out of range index returns
// ErrInvalidInput and leaves the items untouched.
func (p *Presenter) Remove(ctx context.Context, index int) (Record, error) {
	type result struct {
		record Record
		err    error
	}
	reply := make(chan result, 1)

	cmd := func(items []DisplayItem) []DisplayItem {
		if index < 0 || index >= len(items) {
			reply <- result{err: errors.ErrInvalidInput.
				WithDetail("message", fmt.Sprintf("index %d out of range [0, %d)", index, len(items))).
				WithDetail("index", index)}
			return items
		}

		evicted := items[index].Source
		next := make([]DisplayItem, 0, len(items)-1)
		next = append(next, items[:index]...)
		next = append(next, items[index+1:]...)

		loopCtx := logging.WithPartition(ctx, string(p.partition))
		p.notify(loopCtx, next)

		err := p.executor.Submit("delete", func(ctx context.Context) error {
			ctx = logging.WithPartition(ctx, string(p.partition))
			if err := p.store.Delete(ctx, evicted); err != nil {
				p.logger.WarnwCtx(ctx, "Failed to delete filter, next snapshot will restore it",
					"record_id", evicted.ID,
					"error", err,
				)
				return err
			}
			return nil
		})
		if err != nil {
			p.logger.WarnwCtx(loopCtx, "Failed to submit delete", "record_id", evicted.ID, "error", err)
		}

		reply <- result{record: evicted}
		return next
	}

	if err := p.send(ctx, cmd); err != nil {
		return Record{}, err
	}
	r := <-reply
	return r.record, r.err
}

// Items returns a copy of the current items.
func (p *Presenter) Items(ctx context.Context) ([]DisplayItem, error) {
	reply := make(chan []DisplayItem, 1)
	err := p.send(ctx, func(items []DisplayItem) []DisplayItem {
		out := make([]DisplayItem, len(items))
		copy(out, items)
		reply <- out
		return items
	})
	if err != nil {
		return nil, err
	}
	return <-reply, nil
}

func (p *Presenter) send(ctx context.Context, cmd command) error {
	if err := p.checkAlive(); err != nil {
		return err
	}
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started {
		return errors.ErrInvalidState.WithDetail("message", "presenter not initialized")
	}

	select {
	case p.cmds <- cmd:
		return nil
	case <-p.done:
		return errors.ErrInvalidState.WithDetail("message", "presenter stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Presenter) checkAlive() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return errors.ErrInvalidState.WithDetail("message", "presenter disposed")
	}
	return nil
}
