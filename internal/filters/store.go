package filters

import (
	"context"
	"sync"
)

// Store persists records and pushes full partition snapshots to subscribers.
// The first snapshot on a subscription is the current state.
type Store interface {
	Subscribe(ctx context.Context, partition Partition) (*Subscription, error)
	Insert(ctx context.Context, records []Record) error
	Delete(ctx context.Context, record Record) error
}

// Surface receives the presenter's item list after every change.
type Surface interface {
	OnItemsChanged(items []DisplayItem, isEmpty bool)
}

type SurfaceFunc func(items []DisplayItem, isEmpty bool)

func (f SurfaceFunc) OnItemsChanged(items []DisplayItem, isEmpty bool) {
	f(items, isEmpty)
}

// Executor runs store mutations off the presenter loop.
type Executor interface {
	Submit(name string, fn func(ctx context.Context) error) error
}

type Subscription struct {
	C <-chan []Record

	once   sync.Once
	cancel func()
}

func NewSubscription(c <-chan []Record, cancel func()) *Subscription {
	return &Subscription{C: c, cancel: cancel}
}

// Cancel releases the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}
