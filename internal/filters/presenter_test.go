package filters

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"logfilters/internal/logger"
	"logfilters/pkg/errors"
)

type fakeStore struct {
	mu        sync.Mutex
	ch        chan []Record
	inserted  [][]Record
	deleted   []Record
	cancelled bool
	deleteErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{ch: make(chan []Record)}
}

func (s *fakeStore) Subscribe(ctx context.Context, partition Partition) (*Subscription, error) {
	return NewSubscription(s.ch, func() {
		s.mu.Lock()
		s.cancelled = true
		s.mu.Unlock()
	}), nil
}

func (s *fakeStore) Insert(ctx context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, records)
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, record)
	return s.deleteErr
}

type syncExecutor struct{}

func (syncExecutor) Submit(name string, fn func(ctx context.Context) error) error {
	_ = fn(context.Background())
	return nil
}

type rejectingExecutor struct{}

func (rejectingExecutor) Submit(name string, fn func(ctx context.Context) error) error {
	return stderrors.New("queue full")
}

type surfaceCall struct {
	items   []DisplayItem
	isEmpty bool
}

type recordingSurface struct {
	calls chan surfaceCall
}

func newRecordingSurface() *recordingSurface {
	return &recordingSurface{calls: make(chan surfaceCall, 16)}
}

func (s *recordingSurface) OnItemsChanged(items []DisplayItem, isEmpty bool) {
	s.calls <- surfaceCall{items: items, isEmpty: isEmpty}
}

func (s *recordingSurface) next(t *testing.T) surfaceCall {
	t.Helper()
	select {
	case c := <-s.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("surface was not notified")
		return surfaceCall{}
	}
}

func (s *recordingSurface) assertQuiet(t *testing.T) {
	t.Helper()
	select {
	case c := <-s.calls:
		t.Fatalf("unexpected surface call with %d items", len(c.items))
	case <-time.After(50 * time.Millisecond):
	}
}

func startPresenter(t *testing.T, partition Partition) (*Presenter, *fakeStore, *recordingSurface) {
	t.Helper()
	store := newFakeStore()
	surface := newRecordingSurface()
	p := NewPresenter(partition, store, surface, syncExecutor{}, logger.NopLogger())
	require.NoError(t, p.Initialize(context.Background()))
	t.Cleanup(p.Dispose)
	return p, store, surface
}

func sampleRecords() []Record {
	return []Record{
		{ID: "a", Kind: KindTag, Content: "ActivityManager"},
		{ID: "b", Kind: KindLogLevels, Content: "D,W"},
		{ID: "c", Kind: KindProcessID, Content: "812"},
	}
}

func TestPresenterAppliesSnapshots(t *testing.T) {
	_, store, surface := startPresenter(t, Inclusion)

	store.ch <- sampleRecords()
	call := surface.next(t)
	assert.False(t, call.isEmpty)
	require.Len(t, call.items, 3)
	assert.Equal(t, "Tag", call.items[0].TypeLabel)
	assert.Equal(t, "Log level", call.items[1].TypeLabel)
	assert.Equal(t, "Debug, Warning", call.items[1].DisplayText)
	assert.Equal(t, "Pid", call.items[2].TypeLabel)

	store.ch <- []Record{}
	call = surface.next(t)
	assert.True(t, call.isEmpty)
	assert.Empty(t, call.items)
}

func TestPresenterAddSubmitsOneRecordPerField(t *testing.T) {
	p, store, _ := startPresenter(t, Exclusion)

	records, err := p.Add(AddRequest{Keyword: "crash", TID: "9", LogLevels: []string{"Warning", "Debug"}})
	require.NoError(t, err)
	require.Len(t, records, 3)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.inserted, 1)
	assert.Equal(t, records, store.inserted[0])
	for _, r := range store.inserted[0] {
		assert.True(t, r.Exclusion)
	}
	assert.Equal(t, "D,W", store.inserted[0][2].Content)
}

func TestPresenterAddEmptyIsNoop(t *testing.T) {
	p, store, _ := startPresenter(t, Inclusion)

	records, err := p.Add(AddRequest{})
	require.NoError(t, err)
	assert.Nil(t, records)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Empty(t, store.inserted)
}

func TestPresenterAddRejectsUnknownLevel(t *testing.T) {
	p, store, _ := startPresenter(t, Inclusion)

	_, err := p.Add(AddRequest{Tag: "x", LogLevels: []string{"Trace"}})
	require.Error(t, err)
	assert.True(t, errors.IsInvalidInput(err))

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Empty(t, store.inserted)
}

func TestPresenterAddSubmitFailure(t *testing.T) {
	store := newFakeStore()
	p := NewPresenter(Inclusion, store, newRecordingSurface(), rejectingExecutor{}, logger.NopLogger())

	_, err := p.Add(AddRequest{Tag: "x"})
	require.Error(t, err)
	assert.True(t, errors.IsPersistence(err))
}

func TestPresenterRemove(t *testing.T) {
	p, store, surface := startPresenter(t, Inclusion)

	store.ch <- sampleRecords()
	surface.next(t)

	removed, err := p.Remove(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "b", removed.ID)

	call := surface.next(t)
	require.Len(t, call.items, 2)
	assert.Equal(t, "a", call.items[0].Source.ID)
	assert.Equal(t, "c", call.items[1].Source.ID)
	assert.False(t, call.isEmpty)

	store.mu.Lock()
	require.Len(t, store.deleted, 1)
	assert.Equal(t, "b", store.deleted[0].ID)
	store.mu.Unlock()

	items, err := p.Items(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestPresenterRemoveLastReportsEmpty(t *testing.T) {
	p, store, surface := startPresenter(t, Inclusion)

	store.ch <- []Record{{ID: "only", Kind: KindKeyword, Content: "x"}}
	surface.next(t)

	_, err := p.Remove(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, surface.next(t).isEmpty)
}

func TestPresenterRemoveOutOfRange(t *testing.T) {
	p, store, surface := startPresenter(t, Inclusion)

	store.ch <- sampleRecords()
	surface.next(t)

	for _, idx := range []int{-1, 3, 10} {
		_, err := p.Remove(context.Background(), idx)
		require.Error(t, err)
		assert.True(t, errors.IsInvalidInput(err))
	}
	surface.assertQuiet(t)

	items, err := p.Items(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 3)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Empty(t, store.deleted)
}

func TestPresenterRemoveToleratesDeleteFailure(t *testing.T) {
	p, store, surface := startPresenter(t, Inclusion)
	store.deleteErr = errors.ErrPersistence

	store.ch <- sampleRecords()
	surface.next(t)

	_, err := p.Remove(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, surface.next(t).items, 2)

	// the authoritative snapshot restores the record
	store.ch <- sampleRecords()
	assert.Len(t, surface.next(t).items, 3)
}

func TestPresenterSkipsInvalidRecords(t *testing.T) {
	store := newFakeStore()
	surface := newRecordingSurface()
	log, logs := logger.NewObserved(zapcore.WarnLevel)
	p := NewPresenter(Inclusion, store, surface, syncExecutor{}, log)
	require.NoError(t, p.Initialize(context.Background()))
	defer p.Dispose()

	store.ch <- []Record{
		{ID: "a", Kind: KindTag, Content: "A"},
		{ID: "bad", Kind: "package", Content: "com.example"},
	}
	call := surface.next(t)
	require.Len(t, call.items, 1)
	assert.Equal(t, "a", call.items[0].Source.ID)
	assert.Equal(t, 1, logs.FilterMessage("Skipping filter record that cannot be displayed").Len())
}

func TestPresenterKeepsItemsWhenSnapshotFullyInvalid(t *testing.T) {
	p, store, surface := startPresenter(t, Inclusion)

	store.ch <- sampleRecords()
	surface.next(t)

	store.ch <- []Record{{ID: "bad", Kind: "bogus", Content: "x"}}
	surface.assertQuiet(t)

	items, err := p.Items(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestPresenterDispose(t *testing.T) {
	store := newFakeStore()
	surface := newRecordingSurface()
	p := NewPresenter(Inclusion, store, surface, syncExecutor{}, logger.NopLogger())
	require.NoError(t, p.Initialize(context.Background()))

	p.Dispose()
	p.Dispose()

	store.mu.Lock()
	assert.True(t, store.cancelled)
	store.mu.Unlock()

	select {
	case store.ch <- sampleRecords():
		t.Fatal("snapshot delivered after dispose")
	case <-time.After(50 * time.Millisecond):
	}
	surface.assertQuiet(t)

	_, err := p.Remove(context.Background(), 0)
	assert.True(t, errors.IsInvalidState(err))
	_, err = p.Add(AddRequest{Tag: "x"})
	assert.True(t, errors.IsInvalidState(err))
	assert.True(t, errors.IsInvalidState(p.Initialize(context.Background())))
}

func TestPresenterInitializeTwice(t *testing.T) {
	p, _, _ := startPresenter(t, Inclusion)
	err := p.Initialize(context.Background())
	assert.True(t, errors.IsInvalidState(err))
}

func TestPresenterRemoveBeforeInitialize(t *testing.T) {
	p := NewPresenter(Inclusion, newFakeStore(), newRecordingSurface(), syncExecutor{}, logger.NopLogger())
	_, err := p.Remove(context.Background(), 0)
	assert.True(t, errors.IsInvalidState(err))
}

func TestPresenterSurvivesSurfacePanic(t *testing.T) {
	store := newFakeStore()
	calls := make(chan int, 4)
	first := true
	surface := SurfaceFunc(func(items []DisplayItem, isEmpty bool) {
		calls <- len(items)
		if first {
			first = false
			panic("render failed")
		}
	})
	p := NewPresenter(Inclusion, store, surface, syncExecutor{}, logger.NopLogger())
	require.NoError(t, p.Initialize(context.Background()))
	defer p.Dispose()

	store.ch <- sampleRecords()
	assert.Equal(t, 3, <-calls)
	store.ch <- sampleRecords()[:1]
	assert.Equal(t, 1, <-calls)
}
