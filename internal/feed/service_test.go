package feed

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/pubcaster/internal/metrics"
	"github.com/hitoshi/pubcaster/internal/model"
)

type stubBuilder struct {
	res *Result
	err error
}

func (b stubBuilder) Build(context.Context, string) (*Result, error) { return b.res, b.err }

type memStore struct {
	snapshots map[string]*model.Snapshot
	touched   map[string]time.Time
	upsertErr error
}

func newMemStore() *memStore {
	return &memStore{snapshots: map[string]*model.Snapshot{}, touched: map[string]time.Time{}}
}

func (m *memStore) FindByPubkey(_ context.Context, pubkey string) (*model.Snapshot, error) {
	return m.snapshots[pubkey], nil
}

func (m *memStore) Upsert(_ context.Context, s *model.Snapshot) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.snapshots[s.Pubkey] = s
	return nil
}

func (m *memStore) Touch(_ context.Context, pubkey string, at time.Time) error {
	m.touched[pubkey] = at
	return nil
}

type fallbackCounter struct {
	metrics.Nop
	fallbacks int
	stored    int
}

func (c *fallbackCounter) RecordSnapshotFallback() { c.fallbacks++ }
func (c *fallbackCounter) RecordSnapshotStored()   { c.stored++ }

func newTestService(b FeedBuilder, store SnapshotStore, c metrics.MetricsCollector) *Service {
	s := NewService(b, store, c, 15*time.Minute, nil)
	s.now = func() time.Time { return now }
	return s
}

func TestService_Feed_StoresSuccessfulBuild(t *testing.T) {
	store := newMemStore()
	c := &fallbackCounter{}
	res := &Result{Pubkey: ownerPK, Identifier: "npub1x", XML: []byte("<rss/>"), BuiltAt: now}

	doc, err := newTestService(stubBuilder{res: res}, store, c).Feed(context.Background(), "npub1x")
	require.NoError(t, err)
	assert.False(t, doc.Stale)
	assert.Equal(t, "<rss/>", string(doc.XML))

	stored := store.snapshots[ownerPK]
	require.NotNil(t, stored)
	assert.Equal(t, "npub1x", stored.Identifier)
	assert.Equal(t, now.Add(15*time.Minute), stored.NextRefreshAt)
	assert.Equal(t, now, store.touched[ownerPK])
	assert.Equal(t, 1, c.stored)
}

func TestService_Feed_FallsBackToSnapshotOnRelayFailure(t *testing.T) {
	store := newMemStore()
	store.snapshots[ownerPK] = &model.Snapshot{Pubkey: ownerPK, XML: []byte("<rss>old</rss>"), BuiltAt: now.Add(-time.Hour)}
	c := &fallbackCounter{}

	doc, err := newTestService(stubBuilder{err: errors.New("all relays failed")}, store, c).Feed(context.Background(), ownerPK)
	require.NoError(t, err)
	assert.True(t, doc.Stale)
	assert.Equal(t, "<rss>old</rss>", string(doc.XML))
	assert.Equal(t, 1, c.fallbacks)
	assert.Contains(t, store.touched, ownerPK)
}

func TestService_Feed_NoSnapshotReturnsBuildError(t *testing.T) {
	buildErr := errors.New("all relays failed")
	_, err := newTestService(stubBuilder{err: buildErr}, newMemStore(), nil).Feed(context.Background(), ownerPK)
	assert.ErrorIs(t, err, buildErr)
}

func TestService_Feed_NotFoundDoesNotFallBack(t *testing.T) {
	store := newMemStore()
	store.snapshots[ownerPK] = &model.Snapshot{Pubkey: ownerPK, XML: []byte("<rss/>")}

	_, err := newTestService(stubBuilder{err: model.NewProfileNotFoundError(ownerPK)}, store, nil).Feed(context.Background(), ownerPK)
	assert.True(t, model.IsAPIError(err, model.ErrCodeProfileNotFound))
}

func TestService_Feed_WithoutStore(t *testing.T) {
	res := &Result{Pubkey: ownerPK, XML: []byte("<rss/>")}
	doc, err := newTestService(stubBuilder{res: res}, nil, nil).Feed(context.Background(), ownerPK)
	require.NoError(t, err)
	assert.Equal(t, "<rss/>", string(doc.XML))

	_, err = newTestService(stubBuilder{err: errors.New("down")}, nil, nil).Feed(context.Background(), ownerPK)
	assert.Error(t, err)
}

func TestService_Feed_StoreFailureStillServes(t *testing.T) {
	store := newMemStore()
	store.upsertErr = errors.New("db down")
	res := &Result{Pubkey: ownerPK, XML: []byte("<rss/>")}

	doc, err := newTestService(stubBuilder{res: res}, store, nil).Feed(context.Background(), ownerPK)
	require.NoError(t, err)
	assert.Equal(t, "<rss/>", string(doc.XML))
}

func TestService_Feed_UnavailableProfileFallsBackToSnapshot(t *testing.T) {
	store := newMemStore()
	store.snapshots[ownerPK] = &model.Snapshot{Pubkey: ownerPK, XML: []byte("<rss>old</rss>"), BuiltAt: now.Add(-time.Hour)}
	c := &fallbackCounter{}
	buildErr := fmt.Errorf("%w: %w", ErrProfileUnavailable, context.DeadlineExceeded)

	doc, err := newTestService(stubBuilder{err: buildErr}, store, c).Feed(context.Background(), ownerPK)
	require.NoError(t, err)
	assert.True(t, doc.Stale)
	assert.Equal(t, 1, c.fallbacks)
}

func TestService_Feed_UnavailableProfileWithoutSnapshotIsNotFound(t *testing.T) {
	buildErr := fmt.Errorf("%w: %w", ErrProfileUnavailable, errors.New("all relays failed"))

	_, err := newTestService(stubBuilder{err: buildErr}, newMemStore(), nil).Feed(context.Background(), ownerPK)
	assert.True(t, model.IsAPIError(err, model.ErrCodeProfileNotFound))

	_, err = newTestService(stubBuilder{err: buildErr}, nil, nil).Feed(context.Background(), ownerPK)
	assert.True(t, model.IsAPIError(err, model.ErrCodeProfileNotFound))

	_, err = newTestService(stubBuilder{err: buildErr}, nil, nil).Episodes(context.Background(), ownerPK)
	assert.True(t, model.IsAPIError(err, model.ErrCodeProfileNotFound))
}

func TestService_Feed_UnavailableProfileAfterDeadlineKeepsBuildError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()
	buildErr := fmt.Errorf("%w: %w", ErrProfileUnavailable, context.DeadlineExceeded)

	_, err := newTestService(stubBuilder{err: buildErr}, nil, nil).Feed(ctx, ownerPK)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, model.IsAPIError(err, model.ErrCodeProfileNotFound))
}
