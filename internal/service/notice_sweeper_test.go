package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bimbel-api/internal/models"
	appErrors "github.com/noah-isme/bimbel-api/pkg/errors"
)

type mockSweepRepo struct {
	notices    map[string]*models.Notice
	publishErr map[string]error
	listErr    error
}

func newMockSweepRepo() *mockSweepRepo {
	return &mockSweepRepo{notices: map[string]*models.Notice{}, publishErr: map[string]error{}}
}

func (m *mockSweepRepo) add(id string, scheduledAt time.Time) {
	at := scheduledAt
	m.notices[id] = &models.Notice{ID: id, IsScheduled: true, ScheduledAt: &at}
}

func (m *mockSweepRepo) ListDue(_ context.Context, cutoff time.Time) ([]models.Notice, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	due := []models.Notice{}
	for _, n := range m.notices {
		if n.IsScheduled && n.ScheduledAt != nil && !n.ScheduledAt.After(cutoff) {
			due = append(due, *n)
		}
	}
	return due, nil
}

func (m *mockSweepRepo) Publish(_ context.Context, id string, _ time.Time) (bool, error) {
	if err := m.publishErr[id]; err != nil {
		return false, err
	}
	n, ok := m.notices[id]
	if !ok || !n.IsScheduled {
		return false, nil
	}
	n.IsScheduled = false
	n.IsActive = true
	return true, nil
}

func TestSweepPublishesDueNotices(t *testing.T) {
	repo := newMockSweepRepo()
	now := time.Now().UTC()
	repo.add("due1", now.Add(-time.Minute))
	repo.add("due2", now.Add(-time.Hour))
	repo.add("future", now.Add(time.Hour))

	sweeper := NewNoticeSweeper(repo, nil, nil, nil, 0, 0)
	published, err := sweeper.RunOnce(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, published)

	assert.True(t, repo.notices["due1"].IsActive)
	assert.False(t, repo.notices["due1"].IsScheduled)
	assert.True(t, repo.notices["due2"].IsActive)
	assert.False(t, repo.notices["future"].IsActive)
	assert.True(t, repo.notices["future"].IsScheduled)
}

func TestSweepIsIdempotent(t *testing.T) {
	repo := newMockSweepRepo()
	now := time.Now().UTC()
	repo.add("due1", now.Add(-time.Minute))

	sweeper := NewNoticeSweeper(repo, nil, nil, nil, 0, 0)
	published, err := sweeper.RunOnce(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, published)

	published, err = sweeper.RunOnce(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 0, published)
}

func TestSweepIsolatesPerNoticeFailures(t *testing.T) {
	repo := newMockSweepRepo()
	now := time.Now().UTC()
	repo.add("bad", now.Add(-time.Minute))
	repo.add("good", now.Add(-time.Minute))
	repo.publishErr["bad"] = errors.New("deadlock detected")

	sweeper := NewNoticeSweeper(repo, nil, nil, nil, 0, 0)
	published, err := sweeper.RunOnce(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, published)
	assert.True(t, repo.notices["good"].IsActive)
	assert.False(t, repo.notices["bad"].IsActive)

	// the failed notice stays scheduled for the next pass
	repo.publishErr = map[string]error{}
	published, err = sweeper.RunOnce(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, published)
	assert.True(t, repo.notices["bad"].IsActive)
}

func TestSweepReportsListFailure(t *testing.T) {
	repo := newMockSweepRepo()
	repo.listErr = errors.New("connection refused")

	sweeper := NewNoticeSweeper(repo, nil, nil, nil, 0, 0)
	published, err := sweeper.RunOnce(context.Background(), time.Now().UTC())
	require.Error(t, err)
	assert.Equal(t, 0, published)
}

// memoryCacheRepo is a map-backed CacheRepository for cache-coherence tests.
type memoryCacheRepo struct {
	entries map[string][]byte
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{entries: map[string][]byte{}}
}

func (m *memoryCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

// sweepNoticeStore backs both the listing repository and the sweep repository
// with one notice map, so a pass and a subsequent listing see the same rows.
type sweepNoticeStore struct {
	*mockSweepRepo
}

func (s *sweepNoticeStore) List(_ context.Context, filter models.NoticeFilter) ([]models.Notice, int, error) {
	out := []models.Notice{}
	for _, n := range s.notices {
		visible := n.IsActive && (!n.IsScheduled || (n.ScheduledAt != nil && !n.ScheduledAt.After(filter.Now)))
		if !visible {
			continue
		}
		out = append(out, *n)
	}
	return out, len(out), nil
}

func (s *sweepNoticeStore) FindByID(_ context.Context, _ string) (*models.Notice, error) {
	return nil, errors.New("not implemented")
}

func (s *sweepNoticeStore) Create(_ context.Context, _ *models.Notice) error {
	return errors.New("not implemented")
}

func (s *sweepNoticeStore) Update(_ context.Context, _ *models.Notice) error {
	return errors.New("not implemented")
}

func (s *sweepNoticeStore) Delete(_ context.Context, _ string) error {
	return errors.New("not implemented")
}

func TestSweepInvalidatesListingCache(t *testing.T) {
	store := &sweepNoticeStore{mockSweepRepo: newMockSweepRepo()}
	now := time.Now().UTC()
	store.add("due1", now.Add(-time.Minute))
	store.notices["due1"].Audience = models.NoticeAudienceAll

	cache := NewCacheService(newMemoryCacheRepo(), nil, time.Hour, nil, true)
	memberships := &mockMembershipScope{batchIDs: map[string][]string{}}
	batches := &mockBatchScope{batchIDs: map[string][]string{}}
	svc := NewNoticeService(store, memberships, batches, cache, nil, nil)

	// the pre-publication page lands in the cache
	list, err := svc.ListVisible(context.Background(), studentClaims("s1"), NoticeListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list.Items)

	sweeper := NewNoticeSweeper(store, cache, nil, nil, 0, 0)
	published, err := sweeper.RunOnce(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, published)

	// the published notice appears immediately, not after the cache TTL
	list, err = svc.ListVisible(context.Background(), studentClaims("s1"), NoticeListOptions{})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "due1", list.Items[0].ID)
}

func TestSweepRunStopsOnCancel(t *testing.T) {
	repo := newMockSweepRepo()
	sweeper := NewNoticeSweeper(repo, nil, nil, nil, 5*time.Millisecond, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancellation")
	}
}
