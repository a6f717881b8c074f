package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bimbel-api/internal/models"
	appErrors "github.com/noah-isme/bimbel-api/pkg/errors"
)

type mockNoticeRepo struct {
	notices    map[string]*models.Notice
	lastFilter models.NoticeFilter
	listErr    error
	createErr  error
}

func newMockNoticeRepo() *mockNoticeRepo {
	return &mockNoticeRepo{notices: map[string]*models.Notice{}}
}

func (m *mockNoticeRepo) List(_ context.Context, filter models.NoticeFilter) ([]models.Notice, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	m.lastFilter = filter
	out := []models.Notice{}
	for _, n := range m.notices {
		out = append(out, *n)
	}
	return out, len(out), nil
}

func (m *mockNoticeRepo) FindByID(_ context.Context, id string) (*models.Notice, error) {
	n, ok := m.notices[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *n
	return &copy, nil
}

func (m *mockNoticeRepo) Create(_ context.Context, notice *models.Notice) error {
	if m.createErr != nil {
		return m.createErr
	}
	if notice.ID == "" {
		notice.ID = "generated"
	}
	stored := *notice
	m.notices[notice.ID] = &stored
	return nil
}

func (m *mockNoticeRepo) Update(_ context.Context, notice *models.Notice) error {
	stored := *notice
	m.notices[notice.ID] = &stored
	return nil
}

func (m *mockNoticeRepo) Delete(_ context.Context, id string) error {
	delete(m.notices, id)
	return nil
}

type mockMembershipScope struct {
	batchIDs map[string][]string
	err      error
}

func (m *mockMembershipScope) ActiveBatchIDsForStudent(_ context.Context, studentID string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.batchIDs[studentID], nil
}

type mockBatchScope struct {
	batchIDs map[string][]string
}

func (m *mockBatchScope) IDsForTeacher(_ context.Context, teacherID string) ([]string, error) {
	return m.batchIDs[teacherID], nil
}

func newNoticeService(repo *mockNoticeRepo) (*NoticeService, *mockMembershipScope, *mockBatchScope) {
	memberships := &mockMembershipScope{batchIDs: map[string][]string{}}
	batches := &mockBatchScope{batchIDs: map[string][]string{}}
	svc := NewNoticeService(repo, memberships, batches, nil, nil, nil)
	return svc, memberships, batches
}

func teacherClaims(id string) models.JWTClaims {
	return models.JWTClaims{UserID: id, Role: models.RoleTeacher}
}

func studentClaims(id string) models.JWTClaims {
	return models.JWTClaims{UserID: id, Role: models.RoleStudent}
}

func adminClaims(id string) models.JWTClaims {
	return models.JWTClaims{UserID: id, Role: models.RoleAdmin}
}

func TestCreateNoticeImmediate(t *testing.T) {
	repo := newMockNoticeRepo()
	svc, _, _ := newNoticeService(repo)

	notice, err := svc.Create(context.Background(), teacherClaims("t1"), models.CreateNoticeRequest{
		Title:       "Holiday",
		Description: "Center closed on Friday",
		Audience:    models.NoticeAudienceAll,
	})
	require.NoError(t, err)
	assert.True(t, notice.IsActive)
	assert.False(t, notice.IsScheduled)
	assert.Equal(t, "t1", notice.PostedBy)
}

func TestCreateNoticeScheduledStartsInactive(t *testing.T) {
	repo := newMockNoticeRepo()
	svc, _, _ := newNoticeService(repo)

	future := time.Now().UTC().Add(time.Hour)
	notice, err := svc.Create(context.Background(), teacherClaims("t1"), models.CreateNoticeRequest{
		Title:       "Tryout",
		Description: "Tryout on Monday",
		Audience:    models.NoticeAudienceStudents,
		ScheduledAt: &future,
	})
	require.NoError(t, err)
	assert.False(t, notice.IsActive)
	assert.True(t, notice.IsScheduled)
	require.NotNil(t, notice.ScheduledAt)
	assert.Equal(t, future, *notice.ScheduledAt)
}

func TestCreateNoticeRejectsPastSchedule(t *testing.T) {
	repo := newMockNoticeRepo()
	svc, _, _ := newNoticeService(repo)

	past := time.Now().UTC().Add(-time.Minute)
	_, err := svc.Create(context.Background(), teacherClaims("t1"), models.CreateNoticeRequest{
		Title:       "Late",
		Description: "Should fail",
		Audience:    models.NoticeAudienceAll,
		ScheduledAt: &past,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateNoticeAcceptsPresentSchedule(t *testing.T) {
	repo := newMockNoticeRepo()
	svc, _, _ := newNoticeService(repo)

	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	// a schedule at exactly the present instant is due, not late
	at := now
	notice, err := svc.Create(context.Background(), teacherClaims("t1"), models.CreateNoticeRequest{
		Title:       "Now",
		Description: "Publishes on the next pass",
		Audience:    models.NoticeAudienceAll,
		ScheduledAt: &at,
	})
	require.NoError(t, err)
	assert.True(t, notice.IsScheduled)
	assert.False(t, notice.IsActive)
}

func TestCreateNoticeBatchAudienceNeedsTargets(t *testing.T) {
	repo := newMockNoticeRepo()
	svc, _, _ := newNoticeService(repo)

	_, err := svc.Create(context.Background(), teacherClaims("t1"), models.CreateNoticeRequest{
		Title:       "Batch only",
		Description: "Missing targets",
		Audience:    models.NoticeAudienceBatch,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateNoticeStudentForbidden(t *testing.T) {
	repo := newMockNoticeRepo()
	svc, _, _ := newNoticeService(repo)

	_, err := svc.Create(context.Background(), studentClaims("s1"), models.CreateNoticeRequest{
		Title:       "Nope",
		Description: "Students cannot post",
		Audience:    models.NoticeAudienceAll,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestUpdateNoticeOwnershipEnforced(t *testing.T) {
	repo := newMockNoticeRepo()
	svc, _, _ := newNoticeService(repo)
	repo.notices["n1"] = &models.Notice{ID: "n1", Title: "Original", Description: "d", PostedBy: "t1", Audience: models.NoticeAudienceAll, IsActive: true}

	newTitle := "Hijacked"
	_, err := svc.Update(context.Background(), teacherClaims("t2"), "n1", models.UpdateNoticeRequest{Title: &newTitle})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	// the owner can update
	_, err = svc.Update(context.Background(), teacherClaims("t1"), "n1", models.UpdateNoticeRequest{Title: &newTitle})
	require.NoError(t, err)
	assert.Equal(t, "Hijacked", repo.notices["n1"].Title)
}

func TestUpdateNoticeAdminOverride(t *testing.T) {
	repo := newMockNoticeRepo()
	svc, _, _ := newNoticeService(repo)
	repo.notices["n1"] = &models.Notice{ID: "n1", Title: "Original", Description: "d", PostedBy: "t1", Audience: models.NoticeAudienceAll, IsActive: true}

	newTitle := "Moderated"
	_, err := svc.Update(context.Background(), adminClaims("a1"), "n1", models.UpdateNoticeRequest{Title: &newTitle})
	require.NoError(t, err)
	assert.Equal(t, "Moderated", repo.notices["n1"].Title)
}

func TestUpdateNoticeCannotRescheduleAfterPublish(t *testing.T) {
	repo := newMockNoticeRepo()
	svc, _, _ := newNoticeService(repo)
	repo.notices["n1"] = &models.Notice{ID: "n1", Title: "Live", Description: "d", PostedBy: "t1", Audience: models.NoticeAudienceAll, IsActive: true, IsScheduled: false}

	future := time.Now().UTC().Add(time.Hour)
	_, err := svc.Update(context.Background(), teacherClaims("t1"), "n1", models.UpdateNoticeRequest{ScheduledAt: &future})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestUpdateNoticeDueButUnswept(t *testing.T) {
	repo := newMockNoticeRepo()
	svc, _, _ := newNoticeService(repo)

	// the schedule has passed but no sweep pass has promoted the notice yet
	due := time.Now().UTC().Add(-time.Minute)
	repo.notices["n1"] = &models.Notice{
		ID: "n1", Title: "Pending", Description: "d", PostedBy: "t1",
		Audience: models.NoticeAudienceAll, IsScheduled: true, ScheduledAt: &due,
	}

	newTitle := "Pending, retitled"
	updated, err := svc.Update(context.Background(), teacherClaims("t1"), "n1", models.UpdateNoticeRequest{Title: &newTitle})
	require.NoError(t, err)
	assert.Equal(t, "Pending, retitled", updated.Title)
	require.NotNil(t, updated.ScheduledAt)
	assert.Equal(t, due, *updated.ScheduledAt)

	// an explicit reschedule into the past is still rejected
	past := time.Now().UTC().Add(-time.Hour)
	_, err = svc.Update(context.Background(), teacherClaims("t1"), "n1", models.UpdateNoticeRequest{ScheduledAt: &past})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestDeleteNoticeOwnershipEnforced(t *testing.T) {
	repo := newMockNoticeRepo()
	svc, _, _ := newNoticeService(repo)
	repo.notices["n1"] = &models.Notice{ID: "n1", PostedBy: "t1", Audience: models.NoticeAudienceAll, IsActive: true}

	err := svc.Delete(context.Background(), teacherClaims("t2"), "n1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Delete(context.Background(), teacherClaims("t1"), "n1"))
	_, ok := repo.notices["n1"]
	assert.False(t, ok)
}

func TestDeleteNoticeNotFound(t *testing.T) {
	repo := newMockNoticeRepo()
	svc, _, _ := newNoticeService(repo)

	err := svc.Delete(context.Background(), adminClaims("a1"), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGetNoticeHidesPendingFromOthers(t *testing.T) {
	repo := newMockNoticeRepo()
	svc, _, _ := newNoticeService(repo)
	future := time.Now().UTC().Add(time.Hour)
	repo.notices["n1"] = &models.Notice{
		ID: "n1", Title: "Pending", Description: "d", PostedBy: "t1",
		Audience: models.NoticeAudienceAll, IsActive: false, IsScheduled: true, ScheduledAt: &future,
	}

	// others get a not-found, never a forbidden that would leak existence
	_, err := svc.Get(context.Background(), studentClaims("s1"), "n1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	// the owner still sees it
	notice, err := svc.Get(context.Background(), teacherClaims("t1"), "n1")
	require.NoError(t, err)
	assert.Equal(t, "Pending", notice.Title)

	// an admin sees it too
	_, err = svc.Get(context.Background(), adminClaims("a1"), "n1")
	require.NoError(t, err)
}

func TestGetNoticeBatchAudienceByMembership(t *testing.T) {
	repo := newMockNoticeRepo()
	svc, memberships, _ := newNoticeService(repo)
	repo.notices["n1"] = &models.Notice{
		ID: "n1", Title: "Batch news", Description: "d", PostedBy: "t1",
		Audience: models.NoticeAudienceBatch, TargetBatchIDs: []string{"b1"}, IsActive: true,
	}
	memberships.batchIDs["s1"] = []string{"b1"}
	memberships.batchIDs["s2"] = []string{"b2"}

	_, err := svc.Get(context.Background(), studentClaims("s1"), "n1")
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), studentClaims("s2"), "n1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestListVisibleScopesStudentToBatches(t *testing.T) {
	repo := newMockNoticeRepo()
	svc, memberships, _ := newNoticeService(repo)
	memberships.batchIDs["s1"] = []string{"b1", "b2"}

	_, err := svc.ListVisible(context.Background(), studentClaims("s1"), NoticeListOptions{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, repo.lastFilter.ViewerRole)
	assert.Equal(t, []string{"b1", "b2"}, repo.lastFilter.ViewerBatchIDs)
	assert.Empty(t, repo.lastFilter.IncludeScheduledFor)
	assert.False(t, repo.lastFilter.Now.IsZero())
}

func TestListVisibleTeacherSeesOwnScheduled(t *testing.T) {
	repo := newMockNoticeRepo()
	svc, _, batches := newNoticeService(repo)
	batches.batchIDs["t1"] = []string{"b3"}

	_, err := svc.ListVisible(context.Background(), teacherClaims("t1"), NoticeListOptions{})
	require.NoError(t, err)
	assert.Equal(t, "t1", repo.lastFilter.IncludeScheduledFor)
	assert.Equal(t, []string{"b3"}, repo.lastFilter.ViewerBatchIDs)
}

func TestListVisibleOwnOnly(t *testing.T) {
	repo := newMockNoticeRepo()
	svc, _, _ := newNoticeService(repo)

	_, err := svc.ListVisible(context.Background(), teacherClaims("t1"), NoticeListOptions{OwnOnly: true})
	require.NoError(t, err)
	assert.Equal(t, "t1", repo.lastFilter.OwnerID)

	_, err = svc.ListVisible(context.Background(), studentClaims("s1"), NoticeListOptions{OwnOnly: true})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestListVisiblePagination(t *testing.T) {
	repo := newMockNoticeRepo()
	svc, _, _ := newNoticeService(repo)
	for i := 0; i < 3; i++ {
		id := string(rune('a' + i))
		repo.notices[id] = &models.Notice{ID: id, Audience: models.NoticeAudienceAll, IsActive: true}
	}

	list, err := svc.ListVisible(context.Background(), adminClaims("a1"), NoticeListOptions{Page: 1, PageSize: 2})
	require.NoError(t, err)
	require.NotNil(t, list.Pagination)
	assert.Equal(t, 3, list.Pagination.TotalCount)
	assert.Equal(t, 2, list.Pagination.TotalPages)
	assert.Equal(t, 1, list.Pagination.Page)
}

func TestListVisibleStorageError(t *testing.T) {
	repo := newMockNoticeRepo()
	svc, _, _ := newNoticeService(repo)
	repo.listErr = errors.New("connection refused")

	_, err := svc.ListVisible(context.Background(), adminClaims("a1"), NoticeListOptions{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}
