package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bimbel-api/internal/models"
	appErrors "github.com/noah-isme/bimbel-api/pkg/errors"
)

type mockMembershipRepo struct {
	memberships map[string]*models.Membership
	active      map[string]int // batch id -> active count
}

func newMockMembershipRepo() *mockMembershipRepo {
	return &mockMembershipRepo{memberships: map[string]*models.Membership{}, active: map[string]int{}}
}

func (m *mockMembershipRepo) List(_ context.Context, _ models.MembershipFilter) ([]models.MembershipDetail, int, error) {
	return nil, 0, nil
}

func (m *mockMembershipRepo) FindByID(_ context.Context, id string) (*models.Membership, error) {
	ms, ok := m.memberships[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return ms, nil
}

func (m *mockMembershipRepo) ExistsActive(_ context.Context, studentID, batchID string) (bool, error) {
	for _, ms := range m.memberships {
		if ms.StudentID == studentID && ms.BatchID == batchID && ms.Status == models.MembershipStatusActive {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockMembershipRepo) CountActive(_ context.Context, batchID string) (int, error) {
	return m.active[batchID], nil
}

func (m *mockMembershipRepo) Create(_ context.Context, membership *models.Membership) error {
	if membership.ID == "" {
		membership.ID = "m" + membership.StudentID
	}
	m.memberships[membership.ID] = membership
	m.active[membership.BatchID]++
	return nil
}

func (m *mockMembershipRepo) UpdateBatch(_ context.Context, id, batchID string) error {
	ms := m.memberships[id]
	m.active[ms.BatchID]--
	ms.BatchID = batchID
	m.active[batchID]++
	return nil
}

func (m *mockMembershipRepo) UpdateStatus(_ context.Context, id string, status models.MembershipStatus, leftAt *time.Time) error {
	ms := m.memberships[id]
	if ms.Status == models.MembershipStatusActive && status != models.MembershipStatusActive {
		m.active[ms.BatchID]--
	}
	ms.Status = status
	ms.LeftAt = leftAt
	return nil
}

type mockBatchLookup struct {
	batches map[string]*models.Batch
}

func (m *mockBatchLookup) FindByID(_ context.Context, id string) (*models.Batch, error) {
	b, ok := m.batches[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return b, nil
}

type mockUserLookup struct {
	users map[string]*models.User
}

func (m *mockUserLookup) FindByID(_ context.Context, id string) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func newMembershipFixture() (*MembershipService, *mockMembershipRepo, *mockBatchLookup, *mockUserLookup) {
	repo := newMockMembershipRepo()
	batches := &mockBatchLookup{batches: map[string]*models.Batch{
		"b1": {ID: "b1", CourseID: "c1", Capacity: 2, Active: true},
		"b2": {ID: "b2", CourseID: "c1", Capacity: 1, Active: true},
		"b3": {ID: "b3", CourseID: "c2", Capacity: 5, Active: true},
	}}
	users := &mockUserLookup{users: map[string]*models.User{
		"s1": {ID: "s1", Role: models.RoleStudent, Status: models.UserStatusApproved, Active: true},
		"s2": {ID: "s2", Role: models.RoleStudent, Status: models.UserStatusApproved, Active: true},
		"t1": {ID: "t1", Role: models.RoleTeacher, Status: models.UserStatusApproved, Active: true},
	}}
	svc := NewMembershipService(repo, batches, users, nil, nil)
	return svc, repo, batches, users
}

func TestEnrollSuccess(t *testing.T) {
	svc, repo, _, _ := newMembershipFixture()

	ms, err := svc.Enroll(context.Background(), models.EnrollRequest{StudentID: "s1", BatchID: "b1"})
	require.NoError(t, err)
	assert.Equal(t, models.MembershipStatusActive, ms.Status)
	assert.Equal(t, 1, repo.active["b1"])
}

func TestEnrollRejectsDuplicate(t *testing.T) {
	svc, _, _, _ := newMembershipFixture()

	_, err := svc.Enroll(context.Background(), models.EnrollRequest{StudentID: "s1", BatchID: "b1"})
	require.NoError(t, err)

	_, err = svc.Enroll(context.Background(), models.EnrollRequest{StudentID: "s1", BatchID: "b1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestEnrollRejectsFullBatch(t *testing.T) {
	svc, repo, _, _ := newMembershipFixture()
	repo.active["b2"] = 1

	_, err := svc.Enroll(context.Background(), models.EnrollRequest{StudentID: "s1", BatchID: "b2"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestEnrollRejectsNonStudent(t *testing.T) {
	svc, _, _, _ := newMembershipFixture()

	_, err := svc.Enroll(context.Background(), models.EnrollRequest{StudentID: "t1", BatchID: "b1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTransferStaysWithinCourse(t *testing.T) {
	svc, repo, _, _ := newMembershipFixture()
	ms, err := svc.Enroll(context.Background(), models.EnrollRequest{StudentID: "s1", BatchID: "b1"})
	require.NoError(t, err)

	// b3 belongs to another course
	_, err = svc.Transfer(context.Background(), ms.ID, models.TransferRequest{TargetBatchID: "b3"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	// b2 shares the course and has room
	moved, err := svc.Transfer(context.Background(), ms.ID, models.TransferRequest{TargetBatchID: "b2"})
	require.NoError(t, err)
	assert.Equal(t, "b2", moved.BatchID)
	assert.Equal(t, 0, repo.active["b1"])
	assert.Equal(t, 1, repo.active["b2"])
}

func TestTransferRejectsFullTarget(t *testing.T) {
	svc, repo, _, _ := newMembershipFixture()
	ms, err := svc.Enroll(context.Background(), models.EnrollRequest{StudentID: "s1", BatchID: "b1"})
	require.NoError(t, err)
	repo.active["b2"] = 1

	_, err = svc.Transfer(context.Background(), ms.ID, models.TransferRequest{TargetBatchID: "b2"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestLeaveClosesMembership(t *testing.T) {
	svc, repo, _, _ := newMembershipFixture()
	ms, err := svc.Enroll(context.Background(), models.EnrollRequest{StudentID: "s1", BatchID: "b1"})
	require.NoError(t, err)

	require.NoError(t, svc.Leave(context.Background(), ms.ID))
	assert.Equal(t, models.MembershipStatusLeft, repo.memberships[ms.ID].Status)
	assert.NotNil(t, repo.memberships[ms.ID].LeftAt)

	// leaving twice is a conflict
	err = svc.Leave(context.Background(), ms.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}
