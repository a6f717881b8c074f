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

type mockAssignmentRepo struct {
	assignments map[string]*models.Assignment
	seq         int
}

func newMockAssignmentRepo() *mockAssignmentRepo {
	return &mockAssignmentRepo{assignments: map[string]*models.Assignment{}}
}

func (m *mockAssignmentRepo) List(_ context.Context, filter models.AssignmentFilter) ([]models.Assignment, int, error) {
	var out []models.Assignment
	for _, a := range m.assignments {
		if len(filter.BatchIDs) > 0 && !containsString(filter.BatchIDs, a.BatchID) {
			continue
		}
		out = append(out, *a)
	}
	return out, len(out), nil
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func (m *mockAssignmentRepo) FindByID(_ context.Context, id string) (*models.Assignment, error) {
	a, ok := m.assignments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *a
	return &copied, nil
}

func (m *mockAssignmentRepo) Create(_ context.Context, assignment *models.Assignment) error {
	m.seq++
	assignment.ID = "as" + string(rune('0'+m.seq))
	m.assignments[assignment.ID] = assignment
	return nil
}

func (m *mockAssignmentRepo) Update(_ context.Context, assignment *models.Assignment) error {
	m.assignments[assignment.ID] = assignment
	return nil
}

func (m *mockAssignmentRepo) Delete(_ context.Context, id string) error {
	delete(m.assignments, id)
	return nil
}

type mockMediaLookup struct {
	items map[string]*models.Media
}

func (m *mockMediaLookup) FindByID(_ context.Context, id string) (*models.Media, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return item, nil
}

func newAssignmentFixture() (*AssignmentService, *mockAssignmentRepo, *mockMembershipScope) {
	repo := newMockAssignmentRepo()
	batches := &mockBatchLookup{batches: map[string]*models.Batch{
		"b1": {ID: "b1", TeacherID: "t1", Active: true},
		"b2": {ID: "b2", TeacherID: "t2", Active: true},
	}}
	memberships := &mockMembershipScope{batchIDs: map[string][]string{"s1": {"b1"}}}
	teacherOf := &mockBatchScope{batchIDs: map[string][]string{"t1": {"b1"}, "t2": {"b2"}}}
	media := &mockMediaLookup{items: map[string]*models.Media{
		"m1": {ID: "m1", BatchID: "b1", Kind: models.MediaKindMaterial, FilePath: "media/b1/worksheet.pdf"},
		"m2": {ID: "m2", BatchID: "b2", Kind: models.MediaKindMaterial, FilePath: "media/b2/other.pdf"},
	}}
	return NewAssignmentService(repo, batches, memberships, teacherOf, media, nil, nil), repo, memberships
}

func createAssignmentRequest(batchID string) models.CreateAssignmentRequest {
	return models.CreateAssignmentRequest{
		BatchID: batchID,
		Title:   "Latihan Bab 3",
		DueAt:   time.Now().UTC().Add(72 * time.Hour),
	}
}

func TestCreateAssignmentWithAttachment(t *testing.T) {
	svc, repo, _ := newAssignmentFixture()

	req := createAssignmentRequest("b1")
	mediaID := "m1"
	req.AttachmentMediaID = &mediaID

	created, err := svc.Create(context.Background(), teacherClaims("t1"), req)
	require.NoError(t, err)
	require.NotNil(t, created.AttachmentPath)
	assert.Equal(t, "media/b1/worksheet.pdf", *created.AttachmentPath)
	assert.Len(t, repo.assignments, 1)
}

func TestCreateAssignmentRejectsForeignAttachment(t *testing.T) {
	svc, _, _ := newAssignmentFixture()

	// the media item belongs to b2, not the assignment's batch
	req := createAssignmentRequest("b1")
	mediaID := "m2"
	req.AttachmentMediaID = &mediaID

	_, err := svc.Create(context.Background(), teacherClaims("t1"), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateAssignmentForeignBatchForbidden(t *testing.T) {
	svc, _, _ := newAssignmentFixture()

	_, err := svc.Create(context.Background(), teacherClaims("t1"), createAssignmentRequest("b2"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCreateAssignmentRejectsPastDueDate(t *testing.T) {
	svc, _, _ := newAssignmentFixture()

	req := createAssignmentRequest("b1")
	req.DueAt = time.Now().UTC().Add(-time.Hour)

	_, err := svc.Create(context.Background(), adminClaims("a1"), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestListAssignmentsScopedToStudentBatches(t *testing.T) {
	svc, _, _ := newAssignmentFixture()

	_, err := svc.Create(context.Background(), teacherClaims("t1"), createAssignmentRequest("b1"))
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), teacherClaims("t2"), createAssignmentRequest("b2"))
	require.NoError(t, err)

	visible, _, err := svc.List(context.Background(), studentClaims("s1"), models.AssignmentFilter{})
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "b1", visible[0].BatchID)

	all, _, err := svc.List(context.Background(), adminClaims("a1"), models.AssignmentFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestUpdateAssignmentClearsAttachment(t *testing.T) {
	svc, repo, _ := newAssignmentFixture()

	req := createAssignmentRequest("b1")
	mediaID := "m1"
	req.AttachmentMediaID = &mediaID
	created, err := svc.Create(context.Background(), teacherClaims("t1"), req)
	require.NoError(t, err)

	empty := ""
	updated, err := svc.Update(context.Background(), teacherClaims("t1"), created.ID, models.UpdateAssignmentRequest{AttachmentMediaID: &empty})
	require.NoError(t, err)
	assert.Nil(t, updated.AttachmentPath)
	assert.Nil(t, repo.assignments[created.ID].AttachmentPath)
}

func TestUpdateAssignmentOwnershipEnforced(t *testing.T) {
	svc, _, _ := newAssignmentFixture()

	created, err := svc.Create(context.Background(), teacherClaims("t1"), createAssignmentRequest("b1"))
	require.NoError(t, err)

	title := "Revisi"
	_, err = svc.Update(context.Background(), teacherClaims("t2"), created.ID, models.UpdateAssignmentRequest{Title: &title})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
