package service

import (
	"context"
	"database/sql"
	"strconv"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/bimbel-api/internal/models"
	appErrors "github.com/noah-isme/bimbel-api/pkg/errors"
)

type mockUserRepo struct {
	users   map[string]*models.User
	revoked []string
	seq     int
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: map[string]*models.User{}}
}

func (m *mockUserRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *u
	return &copied, nil
}

func (m *mockUserRepo) Create(_ context.Context, user *models.User) error {
	for _, u := range m.users {
		if u.Email == user.Email {
			return &pq.Error{Code: "23505", Constraint: "users_email_key"}
		}
	}
	m.seq++
	user.ID = "u" + strconv.Itoa(m.seq)
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) Update(_ context.Context, user *models.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepo) UpdateStatus(_ context.Context, id string, status models.UserStatus) error {
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.Status = status
	return nil
}

func (m *mockUserRepo) List(_ context.Context, _ models.UserFilter) ([]models.User, int, error) {
	out := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (m *mockUserRepo) RevokeAllForUser(_ context.Context, userID string) error {
	m.revoked = append(m.revoked, userID)
	return nil
}

func registerRequest() models.RegisterRequest {
	return models.RegisterRequest{
		Email:    "Andi@Example.COM",
		Password: "rahasia1",
		FullName: "Andi Wijaya",
		Phone:    "081234567890",
		Role:     models.RoleStudent,
	}
}

func TestRegisterCreatesPendingAccount(t *testing.T) {
	repo := newMockUserRepo()
	svc := NewUserService(repo, nil, nil)

	user, err := svc.Register(context.Background(), registerRequest())
	require.NoError(t, err)

	assert.Equal(t, "andi@example.com", user.Email)
	assert.Equal(t, models.UserStatusPending, user.Status)
	assert.True(t, user.Active)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("rahasia1")))
}

func TestRegisterDuplicateEmail(t *testing.T) {
	repo := newMockUserRepo()
	svc := NewUserService(repo, nil, nil)

	_, err := svc.Register(context.Background(), registerRequest())
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), registerRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	svc := NewUserService(newMockUserRepo(), nil, nil)

	req := registerRequest()
	req.Password = "abc"
	_, err := svc.Register(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestApprovePendingRegistration(t *testing.T) {
	repo := newMockUserRepo()
	svc := NewUserService(repo, nil, nil)

	user, err := svc.Register(context.Background(), registerRequest())
	require.NoError(t, err)

	approved, err := svc.Approve(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UserStatusApproved, approved.Status)
	assert.Equal(t, models.UserStatusApproved, repo.users[user.ID].Status)
}

func TestDecideTwiceIsConflict(t *testing.T) {
	repo := newMockUserRepo()
	svc := NewUserService(repo, nil, nil)

	user, err := svc.Register(context.Background(), registerRequest())
	require.NoError(t, err)

	_, err = svc.Reject(context.Background(), user.ID)
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), user.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestDeactivationRevokesSessions(t *testing.T) {
	repo := newMockUserRepo()
	svc := NewUserService(repo, nil, nil)

	user, err := svc.Register(context.Background(), registerRequest())
	require.NoError(t, err)

	inactive := false
	updated, err := svc.Update(context.Background(), user.ID, models.UpdateUserRequest{Active: &inactive})
	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.Equal(t, []string{user.ID}, repo.revoked)

	// re-activating does not revoke again
	active := true
	_, err = svc.Update(context.Background(), user.ID, models.UpdateUserRequest{Active: &active})
	require.NoError(t, err)
	assert.Len(t, repo.revoked, 1)
}
