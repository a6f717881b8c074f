package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/bimbel-api/internal/models"
	appErrors "github.com/noah-isme/bimbel-api/pkg/errors"
)

type membershipRepository interface {
	List(ctx context.Context, filter models.MembershipFilter) ([]models.MembershipDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Membership, error)
	ExistsActive(ctx context.Context, studentID, batchID string) (bool, error)
	CountActive(ctx context.Context, batchID string) (int, error)
	Create(ctx context.Context, membership *models.Membership) error
	UpdateBatch(ctx context.Context, id, batchID string) error
	UpdateStatus(ctx context.Context, id string, status models.MembershipStatus, leftAt *time.Time) error
}

type membershipBatchLookup interface {
	FindByID(ctx context.Context, id string) (*models.Batch, error)
}

type membershipStudentLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// MembershipService manages student enrollment into batches.
type MembershipService struct {
	repo      membershipRepository
	batches   membershipBatchLookup
	users     membershipStudentLookup
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMembershipService constructs a MembershipService.
func NewMembershipService(repo membershipRepository, batches membershipBatchLookup, users membershipStudentLookup, validate *validator.Validate, logger *zap.Logger) *MembershipService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &MembershipService{repo: repo, batches: batches, users: users, validator: validate, logger: logger}
}

// List returns memberships matching the filter.
func (s *MembershipService) List(ctx context.Context, filter models.MembershipFilter) ([]models.MembershipDetail, *models.Pagination, error) {
	memberships, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list memberships")
	}
	page, size := clampPage(filter.Page, filter.PageSize)
	return memberships, models.NewPagination(page, size, total), nil
}

// Enroll registers a student into a batch, enforcing capacity and uniqueness.
func (s *MembershipService) Enroll(ctx context.Context, req models.EnrollRequest) (*models.Membership, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	student, err := s.users.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "student does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user is not a student")
	}
	if student.Status != models.UserStatusApproved || !student.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student account is not active")
	}

	batch, err := s.lookupBatch(ctx, req.BatchID)
	if err != nil {
		return nil, err
	}
	if !batch.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "batch is closed")
	}

	exists, err := s.repo.ExistsActive(ctx, req.StudentID, req.BatchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student is already enrolled in this batch")
	}

	count, err := s.repo.CountActive(ctx, req.BatchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count members")
	}
	if count >= batch.Capacity {
		return nil, appErrors.Clone(appErrors.ErrConflict, "batch is full")
	}

	membership := &models.Membership{
		StudentID: req.StudentID,
		BatchID:   req.BatchID,
		JoinedAt:  time.Now().UTC(),
		Status:    models.MembershipStatusActive,
	}
	if err := s.repo.Create(ctx, membership); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create membership")
	}
	s.logger.Info("student enrolled",
		zap.String("student_id", req.StudentID), zap.String("batch_id", req.BatchID))
	return membership, nil
}

// Transfer moves an active membership to another batch of the same course.
func (s *MembershipService) Transfer(ctx context.Context, id string, req models.TransferRequest) (*models.Membership, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transfer payload")
	}

	membership, err := s.lookupMembership(ctx, id)
	if err != nil {
		return nil, err
	}
	if membership.Status != models.MembershipStatusActive {
		return nil, appErrors.Clone(appErrors.ErrConflict, "membership is not active")
	}
	if membership.BatchID == req.TargetBatchID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "membership is already in the target batch")
	}

	source, err := s.lookupBatch(ctx, membership.BatchID)
	if err != nil {
		return nil, err
	}
	target, err := s.lookupBatch(ctx, req.TargetBatchID)
	if err != nil {
		return nil, err
	}
	if !target.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "target batch is closed")
	}
	if source.CourseID != target.CourseID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "transfers must stay within the same course")
	}

	count, err := s.repo.CountActive(ctx, req.TargetBatchID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count members")
	}
	if count >= target.Capacity {
		return nil, appErrors.Clone(appErrors.ErrConflict, "target batch is full")
	}

	if err := s.repo.UpdateBatch(ctx, id, req.TargetBatchID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to transfer membership")
	}
	membership.BatchID = req.TargetBatchID
	s.logger.Info("membership transferred",
		zap.String("membership_id", id), zap.String("target_batch_id", req.TargetBatchID))
	return membership, nil
}

// Leave closes an active membership.
func (s *MembershipService) Leave(ctx context.Context, id string) error {
	membership, err := s.lookupMembership(ctx, id)
	if err != nil {
		return err
	}
	if membership.Status != models.MembershipStatusActive {
		return appErrors.Clone(appErrors.ErrConflict, "membership is not active")
	}
	now := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, id, models.MembershipStatusLeft, &now); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close membership")
	}
	return nil
}

func (s *MembershipService) lookupMembership(ctx context.Context, id string) (*models.Membership, error) {
	membership, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "membership not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load membership")
	}
	return membership, nil
}

func (s *MembershipService) lookupBatch(ctx context.Context, id string) (*models.Batch, error) {
	batch, err := s.batches.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "batch does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	return batch, nil
}
