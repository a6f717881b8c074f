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

type assignmentRepository interface {
	List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, int, error)
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	Create(ctx context.Context, assignment *models.Assignment) error
	Update(ctx context.Context, assignment *models.Assignment) error
	Delete(ctx context.Context, id string) error
}

type assignmentMediaLookup interface {
	FindByID(ctx context.Context, id string) (*models.Media, error)
}

// AssignmentService manages homework for batches.
type AssignmentService struct {
	repo        assignmentRepository
	batches     scheduleBatchLookup
	memberships viewerScopeRepository
	teacherOf   teacherScopeRepository
	media       assignmentMediaLookup
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAssignmentService constructs an AssignmentService.
func NewAssignmentService(repo assignmentRepository, batches scheduleBatchLookup, memberships viewerScopeRepository, teacherOf teacherScopeRepository, media assignmentMediaLookup, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AssignmentService{repo: repo, batches: batches, memberships: memberships, teacherOf: teacherOf, media: media, validator: validate, logger: logger}
}

// List returns assignments visible to the actor. Students and teachers only
// see assignments of their own batches; admins see everything.
func (s *AssignmentService) List(ctx context.Context, actor models.JWTClaims, filter models.AssignmentFilter) ([]models.Assignment, *models.Pagination, error) {
	switch actor.Role {
	case models.RoleStudent:
		batchIDs, err := s.memberships.ActiveBatchIDsForStudent(ctx, actor.UserID)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve batches")
		}
		if len(batchIDs) == 0 {
			return []models.Assignment{}, models.NewPagination(1, 20, 0), nil
		}
		filter.BatchIDs = batchIDs
	case models.RoleTeacher:
		batchIDs, err := s.teacherOf.IDsForTeacher(ctx, actor.UserID)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve batches")
		}
		if len(batchIDs) == 0 {
			return []models.Assignment{}, models.NewPagination(1, 20, 0), nil
		}
		filter.BatchIDs = batchIDs
	}

	assignments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	page, size := clampPage(filter.Page, filter.PageSize)
	return assignments, models.NewPagination(page, size, total), nil
}

// Create hands out an assignment to a batch. Teachers may only assign to
// batches they run.
func (s *AssignmentService) Create(ctx context.Context, actor models.JWTClaims, req models.CreateAssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	if req.DueAt.Before(time.Now().UTC()) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "due_at must be in the future")
	}

	batch, err := s.batches.FindByID(ctx, req.BatchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "batch does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	if actor.Role == models.RoleTeacher && batch.TeacherID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "batch belongs to another teacher")
	}

	assignment := &models.Assignment{
		BatchID:     req.BatchID,
		Title:       req.Title,
		Description: req.Description,
		DueAt:       req.DueAt,
		CreatedBy:   actor.UserID,
	}
	if req.AttachmentMediaID != nil {
		path, err := s.resolveAttachment(ctx, *req.AttachmentMediaID, req.BatchID)
		if err != nil {
			return nil, err
		}
		assignment.AttachmentPath = &path
	}
	if err := s.repo.Create(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}
	s.logger.Info("assignment created",
		zap.String("assignment_id", assignment.ID), zap.String("batch_id", assignment.BatchID))
	return assignment, nil
}

// Update modifies an assignment. Only its creator or an admin may change it.
func (s *AssignmentService) Update(ctx context.Context, actor models.JWTClaims, id string, req models.UpdateAssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}

	assignment, err := s.getOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if req.Title != nil {
		assignment.Title = *req.Title
	}
	if req.Description != nil {
		assignment.Description = *req.Description
	}
	if req.DueAt != nil {
		assignment.DueAt = *req.DueAt
	}
	if req.AttachmentMediaID != nil {
		if *req.AttachmentMediaID == "" {
			assignment.AttachmentPath = nil
		} else {
			path, err := s.resolveAttachment(ctx, *req.AttachmentMediaID, assignment.BatchID)
			if err != nil {
				return nil, err
			}
			assignment.AttachmentPath = &path
		}
	}
	if err := s.repo.Update(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update assignment")
	}
	return assignment, nil
}

// Delete removes an assignment. Only its creator or an admin may delete it.
func (s *AssignmentService) Delete(ctx context.Context, actor models.JWTClaims, id string) error {
	if _, err := s.getOwned(ctx, actor, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete assignment")
	}
	return nil
}

func (s *AssignmentService) resolveAttachment(ctx context.Context, mediaID, batchID string) (string, error) {
	if s.media == nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "attachments are not supported")
	}
	item, err := s.media.FindByID(ctx, mediaID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrValidation, "attachment media does not exist")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attachment media")
	}
	if item.BatchID != batchID {
		return "", appErrors.Clone(appErrors.ErrValidation, "attachment media belongs to another batch")
	}
	return item.FilePath, nil
}

func (s *AssignmentService) getOwned(ctx context.Context, actor models.JWTClaims, id string) (*models.Assignment, error) {
	assignment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if actor.Role != models.RoleAdmin && assignment.CreatedBy != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "assignment belongs to another user")
	}
	return assignment, nil
}
