package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/bimbel-api/internal/models"
	appErrors "github.com/noah-isme/bimbel-api/pkg/errors"
)

const noticeCachePattern = "notices:list:*"

type noticeRepository interface {
	List(ctx context.Context, filter models.NoticeFilter) ([]models.Notice, int, error)
	FindByID(ctx context.Context, id string) (*models.Notice, error)
	Create(ctx context.Context, notice *models.Notice) error
	Update(ctx context.Context, notice *models.Notice) error
	Delete(ctx context.Context, id string) error
}

type viewerScopeRepository interface {
	ActiveBatchIDsForStudent(ctx context.Context, studentID string) ([]string, error)
}

type teacherScopeRepository interface {
	IDsForTeacher(ctx context.Context, teacherID string) ([]string, error)
}

// NoticeService implements the notice lifecycle and the visibility resolver.
type NoticeService struct {
	repo        noticeRepository
	memberships viewerScopeRepository
	batches     teacherScopeRepository
	cache       *CacheService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewNoticeService constructs a NoticeService.
func NewNoticeService(repo noticeRepository, memberships viewerScopeRepository, batches teacherScopeRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *NoticeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &NoticeService{
		repo:        repo,
		memberships: memberships,
		batches:     batches,
		cache:       cache,
		validator:   validate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create posts a notice. A future scheduled_at stores the notice inactive for
// the sweep to promote; without one the notice is active immediately.
func (s *NoticeService) Create(ctx context.Context, actor models.JWTClaims, req models.CreateNoticeRequest) (*models.Notice, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid notice payload")
	}
	if actor.Role != models.RoleAdmin && actor.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins and teachers may post notices")
	}

	now := s.now()
	if err := validateNoticeSchedule(req.ScheduledAt, now); err != nil {
		return nil, err
	}
	if err := validateNoticeTiming(req.Audience, req.TargetBatchIDs, req.ScheduledAt, req.ExpiresAt, now); err != nil {
		return nil, err
	}

	notice := &models.Notice{
		Title:          req.Title,
		Description:    req.Description,
		PostedBy:       actor.UserID,
		Audience:       req.Audience,
		TargetBatchIDs: req.TargetBatchIDs,
		IsImportant:    req.IsImportant,
		ScheduledAt:    req.ScheduledAt,
		ExpiresAt:      req.ExpiresAt,
	}
	if req.ScheduledAt != nil {
		notice.IsScheduled = true
		notice.IsActive = false
	} else {
		notice.IsActive = true
	}

	if err := s.repo.Create(ctx, notice); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create notice")
	}

	s.invalidateListings(ctx)
	s.logger.Info("notice created",
		zap.String("notice_id", notice.ID),
		zap.String("audience", string(notice.Audience)),
		zap.Bool("scheduled", notice.IsScheduled))
	return notice, nil
}

// Update modifies a notice. Only the owner or an admin may change it.
func (s *NoticeService) Update(ctx context.Context, actor models.JWTClaims, id string, req models.UpdateNoticeRequest) (*models.Notice, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid notice payload")
	}

	notice, err := s.getOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		notice.Title = *req.Title
	}
	if req.Description != nil {
		notice.Description = *req.Description
	}
	if req.Audience != nil {
		notice.Audience = *req.Audience
	}
	if req.TargetBatchIDs != nil {
		notice.TargetBatchIDs = *req.TargetBatchIDs
	}
	if req.IsImportant != nil {
		notice.IsImportant = *req.IsImportant
	}
	if req.ExpiresAt != nil {
		notice.ExpiresAt = req.ExpiresAt
	}

	now := s.now()
	if req.ScheduledAt != nil {
		// rescheduling only makes sense while the notice is still pending
		if !notice.IsScheduled {
			return nil, appErrors.Clone(appErrors.ErrConflict, "notice has already been published")
		}
		if err := validateNoticeSchedule(req.ScheduledAt, now); err != nil {
			return nil, err
		}
		notice.ScheduledAt = req.ScheduledAt
	}
	// the stored schedule may already be due but unswept, so the past check
	// applies only to an incoming reschedule above
	if err := validateNoticeTiming(notice.Audience, notice.TargetBatchIDs, pendingScheduleOf(notice), notice.ExpiresAt, now); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, notice); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update notice")
	}

	s.invalidateListings(ctx)
	return notice, nil
}

// Delete removes a notice. Only the owner or an admin may delete it.
func (s *NoticeService) Delete(ctx context.Context, actor models.JWTClaims, id string) error {
	if _, err := s.getOwned(ctx, actor, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete notice")
	}
	s.invalidateListings(ctx)
	return nil
}

// Get returns a single notice if the actor is allowed to see it.
func (s *NoticeService) Get(ctx context.Context, actor models.JWTClaims, id string) (*models.Notice, error) {
	notice, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "notice not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load notice")
	}

	if actor.Role == models.RoleAdmin || notice.PostedBy == actor.UserID {
		return notice, nil
	}

	now := s.now()
	visible := notice.IsActive && (!notice.IsScheduled || (notice.ScheduledAt != nil && !notice.ScheduledAt.After(now)))
	if !visible || (notice.ExpiresAt != nil && !notice.ExpiresAt.After(now)) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "notice not found")
	}

	ok, err := s.audienceMatches(ctx, actor, notice)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "notice not found")
	}
	return notice, nil
}

// NoticeListOptions are the caller-supplied filters for listing notices.
type NoticeListOptions struct {
	Keyword  string
	Date     *time.Time
	Audience models.NoticeAudience
	BatchID  string
	// OwnOnly restricts the listing to notices posted by the actor.
	OwnOnly  bool
	Page     int
	PageSize int
}

// ListVisible resolves the notices the actor may see, applying the
// role-scoped audience rules, optional filters and pagination.
func (s *NoticeService) ListVisible(ctx context.Context, actor models.JWTClaims, opts NoticeListOptions) (*models.NoticeList, error) {
	if opts.Audience != "" && !opts.Audience.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown audience filter")
	}

	filter := models.NoticeFilter{
		ViewerRole: actor.Role,
		Keyword:    opts.Keyword,
		Date:       opts.Date,
		Audience:   opts.Audience,
		BatchID:    opts.BatchID,
		Now:        s.now(),
		Page:       opts.Page,
		PageSize:   opts.PageSize,
	}

	switch actor.Role {
	case models.RoleStudent:
		batchIDs, err := s.memberships.ActiveBatchIDsForStudent(ctx, actor.UserID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve batches")
		}
		filter.ViewerBatchIDs = batchIDs
	case models.RoleTeacher:
		batchIDs, err := s.batches.IDsForTeacher(ctx, actor.UserID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve batches")
		}
		filter.ViewerBatchIDs = batchIDs
		filter.IncludeScheduledFor = actor.UserID
	case models.RoleAdmin:
		filter.IncludeScheduledFor = actor.UserID
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "unknown role")
	}

	if opts.OwnOnly {
		if actor.Role == models.RoleStudent {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "students do not own notices")
		}
		filter.OwnerID = actor.UserID
	}

	cacheKey := noticeListCacheKey(actor, opts)
	cacheable := opts.Keyword == "" && opts.Date == nil && !opts.OwnOnly
	if cacheable {
		var cached models.NoticeList
		if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
			return &cached, nil
		}
	}

	notices, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notices")
	}
	if notices == nil {
		notices = []models.Notice{}
	}

	page, size := clampPage(filter.Page, filter.PageSize)
	result := &models.NoticeList{Items: notices, Pagination: models.NewPagination(page, size, total)}

	if cacheable {
		if err := s.cache.Set(ctx, cacheKey, result, 0); err != nil {
			s.logger.Debug("notice list cache set failed", zap.Error(err))
		}
	}
	return result, nil
}

func (s *NoticeService) getOwned(ctx context.Context, actor models.JWTClaims, id string) (*models.Notice, error) {
	notice, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "notice not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load notice")
	}
	if actor.Role != models.RoleAdmin && notice.PostedBy != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "notice belongs to another user")
	}
	return notice, nil
}

func (s *NoticeService) audienceMatches(ctx context.Context, actor models.JWTClaims, notice *models.Notice) (bool, error) {
	switch notice.Audience {
	case models.NoticeAudienceAll:
		return true, nil
	case models.NoticeAudienceTeachers:
		return actor.Role == models.RoleTeacher, nil
	case models.NoticeAudienceStudents:
		return actor.Role == models.RoleStudent, nil
	case models.NoticeAudienceBatch:
		var (
			batchIDs []string
			err      error
		)
		switch actor.Role {
		case models.RoleStudent:
			batchIDs, err = s.memberships.ActiveBatchIDsForStudent(ctx, actor.UserID)
		case models.RoleTeacher:
			batchIDs, err = s.batches.IDsForTeacher(ctx, actor.UserID)
		default:
			return false, nil
		}
		if err != nil {
			return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve batches")
		}
		member := make(map[string]struct{}, len(batchIDs))
		for _, id := range batchIDs {
			member[id] = struct{}{}
		}
		for _, id := range notice.TargetBatchIDs {
			if _, ok := member[id]; ok {
				return true, nil
			}
		}
		return false, nil
	}
	return false, nil
}

func (s *NoticeService) invalidateListings(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, noticeCachePattern); err != nil {
		s.logger.Warn("failed to invalidate notice listings", zap.Error(err))
	}
}

func noticeListCacheKey(actor models.JWTClaims, opts NoticeListOptions) string {
	return fmt.Sprintf("notices:list:%s:%s:%s:%s:%d:%d",
		actor.Role, actor.UserID, opts.Audience, opts.BatchID, opts.Page, opts.PageSize)
}

// pendingScheduleOf returns the schedule instant only while the notice is
// still awaiting promotion, so already-published notices skip the
// future-schedule check.
func pendingScheduleOf(notice *models.Notice) *time.Time {
	if notice.IsScheduled {
		return notice.ScheduledAt
	}
	return nil
}

func validateNoticeTiming(audience models.NoticeAudience, targetBatchIDs []string, scheduledAt, expiresAt *time.Time, now time.Time) error {
	if !audience.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "unknown audience")
	}
	if audience == models.NoticeAudienceBatch && len(targetBatchIDs) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "batch audience requires target batches")
	}
	if audience != models.NoticeAudienceBatch && len(targetBatchIDs) > 0 {
		return appErrors.Clone(appErrors.ErrValidation, "target batches only apply to the batch audience")
	}
	if expiresAt != nil {
		reference := now
		if scheduledAt != nil {
			reference = *scheduledAt
		}
		if !expiresAt.After(reference) {
			return appErrors.Clone(appErrors.ErrValidation, "expires_at must be after publication")
		}
	}
	return nil
}

// validateNoticeSchedule rejects a schedule strictly before now. The present
// instant is accepted; the next sweep pass promotes it immediately.
func validateNoticeSchedule(scheduledAt *time.Time, now time.Time) error {
	if scheduledAt != nil && scheduledAt.Before(now) {
		return appErrors.Clone(appErrors.ErrValidation, "scheduled_at must not be in the past")
	}
	return nil
}
