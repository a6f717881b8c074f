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
	"github.com/noah-isme/bimbel-api/pkg/export"
)

type attendanceRepository interface {
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error)
	Upsert(ctx context.Context, record *models.Attendance) error
	Summaries(ctx context.Context, batchID string, from, to time.Time) ([]models.AttendanceSummary, error)
}

type attendanceMembershipLookup interface {
	ExistsActive(ctx context.Context, studentID, batchID string) (bool, error)
}

// AttendanceService records and reports session attendance.
type AttendanceService struct {
	repo        attendanceRepository
	batches     scheduleBatchLookup
	memberships attendanceMembershipLookup
	csv         *export.CSVExporter
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAttendanceService constructs an AttendanceService.
func NewAttendanceService(repo attendanceRepository, batches scheduleBatchLookup, memberships attendanceMembershipLookup, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AttendanceService{
		repo:        repo,
		batches:     batches,
		memberships: memberships,
		csv:         export.NewCSVExporter(),
		validator:   validate,
		logger:      logger,
	}
}

// List returns attendance records matching the filter. Students are pinned
// to their own records.
func (s *AttendanceService) List(ctx context.Context, actor models.JWTClaims, filter models.AttendanceFilter) ([]models.AttendanceRecord, *models.Pagination, error) {
	if actor.Role == models.RoleStudent {
		filter.StudentID = actor.UserID
	}
	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	page, size := clampPage(filter.Page, filter.PageSize)
	return records, models.NewPagination(page, size, total), nil
}

// Mark records one session's attendance for a batch. Marking the same
// (batch, student, date) again overwrites the earlier status. A bad entry is
// rejected before anything is written.
func (s *AttendanceService) Mark(ctx context.Context, actor models.JWTClaims, req models.MarkAttendanceRequest) (int, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}

	batch, err := s.batches.FindByID(ctx, req.BatchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrValidation, "batch does not exist")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	if actor.Role == models.RoleTeacher && batch.TeacherID != actor.UserID {
		return 0, appErrors.Clone(appErrors.ErrForbidden, "batch belongs to another teacher")
	}

	seen := map[string]struct{}{}
	for _, entry := range req.Entries {
		if !entry.Status.Valid() {
			return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q for student %s", entry.Status, entry.StudentID))
		}
		if _, dup := seen[entry.StudentID]; dup {
			return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate entry for student %s", entry.StudentID))
		}
		seen[entry.StudentID] = struct{}{}

		enrolled, err := s.memberships.ExistsActive(ctx, entry.StudentID, req.BatchID)
		if err != nil {
			return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
		}
		if !enrolled {
			return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s is not enrolled in this batch", entry.StudentID))
		}
	}

	marked := 0
	for _, entry := range req.Entries {
		record := &models.Attendance{
			BatchID:   req.BatchID,
			StudentID: entry.StudentID,
			Date:      req.Date,
			Status:    entry.Status,
			Notes:     entry.Notes,
			MarkedBy:  actor.UserID,
		}
		if err := s.repo.Upsert(ctx, record); err != nil {
			return marked, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save attendance")
		}
		marked++
	}

	s.logger.Info("attendance marked",
		zap.String("batch_id", req.BatchID), zap.Time("date", req.Date), zap.Int("entries", marked))
	return marked, nil
}

// Summaries aggregates per-student status counts for a batch within a range.
func (s *AttendanceService) Summaries(ctx context.Context, batchID string, from, to time.Time) ([]models.AttendanceSummary, error) {
	if to.Before(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date range is inverted")
	}
	summaries, err := s.repo.Summaries(ctx, batchID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate attendance")
	}
	return summaries, nil
}

// ExportSummariesCSV renders the summary report as CSV bytes.
func (s *AttendanceService) ExportSummariesCSV(ctx context.Context, batchID string, from, to time.Time) ([]byte, error) {
	summaries, err := s.Summaries(ctx, batchID, from, to)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Headers: []string{"Student", "Present", "Sick", "Excused", "Absent"},
	}
	for _, sum := range summaries {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student": sum.StudentName,
			"Present": fmt.Sprintf("%d", sum.Present),
			"Sick":    fmt.Sprintf("%d", sum.Sick),
			"Excused": fmt.Sprintf("%d", sum.Excused),
			"Absent":  fmt.Sprintf("%d", sum.Absent),
		})
	}

	payload, err := s.csv.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}
	return payload, nil
}
