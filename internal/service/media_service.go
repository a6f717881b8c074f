package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/bimbel-api/internal/models"
	appErrors "github.com/noah-isme/bimbel-api/pkg/errors"
	"github.com/noah-isme/bimbel-api/pkg/storage"
)

type mediaRepository interface {
	List(ctx context.Context, filter models.MediaFilter) ([]models.Media, int, error)
	FindByID(ctx context.Context, id string) (*models.Media, error)
	Create(ctx context.Context, item *models.Media) error
	Delete(ctx context.Context, id string) error
}

// MediaUpload describes an incoming recording or material file.
type MediaUpload struct {
	BatchID  string
	Kind     models.MediaKind
	Title    string
	Filename string
	MimeType string
	Size     int64
	Body     io.Reader
}

var allowedMimeTypes = map[string]struct{}{
	"video/mp4":       {},
	"video/webm":      {},
	"audio/mpeg":      {},
	"application/pdf": {},
	"image/png":       {},
	"image/jpeg":      {},
}

// MediaService stores recordings and materials and issues signed download
// links so raw file paths never leave the server.
type MediaService struct {
	repo        mediaRepository
	batches     scheduleBatchLookup
	memberships viewerScopeRepository
	teacherOf   teacherScopeRepository
	files       *storage.LocalStorage
	signer      *storage.SignedURLSigner
	maxBytes    int64
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewMediaService constructs a MediaService.
func NewMediaService(repo mediaRepository, batches scheduleBatchLookup, memberships viewerScopeRepository, teacherOf teacherScopeRepository, files *storage.LocalStorage, signer *storage.SignedURLSigner, maxBytes int64, validate *validator.Validate, logger *zap.Logger) *MediaService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if maxBytes <= 0 {
		maxBytes = 512 << 20
	}
	return &MediaService{
		repo:        repo,
		batches:     batches,
		memberships: memberships,
		teacherOf:   teacherOf,
		files:       files,
		signer:      signer,
		maxBytes:    maxBytes,
		validator:   validate,
		logger:      logger,
	}
}

// List returns media visible to the actor. Students and teachers are scoped
// to their own batches.
func (s *MediaService) List(ctx context.Context, actor models.JWTClaims, filter models.MediaFilter) ([]models.Media, *models.Pagination, error) {
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown media kind")
	}

	switch actor.Role {
	case models.RoleStudent:
		batchIDs, err := s.memberships.ActiveBatchIDsForStudent(ctx, actor.UserID)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve batches")
		}
		if len(batchIDs) == 0 {
			return []models.Media{}, models.NewPagination(1, 20, 0), nil
		}
		filter.BatchIDs = batchIDs
	case models.RoleTeacher:
		batchIDs, err := s.teacherOf.IDsForTeacher(ctx, actor.UserID)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve batches")
		}
		if len(batchIDs) == 0 {
			return []models.Media{}, models.NewPagination(1, 20, 0), nil
		}
		filter.BatchIDs = batchIDs
	}

	media, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list media")
	}
	page, size := clampPage(filter.Page, filter.PageSize)
	return media, models.NewPagination(page, size, total), nil
}

// Upload validates and stores a file, then records the media item.
func (s *MediaService) Upload(ctx context.Context, actor models.JWTClaims, upload MediaUpload) (*models.Media, error) {
	if upload.Title == "" || upload.BatchID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "title and batch_id are required")
	}
	if !upload.Kind.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown media kind")
	}
	if _, ok := allowedMimeTypes[upload.MimeType]; !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported content type %q", upload.MimeType))
	}
	if upload.Size > s.maxBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file exceeds the maximum upload size")
	}

	batch, err := s.batches.FindByID(ctx, upload.BatchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "batch does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}
	if actor.Role == models.RoleTeacher && batch.TeacherID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "batch belongs to another teacher")
	}

	id := uuid.NewString()
	ext := strings.ToLower(filepath.Ext(upload.Filename))
	relPath := fmt.Sprintf("%s/%s/%s%s", strings.ToLower(string(upload.Kind)), upload.BatchID, id, ext)

	written, err := s.files.SaveStream(relPath, io.LimitReader(upload.Body, s.maxBytes+1))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store file")
	}
	if written > s.maxBytes {
		if err := s.files.Delete(relPath); err != nil {
			s.logger.Warn("failed to remove oversized upload", zap.String("path", relPath), zap.Error(err))
		}
		return nil, appErrors.Clone(appErrors.ErrValidation, "file exceeds the maximum upload size")
	}

	item := &models.Media{
		ID:         id,
		BatchID:    upload.BatchID,
		Kind:       upload.Kind,
		Title:      upload.Title,
		FilePath:   relPath,
		SizeBytes:  written,
		MimeType:   upload.MimeType,
		UploadedBy: actor.UserID,
	}
	if err := s.repo.Create(ctx, item); err != nil {
		if delErr := s.files.Delete(relPath); delErr != nil {
			s.logger.Warn("failed to remove orphan upload", zap.String("path", relPath), zap.Error(delErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record media")
	}

	s.logger.Info("media uploaded",
		zap.String("media_id", item.ID), zap.String("batch_id", item.BatchID),
		zap.String("kind", string(item.Kind)), zap.Int64("bytes", written))
	return item, nil
}

// Download issues a signed link for a media item the actor may access.
func (s *MediaService) Download(ctx context.Context, actor models.JWTClaims, id string) (*models.MediaDownload, error) {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "media not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load media")
	}

	if err := s.ensureAccess(ctx, actor, item); err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(item.ID, item.FilePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}

	return &models.MediaDownload{
		Media:       *item,
		DownloadURL: fmt.Sprintf("/media/files/%s", token),
		ExpiresAt:   expiresAt,
	}, nil
}

// Resolve validates a signed token and opens the underlying file.
func (s *MediaService) Resolve(ctx context.Context, token string) (*models.Media, io.ReadCloser, error) {
	resourceID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "download link is invalid or expired")
	}

	item, err := s.repo.FindByID(ctx, resourceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "media not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load media")
	}
	if item.FilePath != relPath {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "download link does not match media")
	}

	file, err := s.files.Open(item.FilePath)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file")
	}
	return item, file, nil
}

// Delete removes a media item and its file. Only the uploader or an admin
// may delete.
func (s *MediaService) Delete(ctx context.Context, actor models.JWTClaims, id string) error {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "media not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load media")
	}
	if actor.Role != models.RoleAdmin && item.UploadedBy != actor.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "media belongs to another user")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete media")
	}
	if err := s.files.Delete(item.FilePath); err != nil {
		s.logger.Warn("failed to remove media file", zap.String("path", item.FilePath), zap.Error(err))
	}
	return nil
}

func (s *MediaService) ensureAccess(ctx context.Context, actor models.JWTClaims, item *models.Media) error {
	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleTeacher:
		if item.UploadedBy == actor.UserID {
			return nil
		}
		batchIDs, err := s.teacherOf.IDsForTeacher(ctx, actor.UserID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve batches")
		}
		for _, id := range batchIDs {
			if id == item.BatchID {
				return nil
			}
		}
	case models.RoleStudent:
		batchIDs, err := s.memberships.ActiveBatchIDsForStudent(ctx, actor.UserID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve batches")
		}
		for _, id := range batchIDs {
			if id == item.BatchID {
				return nil
			}
		}
	}
	return appErrors.Clone(appErrors.ErrNotFound, "media not found")
}
