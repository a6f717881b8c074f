package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bimbel-api/internal/models"
	"github.com/noah-isme/bimbel-api/internal/service"
	appErrors "github.com/noah-isme/bimbel-api/pkg/errors"
	"github.com/noah-isme/bimbel-api/pkg/response"
)

// MediaHandler exposes recording and material endpoints.
type MediaHandler struct {
	service *service.MediaService
}

// NewMediaHandler constructs a media handler.
func NewMediaHandler(svc *service.MediaService) *MediaHandler {
	return &MediaHandler{service: svc}
}

// List godoc
// @Summary List media visible to the caller
// @Tags Media
// @Produce json
// @Param kind query string false "RECORDING or MATERIAL"
// @Param search query string false "Search keyword"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /media [get]
func (h *MediaHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var filter models.MediaFilter
	filter.Kind = models.MediaKind(c.Query("kind"))
	filter.Search = strings.TrimSpace(c.Query("search"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	media, pagination, err := h.service.List(c.Request.Context(), *claims, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, media, pagination)
}

// Upload godoc
// @Summary Upload a recording or material
// @Tags Media
// @Accept multipart/form-data
// @Produce json
// @Param batch_id formData string true "Batch ID"
// @Param kind formData string true "RECORDING or MATERIAL"
// @Param title formData string true "Title"
// @Param file formData file true "File"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /media [post]
func (h *MediaHandler) Upload(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read file"))
		return
	}
	defer file.Close() //nolint:errcheck

	upload := service.MediaUpload{
		BatchID:  c.PostForm("batch_id"),
		Kind:     models.MediaKind(c.PostForm("kind")),
		Title:    strings.TrimSpace(c.PostForm("title")),
		Filename: fileHeader.Filename,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Size:     fileHeader.Size,
		Body:     file,
	}

	item, err := h.service.Upload(c.Request.Context(), *claims, upload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Download godoc
// @Summary Issue a signed download link
// @Tags Media
// @Produce json
// @Param id path string true "Media ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /media/{id}/download [get]
func (h *MediaHandler) Download(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	download, err := h.service.Download(c.Request.Context(), *claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, download, nil)
}

// Serve streams a file referenced by a signed token. The token itself
// authorizes the request, so no JWT is needed here.
func (h *MediaHandler) Serve(c *gin.Context) {
	item, file, err := h.service.Resolve(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", item.Title))
	c.Header("Content-Length", strconv.FormatInt(item.SizeBytes, 10))
	c.DataFromReader(http.StatusOK, item.SizeBytes, item.MimeType, file, nil)
}

// Delete godoc
// @Summary Delete a media item
// @Tags Media
// @Produce json
// @Param id path string true "Media ID"
// @Success 204
// @Security BearerAuth
// @Router /media/{id} [delete]
func (h *MediaHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Delete(c.Request.Context(), *claims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
