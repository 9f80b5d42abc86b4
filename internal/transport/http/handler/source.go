package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	appsvc "markprompt/internal/app"
	"markprompt/internal/model"
	"markprompt/internal/pkg/pdfextract"
	"markprompt/internal/transport/http/middleware"
	"markprompt/internal/transport/http/response"
)

type sourceService interface {
	Create(ctx context.Context, projectID uint, sourceType model.SourceType, rawConfig json.RawMessage) (*model.Source, error)
	List(ctx context.Context, projectID uint) ([]model.Source, error)
	Delete(ctx context.Context, projectID, sourceID uint) error
	ListFiles(ctx context.Context, projectID, sourceID uint) ([]model.File, error)
	UploadFile(ctx context.Context, projectID, sourceID uint, path, title, content string) (*appsvc.IngestReport, []appsvc.IngestionError, error)
}

type SourceHandler struct {
	sources sourceService
}

func NewSourceHandler(sources sourceService) *SourceHandler {
	return &SourceHandler{sources: sources}
}

type createSourceRequest struct {
	Type   string          `json:"type" binding:"required"`
	Config json.RawMessage `json:"config"`
}

func (h *SourceHandler) Create(c *gin.Context) {
	var req createSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, 400, response.CodeBadRequest, "invalid request body")
		return
	}

	src, err := h.sources.Create(c.Request.Context(), middleware.ProjectID(c), model.SourceType(req.Type), req.Config)
	if err != nil {
		if errors.Is(err, appsvc.ErrInvalidInput) {
			response.Error(c, 400, response.CodeBadRequest, "invalid source type or config")
			return
		}
		response.Error(c, 500, response.CodeInternalServer, "create source failed")
		return
	}
	response.OK(c, src)
}

func (h *SourceHandler) List(c *gin.Context) {
	sources, err := h.sources.List(c.Request.Context(), middleware.ProjectID(c))
	if err != nil {
		response.Error(c, 500, response.CodeInternalServer, "list sources failed")
		return
	}
	response.OK(c, gin.H{"sources": sources})
}

func (h *SourceHandler) Delete(c *gin.Context) {
	sourceID, ok := pathID(c, "id")
	if !ok {
		return
	}
	err := h.sources.Delete(c.Request.Context(), middleware.ProjectID(c), sourceID)
	if err != nil {
		if errors.Is(err, appsvc.ErrSourceNotFound) {
			response.Error(c, 404, response.CodeSourceNotFound, "source not found")
			return
		}
		response.Error(c, 500, response.CodeInternalServer, "delete source failed")
		return
	}
	response.OK(c, nil)
}

func (h *SourceHandler) ListFiles(c *gin.Context) {
	sourceID, ok := pathID(c, "id")
	if !ok {
		return
	}
	files, err := h.sources.ListFiles(c.Request.Context(), middleware.ProjectID(c), sourceID)
	if err != nil {
		if errors.Is(err, appsvc.ErrSourceNotFound) {
			response.Error(c, 404, response.CodeSourceNotFound, "source not found")
			return
		}
		response.Error(c, 500, response.CodeInternalServer, "list files failed")
		return
	}
	response.OK(c, gin.H{"files": files})
}

type uploadFileRequest struct {
	Path    string `json:"path" binding:"required"`
	Title   string `json:"title"`
	Content string `json:"content" binding:"required"`
}

// Upload pushes one file into an upload-type source. JSON bodies carry the
// content inline; multipart bodies carry a file, with PDF text extracted
// server side.
func (h *SourceHandler) Upload(c *gin.Context) {
	sourceID, ok := pathID(c, "id")
	if !ok {
		return
	}

	path, title, content, ok := h.readUpload(c)
	if !ok {
		return
	}

	report, ingestErrs, err := h.sources.UploadFile(c.Request.Context(), middleware.ProjectID(c), sourceID, path, title, content)
	if err != nil {
		switch {
		case errors.Is(err, appsvc.ErrSourceNotFound):
			response.Error(c, 404, response.CodeSourceNotFound, "source not found")
		case errors.Is(err, appsvc.ErrInvalidInput):
			response.Error(c, 400, response.CodeBadRequest, "source does not accept uploads")
		default:
			response.Error(c, 500, response.CodeInternalServer, "upload failed")
		}
		return
	}
	for _, ingestErr := range ingestErrs {
		if ingestErr.QuotaExceeded {
			response.Error(c, 403, response.CodeQuotaExceeded, "embedding quota exceeded")
			return
		}
	}
	if len(ingestErrs) > 0 {
		response.Error(c, 500, response.CodeInternalServer, ingestErrs[0].Error())
		return
	}
	response.OK(c, report)
}

func (h *SourceHandler) readUpload(c *gin.Context) (path, title, content string, ok bool) {
	contentType := c.ContentType()
	if strings.HasPrefix(contentType, "multipart/") {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			response.Error(c, 400, response.CodeBadRequest, "missing file field")
			return "", "", "", false
		}
		f, err := fileHeader.Open()
		if err != nil {
			response.Error(c, 400, response.CodeBadRequest, "unreadable file")
			return "", "", "", false
		}
		defer f.Close()

		path = c.PostForm("path")
		if path == "" {
			path = fileHeader.Filename
		}
		title = c.PostForm("title")

		if strings.EqualFold(filepath.Ext(fileHeader.Filename), ".pdf") {
			text, err := pdfextract.ExtractText(f)
			if err != nil {
				response.Error(c, 400, response.CodeBadRequest, "failed to extract text from PDF")
				return "", "", "", false
			}
			return path, title, text, true
		}

		buf := new(strings.Builder)
		if _, err := copyLimited(buf, f); err != nil {
			response.Error(c, 400, response.CodeBadRequest, "unreadable file")
			return "", "", "", false
		}
		return path, title, buf.String(), true
	}

	var req uploadFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, 400, response.CodeBadRequest, "invalid request body")
		return "", "", "", false
	}
	return req.Path, req.Title, req.Content, true
}

const maxUploadBytes = 10 << 20

func copyLimited(dst io.Writer, src io.Reader) (int64, error) {
	return io.Copy(dst, io.LimitReader(src, maxUploadBytes))
}

func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		response.Error(c, 400, response.CodeBadRequest, "invalid id")
		return 0, false
	}
	return uint(id), true
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
