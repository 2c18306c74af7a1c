package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/DarshiBhavsar/chat-app-sub000/internal/services"
	"github.com/DarshiBhavsar/chat-app-sub000/pkg/apperr"
)

var statusByKind = map[apperr.Kind]int{
	apperr.KindValidation:   http.StatusBadRequest,
	apperr.KindUnauthorized: http.StatusUnauthorized,
	apperr.KindForbidden:    http.StatusForbidden,
	apperr.KindNotFound:     http.StatusNotFound,
	apperr.KindConflict:     http.StatusConflict,
	apperr.KindUpstream:     http.StatusBadGateway,
}

// HTTPStatus maps an error to its response code.
func HTTPStatus(err error) int {
	if code, ok := statusByKind[apperr.KindOf(err)]; ok {
		return code
	}
	return http.StatusInternalServerError
}

func success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "success",
		"data":    data,
	})
}

func created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, gin.H{
		"code":    0,
		"message": "success",
		"data":    data,
	})
}

// respondError writes {"error": message}. The cause of upstream failures is
// attached to the context for the request logger and never sent.
func respondError(c *gin.Context, err error) {
	code := HTTPStatus(err)
	if code >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(code, gin.H{"error": apperr.MessageOf(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

// bindJSON binds the body into req and answers 400 on failure.
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func paramUint(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(v), true
}

func paramInt64(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

// page reads the limit and before query parameters used by history endpoints.
func page(c *gin.Context) (before int64, limit int, ok bool) {
	if raw := c.Query("before"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			badRequest(c, "invalid before")
			return 0, 0, false
		}
		before = v
	}
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			badRequest(c, "invalid limit")
			return 0, 0, false
		}
		limit = v
	}
	return before, limit, true
}

// Uploads reads multipart files with a size cap.
type Uploads struct {
	MaxBytes int64
}

// open returns the named form file as a FileUpload. The caller closes the
// returned file once the service call is done.
func (u Uploads) open(c *gin.Context, field string) (*services.FileUpload, io.Closer, bool) {
	header, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			badRequest(c, "file is required")
		} else {
			badRequest(c, "invalid multipart form")
		}
		return nil, nil, false
	}
	if u.MaxBytes > 0 && header.Size > u.MaxBytes {
		badRequest(c, "file is too large")
		return nil, nil, false
	}

	f, err := header.Open()
	if err != nil {
		badRequest(c, "cannot read uploaded file")
		return nil, nil, false
	}
	mimeType, err := sniff(header, f)
	if err != nil {
		_ = f.Close()
		badRequest(c, "cannot read uploaded file")
		return nil, nil, false
	}
	return &services.FileUpload{
		Reader:   f,
		FileName: header.Filename,
		MIMEType: mimeType,
		Size:     header.Size,
	}, f, true
}

// sniff trusts the part's declared type unless it is missing or generic.
func sniff(header *multipart.FileHeader, f multipart.File) (string, error) {
	declared := header.Header.Get("Content-Type")
	if declared != "" && declared != "application/octet-stream" {
		return declared, nil
	}
	buf := make([]byte, 512)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return http.DetectContentType(buf[:n]), nil
}
