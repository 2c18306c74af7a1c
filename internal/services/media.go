package services

import (
	"context"
	"io"
	"strings"

	"go.uber.org/zap"

	logger "github.com/DarshiBhavsar/chat-app-sub000/middleware/log"
	"github.com/DarshiBhavsar/chat-app-sub000/pkg/apperr"
	"github.com/DarshiBhavsar/chat-app-sub000/pkg/media"
)

// MediaStore is the "store file, get URL" contract.
type MediaStore interface {
	Upload(ctx context.Context, r io.Reader, folder string) (*media.Object, error)
	Delete(ctx context.Context, publicID, resourceType string) error
}

// FileUpload is a file received from a multipart form.
type FileUpload struct {
	Reader   io.Reader
	FileName string
	MIMEType string
	Size     int64
}

func (f *FileUpload) isImage() bool { return strings.HasPrefix(f.MIMEType, "image/") }

func uploadFile(ctx context.Context, store MediaStore, f *FileUpload, folder string) (*media.Object, error) {
	if store == nil {
		return nil, apperr.Upstream("media storage unavailable", media.ErrNotConfigured)
	}
	obj, err := store.Upload(ctx, f.Reader, folder)
	if err != nil {
		return nil, apperr.Upstream("failed to upload media", err)
	}
	return obj, nil
}

// releaseMedia deletes a stored file. Failures are logged, never returned.
func releaseMedia(ctx context.Context, log *logger.Logger, store MediaStore, publicID, resourceType string) {
	if store == nil || publicID == "" {
		return
	}
	if err := store.Delete(ctx, publicID, resourceType); err != nil {
		log.WarnContext(ctx, "media cleanup failed",
			zap.String("public_id", publicID),
			zap.Error(err),
		)
	}
}
