// Package media stores uploaded files with Cloudinary and hands back URLs.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"github.com/DarshiBhavsar/chat-app-sub000/config"
)

// Resource types as Cloudinary names them.
const (
	ResourceImage = "image"
	ResourceVideo = "video"
	ResourceRaw   = "raw"
)

var ErrNotConfigured = errors.New("media store is not configured")

// Object is a stored file.
type Object struct {
	URL          string `json:"url"`
	PublicID     string `json:"public_id"`
	ResourceType string `json:"resource_type"`
}

// ResourceTypeFor maps a MIME type to the Cloudinary resource type. Audio is
// stored as video, which is how Cloudinary handles it.
func ResourceTypeFor(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return ResourceImage
	case strings.HasPrefix(mimeType, "video/"), strings.HasPrefix(mimeType, "audio/"):
		return ResourceVideo
	default:
		return ResourceRaw
	}
}

// CloudinaryStore uploads to one Cloudinary account under a root folder.
type CloudinaryStore struct {
	cld  *cloudinary.Cloudinary
	root string
}

// NewCloudinaryStore prefers cfg.URL and falls back to the discrete
// credentials. It returns ErrNotConfigured when neither is set.
func NewCloudinaryStore(cfg *config.MediaConfig) (*CloudinaryStore, error) {
	var (
		cld *cloudinary.Cloudinary
		err error
	)
	switch {
	case cfg.URL != "":
		cld, err = cloudinary.NewFromURL(cfg.URL)
	case cfg.CloudName != "" && cfg.APIKey != "" && cfg.APISecret != "":
		cld, err = cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	default:
		return nil, ErrNotConfigured
	}
	if err != nil {
		return nil, fmt.Errorf("failed to init cloudinary: %w", err)
	}
	cld.Config.URL.Secure = true
	return &CloudinaryStore{cld: cld, root: cfg.Folder}, nil
}

// Upload stores r under root/folder and lets Cloudinary detect the type.
func (s *CloudinaryStore) Upload(ctx context.Context, r io.Reader, folder string) (*Object, error) {
	params := uploader.UploadParams{
		Folder:       s.folder(folder),
		ResourceType: "auto",
	}
	res, err := s.cld.Upload.Upload(ctx, r, params)
	if err != nil {
		return nil, fmt.Errorf("cloudinary upload: %w", err)
	}
	if res.Error.Message != "" {
		return nil, fmt.Errorf("cloudinary upload: %s", res.Error.Message)
	}
	return &Object{URL: res.SecureURL, PublicID: res.PublicID, ResourceType: res.ResourceType}, nil
}

// Delete removes one stored file. A file that is already gone is not an error.
func (s *CloudinaryStore) Delete(ctx context.Context, publicID, resourceType string) error {
	if resourceType == "" {
		resourceType = ResourceImage
	}
	res, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:     publicID,
		ResourceType: resourceType,
	})
	if err != nil {
		return fmt.Errorf("cloudinary destroy %s: %w", publicID, err)
	}
	if res.Error.Message != "" {
		return fmt.Errorf("cloudinary destroy %s: %s", publicID, res.Error.Message)
	}
	if res.Result != "ok" && res.Result != "not found" {
		return fmt.Errorf("cloudinary destroy %s: unexpected result %q", publicID, res.Result)
	}
	return nil
}

func (s *CloudinaryStore) folder(sub string) string {
	switch {
	case s.root == "":
		return sub
	case sub == "":
		return s.root
	}
	return s.root + "/" + sub
}

// Unavailable stands in when no Cloudinary account is configured. Uploads
// fail with ErrNotConfigured; deletes are no-ops since nothing was stored.
type Unavailable struct{}

func (Unavailable) Upload(context.Context, io.Reader, string) (*Object, error) {
	return nil, ErrNotConfigured
}

func (Unavailable) Delete(context.Context, string, string) error { return nil }
