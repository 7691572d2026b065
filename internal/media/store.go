// Package media stores uploaded scan photos and hands back serving URLs.
package media

import (
	"bytes"
	"context"
	"fmt"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"shambascan/internal/config"
)

// Store persists image bytes and returns a URL they can be served from.
type Store interface {
	Upload(ctx context.Context, publicID string, data []byte) (string, error)
}

// CloudinaryStore uploads images to Cloudinary.
type CloudinaryStore struct {
	cld    *cloudinary.Cloudinary
	folder string
}

var _ Store = (*CloudinaryStore)(nil)

// NewCloudinaryStore creates a store from a CLOUDINARY_URL style configuration.
func NewCloudinaryStore(cfg config.CloudinaryConfig) (*CloudinaryStore, error) {
	cld, err := cloudinary.NewFromURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("media: init cloudinary: %w", err)
	}
	folder := cfg.Folder
	if folder == "" {
		folder = "scans"
	}
	return &CloudinaryStore{cld: cld, folder: folder}, nil
}

// Upload stores the image and returns its HTTPS URL.
func (s *CloudinaryStore) Upload(ctx context.Context, publicID string, data []byte) (string, error) {
	resp, err := s.cld.Upload.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{
		Folder:   s.folder,
		PublicID: publicID,
	})
	if err != nil {
		return "", fmt.Errorf("media: upload: %w", err)
	}
	return resp.SecureURL, nil
}

// NoopStore discards uploads. Used when media storage is not configured;
// scan records then carry an empty image URL.
type NoopStore struct{}

var _ Store = (*NoopStore)(nil)

// Upload discards the image and returns an empty URL.
func (NoopStore) Upload(ctx context.Context, publicID string, data []byte) (string, error) {
	return "", nil
}
