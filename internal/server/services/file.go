package services

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/filegate/internal/common"
	"github.com/dmitrijs2005/filegate/internal/logging"
	"github.com/dmitrijs2005/filegate/internal/server/access"
	"github.com/dmitrijs2005/filegate/internal/server/objects"
)

// FileService keeps every object operation inside the caller's namespace.
// Identity always comes from an authenticated token, never from the request.
type FileService struct {
	gateway    objects.Gateway
	presignTTL time.Duration
	logger     logging.Logger
}

func NewFileService(g objects.Gateway, presignTTL time.Duration, logger logging.Logger) *FileService {
	return &FileService{
		gateway:    g,
		presignTTL: presignTTL,
		logger:     logger.With("module", "file_service"),
	}
}

// Upload stores body under a fresh key in identity's namespace and returns
// the key.
func (s *FileService) Upload(ctx context.Context, identity, filename, contentType string, body io.Reader) (string, error) {
	key, err := access.UploadKey(identity, filename)
	if err != nil {
		return "", err
	}

	if err := s.gateway.Upload(ctx, key, body, contentType); err != nil {
		return "", err
	}

	s.logger.Info(ctx, "file uploaded", "identity", identity, "key", key)
	return key, nil
}

// List returns the keys of identity. Keys the store returns outside the
// namespace are dropped.
func (s *FileService) List(ctx context.Context, identity string) ([]string, error) {
	keys, err := s.gateway.List(ctx, access.PrefixFor(identity))
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if access.Authorize(identity, k) {
			out = append(out, k)
		}
	}
	return out, nil
}

// Download returns a presigned GET URL for key.
func (s *FileService) Download(ctx context.Context, identity, key string) (string, error) {
	if err := s.authorize(identity, key); err != nil {
		return "", err
	}
	return s.gateway.PresignGet(ctx, key, s.presignTTL)
}

func (s *FileService) Delete(ctx context.Context, identity, key string) error {
	if err := s.authorize(identity, key); err != nil {
		return err
	}
	if err := s.gateway.Delete(ctx, key); err != nil {
		return err
	}

	s.logger.Info(ctx, "file deleted", "identity", identity, "key", key)
	return nil
}

func (s *FileService) authorize(identity, key string) error {
	if key == "" {
		return fmt.Errorf("%w: key", common.ErrMissingField)
	}
	if !access.Authorize(identity, key) {
		return common.ErrAccessDenied
	}
	return nil
}
