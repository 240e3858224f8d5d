package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/imalive/server/models"
	"github.com/imalive/server/utils"
)

var (
	ErrFileTooLarge = errors.New("file too large")
	ErrNotImage     = errors.New("only image files are accepted")
)

var imageExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// UploadStore keeps post cover images on local disk and tracks them in uploaded_files.
type UploadStore struct {
	db        *gorm.DB
	dir       string
	urlPrefix string
	maxBytes  int64
}

// NewUploadStore saves files under dir and serves them below urlPrefix.
func NewUploadStore(db *gorm.DB, dir, urlPrefix string, maxMB int) *UploadStore {
	return &UploadStore{
		db:        db,
		dir:       dir,
		urlPrefix: strings.TrimSuffix(urlPrefix, "/") + "/",
		maxBytes:  int64(maxMB) << 20,
	}
}

// SaveCover validates and stores an uploaded image, returning its public URL.
func (s *UploadStore) SaveCover(ctx context.Context, ownerID uint, fh *multipart.FileHeader) (string, error) {
	if fh.Size > s.maxBytes {
		return "", ErrFileTooLarge
	}
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", ErrNotImage
	}
	ext, ok := imageExt[http.DetectContentType(head[:n])]
	if !ok {
		return "", ErrNotImage
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	name := uuid.NewString() + ext
	full := filepath.Join(s.dir, name)
	dst, err := os.Create(full)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	written, err := io.Copy(dst, io.MultiReader(bytes.NewReader(head[:n]), io.LimitReader(src, s.maxBytes)))
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && written > s.maxBytes {
		err = ErrFileTooLarge
	}
	if err != nil {
		_ = os.Remove(full)
		return "", err
	}

	url := path.Join(s.urlPrefix, name)
	if !strings.HasPrefix(url, "/") {
		url = "/" + url
	}
	rec := models.UploadedFile{OwnerID: ownerID, FilePath: full, URL: url}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		_ = os.Remove(full)
		return "", storageErr(err)
	}
	return url, nil
}

// Release schedules the file behind url for deletion at `at`. tx may be a transaction.
func (s *UploadStore) Release(tx *gorm.DB, url string, at time.Time) error {
	if url == "" {
		return nil
	}
	return tx.Model(&models.UploadedFile{}).
		Where("url = ? AND expire_at IS NULL", url).
		Update("expire_at", at).Error
}

// CleanupExpired removes files whose expiry passed, in batches of 100.
func (s *UploadStore) CleanupExpired(ctx context.Context, now time.Time) (int, error) {
	var items []models.UploadedFile
	if err := s.db.WithContext(ctx).Where("expire_at <= ?", now).Limit(100).Find(&items).Error; err != nil {
		return 0, storageErr(err)
	}
	removed := 0
	for _, it := range items {
		if it.FilePath != "" {
			if err := os.Remove(it.FilePath); err != nil && !os.IsNotExist(err) {
				utils.Logger.Warn("upload cleanup: remove file failed", zap.String("path", it.FilePath), zap.Error(err))
			}
		}
		// the row goes regardless of the file outcome
		if err := s.db.WithContext(ctx).Delete(&models.UploadedFile{}, it.ID).Error; err != nil {
			return removed, storageErr(err)
		}
		removed++
	}
	return removed, nil
}
