package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/audiostudio/api/internal/model"
)

var (
	// ErrUnsupportedAudio means the upload extension is not on the
	// allow-list.
	ErrUnsupportedAudio = errors.New("unsupported audio format")
	// ErrUploadTooLarge means the upload exceeds the configured size cap.
	ErrUploadTooLarge = errors.New("upload too large")
)

// allowedAudioExts is the upload extension allow-list.
var allowedAudioExts = map[string]bool{
	".wav":  true,
	".flac": true,
	".mp3":  true,
	".ogg":  true,
	".m4a":  true,
}

// UploadService stores source audio on local disk where the pipeline and
// the model hosts read it from.
type UploadService struct {
	uploadDir string
	maxBytes  int64
}

// NewUploadService creates an upload service writing to uploadDir.
func NewUploadService(uploadDir string, maxUploadMB int64) *UploadService {
	return &UploadService{
		uploadDir: uploadDir,
		maxBytes:  maxUploadMB * 1024 * 1024,
	}
}

// SaveAudio writes one uploaded file under a fresh file id and returns
// where the pipeline can read it.
func (s *UploadService) SaveAudio(ctx context.Context, filename string, file io.Reader, size int64) (*model.UploadResponse, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedAudioExts[ext] {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAudio, ext)
	}
	if s.maxBytes > 0 && size > s.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrUploadTooLarge, size)
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}

	fileID := uuid.New().String()
	path := filepath.Join(s.uploadDir, fileID+ext)

	dst, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload file: %w", err)
	}
	defer dst.Close()

	written, err := io.Copy(dst, file)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write upload: %w", err)
	}

	return &model.UploadResponse{
		FileID:    fileID,
		Filename:  filepath.Base(filename),
		Path:      path,
		Size:      written,
		CreatedAt: time.Now(),
	}, nil
}
