package file

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/anishgillella/serene-sub003/internal/types/interfaces"
)

const localScheme = "local"

// localFileService keeps files under a base directory. Used for development
// and tests.
type localFileService struct {
	baseDir string
}

// NewLocalFileService creates a file service rooted at baseDir
func NewLocalFileService(baseDir string) (interfaces.FileService, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &localFileService{baseDir: baseDir}, nil
}

func (s *localFileService) resolve(filePath string) (string, error) {
	prefix := localScheme + "://"
	if !strings.HasPrefix(filePath, prefix) {
		return "", fmt.Errorf("invalid local file path: %s", filePath)
	}
	rel := filepath.Clean("/" + strings.TrimPrefix(filePath, prefix))
	return filepath.Join(s.baseDir, rel), nil
}

func (s *localFileService) SaveFile(ctx context.Context,
	file *multipart.FileHeader, relationshipID string, documentID string,
) (string, error) {
	key := uploadKey("", relationshipID, documentID, file.Filename)
	dst := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("failed to create dir: %w", err)
	}
	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, src); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return localScheme + "://" + key, nil
}

func (s *localFileService) GetFile(ctx context.Context, filePath string) (io.ReadCloser, error) {
	p, err := s.resolve(filePath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

func (s *localFileService) DeleteFile(ctx context.Context, filePath string) error {
	p, err := s.resolve(filePath)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
