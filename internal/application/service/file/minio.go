package file

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/anishgillella/serene-sub003/internal/types/interfaces"
)

const minioScheme = "minio"

type minioFileService struct {
	client     *minio.Client
	pathPrefix string
	bucketName string
}

// NewMinioFileService creates a MinIO file service
func NewMinioFileService(ctx context.Context,
	endpoint, accessKey, secretKey, bucketName, pathPrefix string, useSSL bool,
) (interfaces.FileService, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}
	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check MinIO bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create MinIO bucket: %w", err)
		}
	}
	return &minioFileService{client: client, pathPrefix: pathPrefix, bucketName: bucketName}, nil
}

func (s *minioFileService) SaveFile(ctx context.Context,
	file *multipart.FileHeader, relationshipID string, documentID string,
) (string, error) {
	objectName := uploadKey(s.pathPrefix, relationshipID, documentID, file.Filename)

	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer src.Close()

	_, err = s.client.PutObject(ctx, s.bucketName, objectName, src, file.Size, minio.PutObjectOptions{
		ContentType: file.Header.Get("Content-Type"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file to MinIO: %w", err)
	}
	return formatFilePath(minioScheme, s.bucketName, objectName), nil
}

func (s *minioFileService) GetFile(ctx context.Context, filePath string) (io.ReadCloser, error) {
	bucketName, objectName, err := parseFilePath(minioScheme, filePath)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, bucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get file from MinIO: %w", err)
	}
	return obj, nil
}

func (s *minioFileService) DeleteFile(ctx context.Context, filePath string) error {
	bucketName, objectName, err := parseFilePath(minioScheme, filePath)
	if err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, bucketName, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete file from MinIO: %w", err)
	}
	return nil
}
