package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/volcengine/ve-tos-golang-sdk/v2/tos"

	"github.com/anishgillella/serene-sub003/internal/types/interfaces"
)

const tosScheme = "tos"

// tosFileService implements the FileService interface for Volcengine TOS.
type tosFileService struct {
	client     *tos.ClientV2
	pathPrefix string
	bucketName string
}

// NewTosFileService creates a TOS file service.
func NewTosFileService(endpoint, region, accessKey, secretKey, bucketName, pathPrefix string) (interfaces.FileService, error) {
	client, err := tos.NewClientV2(
		endpoint,
		tos.WithRegion(region),
		tos.WithCredentials(tos.NewStaticCredentials(accessKey, secretKey)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize TOS client: %w", err)
	}
	if err := ensureTOSBucket(client, bucketName); err != nil {
		return nil, err
	}
	return &tosFileService{
		client:     client,
		pathPrefix: pathPrefix,
		bucketName: bucketName,
	}, nil
}

func ensureTOSBucket(client *tos.ClientV2, bucketName string) error {
	_, err := client.HeadBucket(context.Background(), &tos.HeadBucketInput{
		Bucket: bucketName,
	})
	if err == nil {
		return nil
	}

	var serverErr *tos.TosServerError
	if errors.As(err, &serverErr) && serverErr.StatusCode == 404 {
		_, createErr := client.CreateBucketV2(context.Background(), &tos.CreateBucketV2Input{
			Bucket: bucketName,
		})
		if createErr == nil {
			return nil
		}
		if errors.As(createErr, &serverErr) && serverErr.StatusCode == 409 {
			return nil
		}
		return fmt.Errorf("failed to create TOS bucket: %w", createErr)
	}

	return fmt.Errorf("failed to check TOS bucket: %w", err)
}

func (s *tosFileService) SaveFile(ctx context.Context,
	file *multipart.FileHeader, relationshipID string, documentID string,
) (string, error) {
	objectName := uploadKey(s.pathPrefix, relationshipID, documentID, file.Filename)

	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer src.Close()

	_, err = s.client.PutObjectV2(ctx, &tos.PutObjectV2Input{
		PutObjectBasicInput: tos.PutObjectBasicInput{
			Bucket:      s.bucketName,
			Key:         objectName,
			ContentType: file.Header.Get("Content-Type"),
		},
		Content: src,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file to TOS: %w", err)
	}
	return formatFilePath(tosScheme, s.bucketName, objectName), nil
}

func (s *tosFileService) GetFile(ctx context.Context, filePath string) (io.ReadCloser, error) {
	bucketName, objectName, err := parseFilePath(tosScheme, filePath)
	if err != nil {
		return nil, err
	}
	output, err := s.client.GetObjectV2(ctx, &tos.GetObjectV2Input{
		Bucket: bucketName,
		Key:    objectName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get file from TOS: %w", err)
	}
	return output.Content, nil
}

func (s *tosFileService) DeleteFile(ctx context.Context, filePath string) error {
	bucketName, objectName, err := parseFilePath(tosScheme, filePath)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObjectV2(ctx, &tos.DeleteObjectV2Input{
		Bucket: bucketName,
		Key:    objectName,
	})
	if err != nil {
		return fmt.Errorf("failed to delete file from TOS: %w", err)
	}
	return nil
}
