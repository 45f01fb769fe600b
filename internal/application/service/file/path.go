package file

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// joinObjectKey joins non-empty key parts with "/"
func joinObjectKey(parts ...string) string {
	filtered := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.Trim(part, "/")
		if part != "" {
			filtered = append(filtered, part)
		}
	}
	return strings.Join(filtered, "/")
}

// uploadKey is the object key for one uploaded document
func uploadKey(prefix, relationshipID, documentID, fileName string) string {
	return joinObjectKey(prefix, relationshipID, documentID, uuid.New().String()+filepath.Ext(fileName))
}

// parseFilePath splits "<scheme>://bucket/key"
func parseFilePath(scheme, filePath string) (bucketName string, objectKey string, err error) {
	prefix := scheme + "://"
	if !strings.HasPrefix(filePath, prefix) {
		return "", "", fmt.Errorf("invalid %s file path: %s", scheme, filePath)
	}
	rest := strings.TrimPrefix(filePath, prefix)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid %s file path: %s", scheme, filePath)
	}
	return parts[0], parts[1], nil
}

func formatFilePath(scheme, bucketName, objectKey string) string {
	return fmt.Sprintf("%s://%s/%s", scheme, bucketName, objectKey)
}
