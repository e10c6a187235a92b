package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"

	"github.com/runsight/server/pkg/analysis"
)

// Raw telemetry object naming. Upload and analysis must agree on these or
// the analyzer reports runs unavailable that are sitting in the bucket.
func StreamObjectPath(activityID string) string {
	return fmt.Sprintf("activities/%s.json", activityID)
}

func FITObjectPath(activityID string) string {
	return fmt.Sprintf("activities/%s.fit", activityID)
}

// StorageAdapter provides blob storage operations using Google Cloud Storage
type StorageAdapter struct {
	Client *storage.Client
}

func (a *StorageAdapter) Write(ctx context.Context, bucketName, objectName string, data []byte) error {
	wc := a.Client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	if _, err := wc.Write(data); err != nil {
		return err
	}
	return wc.Close()
}

// Read returns analysis.ErrNotFound for missing objects so callers test the
// same sentinel across all stores.
func (a *StorageAdapter) Read(ctx context.Context, bucketName, objectName string) ([]byte, error) {
	rc, err := a.Client.Bucket(bucketName).Object(objectName).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", analysis.ErrNotFound, bucketName, objectName)
		}
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
