// Package blob selects a concrete blob store backend from configuration.
package blob

import (
	"context"
	"fmt"
	"os"
	"strings"

	"permitdesk/internal/infra/blob/fs"
	"permitdesk/internal/infra/blob/memory"
	"permitdesk/internal/infra/blob/s3"
	"permitdesk/pkg/domain"
)

// Driver identifies a concrete blob storage backend implementation.
type Driver string

const (
	DriverFilesystem Driver = "fs"     // local filesystem (default, dev)
	DriverS3         Driver = "s3"     // S3 / MinIO compatible
	DriverMemory     Driver = "memory" // in-memory (tests)
)

// OpenFromEnv builds the blob store selected by PERMITDESK_BLOB_DRIVER.
// Filesystem stores read PERMITDESK_BLOB_FS_ROOT and PERMITDESK_BLOB_BASE_URL.
func OpenFromEnv(ctx context.Context) (domain.BlobStore, error) {
	driver := Driver(strings.ToLower(os.Getenv("PERMITDESK_BLOB_DRIVER")))
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverMemory:
		return memory.New(), nil
	case DriverFilesystem:
		return fs.New(os.Getenv("PERMITDESK_BLOB_FS_ROOT"), os.Getenv("PERMITDESK_BLOB_BASE_URL"))
	case DriverS3:
		return s3.OpenFromEnv(ctx)
	default:
		return nil, fmt.Errorf("unknown blob driver %q", driver)
	}
}
