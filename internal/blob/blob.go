// Package blob stores published passport artifacts (JSON and images) on the
// local filesystem or in an S3-compatible bucket.
package blob

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
)

// Driver names a Store implementation.
type Driver string

// Supported drivers.
const (
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
)

// Store writes objects by key. Put overwrites an existing object and
// returns the location it was written to.
type Store interface {
	Driver() Driver
	Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
}

// Config selects and configures a Store.
type Config struct {
	Driver string `mapstructure:"driver"`
	// Root is the directory used by the fs driver.
	Root string   `mapstructure:"root"`
	S3   S3Config `mapstructure:"s3"`
}

// Open returns the Store described by cfg. The fs driver is the default.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch Driver(cfg.Driver) {
	case "", DriverFilesystem:
		return NewFilesystem(cfg.Root)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}

// sanitizeKey rejects keys that are empty, absolute or escape the root.
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid absolute key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("invalid key %q contains '..'", key)
		}
	}
	return path.Clean(key), nil
}
