package internal

import (
	"context"
	"io"
)

// Repository is a sink for archived source files. Local disk and S3
// implementations live under internal/archive.
type Repository interface {
	Write(ctx context.Context, key string, reader io.Reader) error
}
