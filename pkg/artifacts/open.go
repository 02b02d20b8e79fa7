package artifacts

import (
	"context"
	"fmt"
)

// Kind names an archive backend.
type Kind string

const (
	KindFS  Kind = "fs"
	KindS3  Kind = "s3"
	KindGCS Kind = "gcs"
)

// Options selects and configures a backend.
type Options struct {
	Kind Kind
	Dir  string
	S3   S3Config
	GCS  struct {
		Bucket string
		Prefix string
	}
}

// Open builds the archive described by opts. The zero Kind means fs.
func Open(ctx context.Context, opts Options) (Archive, error) {
	switch opts.Kind {
	case "", KindFS:
		dir := opts.Dir
		if dir == "" {
			dir = "data/artifacts"
		}
		return NewFSArchive(dir)
	case KindS3:
		if opts.S3.Region == "" {
			opts.S3.Region = "us-east-1"
		}
		return NewS3Archive(ctx, opts.S3)
	case KindGCS:
		return openGCS(ctx, opts.GCS.Bucket, opts.GCS.Prefix)
	default:
		return nil, fmt.Errorf("unsupported artifact storage type: %s", opts.Kind)
	}
}
