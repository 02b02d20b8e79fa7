//go:build gcp

package artifacts

import "context"

func openGCS(ctx context.Context, bucket, prefix string) (Archive, error) {
	return NewGCSArchive(ctx, GCSConfig{Bucket: bucket, Prefix: prefix})
}
