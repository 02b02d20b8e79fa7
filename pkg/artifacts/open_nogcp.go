//go:build !gcp

package artifacts

import (
	"context"
	"fmt"
)

func openGCS(ctx context.Context, bucket, prefix string) (Archive, error) {
	return nil, fmt.Errorf("GCS storage is not enabled in this build (use -tags gcp)")
}
