//go:build cloudintegration

package minio_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/nimbusurf/pkg/cloudpath"
	"github.com/3leaps/nimbusurf/pkg/provider"
	"github.com/3leaps/nimbusurf/pkg/provider/minio"
	"github.com/3leaps/nimbusurf/test/cloudtest"
)

func TestProvider_CloudIntegration(t *testing.T) {
	ctx := context.Background()
	fx := cloudtest.NewFixture(t)
	fx.Put("logs/a.log", "logs/b.log", "logs/2024/c.log", "readme.md")

	p, err := minio.New(cloudtest.MinioConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	loc, err := cloudpath.New(cloudpath.SchemeS3, fx.Bucket, "logs")
	require.NoError(t, err)

	entries, err := p.ListPrefix(ctx, loc)
	require.NoError(t, err)
	var got []string
	for _, e := range entries {
		got = append(got, e.Name())
	}
	assert.Equal(t, []string{"2024/", "a.log", "b.log"}, got)

	blobs, err := p.ListAllBlobs(ctx, loc)
	require.NoError(t, err)
	assert.Len(t, blobs, 3)

	dest := filepath.Join(t.TempDir(), "a.log")
	require.NoError(t, p.Download(ctx, blobs[1], dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "content of logs/a.log", string(data))

	require.NoError(t, p.DeleteBlob(ctx, blobs[1]))
	assert.False(t, fx.Exists("logs/a.log"))

	_, err = p.ListPrefix(ctx, cloudpath.Bucket(cloudpath.SchemeS3, "nimbusurf-missing-bucket"))
	assert.True(t, provider.IsBucketNotFound(err))
}
