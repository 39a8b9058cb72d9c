package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/nimbusurf/pkg/cloudpath"
)

func fullPrefixes(locs []cloudpath.Path) []string {
	out := make([]string, len(locs))
	for i, l := range locs {
		out[i] = l.FullPrefix()
	}
	return out
}

func TestBuildListing(t *testing.T) {
	updated := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	pages := []DelimiterPage{
		{
			Objects: []ObjectSummary{
				{Key: "data/", Size: 0},
				{Key: "data/z.txt", Size: 3, LastModified: updated},
			},
			CommonPrefixes: []string{"data/2024/"},
		},
		{
			Objects:        []ObjectSummary{{Key: "data/a.txt", Size: 1}},
			CommonPrefixes: []string{"data/2023/"},
		},
	}

	locs, err := BuildListing(cloudpath.SchemeS3, "b", "data/", pages...)
	require.NoError(t, err)
	assert.Equal(t, []string{"data/2023/", "data/2024/", "data/a.txt", "data/z.txt"}, fullPrefixes(locs))

	assert.False(t, locs[0].IsBlob())
	assert.True(t, locs[3].IsBlob())
	size, ok := locs[3].Size()
	require.True(t, ok)
	assert.Equal(t, int64(3), size)
	got, ok := locs[3].UpdatedAt()
	require.True(t, ok)
	assert.Equal(t, updated, got)
}

func TestBuildListing_Empty(t *testing.T) {
	locs, err := BuildListing(cloudpath.SchemeGCS, "b", "")
	require.NoError(t, err)
	assert.Empty(t, locs)
}

func TestBuildBlobs(t *testing.T) {
	locs, err := BuildBlobs(cloudpath.SchemeGCS, "b", []ObjectSummary{
		{Key: "a/"},
		{Key: "a/one.bin", Size: 10},
		{Key: ""},
		{Key: "a/b/two.bin", Size: 20},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a/one.bin", "a/b/two.bin"}, fullPrefixes(locs))
	for _, l := range locs {
		assert.True(t, l.IsBlob())
	}
}

func TestSortByFullPrefix_Buckets(t *testing.T) {
	locs := []cloudpath.Path{
		cloudpath.Bucket(cloudpath.SchemeS3, "zeta"),
		cloudpath.Bucket(cloudpath.SchemeS3, "alpha"),
		cloudpath.Bucket(cloudpath.SchemeS3, "mid"),
	}
	SortByFullPrefix(locs)
	assert.Equal(t, "alpha", locs[0].Name())
	assert.Equal(t, "mid", locs[1].Name())
	assert.Equal(t, "zeta", locs[2].Name())
}
