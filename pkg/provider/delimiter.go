package provider

import (
	"sort"
	"strings"

	"github.com/3leaps/nimbusurf/pkg/cloudpath"
)

// Delimiter is the separator used for one-level (directory-like) listings.
const Delimiter = "/"

// DelimiterPage is one page of a delimiter listing as returned by an SDK:
//   - Objects directly under the requested prefix
//   - CommonPrefixes (immediate child prefixes)
type DelimiterPage struct {
	Objects        []ObjectSummary
	CommonPrefixes []string
}

// BuildListing converts the accumulated pages of a delimiter listing under
// prefix into sorted locations. An object whose key equals prefix (a
// directory marker some tools create) is dropped.
func BuildListing(scheme cloudpath.Scheme, bucket, prefix string, pages ...DelimiterPage) ([]cloudpath.Path, error) {
	var out []cloudpath.Path
	for _, page := range pages {
		for _, cp := range page.CommonPrefixes {
			loc, err := cloudpath.PrefixFromKey(scheme, bucket, cp)
			if err != nil {
				return nil, err
			}
			out = append(out, loc)
		}
		for _, obj := range page.Objects {
			if obj.Key == prefix {
				continue
			}
			loc, err := cloudpath.BlobFromKey(scheme, bucket, obj.Key, obj.Size, obj.LastModified)
			if err != nil {
				return nil, err
			}
			out = append(out, loc)
		}
	}
	SortByFullPrefix(out)
	return out, nil
}

// BuildBlobs converts a recursive listing into blob locations, skipping
// directory marker objects.
func BuildBlobs(scheme cloudpath.Scheme, bucket string, objects []ObjectSummary) ([]cloudpath.Path, error) {
	out := make([]cloudpath.Path, 0, len(objects))
	for _, obj := range objects {
		if obj.Key == "" || strings.HasSuffix(obj.Key, Delimiter) {
			continue
		}
		loc, err := cloudpath.BlobFromKey(scheme, bucket, obj.Key, obj.Size, obj.LastModified)
		if err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	return out, nil
}

// SortByFullPrefix orders locations by full prefix ascending. Buckets (which
// all have an empty prefix) are ordered by name.
func SortByFullPrefix(locs []cloudpath.Path) {
	sort.SliceStable(locs, func(i, j int) bool {
		pi, pj := locs[i].FullPrefix(), locs[j].FullPrefix()
		if pi != pj {
			return pi < pj
		}
		return locs[i].BucketName() < locs[j].BucketName()
	})
}
