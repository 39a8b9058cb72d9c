package output

import "github.com/3leaps/nimbusurf/pkg/cloudpath"

// NewEntryRecord describes a listing entry.
func NewEntryRecord(p cloudpath.Path) *EntryRecord {
	rec := &EntryRecord{URI: p.String(), Name: p.Name()}
	switch {
	case p.IsBlob():
		rec.Kind = KindBlob
	case p.IsBucket():
		rec.Kind = KindBucket
	default:
		rec.Kind = KindPrefix
	}
	if size, ok := p.Size(); ok {
		rec.Size = &size
	}
	if updated, ok := p.UpdatedAt(); ok {
		u := updated.UTC()
		rec.Updated = &u
	}
	return rec
}
