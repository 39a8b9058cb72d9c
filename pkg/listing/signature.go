package listing

import (
	"slices"
	"time"

	"github.com/3leaps/nimbusurf/pkg/cloudpath"
)

// Fingerprint is the per-entry component of a Signature. Unlike
// cloudpath.Path equality it includes size and modification time.
type Fingerprint struct {
	FullPath string
	Blob     bool
	HasSize  bool
	Size     int64
	// Updated is the UTC RFC 3339 time, empty when unknown.
	Updated string
}

// Signature is an order-sensitive digest of a listing. Two listings are
// the same iff their signatures are Equal.
type Signature []Fingerprint

// SignatureOf computes the signature of entries.
func SignatureOf(entries []cloudpath.Path) Signature {
	sig := make(Signature, len(entries))
	for i, e := range entries {
		fp := Fingerprint{FullPath: e.String(), Blob: e.IsBlob()}
		fp.Size, fp.HasSize = e.Size()
		if t, ok := e.UpdatedAt(); ok {
			fp.Updated = t.UTC().Format(time.RFC3339Nano)
		}
		sig[i] = fp
	}
	return sig
}

// Equal compares position for position.
func (s Signature) Equal(o Signature) bool {
	return slices.Equal(s, o)
}
