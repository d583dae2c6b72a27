package storage

import (
	"github.com/ipfs/go-cid"

	"xdao.co/latch/metablock"
)

// PutEnvelope stores a metablock envelope by its canonical bytes, so the
// returned CID equals the envelope's own CID.
func PutEnvelope(s Store, m *metablock.Metablock) (cid.Cid, error) {
	b, err := m.CanonicalBytes()
	if err != nil {
		return cid.Undef, err
	}
	return s.Put(b)
}

// GetEnvelope fetches and parses an envelope previously stored with
// PutEnvelope.
func GetEnvelope(s Store, id cid.Cid) (*metablock.Metablock, error) {
	b, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return metablock.Parse(b)
}
