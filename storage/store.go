// Package storage defines the content-addressed evidence store: signed
// layouts, links, bundles, and summaries are kept immutably, keyed by the
// CID of their canonical bytes.
package storage

import "github.com/ipfs/go-cid"

// Store is a minimal content-addressable storage interface.
//
// Contract:
// - Put MUST be idempotent.
// - Stored objects MUST be immutable.
// - CIDs MUST be derived from the bytes written (callers are responsible for supplying canonical bytes).
// - Get MUST return ErrNotFound when the CID is absent.
type Store interface {
	Put(bytes []byte) (cid.Cid, error)
	Get(id cid.Cid) ([]byte, error)
	Has(id cid.Cid) bool
}
