package storage_test

import (
	"bytes"
	"testing"

	"xdao.co/latch/cidutil"
	"xdao.co/latch/link"
	"xdao.co/latch/metablock"
	"xdao.co/latch/storage"
	"xdao.co/latch/storage/testkit"
)

func TestMemStoreConformance(t *testing.T) {
	testkit.RunStoreConformance(t, func(t *testing.T) storage.Store {
		t.Helper()
		return testkit.NewMemStore()
	})
}

func TestPutEnvelopeCIDMatchesEnvelope(t *testing.T) {
	s := testkit.NewMemStore()
	m, err := metablock.New(&link.Link{Type: link.TypeLink, Name: "build"})
	if err != nil {
		t.Fatalf("metablock.New: %v", err)
	}

	id, err := storage.PutEnvelope(s, m)
	if err != nil {
		t.Fatalf("PutEnvelope: %v", err)
	}
	want, err := m.CID()
	if err != nil {
		t.Fatalf("CID: %v", err)
	}
	if id.String() != want {
		t.Fatalf("stored CID %s, envelope CID %s", id, want)
	}

	got, err := storage.GetEnvelope(s, id)
	if err != nil {
		t.Fatalf("GetEnvelope: %v", err)
	}
	if got.SignedType() != link.TypeLink {
		t.Fatalf("loaded _type %q", got.SignedType())
	}
}

func TestMultiStoreFallback(t *testing.T) {
	a, b := testkit.NewMemStore(), testkit.NewMemStore()
	payload := []byte("only in b")
	id, err := b.Put(payload)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	m := storage.MultiStore{Adapters: []storage.Store{a, b}}
	got, err := m.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("payload mismatch")
	}
	if !m.Has(id) {
		t.Fatal("Has: expected true")
	}

	// Writes land only in the first adapter.
	wid, err := m.Put([]byte("written"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !a.Has(wid) || b.Has(wid) {
		t.Fatal("MultiStore.Put did not write to exactly the first adapter")
	}
}

func TestReplicatingStorePutAll(t *testing.T) {
	a, b := testkit.NewMemStore(), testkit.NewMemStore()
	r := storage.ReplicatingStore{Backends: []storage.NamedStore{
		{Name: "a", Store: a},
		{Name: "b", Store: b},
	}}

	payload := []byte("replicate me")
	id, perBackend, err := r.PutAll(payload)
	if err != nil {
		t.Fatalf("PutAll: %v", err)
	}
	want, err := cidutil.CIDv1RawSHA256CID(payload)
	if err != nil {
		t.Fatalf("CIDv1RawSHA256CID: %v", err)
	}
	if id != want {
		t.Fatalf("canonical CID %s, want %s", id, want)
	}
	if len(perBackend) != 2 || perBackend["a"] != want || perBackend["b"] != want {
		t.Fatalf("per-backend CIDs = %v", perBackend)
	}
	if !a.Has(id) || !b.Has(id) {
		t.Fatal("payload not replicated to both backends")
	}
}
