package cidutil

import "testing"

func TestCIDDeterministicAndContentBound(t *testing.T) {
	a := CIDv1RawSHA256([]byte("evidence"))
	b := CIDv1RawSHA256([]byte("evidence"))
	if a == "" || a != b {
		t.Fatalf("CIDs = %q, %q", a, b)
	}
	if a == CIDv1RawSHA256([]byte("other")) {
		t.Fatal("distinct content produced the same CID")
	}

	id, err := CIDv1RawSHA256CID([]byte("evidence"))
	if err != nil {
		t.Fatal(err)
	}
	if id.String() != a {
		t.Fatalf("string and cid forms disagree: %s vs %s", id, a)
	}
	if !Matches([]byte("evidence"), id) {
		t.Fatal("Matches rejected the originating bytes")
	}
	if Matches([]byte("other"), id) {
		t.Fatal("Matches accepted foreign bytes")
	}
}
