package metablock

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"xdao.co/latch/keys"
)

func testKey(t *testing.T) *keys.Key {
	t.Helper()
	k, err := keys.GenerateEd25519(strings.NewReader(strings.Repeat("envelope-entropy", 4)))
	if err != nil {
		t.Fatal(err)
	}
	return k
}

func TestSignVerifyRoundTrip(t *testing.T) {
	k := testKey(t)
	m, err := New(map[string]any{"_type": "link", "name": "build"})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Sign(k); err != nil {
		t.Fatal(err)
	}
	pub, err := k.Public()
	if err != nil {
		t.Fatal(err)
	}
	if err := m.VerifySignature(pub); err != nil {
		t.Fatal(err)
	}
	if got := m.SignedType(); got != "link" {
		t.Fatalf("SignedType = %q", got)
	}
}

func TestVerifyDistinguishesMissingFromInvalid(t *testing.T) {
	signer := testKey(t)
	m, err := New(map[string]any{"_type": "link", "name": "build"})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Sign(signer); err != nil {
		t.Fatal(err)
	}

	stranger, err := keys.GenerateEd25519(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.VerifySignature(stranger); RuleID(err) != "LATCH-META-211" {
		t.Fatalf("unknown key: err = %v, want the missing-signature diagnostic", err)
	}

	m.Signed.(map[string]any)["name"] = "evil"
	pub, err := signer.Public()
	if err != nil {
		t.Fatal(err)
	}
	err = m.VerifySignature(pub)
	if RuleID(err) != "LATCH-META-212" || !IsKind(err, KindCrypto) {
		t.Fatalf("tampered body: err = %v, want the invalid-signature diagnostic", err)
	}
}

func TestSignReplacesPriorSignatureFromSameKey(t *testing.T) {
	k := testKey(t)
	m, err := New(map[string]any{"_type": "layout"})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Sign(k); err != nil {
		t.Fatal(err)
	}
	if err := m.Sign(k); err != nil {
		t.Fatal(err)
	}
	if len(m.Signatures) != 1 {
		t.Fatalf("signatures = %d, want 1", len(m.Signatures))
	}
}

func TestParseRequiresEnvelopeShape(t *testing.T) {
	if _, err := Parse([]byte(`{"_type":"layout"}`)); RuleID(err) != "LATCH-META-102" {
		t.Fatalf("bare payload through Parse: err = %v", err)
	}
	if _, err := Parse([]byte("not json")); !IsKind(err, KindParse) {
		t.Fatalf("garbage: err = %v", err)
	}

	m, err := ParseAny([]byte(`{"_type":"layout"}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Signatures) != 0 || m.SignedType() != "layout" {
		t.Fatalf("bare payload through ParseAny: %+v", m)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.layout"))
	if !IsKind(err, KindMissingFile) || RuleID(err) != "LATCH-META-100" {
		t.Fatalf("err = %v", err)
	}
}

func TestDumpLoadPreservesSignaturesAndCID(t *testing.T) {
	k := testKey(t)
	m, err := New(map[string]any{"_type": "link", "name": "build", "products": map[string]any{}})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Sign(k); err != nil {
		t.Fatal(err)
	}
	wantCID, err := m.CID()
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "build.link")
	if err := Dump(m, path); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Signatures) != 1 || got.Signatures[0].KeyID != k.KeyID {
		t.Fatalf("signatures = %+v", got.Signatures)
	}
	gotCID, err := got.CID()
	if err != nil {
		t.Fatal(err)
	}
	if gotCID != wantCID {
		t.Fatalf("CID changed across dump/load: %s vs %s", gotCID, wantCID)
	}
}

func TestCanonicalBytesIgnoreKeyOrder(t *testing.T) {
	a, err := Parse([]byte(`{"signed":{"b":1,"a":"x"},"signatures":[]}`))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Parse([]byte(`{"signatures":[],"signed":{"a":"x","b":1}}`))
	if err != nil {
		t.Fatal(err)
	}
	ca, err := a.CanonicalBytes()
	if err != nil {
		t.Fatal(err)
	}
	cb, err := b.CanonicalBytes()
	if err != nil {
		t.Fatal(err)
	}
	if string(ca) != string(cb) {
		t.Fatalf("canonical bytes differ:\n%s\n%s", ca, cb)
	}
}

func TestSetSignedDropsSignatures(t *testing.T) {
	k := testKey(t)
	m, err := New(map[string]any{"_type": "layout"})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Sign(k); err != nil {
		t.Fatal(err)
	}
	if err := m.SetSigned(map[string]any{"_type": "layout", "readme": "v2"}); err != nil {
		t.Fatal(err)
	}
	if len(m.Signatures) != 0 {
		t.Fatal("stale signatures survived a payload replacement")
	}
}

func TestDecodeSigned(t *testing.T) {
	m, err := New(map[string]any{"_type": "link", "name": "build"})
	if err != nil {
		t.Fatal(err)
	}
	var body struct {
		Type string `json:"_type"`
		Name string `json:"name"`
	}
	if err := m.DecodeSigned(&body); err != nil {
		t.Fatal(err)
	}
	if body.Type != "link" || body.Name != "build" {
		t.Fatalf("decoded = %+v", body)
	}
}

func dsseSign(t *testing.T, k *keys.Key, payloadType string, payload []byte) []byte {
	t.Helper()
	seed, err := hex.DecodeString(k.KeyVal.Private)
	if err != nil {
		t.Fatal(err)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pae := fmt.Sprintf("DSSEv1 %d %s %d %s", len(payloadType), payloadType, len(payload), payload)
	sig := ed25519.Sign(priv, []byte(pae))
	env := map[string]any{
		"payloadType": payloadType,
		"payload":     base64.StdEncoding.EncodeToString(payload),
		"signatures": []map[string]string{
			{"keyid": k.KeyID, "sig": base64.StdEncoding.EncodeToString(sig)},
		},
	}
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestVerifyDSSE(t *testing.T) {
	k := testKey(t)
	payload := []byte(`{"_type":"link","name":"build","materials":{},"products":{}}`)
	env := dsseSign(t, k, PayloadTypeLink, payload)

	if !IsDSSE(env) {
		t.Fatal("IsDSSE = false for a DSSE envelope")
	}
	if IsDSSE([]byte(`{"signed":{},"signatures":[]}`)) {
		t.Fatal("IsDSSE = true for a metablock")
	}

	pub, err := k.Public()
	if err != nil {
		t.Fatal(err)
	}
	got, err := VerifyDSSE(context.Background(), env, pub)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(payload) {
		t.Fatalf("payload = %s", got)
	}

	other, err := keys.GenerateEd25519(nil)
	if err != nil {
		t.Fatal(err)
	}
	otherPub, err := other.Public()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := VerifyDSSE(context.Background(), env, otherPub); RuleID(err) != "LATCH-META-304" {
		t.Fatalf("wrong key: err = %v", err)
	}

	wrongType := dsseSign(t, k, "application/vnd.other+json", payload)
	if _, err := VerifyDSSE(context.Background(), wrongType, pub); RuleID(err) != "LATCH-META-302" {
		t.Fatalf("wrong payload type: err = %v", err)
	}
}

func TestVerifyDSSERejectsDilithiumKeys(t *testing.T) {
	k, err := keys.GenerateDilithium3(nil)
	if err != nil {
		t.Fatal(err)
	}
	pub, err := k.Public()
	if err != nil {
		t.Fatal(err)
	}
	env := []byte(`{"payloadType":"application/vnd.in-toto+json","payload":"e30=","signatures":[]}`)
	if _, err := VerifyDSSE(context.Background(), env, pub); RuleID(err) != "LATCH-META-307" {
		t.Fatalf("err = %v", err)
	}
}
