// Package metablock implements the signed envelope wrapping layouts, links,
// and verification summaries: {"signed": <payload>, "signatures": [...]}.
//
// Signatures cover the canonical JSON serialization of the signed payload,
// so envelopes survive whitespace and key-order churn between toolchains.
package metablock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/secure-systems-lab/go-securesystemslib/cjson"

	"xdao.co/latch/cidutil"
	"xdao.co/latch/keys"
)

// Signature is one {keyid, sig} entry. Sig is lowercase hex.
type Signature struct {
	KeyID string `json:"keyid"`
	Sig   string `json:"sig"`
}

// Metablock is a signed envelope. Signed holds the payload as decoded JSON
// (maps, slices, json.Number) so canonicalization sees exactly the bytes
// that were loaded, not a lossy struct round-trip.
type Metablock struct {
	Signed     any         `json:"signed"`
	Signatures []Signature `json:"signatures"`
}

// New wraps a payload value in an unsigned envelope. The payload is passed
// through a JSON round-trip so later canonicalization is independent of the
// caller's Go types.
func New(payload any) (*Metablock, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, wrapError(KindInternal, "LATCH-META-001", "payload not serializable", err)
	}
	m := &Metablock{Signatures: []Signature{}}
	if err := decodeSignedJSON(raw, &m.Signed); err != nil {
		return nil, err
	}
	return m, nil
}

// Parse reads an envelope from JSON bytes. Inputs missing either envelope
// field are rejected; use ParseAny for bare (unsigned) payloads.
func Parse(data []byte) (*Metablock, error) {
	m, bare, err := parseMaybeBare(data)
	if err != nil {
		return nil, err
	}
	if bare {
		return nil, newError(KindParse, "LATCH-META-102", "not a signed envelope (missing signed/signatures)")
	}
	return m, nil
}

// ParseAny reads either a signed envelope or a bare payload. Bare payloads
// come back wrapped with an empty signature list, which is how unsigned
// layouts enter the key-injection and signing workflow.
func ParseAny(data []byte) (*Metablock, error) {
	m, _, err := parseMaybeBare(data)
	return m, err
}

func parseMaybeBare(data []byte) (*Metablock, bool, error) {
	var probe struct {
		Signed     json.RawMessage `json:"signed"`
		Signatures []Signature     `json:"signatures"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, false, wrapError(KindParse, "LATCH-META-101", "invalid JSON", err)
	}
	if probe.Signed == nil {
		// Bare payload: the whole document is the signed body.
		m := &Metablock{Signatures: []Signature{}}
		if err := decodeSignedJSON(data, &m.Signed); err != nil {
			return nil, false, err
		}
		return m, true, nil
	}
	m := &Metablock{Signatures: probe.Signatures}
	if m.Signatures == nil {
		m.Signatures = []Signature{}
	}
	if err := decodeSignedJSON(probe.Signed, &m.Signed); err != nil {
		return nil, false, err
	}
	return m, false, nil
}

func decodeSignedJSON(raw []byte, dst *any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return wrapError(KindParse, "LATCH-META-101", "invalid JSON", err)
	}
	if *dst == nil {
		return newError(KindParse, "LATCH-META-103", "signed payload is null")
	}
	return nil
}

// Load reads an envelope (or bare payload) from a file.
func Load(path string) (*Metablock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, wrapError(KindMissingFile, "LATCH-META-100", fmt.Sprintf("file not found: %s", path), err)
		}
		return nil, wrapError(KindMissingFile, "LATCH-META-100", fmt.Sprintf("read %s", path), err)
	}
	return ParseAny(data)
}

// Dump writes the envelope to path as indented JSON.
func Dump(m *Metablock, path string) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Encode serializes the envelope as indented JSON with a trailing newline.
func Encode(m *Metablock) ([]byte, error) {
	data, err := json.MarshalIndent(m, "", " ")
	if err != nil {
		return nil, wrapError(KindInternal, "LATCH-META-001", "envelope not serializable", err)
	}
	return append(data, '\n'), nil
}

// SignedBytes returns the canonical JSON of the signed payload, the exact
// bytes every signature covers.
func (m *Metablock) SignedBytes() ([]byte, error) {
	if m == nil || m.Signed == nil {
		return nil, newError(KindInternal, "LATCH-META-002", "nil metablock")
	}
	b, err := cjson.EncodeCanonical(m.Signed)
	if err != nil {
		return nil, wrapError(KindInternal, "LATCH-META-003", "canonicalize signed payload", err)
	}
	return b, nil
}

// SignedType returns the payload's "_type" field, or "".
func (m *Metablock) SignedType() string {
	obj, ok := m.Signed.(map[string]any)
	if !ok {
		return ""
	}
	t, _ := obj["_type"].(string)
	return t
}

// DecodeSigned unmarshals the signed payload into a typed value.
func (m *Metablock) DecodeSigned(v any) error {
	raw, err := json.Marshal(m.Signed)
	if err != nil {
		return wrapError(KindInternal, "LATCH-META-001", "payload not serializable", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return wrapError(KindParse, "LATCH-META-104", "signed payload does not match expected shape", err)
	}
	return nil
}

// SetSigned replaces the signed payload and drops all signatures, which are
// void once the body changes.
func (m *Metablock) SetSigned(payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return wrapError(KindInternal, "LATCH-META-001", "payload not serializable", err)
	}
	var signed any
	if err := decodeSignedJSON(raw, &signed); err != nil {
		return err
	}
	m.Signed = signed
	m.Signatures = []Signature{}
	return nil
}

// Sign appends a signature by key over the canonical payload bytes. A prior
// signature from the same keyid is replaced, so re-signing is idempotent.
func (m *Metablock) Sign(key *keys.Key) error {
	if key == nil || !key.HasPrivate() {
		return newError(KindCrypto, "LATCH-META-201", "signing key has no private material")
	}
	keyid, err := keys.ComputeKeyID(key)
	if err != nil {
		return wrapError(KindCrypto, "LATCH-META-202", "cannot derive keyid", err)
	}
	payload, err := m.SignedBytes()
	if err != nil {
		return err
	}
	sig, err := keys.Sign(key, payload)
	if err != nil {
		return wrapError(KindCrypto, "LATCH-META-203", "signing failed", err)
	}
	for i := range m.Signatures {
		if m.Signatures[i].KeyID == keyid {
			m.Signatures[i].Sig = sig
			return nil
		}
	}
	m.Signatures = append(m.Signatures, Signature{KeyID: keyid, Sig: sig})
	return nil
}

// VerifySignature checks that the envelope carries a valid signature from
// key. A missing signature and an invalid signature are distinct failures.
func (m *Metablock) VerifySignature(key *keys.Key) error {
	if key == nil {
		return newError(KindCrypto, "LATCH-META-210", "nil verification key")
	}
	keyid, err := keys.ComputeKeyID(key)
	if err != nil {
		return wrapError(KindCrypto, "LATCH-META-202", "cannot derive keyid", err)
	}
	var sig *Signature
	for i := range m.Signatures {
		if m.Signatures[i].KeyID == keyid {
			sig = &m.Signatures[i]
			break
		}
	}
	if sig == nil {
		return newError(KindCrypto, "LATCH-META-211", fmt.Sprintf("no signature from key %s", keys.ShortKeyID(keyid)))
	}
	payload, err := m.SignedBytes()
	if err != nil {
		return err
	}
	if err := keys.Verify(key, payload, sig.Sig); err != nil {
		if errors.Is(err, keys.ErrSignatureInvalid) {
			return wrapError(KindCrypto, "LATCH-META-212", fmt.Sprintf("signature from key %s invalid", keys.ShortKeyID(keyid)), err)
		}
		return wrapError(KindCrypto, "LATCH-META-213", "signature not verifiable", err)
	}
	return nil
}

// CanonicalBytes returns the canonical JSON encoding of the whole envelope,
// signatures included. Evidence stores key envelopes by these bytes.
func (m *Metablock) CanonicalBytes() ([]byte, error) {
	b, err := cjson.EncodeCanonical(m)
	if err != nil {
		return nil, wrapError(KindInternal, "LATCH-META-003", "canonicalize envelope", err)
	}
	return b, nil
}

// CID returns the content identifier of the canonical envelope bytes.
// Evidence stores and verification summaries reference envelopes by this id.
func (m *Metablock) CID() (string, error) {
	b, err := m.CanonicalBytes()
	if err != nil {
		return "", err
	}
	return cidutil.CIDv1RawSHA256(b), nil
}
