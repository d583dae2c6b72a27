package keys

import (
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

// Supported key types. Dilithium3 is an experimental post-quantum scheme and
// is not part of the interoperable layout surface.
const (
	KeyTypeRSA        = "rsa"
	KeyTypeEd25519    = "ed25519"
	KeyTypeDilithium3 = "dilithium3"
)

// Signing schemes, one per key type.
const (
	SchemeRSASSAPSSSHA256 = "rsassa-pss-sha256"
	SchemeEd25519         = "ed25519"
	SchemeDilithium3      = "dilithium3"
)

// KeyVal holds the serialized key material.
//
// Encodings by key type:
//   - rsa: PEM text (SPKI public, PKCS#1 private)
//   - ed25519: lowercase hex (public key, private seed)
//   - dilithium3: standard base64
type KeyVal struct {
	Public  string `json:"public"`
	Private string `json:"private,omitempty"`
}

// Key is a securesystemslib-shaped key dictionary. It appears in layout key
// registries, in signature keyids, and as the unit the key store manages.
type Key struct {
	KeyID               string   `json:"keyid"`
	KeyType             string   `json:"keytype"`
	Scheme              string   `json:"scheme"`
	KeyIDHashAlgorithms []string `json:"keyid_hash_algorithms,omitempty"`
	KeyVal              KeyVal   `json:"keyval"`
}

// ComputeKeyID returns the key identifier: the lowercase sha256 hex of the
// serialized public key bytes. Layout owners and verifiers derive the same
// id from the same public key file, so keys can be referenced in policy
// without embedding the full material repeatedly.
func ComputeKeyID(k *Key) (string, error) {
	if k == nil {
		return "", errors.New("nil key")
	}
	if k.KeyVal.Public == "" {
		return "", errors.New("key has no public material")
	}
	sum := sha256.Sum256([]byte(k.KeyVal.Public))
	return hex.EncodeToString(sum[:]), nil
}

// Public returns a copy of k with private material stripped and KeyID filled
// in. The copy is what gets embedded in a layout's key registry.
func (k *Key) Public() (*Key, error) {
	keyid, err := ComputeKeyID(k)
	if err != nil {
		return nil, err
	}
	out := *k
	out.KeyID = keyid
	out.KeyVal.Private = ""
	return &out, nil
}

// HasPrivate reports whether k carries private material.
func (k *Key) HasPrivate() bool {
	return k != nil && k.KeyVal.Private != ""
}

func (k *Key) rsaPublic() (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(k.KeyVal.Public))
	if block == nil {
		return nil, errors.New("public key is not PEM")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	rpub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("expected RSA public key, got %T", pub)
	}
	return rpub, nil
}

func (k *Key) rsaPrivate() (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(k.KeyVal.Private))
	if block == nil {
		return nil, errors.New("private key is not PEM")
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		priv, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		rpriv, ok := priv.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("expected RSA private key, got %T", priv)
		}
		return rpriv, nil
	default:
		return nil, fmt.Errorf("unexpected PEM block %q", block.Type)
	}
}

func (k *Key) ed25519Public() (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(k.KeyVal.Public)
	if err != nil {
		return nil, fmt.Errorf("invalid ed25519 public key hex: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

func (k *Key) ed25519Private() (ed25519.PrivateKey, error) {
	seed, err := hex.DecodeString(k.KeyVal.Private)
	if err != nil {
		return nil, fmt.Errorf("invalid ed25519 seed hex: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("ed25519 seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

func (k *Key) dilithium3Public() (*mode3.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(k.KeyVal.Public)
	if err != nil {
		return nil, fmt.Errorf("invalid dilithium3 public key base64: %w", err)
	}
	var pub mode3.PublicKey
	if err := pub.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("invalid dilithium3 public key: %w", err)
	}
	return &pub, nil
}

func (k *Key) dilithium3Private() (*mode3.PrivateKey, error) {
	raw, err := base64.StdEncoding.DecodeString(k.KeyVal.Private)
	if err != nil {
		return nil, fmt.Errorf("invalid dilithium3 private key base64: %w", err)
	}
	var priv mode3.PrivateKey
	if err := priv.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("invalid dilithium3 private key: %w", err)
	}
	return &priv, nil
}
