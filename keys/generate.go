package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

// DefaultRSABits is the layout-owner default key size.
const DefaultRSABits = 2048

var allowedRSABits = map[int]bool{2048: true, 3072: true, 4096: true}

// GenerateRSA returns a fresh RSA key (public exponent 65537) with both
// halves serialized: SPKI PEM public, PKCS#1 PEM private.
func GenerateRSA(bits int) (*Key, error) {
	if bits == 0 {
		bits = DefaultRSABits
	}
	if !allowedRSABits[bits] {
		return nil, fmt.Errorf("unsupported RSA key size %d (want 2048, 3072, or 4096)", bits)
	}
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generate RSA key: %w", err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	})
	spki, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("serialize RSA public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: spki})

	k := &Key{
		KeyType:             KeyTypeRSA,
		Scheme:              SchemeRSASSAPSSSHA256,
		KeyIDHashAlgorithms: []string{"sha256", "sha512"},
		KeyVal: KeyVal{
			Public:  string(pubPEM),
			Private: string(privPEM),
		},
	}
	keyid, err := ComputeKeyID(k)
	if err != nil {
		return nil, err
	}
	k.KeyID = keyid
	return k, nil
}

// GenerateEd25519 returns a fresh ed25519 key. rand may be nil for
// crypto/rand; tests pass a deterministic reader.
func GenerateEd25519(random io.Reader) (*Key, error) {
	if random == nil {
		random = rand.Reader
	}
	pub, priv, err := ed25519.GenerateKey(random)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	k := &Key{
		KeyType:             KeyTypeEd25519,
		Scheme:              SchemeEd25519,
		KeyIDHashAlgorithms: []string{"sha256", "sha512"},
		KeyVal: KeyVal{
			Public:  hex.EncodeToString(pub),
			Private: hex.EncodeToString(priv.Seed()),
		},
	}
	keyid, err := ComputeKeyID(k)
	if err != nil {
		return nil, err
	}
	k.KeyID = keyid
	return k, nil
}

// GenerateDilithium3 returns a fresh dilithium3 key (experimental).
func GenerateDilithium3(random io.Reader) (*Key, error) {
	if random == nil {
		random = rand.Reader
	}
	pub, priv, err := mode3.GenerateKey(random)
	if err != nil {
		return nil, fmt.Errorf("generate dilithium3 key: %w", err)
	}
	pubRaw, err := pub.MarshalBinary()
	if err != nil {
		return nil, err
	}
	privRaw, err := priv.MarshalBinary()
	if err != nil {
		return nil, err
	}
	k := &Key{
		KeyType:             KeyTypeDilithium3,
		Scheme:              SchemeDilithium3,
		KeyIDHashAlgorithms: []string{"sha256", "sha512"},
		KeyVal: KeyVal{
			Public:  base64.StdEncoding.EncodeToString(pubRaw),
			Private: base64.StdEncoding.EncodeToString(privRaw),
		},
	}
	keyid, err := ComputeKeyID(k)
	if err != nil {
		return nil, err
	}
	k.KeyID = keyid
	return k, nil
}
