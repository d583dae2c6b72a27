package keys

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// File modes for key material written to disk.
const (
	PrivateKeyMode = 0o600
	PublicKeyMode  = 0o644
)

// WriteKeyPair writes the private key to base and the public key to
// base+".pub". RSA keys are written as PEM; other key types as JSON key
// dictionaries. Existing files are never overwritten unless force is set,
// and a partial pair is removed on failure.
func WriteKeyPair(base string, k *Key, force bool) (privPath, pubPath string, err error) {
	if k == nil || !k.HasPrivate() {
		return "", "", errors.New("key has no private material")
	}
	privPath = base
	pubPath = base + ".pub"

	if !force {
		var existing []string
		for _, p := range []string{privPath, pubPath} {
			if _, serr := os.Stat(p); serr == nil {
				existing = append(existing, p)
			}
		}
		if len(existing) > 0 {
			return "", "", fmt.Errorf("key files already exist: %v (remove them or use force)", existing)
		}
	}

	pub, err := k.Public()
	if err != nil {
		return "", "", err
	}

	var privBytes, pubBytes []byte
	if k.KeyType == KeyTypeRSA {
		privBytes = []byte(k.KeyVal.Private)
		pubBytes = []byte(k.KeyVal.Public)
	} else {
		privBytes, err = json.MarshalIndent(k, "", "  ")
		if err != nil {
			return "", "", err
		}
		pubBytes, err = json.MarshalIndent(pub, "", "  ")
		if err != nil {
			return "", "", err
		}
	}

	if err := writeFileExclusive(privPath, privBytes, PrivateKeyMode, force); err != nil {
		return "", "", err
	}
	if err := writeFileExclusive(pubPath, pubBytes, PublicKeyMode, force); err != nil {
		_ = os.Remove(privPath)
		return "", "", err
	}
	return privPath, pubPath, nil
}

func writeFileExclusive(path string, data []byte, mode os.FileMode, overwrite bool) error {
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, mode)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}

// LoadPublic reads a public key file: SPKI PEM (RSA or ed25519) or a JSON
// key dictionary. The returned key carries no private material and has its
// keyid filled in.
func LoadPublic(path string) (*Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	k, err := parseKeyBytes(data, false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return k.Public()
}

// LoadPrivate reads a private key file: PEM (PKCS#1 RSA or PKCS#8) or a
// JSON key dictionary. The returned key carries both halves.
func LoadPrivate(path string) (*Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	k, err := parseKeyBytes(data, true)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if !k.HasPrivate() {
		return nil, fmt.Errorf("%s: no private material", path)
	}
	keyid, err := ComputeKeyID(k)
	if err != nil {
		return nil, err
	}
	k.KeyID = keyid
	return k, nil
}

func parseKeyBytes(data []byte, private bool) (*Key, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty key file")
	}
	if trimmed[0] == '{' {
		var k Key
		if err := json.Unmarshal(trimmed, &k); err != nil {
			return nil, fmt.Errorf("invalid JSON key: %w", err)
		}
		if k.KeyVal.Public == "" {
			return nil, errors.New("JSON key has no public material")
		}
		computed, err := ComputeKeyID(&k)
		if err != nil {
			return nil, err
		}
		if k.KeyID != "" && k.KeyID != computed {
			return nil, fmt.Errorf("keyid %s does not match key material (want %s)", k.KeyID, computed)
		}
		k.KeyID = computed
		return &k, nil
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("not PEM and not a JSON key")
	}
	if private {
		return keyFromPEMPrivate(block)
	}
	return keyFromPEMPublic(data, block)
}

func keyFromPEMPublic(raw []byte, block *pem.Block) (*Key, error) {
	if block.Type != "PUBLIC KEY" {
		return nil, fmt.Errorf("unexpected PEM block %q", block.Type)
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	switch p := pub.(type) {
	case *rsa.PublicKey:
		// Keep the file text verbatim so the keyid matches the bytes the
		// layout owner hashed at injection time.
		return &Key{
			KeyType:             KeyTypeRSA,
			Scheme:              SchemeRSASSAPSSSHA256,
			KeyIDHashAlgorithms: []string{"sha256", "sha512"},
			KeyVal:              KeyVal{Public: string(raw)},
		}, nil
	case ed25519.PublicKey:
		return &Key{
			KeyType:             KeyTypeEd25519,
			Scheme:              SchemeEd25519,
			KeyIDHashAlgorithms: []string{"sha256", "sha512"},
			KeyVal:              KeyVal{Public: hex.EncodeToString(p)},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported public key type %T", pub)
	}
}

func keyFromPEMPrivate(block *pem.Block) (*Key, error) {
	switch block.Type {
	case "RSA PRIVATE KEY":
		priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse RSA private key: %w", err)
		}
		return rsaKeyFromPrivate(priv, pem.EncodeToMemory(block))
	case "PRIVATE KEY":
		priv, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		switch p := priv.(type) {
		case *rsa.PrivateKey:
			pkcs1 := pem.EncodeToMemory(&pem.Block{
				Type:  "RSA PRIVATE KEY",
				Bytes: x509.MarshalPKCS1PrivateKey(p),
			})
			return rsaKeyFromPrivate(p, pkcs1)
		case ed25519.PrivateKey:
			return &Key{
				KeyType:             KeyTypeEd25519,
				Scheme:              SchemeEd25519,
				KeyIDHashAlgorithms: []string{"sha256", "sha512"},
				KeyVal: KeyVal{
					Public:  hex.EncodeToString(p.Public().(ed25519.PublicKey)),
					Private: hex.EncodeToString(p.Seed()),
				},
			}, nil
		default:
			return nil, fmt.Errorf("unsupported private key type %T", priv)
		}
	default:
		return nil, fmt.Errorf("unexpected PEM block %q", block.Type)
	}
}

func rsaKeyFromPrivate(priv *rsa.PrivateKey, privPEM []byte) (*Key, error) {
	spki, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("serialize RSA public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: spki})
	return &Key{
		KeyType:             KeyTypeRSA,
		Scheme:              SchemeRSASSAPSSSHA256,
		KeyIDHashAlgorithms: []string{"sha256", "sha512"},
		KeyVal: KeyVal{
			Public:  string(pubPEM),
			Private: string(privPEM),
		},
	}, nil
}
