package keys

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

// ErrSignatureInvalid is returned by Verify when the signature does not
// match. Any other error means verification could not be attempted.
var ErrSignatureInvalid = errors.New("signature invalid")

// Sign signs data according to the key's scheme and returns the lowercase
// hex signature.
//
// rsassa-pss-sha256 signs the sha256 digest with a salt of digest length;
// ed25519 and dilithium3 sign the raw message per their schemes.
func Sign(k *Key, data []byte) (string, error) {
	if k == nil {
		return "", errors.New("nil key")
	}
	if !k.HasPrivate() {
		return "", errors.New("key has no private material")
	}
	switch k.Scheme {
	case SchemeRSASSAPSSSHA256:
		priv, err := k.rsaPrivate()
		if err != nil {
			return "", err
		}
		digest := sha256.Sum256(data)
		sig, err := rsa.SignPSS(rand.Reader, priv, crypto.SHA256, digest[:], &rsa.PSSOptions{
			SaltLength: rsa.PSSSaltLengthEqualsHash,
			Hash:       crypto.SHA256,
		})
		if err != nil {
			return "", fmt.Errorf("rsassa-pss sign: %w", err)
		}
		return hex.EncodeToString(sig), nil
	case SchemeEd25519:
		priv, err := k.ed25519Private()
		if err != nil {
			return "", err
		}
		return hex.EncodeToString(ed25519.Sign(priv, data)), nil
	case SchemeDilithium3:
		priv, err := k.dilithium3Private()
		if err != nil {
			return "", err
		}
		sig := make([]byte, mode3.SignatureSize)
		mode3.SignTo(priv, data, sig)
		return hex.EncodeToString(sig), nil
	default:
		return "", fmt.Errorf("unsupported signing scheme %q", k.Scheme)
	}
}

// Verify checks a hex signature over data against the key's public half.
// A mismatched signature returns ErrSignatureInvalid.
func Verify(k *Key, data []byte, sigHex string) error {
	if k == nil {
		return errors.New("nil key")
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return fmt.Errorf("invalid signature hex: %w", err)
	}
	switch k.Scheme {
	case SchemeRSASSAPSSSHA256:
		pub, err := k.rsaPublic()
		if err != nil {
			return err
		}
		digest := sha256.Sum256(data)
		if err := rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, nil); err != nil {
			return ErrSignatureInvalid
		}
		return nil
	case SchemeEd25519:
		pub, err := k.ed25519Public()
		if err != nil {
			return err
		}
		if len(sig) != ed25519.SignatureSize {
			return fmt.Errorf("ed25519 signature must be %d bytes, got %d", ed25519.SignatureSize, len(sig))
		}
		if !ed25519.Verify(pub, data, sig) {
			return ErrSignatureInvalid
		}
		return nil
	case SchemeDilithium3:
		pub, err := k.dilithium3Public()
		if err != nil {
			return err
		}
		if len(sig) != mode3.SignatureSize {
			return fmt.Errorf("dilithium3 signature must be %d bytes, got %d", mode3.SignatureSize, len(sig))
		}
		if !mode3.Verify(pub, data, sig) {
			return ErrSignatureInvalid
		}
		return nil
	default:
		return fmt.Errorf("unsupported signing scheme %q", k.Scheme)
	}
}
