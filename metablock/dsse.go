package metablock

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/secure-systems-lab/go-securesystemslib/dsse"
	"github.com/secure-systems-lab/go-securesystemslib/signerverifier"

	"xdao.co/latch/keys"
)

// PayloadTypeLink is the DSSE payload type accepted for link evidence.
const PayloadTypeLink = "application/vnd.in-toto+json"

// IsDSSE reports whether data looks like a DSSE envelope rather than a
// metablock. The two carriers are distinguished by the payloadType field.
func IsDSSE(data []byte) bool {
	var probe struct {
		PayloadType string `json:"payloadType"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(data), &probe); err != nil {
		return false
	}
	return probe.PayloadType != ""
}

// VerifyDSSE validates a DSSE envelope against key and returns the decoded
// payload bytes. Only rsa and ed25519 keys are supported on this path; the
// experimental dilithium3 scheme has no DSSE representation.
func VerifyDSSE(ctx context.Context, data []byte, key *keys.Key) ([]byte, error) {
	envelope := &dsse.Envelope{}
	if err := json.Unmarshal(data, envelope); err != nil {
		return nil, wrapError(KindParse, "LATCH-META-301", "invalid DSSE envelope", err)
	}
	if envelope.PayloadType != PayloadTypeLink {
		return nil, newError(KindParse, "LATCH-META-302", fmt.Sprintf("unexpected DSSE payload type %q", envelope.PayloadType))
	}

	verifier, err := dsseVerifierForKey(key)
	if err != nil {
		return nil, err
	}
	ev, err := dsse.NewEnvelopeVerifier(verifier)
	if err != nil {
		return nil, wrapError(KindInternal, "LATCH-META-303", "construct envelope verifier", err)
	}
	if _, err := ev.Verify(ctx, envelope); err != nil {
		return nil, wrapError(KindCrypto, "LATCH-META-304", "DSSE signature invalid", err)
	}

	payload, err := envelope.DecodeB64Payload()
	if err != nil {
		return nil, wrapError(KindParse, "LATCH-META-305", "invalid DSSE payload encoding", err)
	}
	return payload, nil
}

func dsseVerifierForKey(key *keys.Key) (dsse.Verifier, error) {
	if key == nil {
		return nil, newError(KindCrypto, "LATCH-META-210", "nil verification key")
	}
	keyid, err := keys.ComputeKeyID(key)
	if err != nil {
		return nil, wrapError(KindCrypto, "LATCH-META-202", "cannot derive keyid", err)
	}
	sslibKey := &signerverifier.SSLibKey{
		KeyIDHashAlgorithms: key.KeyIDHashAlgorithms,
		KeyType:             key.KeyType,
		KeyVal:              signerverifier.KeyVal{Public: key.KeyVal.Public},
		Scheme:              key.Scheme,
		KeyID:               keyid,
	}
	switch key.KeyType {
	case keys.KeyTypeEd25519:
		v, err := signerverifier.NewED25519SignerVerifierFromSSLibKey(sslibKey)
		if err != nil {
			return nil, wrapError(KindCrypto, "LATCH-META-306", "load ed25519 verifier", err)
		}
		return v, nil
	case keys.KeyTypeRSA:
		v, err := signerverifier.NewRSAPSSSignerVerifierFromSSLibKey(sslibKey)
		if err != nil {
			return nil, wrapError(KindCrypto, "LATCH-META-306", "load rsa verifier", err)
		}
		return v, nil
	default:
		return nil, newError(KindCrypto, "LATCH-META-307", fmt.Sprintf("key type %q not supported for DSSE", key.KeyType))
	}
}
