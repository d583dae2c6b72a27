// Package verify walks a signed layout against a directory of link
// evidence and decides whether the supply chain it describes actually
// happened: right signers, right thresholds, right artifact flow.
package verify

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/secure-systems-lab/go-securesystemslib/cjson"

	"xdao.co/latch/cidutil"
	"xdao.co/latch/keys"
	"xdao.co/latch/layout"
	"xdao.co/latch/link"
	"xdao.co/latch/metablock"
)

// Mode selects how an empty evidence directory is treated.
type Mode string

const (
	// ModePermissive reports missing evidence with its own diagnostic
	// (KindNoEvidence) so callers can tell "pipeline has not run" from
	// "pipeline tampered". Everything else still fails hard.
	ModePermissive Mode = "permissive"
	// ModeStrict treats missing evidence like any other policy failure.
	ModeStrict Mode = "strict"
)

// ParseMode parses a mode flag value.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModePermissive, ModeStrict:
		return Mode(s), nil
	case "":
		return ModePermissive, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want %q or %q)", s, ModePermissive, ModeStrict)
	}
}

// Options are the verification inputs. VerificationKeys are the out-of-band
// trusted layout signing keys; the layout's own key registry is never
// consulted for its own signature.
type Options struct {
	LayoutPath       string
	VerificationKeys []*keys.Key
	LinkDir          string
	Mode             Mode

	// WorkDir is where inspection commands run; empty means the process
	// working directory.
	WorkDir string

	// Now overrides the expiry clock in tests.
	Now time.Time

	Warn func(format string, args ...any)
}

// StepResult records the accepted evidence for one step.
type StepResult struct {
	Name     string   `json:"name"`
	LinkCIDs []string `json:"link_cids"`
	SignedBy []string `json:"signed_by"`
}

// Result is returned only on a fully passing verification.
type Result struct {
	LayoutCID string       `json:"layout_cid"`
	Steps     []StepResult `json:"steps"`
}

// Verify runs the full verification. Any returned error is a *Error whose
// Kind and RuleID identify the violated clause.
func Verify(ctx context.Context, opts Options) (*Result, error) {
	warn := opts.Warn
	if warn == nil {
		warn = func(string, ...any) {}
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	m, err := metablock.Load(opts.LayoutPath)
	if err != nil {
		return nil, err
	}
	if err := verifyLayoutSignature(m, opts.VerificationKeys); err != nil {
		return nil, err
	}

	l, err := layout.FromMetablock(m)
	if err != nil {
		return nil, wrapError(KindParse, "LATCH-VER-100", fmt.Sprintf("invalid layout %s", opts.LayoutPath), err)
	}
	expired, err := l.Expired(now)
	if err != nil {
		return nil, wrapError(KindParse, "LATCH-VER-100", "invalid layout expiration", err)
	}
	if expired {
		return nil, newError(KindExpired, "LATCH-VER-110", fmt.Sprintf("layout expired at %s", l.Expires))
	}

	set, err := link.LoadDir(opts.LinkDir, warn)
	if err != nil {
		return nil, wrapError(KindParse, "LATCH-VER-121", "load evidence", err)
	}
	if len(set) == 0 && opts.Mode != ModeStrict {
		return nil, newError(KindNoEvidence, "LATCH-VER-120", fmt.Sprintf("no link evidence in %s", opts.LinkDir))
	}

	layoutCID, err := m.CID()
	if err != nil {
		return nil, wrapError(KindInternal, "LATCH-VER-001", "layout CID", err)
	}

	result := &Result{LayoutCID: layoutCID}
	accepted := make(map[string]*link.Link, len(l.Steps))
	for _, step := range l.Steps {
		sr, ref, err := verifyStepEvidence(ctx, l, step, set[step.Name])
		if err != nil {
			return nil, err
		}
		accepted[step.Name] = ref
		result.Steps = append(result.Steps, *sr)
	}

	if err := verifyChainOfCustody(l, accepted); err != nil {
		return nil, err
	}
	for _, step := range l.Steps {
		ref := accepted[step.Name]
		if err := applyRuleSets(step.Name, step.ExpectedMaterials, step.ExpectedProducts, ref, accepted); err != nil {
			return nil, err
		}
	}
	if err := runInspections(ctx, l, opts, accepted); err != nil {
		return nil, err
	}
	return result, nil
}

// verifyLayoutSignature requires at least one supplied key to have produced
// a valid signature, and refuses outright if a supplied key's signature is
// present but wrong. A key with no signature at all is merely unused.
func verifyLayoutSignature(m *metablock.Metablock, trusted []*keys.Key) error {
	if len(trusted) == 0 {
		return newError(KindLayoutSignature, "LATCH-VER-103", "no verification keys supplied")
	}
	valid := 0
	for _, k := range trusted {
		err := m.VerifySignature(k)
		switch {
		case err == nil:
			valid++
		case metablock.RuleID(err) == "LATCH-META-211":
			// No signature from this key; fine as long as another
			// supplied key verifies.
		default:
			keyid, _ := keys.ComputeKeyID(k)
			return wrapError(KindLayoutSignature, "LATCH-VER-101",
				fmt.Sprintf("layout signature by key %s is invalid", keys.ShortKeyID(keyid)), err)
		}
	}
	if valid == 0 {
		return newError(KindLayoutSignature, "LATCH-VER-102", "layout is not signed by any supplied verification key")
	}
	return nil
}

// verifyStepEvidence authenticates every candidate link for one step,
// enforces the signer threshold, and requires all accepted signers to have
// attested identical evidence. Returns the step report and the reference
// link used for artifact checks.
func verifyStepEvidence(ctx context.Context, l *layout.Layout, step *layout.Step, candidates []*link.Entry) (*StepResult, *link.Link, error) {
	if len(candidates) == 0 {
		return nil, nil, newError(KindMissingLink, "LATCH-VER-200", fmt.Sprintf("no link evidence for step %q", step.Name))
	}

	type acceptedEntry struct {
		cid  string
		body *link.Link
	}
	bySigner := map[string]acceptedEntry{}
	for _, e := range candidates {
		keyid, err := authenticateEntry(ctx, l, step, e)
		if err != nil {
			return nil, nil, err
		}
		cid, err := entryCID(e)
		if err != nil {
			return nil, nil, wrapError(KindInternal, "LATCH-VER-001", "link CID", err)
		}
		if _, dup := bySigner[keyid]; !dup {
			bySigner[keyid] = acceptedEntry{cid: cid, body: e.Link}
		}
	}

	threshold := step.EffectiveThreshold()
	if len(bySigner) < threshold {
		return nil, nil, newError(KindThreshold, "LATCH-VER-202",
			fmt.Sprintf("step %q: %d distinct authorized signer(s), threshold is %d", step.Name, len(bySigner), threshold))
	}

	signers := make([]string, 0, len(bySigner))
	for keyid := range bySigner {
		signers = append(signers, keyid)
	}
	sort.Strings(signers)

	sr := &StepResult{Name: step.Name}
	var ref *link.Link
	var refBytes []byte
	for _, keyid := range signers {
		ae := bySigner[keyid]
		enc, err := cjson.EncodeCanonical(ae.body)
		if err != nil {
			return nil, nil, wrapError(KindInternal, "LATCH-VER-001", "canonicalize link", err)
		}
		if ref == nil {
			ref = ae.body
			refBytes = enc
		} else if string(enc) != string(refBytes) {
			return nil, nil, newError(KindThreshold, "LATCH-VER-203",
				fmt.Sprintf("step %q: signers disagree on the recorded evidence", step.Name))
		}
		sr.SignedBy = append(sr.SignedBy, keyid)
		sr.LinkCIDs = append(sr.LinkCIDs, ae.cid)
	}
	return sr, ref, nil
}

// authenticateEntry returns the keyid of the authorized step key that
// verifies the entry's signature.
func authenticateEntry(ctx context.Context, l *layout.Layout, step *layout.Step, e *link.Entry) (string, error) {
	for _, keyid := range step.PubKeys {
		k := l.Keys[keyid]
		if k == nil {
			continue
		}
		if e.DSSE != nil {
			if _, err := metablock.VerifyDSSE(ctx, e.DSSE, k); err == nil {
				return keyid, nil
			}
			continue
		}
		if err := e.Envelope.VerifySignature(k); err == nil {
			return keyid, nil
		}
	}
	return "", newError(KindUnauthorizedSigner, "LATCH-VER-201",
		fmt.Sprintf("step %q: %s is not signed by any authorized key", step.Name, e.Path))
}

func entryCID(e *link.Entry) (string, error) {
	if e.DSSE != nil {
		return cidutil.CIDv1RawSHA256(e.DSSE), nil
	}
	return e.Envelope.CID()
}
