// Package summary emits a signed record of a passing verification so
// downstream consumers can trust the outcome without re-running it.
package summary

import (
	"fmt"
	"time"

	"xdao.co/latch/keys"
	"xdao.co/latch/metablock"
	"xdao.co/latch/verify"
)

// TypeSummary tags a verification summary payload.
const TypeSummary = "verification-summary"

// ResultPassed is the only result a summary is ever written for; failed
// runs surface as errors, not as signed artifacts.
const ResultPassed = "PASSED"

// Summary is the signed body: which layout was verified, what evidence was
// accepted per step, who verified, and when.
type Summary struct {
	Type       string              `json:"_type"`
	Result     string              `json:"result"`
	LayoutCID  string              `json:"layout_cid"`
	Steps      []verify.StepResult `json:"steps"`
	VerifierID string              `json:"verifier_keyid"`
	Timestamp  string              `json:"timestamp"`
	// Supersedes, when set, is the CID of an earlier summary for the same
	// layout that this one replaces.
	Supersedes string `json:"supersedes,omitempty"`
}

// New builds and signs a summary for a passing verification result.
func New(res *verify.Result, verifierKey *keys.Key, now time.Time) (*metablock.Metablock, error) {
	return build(res, verifierKey, now, "")
}

// Supersede builds and signs a summary that replaces old (a prior summary
// envelope for the same layout by the same verifier).
func Supersede(res *verify.Result, verifierKey *keys.Key, now time.Time, old *metablock.Metablock) (*metablock.Metablock, error) {
	oldCID, err := old.CID()
	if err != nil {
		return nil, err
	}
	m, err := build(res, verifierKey, now, oldCID)
	if err != nil {
		return nil, err
	}
	if err := ValidateSupersession(m, old); err != nil {
		return nil, err
	}
	return m, nil
}

func build(res *verify.Result, verifierKey *keys.Key, now time.Time, supersedes string) (*metablock.Metablock, error) {
	if res == nil {
		return nil, fmt.Errorf("nil verification result")
	}
	pub, err := verifierKey.Public()
	if err != nil {
		return nil, err
	}
	if now.IsZero() {
		now = time.Now()
	}
	s := &Summary{
		Type:       TypeSummary,
		Result:     ResultPassed,
		LayoutCID:  res.LayoutCID,
		Steps:      res.Steps,
		VerifierID: pub.KeyID,
		Timestamp:  now.UTC().Format(time.RFC3339),
		Supersedes: supersedes,
	}
	m, err := metablock.New(s)
	if err != nil {
		return nil, err
	}
	if err := m.Sign(verifierKey); err != nil {
		return nil, err
	}
	return m, nil
}

// ValidateSupersession checks that newEnv replaces oldEnv: distinct
// envelopes, the new summary names the old one's CID, and both bind the
// same layout and verifier. Signature checks stay with the caller.
func ValidateSupersession(newEnv, oldEnv *metablock.Metablock) error {
	oldCID, err := oldEnv.CID()
	if err != nil {
		return err
	}
	newCID, err := newEnv.CID()
	if err != nil {
		return err
	}
	if newCID == oldCID {
		return fmt.Errorf("supersession invalid: new summary identical to old")
	}

	var oldSum, newSum Summary
	if err := oldEnv.DecodeSigned(&oldSum); err != nil {
		return err
	}
	if err := newEnv.DecodeSigned(&newSum); err != nil {
		return err
	}
	if newSum.Supersedes == "" {
		return fmt.Errorf("supersession invalid: new summary declares no supersedes CID")
	}
	if newSum.Supersedes != oldCID {
		return fmt.Errorf("supersession invalid: supersedes=%q does not match old CID=%q", newSum.Supersedes, oldCID)
	}
	if newSum.LayoutCID != oldSum.LayoutCID {
		return fmt.Errorf("supersession invalid: layout mismatch old=%q new=%q", oldSum.LayoutCID, newSum.LayoutCID)
	}
	if newSum.VerifierID != oldSum.VerifierID {
		return fmt.Errorf("supersession invalid: verifier mismatch old=%q new=%q", oldSum.VerifierID, newSum.VerifierID)
	}
	return nil
}

// Write signs and writes a summary file for res.
func Write(path string, res *verify.Result, verifierKey *keys.Key) error {
	m, err := New(res, verifierKey, time.Time{})
	if err != nil {
		return err
	}
	return metablock.Dump(m, path)
}

// Read loads a summary file, verifies its signature with pub, and decodes
// the body.
func Read(path string, pub *keys.Key) (*Summary, error) {
	m, err := metablock.Load(path)
	if err != nil {
		return nil, err
	}
	if err := m.VerifySignature(pub); err != nil {
		return nil, err
	}
	var s Summary
	if err := m.DecodeSigned(&s); err != nil {
		return nil, err
	}
	if s.Type != TypeSummary {
		return nil, fmt.Errorf("unexpected _type %q (want %q)", s.Type, TypeSummary)
	}
	return &s, nil
}
