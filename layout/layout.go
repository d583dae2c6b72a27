// Package layout implements the supply-chain policy document: an expiring,
// signable declaration of pipeline steps, the keys authorized to attest to
// each, and the artifact flow expected between them.
package layout

import (
	"errors"
	"fmt"
	"time"

	"xdao.co/latch/keys"
	"xdao.co/latch/metablock"
)

// Document type tags.
const (
	TypeLayout     = "layout"
	TypeStep       = "step"
	TypeInspection = "inspection"
)

// Layout is the signed policy body. Keys is the trust registry for link
// signatures only; the layout's own signature is always checked against
// keys supplied out-of-band.
type Layout struct {
	Type    string               `json:"_type"`
	Expires string               `json:"expires"`
	Readme  string               `json:"readme,omitempty"`
	Keys    map[string]*keys.Key `json:"keys"`
	Steps   []*Step              `json:"steps"`
	Inspect []*Inspection        `json:"inspect,omitempty"`
}

// Step declares one required pipeline step. Steps are totally ordered by
// their position in Layout.Steps; verification walks them in sequence.
type Step struct {
	Type              string     `json:"_type"`
	Name              string     `json:"name"`
	PubKeys           []string   `json:"pubkeys"`
	ExpectedMaterials [][]string `json:"expected_materials"`
	ExpectedProducts  [][]string `json:"expected_products"`
	ExpectedCommand   []string   `json:"expected_command,omitempty"`
	Threshold         int        `json:"threshold,omitempty"`
}

// Inspection declares a command the verifier itself runs, with rules applied
// to the files it reads and leaves behind.
type Inspection struct {
	Type              string     `json:"_type"`
	Name              string     `json:"name"`
	Run               []string   `json:"run"`
	ExpectedMaterials [][]string `json:"expected_materials"`
	ExpectedProducts  [][]string `json:"expected_products"`
}

// FromMetablock decodes and validates the layout carried by an envelope.
func FromMetablock(m *metablock.Metablock) (*Layout, error) {
	var l Layout
	if err := m.DecodeSigned(&l); err != nil {
		return nil, err
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return &l, nil
}

// Validate checks structural invariants: type tags, parseable expiry,
// unique non-empty step and inspection names, well-formed rules, sane
// thresholds.
func (l *Layout) Validate() error {
	if l.Type != TypeLayout {
		return fmt.Errorf("unexpected _type %q (want %q)", l.Type, TypeLayout)
	}
	if l.Expires == "" {
		return errors.New("layout has no expiration")
	}
	if _, err := l.ExpiresAt(); err != nil {
		return err
	}
	if len(l.Steps) == 0 {
		return errors.New("layout declares no steps")
	}

	seen := make(map[string]bool, len(l.Steps)+len(l.Inspect))
	for i, s := range l.Steps {
		if s == nil {
			return fmt.Errorf("step %d is null", i)
		}
		if s.Type != "" && s.Type != TypeStep {
			return fmt.Errorf("step %d: unexpected _type %q", i, s.Type)
		}
		if s.Name == "" {
			return fmt.Errorf("step %d has no name", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate step name %q", s.Name)
		}
		seen[s.Name] = true
		if s.Threshold < 0 {
			return fmt.Errorf("step %q: negative threshold", s.Name)
		}
		if err := validateRuleSet(s.ExpectedMaterials); err != nil {
			return fmt.Errorf("step %q expected_materials: %w", s.Name, err)
		}
		if err := validateRuleSet(s.ExpectedProducts); err != nil {
			return fmt.Errorf("step %q expected_products: %w", s.Name, err)
		}
	}

	for i, ins := range l.Inspect {
		if ins == nil {
			return fmt.Errorf("inspection %d is null", i)
		}
		if ins.Type != "" && ins.Type != TypeInspection {
			return fmt.Errorf("inspection %d: unexpected _type %q", i, ins.Type)
		}
		if ins.Name == "" {
			return fmt.Errorf("inspection %d has no name", i)
		}
		if seen[ins.Name] {
			return fmt.Errorf("duplicate name %q", ins.Name)
		}
		seen[ins.Name] = true
		if len(ins.Run) == 0 {
			return fmt.Errorf("inspection %q has no command", ins.Name)
		}
		if err := validateRuleSet(ins.ExpectedMaterials); err != nil {
			return fmt.Errorf("inspection %q expected_materials: %w", ins.Name, err)
		}
		if err := validateRuleSet(ins.ExpectedProducts); err != nil {
			return fmt.Errorf("inspection %q expected_products: %w", ins.Name, err)
		}
	}
	return nil
}

func validateRuleSet(ruleSet [][]string) error {
	for i, tokens := range ruleSet {
		if _, err := ParseRule(tokens); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return nil
}

// ExpiresAt parses the layout expiration timestamp (RFC3339).
func (l *Layout) ExpiresAt() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, l.Expires)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid expiration %q: %w", l.Expires, err)
	}
	return t, nil
}

// Expired reports whether the layout is expired at now.
func (l *Layout) Expired(now time.Time) (bool, error) {
	t, err := l.ExpiresAt()
	if err != nil {
		return false, err
	}
	return now.After(t), nil
}

// StepByName returns the named step, or nil.
func (l *Layout) StepByName(name string) *Step {
	for _, s := range l.Steps {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// EffectiveThreshold is the number of distinct authorized signers a step
// requires; unset means 1.
func (s *Step) EffectiveThreshold() int {
	if s.Threshold < 1 {
		return 1
	}
	return s.Threshold
}
