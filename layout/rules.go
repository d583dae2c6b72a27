package layout

import (
	"fmt"
	"path"
	"strings"
)

// RuleKind identifies one artifact rule verb.
type RuleKind string

const (
	RuleMatch    RuleKind = "MATCH"
	RuleCreate   RuleKind = "CREATE"
	RuleDelete   RuleKind = "DELETE"
	RuleModify   RuleKind = "MODIFY"
	RuleAllow    RuleKind = "ALLOW"
	RuleDisallow RuleKind = "DISALLOW"
	RuleRequire  RuleKind = "REQUIRE"
)

// Sides a MATCH rule can target in the source step's link.
const (
	WithMaterials = "materials"
	WithProducts  = "products"
)

// Rule is a parsed artifact rule. Only MATCH uses the fields past Pattern.
//
//	MATCH <pattern> [IN <srcPrefix>] WITH (MATERIALS|PRODUCTS)
//	      [IN <dstPrefix>] FROM <step>
//	CREATE|DELETE|MODIFY|ALLOW|DISALLOW|REQUIRE <pattern>
type Rule struct {
	Kind      RuleKind
	Pattern   string
	SrcPrefix string
	DstPrefix string
	With      string
	FromStep  string
}

// ParseRule parses one tokenized rule. Keywords are matched
// case-insensitively; patterns and prefixes are taken verbatim.
func ParseRule(tokens []string) (*Rule, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty rule")
	}
	verb := RuleKind(strings.ToUpper(tokens[0]))
	switch verb {
	case RuleCreate, RuleDelete, RuleModify, RuleAllow, RuleDisallow, RuleRequire:
		if len(tokens) != 2 {
			return nil, fmt.Errorf("%s rule wants exactly one pattern, got %d tokens", verb, len(tokens))
		}
		if tokens[1] == "" {
			return nil, fmt.Errorf("%s rule has empty pattern", verb)
		}
		return &Rule{Kind: verb, Pattern: tokens[1]}, nil
	case RuleMatch:
		return parseMatchRule(tokens)
	default:
		return nil, fmt.Errorf("unknown rule verb %q", tokens[0])
	}
}

func parseMatchRule(tokens []string) (*Rule, error) {
	r := &Rule{Kind: RuleMatch}
	if len(tokens) < 2 {
		return nil, fmt.Errorf("MATCH rule truncated")
	}
	r.Pattern = tokens[1]
	if r.Pattern == "" {
		return nil, fmt.Errorf("MATCH rule has empty pattern")
	}
	rest := tokens[2:]

	if len(rest) >= 2 && strings.EqualFold(rest[0], "IN") {
		r.SrcPrefix = rest[1]
		rest = rest[2:]
	}
	if len(rest) < 2 || !strings.EqualFold(rest[0], "WITH") {
		return nil, fmt.Errorf("MATCH rule missing WITH clause")
	}
	switch strings.ToLower(rest[1]) {
	case WithMaterials:
		r.With = WithMaterials
	case WithProducts:
		r.With = WithProducts
	default:
		return nil, fmt.Errorf("MATCH rule: WITH wants MATERIALS or PRODUCTS, got %q", rest[1])
	}
	rest = rest[2:]

	if len(rest) >= 2 && strings.EqualFold(rest[0], "IN") {
		r.DstPrefix = rest[1]
		rest = rest[2:]
	}
	if len(rest) != 2 || !strings.EqualFold(rest[0], "FROM") {
		return nil, fmt.Errorf("MATCH rule missing FROM clause")
	}
	r.FromStep = rest[1]
	if r.FromStep == "" {
		return nil, fmt.Errorf("MATCH rule has empty FROM step")
	}
	return r, nil
}

// ParseRules parses a whole rule set in declaration order.
func ParseRules(ruleSet [][]string) ([]*Rule, error) {
	out := make([]*Rule, 0, len(ruleSet))
	for i, tokens := range ruleSet {
		r, err := ParseRule(tokens)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// MatchesPattern reports whether the slash-normalized artifact path matches
// the rule's glob pattern.
func (r *Rule) MatchesPattern(artifactPath string) bool {
	ok, err := path.Match(r.Pattern, artifactPath)
	return err == nil && ok
}

// DereferenceSrc strips the rule's source prefix from an artifact path,
// returning the path to look up on the destination side and whether the
// prefix applied.
func (r *Rule) DereferenceSrc(artifactPath string) (string, bool) {
	return stripPrefix(artifactPath, r.SrcPrefix)
}

// TargetPath maps a source-side path (already prefix-stripped) into the
// destination link's namespace.
func (r *Rule) TargetPath(stripped string) string {
	if r.DstPrefix == "" {
		return stripped
	}
	return strings.TrimSuffix(r.DstPrefix, "/") + "/" + stripped
}

func stripPrefix(p, prefix string) (string, bool) {
	if prefix == "" {
		return p, true
	}
	prefix = strings.TrimSuffix(prefix, "/") + "/"
	if !strings.HasPrefix(p, prefix) {
		return p, false
	}
	return strings.TrimPrefix(p, prefix), true
}
