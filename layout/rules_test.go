package layout

import "testing"

func TestParseRuleSimpleVerbs(t *testing.T) {
	for _, verb := range []string{"CREATE", "DELETE", "MODIFY", "ALLOW", "DISALLOW", "REQUIRE"} {
		r, err := ParseRule([]string{verb, "dist/*"})
		if err != nil {
			t.Fatalf("%s: %v", verb, err)
		}
		if r.Kind != RuleKind(verb) || r.Pattern != "dist/*" {
			t.Fatalf("%s parsed as %+v", verb, r)
		}
	}
	// Keywords are case-insensitive.
	r, err := ParseRule([]string{"allow", "*"})
	if err != nil {
		t.Fatalf("lowercase allow: %v", err)
	}
	if r.Kind != RuleAllow {
		t.Fatalf("lowercase allow parsed as %q", r.Kind)
	}
}

func TestParseMatchRule(t *testing.T) {
	r, err := ParseRule([]string{"MATCH", "app.tar.gz", "IN", "dist", "WITH", "PRODUCTS", "IN", "out", "FROM", "build"})
	if err != nil {
		t.Fatalf("ParseRule: %v", err)
	}
	want := Rule{
		Kind:      RuleMatch,
		Pattern:   "app.tar.gz",
		SrcPrefix: "dist",
		DstPrefix: "out",
		With:      WithProducts,
		FromStep:  "build",
	}
	if *r != want {
		t.Fatalf("parsed %+v, want %+v", *r, want)
	}

	r, err = ParseRule([]string{"MATCH", "*", "WITH", "MATERIALS", "FROM", "checkout"})
	if err != nil {
		t.Fatalf("ParseRule: %v", err)
	}
	if r.SrcPrefix != "" || r.DstPrefix != "" || r.With != WithMaterials {
		t.Fatalf("parsed %+v", *r)
	}
}

func TestParseRuleRejectsMalformed(t *testing.T) {
	bad := [][]string{
		{},
		{"FROB", "x"},
		{"CREATE"},
		{"CREATE", "a", "b"},
		{"CREATE", ""},
		{"MATCH", "x"},
		{"MATCH", "x", "WITH", "SIDECARS", "FROM", "s"},
		{"MATCH", "x", "WITH", "PRODUCTS"},
		{"MATCH", "x", "WITH", "PRODUCTS", "FROM"},
		{"MATCH", "", "WITH", "PRODUCTS", "FROM", "s"},
		{"MATCH", "x", "WITH", "PRODUCTS", "FROM", ""},
	}
	for _, tokens := range bad {
		if _, err := ParseRule(tokens); err == nil {
			t.Fatalf("ParseRule accepted %v", tokens)
		}
	}
}

func TestRulePrefixHandling(t *testing.T) {
	r := &Rule{Kind: RuleMatch, Pattern: "*.tar.gz", SrcPrefix: "dist/", DstPrefix: "out"}

	if !r.MatchesPattern("app.tar.gz") {
		t.Fatal("pattern did not match app.tar.gz")
	}
	if r.MatchesPattern("dist/app.tar.gz") {
		t.Fatal("glob must not cross path separators")
	}

	stripped, ok := r.DereferenceSrc("dist/app.tar.gz")
	if !ok || stripped != "app.tar.gz" {
		t.Fatalf("DereferenceSrc = %q, %v", stripped, ok)
	}
	if _, ok := r.DereferenceSrc("other/app.tar.gz"); ok {
		t.Fatal("DereferenceSrc applied to path outside prefix")
	}
	if got := r.TargetPath("app.tar.gz"); got != "out/app.tar.gz" {
		t.Fatalf("TargetPath = %q", got)
	}
}
