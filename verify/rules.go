package verify

import (
	"context"
	"fmt"

	"xdao.co/latch/artifact"
	"xdao.co/latch/layout"
	"xdao.co/latch/link"
)

// verifyChainOfCustody checks hand-off between consecutive steps: any
// artifact that leaves step N as a product and enters step N+1 as a
// material must carry the same digests in both links.
func verifyChainOfCustody(l *layout.Layout, accepted map[string]*link.Link) error {
	for i := 0; i+1 < len(l.Steps); i++ {
		up, down := l.Steps[i], l.Steps[i+1]
		prod := accepted[up.Name].Products
		mat := accepted[down.Name].Materials
		for _, name := range artifact.Names(prod) {
			got, ok := mat[name]
			if !ok {
				continue
			}
			if err := artifact.Match(prod[name], got); err != nil {
				detail := fmt.Sprintf("artifact %q changed between steps %q and %q", name, up.Name, down.Name)
				if produced, perr := artifact.Canonical(prod[name]); perr == nil {
					if consumed, cerr := artifact.Canonical(got); cerr == nil {
						detail = fmt.Sprintf("%s (%q produced %s, %q consumed %s)",
							detail, up.Name, produced, down.Name, consumed)
					}
				}
				return wrapError(KindDigestMismatch, "LATCH-VER-300", detail, err)
			}
		}
	}
	return nil
}

// applyRuleSets runs one step's (or inspection's) material and product rule
// lists against its accepted link.
func applyRuleSets(owner string, materialRules, productRules [][]string, ref *link.Link, accepted map[string]*link.Link) error {
	mr, err := layout.ParseRules(materialRules)
	if err != nil {
		return wrapError(KindParse, "LATCH-VER-100", fmt.Sprintf("%s: material rules", owner), err)
	}
	pr, err := layout.ParseRules(productRules)
	if err != nil {
		return wrapError(KindParse, "LATCH-VER-100", fmt.Sprintf("%s: product rules", owner), err)
	}
	if err := applyRules(owner, "materials", mr, ref.Materials, ref, accepted); err != nil {
		return err
	}
	return applyRules(owner, "products", pr, ref.Products, ref, accepted)
}

// applyRules consumes artifacts from the side's queue rule by rule, in
// declaration order. Artifacts left unconsumed at the end are tolerated;
// a layout that wants to forbid strays ends its list with DISALLOW *.
func applyRules(owner, side string, rules []*layout.Rule, subject map[string]artifact.DigestSet, ref *link.Link, accepted map[string]*link.Link) error {
	queue := artifact.Names(subject)
	for _, r := range rules {
		var err error
		queue, err = applyRule(owner, side, r, queue, subject, ref, accepted)
		if err != nil {
			return err
		}
	}
	return nil
}

func applyRule(owner, side string, r *layout.Rule, queue []string, subject map[string]artifact.DigestSet, ref *link.Link, accepted map[string]*link.Link) ([]string, error) {
	switch r.Kind {
	case layout.RuleMatch:
		return applyMatchRule(owner, side, r, queue, subject, accepted)
	case layout.RuleRequire:
		for _, p := range queue {
			if r.MatchesPattern(p) {
				return queue, nil
			}
		}
		return nil, newError(KindRule, "LATCH-VER-310",
			fmt.Sprintf("%s %s: REQUIRE %q not satisfied", owner, side, r.Pattern))
	case layout.RuleDisallow:
		for _, p := range queue {
			if r.MatchesPattern(p) {
				return nil, newError(KindRule, "LATCH-VER-311",
					fmt.Sprintf("%s %s: %q disallowed by DISALLOW %q", owner, side, p, r.Pattern))
			}
		}
		return queue, nil
	case layout.RuleAllow:
		return remove(queue, func(p string) bool { return r.MatchesPattern(p) }), nil
	case layout.RuleCreate:
		return remove(queue, func(p string) bool {
			return r.MatchesPattern(p) && inSet(ref.Products, p) && !inSet(ref.Materials, p)
		}), nil
	case layout.RuleDelete:
		return remove(queue, func(p string) bool {
			return r.MatchesPattern(p) && inSet(ref.Materials, p) && !inSet(ref.Products, p)
		}), nil
	case layout.RuleModify:
		return remove(queue, func(p string) bool {
			if !r.MatchesPattern(p) || !inSet(ref.Materials, p) || !inSet(ref.Products, p) {
				return false
			}
			return artifact.Match(ref.Materials[p], ref.Products[p]) != nil
		}), nil
	default:
		return nil, newError(KindInternal, "LATCH-VER-001", fmt.Sprintf("unhandled rule verb %q", r.Kind))
	}
}

// applyMatchRule consumes queue items whose digests agree with the source
// step's link. A digest disagreement is a hard failure, not a silent
// non-consumption: the caller asked for exactly this artifact to flow
// through, so a changed digest is tampering evidence.
func applyMatchRule(owner, side string, r *layout.Rule, queue []string, subject map[string]artifact.DigestSet, accepted map[string]*link.Link) ([]string, error) {
	src := accepted[r.FromStep]
	if src == nil {
		return nil, newError(KindRule, "LATCH-VER-320",
			fmt.Sprintf("%s %s: MATCH refers to unknown step %q", owner, side, r.FromStep))
	}
	dest := src.Materials
	if r.With == layout.WithProducts {
		dest = src.Products
	}

	var rest []string
	for _, p := range queue {
		stripped, ok := r.DereferenceSrc(p)
		if !ok || !r.MatchesPattern(stripped) {
			rest = append(rest, p)
			continue
		}
		target := r.TargetPath(stripped)
		want, ok := dest[target]
		if !ok {
			rest = append(rest, p)
			continue
		}
		if err := artifact.Match(subject[p], want); err != nil {
			return nil, wrapError(KindDigestMismatch, "LATCH-VER-301",
				fmt.Sprintf("%s %s: %q does not match %s of step %q", owner, side, p, r.With, r.FromStep), err)
		}
	}
	return rest, nil
}

// runInspections executes each declared inspection in the work directory,
// recording the tree before and after, and applies the inspection's rules.
// Inspection links join the accepted set so later rules can MATCH against
// them.
func runInspections(ctx context.Context, l *layout.Layout, opts Options, accepted map[string]*link.Link) error {
	workDir := opts.WorkDir
	if workDir == "" {
		workDir = "."
	}
	for _, ins := range l.Inspect {
		if err := ctx.Err(); err != nil {
			return wrapError(KindInspection, "LATCH-VER-401", fmt.Sprintf("inspection %q canceled", ins.Name), err)
		}
		insLink, err := link.Record(ins.Name, link.RecordOptions{
			MaterialsDir: workDir,
			ProductsDir:  workDir,
			Command:      ins.Run,
			Dir:          workDir,
		})
		if err != nil {
			return wrapError(KindInspection, "LATCH-VER-400", fmt.Sprintf("inspection %q failed to run", ins.Name), err)
		}
		if rv, _ := insLink.ByProducts["return-value"].(int); rv != 0 {
			return newError(KindInspection, "LATCH-VER-402",
				fmt.Sprintf("inspection %q exited with status %d", ins.Name, rv))
		}
		accepted[ins.Name] = insLink
		if err := applyRuleSets(ins.Name, ins.ExpectedMaterials, ins.ExpectedProducts, insLink, accepted); err != nil {
			return err
		}
	}
	return nil
}

func remove(queue []string, match func(string) bool) []string {
	var rest []string
	for _, p := range queue {
		if !match(p) {
			rest = append(rest, p)
		}
	}
	return rest
}

func inSet(m map[string]artifact.DigestSet, p string) bool {
	_, ok := m[p]
	return ok
}
