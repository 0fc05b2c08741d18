package souper

import (
	"sort"
)

// ReduceAndGeneralize is the minimization pass: delta-debugging over the
// rule's instruction DAG. Interior nodes are replaced, one at a time, by
// fresh variables; every replacement that keeps the rule valid is recorded
// and reduced further. The input must be valid to begin with.
//
// Returned rules are deduplicated by their canonical text and sorted
// shortest first.
func ReduceAndGeneralize(ic *InstContext, s Solver, input *ParsedReplacement) ([]*ParsedReplacement, error) {
	valid, _, err := s.IsValid(input)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, errInvalidInput
	}

	var results []*ParsedReplacement
	visited := make(map[string]bool)
	if err := reduceRec(ic, s, input, &results, visited); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	deduped := results[:0]
	for _, r := range results {
		str := r.Render()
		if !seen[str] {
			seen[str] = true
			deduped = append(deduped, r)
		}
	}
	sort.SliceStable(deduped, func(a, b int) bool {
		sa, sb := deduped[a].Render(), deduped[b].Render()
		if len(sa) != len(sb) {
			return len(sa) < len(sb)
		}
		return sa < sb
	})
	return deduped, nil
}

// reduceRec explores every single-node abstraction of input. visited holds
// the canonical text of every rule already expanded: fresh variable names
// are normalized away by rendering, so equal shapes are expanded once no
// matter which path produced them.
func reduceRec(ic *InstContext, s Solver, input *ParsedReplacement,
	results *[]*ParsedReplacement, visited map[string]bool) error {

	str := input.Render()
	if visited[str] {
		return nil
	}
	visited[str] = true

	insts := CollectInsts(input.roots()...)
	if len(insts) <= 1 {
		return nil
	}

	for _, i := range insts {
		if i == input.Mapping.LHS || i == input.Mapping.RHS || i.IsVar() || i.IsConst() {
			continue
		}

		newVar := ic.CreateVar(i.Width, ic.FreshName("newvar"))
		cache := map[*Inst]*Inst{i: newVar}

		reduced, err := copyReplacement(ic, input, cache)
		if err != nil {
			return err
		}

		valid, _, err := s.IsValid(reduced)
		if err != nil {
			return err
		}
		if !valid {
			debugf(2, "; invalid reduction attempt:\n%s", reduced.Render())
			continue
		}
		*results = append(*results, reduced)
		if err := reduceRec(ic, s, reduced, results, visited); err != nil {
			return err
		}
	}
	return nil
}

// copyReplacement rewrites every root of input through the shared
// substitution cache, so a node replaced anywhere is replaced everywhere.
// The fact table carries over: substitution preserves variable identity.
func copyReplacement(ic *InstContext, input *ParsedReplacement, cache map[*Inst]*Inst) (*ParsedReplacement, error) {
	lhs, err := ic.GetInstCopy(input.Mapping.LHS, cache, nil)
	if err != nil {
		return nil, err
	}
	rhs, err := ic.GetInstCopy(input.Mapping.RHS, cache, nil)
	if err != nil {
		return nil, err
	}
	res := &ParsedReplacement{
		Mapping: InstMapping{LHS: lhs, RHS: rhs},
		Facts:   input.Facts,
	}
	for _, pc := range input.PCs {
		l, err := ic.GetInstCopy(pc.LHS, cache, nil)
		if err != nil {
			return nil, err
		}
		r, err := ic.GetInstCopy(pc.RHS, cache, nil)
		if err != nil {
			return nil, err
		}
		res.PCs = append(res.PCs, PathCondition{LHS: l, RHS: r})
	}
	for _, bpc := range input.BPCs {
		l, err := ic.GetInstCopy(bpc.LHS, cache, nil)
		if err != nil {
			return nil, err
		}
		r, err := ic.GetInstCopy(bpc.RHS, cache, nil)
		if err != nil {
			return nil, err
		}
		res.BPCs = append(res.BPCs, PathCondition{LHS: l, RHS: r})
	}
	return res, nil
}
