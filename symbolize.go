package souper

import (
	"sort"
)

// Utility score of a candidate that needs no precondition at all.
const symbolizeSentinelUtility = 1000

// SymbolizeOptions configures the constant generalization pass.
type SymbolizeOptions struct {
	// NumInsts bounds the size of enumerated right-hand-side expressions.
	NumInsts int
	// NoDataflow disables precondition inference on constant-free
	// candidates; such candidates are then kept only if valid as-is.
	NoDataflow bool
}

// SymbolizeAndGeneralize is the constant generalization pass. Literal
// constants on the left-hand side are replaced by symbolic variables, one at
// a time and then all at once, and for each subset the pass searches for a
// right-hand side expressed in terms of those symbols. Candidates are pooled
// across subsets without deduplication.
func SymbolizeAndGeneralize(ic *InstContext, s Solver, enum ExprEnumerator, cs ConstSynthesizer,
	input *ParsedReplacement, opts SymbolizeOptions) ([]*ParsedReplacement, error) {

	lhsConsts := FindInsts(input.Mapping.LHS, (*Inst).IsConst)
	rhsConsts := FindInsts(input.Mapping.RHS, (*Inst).IsConst)

	var results []*ParsedReplacement
	for _, c := range lhsConsts {
		if err := symbolizeSubset(ic, s, enum, cs, input, []*Inst{c}, rhsConsts, opts, &results); err != nil {
			return nil, err
		}
	}
	if len(lhsConsts) > 1 {
		if err := symbolizeSubset(ic, s, enum, cs, input, lhsConsts, rhsConsts, opts, &results); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// symbolizeSubset generalizes one subset of left-hand-side constants. The
// first right-hand-side constant is the synthesis target; its replacement is
// searched among expressions over the symbolized constants. Candidates whose
// holes were solved are emitted first, then the constant-free candidates
// that verify without any precondition, best utility first.
func symbolizeSubset(ic *InstContext, s Solver, enum ExprEnumerator, cs ConstSynthesizer,
	input *ParsedReplacement, lhsConsts, rhsConsts []*Inst, opts SymbolizeOptions,
	results *[]*ParsedReplacement) error {

	if len(lhsConsts) == 0 || len(rhsConsts) == 0 {
		debugf(3, "; nothing to symbolize")
		return nil
	}

	instCache := make(map[*Inst]*Inst)
	fakeConsts := make([]*Inst, len(lhsConsts))
	for i, c := range lhsConsts {
		fakeConsts[i] = ic.CreateVar(c.Width, ic.FreshName("fakeconst_"))
		instCache[c] = fakeConsts[i]
	}

	guesses, err := enum.GenerateExprs(ic, opts.NumInsts, fakeConsts, rhsConsts[0].Width)
	if err != nil {
		return err
	}

	lhs, err := ic.GetInstCopy(input.Mapping.LHS, instCache, nil)
	if err != nil {
		return err
	}
	pcs, bpcs, err := copyConditions(ic, input, instCache)
	if err != nil {
		return err
	}

	// candidates with constant holes: solve the holes, emit on success
	var withoutConsts []*Inst
	for _, guess := range guesses {
		holes := findReservedConsts(guess)
		if len(holes) == 0 {
			withoutConsts = append(withoutConsts, guess)
			continue
		}
		rhs, err := substituteGuess(ic, input.Mapping.RHS, instCache, rhsConsts[0], guess)
		if err != nil {
			return err
		}
		cand := &ParsedReplacement{
			Mapping: InstMapping{LHS: lhs, RHS: rhs},
			PCs:     pcs,
			BPCs:    bpcs,
			Facts:   input.Facts,
		}
		constMap, err := cs.Synthesize(s, ic, cand, holes, 30, 10, true)
		if err != nil {
			debugf(3, "; constant synthesis failed: %v", err)
			continue
		}
		solved, err := ic.GetInstCopy(rhs, make(map[*Inst]*Inst), constMap)
		if err != nil {
			return err
		}
		*results = append(*results, &ParsedReplacement{
			Mapping: InstMapping{LHS: lhs, RHS: solved},
			PCs:     pcs,
			BPCs:    bpcs,
			Facts:   input.Facts,
		})
	}

	// constant-free candidates: keep the ones needing no precondition
	type scoredGuess struct {
		rhs     *Inst
		found   bool
		pre     []map[*Inst]KnownBits
		utility int
	}
	scored := make([]scoredGuess, 0, len(withoutConsts))
	for _, guess := range withoutConsts {
		rhs, err := substituteGuess(ic, input.Mapping.RHS, instCache, rhsConsts[0], guess)
		if err != nil {
			return err
		}
		sg := scoredGuess{rhs: rhs}
		if !opts.NoDataflow {
			cand := &ParsedReplacement{
				Mapping: InstMapping{LHS: lhs, RHS: rhs},
				PCs:     pcs,
				BPCs:    bpcs,
				Facts:   input.Facts,
			}
			pr, err := s.AbstractPrecondition(cand)
			if err != nil {
				debugf(2, "; precondition inference failed: %v", err)
			} else if pr.Found() {
				sg.found = true
				sg.pre = pr.KBResults
			}
		}
		if sg.found {
			sg.utility = candidateUtility(sg.pre)
		}
		scored = append(scored, sg)
	}
	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].utility > scored[b].utility
	})
	for _, sg := range scored {
		if sg.found && len(sg.pre) == 0 {
			*results = append(*results, &ParsedReplacement{
				Mapping: InstMapping{LHS: lhs, RHS: sg.rhs},
				PCs:     pcs,
				BPCs:    bpcs,
				Facts:   input.Facts,
			})
		}
	}
	return nil
}

// candidateUtility scores a constant-free candidate by how weak its inferred
// preconditions are: each disjunct contributes the number of unknown bits
// across its known-bits facts, so candidates constraining fewer bits rank
// higher. A candidate needing no precondition at all gets the sentinel.
func candidateUtility(pre []map[*Inst]KnownBits) int {
	if len(pre) == 0 {
		return symbolizeSentinelUtility
	}
	utility := 0
	for _, disjunct := range pre {
		for _, kb := range disjunct {
			w := int(kb.Width())
			utility += w - int(kb.Zero.CountPopulation())
			utility += w - int(kb.One.CountPopulation())
		}
	}
	return utility
}

// substituteGuess rewrites the rule's right-hand side with the target
// constant replaced by the guessed expression, sharing the base substitution.
func substituteGuess(ic *InstContext, rhs *Inst, base map[*Inst]*Inst, target, guess *Inst) (*Inst, error) {
	cache := make(map[*Inst]*Inst, len(base)+1)
	for k, v := range base {
		cache[k] = v
	}
	cache[target] = guess
	return ic.GetInstCopy(rhs, cache, nil)
}

// copyConditions rewrites the rule's conditions through the substitution so
// their constants are symbolized consistently with the mapping.
func copyConditions(ic *InstContext, input *ParsedReplacement, instCache map[*Inst]*Inst) ([]PathCondition, []PathCondition, error) {
	var pcs, bpcs []PathCondition
	for _, pc := range input.PCs {
		l, err := ic.GetInstCopy(pc.LHS, instCache, nil)
		if err != nil {
			return nil, nil, err
		}
		r, err := ic.GetInstCopy(pc.RHS, instCache, nil)
		if err != nil {
			return nil, nil, err
		}
		pcs = append(pcs, PathCondition{LHS: l, RHS: r})
	}
	for _, bpc := range input.BPCs {
		l, err := ic.GetInstCopy(bpc.LHS, instCache, nil)
		if err != nil {
			return nil, nil, err
		}
		r, err := ic.GetInstCopy(bpc.RHS, instCache, nil)
		if err != nil {
			return nil, nil, err
		}
		bpcs = append(bpcs, PathCondition{LHS: l, RHS: r})
	}
	return pcs, bpcs, nil
}
