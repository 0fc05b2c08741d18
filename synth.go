package souper

import (
	"fmt"
)

// synthBinOps are the operators the enumerator builds candidates from.
// Division is excluded: candidates with division holes almost never verify
// and cost the oracle dearly.
var synthBinOps = []Kind{Add, Sub, Mul, And, Or, Xor, Shl, LShr, AShr}

const maxEnumeratedExprs = 300

// EnumerativeSynthesis generates candidate right-hand sides over the given
// inputs, each at most numInsts operators deep, with fresh constant holes as
// leaves. The bare (width-adjusted) inputs are included: they are the
// identity candidates.
type EnumerativeSynthesis struct{}

func (EnumerativeSynthesis) GenerateExprs(ic *InstContext, numInsts int, inputs []*Inst, width uint) ([]*Inst, error) {
	base := make([]*Inst, 0, len(inputs))
	for _, in := range inputs {
		adj, err := adjustWidth(ic, in, width)
		if err != nil {
			return nil, err
		}
		base = append(base, adj)
	}
	if len(base) == 0 {
		return nil, fmt.Errorf("no inputs to enumerate over")
	}

	seen := make(map[*Inst]bool)
	guesses := make([]*Inst, 0)
	add := func(g *Inst) bool {
		if !seen[g] {
			seen[g] = true
			guesses = append(guesses, g)
		}
		return len(guesses) < maxEnumeratedExprs
	}
	for _, b := range base {
		if !add(b) {
			return guesses, nil
		}
	}

	pool := base
	for round := 0; round < numInsts; round++ {
		next := make([]*Inst, 0)
		for _, l := range pool {
			for _, k := range synthBinOps {
				for _, r := range base {
					g, err := ic.GetInst(k, width, []*Inst{l, r})
					if err != nil {
						return nil, err
					}
					next = append(next, g)
					if !add(g) {
						return guesses, nil
					}
				}
				// one hole on the right, and on the left for the
				// non-commutative operators
				g, err := ic.GetInst(k, width, []*Inst{l, ic.createReservedConst(width)})
				if err != nil {
					return nil, err
				}
				next = append(next, g)
				if !add(g) {
					return guesses, nil
				}
				switch k {
				case Sub, Shl, LShr, AShr:
					g, err := ic.GetInst(k, width, []*Inst{ic.createReservedConst(width), l})
					if err != nil {
						return nil, err
					}
					next = append(next, g)
					if !add(g) {
						return guesses, nil
					}
				}
			}
		}
		pool = next
	}
	return guesses, nil
}

// adjustWidth brings in to the requested width, zero-extending or truncating
// as needed.
func adjustWidth(ic *InstContext, in *Inst, width uint) (*Inst, error) {
	switch {
	case in.Width == width:
		return in, nil
	case in.Width < width:
		return ic.GetInst(ZExt, width, []*Inst{in})
	default:
		return ic.GetInst(Trunc, width, []*Inst{in})
	}
}

// CEGISSynthesis solves constant holes by counterexample-guided refinement.
// Each iteration asks the oracle for hole values consistent with the
// counterexamples collected so far, then verifies the fully substituted rule;
// a failed verification contributes fresh counterexamples.
type CEGISSynthesis struct{}

func (CEGISSynthesis) Synthesize(s Solver, ic *InstContext, rep *ParsedReplacement, consts []*Inst,
	maxTries, cexBudget int, avoidNops bool) (map[*Inst]*BVConst, error) {

	if len(consts) == 0 {
		valid, _, err := s.IsValid(rep)
		if err != nil {
			return nil, err
		}
		if !valid {
			return nil, fmt.Errorf("no constants to synthesize and rule is invalid")
		}
		return map[*Inst]*BVConst{}, nil
	}

	var cexs []ValueCache
	var banned []map[*Inst]*BVConst

	for try := 0; try < maxTries; try++ {
		cand, err := proposeConsts(s, ic, rep, consts, cexs, banned)
		if err != nil {
			return nil, err
		}
		if cand == nil {
			return nil, fmt.Errorf("constant synthesis gave up after %d counterexamples", len(cexs))
		}

		if !concreteCheck(rep, cand, cexs) {
			banned = append(banned, cand)
			continue
		}

		sub, err := substituteConsts(ic, rep, cand)
		if err != nil {
			return nil, err
		}
		if avoidNops && sub.Mapping.RHS == sub.Mapping.LHS {
			debugf(2, "; discarding nop assignment")
			banned = append(banned, cand)
			continue
		}
		valid, fresh, err := s.IsValid(sub)
		if err != nil {
			return nil, err
		}
		if valid {
			return cand, nil
		}
		banned = append(banned, cand)
		for _, cex := range fresh {
			cexs = append(cexs, cex)
			if len(cexs) > cexBudget {
				return nil, fmt.Errorf("constant synthesis exceeded counterexample budget")
			}
		}
	}
	return nil, fmt.Errorf("constant synthesis exceeded %d tries", maxTries)
}

// proposeConsts asks the oracle for hole values that make the rule hold on
// every collected counterexample and avoid every banned assignment. The
// query claims "0:i1 == <conjunction>"; any counterexample to that claim is
// an assignment of the holes. Returns nil when no assignment is left.
func proposeConsts(s Solver, ic *InstContext, rep *ParsedReplacement, consts []*Inst,
	cexs []ValueCache, banned []map[*Inst]*BVConst) (map[*Inst]*BVConst, error) {

	conj := ic.GetConstInt(1, 1)
	andBit := func(bit *Inst) (err error) {
		conj, err = ic.GetInst(And, 1, []*Inst{conj, bit})
		return err
	}

	for _, cex := range cexs {
		constMap := make(map[*Inst]*BVConst, len(cex))
		for v, val := range cex {
			constMap[v] = val
		}
		cache := make(map[*Inst]*Inst)
		lhs, err := ic.GetInstCopy(rep.Mapping.LHS, cache, constMap)
		if err != nil {
			return nil, err
		}
		rhs, err := ic.GetInstCopy(rep.Mapping.RHS, cache, constMap)
		if err != nil {
			return nil, err
		}
		bit, err := ic.GetInst(Eq, 1, []*Inst{lhs, rhs})
		if err != nil {
			return nil, err
		}
		if err := andBit(bit); err != nil {
			return nil, err
		}
		for _, pc := range rep.PCs {
			pl, err := ic.GetInstCopy(pc.LHS, cache, constMap)
			if err != nil {
				return nil, err
			}
			pr, err := ic.GetInstCopy(pc.RHS, cache, constMap)
			if err != nil {
				return nil, err
			}
			bit, err := ic.GetInst(Eq, 1, []*Inst{pl, pr})
			if err != nil {
				return nil, err
			}
			if err := andBit(bit); err != nil {
				return nil, err
			}
		}
	}

	for _, ban := range banned {
		differ := ic.GetConstInt(0, 1)
		for _, hole := range consts {
			val, ok := ban[hole]
			if !ok {
				continue
			}
			bit, err := ic.GetInst(Ne, 1, []*Inst{hole, ic.GetConst(val)})
			if err != nil {
				return nil, err
			}
			differ, err = ic.GetInst(Or, 1, []*Inst{differ, bit})
			if err != nil {
				return nil, err
			}
		}
		if err := andBit(differ); err != nil {
			return nil, err
		}
	}

	query := &ParsedReplacement{
		Mapping: InstMapping{LHS: ic.GetConstInt(0, 1), RHS: conj},
		Facts:   make(FactTable),
	}
	valid, models, err := s.IsValid(query)
	if err != nil {
		return nil, err
	}
	if valid || len(models) == 0 {
		return nil, nil
	}

	cand := make(map[*Inst]*BVConst, len(consts))
	for _, hole := range consts {
		if v, ok := models[0][hole]; ok {
			cand[hole] = v.Copy()
		} else {
			cand[hole] = MakeBVConst(0, hole.Width)
		}
	}
	return cand, nil
}

// concreteCheck evaluates the candidate against the stored counterexamples
// before paying for a solver query. Evaluation errors (division by zero on a
// hole value) do not reject the candidate here; the oracle decides.
func concreteCheck(rep *ParsedReplacement, cand map[*Inst]*BVConst, cexs []ValueCache) bool {
	for _, cex := range cexs {
		vals := make(ValueCache, len(cex)+len(cand))
		for v, val := range cex {
			vals[v] = val
		}
		for hole, val := range cand {
			vals[hole] = val
		}
		lv, err := Evaluate(rep.Mapping.LHS, vals)
		if err != nil {
			continue
		}
		rv, err := Evaluate(rep.Mapping.RHS, vals)
		if err != nil {
			continue
		}
		if eq, err := lv.Eq(rv); err == nil && !eq {
			return false
		}
	}
	return true
}

// substituteConsts rewrites the rule with the holes replaced by the given
// constants. Facts carry over: holes never have facts.
func substituteConsts(ic *InstContext, rep *ParsedReplacement, cand map[*Inst]*BVConst) (*ParsedReplacement, error) {
	cache := make(map[*Inst]*Inst)
	lhs, err := ic.GetInstCopy(rep.Mapping.LHS, cache, cand)
	if err != nil {
		return nil, err
	}
	rhs, err := ic.GetInstCopy(rep.Mapping.RHS, cache, cand)
	if err != nil {
		return nil, err
	}
	res := &ParsedReplacement{
		Mapping: InstMapping{LHS: lhs, RHS: rhs},
		Facts:   rep.Facts,
	}
	for _, pc := range rep.PCs {
		pl, err := ic.GetInstCopy(pc.LHS, cache, cand)
		if err != nil {
			return nil, err
		}
		pr, err := ic.GetInstCopy(pc.RHS, cache, cand)
		if err != nil {
			return nil, err
		}
		res.PCs = append(res.PCs, PathCondition{LHS: pl, RHS: pr})
	}
	for _, bpc := range rep.BPCs {
		bl, err := ic.GetInstCopy(bpc.LHS, cache, cand)
		if err != nil {
			return nil, err
		}
		br, err := ic.GetInstCopy(bpc.RHS, cache, cand)
		if err != nil {
			return nil, err
		}
		res.BPCs = append(res.BPCs, PathCondition{LHS: bl, RHS: br})
	}
	return res, nil
}
