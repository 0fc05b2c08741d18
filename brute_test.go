package souper

// bruteSolver is the exhaustive-evaluation oracle the tests run against.
// It enumerates every assignment of every variable, so it is sound and
// complete for the tiny widths used here.
type bruteSolver struct{}

func bruteVars(rep *ParsedReplacement) []*Inst {
	vars := make([]*Inst, 0)
	for _, i := range CollectInsts(rep.roots()...) {
		if i.IsVar() {
			vars = append(vars, i)
		}
	}
	return vars
}

// forEachAssignment invokes fn for every assignment of vars. fn returning
// false stops the enumeration.
func forEachAssignment(vars []*Inst, fn func(ValueCache) bool) {
	vals := make(ValueCache, len(vars))
	var rec func(idx int) bool
	rec = func(idx int) bool {
		if idx == len(vars) {
			return fn(vals)
		}
		v := vars[idx]
		for x := uint64(0); x < uint64(1)<<v.Width; x++ {
			vals[v] = MakeBVConst(int64(x), v.Width)
			if !rec(idx + 1) {
				return false
			}
		}
		return true
	}
	rec(0)
}

// guardHolds evaluates the rule's path conditions and variable facts under
// vals. Evaluation errors count as a failed guard.
func guardHolds(rep *ParsedReplacement, vals ValueCache) bool {
	for v, f := range rep.Facts {
		val, ok := vals[v]
		if !ok || !f.Holds(val) {
			return false
		}
	}
	pcHolds := func(pc PathCondition) bool {
		l, err := Evaluate(pc.LHS, vals)
		if err != nil {
			return false
		}
		r, err := Evaluate(pc.RHS, vals)
		if err != nil {
			return false
		}
		eq, err := l.Eq(r)
		return err == nil && eq
	}
	for _, pc := range rep.PCs {
		if !pcHolds(pc) {
			return false
		}
	}
	for _, bpc := range rep.BPCs {
		if !pcHolds(bpc) {
			return false
		}
	}
	return true
}

func (bruteSolver) IsValid(rep *ParsedReplacement) (bool, []ValueCache, error) {
	var cexs []ValueCache
	forEachAssignment(bruteVars(rep), func(vals ValueCache) bool {
		if !guardHolds(rep, vals) {
			return true
		}
		lv, err := Evaluate(rep.Mapping.LHS, vals)
		if err != nil {
			return true
		}
		rv, err := Evaluate(rep.Mapping.RHS, vals)
		if err != nil {
			return true
		}
		if eq, err := lv.Eq(rv); err == nil && !eq {
			cex := make(ValueCache, len(vals))
			for v, val := range vals {
				cex[v] = val.Copy()
			}
			cexs = append(cexs, cex)
			if len(cexs) >= maxCounterexamples {
				return false
			}
		}
		return true
	})
	return len(cexs) == 0, cexs, nil
}

func (s bruteSolver) AbstractPrecondition(rep *ParsedReplacement) (*PreconditionResult, error) {
	valid, _, err := s.IsValid(rep)
	if err != nil {
		return nil, err
	}
	if valid {
		return &PreconditionResult{ValidAsIs: true}, nil
	}

	vars := VariablesFor(rep.Mapping.LHS)
	var seeds []ValueCache
	forEachAssignment(bruteVars(rep), func(vals ValueCache) bool {
		if !guardHolds(rep, vals) {
			return true
		}
		lv, err := Evaluate(rep.Mapping.LHS, vals)
		if err != nil {
			return true
		}
		rv, err := Evaluate(rep.Mapping.RHS, vals)
		if err != nil {
			return true
		}
		if eq, err := lv.Eq(rv); err == nil && eq {
			seed := make(ValueCache, len(vals))
			for v, val := range vals {
				seed[v] = val.Copy()
			}
			seeds = append(seeds, seed)
		}
		return len(seeds) < maxWitnessSeeds
	})

	pr := &PreconditionResult{}
	seenKB := make(map[string]bool)
	for _, seed := range seeds {
		kbs := make(map[*Inst]KnownBits)
		for _, v := range vars {
			if val, ok := seed[v]; ok {
				kbs[v] = FullyKnown(val)
			}
		}
		if len(kbs) == 0 {
			continue
		}
		ok, err := validWithKB(s, rep, kbs)
		if err != nil || !ok {
			continue
		}
		relaxKnownBits(s, rep, vars, kbs)

		disjunct := make(map[*Inst]KnownBits)
		for v, kb := range kbs {
			if kb.Zero.IsZero() && kb.One.IsZero() {
				continue
			}
			disjunct[v] = kb
		}
		if len(disjunct) == 0 {
			continue
		}
		key := kbKey(disjunct)
		if !seenKB[key] {
			seenKB[key] = true
			pr.KBResults = append(pr.KBResults, disjunct)
		}
	}
	return pr, nil
}
