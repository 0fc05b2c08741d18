package souper

// Generalize is the precondition consumption pass. A rule that is valid
// as-is comes back unchanged; otherwise each inferred known-bits disjunct
// becomes one emitted rule with the facts stamped on its variables. Range
// disjuncts are consulted only when no known-bits disjunct exists.
func Generalize(s Solver, input *ParsedReplacement) ([]*ParsedReplacement, error) {
	pr, err := s.AbstractPrecondition(input)
	if err != nil {
		return nil, err
	}
	if pr.ValidAsIs {
		out := *input
		return []*ParsedReplacement{&out}, nil
	}

	var results []*ParsedReplacement
	if len(pr.KBResults) > 0 {
		for _, disjunct := range pr.KBResults {
			out := *input
			out.Facts = factsWithKB(input.Facts, disjunct)
			results = append(results, &out)
		}
		return results, nil
	}
	for _, disjunct := range pr.CRResults {
		out := *input
		out.Facts = factsWithCR(input.Facts, disjunct)
		results = append(results, &out)
	}
	return results, nil
}

func factsWithKB(base FactTable, kbs map[*Inst]KnownBits) FactTable {
	res := base.Copy()
	for v, kb := range kbs {
		c := kb.Copy()
		res.facts(v).KB = &c
	}
	return res
}

func factsWithCR(base FactTable, crs map[*Inst]ConstantRange) FactTable {
	res := base.Copy()
	for v, cr := range crs {
		c := cr.Copy()
		res.facts(v).Range = &c
	}
	return res
}
