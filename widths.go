package souper

import (
	"fmt"
)

// inferWidth computes the result width of k applied to the given operands.
// Only the operators whose width is determined by their operands are
// supported; anything else is an error rather than a guess.
func inferWidth(k Kind, ops []*Inst) (uint, error) {
	switch k {
	case And, Or, Xor, Sub, Mul, Add:
		return ops[0].Width, nil
	case Slt, Sle, Ult, Ule:
		return 1, nil
	default:
		return 0, fmt.Errorf("width inference unimplemented for %s", k)
	}
}

// cloneWithWidth rebuilds the graph under i with the variables resized per
// widthMap and every operator width re-inferred. Literal constants have no
// width-independent meaning, so their presence is an error.
func cloneWithWidth(ic *InstContext, i *Inst, widthMap map[*Inst]uint, cache map[*Inst]*Inst) (*Inst, error) {
	if r, ok := cache[i]; ok {
		return r, nil
	}
	var res *Inst
	switch i.Kind {
	case Var:
		w, ok := widthMap[i]
		if !ok {
			return nil, fmt.Errorf("no target width for %%%s", i.Name)
		}
		res = ic.CreateVar(w, i.Name)
	case Const:
		return nil, fmt.Errorf("cannot resize constant %s", i.Value.value.String())
	default:
		ops := make([]*Inst, len(i.Ops))
		for j, op := range i.Ops {
			opClone, err := cloneWithWidth(ic, op, widthMap, cache)
			if err != nil {
				return nil, err
			}
			ops[j] = opClone
		}
		w, err := inferWidth(i.Kind, ops)
		if err != nil {
			return nil, err
		}
		res, err = ic.GetInst(i.Kind, w, ops)
		if err != nil {
			return nil, err
		}
	}
	cache[i] = res
	return res, nil
}

// GeneralizeBitWidth is the width resweep pass: the rule is re-expressed at
// every width from 1 to 62, with operator widths re-inferred from the
// resized variable. The emitted rules are candidates, not verified facts;
// callers wanting soundness re-check them.
func GeneralizeBitWidth(ic *InstContext, input *ParsedReplacement) ([]*ParsedReplacement, error) {
	vars := VariablesFor(input.Mapping.LHS)
	if len(vars) != 1 {
		return nil, fmt.Errorf("multiple variables unimplemented")
	}

	var results []*ParsedReplacement
	for w := uint(1); w < 63; w++ {
		widthMap := map[*Inst]uint{vars[0]: w}
		cache := make(map[*Inst]*Inst)
		lhs, err := cloneWithWidth(ic, input.Mapping.LHS, widthMap, cache)
		if err != nil {
			return nil, err
		}
		rhs, err := cloneWithWidth(ic, input.Mapping.RHS, widthMap, cache)
		if err != nil {
			return nil, err
		}
		results = append(results, &ParsedReplacement{
			Mapping: InstMapping{LHS: lhs, RHS: rhs},
			Facts:   make(FactTable),
		})
	}
	return results, nil
}
