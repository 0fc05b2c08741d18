package souper

import (
	"fmt"
)

// InstMapping is the claimed equivalence: LHS may be rewritten to RHS.
type InstMapping struct {
	LHS *Inst
	RHS *Inst
}

// PathCondition constrains a rule to the assignments where LHS == RHS.
// RHS is usually a constant.
type PathCondition struct {
	LHS *Inst
	RHS *Inst
}

// ParsedReplacement is one rewrite rule: a mapping guarded by the
// conjunction of its path conditions and block path conditions, with derived
// variable facts carried in a side table.
type ParsedReplacement struct {
	Mapping InstMapping
	PCs     []PathCondition
	BPCs    []PathCondition
	Facts   FactTable
}

// roots returns every root node of the rule, conditions first, in the order
// the renderer and the traversals use.
func (r *ParsedReplacement) roots() []*Inst {
	res := make([]*Inst, 0, 2+2*len(r.PCs)+2*len(r.BPCs))
	for _, bpc := range r.BPCs {
		res = append(res, bpc.LHS, bpc.RHS)
	}
	for _, pc := range r.PCs {
		res = append(res, pc.LHS, pc.RHS)
	}
	res = append(res, r.Mapping.LHS, r.Mapping.RHS)
	return res
}

// Validate checks the free-variable invariant: every variable reachable from
// the RHS or from a condition must also be reachable from the LHS. Constant
// holes are exempt; they are placeholders the synthesis oracle resolves.
func (r *ParsedReplacement) Validate() error {
	if r.Mapping.LHS == nil || r.Mapping.RHS == nil {
		return fmt.Errorf("incomplete mapping")
	}
	if r.Mapping.LHS.Width != r.Mapping.RHS.Width {
		return fmt.Errorf("mapping widths differ: %d and %d",
			r.Mapping.LHS.Width, r.Mapping.RHS.Width)
	}
	bound := make(map[*Inst]bool)
	for _, v := range VariablesFor(r.Mapping.LHS) {
		bound[v] = true
	}
	check := func(root *Inst, where string) error {
		for _, v := range VariablesFor(root) {
			if !bound[v] && !isReservedConst(v) {
				return fmt.Errorf("%s: variable %%%s not reachable from LHS", where, v.Name)
			}
		}
		return nil
	}
	if err := check(r.Mapping.RHS, "result"); err != nil {
		return err
	}
	for _, pc := range r.PCs {
		if err := check(pc.LHS, "pc"); err != nil {
			return err
		}
		if err := check(pc.RHS, "pc"); err != nil {
			return err
		}
	}
	for _, bpc := range r.BPCs {
		if err := check(bpc.LHS, "blockpc"); err != nil {
			return err
		}
		if err := check(bpc.RHS, "blockpc"); err != nil {
			return err
		}
	}
	return nil
}
