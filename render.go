package souper

import (
	"fmt"
	"strings"
)

// renderContext assigns sequential %N names in definition order, variables
// included, so structurally identical rules render to identical text no
// matter what the variables were called. Render output is the canonical
// text: the minimizer uses it as its memoization and ranking key.
type renderContext struct {
	names map[*Inst]string
	next  int
	b     strings.Builder
}

func newRenderContext() *renderContext {
	return &renderContext{names: make(map[*Inst]string)}
}

// operand renders a reference to an already-defined node, or an inline
// constant.
func (rc *renderContext) operand(i *Inst) string {
	if i.Kind == Const {
		return fmt.Sprintf("%s:i%d", i.Value.value.String(), i.Width)
	}
	return "%" + rc.names[i]
}

// define emits definition lines for every not-yet-defined node under root,
// operands before users.
func (rc *renderContext) define(root *Inst, facts FactTable) {
	type frame struct {
		inst    *Inst
		visited bool
	}
	stack := []frame{{root, false}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := rc.names[f.inst]; ok {
			continue
		}
		if f.inst.Kind == Const {
			continue
		}
		if !f.visited {
			stack = append(stack, frame{f.inst, true})
			for j := len(f.inst.Ops) - 1; j >= 0; j-- {
				stack = append(stack, frame{f.inst.Ops[j], false})
			}
			continue
		}
		name := fmt.Sprintf("%d", rc.next)
		rc.next++
		rc.names[f.inst] = name
		if f.inst.Kind == Var {
			fmt.Fprintf(&rc.b, "%%%s:i%d = var%s\n", name, f.inst.Width, renderFacts(facts[f.inst]))
			continue
		}
		fmt.Fprintf(&rc.b, "%%%s:i%d = %s ", name, f.inst.Width, f.inst.Kind)
		for j, op := range f.inst.Ops {
			if j > 0 {
				rc.b.WriteString(", ")
			}
			rc.b.WriteString(rc.operand(op))
		}
		rc.b.WriteString("\n")
	}
}

func renderFacts(f *VarFacts) string {
	if f == nil {
		return ""
	}
	b := strings.Builder{}
	if f.KB != nil {
		fmt.Fprintf(&b, " (knownBits=%s)", f.KB)
	}
	if f.Range != nil {
		fmt.Fprintf(&b, " (range=%s)", f.Range)
	}
	if f.NonNegative {
		b.WriteString(" (nonNegative)")
	}
	if f.Negative {
		b.WriteString(" (negative)")
	}
	if f.NonZero {
		b.WriteString(" (nonZero)")
	}
	if f.PowerOfTwo {
		b.WriteString(" (powerOfTwo)")
	}
	if f.SignBits > 1 {
		fmt.Fprintf(&b, " (signBits=%d)", f.SignBits)
	}
	return b.String()
}

// Render produces the deterministic canonical text of the rule, in the same
// notation the parser consumes.
func (r *ParsedReplacement) Render() string {
	rc := newRenderContext()
	for _, bpc := range r.BPCs {
		rc.define(bpc.LHS, r.Facts)
		rc.define(bpc.RHS, r.Facts)
		fmt.Fprintf(&rc.b, "blockpc %s %s\n", rc.operand(bpc.LHS), rc.operand(bpc.RHS))
	}
	for _, pc := range r.PCs {
		rc.define(pc.LHS, r.Facts)
		rc.define(pc.RHS, r.Facts)
		fmt.Fprintf(&rc.b, "pc %s %s\n", rc.operand(pc.LHS), rc.operand(pc.RHS))
	}
	rc.define(r.Mapping.LHS, r.Facts)
	fmt.Fprintf(&rc.b, "infer %s\n", rc.operand(r.Mapping.LHS))
	rc.define(r.Mapping.RHS, r.Facts)
	fmt.Fprintf(&rc.b, "result %s\n", rc.operand(r.Mapping.RHS))
	return rc.b.String()
}

func (r *ParsedReplacement) String() string {
	return r.Render()
}
