package souper

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aclements/go-z3/z3"
)

const (
	maxCounterexamples = 3
	maxWitnessSeeds    = 4
)

// Z3Solver implements the verification oracle on top of z3. Every query is
// self-contained: the solver is reset, the rule's whole guard (path
// conditions plus variable facts) is asserted, and the DAG is converted with
// a per-query node cache so shared subgraphs convert once.
type Z3Solver struct {
	ctx    *z3.Context
	cfg    *z3.Config
	solver *z3.Solver
}

func NewZ3Solver() *Z3Solver {
	cfg := z3.NewContextConfig()
	ctx := z3.NewContext(cfg)
	return &Z3Solver{
		ctx:    ctx,
		cfg:    cfg,
		solver: z3.NewSolver(ctx),
	}
}

type z3conv struct {
	s     *Z3Solver
	cache map[*Inst]z3.Value
	syms  map[*Inst]z3.BV
}

func (s *Z3Solver) newConv() *z3conv {
	return &z3conv{
		s:     s,
		cache: make(map[*Inst]z3.Value),
		syms:  make(map[*Inst]z3.BV),
	}
}

func (c *z3conv) constBV(v *BVConst) z3.BV {
	return c.s.ctx.FromBigInt(v.value, c.s.ctx.BVSort(int(v.Size))).(z3.BV)
}

func (c *z3conv) convert(i *Inst) z3.BV {
	if v, ok := c.cache[i]; ok {
		return v.(z3.BV)
	}

	var result z3.BV
	switch i.Kind {
	case Var:
		result = c.s.ctx.BVConst(i.Name, int(i.Width))
		c.syms[i] = result
	case Const:
		result = c.constBV(i.Value)
	case ZExt:
		child := c.convert(i.Ops[0])
		result = child.ZeroExtend(int(i.Width - i.Ops[0].Width))
	case SExt:
		child := c.convert(i.Ops[0])
		result = child.SignExtend(int(i.Width - i.Ops[0].Width))
	case Trunc:
		child := c.convert(i.Ops[0])
		result = child.Extract(int(i.Width)-1, 0)
	case Eq, Ne, Ult, Slt, Ule, Sle:
		lhs := c.convert(i.Ops[0])
		rhs := c.convert(i.Ops[1])
		var cond z3.Bool
		switch i.Kind {
		case Eq:
			cond = lhs.Eq(rhs)
		case Ne:
			cond = lhs.NE(rhs)
		case Ult:
			cond = lhs.ULT(rhs)
		case Slt:
			cond = lhs.SLT(rhs)
		case Ule:
			cond = lhs.ULE(rhs)
		case Sle:
			cond = lhs.SLE(rhs)
		}
		one := c.s.ctx.FromInt(1, c.s.ctx.BVSort(1))
		zero := c.s.ctx.FromInt(0, c.s.ctx.BVSort(1))
		result = cond.IfThenElse(one, zero).(z3.BV)
	default:
		lhs := c.convert(i.Ops[0])
		rhs := c.convert(i.Ops[1])
		switch i.Kind {
		case Add:
			result = lhs.Add(rhs)
		case Sub:
			result = lhs.Sub(rhs)
		case Mul:
			result = lhs.Mul(rhs)
		case UDiv:
			result = lhs.UDiv(rhs)
		case SDiv:
			result = lhs.SDiv(rhs)
		case URem:
			result = lhs.URem(rhs)
		case SRem:
			result = lhs.SRem(rhs)
		case And:
			result = lhs.And(rhs)
		case Or:
			result = lhs.Or(rhs)
		case Xor:
			result = lhs.Xor(rhs)
		case Shl:
			result = lhs.Lsh(rhs)
		case LShr:
			result = lhs.URsh(rhs)
		case AShr:
			result = lhs.SRsh(rhs)
		default:
			panic(fmt.Sprintf("unhandled kind %s", i.Kind))
		}
	}

	c.cache[i] = result
	return result
}

// guard builds the conjunction of the rule's path conditions, block path
// conditions and variable facts.
func (c *z3conv) guard(rep *ParsedReplacement) z3.Bool {
	res := c.s.ctx.FromBool(true)
	for _, pc := range rep.PCs {
		res = res.And(c.convert(pc.LHS).Eq(c.convert(pc.RHS)))
	}
	for _, bpc := range rep.BPCs {
		res = res.And(c.convert(bpc.LHS).Eq(c.convert(bpc.RHS)))
	}
	for v, f := range rep.Facts {
		res = res.And(c.factConstraint(v, f))
	}
	return res
}

func (c *z3conv) factConstraint(v *Inst, f *VarFacts) z3.Bool {
	x := c.convert(v)
	w := v.Width
	res := c.s.ctx.FromBool(true)
	zero := c.constBV(MakeBVConst(0, w))
	if f.KB != nil {
		mask := f.KB.Zero.Copy()
		mask.Or(f.KB.One)
		res = res.And(x.And(c.constBV(mask)).Eq(c.constBV(f.KB.One)))
	}
	if f.Range != nil {
		eq, err := f.Range.Lower.Eq(f.Range.Upper)
		if err == nil && !eq {
			res = res.And(c.constBV(f.Range.Lower).ULE(x))
			res = res.And(x.ULT(c.constBV(f.Range.Upper)))
		}
	}
	if f.NonNegative {
		res = res.And(zero.SLE(x))
	}
	if f.Negative {
		res = res.And(x.SLT(zero))
	}
	if f.NonZero {
		res = res.And(x.NE(zero))
	}
	if f.PowerOfTwo {
		one := c.constBV(MakeBVConst(1, w))
		res = res.And(x.NE(zero))
		res = res.And(x.And(x.Sub(one)).Eq(zero))
	}
	if f.SignBits > 1 && f.SignBits <= w {
		top := x.Extract(int(w)-1, int(w-f.SignBits))
		ones := c.constBV(MakeBVConstFromBigint(makeMask(f.SignBits), f.SignBits))
		zeros := c.constBV(MakeBVConst(0, f.SignBits))
		res = res.And(top.Eq(zeros).Or(top.Eq(ones)))
	}
	return res
}

func z3BVToConst(v z3.BV, size uint) (*BVConst, error) {
	s := v.String()
	var c *BVConst
	switch {
	case strings.HasPrefix(s, "#x"):
		c = MakeBVConstFromString(s[2:], 16, size)
	case strings.HasPrefix(s, "#b"):
		c = MakeBVConstFromString(s[2:], 2, size)
	default:
		c = MakeBVConstFromString(s, 10, size)
	}
	if c == nil {
		return nil, fmt.Errorf("not a constant: %q", s)
	}
	return c, nil
}

// model extracts the current assignment of the rule's variables.
func (c *z3conv) model() (ValueCache, error) {
	m := c.s.solver.Model()
	if m == nil {
		return nil, fmt.Errorf("no model available")
	}
	res := make(ValueCache)
	for v, sym := range c.syms {
		val, ok := m.Eval(sym, true).(z3.BV)
		if !ok {
			return nil, fmt.Errorf("no value for %%%s", v.Name)
		}
		bv, err := z3BVToConst(val, v.Width)
		if err != nil {
			return nil, err
		}
		res[v] = bv
	}
	return res, nil
}

// blockModel excludes the given assignment from further models.
func (c *z3conv) blockModel(vals ValueCache) {
	block := c.s.ctx.FromBool(false)
	for v, val := range vals {
		block = block.Or(c.syms[v].NE(c.constBV(val)))
	}
	c.s.solver.Assert(block)
}

func (s *Z3Solver) IsValid(rep *ParsedReplacement) (bool, []ValueCache, error) {
	s.solver.Reset()
	c := s.newConv()

	lhs := c.convert(rep.Mapping.LHS)
	rhs := c.convert(rep.Mapping.RHS)
	s.solver.Assert(c.guard(rep))
	s.solver.Assert(lhs.NE(rhs))

	var cexs []ValueCache
	for len(cexs) < maxCounterexamples {
		sat, err := s.solver.Check()
		if err != nil {
			return false, nil, fmt.Errorf("solver: %w", err)
		}
		if !sat {
			break
		}
		vals, err := c.model()
		if err != nil {
			return false, nil, err
		}
		cexs = append(cexs, vals)
		if len(vals) == 0 {
			break
		}
		c.blockModel(vals)
	}
	return len(cexs) == 0, cexs, nil
}

// witnesses finds up to n assignments where the guard holds and the mapping
// agrees: seeds for precondition inference.
func (s *Z3Solver) witnesses(rep *ParsedReplacement, n int) ([]ValueCache, error) {
	s.solver.Reset()
	c := s.newConv()

	lhs := c.convert(rep.Mapping.LHS)
	rhs := c.convert(rep.Mapping.RHS)
	// make sure every LHS variable has a symbol even if folded elsewhere
	for _, v := range VariablesFor(rep.Mapping.LHS) {
		c.convert(v)
	}
	s.solver.Assert(c.guard(rep))
	s.solver.Assert(lhs.Eq(rhs))

	var res []ValueCache
	for len(res) < n {
		sat, err := s.solver.Check()
		if err != nil {
			return nil, fmt.Errorf("solver: %w", err)
		}
		if !sat {
			break
		}
		vals, err := c.model()
		if err != nil {
			return nil, err
		}
		res = append(res, vals)
		if len(vals) == 0 {
			break
		}
		c.blockModel(vals)
	}
	return res, nil
}

// validWithKB checks the rule with candidate known-bits facts layered on top
// of its own.
func validWithKB(s Solver, rep *ParsedReplacement, kbs map[*Inst]KnownBits) (bool, error) {
	aug := *rep
	aug.Facts = rep.Facts.Copy()
	for v, kb := range kbs {
		kbCopy := kb.Copy()
		aug.Facts.facts(v).KB = &kbCopy
	}
	valid, _, err := s.IsValid(&aug)
	return valid, err
}

func validWithCR(s Solver, rep *ParsedReplacement, crs map[*Inst]ConstantRange) (bool, error) {
	aug := *rep
	aug.Facts = rep.Facts.Copy()
	for v, cr := range crs {
		crCopy := cr.Copy()
		aug.Facts.facts(v).Range = &crCopy
	}
	valid, _, err := s.IsValid(&aug)
	return valid, err
}

// AbstractPrecondition infers sufficient dataflow preconditions. For each
// witness assignment of the (invalid) rule it pins every bit of every
// variable, then greedily relaxes bits while the rule stays valid; each
// relaxed witness is one disjunct. Ranges are tried only when no known-bits
// disjunct exists.
func (s *Z3Solver) AbstractPrecondition(rep *ParsedReplacement) (*PreconditionResult, error) {
	valid, _, err := s.IsValid(rep)
	if err != nil {
		return nil, err
	}
	if valid {
		return &PreconditionResult{ValidAsIs: true}, nil
	}

	vars := VariablesFor(rep.Mapping.LHS)
	seeds, err := s.witnesses(rep, maxWitnessSeeds)
	if err != nil {
		return nil, err
	}

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

	if len(pr.KBResults) == 0 && len(seeds) > 0 {
		crs := inferRanges(s, rep, vars, seeds[0])
		if len(crs) > 0 {
			pr.CRResults = append(pr.CRResults, crs)
		}
	}
	return pr, nil
}

// relaxKnownBits clears, bit by bit, every pinned bit that is not needed for
// validity. kbs is updated in place.
func relaxKnownBits(s Solver, rep *ParsedReplacement, vars []*Inst, kbs map[*Inst]KnownBits) {
	for _, v := range vars {
		kb, ok := kbs[v]
		if !ok {
			continue
		}
		for bit := int(v.Width) - 1; bit >= 0; bit-- {
			savedZ := kb.Zero.Bit(uint(bit))
			savedO := kb.One.Bit(uint(bit))
			if savedZ == 0 && savedO == 0 {
				continue
			}
			kb.Zero.SetBit(uint(bit), 0)
			kb.One.SetBit(uint(bit), 0)
			ok, err := validWithKB(s, rep, kbs)
			if err != nil || !ok {
				kb.Zero.SetBit(uint(bit), savedZ)
				kb.One.SetBit(uint(bit), savedO)
			}
		}
	}
}

// inferRanges grows, for each variable, the interval around its witness
// value by doubling the radius while the rule stays valid. A growth step
// that wraps modulo 2^w is rejected outright: a wrapped [l, u) with u below
// l holds for no value, so the range constraint would be vacuously valid.
func inferRanges(s Solver, rep *ParsedReplacement, vars []*Inst, seed ValueCache) map[*Inst]ConstantRange {
	crs := make(map[*Inst]ConstantRange)
	for _, v := range vars {
		val, ok := seed[v]
		if !ok {
			return nil
		}
		upper := val.Copy()
		upper.Add(MakeBVConst(1, v.Width))
		if upper.IsZero() {
			return nil
		}
		crs[v] = ConstantRange{Lower: val.Copy(), Upper: upper}
	}
	if ok, err := validWithCR(s, rep, crs); err != nil || !ok {
		return nil
	}
	for _, v := range vars {
		for step := uint(0); step < v.Width; step++ {
			cr := crs[v]
			wider := cr.Copy()
			delta := MakeBVConst(1, v.Width)
			delta.Shl(step)
			wider.Upper.Add(delta)
			if grew, err := cr.Upper.Ult(wider.Upper); err != nil || !grew {
				break
			}
			crs[v] = wider
			if ok, err := validWithCR(s, rep, crs); err != nil || !ok {
				crs[v] = cr
				break
			}
		}
		for step := uint(0); step < v.Width; step++ {
			cr := crs[v]
			wider := cr.Copy()
			delta := MakeBVConst(1, v.Width)
			delta.Shl(step)
			wider.Lower.Sub(delta)
			if shrank, err := wider.Lower.Ult(cr.Lower); err != nil || !shrank {
				break
			}
			crs[v] = wider
			if ok, err := validWithCR(s, rep, crs); err != nil || !ok {
				crs[v] = cr
				break
			}
		}
	}
	return crs
}

// kbKey is a dedup key for a known-bits disjunct.
func kbKey(kbs map[*Inst]KnownBits) string {
	parts := make([]string, 0, len(kbs))
	for v, kb := range kbs {
		parts = append(parts, fmt.Sprintf("%s=%s", v.Name, kb))
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}
