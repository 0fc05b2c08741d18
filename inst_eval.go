package souper

import (
	"fmt"
)

// ValueCache assigns concrete values to variables: one counterexample or
// model.
type ValueCache map[*Inst]*BVConst

// Evaluate computes the concrete value of root under vals. Every variable
// reachable from root must be assigned. Division by zero and unassigned
// variables are errors, not panics: callers treat them as a discarded
// candidate.
func Evaluate(root *Inst, vals ValueCache) (*BVConst, error) {
	cache := make(map[*Inst]*BVConst)
	return evalRec(root, vals, cache)
}

func evalRec(i *Inst, vals ValueCache, cache map[*Inst]*BVConst) (*BVConst, error) {
	if r, ok := cache[i]; ok {
		return r, nil
	}

	var res *BVConst
	switch i.Kind {
	case Var:
		v, ok := vals[i]
		if !ok {
			return nil, fmt.Errorf("no value for %%%s", i.Name)
		}
		res = v.Copy()

	case Const:
		res = i.Value.Copy()

	case ZExt, SExt, Trunc:
		child, err := evalRec(i.Ops[0], vals, cache)
		if err != nil {
			return nil, err
		}
		res = child.Copy()
		switch i.Kind {
		case ZExt:
			res.ZExt(i.Width - child.Size)
		case SExt:
			res.SExt(i.Width - child.Size)
		case Trunc:
			if err := res.Truncate(i.Width-1, 0); err != nil {
				return nil, err
			}
		}

	default:
		lhs, err := evalRec(i.Ops[0], vals, cache)
		if err != nil {
			return nil, err
		}
		rhs, err := evalRec(i.Ops[1], vals, cache)
		if err != nil {
			return nil, err
		}
		if i.Kind.isCmp() {
			res, err = evalCmp(i.Kind, lhs, rhs)
		} else {
			res, err = evalBinOp(i.Kind, lhs, rhs)
		}
		if err != nil {
			return nil, err
		}
	}

	cache[i] = res
	return res, nil
}

func evalBinOp(k Kind, lhs, rhs *BVConst) (*BVConst, error) {
	res := lhs.Copy()
	var err error
	switch k {
	case Add:
		err = res.Add(rhs)
	case Sub:
		err = res.Sub(rhs)
	case Mul:
		err = res.Mul(rhs)
	case UDiv:
		err = res.UDiv(rhs)
	case SDiv:
		err = res.SDiv(rhs)
	case URem:
		err = res.URem(rhs)
	case SRem:
		err = res.SRem(rhs)
	case And:
		err = res.And(rhs)
	case Or:
		err = res.Or(rhs)
	case Xor:
		err = res.Xor(rhs)
	case Shl, LShr, AShr:
		n := uint(res.Size)
		if rhs.FitInLong() && rhs.AsULong() < uint64(res.Size) {
			n = uint(rhs.AsULong())
		}
		switch k {
		case Shl:
			res.Shl(n)
		case LShr:
			res.LShr(n)
		case AShr:
			res.AShr(n)
		}
	default:
		return nil, fmt.Errorf("%s: not a binary operator", k)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func evalCmp(k Kind, lhs, rhs *BVConst) (*BVConst, error) {
	var r bool
	var err error
	switch k {
	case Eq:
		r, err = lhs.Eq(rhs)
	case Ne:
		r, err = lhs.Ne(rhs)
	case Ult:
		r, err = lhs.Ult(rhs)
	case Slt:
		r, err = lhs.Slt(rhs)
	case Ule:
		r, err = lhs.Ule(rhs)
	case Sle:
		r, err = lhs.Sle(rhs)
	default:
		return nil, fmt.Errorf("%s: not a comparison", k)
	}
	if err != nil {
		return nil, err
	}
	if r {
		return MakeBVConst(1, 1), nil
	}
	return MakeBVConst(0, 1), nil
}
