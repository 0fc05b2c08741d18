package souper

import (
	"testing"
)

func TestEvaluate(t *testing.T) {
	ic := NewInstContext()
	x := ic.CreateVar(8, "x")
	y := ic.CreateVar(8, "y")
	sum, _ := ic.GetInst(Add, 8, []*Inst{x, y})
	root, _ := ic.GetInst(Mul, 8, []*Inst{sum, ic.GetConstInt(2, 8)})

	v, err := Evaluate(root, ValueCache{x: MakeBVConst(3, 8), y: MakeBVConst(4, 8)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.AsULong() != 14 {
		t.Errorf("expected 14, got %d", v.AsULong())
	}

	// wrapping
	v, err = Evaluate(root, ValueCache{x: MakeBVConst(200, 8), y: MakeBVConst(100, 8)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.AsULong() != (300*2)%256 {
		t.Errorf("expected wrapped result, got %d", v.AsULong())
	}
}

func TestEvaluateCasts(t *testing.T) {
	ic := NewInstContext()
	x := ic.CreateVar(4, "x")
	z, _ := ic.GetInst(ZExt, 8, []*Inst{x})
	s, _ := ic.GetInst(SExt, 8, []*Inst{x})
	tr, _ := ic.GetInst(Trunc, 2, []*Inst{x})

	vals := ValueCache{x: MakeBVConst(0b1110, 4)}
	if v, _ := Evaluate(z, vals); v.AsULong() != 0x0e {
		t.Errorf("zext is wrong")
	}
	if v, _ := Evaluate(s, vals); v.AsULong() != 0xfe {
		t.Errorf("sext is wrong")
	}
	if v, _ := Evaluate(tr, vals); v.AsULong() != 0b10 {
		t.Errorf("trunc is wrong")
	}
}

func TestEvaluateComparisons(t *testing.T) {
	ic := NewInstContext()
	x := ic.CreateVar(8, "x")
	lt, _ := ic.GetInst(Slt, 1, []*Inst{x, ic.GetConstInt(0, 8)})

	if v, _ := Evaluate(lt, ValueCache{x: MakeBVConst(-5, 8)}); v.Size != 1 || !v.IsOne() {
		t.Errorf("-5 slt 0 should hold")
	}
	if v, _ := Evaluate(lt, ValueCache{x: MakeBVConst(5, 8)}); !v.IsZero() {
		t.Errorf("5 slt 0 should not hold")
	}
}

func TestEvaluateShiftClamp(t *testing.T) {
	ic := NewInstContext()
	x := ic.CreateVar(8, "x")
	sh, _ := ic.GetInst(Shl, 8, []*Inst{ic.GetConstInt(1, 8), x})

	if v, _ := Evaluate(sh, ValueCache{x: MakeBVConst(9, 8)}); !v.IsZero() {
		t.Errorf("oversized shift amount should produce zero")
	}
	if v, _ := Evaluate(sh, ValueCache{x: MakeBVConst(3, 8)}); v.AsULong() != 8 {
		t.Errorf("1 shl 3 should be 8")
	}
}

func TestEvaluateErrors(t *testing.T) {
	ic := NewInstContext()
	x := ic.CreateVar(8, "x")
	y := ic.CreateVar(8, "y")
	div, _ := ic.GetInst(UDiv, 8, []*Inst{x, y})

	if _, err := Evaluate(div, ValueCache{x: MakeBVConst(1, 8), y: MakeBVConst(0, 8)}); err == nil {
		t.Errorf("division by zero should error")
	}
	if _, err := Evaluate(div, ValueCache{x: MakeBVConst(1, 8)}); err == nil {
		t.Errorf("unassigned variable should error")
	}
}
