package souper

import (
	"testing"
)

func TestInterning(t *testing.T) {
	ic := NewInstContext()
	x := ic.CreateVar(8, "x")
	y := ic.CreateVar(8, "y")

	a1, err := ic.GetInst(Add, 8, []*Inst{x, y})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a2, err := ic.GetInst(Add, 8, []*Inst{x, y})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a1 != a2 {
		t.Errorf("structurally identical nodes should be pointer-identical")
	}

	a3, err := ic.GetInst(Add, 8, []*Inst{y, x})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a1 == a3 {
		t.Errorf("operand order distinguishes nodes")
	}

	if ic.CreateVar(8, "x") != x {
		t.Errorf("same name and width should intern to the same var")
	}
	if ic.CreateVar(16, "x") == x {
		t.Errorf("width distinguishes vars")
	}

	c1 := ic.GetConstInt(42, 8)
	c2 := ic.GetConst(MakeBVConst(42, 8))
	if c1 != c2 {
		t.Errorf("equal constants should intern to the same node")
	}
}

func TestGetInstWidthChecks(t *testing.T) {
	ic := NewInstContext()
	x := ic.CreateVar(8, "x")
	y := ic.CreateVar(16, "y")

	if _, err := ic.GetInst(Add, 8, []*Inst{x, y}); err == nil {
		t.Errorf("mixed-width add should fail")
	}
	if _, err := ic.GetInst(Eq, 8, []*Inst{x, x}); err == nil {
		t.Errorf("comparison result must be i1")
	}
	if _, err := ic.GetInst(ZExt, 8, []*Inst{x}); err == nil {
		t.Errorf("zext must widen")
	}
	if _, err := ic.GetInst(Trunc, 8, []*Inst{x}); err == nil {
		t.Errorf("trunc must narrow")
	}
	if _, err := ic.GetInst(Eq, 1, []*Inst{x, x}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestGetInstCopySubstitution(t *testing.T) {
	ic := NewInstContext()
	x := ic.CreateVar(8, "x")
	inner, _ := ic.GetInst(Add, 8, []*Inst{x, x})
	root, _ := ic.GetInst(Mul, 8, []*Inst{inner, inner})

	v := ic.CreateVar(8, "v")
	cache := map[*Inst]*Inst{inner: v}
	got, err := ic.GetInstCopy(root, cache, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, _ := ic.GetInst(Mul, 8, []*Inst{v, v})
	if got != want {
		t.Errorf("every occurrence of the replaced node must be substituted")
	}

	// constant substitution for a variable
	got, err = ic.GetInstCopy(root, make(map[*Inst]*Inst),
		map[*Inst]*BVConst{x: MakeBVConst(3, 8)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := ic.GetConstInt(3, 8)
	i2, _ := ic.GetInst(Add, 8, []*Inst{c, c})
	want, _ = ic.GetInst(Mul, 8, []*Inst{i2, i2})
	if got != want {
		t.Errorf("constant substitution mismatch: got %s", got)
	}
}

func TestCollectInstsOrder(t *testing.T) {
	ic := NewInstContext()
	x := ic.CreateVar(8, "x")
	y := ic.CreateVar(8, "y")
	sum, _ := ic.GetInst(Add, 8, []*Inst{x, y})
	root, _ := ic.GetInst(Mul, 8, []*Inst{sum, x})

	insts := CollectInsts(root)
	if len(insts) != 4 {
		t.Fatalf("expected 4 distinct nodes, got %d", len(insts))
	}
	if insts[0] != root || insts[1] != sum || insts[2] != x || insts[3] != y {
		t.Errorf("unexpected traversal order")
	}

	vars := VariablesFor(root)
	if len(vars) != 2 || vars[0] != x || vars[1] != y {
		t.Errorf("unexpected variables")
	}
}

func TestReservedConsts(t *testing.T) {
	ic := NewInstContext()
	h1 := ic.createReservedConst(8)
	h2 := ic.createReservedConst(8)
	if h1 == h2 {
		t.Errorf("holes must be distinct")
	}
	if !isReservedConst(h1) || isReservedConst(ic.CreateVar(8, "x")) {
		t.Errorf("hole detection is wrong")
	}

	sum, _ := ic.GetInst(Add, 8, []*Inst{h1, ic.CreateVar(8, "x")})
	holes := findReservedConsts(sum)
	if len(holes) != 1 || holes[0] != h1 {
		t.Errorf("expected exactly the one hole")
	}
}
