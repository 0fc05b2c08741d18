package souper

import (
	"fmt"
	"strings"
)

// KnownBits tracks per-bit knowledge about a value: bits set in Zero are
// provably 0, bits set in One are provably 1, the rest are unknown.
type KnownBits struct {
	Zero *BVConst
	One  *BVConst
}

func MakeKnownBits(width uint) KnownBits {
	return KnownBits{Zero: MakeBVConst(0, width), One: MakeBVConst(0, width)}
}

// FullyKnown pins every bit to the bits of v.
func FullyKnown(v *BVConst) KnownBits {
	one := v.Copy()
	zero := v.Copy()
	zero.Not()
	return KnownBits{Zero: zero, One: one}
}

func (kb KnownBits) Width() uint {
	return kb.Zero.Size
}

func (kb KnownBits) Copy() KnownBits {
	return KnownBits{Zero: kb.Zero.Copy(), One: kb.One.Copy()}
}

// Holds reports whether v is compatible with the known bits.
func (kb KnownBits) Holds(v *BVConst) bool {
	for i := uint(0); i < kb.Width(); i++ {
		if kb.Zero.Bit(i) == 1 && v.Bit(i) == 1 {
			return false
		}
		if kb.One.Bit(i) == 1 && v.Bit(i) == 0 {
			return false
		}
	}
	return true
}

// String renders MSB first, one character per bit: '0', '1' or 'x'.
func (kb KnownBits) String() string {
	b := strings.Builder{}
	for i := int(kb.Width()) - 1; i >= 0; i-- {
		switch {
		case kb.Zero.Bit(uint(i)) == 1:
			b.WriteByte('0')
		case kb.One.Bit(uint(i)) == 1:
			b.WriteByte('1')
		default:
			b.WriteByte('x')
		}
	}
	return b.String()
}

// ParseKnownBits parses the String representation.
func ParseKnownBits(s string) (KnownBits, error) {
	w := uint(len(s))
	if w == 0 {
		return KnownBits{}, fmt.Errorf("empty knownBits string")
	}
	kb := MakeKnownBits(w)
	for i, c := range s {
		bit := w - 1 - uint(i)
		switch c {
		case '0':
			kb.Zero.SetBit(bit, 1)
		case '1':
			kb.One.SetBit(bit, 1)
		case 'x':
		default:
			return KnownBits{}, fmt.Errorf("invalid knownBits character %q", c)
		}
	}
	return kb, nil
}

// ConstantRange is the half-open interval [Lower, Upper) under unsigned
// interpretation.
type ConstantRange struct {
	Lower *BVConst
	Upper *BVConst
}

func (cr ConstantRange) Copy() ConstantRange {
	return ConstantRange{Lower: cr.Lower.Copy(), Upper: cr.Upper.Copy()}
}

func (cr ConstantRange) Holds(v *BVConst) bool {
	ge, err := cr.Lower.Ule(v)
	if err != nil || !ge {
		return false
	}
	lt, err := v.Ult(cr.Upper)
	return err == nil && lt
}

func (cr ConstantRange) String() string {
	return fmt.Sprintf("[%s,%s)", cr.Lower.value.String(), cr.Upper.value.String())
}

// VarFacts are the derived dataflow facts attached to a variable. They are
// an output side-channel: stored in a per-rule table, never in the interned
// node itself, since nodes are shared across unrelated rules.
type VarFacts struct {
	KB    *KnownBits
	Range *ConstantRange

	NonNegative bool
	Negative    bool
	NonZero     bool
	PowerOfTwo  bool
	SignBits    uint
}

func (f *VarFacts) Copy() *VarFacts {
	c := *f
	if f.KB != nil {
		kb := f.KB.Copy()
		c.KB = &kb
	}
	if f.Range != nil {
		cr := f.Range.Copy()
		c.Range = &cr
	}
	return &c
}

// Holds reports whether a concrete value satisfies every recorded fact.
func (f *VarFacts) Holds(v *BVConst) bool {
	if f.KB != nil && !f.KB.Holds(v) {
		return false
	}
	if f.Range != nil && !f.Range.Holds(v) {
		return false
	}
	if f.NonNegative && v.IsNegative() {
		return false
	}
	if f.Negative && !v.IsNegative() {
		return false
	}
	if f.NonZero && v.IsZero() {
		return false
	}
	if f.PowerOfTwo && !v.IsPowerOfTwo() {
		return false
	}
	if f.SignBits > 1 {
		if numSignBits(v) < f.SignBits {
			return false
		}
	}
	return true
}

// numSignBits counts how many of the top bits equal the sign bit.
func numSignBits(v *BVConst) uint {
	sign := v.Bit(v.Size - 1)
	n := uint(0)
	for i := int(v.Size) - 1; i >= 0; i-- {
		if v.Bit(uint(i)) != sign {
			break
		}
		n++
	}
	return n
}

// FactTable maps variables of one rule to their derived facts.
type FactTable map[*Inst]*VarFacts

func (ft FactTable) Copy() FactTable {
	res := make(FactTable, len(ft))
	for i, f := range ft {
		res[i] = f.Copy()
	}
	return res
}

// facts returns the entry for i, creating it if needed.
func (ft FactTable) facts(i *Inst) *VarFacts {
	f, ok := ft[i]
	if !ok {
		f = &VarFacts{}
		ft[i] = f
	}
	return f
}
