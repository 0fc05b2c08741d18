package souper

import (
	"fmt"
	"math/big"
	"math/bits"
)

var bigZero = big.NewInt(0)
var bigOne = big.NewInt(1)

// BVConst is an arbitrary-precision bit-vector constant of a fixed width.
// The value is always stored as the non-negative two's-complement
// representative in [0, 2^Size). Arithmetic mutates the receiver and wraps
// modulo 2^Size.
type BVConst struct {
	Size  uint
	mask  *big.Int
	value *big.Int
}

func makeMask(size uint) *big.Int {
	v := big.NewInt(1)
	v.Lsh(v, size)
	v.Sub(v, bigOne)
	return v
}

func MakeBVConst(value int64, size uint) *BVConst {
	if size == 0 {
		return nil
	}
	return MakeBVConstFromBigint(big.NewInt(value), size)
}

func MakeBVConstFromBigint(value *big.Int, size uint) *BVConst {
	if size == 0 {
		return nil
	}
	mask := makeMask(size)
	v := new(big.Int).Set(value)
	if v.Sign() < 0 {
		v.Add(v, new(big.Int).Lsh(bigOne, size))
	}
	v.And(v, mask)
	return &BVConst{Size: size, mask: mask, value: v}
}

// MakeBVConstFromString parses a numeral in the given base. Returns nil if
// the string is not a valid numeral.
func MakeBVConstFromString(s string, base int, size uint) *BVConst {
	v := new(big.Int)
	if _, ok := v.SetString(s, base); !ok {
		return nil
	}
	return MakeBVConstFromBigint(v, size)
}

func (bv *BVConst) Copy() *BVConst {
	return &BVConst{
		Size:  bv.Size,
		mask:  new(big.Int).Set(bv.mask),
		value: new(big.Int).Set(bv.value),
	}
}

func (bv *BVConst) String() string {
	return fmt.Sprintf("<BV%d 0x%x>", bv.Size, bv.value)
}

func (bv *BVConst) IsNegative() bool {
	return bv.value.Bit(int(bv.Size)-1) == 1
}

func (bv *BVConst) IsZero() bool {
	return bv.value.Sign() == 0
}

func (bv *BVConst) IsOne() bool {
	return bv.value.Cmp(bigOne) == 0
}

func (bv *BVConst) HasAllBitsSet() bool {
	return bv.value.Cmp(bv.mask) == 0
}

func (bv *BVConst) IsPowerOfTwo() bool {
	if bv.value.Sign() == 0 {
		return false
	}
	m := new(big.Int).Sub(bv.value, bigOne)
	m.And(m, bv.value)
	return m.Sign() == 0
}

func (bv *BVConst) FitInLong() bool {
	return bv.value.BitLen() <= 64
}

func (bv *BVConst) AsULong() uint64 {
	// if it does not `FitInLong`, result is undefined
	return bv.value.Uint64()
}

func (bv *BVConst) AsLong() int64 {
	// if it does not `FitInLong`, result is undefined
	return bv.signedValue().Int64()
}

// signedValue returns the two's-complement signed interpretation.
func (bv *BVConst) signedValue() *big.Int {
	if !bv.IsNegative() {
		return new(big.Int).Set(bv.value)
	}
	v := new(big.Int).Lsh(bigOne, bv.Size)
	return v.Sub(bv.value, v)
}

func (bv *BVConst) Bit(i uint) uint {
	return bv.value.Bit(int(i))
}

func (bv *BVConst) SetBit(i uint, b uint) {
	bv.value.SetBit(bv.value, int(i), b)
}

func (bv *BVConst) CountPopulation() uint {
	n := uint(0)
	for _, w := range bv.value.Bits() {
		n += uint(bits.OnesCount(uint(w)))
	}
	return n
}

func (bv *BVConst) Not() {
	bv.value.Xor(bv.value, bv.mask)
}

func (bv *BVConst) Neg() {
	if bv.value.Sign() == 0 {
		return
	}
	bv.value.Sub(new(big.Int).Lsh(bigOne, bv.Size), bv.value)
	bv.value.And(bv.value, bv.mask)
}

func (bv *BVConst) checkSize(o *BVConst) error {
	if bv.Size != o.Size {
		return fmt.Errorf("different sizes %d and %d", bv.Size, o.Size)
	}
	return nil
}

func (bv *BVConst) Add(o *BVConst) error {
	if err := bv.checkSize(o); err != nil {
		return err
	}
	bv.value.Add(bv.value, o.value)
	bv.value.And(bv.value, bv.mask)
	return nil
}

func (bv *BVConst) Sub(o *BVConst) error {
	if err := bv.checkSize(o); err != nil {
		return err
	}
	bv.value.Sub(bv.value, o.value)
	if bv.value.Sign() < 0 {
		bv.value.Add(bv.value, new(big.Int).Lsh(bigOne, bv.Size))
	}
	bv.value.And(bv.value, bv.mask)
	return nil
}

func (bv *BVConst) Mul(o *BVConst) error {
	if err := bv.checkSize(o); err != nil {
		return err
	}
	bv.value.Mul(bv.value, o.value)
	bv.value.And(bv.value, bv.mask)
	return nil
}

func (bv *BVConst) UDiv(o *BVConst) error {
	if err := bv.checkSize(o); err != nil {
		return err
	}
	if o.IsZero() {
		return fmt.Errorf("division by zero")
	}
	bv.value.Div(bv.value, o.value)
	bv.value.And(bv.value, bv.mask)
	return nil
}

func (bv *BVConst) SDiv(o *BVConst) error {
	if err := bv.checkSize(o); err != nil {
		return err
	}
	if o.IsZero() {
		return fmt.Errorf("division by zero")
	}
	res := new(big.Int).Quo(bv.signedValue(), o.signedValue())
	*bv = *MakeBVConstFromBigint(res, bv.Size)
	return nil
}

func (bv *BVConst) URem(o *BVConst) error {
	if err := bv.checkSize(o); err != nil {
		return err
	}
	if o.IsZero() {
		return fmt.Errorf("division by zero")
	}
	bv.value.Rem(bv.value, o.value)
	bv.value.And(bv.value, bv.mask)
	return nil
}

func (bv *BVConst) SRem(o *BVConst) error {
	if err := bv.checkSize(o); err != nil {
		return err
	}
	if o.IsZero() {
		return fmt.Errorf("division by zero")
	}
	res := new(big.Int).Rem(bv.signedValue(), o.signedValue())
	*bv = *MakeBVConstFromBigint(res, bv.Size)
	return nil
}

func (bv *BVConst) And(o *BVConst) error {
	if err := bv.checkSize(o); err != nil {
		return err
	}
	bv.value.And(bv.value, o.value)
	return nil
}

func (bv *BVConst) Or(o *BVConst) error {
	if err := bv.checkSize(o); err != nil {
		return err
	}
	bv.value.Or(bv.value, o.value)
	return nil
}

func (bv *BVConst) Xor(o *BVConst) error {
	if err := bv.checkSize(o); err != nil {
		return err
	}
	bv.value.Xor(bv.value, o.value)
	return nil
}

func (bv *BVConst) Shl(n uint) {
	if n >= bv.Size {
		bv.value.SetInt64(0)
		return
	}
	bv.value.Lsh(bv.value, n)
	bv.value.And(bv.value, bv.mask)
}

func (bv *BVConst) LShr(n uint) {
	if n >= bv.Size {
		bv.value.SetInt64(0)
		return
	}
	bv.value.Rsh(bv.value, n)
}

func (bv *BVConst) AShr(n uint) {
	neg := bv.IsNegative()
	if n >= bv.Size {
		if neg {
			bv.value.Set(bv.mask)
		} else {
			bv.value.SetInt64(0)
		}
		return
	}
	if n == 0 {
		return
	}
	bv.value.Rsh(bv.value, n)
	if neg {
		fill := makeMask(n)
		fill.Lsh(fill, bv.Size-n)
		bv.value.Or(bv.value, fill)
	}
}

func (bv *BVConst) ZExt(b uint) {
	bv.Size += b
	bv.mask = makeMask(bv.Size)
}

func (bv *BVConst) SExt(b uint) {
	neg := bv.IsNegative()
	bv.Size += b
	bv.mask = makeMask(bv.Size)
	if neg {
		fill := makeMask(b)
		fill.Lsh(fill, bv.Size-b)
		bv.value.Or(bv.value, fill)
	}
}

func (bv *BVConst) Truncate(high uint, low uint) error {
	if high < low {
		return fmt.Errorf("high is lower than low")
	}
	if high >= bv.Size {
		return fmt.Errorf("high is greater than Size")
	}
	bv.LShr(low)
	bv.Size = high - low + 1
	bv.mask = makeMask(bv.Size)
	bv.value.And(bv.value, bv.mask)
	return nil
}

func (bv *BVConst) Eq(o *BVConst) (bool, error) {
	if err := bv.checkSize(o); err != nil {
		return false, err
	}
	return bv.value.Cmp(o.value) == 0, nil
}

func (bv *BVConst) Ne(o *BVConst) (bool, error) {
	r, err := bv.Eq(o)
	return !r, err
}

func (bv *BVConst) Ult(o *BVConst) (bool, error) {
	if err := bv.checkSize(o); err != nil {
		return false, err
	}
	return bv.value.Cmp(o.value) < 0, nil
}

func (bv *BVConst) Ule(o *BVConst) (bool, error) {
	if err := bv.checkSize(o); err != nil {
		return false, err
	}
	return bv.value.Cmp(o.value) <= 0, nil
}

func (bv *BVConst) Slt(o *BVConst) (bool, error) {
	if err := bv.checkSize(o); err != nil {
		return false, err
	}
	return bv.signedValue().Cmp(o.signedValue()) < 0, nil
}

func (bv *BVConst) Sle(o *BVConst) (bool, error) {
	if err := bv.checkSize(o); err != nil {
		return false, err
	}
	return bv.signedValue().Cmp(o.signedValue()) <= 0, nil
}
