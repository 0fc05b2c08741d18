package souper

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGeneralizeBitWidth(t *testing.T) {
	input := strings.Join([]string{
		"%x:i8 = var",
		"%l:i8 = and %x, %x",
		"infer %l",
		"result %x",
	}, "\n")

	ic := NewInstContext()
	reps, err := ParseReplacements(ic, input)
	require.NoError(t, err)

	results, err := GeneralizeBitWidth(ic, reps[0])
	require.NoError(t, err)
	require.Len(t, results, 62)

	for i, r := range results {
		w := uint(i + 1)
		require.Equal(t, w, r.Mapping.LHS.Width)
		require.Equal(t, w, r.Mapping.RHS.Width)

		// every emitted rule parses back
		_, err := ParseReplacements(NewInstContext(), r.Render())
		require.NoError(t, err, "width %d", w)
	}
	require.Equal(t, strings.Join([]string{
		"%0:i1 = var",
		"%1:i1 = and %0, %0",
		"infer %1",
		"result %0",
		"",
	}, "\n"), results[0].Render())
}

func TestGeneralizeBitWidthComparisons(t *testing.T) {
	// a comparison stays i1 while its operands are resized
	input := strings.Join([]string{
		"%x:i8 = var",
		"%c:i1 = ule %x, %x",
		"infer %c",
		"result %c",
	}, "\n")

	ic := NewInstContext()
	reps, err := ParseReplacements(ic, input)
	require.NoError(t, err)

	results, err := GeneralizeBitWidth(ic, reps[0])
	require.NoError(t, err)
	for i, r := range results {
		require.Equal(t, uint(1), r.Mapping.LHS.Width)
		require.Equal(t, uint(i+1), r.Mapping.LHS.Ops[0].Width)
	}
}

func TestGeneralizeBitWidthErrors(t *testing.T) {
	ic := NewInstContext()
	x := ic.CreateVar(8, "x")
	y := ic.CreateVar(8, "y")

	// multiple variables
	sum, _ := ic.GetInst(Add, 8, []*Inst{x, y})
	_, err := GeneralizeBitWidth(ic, &ParsedReplacement{Mapping: InstMapping{LHS: sum, RHS: sum}})
	require.Error(t, err)

	// literal constant
	withConst, _ := ic.GetInst(Add, 8, []*Inst{x, ic.GetConstInt(1, 8)})
	_, err = GeneralizeBitWidth(ic, &ParsedReplacement{Mapping: InstMapping{LHS: withConst, RHS: x}})
	require.Error(t, err)

	// width inference is not defined for shifts
	sh, _ := ic.GetInst(Shl, 8, []*Inst{x, x})
	_, err = GeneralizeBitWidth(ic, &ParsedReplacement{Mapping: InstMapping{LHS: sh, RHS: x}})
	require.Error(t, err)
}

func TestInferWidthTable(t *testing.T) {
	ic := NewInstContext()
	a := ic.CreateVar(13, "a")

	for _, k := range []Kind{And, Or, Xor, Sub, Mul, Add} {
		w, err := inferWidth(k, []*Inst{a, a})
		require.NoError(t, err)
		require.Equal(t, uint(13), w, fmt.Sprintf("kind %s", k))
	}
	for _, k := range []Kind{Slt, Sle, Ult, Ule} {
		w, err := inferWidth(k, []*Inst{a, a})
		require.NoError(t, err)
		require.Equal(t, uint(1), w, fmt.Sprintf("kind %s", k))
	}
	for _, k := range []Kind{Shl, UDiv, Eq, ZExt} {
		_, err := inferWidth(k, []*Inst{a, a})
		require.Error(t, err, fmt.Sprintf("kind %s", k))
	}
}
