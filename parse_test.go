package souper

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRenderRoundTrip(t *testing.T) {
	input := strings.Join([]string{
		"%0:i8 = var",
		"%1:i8 = and %0, 254:i8",
		"infer %1",
		"result %0",
		"",
	}, "\n")

	ic := NewInstContext()
	reps, err := ParseReplacements(ic, input)
	require.NoError(t, err)
	require.Len(t, reps, 1)
	require.Equal(t, input, reps[0].Render())
}

func TestParseVarAttrs(t *testing.T) {
	input := strings.Join([]string{
		"%x:i8 = var (knownBits=xxxxxxx0) (range=[0,16)) (nonZero) (powerOfTwo) (signBits=2)",
		"%r:i8 = add %x, 1:i8",
		"infer %r",
		"result %x",
	}, "\n")

	ic := NewInstContext()
	reps, err := ParseReplacements(ic, input)
	require.NoError(t, err)
	require.Len(t, reps, 1)

	x := reps[0].Mapping.RHS
	require.True(t, x.IsVar())
	f := reps[0].Facts[x]
	require.NotNil(t, f)
	require.Equal(t, "xxxxxxx0", f.KB.String())
	require.Equal(t, "[0,16)", f.Range.String())
	require.True(t, f.NonZero)
	require.True(t, f.PowerOfTwo)
	require.Equal(t, uint(2), f.SignBits)
	require.False(t, f.NonNegative)
}

func TestParseMultipleRules(t *testing.T) {
	input := strings.Join([]string{
		"; first rule",
		"%x:i8 = var",
		"%r:i8 = add %x, 0:i8",
		"infer %r",
		"result %x",
		"",
		"%y:i16 = var",
		"%s:i16 = mul %y, 1:i16",
		"infer %s",
		"result %y",
	}, "\n")

	ic := NewInstContext()
	reps, err := ParseReplacements(ic, input)
	require.NoError(t, err)
	require.Len(t, reps, 2)
	require.Equal(t, uint(8), reps[0].Mapping.LHS.Width)
	require.Equal(t, uint(16), reps[1].Mapping.LHS.Width)
}

func TestParsePathConditions(t *testing.T) {
	input := strings.Join([]string{
		"%x:i8 = var",
		"%c:i1 = ult %x, 16:i8",
		"pc %c 1:i1",
		"%r:i8 = and %x, 15:i8",
		"infer %r",
		"result %x",
	}, "\n")

	ic := NewInstContext()
	reps, err := ParseReplacements(ic, input)
	require.NoError(t, err)
	require.Len(t, reps[0].PCs, 1)
	require.Equal(t, Ult, reps[0].PCs[0].LHS.Kind)

	// the rendered text parses back to the same text
	again, err := ParseReplacements(NewInstContext(), reps[0].Render())
	require.NoError(t, err)
	require.Equal(t, reps[0].Render(), again[0].Render())
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"undefined operand", "%r:i8 = add %x, 1:i8\ninfer %r\nresult %r"},
		{"result before infer", "%x:i8 = var\nresult %x"},
		{"missing result", "%x:i8 = var\ninfer %x"},
		{"redefinition", "%x:i8 = var\n%x:i8 = var\ninfer %x\nresult %x"},
		{"bad width", "%x:i0 = var\ninfer %x\nresult %x"},
		{"unknown op", "%x:i8 = var\n%r:i8 = frob %x, %x\ninfer %r\nresult %r"},
		{"free rhs variable", "%x:i8 = var\n%y:i8 = var\ninfer %x\nresult %y"},
		{"width mismatch", "%x:i8 = var\n%t:i16 = zext %x\ninfer %x\nresult %t"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseReplacements(NewInstContext(), tc.input)
			require.Error(t, err)
		})
	}
}

func TestParseNegativeAndHexConstants(t *testing.T) {
	input := strings.Join([]string{
		"%x:i8 = var",
		"%r:i8 = add %x, -1:i8",
		"%s:i8 = and %r, 0xf0:i8",
		"infer %s",
		"result %s",
	}, "\n")

	ic := NewInstContext()
	reps, err := ParseReplacements(ic, input)
	require.NoError(t, err)
	and := reps[0].Mapping.LHS
	require.Equal(t, And, and.Kind)
	require.Equal(t, uint64(0xf0), and.Ops[1].Value.AsULong())
	require.Equal(t, uint64(0xff), and.Ops[0].Ops[1].Value.AsULong())
}

func TestRenderCanonicalNames(t *testing.T) {
	// two structurally identical rules with different variable names render
	// to the same text
	mk := func(name string) string {
		ic := NewInstContext()
		x := ic.CreateVar(8, name)
		r, _ := ic.GetInst(Add, 8, []*Inst{x, ic.GetConstInt(1, 8)})
		rep := &ParsedReplacement{Mapping: InstMapping{LHS: r, RHS: r}}
		return rep.Render()
	}
	require.Equal(t, mk("x"), mk("someothername"))
}
