package souper

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Kind identifies the operation computed by an instruction node. The set is
// closed: every consumer switches exhaustively over it.
type Kind uint8

const (
	Var Kind = iota + 1
	Const

	Add
	Sub
	Mul
	UDiv
	SDiv
	URem
	SRem
	And
	Or
	Xor
	Shl
	LShr
	AShr

	Eq
	Ne
	Ult
	Slt
	Ule
	Sle

	ZExt
	SExt
	Trunc
)

var kindNames = map[Kind]string{
	Var:   "var",
	Const: "const",
	Add:   "add",
	Sub:   "sub",
	Mul:   "mul",
	UDiv:  "udiv",
	SDiv:  "sdiv",
	URem:  "urem",
	SRem:  "srem",
	And:   "and",
	Or:    "or",
	Xor:   "xor",
	Shl:   "shl",
	LShr:  "lshr",
	AShr:  "ashr",
	Eq:    "eq",
	Ne:    "ne",
	Ult:   "ult",
	Slt:   "slt",
	Ule:   "ule",
	Sle:   "sle",
	ZExt:  "zext",
	SExt:  "sext",
	Trunc: "trunc",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// KindFromString is the inverse of Kind.String for operator kinds.
func KindFromString(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

func (k Kind) isBinOp() bool {
	return k >= Add && k <= AShr
}

func (k Kind) isCmp() bool {
	return k >= Eq && k <= Sle
}

func (k Kind) isCast() bool {
	return k == ZExt || k == SExt || k == Trunc
}

// Inst is a node of the shared instruction DAG. Nodes are immutable once
// built and are only created through an InstContext, which interns them:
// structurally identical nodes are pointer-identical.
type Inst struct {
	Kind  Kind
	Width uint
	Ops   []*Inst

	Name  string   // Var only
	Value *BVConst // Const only

	id uint64 // assigned by the interning context, keys operand hashes
}

func (i *Inst) IsVar() bool {
	return i.Kind == Var
}

func (i *Inst) IsConst() bool {
	return i.Kind == Const
}

// hash is the interning bucket key. Operands are identified by their arena
// ids, so operands must already be interned.
func (i *Inst) hash() uint64 {
	h := xxhash.New()
	var raw [8]byte
	raw[0] = byte(i.Kind)
	h.Write(raw[:1])
	binary.BigEndian.PutUint64(raw[:], uint64(i.Width))
	h.Write(raw[:])
	switch i.Kind {
	case Var:
		h.WriteString(i.Name)
	case Const:
		h.Write(i.Value.value.Bytes())
	default:
		for _, op := range i.Ops {
			binary.BigEndian.PutUint64(raw[:], op.id)
			h.Write(raw[:])
		}
	}
	return h.Sum64()
}

// shallowEq reports structural equality assuming operands are interned, so
// operand comparison is by identity.
func (i *Inst) shallowEq(o *Inst) bool {
	if i.Kind != o.Kind || i.Width != o.Width {
		return false
	}
	switch i.Kind {
	case Var:
		return i.Name == o.Name
	case Const:
		eq, err := i.Value.Eq(o.Value)
		return err == nil && eq
	default:
		if len(i.Ops) != len(o.Ops) {
			return false
		}
		for j := range i.Ops {
			if i.Ops[j] != o.Ops[j] {
				return false
			}
		}
		return true
	}
}

// String renders the node as a compact expression for diagnostics. The
// canonical rule notation is produced by ParsedReplacement.Render.
func (i *Inst) String() string {
	switch i.Kind {
	case Var:
		return fmt.Sprintf("%%%s:i%d", i.Name, i.Width)
	case Const:
		return fmt.Sprintf("%s:i%d", i.Value.value.String(), i.Width)
	default:
		b := strings.Builder{}
		b.WriteString(i.Kind.String())
		b.WriteString("(")
		for j, op := range i.Ops {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(op.String())
		}
		b.WriteString(")")
		return b.String()
	}
}

// CollectInsts returns every node reachable from the given roots, each once,
// in deterministic first-visit depth-first order. The traversal is iterative:
// rules may be arbitrarily deep DAGs.
func CollectInsts(roots ...*Inst) []*Inst {
	seen := make(map[*Inst]bool)
	res := make([]*Inst, 0)
	stack := make([]*Inst, 0, len(roots))
	for j := len(roots) - 1; j >= 0; j-- {
		stack = append(stack, roots[j])
	}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		res = append(res, cur)
		for j := len(cur.Ops) - 1; j >= 0; j-- {
			if !seen[cur.Ops[j]] {
				stack = append(stack, cur.Ops[j])
			}
		}
	}
	return res
}

// FindInsts returns the reachable nodes satisfying pred, in first-visit order.
func FindInsts(root *Inst, pred func(*Inst) bool) []*Inst {
	res := make([]*Inst, 0)
	for _, i := range CollectInsts(root) {
		if pred(i) {
			res = append(res, i)
		}
	}
	return res
}

// VariablesFor returns the free variables reachable from root, in
// first-visit order.
func VariablesFor(root *Inst) []*Inst {
	return FindInsts(root, (*Inst).IsVar)
}
