package souper

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

type InstContextStats struct {
	CacheHits    uint
	CacheLookups uint
	CachedInsts  uint
}

// InstContext is the hash-consing arena every Inst is created through.
// Buckets are keyed by the node hash and probed with shallowEq, so two
// structurally identical nodes always come back as the same pointer. The
// cache is append-only. The context also owns the fresh-name counters used
// by the generalization passes, keeping them reentrant.
type InstContext struct {
	mu       sync.Mutex
	cache    map[uint64][]*Inst
	nextID   uint64
	counters map[string]int

	Stats InstContextStats
}

func NewInstContext() *InstContext {
	return &InstContext{
		cache:    make(map[uint64][]*Inst),
		counters: make(map[string]int),
	}
}

func (ic *InstContext) PrintStats() string {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	return fmt.Sprintf("lookups: %d, hits: %d, cached: %d",
		ic.Stats.CacheLookups, ic.Stats.CacheHits, ic.Stats.CachedInsts)
}

func (ic *InstContext) intern(cand *Inst) *Inst {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	ic.Stats.CacheLookups++

	h := cand.hash()
	for _, i := range ic.cache[h] {
		if i.shallowEq(cand) {
			ic.Stats.CacheHits++
			return i
		}
	}
	ic.Stats.CachedInsts++
	ic.nextID++
	cand.id = ic.nextID
	ic.cache[h] = append(ic.cache[h], cand)
	return cand
}

// FreshName returns prefix followed by a counter value unique to this
// context and prefix.
func (ic *InstContext) FreshName(prefix string) string {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	n := ic.counters[prefix]
	ic.counters[prefix]++
	return prefix + strconv.Itoa(n)
}

func (ic *InstContext) CreateVar(width uint, name string) *Inst {
	return ic.intern(&Inst{Kind: Var, Width: width, Name: name})
}

func (ic *InstContext) GetConst(v *BVConst) *Inst {
	return ic.intern(&Inst{Kind: Const, Width: v.Size, Value: v.Copy()})
}

func (ic *InstContext) GetConstInt(v int64, width uint) *Inst {
	return ic.GetConst(MakeBVConst(v, width))
}

// GetInst builds an operator node, validating arity and operand widths.
func (ic *InstContext) GetInst(k Kind, width uint, ops []*Inst) (*Inst, error) {
	switch {
	case k.isBinOp():
		if len(ops) != 2 {
			return nil, fmt.Errorf("%s: expected 2 operands, got %d", k, len(ops))
		}
		if ops[0].Width != ops[1].Width || ops[0].Width != width {
			return nil, fmt.Errorf("%s: invalid widths %d, %d, %d", k, width, ops[0].Width, ops[1].Width)
		}
	case k.isCmp():
		if len(ops) != 2 {
			return nil, fmt.Errorf("%s: expected 2 operands, got %d", k, len(ops))
		}
		if ops[0].Width != ops[1].Width {
			return nil, fmt.Errorf("%s: operand widths differ: %d and %d", k, ops[0].Width, ops[1].Width)
		}
		if width != 1 {
			return nil, fmt.Errorf("%s: result width must be 1", k)
		}
	case k == ZExt || k == SExt:
		if len(ops) != 1 {
			return nil, fmt.Errorf("%s: expected 1 operand, got %d", k, len(ops))
		}
		if width <= ops[0].Width {
			return nil, fmt.Errorf("%s: width %d does not extend %d", k, width, ops[0].Width)
		}
	case k == Trunc:
		if len(ops) != 1 {
			return nil, fmt.Errorf("trunc: expected 1 operand, got %d", len(ops))
		}
		if width >= ops[0].Width {
			return nil, fmt.Errorf("trunc: width %d does not truncate %d", width, ops[0].Width)
		}
	default:
		return nil, fmt.Errorf("%s: not an operator kind", k)
	}
	opsCopy := make([]*Inst, len(ops))
	copy(opsCopy, ops)
	return ic.intern(&Inst{Kind: k, Width: width, Ops: opsCopy}), nil
}

// GetInstCopy rebuilds the graph under i, substituting nodes through
// instCache and constants for variables through constMap. instCache doubles
// as the walk memo, so every occurrence of a substituted node is replaced
// uniformly and untouched subgraphs stay shared with the source.
func (ic *InstContext) GetInstCopy(i *Inst, instCache map[*Inst]*Inst, constMap map[*Inst]*BVConst) (*Inst, error) {
	if r, ok := instCache[i]; ok {
		return r, nil
	}
	var res *Inst
	if c, ok := constMap[i]; ok {
		res = ic.GetConst(c)
	} else {
		switch i.Kind {
		case Var, Const:
			res = i
		default:
			ops := make([]*Inst, len(i.Ops))
			for j, op := range i.Ops {
				opCopy, err := ic.GetInstCopy(op, instCache, constMap)
				if err != nil {
					return nil, err
				}
				ops[j] = opCopy
			}
			var err error
			res, err = ic.GetInst(i.Kind, i.Width, ops)
			if err != nil {
				return nil, err
			}
		}
	}
	instCache[i] = res
	return res, nil
}

const reservedConstPrefix = "reservedconst_"

// createReservedConst makes a fresh constant hole: a variable the constant
// synthesis oracle is expected to solve.
func (ic *InstContext) createReservedConst(width uint) *Inst {
	return ic.CreateVar(width, ic.FreshName(reservedConstPrefix))
}

func isReservedConst(i *Inst) bool {
	return i.Kind == Var && strings.HasPrefix(i.Name, reservedConstPrefix)
}

// findReservedConsts returns the constant holes in a synthesized candidate.
func findReservedConsts(root *Inst) []*Inst {
	return FindInsts(root, isReservedConst)
}
