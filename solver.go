package souper

// PreconditionResult is the answer to an abstract-precondition query. Either
// the rule is valid as-is, or each element of KBResults / CRResults is an
// independent assignment set sufficient on its own to make the rule valid.
// CRResults is consulted only when KBResults is empty.
type PreconditionResult struct {
	ValidAsIs bool
	KBResults []map[*Inst]KnownBits
	CRResults []map[*Inst]ConstantRange
}

// Found reports whether the query produced anything at all.
func (pr *PreconditionResult) Found() bool {
	return pr.ValidAsIs || len(pr.KBResults) > 0 || len(pr.CRResults) > 0
}

// Solver is the verification oracle. Implementations are expected to be
// sound: IsValid returning true means no assignment satisfying the rule's
// guard (path conditions plus variable facts) makes LHS differ from RHS.
// Queries may be slow; they are the only unbounded-cost operation in the
// system, so a caller wanting a timeout must impose it around the call.
type Solver interface {
	// IsValid checks the rule, returning counterexample assignments when it
	// does not hold.
	IsValid(rep *ParsedReplacement) (bool, []ValueCache, error)

	// AbstractPrecondition infers dataflow facts sufficient for validity.
	AbstractPrecondition(rep *ParsedReplacement) (*PreconditionResult, error)
}

// ExprEnumerator is the enumerative synthesis oracle: a finite set of
// syntactically distinct candidate expressions of the requested width over
// the given inputs and fresh constant holes, up to the size bound. No
// ordering is guaranteed.
type ExprEnumerator interface {
	GenerateExprs(ic *InstContext, numInsts int, inputs []*Inst, width uint) ([]*Inst, error)
}

// ConstSynthesizer is the constant synthesis oracle: find values for the
// rule's constant holes making the mapping valid under its guard for all
// variable assignments.
type ConstSynthesizer interface {
	Synthesize(s Solver, ic *InstContext, rep *ParsedReplacement, consts []*Inst,
		maxTries, cexBudget int, avoidNops bool) (map[*Inst]*BVConst, error)
}
