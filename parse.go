package souper

import (
	"fmt"
	"strconv"
	"strings"
)

// parser is the thin boundary reader for the rule notation emitted by
// Render. One parser instance consumes one input buffer, which may hold any
// number of rules; each rule ends at its "result" line.
type parser struct {
	ic    *InstContext
	names map[string]*Inst
	facts FactTable
	pcs   []PathCondition
	bpcs  []PathCondition
	infer *Inst
}

// ParseReplacements parses every rule in data. Any error is fatal to the
// whole input: the caller is expected to treat it as a user error.
func ParseReplacements(ic *InstContext, data string) ([]*ParsedReplacement, error) {
	p := &parser{ic: ic}
	p.reset()

	res := make([]*ParsedReplacement, 0)
	for n, line := range strings.Split(data, "\n") {
		if idx := strings.Index(line, ";"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		rep, err := p.parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n+1, err)
		}
		if rep != nil {
			res = append(res, rep)
			p.reset()
		}
	}
	if p.infer != nil || len(p.pcs) > 0 || len(p.bpcs) > 0 || len(p.names) > 0 {
		return nil, fmt.Errorf("unexpected end of input: missing result")
	}
	return res, nil
}

func (p *parser) reset() {
	p.names = make(map[string]*Inst)
	p.facts = make(FactTable)
	p.pcs = nil
	p.bpcs = nil
	p.infer = nil
}

// parseLine consumes one non-empty line and returns a completed rule when
// the line is a "result".
func (p *parser) parseLine(line string) (*ParsedReplacement, error) {
	switch {
	case strings.HasPrefix(line, "infer "):
		if p.infer != nil {
			return nil, fmt.Errorf("duplicate infer")
		}
		op, err := p.parseOperand(strings.TrimSpace(line[len("infer "):]))
		if err != nil {
			return nil, err
		}
		p.infer = op
		return nil, nil

	case strings.HasPrefix(line, "result "):
		if p.infer == nil {
			return nil, fmt.Errorf("result before infer")
		}
		op, err := p.parseOperand(strings.TrimSpace(line[len("result "):]))
		if err != nil {
			return nil, err
		}
		rep := &ParsedReplacement{
			Mapping: InstMapping{LHS: p.infer, RHS: op},
			PCs:     p.pcs,
			BPCs:    p.bpcs,
			Facts:   p.facts,
		}
		if err := rep.Validate(); err != nil {
			return nil, err
		}
		return rep, nil

	case strings.HasPrefix(line, "pc "):
		pc, err := p.parsePC(line[len("pc "):])
		if err != nil {
			return nil, err
		}
		p.pcs = append(p.pcs, pc)
		return nil, nil

	case strings.HasPrefix(line, "blockpc "):
		pc, err := p.parsePC(line[len("blockpc "):])
		if err != nil {
			return nil, err
		}
		p.bpcs = append(p.bpcs, pc)
		return nil, nil

	default:
		return nil, p.parseDef(line)
	}
}

func (p *parser) parsePC(rest string) (PathCondition, error) {
	fields := strings.Fields(rest)
	if len(fields) != 2 {
		return PathCondition{}, fmt.Errorf("pc: expected 2 operands")
	}
	lhs, err := p.parseOperand(fields[0])
	if err != nil {
		return PathCondition{}, err
	}
	rhs, err := p.parseOperand(fields[1])
	if err != nil {
		return PathCondition{}, err
	}
	if lhs.Width != rhs.Width {
		return PathCondition{}, fmt.Errorf("pc: operand widths differ")
	}
	return PathCondition{LHS: lhs, RHS: rhs}, nil
}

// parseDef handles "%name:iW = var ..." and "%name:iW = op ...".
func (p *parser) parseDef(line string) error {
	eq := strings.Index(line, "=")
	if eq < 0 {
		return fmt.Errorf("expected definition, got %q", line)
	}
	name, width, err := parseTypedName(strings.TrimSpace(line[:eq]))
	if err != nil {
		return err
	}
	if _, ok := p.names[name]; ok {
		return fmt.Errorf("%%%s redefined", name)
	}
	rhs := strings.TrimSpace(line[eq+1:])

	if rhs == "var" || strings.HasPrefix(rhs, "var ") {
		inst := p.ic.CreateVar(width, name)
		p.names[name] = inst
		return p.parseVarAttrs(inst, strings.TrimSpace(rhs[3:]))
	}

	sp := strings.IndexByte(rhs, ' ')
	if sp < 0 {
		return fmt.Errorf("expected operands after %q", rhs)
	}
	kind, ok := KindFromString(rhs[:sp])
	if !ok || kind == Var || kind == Const {
		return fmt.Errorf("unknown operation %q", rhs[:sp])
	}
	var ops []*Inst
	for _, tok := range strings.Split(rhs[sp+1:], ",") {
		op, err := p.parseOperand(strings.TrimSpace(tok))
		if err != nil {
			return err
		}
		ops = append(ops, op)
	}
	inst, err := p.ic.GetInst(kind, width, ops)
	if err != nil {
		return err
	}
	p.names[name] = inst
	return nil
}

// parseVarAttrs parses the parenthesized fact attributes on a var line.
func (p *parser) parseVarAttrs(v *Inst, rest string) error {
	for rest != "" {
		if rest[0] != '(' {
			return fmt.Errorf("expected attribute, got %q", rest)
		}
		end := strings.IndexByte(rest, ')')
		if strings.HasPrefix(rest, "(range=") {
			// the interval notation carries its own ')'
			if idx := strings.Index(rest, "))"); idx >= 0 {
				end = idx + 1
			} else {
				end = -1
			}
		}
		if end < 0 {
			return fmt.Errorf("unterminated attribute %q", rest)
		}
		attr := rest[1:end]
		rest = strings.TrimSpace(rest[end+1:])

		f := p.facts.facts(v)
		switch {
		case strings.HasPrefix(attr, "knownBits="):
			kb, err := ParseKnownBits(attr[len("knownBits="):])
			if err != nil {
				return err
			}
			if kb.Width() != v.Width {
				return fmt.Errorf("knownBits width %d does not match %%%s:i%d", kb.Width(), v.Name, v.Width)
			}
			f.KB = &kb
		case strings.HasPrefix(attr, "range=["):
			body := strings.TrimSuffix(attr[len("range=["):], ")")
			parts := strings.Split(body, ",")
			if len(parts) != 2 {
				return fmt.Errorf("invalid range attribute %q", attr)
			}
			lo, err := parseConstValue(parts[0], v.Width)
			if err != nil {
				return err
			}
			hi, err := parseConstValue(parts[1], v.Width)
			if err != nil {
				return err
			}
			f.Range = &ConstantRange{Lower: lo, Upper: hi}
		case attr == "nonNegative":
			f.NonNegative = true
		case attr == "negative":
			f.Negative = true
		case attr == "nonZero":
			f.NonZero = true
		case attr == "powerOfTwo":
			f.PowerOfTwo = true
		case strings.HasPrefix(attr, "signBits="):
			n, err := strconv.ParseUint(attr[len("signBits="):], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid signBits attribute %q", attr)
			}
			f.SignBits = uint(n)
		default:
			return fmt.Errorf("unknown attribute %q", attr)
		}
	}
	return nil
}

// parseOperand parses "%name" or an inline constant "value:iW".
func (p *parser) parseOperand(tok string) (*Inst, error) {
	if strings.HasPrefix(tok, "%") {
		inst, ok := p.names[tok[1:]]
		if !ok {
			return nil, fmt.Errorf("%s used before definition", tok)
		}
		return inst, nil
	}
	colon := strings.LastIndexByte(tok, ':')
	if colon < 0 {
		return nil, fmt.Errorf("invalid operand %q", tok)
	}
	width, err := parseWidth(tok[colon+1:])
	if err != nil {
		return nil, err
	}
	v, err := parseConstValue(tok[:colon], width)
	if err != nil {
		return nil, err
	}
	return p.ic.GetConst(v), nil
}

// parseTypedName parses "%name:iW".
func parseTypedName(tok string) (string, uint, error) {
	if !strings.HasPrefix(tok, "%") {
		return "", 0, fmt.Errorf("expected %%name:iW, got %q", tok)
	}
	colon := strings.LastIndexByte(tok, ':')
	if colon < 0 {
		return "", 0, fmt.Errorf("missing width in %q", tok)
	}
	width, err := parseWidth(tok[colon+1:])
	if err != nil {
		return "", 0, err
	}
	return tok[1:colon], width, nil
}

func parseWidth(tok string) (uint, error) {
	if !strings.HasPrefix(tok, "i") {
		return 0, fmt.Errorf("invalid width %q", tok)
	}
	w, err := strconv.ParseUint(tok[1:], 10, 32)
	if err != nil || w == 0 {
		return 0, fmt.Errorf("invalid width %q", tok)
	}
	return uint(w), nil
}

func parseConstValue(tok string, width uint) (*BVConst, error) {
	tok = strings.TrimSpace(tok)
	neg := strings.HasPrefix(tok, "-")
	body := strings.TrimPrefix(tok, "-")
	base := 10
	if strings.HasPrefix(body, "0x") {
		base = 16
		body = body[2:]
	}
	c := MakeBVConstFromString(body, base, width)
	if c == nil {
		return nil, fmt.Errorf("invalid constant %q", tok)
	}
	if neg {
		c.Neg()
	}
	return c, nil
}
