package lang

import (
	"fmt"

	"github.com/inputlayer/inputlayer/value"
)

// Parse lexes and parses source into a Program. It performs no name
// resolution; see catalog.Resolve for that pass.
func Parse(source string) (*Program, error) {
	toks, err := tokenize(source)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	prog := &Program{}
	for !p.atEOF() {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		prog.Statements = append(prog.Statements, stmt)
	}
	return prog, nil
}

func tokenize(source string) ([]token, error) {
	l := newLexer(source)
	var toks []token
	for {
		t, err := l.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, t)
		if t.kind == tokEOF {
			break
		}
	}
	return toks, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token   { return p.toks[p.pos] }
func (p *parser) atEOF() bool   { return p.peek().kind == tokEOF }
func (p *parser) advance() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) errf(pos Pos, format string, args ...interface{}) error {
	return &ParseError{Pos: pos, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) expectPunct(text string) (token, error) {
	t := p.peek()
	if t.kind != tokPunct || t.text != text {
		return token{}, p.errf(t.pos, "expected %q, found %q", text, tokenDesc(t))
	}
	return p.advance(), nil
}

func (p *parser) expectIdent() (token, error) {
	t := p.peek()
	if t.kind != tokIdent {
		return token{}, p.errf(t.pos, "expected identifier, found %q", tokenDesc(t))
	}
	return p.advance(), nil
}

// expectTypeName also accepts an uppercase-leading (tokVar) type name.
func (p *parser) expectTypeName() (token, error) {
	if p.peek().kind == tokVar {
		return p.advance(), nil
	}
	return p.expectIdent()
}

func (p *parser) isPunct(text string) bool {
	t := p.peek()
	return t.kind == tokPunct && t.text == text
}

func tokenDesc(t token) string {
	if t.kind == tokEOF {
		return "<eof>"
	}
	return t.text
}

// parseStatement dispatches on the leading token.
func (p *parser) parseStatement() (Statement, error) {
	t := p.peek()
	switch {
	case t.kind == tokIdent && t.text == "type":
		return p.parseTypeDecl()
	case t.kind == tokIdent && t.text == "rel":
		return p.parseRelDecl()
	case t.kind == tokPunct && t.text == "+":
		return p.parsePlusStatement()
	case t.kind == tokPunct && t.text == "-":
		return p.parseFactRetract()
	case t.kind == tokPunct && t.text == "?":
		return p.parseQuery()
	case t.kind == tokPunct && t.text == ".":
		return p.parseMetaCommand()
	default:
		return nil, p.errf(t.pos, "unexpected token %q at start of statement", tokenDesc(t))
	}
}

// ---- type declarations ----

func (p *parser) parseTypeDecl() (Statement, error) {
	p.advance() // "type"
	name, err := p.expectTypeName()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectPunct(":"); err != nil {
		return nil, err
	}
	decl := &TypeDecl{Name: name.text, Pos: name.pos}
	if p.isPunct("{") {
		p.advance()
		rec := &RecordTypeDecl{}
		for !p.isPunct("}") {
			fname, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			if _, err := p.expectPunct(":"); err != nil {
				return nil, err
			}
			ftype, err := p.expectTypeName()
			if err != nil {
				return nil, err
			}
			rec.Fields = append(rec.Fields, RecordFieldDecl{Name: fname.text, Type: ftype.text})
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expectPunct("}"); err != nil {
			return nil, err
		}
		decl.Record = rec
		return decl, nil
	}

	base, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	decl.Base = base.text
	if p.isPunct("(") {
		p.advance()
		decl.Refinement = p.consumeRawUntilCloseParen()
		if _, err := p.expectPunct(")"); err != nil {
			return nil, err
		}
	}
	return decl, nil
}

// consumeRawUntilCloseParen collects a textual description of a
// refinement predicate's arguments without interpreting them: the set
// of supported refinement predicates is extensible and enforcing their
// semantics is left to whatever validates values against the type.
func (p *parser) consumeRawUntilCloseParen() string {
	out := ""
	depth := 0
	for {
		t := p.peek()
		if t.kind == tokEOF {
			return out
		}
		if t.kind == tokPunct && t.text == "(" {
			depth++
		}
		if t.kind == tokPunct && t.text == ")" {
			if depth == 0 {
				return out
			}
			depth--
		}
		if out != "" {
			out += " "
		}
		out += tokenDesc(t)
		p.advance()
	}
}

// ---- relation declarations ----

func (p *parser) parseRelDecl() (Statement, error) {
	p.advance() // "rel"
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	decl := &RelDecl{Name: name.text, Pos: name.pos}
	if p.isPunct(":") {
		p.advance()
		rt, err := p.expectTypeName()
		if err != nil {
			return nil, err
		}
		decl.AsRecord = rt.text
		return decl, nil
	}
	if _, err := p.expectPunct("("); err != nil {
		return nil, err
	}
	for !p.isPunct(")") {
		cname, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectPunct(":"); err != nil {
			return nil, err
		}
		ctype, err := p.expectTypeName()
		if err != nil {
			return nil, err
		}
		decl.Columns = append(decl.Columns, RelColumnDecl{Name: cname.text, Type: ctype.text})
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return decl, nil
}

// ---- "+" statements: fact assert (single/batch) or rule ----

func (p *parser) parsePlusStatement() (Statement, error) {
	plus := p.advance() // "+"
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}

	if p.isPunct("[") {
		return p.parseBatchFactAssert(name)
	}

	if _, err := p.expectPunct("("); err != nil {
		return nil, err
	}
	head, err := p.parseHeadArgs(name)
	if err != nil {
		return nil, err
	}
	if _, err := p.expectPunct(")"); err != nil {
		return nil, err
	}

	if p.isPunct(":=") {
		return nil, &LegacyOperatorError{Pos: p.peek().pos}
	}

	if p.isPunct("<-") {
		p.advance()
		body, err := p.parseBody()
		if err != nil {
			return nil, err
		}
		return &Rule{Head: head, Body: body, Pos: plus.pos}, nil
	}

	// plain fact assertion: every arg must be a constant
	args := make([]Term, len(head.Args))
	for i, a := range head.Args {
		if a.Kind != TermConst {
			return nil, p.errf(plus.pos, "fact assertion arguments must be constants")
		}
		args[i] = a
	}
	return &FactAssert{Relation: name.text, Tuples: [][]Term{args}, Pos: plus.pos}, nil
}

func (p *parser) parseBatchFactAssert(name token) (Statement, error) {
	p.advance() // "["
	fa := &FactAssert{Relation: name.text, Pos: name.pos}
	for !p.isPunct("]") {
		if _, err := p.expectPunct("("); err != nil {
			return nil, err
		}
		var args []Term
		for !p.isPunct(")") {
			term, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			if term.Kind != TermConst {
				return nil, p.errf(p.peek().pos, "batch fact arguments must be constants")
			}
			args = append(args, term)
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		fa.Tuples = append(fa.Tuples, args)
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expectPunct("]"); err != nil {
		return nil, err
	}
	return fa, nil
}

// parseHeadArgs parses a head atom's argument list, recognizing
// aggregate syntax `agg<X>` / `top_k<X, k>` / `within_radius<X, r>` in
// any position.
func (p *parser) parseHeadArgs(name token) (Head, error) {
	h := Head{Predicate: name.text, Pos: name.pos, Aggregates: map[int]AggregateHead{}}
	i := 0
	for !p.isPunct(")") {
		if agg, ok, err := p.tryParseAggregateHead(); err != nil {
			return Head{}, err
		} else if ok {
			h.Aggregates[i] = agg
			h.Args = append(h.Args, Term{Kind: TermVar, Name: fmt.Sprintf("$agg%d", i)})
		} else {
			term, err := p.parseTerm()
			if err != nil {
				return Head{}, err
			}
			h.Args = append(h.Args, term)
		}
		i++
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}
	return h, nil
}

var aggregatorNames = map[string]Aggregator{
	"count":          AggCount,
	"count_distinct": AggCountDistinct,
	"sum":            AggSum,
	"min":            AggMin,
	"max":            AggMax,
	"avg":            AggAvg,
	"top_k":          AggTopK,
	"within_radius":  AggWithinRadius,
}

func (p *parser) tryParseAggregateHead() (AggregateHead, bool, error) {
	t := p.peek()
	if t.kind != tokIdent {
		return AggregateHead{}, false, nil
	}
	agg, ok := aggregatorNames[t.text]
	if !ok {
		return AggregateHead{}, false, nil
	}
	next := p.toks[p.pos+1]
	if !(next.kind == tokPunct && next.text == "<") {
		return AggregateHead{}, false, nil
	}
	p.advance() // name
	p.advance() // "<"
	arg, err := p.parseTerm()
	if err != nil {
		return AggregateHead{}, false, err
	}
	out := AggregateHead{Aggregator: agg, Arg: arg}
	if p.isPunct(",") {
		p.advance()
		lit := p.peek()
		if agg == AggTopK {
			if lit.kind != tokInt {
				return AggregateHead{}, false, p.errf(lit.pos, "top_k requires an integer k")
			}
			k, err := parseIntLiteral(lit.text)
			if err != nil {
				return AggregateHead{}, false, err
			}
			out.K = k
			p.advance()
		} else if agg == AggWithinRadius {
			r, err := p.parseNumberLiteralAsFloat()
			if err != nil {
				return AggregateHead{}, false, err
			}
			out.Radius = r
		}
	}
	if _, err := p.expectPunct(">"); err != nil {
		return AggregateHead{}, false, err
	}
	return out, true, nil
}

func (p *parser) parseNumberLiteralAsFloat() (float64, error) {
	t := p.peek()
	switch t.kind {
	case tokInt:
		v, err := parseIntLiteral(t.text)
		p.advance()
		return float64(v), err
	case tokFloat:
		v, err := parseFloatLiteral(t.text)
		p.advance()
		return v, err
	default:
		return 0, p.errf(t.pos, "expected a number, found %q", tokenDesc(t))
	}
}

// ---- terms ----

func (p *parser) parseTerm() (Term, error) {
	t := p.peek()
	switch t.kind {
	case tokVar:
		p.advance()
		return Var(t.text), nil
	case tokWildcard:
		p.advance()
		return Wildcard(), nil
	case tokInt:
		p.advance()
		v, err := parseIntLiteral(t.text)
		if err != nil {
			return Term{}, p.errf(t.pos, "invalid integer literal %q", t.text)
		}
		return Const(value.Int(v)), nil
	case tokFloat:
		p.advance()
		v, err := parseFloatLiteral(t.text)
		if err != nil {
			return Term{}, p.errf(t.pos, "invalid float literal %q", t.text)
		}
		return Const(value.Float(v)), nil
	case tokString:
		p.advance()
		return Const(value.String(t.text)), nil
	case tokIdent:
		p.advance()
		switch t.text {
		case "true":
			return Const(value.Bool(true)), nil
		case "false":
			return Const(value.Bool(false)), nil
		default:
			return Const(value.String(t.text)), nil
		}
	default:
		return Term{}, p.errf(t.pos, "expected a term, found %q", tokenDesc(t))
	}
}

// ---- fact retraction ----

func (p *parser) parseFactRetract() (Statement, error) {
	minus := p.advance() // "-"
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var args []Term
	for !p.isPunct(")") {
		term, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		args = append(args, term)
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return &FactRetract{Relation: name.text, Args: args, Pos: minus.pos}, nil
}

// ---- rule bodies ----

func (p *parser) parseBody() ([]BodyElem, error) {
	var elems []BodyElem
	for {
		elem, err := p.parseBodyElem()
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}
	return elems, nil
}

func (p *parser) parseBodyElem() (BodyElem, error) {
	if p.isPunct("!") {
		p.advance()
		atom, err := p.parseAtom()
		if err != nil {
			return BodyElem{}, err
		}
		return BodyElem{Kind: BodyNegated, Atom: &atom}, nil
	}

	// binding form: Var = f(args...) or Var = expr, distinguished from
	// a comparison by the LHS being a bare variable followed by "=" and
	// an expression that is a function call or arithmetic term.
	if p.peek().kind == tokVar {
		save := p.pos
		v := p.advance()
		if p.isPunct("=") {
			p.advance()
			if binding, ok, err := p.tryParseBinding(v.text); err != nil {
				return BodyElem{}, err
			} else if ok {
				return binding, nil
			}
		}
		p.pos = save
	}

	if isAtomStart(p) {
		atom, err := p.parseAtom()
		if err != nil {
			return BodyElem{}, err
		}
		return BodyElem{Kind: BodyPositive, Atom: &atom}, nil
	}

	return p.parseCompareOrInSet()
}

func isAtomStart(p *parser) bool {
	if p.peek().kind != tokIdent {
		return false
	}
	next := p.toks[p.pos+1]
	return next.kind == tokPunct && next.text == "("
}

func (p *parser) parseAtom() (Atom, error) {
	name, err := p.expectIdent()
	if err != nil {
		return Atom{}, err
	}
	if _, err := p.expectPunct("("); err != nil {
		return Atom{}, err
	}
	var args []Term
	for !p.isPunct(")") {
		term, err := p.parseTerm()
		if err != nil {
			return Atom{}, err
		}
		args = append(args, term)
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expectPunct(")"); err != nil {
		return Atom{}, err
	}
	return Atom{Predicate: name.text, Args: args, Pos: name.pos}, nil
}

// tryParseBinding attempts `f(args...)` or a single term as the RHS of
// `Var = ...`. Returns ok=false if the RHS doesn't look like a binding
// expression (caller falls back to treating it as a comparison).
func (p *parser) tryParseBinding(varName string) (BodyElem, bool, error) {
	if p.peek().kind == tokIdent {
		next := p.toks[p.pos+1]
		if next.kind == tokPunct && next.text == "(" {
			fname := p.advance()
			p.advance() // "("
			var args []Term
			for !p.isPunct(")") {
				t, err := p.parseTerm()
				if err != nil {
					return BodyElem{}, false, err
				}
				args = append(args, t)
				if p.isPunct(",") {
					p.advance()
					continue
				}
				break
			}
			if _, err := p.expectPunct(")"); err != nil {
				return BodyElem{}, false, err
			}
			return BodyElem{Kind: BodyBinding, BindVar: varName, BindFunc: fname.text, BindArgs: args}, true, nil
		}
	}
	// arithmetic expression: Term (op Term)*
	lhs, err := p.parseTerm()
	if err != nil {
		return BodyElem{}, false, err
	}
	if !p.isArithOp() {
		return BodyElem{Kind: BodyBinding, BindVar: varName, BindFunc: "id", BindArgs: []Term{lhs}}, true, nil
	}
	op := p.advance()
	rhs, err := p.parseTerm()
	if err != nil {
		return BodyElem{}, false, err
	}
	return BodyElem{Kind: BodyBinding, BindVar: varName, BindFunc: op.text, BindArgs: []Term{lhs, rhs}}, true, nil
}

func (p *parser) isArithOp() bool {
	t := p.peek()
	if t.kind != tokPunct {
		return false
	}
	switch t.text {
	case "+", "-", "*", "/":
		return true
	default:
		return false
	}
}

func (p *parser) parseCompareOrInSet() (BodyElem, error) {
	lhs, err := p.parseTerm()
	if err != nil {
		return BodyElem{}, err
	}
	t := p.peek()
	if t.kind == tokIdent && t.text == "in" {
		p.advance()
		if _, err := p.expectPunct("["); err != nil {
			return BodyElem{}, err
		}
		var values []Term
		for !p.isPunct("]") {
			v, err := p.parseTerm()
			if err != nil {
				return BodyElem{}, err
			}
			values = append(values, v)
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expectPunct("]"); err != nil {
			return BodyElem{}, err
		}
		if lhs.Kind != TermVar {
			return BodyElem{}, p.errf(t.pos, "in-set test requires a variable on the left")
		}
		return BodyElem{Kind: BodyInSet, InSetVar: lhs.Name, InSetValues: values}, nil
	}

	op, err := p.parseCompareOp()
	if err != nil {
		return BodyElem{}, err
	}
	rhs, err := p.parseTerm()
	if err != nil {
		return BodyElem{}, err
	}
	return BodyElem{Kind: BodyCompare, CompareOp: op, CompareLHS: lhs, CompareRHS: rhs}, nil
}

func (p *parser) parseCompareOp() (CompareOp, error) {
	t := p.peek()
	if t.kind != tokPunct {
		return 0, p.errf(t.pos, "expected a comparison operator, found %q", tokenDesc(t))
	}
	switch t.text {
	case "=":
		p.advance()
		return OpEq, nil
	case "!=":
		p.advance()
		return OpNeq, nil
	case "<":
		p.advance()
		return OpLt, nil
	case ">":
		p.advance()
		return OpGt, nil
	case "<=":
		p.advance()
		return OpLe, nil
	case ">=":
		p.advance()
		return OpGe, nil
	default:
		return 0, p.errf(t.pos, "expected a comparison operator, found %q", tokenDesc(t))
	}
}

// ---- queries ----

func (p *parser) parseQuery() (Statement, error) {
	q := p.advance() // "?"
	atom, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	query := &Query{Atom: atom, Pos: q.pos}
	for p.isPunct(",") {
		p.advance()
		elem, err := p.parseBodyElem()
		if err != nil {
			return nil, err
		}
		query.Constraints = append(query.Constraints, elem)
	}
	return query, nil
}

// ---- meta commands ----

func (p *parser) parseMetaCommand() (Statement, error) {
	dot := p.advance() // "."
	group, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	switch group.text {
	case "kg":
		sub, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		cmd := &MetaCommand{Pos: dot.pos}
		switch sub.text {
		case "create":
			cmd.Kind = MetaKGCreate
		case "use":
			cmd.Kind = MetaKGUse
		case "drop":
			cmd.Kind = MetaKGDrop
		case "list":
			cmd.Kind = MetaKGList
			return cmd, nil
		default:
			return nil, p.errf(sub.pos, "unknown .kg subcommand %q", sub.text)
		}
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		cmd.Name = name.text
		return cmd, nil
	case "rule":
		sub, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		cmd := &MetaCommand{Pos: dot.pos}
		switch sub.text {
		case "list":
			cmd.Kind = MetaRuleList
			return cmd, nil
		case "clear":
			cmd.Kind = MetaRuleClear
			return cmd, nil
		case "drop":
			cmd.Kind = MetaRuleDrop
			name, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			cmd.Name = name.text
			return cmd, nil
		default:
			return nil, p.errf(sub.pos, "unknown .rule subcommand %q", sub.text)
		}
	case "compact":
		return &MetaCommand{Kind: MetaCompact, Pos: dot.pos}, nil
	case "status":
		return &MetaCommand{Kind: MetaStatus, Pos: dot.pos}, nil
	case "index":
		sub, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		cmd := &MetaCommand{Pos: dot.pos}
		switch sub.text {
		case "create":
			cmd.Kind = MetaIndexCreate
			name, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			cmd.Name = name.text
			if _, err := p.expectIdent(); err != nil { // "on"
				return nil, err
			}
			rel, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			cmd.Relation = rel.text
			if _, err := p.expectPunct("."); err != nil {
				return nil, err
			}
			col, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			cmd.Column = col.text
			if p.peek().kind == tokIdent && p.peek().text == "metric" {
				p.advance()
				metric, err := p.expectIdent()
				if err != nil {
					return nil, err
				}
				cmd.Metric = metric.text
			}
			return cmd, nil
		case "drop":
			cmd.Kind = MetaIndexDrop
			name, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			cmd.Name = name.text
			return cmd, nil
		default:
			return nil, p.errf(sub.pos, "unknown .index subcommand %q", sub.text)
		}
	default:
		return nil, p.errf(group.pos, "unknown meta-command group %q", group.text)
	}
}
