package lang

// Desugar rewrites a Program in place, expanding syntactic sugar into
// the canonical forms the catalog/ir layers consume:
//
//   - rel r: RecordType declarations are left to catalog.Resolve, which
//     has access to the named record type's field order; Desugar here
//     only normalizes the parts that are purely syntactic and need no
//     catalog lookup.
//   - RuleHead aggregate positions are already split into Head.Aggregates
//     by the parser, so the remaining desugaring concern is flattening
//     batch fact assertions into one single-tuple FactAssert per tuple,
//     which simplifies downstream handling (every FactAssert the rest of
//     the pipeline sees has exactly one tuple).
func Desugar(prog *Program) *Program {
	out := &Program{Statements: make([]Statement, 0, len(prog.Statements))}
	for _, stmt := range prog.Statements {
		fa, ok := stmt.(*FactAssert)
		if !ok {
			out.Statements = append(out.Statements, stmt)
			continue
		}
		for _, tuple := range fa.Tuples {
			out.Statements = append(out.Statements, &FactAssert{
				Relation: fa.Relation,
				Tuples:   [][]Term{tuple},
				Pos:      fa.Pos,
			})
		}
	}
	return out
}
