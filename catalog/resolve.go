package catalog

import (
	"fmt"

	"github.com/inputlayer/inputlayer/errs"
	"github.com/inputlayer/inputlayer/lang"
	"github.com/inputlayer/inputlayer/value"
)

// ResolvedProgram is a desugared Program whose statements have all
// passed name/arity/type resolution against a Catalog. Consumers
// further down the pipeline (ir.Build, the session dispatcher) can
// trust every reference in it.
type ResolvedProgram struct {
	TypeDecls []*lang.TypeDecl
	RelDecls  []*lang.RelDecl
	Facts     []*lang.FactAssert
	Retracts  []*lang.FactRetract
	Rules     []*lang.Rule
	Queries   []*lang.Query
	Metas     []*lang.MetaCommand
}

// recordTypes collects the record type declarations seen during
// Resolve. Record-sugar relation declarations do not read it: they
// expand against the catalog, which already holds a type declared
// earlier in the same program because Resolve defines each type as it
// reaches it.
type recordTypes struct {
	named map[string]*lang.RecordTypeDecl
}

// Resolve validates every statement in prog against cat (mutating cat
// for type/relation declarations as it goes) and returns the resolved,
// desugared program. On the first error it stops and returns it;
// statements before the error have already been applied to cat, a
// best-effort-up-to-first-failure semantics rather than an all-or-nothing
// transaction over the whole batch.
func Resolve(prog *lang.Program, cat *Catalog) (*ResolvedProgram, error) {
	desugared := lang.Desugar(prog)
	out := &ResolvedProgram{}
	rt := &recordTypes{named: map[string]*lang.RecordTypeDecl{}}

	// First pass: register every rule head's arity so forward and
	// mutually-recursive references between rules in the same program
	// resolve without requiring a prior `rel` declaration for IDB
	// relations introduced purely by rule heads.
	headArity := map[string]int{}
	for _, stmt := range desugared.Statements {
		if rule, ok := stmt.(*lang.Rule); ok {
			headArity[rule.Head.Predicate] = len(rule.Head.Args)
		}
	}

	for _, stmt := range desugared.Statements {
		switch s := stmt.(type) {
		case *lang.TypeDecl:
			if err := resolveTypeDecl(s, cat, rt); err != nil {
				return nil, err
			}
			out.TypeDecls = append(out.TypeDecls, s)

		case *lang.RelDecl:
			if err := resolveRelDecl(s, cat, rt); err != nil {
				return nil, err
			}
			out.RelDecls = append(out.RelDecls, s)

		case *lang.FactAssert:
			if err := resolveFactAssert(s, cat); err != nil {
				return nil, err
			}
			out.Facts = append(out.Facts, s)

		case *lang.FactRetract:
			if err := resolveFactRetract(s, cat); err != nil {
				return nil, err
			}
			out.Retracts = append(out.Retracts, s)

		case *lang.Rule:
			if err := resolveRule(s, cat, headArity); err != nil {
				return nil, err
			}
			out.Rules = append(out.Rules, s)

		case *lang.Query:
			if err := resolveAtomArity(s.Atom, cat, headArity); err != nil {
				return nil, err
			}
			out.Queries = append(out.Queries, s)

		case *lang.MetaCommand:
			out.Metas = append(out.Metas, s)

		default:
			return nil, errs.ErrInternal.New(fmt.Sprintf("unhandled statement type %T", stmt))
		}
	}
	return out, nil
}

func resolveTypeDecl(decl *lang.TypeDecl, cat *Catalog, rt *recordTypes) error {
	if decl.Record != nil {
		seen := map[string]bool{}
		fields := make([]value.RecordTypeField, 0, len(decl.Record.Fields))
		for _, f := range decl.Record.Fields {
			if seen[f.Name] {
				return errs.ErrAmbiguousColumn.New(f.Name)
			}
			seen[f.Name] = true
			base, ok := cat.LookupType(f.Type)
			if !ok {
				return errs.ErrUnknownType.New(f.Type)
			}
			fields = append(fields, value.RecordTypeField{Name: f.Name, Type: base})
		}
		rt.named[decl.Name] = decl.Record
		cat.DefineType(decl.Name, value.Type{
			Base:   value.KindRecord,
			Name:   decl.Name,
			Record: &value.RecordType{Fields: fields},
		})
		return nil
	}

	base, ok := cat.LookupType(decl.Base)
	if !ok {
		return errs.ErrUnknownType.New(decl.Base)
	}
	base.Name = decl.Name
	base.Refinement = decl.Refinement
	cat.DefineType(decl.Name, base)
	return nil
}

func resolveRelDecl(decl *lang.RelDecl, cat *Catalog, rt *recordTypes) error {
	if decl.AsRecord != "" {
		recType, ok := cat.LookupType(decl.AsRecord)
		if !ok || recType.Record == nil {
			return errs.ErrRecordSugarMismatch.New(decl.AsRecord)
		}
		schema := make(value.Schema, 0, len(recType.Record.Fields))
		for _, f := range recType.Record.Fields {
			schema = append(schema, value.Column{Name: f.Name, Type: f.Type})
		}
		return cat.DefineRelation(decl.Name, schema)
	}

	seen := map[string]bool{}
	schema := make(value.Schema, 0, len(decl.Columns))
	for _, col := range decl.Columns {
		if seen[col.Name] {
			return errs.ErrAmbiguousColumn.New(col.Name)
		}
		seen[col.Name] = true
		t, ok := cat.LookupType(col.Type)
		if !ok {
			return errs.ErrUnknownType.New(col.Type)
		}
		schema = append(schema, value.Column{Name: col.Name, Type: t})
	}
	return cat.DefineRelation(decl.Name, schema)
}

func resolveFactAssert(fa *lang.FactAssert, cat *Catalog) error {
	schema, ok := cat.LookupRelation(fa.Relation)
	if !ok {
		return errs.ErrUnknownRelation.New(fa.Relation)
	}
	for _, tuple := range fa.Tuples {
		if len(tuple) != schema.Arity() {
			return errs.ErrArityMismatch.New(schema.Arity(), len(tuple))
		}
		for i, term := range tuple {
			if term.Kind != lang.TermConst {
				return errs.ErrInternal.New("fact assertion argument is not a constant after desugaring")
			}
			if term.Const.Kind() != schema[i].Type.Base {
				return errs.ErrTypeMismatch.New(i, schema[i].Type.Base, term.Const.Kind())
			}
		}
	}
	return nil
}

func resolveFactRetract(fr *lang.FactRetract, cat *Catalog) error {
	schema, ok := cat.LookupRelation(fr.Relation)
	if !ok {
		return errs.ErrUnknownRelation.New(fr.Relation)
	}
	if len(fr.Args) != schema.Arity() {
		return errs.ErrArityMismatch.New(schema.Arity(), len(fr.Args))
	}
	return nil
}

func resolveRule(rule *lang.Rule, cat *Catalog, headArity map[string]int) error {
	for _, elem := range rule.Body {
		switch elem.Kind {
		case lang.BodyPositive, lang.BodyNegated:
			if err := resolveAtomArity(*elem.Atom, cat, headArity); err != nil {
				return err
			}
		}
	}
	return nil
}

func resolveAtomArity(atom lang.Atom, cat *Catalog, headArity map[string]int) error {
	if schema, ok := cat.LookupRelation(atom.Predicate); ok {
		if schema.Arity() != len(atom.Args) {
			return errs.ErrArityMismatch.New(schema.Arity(), len(atom.Args))
		}
		return nil
	}
	if arity, ok := headArity[atom.Predicate]; ok {
		if arity != len(atom.Args) {
			return errs.ErrArityMismatch.New(arity, len(atom.Args))
		}
		return nil
	}
	return errs.ErrUnknownRelation.New(atom.Predicate)
}
