package analyzer

import (
	"github.com/inputlayer/inputlayer/errs"
	"github.com/inputlayer/inputlayer/lang"
)

// CheckSafety verifies range restriction: every variable used in the
// head, in a negated atom, in a comparison, in a binding's arguments,
// or in an in-set test must occur in some positive body atom. Fails
// with UnsafeRule naming the first offending variable.
func CheckSafety(rule *lang.Rule) error {
	bound := map[string]bool{}
	for _, elem := range rule.Body {
		if elem.Kind == lang.BodyPositive {
			for _, arg := range elem.Atom.Args {
				if arg.Kind == lang.TermVar {
					bound[arg.Name] = true
				}
			}
		}
	}

	for _, elem := range rule.Body {
		switch elem.Kind {
		case lang.BodyNegated:
			for _, arg := range elem.Atom.Args {
				if arg.Kind == lang.TermVar && !bound[arg.Name] {
					return errs.ErrUnsafeRule.New(arg.Name)
				}
			}
		case lang.BodyCompare:
			if err := requireBound(bound, elem.CompareLHS); err != nil {
				return err
			}
			if err := requireBound(bound, elem.CompareRHS); err != nil {
				return err
			}
		case lang.BodyBinding:
			for _, arg := range elem.BindArgs {
				if err := requireBound(bound, arg); err != nil {
					return err
				}
			}
			bound[elem.BindVar] = true
		case lang.BodyInSet:
			if !bound[elem.InSetVar] {
				return errs.ErrUnsafeRule.New(elem.InSetVar)
			}
		}
	}

	for i, arg := range rule.Head.Args {
		if _, isAgg := rule.Head.Aggregates[i]; isAgg {
			continue
		}
		if arg.Kind == lang.TermVar && !bound[arg.Name] {
			return errs.ErrUnsafeRule.New(arg.Name)
		}
	}
	for _, agg := range rule.Head.Aggregates {
		if agg.Arg.Kind == lang.TermVar && !bound[agg.Arg.Name] {
			return errs.ErrUnsafeRule.New(agg.Arg.Name)
		}
	}
	return nil
}

func requireBound(bound map[string]bool, t lang.Term) error {
	if t.Kind == lang.TermVar && !bound[t.Name] {
		return errs.ErrUnsafeRule.New(t.Name)
	}
	return nil
}
