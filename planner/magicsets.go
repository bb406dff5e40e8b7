package planner

import (
	"strings"

	"github.com/inputlayer/inputlayer/lang"
)

// Adornment is a per-argument bound/free pattern, e.g. "bf" for a
// two-argument atom whose first position is bound by the time it's
// reached in the plan and whose second is still free.
type Adornment string

const (
	adornBound = 'b'
	adornFree  = 'f'
)

// ComputeAdornment derives an atom's adornment given the set of
// variables already bound earlier in the plan (or, for the query atom
// itself, the set of constant argument positions).
func ComputeAdornment(atom lang.Atom, bound map[string]bool) Adornment {
	var sb strings.Builder
	for _, arg := range atom.Args {
		switch arg.Kind {
		case lang.TermConst:
			sb.WriteByte(adornBound)
		case lang.TermVar:
			if bound[arg.Name] {
				sb.WriteByte(adornBound)
			} else {
				sb.WriteByte(adornFree)
			}
		default:
			sb.WriteByte(adornFree)
		}
	}
	return Adornment(sb.String())
}

// MagicName returns the magic predicate name for a predicate/adornment
// pair, e.g. magic_reachable_bf.
func MagicName(predicate string, adn Adornment) string {
	return "magic_" + predicate + "_" + string(adn)
}

// MagicPlan is the result of rewriting a predicate's rule set for a
// bound query: the magic relation name, the seed tuple to assert
// before evaluation, and the rewritten rules (each with the magic atom
// prepended to its body).
type MagicPlan struct {
	MagicRelation string
	SeedArgs      []lang.Term // the bound constants from the query, in atom position order
	Rules         []*lang.Rule
}

// RewriteForBoundQuery implements the Magic-Sets transformation
// described for bound-query scenarios: given a query atom with one or
// more bound (constant) positions against a predicate whose rules
// participate in a recursive stratum, it installs a magic relation
// seeded with the bound values and rewrites every rule for that
// predicate to consume the magic relation as its first body atom,
// restricting evaluation to derivations reachable from the demand. It
// also emits the supplementary magic-propagation rules every recursive
// clause needs: for each positive occurrence of the predicate itself
// later in a rule's body, a rule that derives a new magic tuple from
// the seed and whatever body atoms precede that occurrence. Without
// those, the magic relation would only ever hold the query's own seed
// and a recursive clause could never fire past its first application.
//
// Queries with no bound positions (every argument free) need no
// rewriting: the original rules already compute the full extension.
func RewriteForBoundQuery(queryAtom lang.Atom, rules []*lang.Rule) *MagicPlan {
	adn := ComputeAdornment(queryAtom, nil)
	if !strings.ContainsRune(string(adn), adornBound) {
		return nil
	}

	magicName := MagicName(queryAtom.Predicate, adn)
	var seedArgs []lang.Term
	for i, arg := range queryAtom.Args {
		if adn[i] == adornBound {
			seedArgs = append(seedArgs, arg)
		}
	}

	rewritten := make([]*lang.Rule, 0, len(rules))
	for _, r := range rules {
		boundVars := make([]lang.Term, 0, len(seedArgs))
		for i, arg := range r.Head.Args {
			if i < len(adn) && adn[i] == adornBound && arg.Kind == lang.TermVar {
				boundVars = append(boundVars, arg)
			}
		}
		magicAtom := &lang.Atom{Predicate: magicName, Args: boundVars}
		newBody := append([]lang.BodyElem{{Kind: lang.BodyPositive, Atom: magicAtom}}, r.Body...)
		rewritten = append(rewritten, &lang.Rule{Head: r.Head, Body: newBody, Pos: r.Pos})
		rewritten = append(rewritten, supplementaryRules(r, magicAtom, queryAtom.Predicate, adn)...)
	}

	return &MagicPlan{MagicRelation: magicName, SeedArgs: seedArgs, Rules: rewritten}
}

// supplementaryRules generates one magic-propagation rule for every
// positive occurrence of predicate within r's own body (a recursive
// call back into the predicate the query demanded). Each such rule's
// head is a new magic tuple built from that occurrence's bound
// positions, and its body is the seed magic atom followed by every
// body element that precedes the recursive occurrence — exactly the
// standard Magic-Sets supplementary-rule construction, restricted to
// direct self-recursion since that is the only recursive shape this
// planner's adornments track.
func supplementaryRules(r *lang.Rule, magicAtom *lang.Atom, predicate string, adn Adornment) []*lang.Rule {
	var out []*lang.Rule
	var preceding []lang.BodyElem
	for _, elem := range r.Body {
		if elem.Kind == lang.BodyPositive && elem.Atom.Predicate == predicate {
			recurArgs := make([]lang.Term, 0, len(magicAtom.Args))
			for i, arg := range elem.Atom.Args {
				if i < len(adn) && adn[i] == adornBound {
					recurArgs = append(recurArgs, arg)
				}
			}
			recurHead := lang.Head{Predicate: magicAtom.Predicate, Args: recurArgs}
			body := append([]lang.BodyElem{{Kind: lang.BodyPositive, Atom: magicAtom}}, preceding...)
			out = append(out, &lang.Rule{Head: recurHead, Body: body, Pos: r.Pos})
		}
		preceding = append(preceding, elem)
	}
	return out
}
