package planner

import (
	"fmt"

	"github.com/mitchellh/hashstructure"

	"github.com/inputlayer/inputlayer/ir"
)

// canonical is a variable-name-erased, positionally-normalized shape
// of an IR subtree: equal canonical shapes mean two subtrees compute
// the same thing up to renaming, and so can share one arrangement in
// the dataflow compiler. Fields are rendered to plain strings/ints
// rather than embedding ir types directly, since those carry
// value.Value's unexported internals and hashstructure only hashes
// exported state.
type canonical struct {
	Kind      string
	Relation  string
	PredOp    int
	PredIsIn  bool
	PredLHS   string
	PredRHS   string
	Exprs     []string
	LeftKeys  []int
	RightKeys []int
	GroupKeys []int
	Aggs      []string
	Children  []uint64 // canonical hash of each child, in order
}

// CSEIndex maps a canonical subtree hash to the first node observed
// with that shape. Subsequent equal subtrees should be rewritten by
// the caller to reference the shared node instead of recomputing it.
type CSEIndex struct {
	byHash map[uint64]ir.Node
}

func NewCSEIndex() *CSEIndex { return &CSEIndex{byHash: map[uint64]ir.Node{}} }

// Canonicalize computes a node's structural hash and records it as the
// canonical representative the first time that shape is seen.
// Subsequent calls with an equal shape return the first node recorded,
// so the dataflow compiler can materialize one shared arrangement
// instead of duplicating the computation.
func (c *CSEIndex) Canonicalize(n ir.Node) (ir.Node, uint64, error) {
	h, err := hashNode(n)
	if err != nil {
		return n, 0, err
	}
	if existing, ok := c.byHash[h]; ok {
		return existing, h, nil
	}
	c.byHash[h] = n
	return n, h, nil
}

func hashNode(n ir.Node) (uint64, error) {
	shape, children := describe(n)
	childHashes := make([]uint64, 0, len(children))
	for _, c := range children {
		h, err := hashNode(c)
		if err != nil {
			return 0, err
		}
		childHashes = append(childHashes, h)
	}
	shape.Children = childHashes
	return hashstructure.Hash(shape, nil)
}

func refString(r ir.ValueRef) string {
	if r.Kind == ir.RefConst {
		return "c:" + r.Const.String()
	}
	return fmt.Sprintf("col:%d", r.Column)
}

func describe(n ir.Node) (canonical, []ir.Node) {
	switch node := n.(type) {
	case *ir.Scan:
		return canonical{Kind: "scan", Relation: node.Relation}, nil
	case *ir.Filter:
		p := node.Pred
		values := make([]string, len(p.Values))
		for i, v := range p.Values {
			values[i] = v.String()
		}
		return canonical{
			Kind:     "filter",
			PredOp:   int(p.Op),
			PredIsIn: p.IsIn,
			PredLHS:  refString(p.LHS),
			PredRHS:  refString(p.RHS) + "|" + fmt.Sprint(values),
		}, []ir.Node{node.Input}
	case *ir.Map:
		exprs := make([]string, len(node.Exprs))
		for i, e := range node.Exprs {
			args := make([]string, len(e.Args))
			for j, a := range e.Args {
				args[j] = refString(a)
			}
			exprs[i] = fmt.Sprintf("%s(%v)", e.Func, args)
		}
		return canonical{Kind: "map", Exprs: exprs}, []ir.Node{node.Input}
	case *ir.Project:
		consts := make([]string, len(node.Positions))
		for i, pos := range node.Positions {
			if pos < 0 {
				consts[i] = node.Consts[i].String()
			}
		}
		return canonical{Kind: "project", GroupKeys: node.Positions, Exprs: consts}, []ir.Node{node.Input}
	case *ir.Join:
		return canonical{Kind: "join", LeftKeys: node.LeftKeys, RightKeys: node.RightKeys}, []ir.Node{node.Left, node.Right}
	case *ir.Antijoin:
		return canonical{Kind: "antijoin", LeftKeys: node.LeftKeys, RightKeys: node.RightKeys}, []ir.Node{node.Left, node.Right}
	case *ir.Aggregate:
		aggs := make([]string, len(node.Aggregators))
		for i, a := range node.Aggregators {
			aggs[i] = fmt.Sprintf("%s(%d,k=%d,r=%f)", a.Aggregator, a.ArgColumn, a.K, a.Radius)
		}
		return canonical{Kind: "aggregate", GroupKeys: node.GroupKeys, Aggs: aggs}, []ir.Node{node.Input}
	case *ir.Distinct:
		return canonical{Kind: "distinct"}, []ir.Node{node.Input}
	case *ir.Union:
		return canonical{Kind: "union"}, node.Inputs
	case *ir.VectorSearch:
		return canonical{Kind: "vectorsearch", Relation: node.Index}, []ir.Node{node.Input}
	default:
		return canonical{Kind: "unknown"}, nil
	}
}
