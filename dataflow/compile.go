package dataflow

import (
	"github.com/inputlayer/inputlayer/errs"
	"github.com/inputlayer/inputlayer/ir"
)

// VectorIndexResolver hands compile.go a live VectorIndex for an
// ir.VectorSearch node's named index, so an evaluator can wire its
// hnsw-backed indexes in without this package depending on the hnsw
// package's construction details.
type VectorIndexResolver func(indexName string) (VectorIndex, error)

// Compiler lowers IR into an executable operator tree, recording every
// Scan it creates so the caller can route EDB commits and recursive
// feedback to the right leaves.
type Compiler struct {
	Vectors VectorIndexResolver
	scans   map[string][]*ScanOp
}

func NewCompiler(vectors VectorIndexResolver) *Compiler {
	return &Compiler{Vectors: vectors, scans: map[string][]*ScanOp{}}
}

// Scans returns every ScanOp compiled so far for relation, in
// compilation order.
func (c *Compiler) Scans(relation string) []*ScanOp { return c.scans[relation] }

// Compile translates one IR node (and everything beneath it) into an
// Operator tree.
func (c *Compiler) Compile(node ir.Node) (Operator, error) {
	switch n := node.(type) {
	case *ir.Scan:
		op := NewScanOp(n.Relation, n.Schema(), n.Vars())
		c.scans[n.Relation] = append(c.scans[n.Relation], op)
		return op, nil

	case *ir.Filter:
		input, err := c.Compile(n.Input)
		if err != nil {
			return nil, err
		}
		return NewFilterOp(input, n.Pred), nil

	case *ir.Map:
		input, err := c.Compile(n.Input)
		if err != nil {
			return nil, err
		}
		return NewMapOp(input, n.Exprs), nil

	case *ir.Project:
		input, err := c.Compile(n.Input)
		if err != nil {
			return nil, err
		}
		return NewProjectOp(input, n.Positions, n.Consts, n.Vars()), nil

	case *ir.Join:
		left, err := c.Compile(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := c.Compile(n.Right)
		if err != nil {
			return nil, err
		}
		return NewJoinOp(left, right, n.LeftKeys, n.RightKeys, n.RightPassthrough(), n.Schema(), n.Vars()), nil

	case *ir.Antijoin:
		left, err := c.Compile(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := c.Compile(n.Right)
		if err != nil {
			return nil, err
		}
		return NewAntijoinOp(left, right, n.LeftKeys, n.RightKeys), nil

	case *ir.Aggregate:
		input, err := c.Compile(n.Input)
		if err != nil {
			return nil, err
		}
		return NewAggregateOp(input, n.GroupKeys, n.Aggregators, n.Schema(), n.Vars()), nil

	case *ir.Distinct:
		input, err := c.Compile(n.Input)
		if err != nil {
			return nil, err
		}
		return NewDistinctOp(input), nil

	case *ir.Union:
		inputs := make([]Operator, 0, len(n.Inputs))
		for _, child := range n.Inputs {
			op, err := c.Compile(child)
			if err != nil {
				return nil, err
			}
			inputs = append(inputs, op)
		}
		return NewUnionOp(n.Schema(), n.Vars(), inputs), nil

	case *ir.VectorSearch:
		input, err := c.Compile(n.Input)
		if err != nil {
			return nil, err
		}
		if c.Vectors == nil {
			return nil, errs.ErrInternal.New("no vector index resolver configured for a VectorSearch node")
		}
		index, err := c.Vectors(n.Index)
		if err != nil {
			return nil, err
		}
		return NewVectorSearchOp(input, index, n.QueryExpr, n.K, n.Radius, n.HasRadius, n.Schema(), n.Vars()), nil

	default:
		return nil, errs.ErrInternal.New("dataflow: unrecognized IR node type")
	}
}
