/*
Package autograd implements reverse-mode differentiation over gonum dense matrices.

Every operation is recorded on a Tape in creation order, so walking the tape
backwards visits nodes in a valid topological order without a graph search.
*/
package autograd

import (
	"go-ml.dev/pkg/zorros/zorros"
	"gonum.org/v1/gonum/mat"
)

/*
Var is a node of the computation: a matrix value and, when it requires
gradient, the accumulated gradient of the tape root with respect to it.
Scalars are 1x1 matrices.
*/
type Var struct {
	Value *mat.Dense
	Grad  *mat.Dense
	grad  bool
}

/*
NewParam creates a learnable variable. Parameters outlive tapes.
*/
func NewParam(m *mat.Dense) *Var {
	return &Var{Value: m, grad: true}
}

// RequiresGrad reports whether gradients flow into the variable
func (v *Var) RequiresGrad() bool {
	return v.grad
}

// Dims returns rows and columns of the value
func (v *Var) Dims() (int, int) {
	return v.Value.Dims()
}

// Scalar returns the value of a 1x1 variable
func (v *Var) Scalar() float64 {
	return v.Value.At(0, 0)
}

// ZeroGrad drops the accumulated gradient
func (v *Var) ZeroGrad() {
	v.Grad = nil
}

func (v *Var) accum(g mat.Matrix) {
	if !v.grad {
		return
	}
	if v.Grad == nil {
		r, c := v.Value.Dims()
		v.Grad = mat.NewDense(r, c, nil)
	}
	v.Grad.Add(v.Grad, g)
}

type node struct {
	out      *Var
	backward func(g *mat.Dense)
}

/*
Tape records differentiable operations for one forward pass.
A tape is used by a single goroutine and thrown away after Backward.
*/
type Tape struct {
	nodes []node
}

// NewTape creates an empty tape
func NewTape() *Tape {
	return &Tape{}
}

// Len returns count of recorded operations
func (t *Tape) Len() int {
	return len(t.nodes)
}

/*
Const wraps a matrix as a variable that never receives gradient
*/
func (t *Tape) Const(m mat.Matrix) *Var {
	return &Var{Value: mat.DenseCopyOf(m)}
}

// Scalar creates a constant 1x1 variable
func (t *Tape) Scalar(f float64) *Var {
	return &Var{Value: mat.NewDense(1, 1, []float64{f})}
}

func (t *Tape) record(out *Var, backward func(g *mat.Dense), in ...*Var) *Var {
	for _, v := range in {
		if v.grad {
			out.grad = true
			break
		}
	}
	if out.grad {
		t.nodes = append(t.nodes, node{out, backward})
	}
	return out
}

/*
Backward propagates the gradient of the scalar root to every variable
recorded on the tape. Gradients are accumulated, so parameters shared by
several branches receive the sum of the branch gradients.
*/
func (t *Tape) Backward(root *Var) error {
	if r, c := root.Dims(); r != 1 || c != 1 {
		return zorros.Errorf("backward root must be scalar, got %dx%d", r, c)
	}
	if !root.grad {
		return nil
	}
	root.Grad = mat.NewDense(1, 1, []float64{1})
	for i := len(t.nodes) - 1; i >= 0; i-- {
		n := t.nodes[i]
		if n.out.Grad != nil {
			n.backward(n.out.Grad)
		}
	}
	return nil
}
