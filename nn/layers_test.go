package nn

import (
	"math"
	"testing"

	"go-ml.dev/pkg/dacredit/autograd"
	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/mat"
	"gotest.tools/assert"
)

func Test_BatchNormRunningStats(t *testing.T) {
	bn := NewBatchNorm1d(2, DefaultMomentum)
	tp := autograd.NewTape()
	x := tp.Const(mat.NewDense(4, 2, []float64{1, 0, 2, 0, 3, 0, 4, 0}))
	_, err := bn.Forward(tp, x)
	assert.NilError(t, err)
	assert.Assert(t, math.Abs(bn.Running.Mean[0]-0.25) < 1e-12)
	// running variance is updated with the unbiased batch variance
	assert.Assert(t, math.Abs(bn.Running.Var[0]-(0.9+0.1*5.0/3)) < 1e-12)
	assert.Assert(t, math.Abs(bn.Running.Var[1]-0.9) < 1e-12)

	bn.SetTraining(false)
	y, err := bn.Forward(tp, x)
	assert.NilError(t, err)
	assert.Assert(t, math.Abs(y.Value.At(0, 0)-(1-0.25)/math.Sqrt(bn.Running.Var[0]+BatchNormEps)) < 1e-12)
	// evaluation mode keeps the statistics
	assert.Assert(t, math.Abs(bn.Running.Mean[0]-0.25) < 1e-12)
}

func Test_BatchTooSmall(t *testing.T) {
	ctx := autograd.NewContext(1)
	b := NewBlock(ctx, 3, 2, ReLU, DefaultMomentum)
	tp := autograd.NewTape()
	x := tp.Const(mat.NewDense(1, 3, []float64{1, 2, 3}))
	_, err := b.Forward(tp, x)
	assert.Assert(t, xerrors.Is(err, ErrBatchTooSmall))

	b.SetTraining(false)
	y, err := b.Forward(tp, x)
	assert.NilError(t, err)
	r, c := y.Dims()
	assert.Equal(t, r, 1)
	assert.Equal(t, c, 2)
}

func Test_WidthMismatch(t *testing.T) {
	ctx := autograd.NewContext(1)
	tp := autograd.NewTape()
	_, err := NewLinear(ctx, 3, 2).Forward(tp, tp.Const(mat.NewDense(2, 4, nil)))
	assert.Assert(t, err != nil)
	_, err = NewBatchNorm1d(3, DefaultMomentum).Forward(tp, tp.Const(mat.NewDense(2, 4, nil)))
	assert.Assert(t, err != nil)
}

func Test_LinearInit(t *testing.T) {
	l := NewLinear(autograd.NewContext(7), 16, 4)
	bound := 1 / math.Sqrt(16)
	for _, p := range l.Params() {
		r, c := p.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				assert.Assert(t, math.Abs(p.Value.At(i, j)) <= bound)
			}
		}
	}
	assert.Equal(t, len(l.Params()), 2)
}

func Test_StackShapes(t *testing.T) {
	ctx := autograd.NewContext(3)
	s := Stack{
		NewBlock(ctx, 5, 8, ReLU, DefaultMomentum),
		NewBlock(ctx, 8, 4, Identity, DefaultMomentum),
	}
	head := NewHead(ctx, 4, 2, Tanh, DefaultMomentum)
	assert.Equal(t, len(s.Params()), 8)
	assert.Equal(t, head.Pre, Tanh)
	assert.Equal(t, head.Act, Identity)

	tp := autograd.NewTape()
	x := tp.Const(mat.NewDense(6, 5, []float64{
		1, 2, 3, 4, 5, 2, 3, 4, 5, 6, 0, 1, 0, 1, 0,
		5, 4, 3, 2, 1, 1, 1, 2, 2, 3, 3, 0, 0, 1, 1}))
	e, err := s.Forward(tp, x)
	assert.NilError(t, err)
	y, err := head.Forward(tp, e)
	assert.NilError(t, err)
	r, c := y.Dims()
	assert.Equal(t, r, 6)
	assert.Equal(t, c, 2)

	l, err := tp.CrossEntropy(y, []int{0, 1, 0, 1, 1, 0})
	assert.NilError(t, err)
	assert.NilError(t, tp.Backward(l))
	params := append(s.Params(), head.Params()...)
	for _, p := range params {
		assert.Assert(t, p.Grad != nil)
	}
	ZeroGrad(params)
	for _, p := range params {
		assert.Assert(t, p.Grad == nil)
	}
}

func Test_AdamStep(t *testing.T) {
	p := autograd.NewParam(mat.NewDense(1, 3, []float64{1, 1, 1}))
	p.Grad = mat.NewDense(1, 3, []float64{0.5, -2, 0})
	opt := NewAdam(0.01)
	opt.Step([]*autograd.Var{p})
	assert.Equal(t, opt.Steps(), 1)
	// the first step moves by about lr against the gradient sign
	assert.Assert(t, math.Abs(p.Value.At(0, 0)-0.99) < 1e-6)
	assert.Assert(t, math.Abs(p.Value.At(0, 1)-1.01) < 1e-6)
	assert.Equal(t, p.Value.At(0, 2), 1.0)
	assert.Assert(t, p.Grad == nil)

	// parameters without gradient are skipped
	opt.Step([]*autograd.Var{p})
	assert.Equal(t, opt.Steps(), 2)
	assert.Assert(t, math.Abs(p.Value.At(0, 0)-0.99) < 1e-6)
}

func Test_AdamMinimizes(t *testing.T) {
	p := autograd.NewParam(mat.NewDense(1, 2, []float64{3, -2}))
	target := mat.NewDense(1, 2, []float64{0.5, 1})
	opt := NewAdam(0.05)
	for i := 0; i < 1000; i++ {
		tp := autograd.NewTape()
		d := tp.Sub(p, tp.Const(target))
		assert.NilError(t, tp.Backward(tp.Sum(tp.Mul(d, d))))
		opt.Step([]*autograd.Var{p})
	}
	assert.Assert(t, math.Abs(p.Value.At(0, 0)-0.5) < 0.05)
	assert.Assert(t, math.Abs(p.Value.At(0, 1)-1) < 0.05)
}
