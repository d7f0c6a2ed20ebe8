/*
Package nn implements the layers the credit classifiers are built from:
normalize -> project -> activate blocks and the Adam optimizer.
*/
package nn

import (
	"math"

	"go-ml.dev/pkg/dacredit/autograd"
	"go-ml.dev/pkg/zorros/zorros"
	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/mat"
)

/*
ErrBatchTooSmall means a training-mode batch normalization got less than two rows
*/
var ErrBatchTooSmall = xerrors.New("batch normalization needs at least 2 rows in training mode")

/*
Module is anything owning learnable parameters and a train/eval switch
*/
type Module interface {
	Params() []*autograd.Var
	SetTraining(bool)
}

/*
Linear is a fully connected projection y = xW + b
*/
type Linear struct {
	W, B *autograd.Var
}

/*
NewLinear creates a projection initialised uniformly in ±1/sqrt(in)
*/
func NewLinear(ctx *autograd.Context, in, out int) *Linear {
	bound := 1 / math.Sqrt(float64(in))
	u := func(n int) []float64 {
		r := make([]float64, n)
		for i := range r {
			r[i] = (ctx.Rand.Float64()*2 - 1) * bound
		}
		return r
	}
	return &Linear{
		W: autograd.NewParam(mat.NewDense(in, out, u(in*out))),
		B: autograd.NewParam(mat.NewDense(1, out, u(out))),
	}
}

func (l *Linear) Forward(t *autograd.Tape, x *autograd.Var) (*autograd.Var, error) {
	_, c := x.Dims()
	if r, _ := l.W.Dims(); r != c {
		return nil, zorros.Errorf("linear layer expects %d features, got %d", r, c)
	}
	return t.AddRow(t.MatMul(x, l.W), l.B), nil
}

func (l *Linear) Params() []*autograd.Var {
	return []*autograd.Var{l.W, l.B}
}

func (l *Linear) SetTraining(bool) {}

// DefaultMomentum is the running statistics momentum of BatchNorm1d
const DefaultMomentum = 0.1

// BatchNormEps is added to variance before normalization
const BatchNormEps = 1e-5

/*
BatchNorm1d normalizes features over the batch. In training mode it uses
batch statistics and updates the running ones, in evaluation mode it uses
the running statistics only.
*/
type BatchNorm1d struct {
	Gamma, Beta *autograd.Var
	Running     autograd.BatchStats
	Momentum    float64
	training    bool
}

func NewBatchNorm1d(n int, momentum float64) *BatchNorm1d {
	ones := make([]float64, n)
	rv := make([]float64, n)
	for i := range ones {
		ones[i], rv[i] = 1, 1
	}
	return &BatchNorm1d{
		Gamma:    autograd.NewParam(mat.NewDense(1, n, ones)),
		Beta:     autograd.NewParam(mat.NewDense(1, n, nil)),
		Running:  autograd.BatchStats{Mean: make([]float64, n), Var: rv},
		Momentum: momentum,
		training: true,
	}
}

func (b *BatchNorm1d) Forward(t *autograd.Tape, x *autograd.Var) (*autograd.Var, error) {
	n, c := x.Dims()
	if c != len(b.Running.Mean) {
		return nil, zorros.Errorf("batch normalization expects %d features, got %d", len(b.Running.Mean), c)
	}
	if !b.training {
		return t.Normalize(x, b.Gamma, b.Beta, b.Running, BatchNormEps), nil
	}
	if n < 2 {
		return nil, xerrors.Errorf("%d rows: %w", n, ErrBatchTooSmall)
	}
	y, st := t.BatchNorm(x, b.Gamma, b.Beta, BatchNormEps)
	m := b.Momentum
	for j := range st.Mean {
		b.Running.Mean[j] = (1-m)*b.Running.Mean[j] + m*st.Mean[j]
		b.Running.Var[j] = (1-m)*b.Running.Var[j] + m*st.Var[j]*float64(n)/float64(n-1)
	}
	return y, nil
}

func (b *BatchNorm1d) Params() []*autograd.Var {
	return []*autograd.Var{b.Gamma, b.Beta}
}

func (b *BatchNorm1d) SetTraining(on bool) {
	b.training = on
}

/*
Activation is an elementwise nonlinearity
*/
type Activation int

const (
	Identity Activation = iota
	ReLU
	Tanh
)

func (a Activation) Apply(t *autograd.Tape, x *autograd.Var) *autograd.Var {
	switch a {
	case ReLU:
		return t.ReLU(x)
	case Tanh:
		return t.Tanh(x)
	}
	return x
}

/*
Block is a normalize -> project -> activate unit. Pre is applied between
normalization and projection, it's used by heads normalizing then squashing.
*/
type Block struct {
	Norm *BatchNorm1d
	Pre  Activation
	Proj *Linear
	Act  Activation
}

/*
NewBlock creates a block projecting in features to out features
*/
func NewBlock(ctx *autograd.Context, in, out int, act Activation, momentum float64) *Block {
	return &Block{
		Norm: NewBatchNorm1d(in, momentum),
		Proj: NewLinear(ctx, in, out),
		Act:  act,
	}
}

func (b *Block) Forward(t *autograd.Tape, x *autograd.Var) (*autograd.Var, error) {
	y, err := b.Norm.Forward(t, x)
	if err != nil {
		return nil, err
	}
	if y, err = b.Proj.Forward(t, b.Pre.Apply(t, y)); err != nil {
		return nil, err
	}
	return b.Act.Apply(t, y), nil
}

func (b *Block) Params() []*autograd.Var {
	return append(b.Norm.Params(), b.Proj.Params()...)
}

func (b *Block) SetTraining(on bool) {
	b.Norm.SetTraining(on)
}

/*
Stack is an ordered sequence of blocks
*/
type Stack []*Block

func (s Stack) Forward(t *autograd.Tape, x *autograd.Var) (y *autograd.Var, err error) {
	y = x
	for _, b := range s {
		if y, err = b.Forward(t, y); err != nil {
			return
		}
	}
	return
}

func (s Stack) Params() (p []*autograd.Var) {
	for _, b := range s {
		p = append(p, b.Params()...)
	}
	return
}

func (s Stack) SetTraining(on bool) {
	for _, b := range s {
		b.SetTraining(on)
	}
}

/*
ZeroGrad drops accumulated gradients of parameters
*/
func ZeroGrad(params []*autograd.Var) {
	for _, p := range params {
		p.ZeroGrad()
	}
}

/*
NewHead creates a classification head: normalization, optional squashing
and projection to logits
*/
func NewHead(ctx *autograd.Context, in, out int, pre Activation, momentum float64) *Block {
	return &Block{
		Norm: NewBatchNorm1d(in, momentum),
		Pre:  pre,
		Proj: NewLinear(ctx, in, out),
	}
}
