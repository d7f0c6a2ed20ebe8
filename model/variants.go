package model

import (
	"go-ml.dev/pkg/dacredit/autograd"
	"go-ml.dev/pkg/dacredit/divergence"
	"go-ml.dev/pkg/dacredit/nn"
)

// plainMomentum is the batch normalization momentum of the plain classifier
const plainMomentum = 0.5

/*
Plain is the classifier without domain alignment:
two embedding blocks and a normalize -> tanh -> project head
*/
type Plain struct {
	network
}

func newPlain(ctx *autograd.Context, cfg Config) *Plain {
	h := cfg.Hidden
	return &Plain{network{
		embed: nn.Stack{
			nn.NewBlock(ctx, cfg.Input, h, nn.ReLU, plainMomentum),
			nn.NewBlock(ctx, h, h/2, nn.ReLU, plainMomentum),
		},
		head: nn.NewHead(ctx, h/2, cfg.Output, nn.Tanh, plainMomentum),
	}}
}

func (*Plain) Kind() Kind { return MLP }

/*
Forward computes source logits only, the target batch is ignored
*/
func (p *Plain) Forward(t *autograd.Tape, src, _ *autograd.Var) (Output, error) {
	y, err := p.Predict(t, src)
	return Output{Logits: y}, err
}

/*
Aligned is the three-block network penalizing divergence of source and
target embeddings, either MMD (DAN) or covariance alignment (CORAL)
*/
type Aligned struct {
	network
	kind Kind
	div  divergence.Func
}

func newAligned(ctx *autograd.Context, cfg Config, kind Kind, div divergence.Func) *Aligned {
	h := cfg.Hidden
	m := nn.DefaultMomentum
	return &Aligned{
		network: network{
			embed: nn.Stack{
				nn.NewBlock(ctx, cfg.Input, h, nn.ReLU, m),
				nn.NewBlock(ctx, h, h/2, nn.ReLU, m),
				nn.NewBlock(ctx, h/2, h/4, nn.ReLU, m),
			},
			head: nn.NewHead(ctx, h/4, cfg.Output, nn.Identity, m),
		},
		kind: kind,
		div:  div,
	}
}

func (a *Aligned) Kind() Kind { return a.kind }

func (a *Aligned) Forward(t *autograd.Tape, src, tgt *autograd.Var) (o Output, err error) {
	es, et, err := a.ForwardFT(t, src, tgt)
	if err != nil {
		return o, toDegenerate(err)
	}
	if o.Divergence, err = a.div(t, es, et); err != nil {
		return o, toDegenerate(err)
	}
	o.Logits, err = a.head.Forward(t, es)
	return o, toDegenerate(err)
}

/*
Conditional is the deep network aligning both marginal distributions and
the dependence structure (copula) of the embeddings
*/
type Conditional struct {
	network
	copula divergence.Func
}

func newConditional(ctx *autograd.Context, cfg Config) *Conditional {
	h := cfg.Hidden
	m := nn.DefaultMomentum
	copula := divergence.Func(divergence.CopulaKL)
	if cfg.Copula == CopulaFrobenius {
		copula = divergence.CopulaFrobenius
	}
	return &Conditional{
		network: network{
			embed: nn.Stack{
				nn.NewBlock(ctx, cfg.Input, h, nn.ReLU, m),
				nn.NewBlock(ctx, h, h, nn.ReLU, m),
				nn.NewBlock(ctx, h, h, nn.ReLU, m),
				nn.NewBlock(ctx, h, h, nn.ReLU, m),
				nn.NewBlock(ctx, h, h/2, nn.ReLU, m),
				nn.NewBlock(ctx, h/2, h/16, nn.Identity, m),
			},
			head: nn.NewHead(ctx, h/16, cfg.Output, nn.Identity, m),
		},
		copula: copula,
	}
}

func (*Conditional) Kind() Kind { return CDAN }

func (c *Conditional) Forward(t *autograd.Tape, src, tgt *autograd.Var) (o Output, err error) {
	es, et, err := c.ForwardFT(t, src, tgt)
	if err != nil {
		return o, toDegenerate(err)
	}
	if o.Marginal, err = divergence.MarginalMMD(t, es, et); err != nil {
		return o, toDegenerate(err)
	}
	if o.Copula, err = c.copula(t, es, et); err != nil {
		return o, toDegenerate(err)
	}
	o.Logits, err = c.head.Forward(t, es)
	return o, toDegenerate(err)
}
