package model

import (
	"strings"

	"go-ml.dev/pkg/dacredit/autograd"
	"go-ml.dev/pkg/dacredit/divergence"
	"go-ml.dev/pkg/dacredit/nn"
	"golang.org/x/xerrors"
)

var (
	// ErrUnknownModel means the configuration names no known architecture
	ErrUnknownModel = xerrors.New("unknown model")
	// ErrConfig means the configuration is malformed
	ErrConfig = xerrors.New("invalid configuration")
	// ErrDimension means data and configured dimensions disagree
	ErrDimension = xerrors.New("dimension mismatch")
	// ErrDegenerate means a statistic is undefined for the given data
	ErrDegenerate = xerrors.New("numerically degenerate input")
)

/*
Kind selects the classifier architecture
*/
type Kind int

const (
	// MLP is the plain classifier without a divergence term
	MLP Kind = iota + 1
	// DAN aligns embeddings with multi-kernel MMD
	DAN
	// CORAL aligns embeddings covariances
	CORAL
	// CDAN aligns marginal distributions and copulas of embeddings
	CDAN
)

var kindNames = map[Kind]string{MLP: "MLP", DAN: "DAN", CORAL: "CORAL", CDAN: "CDAN"}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Unknown"
}

/*
ParseKind maps a model name to the architecture kind, case insensitive
*/
func ParseKind(s string) (Kind, error) {
	for k, n := range kindNames {
		if strings.EqualFold(n, strings.TrimSpace(s)) {
			return k, nil
		}
	}
	return 0, xerrors.Errorf("%q: %w", s, ErrUnknownModel)
}

func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, xerrors.Errorf("%d: %w", int(k), ErrUnknownModel)
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) (err error) {
	*k, err = ParseKind(string(b))
	return
}

/*
Output is a result of the training forward pass. Divergence terms the
architecture does not produce are nil.
*/
type Output struct {
	Logits *autograd.Var
	// Divergence is the MMD or CORAL term of aligned networks
	Divergence *autograd.Var
	// Marginal and Copula are the terms of the conditional network
	Marginal, Copula *autograd.Var
}

/*
Architecture is a classifier mapping features to class logits through an
embedding stage and a classification head
*/
type Architecture interface {
	nn.Module
	Kind() Kind
	// Forward computes source logits and divergence terms between the domains
	Forward(t *autograd.Tape, src, tgt *autograd.Var) (Output, error)
	// Predict computes logits of one domain without any divergence
	Predict(t *autograd.Tape, x *autograd.Var) (*autograd.Var, error)
	// ForwardFT returns embeddings of both domains bypassing the head
	ForwardFT(t *autograd.Tape, x, y *autograd.Var) (*autograd.Var, *autograd.Var, error)
}

/*
New creates an architecture selected by the configuration
*/
func New(ctx *autograd.Context, cfg Config) (Architecture, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Model {
	case MLP:
		return newPlain(ctx, cfg), nil
	case DAN:
		return newAligned(ctx, cfg, DAN, divergence.MMD), nil
	case CORAL:
		return newAligned(ctx, cfg, CORAL, divergence.CORAL), nil
	case CDAN:
		return newConditional(ctx, cfg), nil
	}
	return nil, xerrors.Errorf("%v: %w", cfg.Model, ErrUnknownModel)
}

/*
network is the embedding stage followed by the classification head
*/
type network struct {
	embed nn.Stack
	head  *nn.Block
}

func (n *network) Params() []*autograd.Var {
	return append(n.embed.Params(), n.head.Params()...)
}

func (n *network) SetTraining(on bool) {
	n.embed.SetTraining(on)
	n.head.SetTraining(on)
}

func (n *network) Predict(t *autograd.Tape, x *autograd.Var) (*autograd.Var, error) {
	e, err := n.embed.Forward(t, x)
	if err != nil {
		return nil, err
	}
	return n.head.Forward(t, e)
}

func (n *network) ForwardFT(t *autograd.Tape, x, y *autograd.Var) (ex, ey *autograd.Var, err error) {
	if ex, err = n.embed.Forward(t, x); err != nil {
		return
	}
	ey, err = n.embed.Forward(t, y)
	return
}

func toDegenerate(err error) error {
	if xerrors.Is(err, divergence.ErrDegenerate) || xerrors.Is(err, nn.ErrBatchTooSmall) {
		return xerrors.Errorf("%v: %w", err, ErrDegenerate)
	}
	return err
}
