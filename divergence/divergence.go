/*
Package divergence implements differentiable statistics measuring how far two
batches of embeddings are from each other.

Every function takes a source batch (n x d) and a target batch (m x d)
recorded on the same tape and returns a non-negative 1x1 variable. Batch sizes
may differ, feature widths must not.
*/
package divergence

import (
	"go-ml.dev/pkg/dacredit/autograd"
	"golang.org/x/xerrors"
)

var (
	// ErrDegenerate means the batches are too small for the statistic
	ErrDegenerate = xerrors.New("degenerate batch for divergence")
	// ErrDimension means the batches have different feature widths
	ErrDimension = xerrors.New("embedding width mismatch")
)

/*
Func is a divergence between two embedding batches
*/
type Func func(t *autograd.Tape, a, b *autograd.Var) (*autograd.Var, error)

func check(a, b *autograd.Var, minRows int) (n, m, d int, err error) {
	n, d = a.Dims()
	m, db := b.Dims()
	if d != db {
		err = xerrors.Errorf("%d vs %d features: %w", d, db, ErrDimension)
		return
	}
	if n < minRows || m < minRows {
		err = xerrors.Errorf("%d and %d rows, at least %d required: %w", n, m, minRows, ErrDegenerate)
	}
	return
}

func covariance(t *autograd.Tape, x *autograd.Var) *autograd.Var {
	n, _ := x.Dims()
	xm := t.SubRow(x, t.ColMean(x))
	return t.Scale(t.MatMul(t.T(xm), xm), 1/float64(n-1))
}

/*
CORAL is the correlation alignment loss: squared Frobenius distance between
the unbiased covariance matrices of the batches divided by 4·d².
Both batches need at least two rows.
*/
func CORAL(t *autograd.Tape, a, b *autograd.Var) (*autograd.Var, error) {
	_, _, d, err := check(a, b, 2)
	if err != nil {
		return nil, err
	}
	diff := t.Sub(covariance(t, a), covariance(t, b))
	return t.Scale(t.Sum(t.Mul(diff, diff)), 1/float64(4*d*d)), nil
}
