package divergence

import (
	"go-ml.dev/pkg/dacredit/autograd"
	"gonum.org/v1/gonum/mat"
)

const (
	// Ridge is added to correlation diagonals to keep them invertible
	Ridge = 1e-3
	stdEps = 1e-8
)

/*
correlation records the gaussian copula parameter of a batch: the
correlation matrix of its standardized columns, shrunk towards identity
*/
func correlation(t *autograd.Tape, x *autograd.Var) *autograd.Var {
	n, d := x.Dims()
	xm := t.SubRow(x, t.ColMean(x))
	sd := t.Sqrt(t.AddScalar(t.ColMean(t.Mul(xm, xm)), stdEps))
	z := t.DivRow(xm, sd)
	r := t.Scale(t.MatMul(t.T(z), z), 1/float64(n))
	ridge := mat.NewDense(d, d, nil)
	for i := 0; i < d; i++ {
		ridge.Set(i, i, Ridge)
	}
	return t.Scale(t.Add(r, t.Const(ridge)), 1/(1+Ridge))
}

/*
CopulaKL is the symmetric Kullback-Leibler divergence between the gaussian
copulas of the batches:

	½·(tr(Rb⁻¹Ra) + tr(Ra⁻¹Rb)) − d

It depends on the dependence structure of the features only, marginal
shifts and scales are removed by standardization.
*/
func CopulaKL(t *autograd.Tape, a, b *autograd.Var) (*autograd.Var, error) {
	_, _, d, err := check(a, b, 2)
	if err != nil {
		return nil, err
	}
	ra, rb := correlation(t, a), correlation(t, b)
	ia, err := t.Inverse(ra)
	if err != nil {
		return nil, err
	}
	ib, err := t.Inverse(rb)
	if err != nil {
		return nil, err
	}
	s := t.Add(t.Trace(t.MatMul(ib, ra)), t.Trace(t.MatMul(ia, rb)))
	return t.ReLU(t.AddScalar(t.Scale(s, 0.5), -float64(d))), nil
}

/*
CopulaFrobenius is the squared Frobenius distance between the copula
correlation matrices divided by 4·d²
*/
func CopulaFrobenius(t *autograd.Tape, a, b *autograd.Var) (*autograd.Var, error) {
	_, _, d, err := check(a, b, 2)
	if err != nil {
		return nil, err
	}
	diff := t.Sub(correlation(t, a), correlation(t, b))
	return t.Scale(t.Sum(t.Mul(diff, diff)), 1/float64(4*d*d)), nil
}
