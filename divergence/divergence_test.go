package divergence

import (
	"math"
	"math/rand"
	"testing"

	"go-ml.dev/pkg/dacredit/autograd"
	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gotest.tools/assert"
)

func sample(seed int64, n, d int, f func(i, j int, v float64) float64) *mat.Dense {
	rng := rand.New(rand.NewSource(seed))
	m := mat.NewDense(n, d, nil)
	m.Apply(func(i, j int, _ float64) float64 { return f(i, j, rng.NormFloat64()) }, m)
	return m
}

func gauss(i, j int, v float64) float64 { return v }

// correlated mixes the first feature into the others
func correlated(seed int64, n, d int) *mat.Dense {
	m := sample(seed, n, d, gauss)
	for i := 0; i < n; i++ {
		for j := 1; j < d; j++ {
			m.Set(i, j, 0.3*m.At(i, j)+m.At(i, 0))
		}
	}
	return m
}

var all = []struct {
	name string
	f    Func
}{
	{"CORAL", CORAL},
	{"MMD", MMD},
	{"MarginalMMD", MarginalMMD},
	{"CopulaKL", CopulaKL},
	{"CopulaFrobenius", CopulaFrobenius},
}

func eval(t *testing.T, f Func, a, b mat.Matrix) float64 {
	tp := autograd.NewTape()
	v, err := f(tp, tp.Const(a), tp.Const(b))
	assert.NilError(t, err)
	r, c := v.Dims()
	assert.Assert(t, r == 1 && c == 1)
	return v.Scalar()
}

func Test_Symmetric(t *testing.T) {
	a := sample(1, 12, 3, gauss)
	b := correlated(2, 9, 3)
	for _, x := range all {
		ab, ba := eval(t, x.f, a, b), eval(t, x.f, b, a)
		assert.Assert(t, math.Abs(ab-ba) <= 1e-9*(1+math.Abs(ab)), "%s: %v != %v", x.name, ab, ba)
		assert.Assert(t, ab >= 0, "%s: %v", x.name, ab)
	}
}

func Test_Identical(t *testing.T) {
	a := correlated(3, 10, 4)
	for _, x := range all {
		v := eval(t, x.f, a, a)
		assert.Assert(t, math.Abs(v) < 1e-9, "%s: %v", x.name, v)
	}
}

func Test_Separates(t *testing.T) {
	a := sample(4, 16, 3, gauss)
	shifted := sample(5, 16, 3, func(_, _ int, v float64) float64 { return v + 3 })
	c := correlated(6, 16, 3)
	assert.Assert(t, eval(t, MMD, a, shifted) > 0.05)
	assert.Assert(t, eval(t, MarginalMMD, a, shifted) > 0.05)
	assert.Assert(t, eval(t, CORAL, a, c) > 1e-3)
	assert.Assert(t, eval(t, CopulaKL, a, c) > 0.1)
	assert.Assert(t, eval(t, CopulaFrobenius, a, c) > 1e-3)
}

func Test_CoralCovariance(t *testing.T) {
	a := sample(7, 11, 3, gauss)
	b := correlated(8, 6, 3)
	ca, cb := mat.NewSymDense(3, nil), mat.NewSymDense(3, nil)
	stat.CovarianceMatrix(ca, a, nil)
	stat.CovarianceMatrix(cb, b, nil)
	var s float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			d := ca.At(i, j) - cb.At(i, j)
			s += d * d
		}
	}
	want := s / (4 * 3 * 3)
	got := eval(t, CORAL, a, b)
	assert.Assert(t, math.Abs(got-want) < 1e-12*(1+want), "%v != %v", got, want)
}

func Test_CopulaIgnoresMarginals(t *testing.T) {
	a := correlated(9, 20, 3)
	b := mat.DenseCopyOf(a)
	b.Apply(func(_, j int, v float64) float64 { return float64(j+2)*v + 5 }, b)
	assert.Assert(t, eval(t, CopulaKL, a, b) < 1e-6)
	assert.Assert(t, eval(t, CopulaFrobenius, a, b) < 1e-6)
	assert.Assert(t, eval(t, MarginalMMD, a, b) > 1e-3)
}

func Test_Degenerate(t *testing.T) {
	a := sample(10, 5, 3, gauss)
	one := sample(11, 1, 3, gauss)
	narrow := sample(12, 5, 2, gauss)
	for _, x := range all {
		tp := autograd.NewTape()
		_, err := x.f(tp, tp.Const(a), tp.Const(narrow))
		assert.Assert(t, xerrors.Is(err, ErrDimension), x.name)
	}
	for _, f := range []Func{CORAL, CopulaKL, CopulaFrobenius} {
		tp := autograd.NewTape()
		_, err := f(tp, tp.Const(a), tp.Const(one))
		assert.Assert(t, xerrors.Is(err, ErrDegenerate))
	}
	// MMD is defined for single rows
	eval(t, MMD, a, one)
}

func Test_GradientFlows(t *testing.T) {
	for _, x := range all {
		a := autograd.NewParam(sample(13, 8, 3, gauss))
		b := autograd.NewParam(correlated(14, 8, 3))
		tp := autograd.NewTape()
		v, err := x.f(tp, a, b)
		assert.NilError(t, err)
		assert.NilError(t, tp.Backward(v))
		assert.Assert(t, a.Grad != nil && b.Grad != nil, x.name)
		assert.Assert(t, mat.Norm(a.Grad, 2) > 0, x.name)
	}
}
