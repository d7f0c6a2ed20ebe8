package autograd

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

func wrap(m *mat.Dense) *Var {
	return &Var{Value: m}
}

func mustSameShape(a, b *Var) {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br || ac != bc {
		panic(mat.ErrShape)
	}
}

func mustRowOf(a, r *Var) {
	_, ac := a.Dims()
	rr, rc := r.Dims()
	if rr != 1 || rc != ac {
		panic(mat.ErrShape)
	}
}

// colSum sums matrix rows into a 1xc matrix
func colSum(g *mat.Dense) *mat.Dense {
	r, c := g.Dims()
	s := mat.NewDense(1, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			s.Set(0, j, s.At(0, j)+g.At(i, j))
		}
	}
	return s
}

/*
MatMul records a·b
*/
func (t *Tape) MatMul(a, b *Var) *Var {
	var m mat.Dense
	m.Mul(a.Value, b.Value)
	out := wrap(&m)
	return t.record(out, func(g *mat.Dense) {
		if a.grad {
			var ga mat.Dense
			ga.Mul(g, b.Value.T())
			a.accum(&ga)
		}
		if b.grad {
			var gb mat.Dense
			gb.Mul(a.Value.T(), g)
			b.accum(&gb)
		}
	}, a, b)
}

// T records transposition
func (t *Tape) T(a *Var) *Var {
	out := wrap(mat.DenseCopyOf(a.Value.T()))
	return t.record(out, func(g *mat.Dense) {
		a.accum(g.T())
	}, a)
}

// Add records elementwise a+b
func (t *Tape) Add(a, b *Var) *Var {
	mustSameShape(a, b)
	var m mat.Dense
	m.Add(a.Value, b.Value)
	out := wrap(&m)
	return t.record(out, func(g *mat.Dense) {
		a.accum(g)
		b.accum(g)
	}, a, b)
}

// Sub records elementwise a-b
func (t *Tape) Sub(a, b *Var) *Var {
	mustSameShape(a, b)
	var m mat.Dense
	m.Sub(a.Value, b.Value)
	out := wrap(&m)
	return t.record(out, func(g *mat.Dense) {
		a.accum(g)
		if b.grad {
			var gb mat.Dense
			gb.Scale(-1, g)
			b.accum(&gb)
		}
	}, a, b)
}

// Mul records elementwise (Hadamard) product
func (t *Tape) Mul(a, b *Var) *Var {
	mustSameShape(a, b)
	var m mat.Dense
	m.MulElem(a.Value, b.Value)
	out := wrap(&m)
	return t.record(out, func(g *mat.Dense) {
		if a.grad {
			var ga mat.Dense
			ga.MulElem(g, b.Value)
			a.accum(&ga)
		}
		if b.grad {
			var gb mat.Dense
			gb.MulElem(g, a.Value)
			b.accum(&gb)
		}
	}, a, b)
}

// Scale records f·a
func (t *Tape) Scale(a *Var, f float64) *Var {
	var m mat.Dense
	m.Scale(f, a.Value)
	out := wrap(&m)
	return t.record(out, func(g *mat.Dense) {
		var ga mat.Dense
		ga.Scale(f, g)
		a.accum(&ga)
	}, a)
}

// AddScalar records a+f
func (t *Tape) AddScalar(a *Var, f float64) *Var {
	var m mat.Dense
	m.Apply(func(_, _ int, v float64) float64 { return v + f }, a.Value)
	out := wrap(&m)
	return t.record(out, func(g *mat.Dense) {
		a.accum(g)
	}, a)
}

/*
AddRow adds the 1xc row r to every row of a
*/
func (t *Tape) AddRow(a, r *Var) *Var {
	mustRowOf(a, r)
	var m mat.Dense
	m.Apply(func(_, j int, v float64) float64 { return v + r.Value.At(0, j) }, a.Value)
	out := wrap(&m)
	return t.record(out, func(g *mat.Dense) {
		a.accum(g)
		if r.grad {
			r.accum(colSum(g))
		}
	}, a, r)
}

/*
SubRow subtracts the 1xc row r from every row of a
*/
func (t *Tape) SubRow(a, r *Var) *Var {
	mustRowOf(a, r)
	var m mat.Dense
	m.Apply(func(_, j int, v float64) float64 { return v - r.Value.At(0, j) }, a.Value)
	out := wrap(&m)
	return t.record(out, func(g *mat.Dense) {
		a.accum(g)
		if r.grad {
			s := colSum(g)
			s.Scale(-1, s)
			r.accum(s)
		}
	}, a, r)
}

/*
DivRow divides every row of a by the 1xc row r elementwise
*/
func (t *Tape) DivRow(a, r *Var) *Var {
	mustRowOf(a, r)
	var m mat.Dense
	m.Apply(func(_, j int, v float64) float64 { return v / r.Value.At(0, j) }, a.Value)
	out := wrap(&m)
	return t.record(out, func(g *mat.Dense) {
		if a.grad {
			var ga mat.Dense
			ga.Apply(func(_, j int, v float64) float64 { return v / r.Value.At(0, j) }, g)
			a.accum(&ga)
		}
		if r.grad {
			rows, cols := g.Dims()
			gr := mat.NewDense(1, cols, nil)
			for i := 0; i < rows; i++ {
				for j := 0; j < cols; j++ {
					d := r.Value.At(0, j)
					gr.Set(0, j, gr.At(0, j)-g.At(i, j)*a.Value.At(i, j)/(d*d))
				}
			}
			r.accum(gr)
		}
	}, a, r)
}

/*
ColMean records the 1xc row of column means
*/
func (t *Tape) ColMean(a *Var) *Var {
	n, _ := a.Dims()
	s := colSum(a.Value)
	s.Scale(1/float64(n), s)
	out := wrap(s)
	return t.record(out, func(g *mat.Dense) {
		var ga mat.Dense
		ga.Apply(func(_, j int, _ float64) float64 { return g.At(0, j) / float64(n) }, a.Value)
		a.accum(&ga)
	}, a)
}

// Sum records the sum of all elements as a scalar
func (t *Tape) Sum(a *Var) *Var {
	out := wrap(mat.NewDense(1, 1, []float64{mat.Sum(a.Value)}))
	return t.record(out, func(g *mat.Dense) {
		var ga mat.Dense
		ga.Apply(func(_, _ int, _ float64) float64 { return g.At(0, 0) }, a.Value)
		a.accum(&ga)
	}, a)
}

// Mean records the mean of all elements as a scalar
func (t *Tape) Mean(a *Var) *Var {
	r, c := a.Dims()
	return t.Scale(t.Sum(a), 1/float64(r*c))
}

// Sqrt records the elementwise square root
func (t *Tape) Sqrt(a *Var) *Var {
	var m mat.Dense
	m.Apply(func(_, _ int, v float64) float64 { return math.Sqrt(v) }, a.Value)
	out := wrap(&m)
	return t.record(out, func(g *mat.Dense) {
		var ga mat.Dense
		ga.Apply(func(i, j int, v float64) float64 { return v * 0.5 / out.Value.At(i, j) }, g)
		a.accum(&ga)
	}, a)
}

// Exp records the elementwise exponent
func (t *Tape) Exp(a *Var) *Var {
	var m mat.Dense
	m.Apply(func(_, _ int, v float64) float64 { return math.Exp(v) }, a.Value)
	out := wrap(&m)
	return t.record(out, func(g *mat.Dense) {
		var ga mat.Dense
		ga.MulElem(g, out.Value)
		a.accum(&ga)
	}, a)
}

// ReLU records max(0, a) elementwise
func (t *Tape) ReLU(a *Var) *Var {
	var m mat.Dense
	m.Apply(func(_, _ int, v float64) float64 { return math.Max(0, v) }, a.Value)
	out := wrap(&m)
	return t.record(out, func(g *mat.Dense) {
		var ga mat.Dense
		ga.Apply(func(i, j int, v float64) float64 {
			if a.Value.At(i, j) > 0 {
				return v
			}
			return 0
		}, g)
		a.accum(&ga)
	}, a)
}

// Tanh records the elementwise hyperbolic tangent
func (t *Tape) Tanh(a *Var) *Var {
	var m mat.Dense
	m.Apply(func(_, _ int, v float64) float64 { return math.Tanh(v) }, a.Value)
	out := wrap(&m)
	return t.record(out, func(g *mat.Dense) {
		var ga mat.Dense
		ga.Apply(func(i, j int, v float64) float64 {
			y := out.Value.At(i, j)
			return v * (1 - y*y)
		}, g)
		a.accum(&ga)
	}, a)
}

// Col records the j-th column of a as an nx1 matrix
func (t *Tape) Col(a *Var, j int) *Var {
	n, _ := a.Dims()
	m := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		m.Set(i, 0, a.Value.At(i, j))
	}
	out := wrap(m)
	return t.record(out, func(g *mat.Dense) {
		r, c := a.Dims()
		ga := mat.NewDense(r, c, nil)
		for i := 0; i < r; i++ {
			ga.Set(i, j, g.At(i, 0))
		}
		a.accum(ga)
	}, a)
}

// Trace records the trace of a square matrix as a scalar
func (t *Tape) Trace(a *Var) *Var {
	out := wrap(mat.NewDense(1, 1, []float64{mat.Trace(a.Value)}))
	return t.record(out, func(g *mat.Dense) {
		n, _ := a.Dims()
		ga := mat.NewDense(n, n, nil)
		for i := 0; i < n; i++ {
			ga.Set(i, i, g.At(0, 0))
		}
		a.accum(ga)
	}, a)
}
