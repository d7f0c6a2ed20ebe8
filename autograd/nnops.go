package autograd

import (
	"math"

	"go-ml.dev/pkg/zorros/zorros"
	"gonum.org/v1/gonum/mat"
)

/*
BatchStats are per-feature statistics of a normalized batch,
variance is biased (divided by batch size)
*/
type BatchStats struct {
	Mean, Var []float64
}

/*
BatchNorm records training-mode batch normalization of x (nxc) with
learnable 1xc scale gamma and shift beta. It returns the batch statistics
so the caller can maintain running averages.
*/
func (t *Tape) BatchNorm(x, gamma, beta *Var, eps float64) (*Var, BatchStats) {
	n, c := x.Dims()
	mustRowOf(x, gamma)
	mustRowOf(x, beta)
	st := BatchStats{Mean: make([]float64, c), Var: make([]float64, c)}
	for j := 0; j < c; j++ {
		col := mat.Col(nil, j, x.Value)
		var s, q float64
		for _, v := range col {
			s += v
		}
		mu := s / float64(n)
		for _, v := range col {
			q += (v - mu) * (v - mu)
		}
		st.Mean[j], st.Var[j] = mu, q/float64(n)
	}
	sigma := make([]float64, c)
	for j := range sigma {
		sigma[j] = math.Sqrt(st.Var[j] + eps)
	}
	xhat := mat.NewDense(n, c, nil)
	xhat.Apply(func(_, j int, v float64) float64 { return (v - st.Mean[j]) / sigma[j] }, x.Value)
	var m mat.Dense
	m.Apply(func(i, j int, v float64) float64 {
		return v*gamma.Value.At(0, j) + beta.Value.At(0, j)
	}, xhat)
	out := wrap(&m)
	return t.record(out, func(g *mat.Dense) {
		gg := mat.NewDense(1, c, nil)
		gb := colSum(g)
		for j := 0; j < c; j++ {
			var s float64
			for i := 0; i < n; i++ {
				s += g.At(i, j) * xhat.At(i, j)
			}
			gg.Set(0, j, s)
		}
		gamma.accum(gg)
		beta.accum(gb)
		if !x.grad {
			return
		}
		gx := mat.NewDense(n, c, nil)
		for j := 0; j < c; j++ {
			gm := gamma.Value.At(0, j)
			var sd, sdx float64
			for i := 0; i < n; i++ {
				d := g.At(i, j) * gm
				sd += d
				sdx += d * xhat.At(i, j)
			}
			for i := 0; i < n; i++ {
				d := g.At(i, j) * gm
				gx.Set(i, j, (float64(n)*d-sd-xhat.At(i, j)*sdx)/(float64(n)*sigma[j]))
			}
		}
		x.accum(gx)
	}, x, gamma, beta), st
}

/*
Normalize records evaluation-mode batch normalization using fixed
statistics instead of the batch ones
*/
func (t *Tape) Normalize(x, gamma, beta *Var, st BatchStats, eps float64) *Var {
	n, c := x.Dims()
	mustRowOf(x, gamma)
	mustRowOf(x, beta)
	sigma := make([]float64, c)
	for j := range sigma {
		sigma[j] = math.Sqrt(st.Var[j] + eps)
	}
	xhat := mat.NewDense(n, c, nil)
	xhat.Apply(func(_, j int, v float64) float64 { return (v - st.Mean[j]) / sigma[j] }, x.Value)
	var m mat.Dense
	m.Apply(func(i, j int, v float64) float64 {
		return v*gamma.Value.At(0, j) + beta.Value.At(0, j)
	}, xhat)
	out := wrap(&m)
	return t.record(out, func(g *mat.Dense) {
		if gamma.grad {
			var gg mat.Dense
			gg.MulElem(g, xhat)
			gamma.accum(colSum(&gg))
		}
		beta.accum(colSum(g))
		if x.grad {
			var gx mat.Dense
			gx.Apply(func(_, j int, v float64) float64 { return v * gamma.Value.At(0, j) / sigma[j] }, g)
			x.accum(&gx)
		}
	}, x, gamma, beta)
}

/*
Softmax returns row-wise softmax probabilities of logits, not recorded
*/
func Softmax(logits mat.Matrix) *mat.Dense {
	n, c := logits.Dims()
	p := mat.NewDense(n, c, nil)
	for i := 0; i < n; i++ {
		mx := math.Inf(-1)
		for j := 0; j < c; j++ {
			mx = math.Max(mx, logits.At(i, j))
		}
		var s float64
		for j := 0; j < c; j++ {
			e := math.Exp(logits.At(i, j) - mx)
			p.Set(i, j, e)
			s += e
		}
		for j := 0; j < c; j++ {
			p.Set(i, j, p.At(i, j)/s)
		}
	}
	return p
}

/*
CrossEntropy records the mean negative log-likelihood of integer labels
under row-wise softmax of logits
*/
func (t *Tape) CrossEntropy(logits *Var, labels []int) (*Var, error) {
	n, c := logits.Dims()
	if n != len(labels) {
		return nil, zorros.Errorf("cross entropy: %d logits rows for %d labels", n, len(labels))
	}
	p := Softmax(logits.Value)
	var loss float64
	for i, y := range labels {
		if y < 0 || y >= c {
			return nil, zorros.Errorf("cross entropy: label %d out of range [0,%d)", y, c)
		}
		loss -= math.Log(math.Max(p.At(i, y), math.SmallestNonzeroFloat64))
	}
	out := wrap(mat.NewDense(1, 1, []float64{loss / float64(n)}))
	return t.record(out, func(g *mat.Dense) {
		k := g.At(0, 0) / float64(n)
		gl := mat.NewDense(n, c, nil)
		for i, y := range labels {
			for j := 0; j < c; j++ {
				v := p.At(i, j)
				if j == y {
					v -= 1
				}
				gl.Set(i, j, v*k)
			}
		}
		logits.accum(gl)
	}, logits), nil
}

/*
SqDist records the nxm matrix of squared euclidean distances between
rows of a (nxd) and rows of b (mxd)
*/
func (t *Tape) SqDist(a, b *Var) *Var {
	n, d := a.Dims()
	m, db := b.Dims()
	if d != db {
		panic(mat.ErrShape)
	}
	dist := mat.NewDense(n, m, nil)
	for i := 0; i < n; i++ {
		for k := 0; k < m; k++ {
			var s float64
			for j := 0; j < d; j++ {
				q := a.Value.At(i, j) - b.Value.At(k, j)
				s += q * q
			}
			dist.Set(i, k, s)
		}
	}
	out := wrap(dist)
	return t.record(out, func(g *mat.Dense) {
		ga := mat.NewDense(n, d, nil)
		gb := mat.NewDense(m, d, nil)
		for i := 0; i < n; i++ {
			for k := 0; k < m; k++ {
				w := 2 * g.At(i, k)
				if w == 0 {
					continue
				}
				for j := 0; j < d; j++ {
					q := w * (a.Value.At(i, j) - b.Value.At(k, j))
					ga.Set(i, j, ga.At(i, j)+q)
					gb.Set(k, j, gb.At(k, j)-q)
				}
			}
		}
		a.accum(ga)
		b.accum(gb)
	}, a, b)
}

/*
Inverse records the inverse of a square matrix
*/
func (t *Tape) Inverse(a *Var) (*Var, error) {
	var m mat.Dense
	if err := m.Inverse(a.Value); err != nil {
		// ill-conditioned but finite inverses are still usable
		if c, ok := err.(mat.Condition); !ok || math.IsInf(float64(c), 1) {
			return nil, zorros.Wrapf(err, "matrix inversion failed: %v", err.Error())
		}
	}
	out := wrap(&m)
	return t.record(out, func(g *mat.Dense) {
		// d(A^-1) = -A^-T g A^-T
		var q, ga mat.Dense
		q.Mul(out.Value.T(), g)
		ga.Mul(&q, out.Value.T())
		ga.Scale(-1, &ga)
		a.accum(&ga)
	}, a), nil
}
