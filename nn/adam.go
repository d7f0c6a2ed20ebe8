package nn

import (
	"math"

	"go-ml.dev/pkg/dacredit/autograd"
	"gonum.org/v1/gonum/mat"
)

/*
Adam is the adaptive moment estimation optimizer
*/
type Adam struct {
	LR, Beta1, Beta2, Eps float64

	steps int
	m, v  map[*autograd.Var]*mat.Dense
}

/*
NewAdam creates an optimizer with the usual defaults and learning rate lr
*/
func NewAdam(lr float64) *Adam {
	return &Adam{
		LR:    lr,
		Beta1: 0.9,
		Beta2: 0.999,
		Eps:   1e-8,
		m:     map[*autograd.Var]*mat.Dense{},
		v:     map[*autograd.Var]*mat.Dense{},
	}
}

// Steps returns count of applied updates
func (a *Adam) Steps() int {
	return a.steps
}

/*
Step updates every parameter having a gradient and then drops the gradients
*/
func (a *Adam) Step(params []*autograd.Var) {
	a.steps++
	c1 := 1 - math.Pow(a.Beta1, float64(a.steps))
	c2 := 1 - math.Pow(a.Beta2, float64(a.steps))
	for _, p := range params {
		if p.Grad == nil {
			continue
		}
		r, c := p.Dims()
		m, ok := a.m[p]
		if !ok {
			m = mat.NewDense(r, c, nil)
			a.m[p] = m
			a.v[p] = mat.NewDense(r, c, nil)
		}
		v := a.v[p]
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				g := p.Grad.At(i, j)
				mi := a.Beta1*m.At(i, j) + (1-a.Beta1)*g
				vi := a.Beta2*v.At(i, j) + (1-a.Beta2)*g*g
				m.Set(i, j, mi)
				v.Set(i, j, vi)
				p.Value.Set(i, j, p.Value.At(i, j)-a.LR*(mi/c1)/(math.Sqrt(vi/c2)+a.Eps))
			}
		}
		p.ZeroGrad()
	}
}
