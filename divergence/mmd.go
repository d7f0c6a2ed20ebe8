package divergence

import (
	"math"

	"go-ml.dev/pkg/dacredit/autograd"
	"gonum.org/v1/gonum/mat"
)

const (
	// KernelMul is the bandwidth ratio of neighbouring gaussian kernels
	KernelMul = 2.0
	// KernelNum is count of gaussian kernels in the MMD mixture
	KernelNum = 5
)

/*
MMD is the squared maximum mean discrepancy (biased estimate) under a
mixture of KernelNum gaussian kernels. The base bandwidth is the mean
pairwise squared distance over both batches and is not differentiated.
*/
func MMD(t *autograd.Tape, a, b *autograd.Var) (*autograd.Var, error) {
	if _, _, _, err := check(a, b, 1); err != nil {
		return nil, err
	}
	return mmd(t, a, b), nil
}

/*
MarginalMMD averages one-dimensional MMD over the embedding features,
so it compares marginal distributions and ignores the dependence between them
*/
func MarginalMMD(t *autograd.Tape, a, b *autograd.Var) (*autograd.Var, error) {
	_, _, d, err := check(a, b, 1)
	if err != nil {
		return nil, err
	}
	var s *autograd.Var
	for j := 0; j < d; j++ {
		q := mmd(t, t.Col(a, j), t.Col(b, j))
		if s == nil {
			s = q
		} else {
			s = t.Add(s, q)
		}
	}
	return t.Scale(s, 1/float64(d)), nil
}

func mmd(t *autograd.Tape, a, b *autograd.Var) *autograd.Var {
	n, _ := a.Dims()
	m, _ := b.Dims()
	daa, dbb, dab := t.SqDist(a, a), t.SqDist(b, b), t.SqDist(a, b)
	k := n + m
	bw := (mat.Sum(daa.Value) + mat.Sum(dbb.Value) + 2*mat.Sum(dab.Value)) / float64(k*k-k)
	bw /= math.Pow(KernelMul, KernelNum/2)
	if !(bw > 1e-12) {
		// all points coincide, any bandwidth gives the same kernel
		bw = 1
	}
	kernel := func(dist *autograd.Var) (s *autograd.Var) {
		for i := 0; i < KernelNum; i++ {
			e := t.Exp(t.Scale(dist, -1/(bw*math.Pow(KernelMul, float64(i)))))
			if s == nil {
				s = e
			} else {
				s = t.Add(s, e)
			}
		}
		return
	}
	v := t.Sub(t.Add(t.Mean(kernel(daa)), t.Mean(kernel(dbb))), t.Scale(t.Mean(kernel(dab)), 2))
	return t.ReLU(v)
}
