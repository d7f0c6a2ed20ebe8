/*
Package dataset holds labeled feature matrices and the shuffled batch
streams the training loop draws from.
*/
package dataset

import (
	"math/rand"

	"go-ml.dev/pkg/zorros/zorros"
	"gonum.org/v1/gonum/mat"
)

/*
Dataset is an ordered set of feature vectors with binary labels
*/
type Dataset struct {
	X *mat.Dense
	Y []int
}

/*
New binds features and labels checking that every label is 0 or 1
*/
func New(x *mat.Dense, y []int) (*Dataset, error) {
	r, _ := x.Dims()
	if r != len(y) {
		return nil, zorros.Errorf("%d feature rows for %d labels", r, len(y))
	}
	for i, v := range y {
		if v != 0 && v != 1 {
			return nil, zorros.Errorf("label %d at row %d is not binary", v, i)
		}
	}
	return &Dataset{X: x, Y: y}, nil
}

// Len returns count of rows
func (ds *Dataset) Len() int {
	return len(ds.Y)
}

// Width returns count of features
func (ds *Dataset) Width() int {
	_, c := ds.X.Dims()
	return c
}

/*
Classes returns count of label-0 and label-1 rows
*/
func (ds *Dataset) Classes() (n0, n1 int) {
	for _, v := range ds.Y {
		if v == 1 {
			n1++
		} else {
			n0++
		}
	}
	return
}

/*
Rows copies the selected rows into a new batch
*/
func (ds *Dataset) Rows(idx []int) Batch {
	x := mat.NewDense(len(idx), ds.Width(), nil)
	y := make([]int, len(idx))
	for i, j := range idx {
		x.SetRow(i, ds.X.RawRowView(j))
		y[i] = ds.Y[j]
	}
	return Batch{X: x, Y: y, Index: append([]int(nil), idx...)}
}

/*
Subsample keeps every label-1 row and a random frac of label-0 rows.
Rows order is not preserved.
*/
func Subsample(ds *Dataset, frac float64, rng *rand.Rand) (*Dataset, error) {
	if frac < 0 || frac > 1 {
		return nil, zorros.Errorf("subsampling fraction %v is out of [0,1]", frac)
	}
	var pos, neg []int
	for i, v := range ds.Y {
		if v == 1 {
			pos = append(pos, i)
		} else {
			neg = append(neg, i)
		}
	}
	rng.Shuffle(len(neg), func(i, j int) { neg[i], neg[j] = neg[j], neg[i] })
	keep := append(pos, neg[:int(frac*float64(len(neg)))]...)
	if len(keep) == 0 {
		return nil, zorros.Errorf("subsampling with fraction %v leaves no rows", frac)
	}
	b := ds.Rows(keep)
	return &Dataset{X: b.X, Y: b.Y}, nil
}

/*
Batch is a fixed-size sample of a dataset, Index keeps original row numbers
*/
type Batch struct {
	X     *mat.Dense
	Y     []int
	Index []int
}
