package model

import (
	"sort"

	"go-ml.dev/pkg/dacredit/fu"
	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

/*
Accumulator collects per-iteration values of one loss term between
two checkpoints
*/
type Accumulator struct {
	values []float64
}

// Record appends a value
func (a *Accumulator) Record(v float64) {
	a.values = append(a.values, v)
}

// Len returns count of recorded values
func (a *Accumulator) Len() int {
	return len(a.values)
}

/*
DrainAverage returns the mean of recorded values and forgets them,
zero if nothing was recorded
*/
func (a *Accumulator) DrainAverage() float64 {
	if len(a.values) == 0 {
		return 0
	}
	m := stat.Mean(a.values, nil)
	a.values = a.values[:0]
	return m
}

/*
EarlyStopping counts consecutive checkpoints without strict improvement
of the best score
*/
type EarlyStopping struct {
	Patience int
	best     float64
	count    int
}

// Best returns the best score seen so far, zero before the first update
func (e *EarlyStopping) Best() float64 {
	return e.best
}

/*
Update registers a checkpoint score and reports whether it improved the
best one and whether patience is exhausted
*/
func (e *EarlyStopping) Update(score float64) (improved, stop bool) {
	if score > e.best {
		e.best = score
		e.count = 0
		improved = true
	} else {
		e.count++
	}
	return improved, e.count >= e.Patience
}

/*
Score is a checkpoint metric of predicted labels against true ones
*/
type Score func(labels, predicted []int) (float64, error)

/*
PredictedROC is the ROC-AUC of hard class predictions
*/
func PredictedROC(labels, predicted []int) (float64, error) {
	s := make([]float64, len(predicted))
	for i, p := range predicted {
		s[i] = float64(p)
	}
	return RocAuc(labels, s)
}

/*
RocAuc is the area under ROC curve of scores against binary labels.
Tied scores form a single ROC point. Single-class labels make it undefined.
*/
func RocAuc(labels []int, scores []float64) (float64, error) {
	if len(labels) != len(scores) {
		return 0, xerrors.Errorf("%d labels for %d scores: %w", len(labels), len(scores), ErrDimension)
	}
	idx := make([]int, len(scores))
	var pos, neg float64
	for i, y := range labels {
		idx[i] = i
		if y == 1 {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return 0, xerrors.Errorf("ROC-AUC of %v positive and %v negative labels: %w", pos, neg, ErrDegenerate)
	}
	sort.SliceStable(idx, func(i, j int) bool { return scores[idx[i]] > scores[idx[j]] })
	fpr, tpr := []float64{0}, []float64{0}
	var tp, fp float64
	for i, k := range idx {
		if labels[k] == 1 {
			tp++
		} else {
			fp++
		}
		if i == len(idx)-1 || scores[idx[i+1]] != scores[k] {
			fpr = append(fpr, fp/neg)
			tpr = append(tpr, tp/pos)
		}
	}
	return integrate.Trapezoidal(fpr, tpr), nil
}

/*
Argmax returns the index of the largest value of every row
*/
func Argmax(m mat.Matrix) []int {
	r, c := m.Dims()
	out := make([]int, r)
	row := make([]float64, c)
	for i := range out {
		out[i] = fu.Indmaxd(mat.Row(row, i, m))
	}
	return out
}
