package model

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go-ml.dev/pkg/dacredit/dataset"
	"go-ml.dev/pkg/dacredit/metrics"
	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/mat"
	"gotest.tools/assert"
)

/*
separable makes n rows of 5 features labeled by the sign of every feature
*/
func separable(n int, jitter float64) *dataset.Dataset {
	x := mat.NewDense(n, 5, nil)
	y := make([]int, n)
	for i := range y {
		y[i] = i % 2
		for j := 0; j < 5; j++ {
			x.Set(i, j, float64(2*y[i]-1)*(1+jitter*float64((i+j)%4)))
		}
	}
	ds, err := dataset.New(x, y)
	if err != nil {
		panic(err)
	}
	return ds
}

func e2eConfig(kind Kind) Config {
	return Config{
		Model:        kind,
		Input:        5,
		Hidden:       8,
		Output:       2,
		BatchSize:    4,
		Iteration:    20,
		Patience:     100,
		LearningRate: 0.05,
		Seed:         1,
	}
}

func e2eDomains() Domains {
	return Domains{Source: separable(20, 0.05), Target: separable(20, 0.07)}
}

func Test_TrainMLP(t *testing.T) {
	reg := prometheus.NewRegistry()
	tr := Training{Config: e2eConfig(MLP), Metrics: metrics.New(reg)}
	res, err := tr.Train(context.Background(), e2eDomains())
	assert.NilError(t, err)
	rec := res.Record
	assert.Equal(t, res.Interval, 5)
	assert.Equal(t, rec.Stop, StopBudget)
	assert.Equal(t, rec.StoppedAt, 20)
	assert.Equal(t, rec.Checkpoints(), 4)
	assert.Assert(t, rec.Roc >= 0.9, "roc %v", rec.Roc)
	assert.Assert(t, rec.Time > 0)

	// the plain classifier produces no divergence terms
	for i := 0; i < rec.Checkpoints(); i++ {
		assert.Equal(t, rec.DomainDiv[i], 0.0)
		assert.Equal(t, rec.TotalDiv[i], 0.0)
		assert.Equal(t, rec.CopulaDistance[i], 0.0)
		assert.Assert(t, rec.LSrc[i] > 0)
	}
	assert.Equal(t, len(res.SourceFT), 20)
	assert.Equal(t, len(res.TargetFT), 20)
	r, c := res.SourceFT[0].Dims()
	assert.Equal(t, r, 4)
	assert.Equal(t, c, 4)

	assert.Equal(t, testutil.ToFloat64(tr.Metrics.Iterations), 20.0)
	assert.Equal(t, testutil.ToFloat64(tr.Metrics.Checkpoints), 4.0)
	assert.Equal(t, testutil.ToFloat64(tr.Metrics.Stops.WithLabelValues("budget")), 1.0)
	assert.Equal(t, testutil.ToFloat64(tr.Metrics.BestROC), rec.Roc)
	// 20 iterations over 5 batches per pass
	assert.Equal(t, testutil.ToFloat64(tr.Metrics.StreamRestarts.WithLabelValues("target")), 3.0)
}

func Test_CheckpointInterval(t *testing.T) {
	for _, q := range []struct{ rows, batch, interval int }{
		{20, 4, 5},
		{23, 4, 5},
		{9, 3, 3},
		{7, 7, 1},
	} {
		cfg := e2eConfig(MLP)
		cfg.BatchSize = q.batch
		cfg.Iteration = 12
		res, err := Training{Config: cfg}.Train(context.Background(), Domains{Source: separable(20, 0.05), Target: separable(q.rows, 0.07)})
		assert.NilError(t, err)
		assert.Equal(t, res.Interval, q.interval)
		assert.Equal(t, res.Record.Checkpoints(), 12/q.interval)
		assert.Equal(t, res.Record.StoppedAt, 12)
	}
}

// scores replays a fixed sequence of checkpoint scores
func scores(s ...float64) Score {
	i := 0
	return func([]int, []int) (float64, error) {
		v := s[i%len(s)]
		i++
		return v, nil
	}
}

func Test_EarlyStop(t *testing.T) {
	cfg := e2eConfig(MLP)
	cfg.Iteration = 100
	cfg.Patience = 3
	res, err := Training{Config: cfg, Score: scores(0.6, 0.6, 0.5, 0.4)}.Train(context.Background(), e2eDomains())
	assert.NilError(t, err)
	rec := res.Record
	assert.Equal(t, rec.Stop, StopEarly)
	assert.Equal(t, rec.Checkpoints(), cfg.Patience+1)
	assert.Equal(t, rec.StoppedAt, (cfg.Patience+1)*res.Interval)
	assert.DeepEqual(t, rec.RocHistory, []float64{0.6, 0.6, 0.5, 0.4})
	assert.Equal(t, rec.Roc, 0.6)

	improving := make([]float64, 20)
	for i := range improving {
		improving[i] = 0.5 + 0.02*float64(i)
	}
	res, err = Training{Config: cfg, Score: scores(improving...)}.Train(context.Background(), e2eDomains())
	assert.NilError(t, err)
	assert.Equal(t, res.Record.Stop, StopBudget)
	assert.Equal(t, res.Record.StoppedAt, 100)
	assert.Equal(t, res.Record.Checkpoints(), 20)
	assert.Equal(t, res.Record.Roc, improving[19])
}

func Test_DivergenceFields(t *testing.T) {
	for _, kind := range []Kind{DAN, CORAL, CDAN} {
		cfg := e2eConfig(kind)
		cfg.Hidden = 32
		cfg.Iteration = 10
		cfg.TradeOff1, cfg.TradeOff2 = 1, 1
		res, err := Training{Config: cfg}.Train(context.Background(), e2eDomains())
		assert.NilError(t, err, "%v", kind)
		rec := res.Record
		assert.Equal(t, rec.Checkpoints(), 2)
		for i := 0; i < rec.Checkpoints(); i++ {
			if kind == CDAN {
				assert.Equal(t, rec.TotalDiv[i], 0.0)
				assert.Assert(t, rec.DomainDiv[i] > 0)
				assert.Assert(t, rec.CopulaDistance[i] >= 0)
			} else {
				assert.Assert(t, rec.TotalDiv[i] > 0, "%v", kind)
				assert.Equal(t, rec.DomainDiv[i], 0.0)
				assert.Equal(t, rec.CopulaDistance[i], 0.0)
			}
		}
	}
}

func Test_TradeOffGatesGradient(t *testing.T) {
	train := func(kind Kind, w float64) *Record {
		cfg := e2eConfig(kind)
		cfg.Hidden = 16
		cfg.TradeOff1 = w
		res, err := Training{Config: cfg}.Train(context.Background(), e2eDomains())
		assert.NilError(t, err)
		return res.Record
	}
	// both networks share layout and seed, so a nullified divergence
	// leaves exactly the same classification trajectory. The plain MLP has
	// its own layout and batch norm momentum (see DESIGN.md, open question
	// decisions), so CORAL(0) is compared with DAN(0) rather than with it.
	coral, dan := train(CORAL, 0), train(DAN, 0)
	assert.DeepEqual(t, coral.LSrc, dan.LSrc)
	assert.DeepEqual(t, coral.TargetLoss, dan.TargetLoss)
	assert.DeepEqual(t, coral.RocHistory, dan.RocHistory)
	// the term is still reported
	assert.Assert(t, coral.TotalDiv[0] > 0)

	weighted := train(CORAL, 10)
	differs := false
	for i := range weighted.TargetLoss {
		differs = differs || weighted.TargetLoss[i] != coral.TargetLoss[i]
	}
	assert.Assert(t, differs)
}

func Test_KeepOptimizerState(t *testing.T) {
	cfg := e2eConfig(MLP)
	cfg.KeepOptimizerState = true
	res, err := Training{Config: cfg}.Train(context.Background(), e2eDomains())
	assert.NilError(t, err)
	assert.Equal(t, res.Record.Stop, StopBudget)

	fresh, err := Training{Config: e2eConfig(MLP)}.Train(context.Background(), e2eDomains())
	assert.NilError(t, err)
	// the first checkpoint already differs once moments carry over
	assert.Assert(t, res.Record.TargetLoss[0] != fresh.Record.TargetLoss[0])
}

func Test_TrainCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Training{Config: e2eConfig(MLP)}.Train(ctx, e2eDomains())
	assert.Assert(t, xerrors.Is(err, context.Canceled))
	assert.Assert(t, res != nil)
	assert.Equal(t, res.Record.Stop, StopCanceled)
	assert.Equal(t, res.Record.StoppedAt, 0)
	assert.Equal(t, res.Record.Checkpoints(), 0)
}

func Test_TrainFatal(t *testing.T) {
	d := e2eDomains()
	cfg := e2eConfig(MLP)
	cfg.Input = 6
	_, err := Training{Config: cfg}.Train(context.Background(), d)
	assert.Assert(t, xerrors.Is(err, ErrDimension))

	cfg = e2eConfig(MLP)
	cfg.BatchSize = 32
	_, err = Training{Config: cfg}.Train(context.Background(), d)
	assert.Assert(t, xerrors.Is(err, ErrDegenerate))

	single, _ := dataset.New(mat.NewDense(20, 5, nil), make([]int, 20))
	_, err = Training{Config: e2eConfig(MLP)}.Train(context.Background(), Domains{Source: d.Source, Target: single})
	assert.Assert(t, xerrors.Is(err, ErrDegenerate))

	failing := func([]int, []int) (float64, error) { return 0, ErrDegenerate }
	_, err = Training{Config: e2eConfig(MLP), Score: failing}.Train(context.Background(), d)
	assert.Assert(t, xerrors.Is(err, ErrDegenerate))
}

func Test_LuckyTrain(t *testing.T) {
	cfg := e2eConfig(MLP)
	cfg.Iteration = 5
	var lines []string
	res := Training{Config: cfg, Verbose: func(s string) { lines = append(lines, s) }}.LuckyTrain(context.Background(), e2eDomains())
	assert.Equal(t, res.Record.Checkpoints(), 1)
	assert.Assert(t, len(lines) >= 2)

	cfg.Input = 7
	defer func() { assert.Assert(t, recover() != nil) }()
	Training{Config: cfg}.LuckyTrain(context.Background(), e2eDomains())
}
