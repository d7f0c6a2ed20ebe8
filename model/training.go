package model

import (
	"context"
	"fmt"
	"time"

	"go-ml.dev/pkg/dacredit/autograd"
	"go-ml.dev/pkg/dacredit/dataset"
	"go-ml.dev/pkg/dacredit/fu"
	"go-ml.dev/pkg/dacredit/metrics"
	"go-ml.dev/pkg/dacredit/nn"
	"go-ml.dev/pkg/zorros/zorros"
	"go-ml.dev/pkg/zorros/zlog"
	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/mat"
)

/*
Training is the domain adaptation training loop. It alternates source and
target batches for a fixed budget of iterations and evaluates the target
domain every full pass over the target stream.
*/
type Training struct {
	Config  Config
	Score   Score            // checkpoint metric, PredictedROC if nil
	Metrics *metrics.Metrics // optional Prometheus collectors
	Verbose func(string)     // optional progress printer
}

/*
Result is the finished training record with embeddings of every iteration
*/
type Result struct {
	Record   *Record
	SourceFT []*mat.Dense // source embeddings, one batch per iteration
	TargetFT []*mat.Dense // target embeddings, one batch per iteration
	Interval int          // iterations between checkpoints
}

type run struct {
	Training
	arch     Architecture
	src, tgt *dataset.Cursor
	eval     *dataset.Dataset
	opt      *nn.Adam
	stop     EarlyStopping
	start    time.Time
	res      *Result

	loss, totalDiv, domainDiv, copula Accumulator
}

/*
Train runs the loop. The context is checked between iterations only,
a canceled run returns its partial result together with the context error.
*/
func (t Training) Train(ctx context.Context, d Domains) (*Result, error) {
	cfg := t.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := d.Check(cfg); err != nil {
		return nil, err
	}
	cc := autograd.NewContext(cfg.Seed)
	arch, err := New(cc, cfg)
	if err != nil {
		return nil, err
	}
	r := &run{Training: t, arch: arch, eval: d.eval(), stop: EarlyStopping{Patience: cfg.Patience}}
	if r.src, err = dataset.NewCursor(cc, d.Source, cfg.BatchSize); err != nil {
		return nil, zorros.Trace(err)
	}
	if r.tgt, err = dataset.NewCursor(cc, d.Target, cfg.BatchSize); err != nil {
		return nil, zorros.Trace(err)
	}
	if cfg.KeepOptimizerState {
		r.opt = nn.NewAdam(cfg.lr())
	}
	r.res = &Result{Record: &Record{}, Interval: r.tgt.Len()}
	return r.loop(ctx)
}

/*
LuckyTrain trains and panics on any error
*/
func (t Training) LuckyTrain(ctx context.Context, d Domains) *Result {
	r, err := t.Train(ctx, d)
	if err != nil {
		panic(zorros.Panic(err))
	}
	return r
}

func (t Training) verbose(s string) {
	if t.Verbose != nil {
		t.Verbose(s)
	}
}

func (r *run) loop(ctx context.Context) (*Result, error) {
	cfg := r.Config
	r.start = time.Now()
	for i := 1; i <= cfg.Iteration; i++ {
		if err := ctx.Err(); err != nil {
			zlog.Warning(fmt.Sprintf("training is canceled after %d iterations: %v", i-1, err))
			r.finish(StopCanceled, i-1)
			return r.res, err
		}
		if err := r.iteration(); err != nil {
			return nil, xerrors.Errorf("iteration %d: %w", i, err)
		}
		if i%r.res.Interval != 0 {
			continue
		}
		stop, err := r.checkpoint(i)
		if err != nil {
			return nil, xerrors.Errorf("checkpoint at iteration %d: %w", i, err)
		}
		if stop {
			r.finish(StopEarly, i)
			r.verbose(fmt.Sprintf("Training stops at %d-th loop with best roc %v", i, r.stop.Best()))
			return r.res, nil
		}
	}
	r.finish(StopBudget, cfg.Iteration)
	return r.res, nil
}

func (r *run) finish(reason StopReason, iteration int) {
	rec := r.res.Record
	rec.Roc = r.stop.Best()
	rec.Time = time.Since(r.start).Seconds()
	rec.Stop = reason
	rec.StoppedAt = iteration
	r.Metrics.Stopped(reason.String())
}

func (r *run) draw(c *dataset.Cursor, stream string) dataset.Batch {
	n := c.Restarts()
	b := c.Draw()
	if c.Restarts() != n {
		r.Metrics.Restarted(stream)
	}
	return b
}

/*
ComposeLoss records the training forward pass and the total loss:
source cross-entropy plus weighted divergence terms the architecture produces
*/
func ComposeLoss(t *autograd.Tape, cfg Config, arch Architecture, src, tgt dataset.Batch) (*autograd.Var, Output, error) {
	out, err := arch.Forward(t, t.Const(src.X), t.Const(tgt.X))
	if err != nil {
		return nil, out, err
	}
	loss, err := t.CrossEntropy(out.Logits, src.Y)
	if err != nil {
		return nil, out, err
	}
	if out.Divergence != nil {
		loss = t.Add(loss, t.Scale(out.Divergence, cfg.TradeOff1))
	}
	if out.Marginal != nil {
		loss = t.Add(loss, t.Scale(out.Marginal, cfg.TradeOff1))
	}
	if out.Copula != nil {
		loss = t.Add(loss, t.Scale(out.Copula, cfg.TradeOff2))
	}
	return loss, out, nil
}

func (r *run) iteration() error {
	r.arch.SetTraining(true)
	opt := r.opt
	if opt == nil {
		opt = nn.NewAdam(r.Config.lr())
	}
	sb, tb := r.draw(r.src, "source"), r.draw(r.tgt, "target")
	params := r.arch.Params()
	nn.ZeroGrad(params)

	t := autograd.NewTape()
	loss, out, err := ComposeLoss(t, r.Config, r.arch, sb, tb)
	if err != nil {
		return err
	}
	if !fu.Finite(loss.Scalar()) {
		return xerrors.Errorf("loss is %v: %w", loss.Scalar(), ErrDegenerate)
	}
	r.loss.Record(loss.Scalar())
	if out.Divergence != nil {
		r.totalDiv.Record(out.Divergence.Scalar())
	}
	if out.Marginal != nil {
		r.domainDiv.Record(out.Marginal.Scalar())
	}
	if out.Copula != nil {
		r.copula.Record(out.Copula.Scalar())
	}
	if err = t.Backward(loss); err != nil {
		return err
	}
	opt.Step(params)
	r.Metrics.Iteration()

	r.arch.SetTraining(false)
	ft := autograd.NewTape()
	ex, ey, err := r.arch.ForwardFT(ft, ft.Const(sb.X), ft.Const(tb.X))
	if err != nil {
		return err
	}
	r.res.SourceFT = append(r.res.SourceFT, ex.Value)
	r.res.TargetFT = append(r.res.TargetFT, ey.Value)
	return nil
}

func (r *run) checkpoint(i int) (bool, error) {
	rec := r.res.Record
	lsrc := r.loss.DrainAverage()
	rec.LSrc = append(rec.LSrc, lsrc)
	rec.DomainDiv = append(rec.DomainDiv, r.domainDiv.DrainAverage())
	rec.TotalDiv = append(rec.TotalDiv, r.totalDiv.DrainAverage())
	rec.CopulaDistance = append(rec.CopulaDistance, r.copula.DrainAverage())
	r.verbose(fmt.Sprintf("Train iter: %d [(%.0f%%)]\tLoss: %.6f",
		i, 100*float64(i)/float64(r.Config.Iteration), lsrc))

	r.arch.SetTraining(false)
	t := autograd.NewTape()
	logits, err := r.arch.Predict(t, t.Const(r.eval.X))
	if err != nil {
		return false, err
	}
	tl, err := t.CrossEntropy(logits, r.eval.Y)
	if err != nil {
		return false, err
	}
	score := r.Score
	if score == nil {
		score = PredictedROC
	}
	roc, err := score(r.eval.Y, Argmax(logits.Value))
	if err != nil {
		return false, err
	}
	if !fu.Finite(roc) {
		return false, xerrors.Errorf("target score is %v: %w", roc, ErrDegenerate)
	}
	_, stop := r.stop.Update(roc)
	rec.TargetLoss = append(rec.TargetLoss, tl.Scalar())
	rec.RocHistory = append(rec.RocHistory, roc)
	r.Metrics.Checkpoint(lsrc, tl.Scalar(), roc, r.stop.Best())
	r.verbose(fmt.Sprintf("Target loss: %.4f, ROC: %v", tl.Scalar(), r.stop.Best()))
	return stop, nil
}
