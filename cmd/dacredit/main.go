package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go-ml.dev/pkg/dacredit/dataset"
	"go-ml.dev/pkg/dacredit/fu"
	"go-ml.dev/pkg/dacredit/metrics"
	"go-ml.dev/pkg/dacredit/model"
	"go-ml.dev/pkg/dacredit/results"
	"go-ml.dev/pkg/iokit"
	"go-ml.dev/pkg/zorros/zorros"
	"go-ml.dev/pkg/zorros/zlog"
)

type options struct {
	src, tgt, eval string
	tgtFrac        float64
	model, copula  string
	cfg            model.Config
	db, export     string
	metricsAddr    string
	noStore        bool
}

func parseFlags() (o options) {
	pflag.StringVar(&o.src, "src", "", "source population CSV (.csv or .csv.xz)")
	pflag.StringVar(&o.tgt, "tgt", "", "target population CSV (.csv or .csv.xz)")
	pflag.StringVar(&o.eval, "eval", "", "labeled target CSV for checkpoints, --tgt if empty")
	pflag.Float64Var(&o.tgtFrac, "tgt-frac", 1, "fraction of label-0 target rows to keep")
	pflag.StringVar(&o.model, "model", "MLP", "architecture: MLP, DAN, CORAL or CDAN")
	pflag.StringVar(&o.copula, "copula", "KL", "CDAN copula metric: KL or Frobenius")
	pflag.IntVar(&o.cfg.Input, "input", 0, "feature count, taken from data if 0")
	pflag.IntVar(&o.cfg.Hidden, "hidden", 64, "hidden width")
	pflag.IntVar(&o.cfg.Output, "output", 2, "count of classes")
	pflag.IntVar(&o.cfg.BatchSize, "batch", 64, "batch size")
	pflag.IntVar(&o.cfg.Iteration, "iter", 1000, "iterations budget")
	pflag.Float64Var(&o.cfg.LearningRate, "lr", model.DefaultLearningRate, "learning rate")
	pflag.Float64Var(&o.cfg.TradeOff1, "trade-off1", 1, "weight of MMD, CORAL or marginal divergence")
	pflag.Float64Var(&o.cfg.TradeOff2, "trade-off2", 1, "weight of copula divergence")
	pflag.IntVar(&o.cfg.Patience, "patience", 10, "checkpoints without improvement before stop")
	pflag.BoolVar(&o.cfg.KeepOptimizerState, "keep-optimizer", false, "keep Adam state across iterations")
	pflag.Int64Var(&o.cfg.Seed, "seed", 1, "random seed")
	pflag.StringVar(&o.db, "db", results.DefaultFile, "run store, relative to the go-ml cache")
	pflag.BoolVar(&o.noStore, "no-store", false, "do not store the run")
	pflag.StringVar(&o.export, "export", "", "write the training record as JSON into this file")
	pflag.StringVar(&o.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	pflag.Parse()
	return
}

func main() {
	if err := run(parseFlags()); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run(o options) error {
	reg := prometheus.NewRegistry()
	if o.metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			if e := http.ListenAndServe(o.metricsAddr, mux); e != nil {
				zlog.Warning(fmt.Sprintf("metrics server stopped: %v", e))
			}
		}()
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	_, _, err := execute(ctx, o, reg, os.Stdout)
	return err
}

/*
prepare resolves the configuration and loads source, target and evaluation data
*/
func prepare(o options) (cfg model.Config, d model.Domains, err error) {
	cfg = o.cfg
	if cfg.Model, err = model.ParseKind(o.model); err != nil {
		return
	}
	if err = cfg.Copula.UnmarshalText([]byte(o.copula)); err != nil {
		return
	}
	if o.src == "" || o.tgt == "" {
		err = zorros.Errorf("both --src and --tgt are required")
		return
	}
	if d.Source, err = dataset.Load(o.src); err != nil {
		return
	}
	if d.Target, err = dataset.Load(o.tgt); err != nil {
		return
	}
	if o.tgtFrac < 1 {
		rng := rand.New(rand.NewSource(cfg.Seed))
		if d.Target, err = dataset.Subsample(d.Target, o.tgtFrac, rng); err != nil {
			return
		}
	}
	if o.eval != "" {
		if d.Eval, err = dataset.Load(o.eval); err != nil {
			return
		}
	}
	cfg.Input = fu.Fnzi(cfg.Input, d.Source.Width())
	return
}

/*
execute trains and reports the record into w, the export file and the run store.
A canceled run still reports its partial record before the context error is returned.
*/
func execute(ctx context.Context, o options, reg prometheus.Registerer, w io.Writer) (id string, rec *model.Record, err error) {
	cfg, d, err := prepare(o)
	if err != nil {
		return
	}
	tr := model.Training{
		Config:  cfg,
		Metrics: metrics.New(reg),
		Verbose: func(s string) { fmt.Fprintln(w, s) },
	}
	res, err := tr.Train(ctx, d)
	if res == nil {
		return
	}
	rec = res.Record
	if e := json.NewEncoder(w).Encode(rec.Map()); e != nil {
		return "", rec, e
	}
	if o.export != "" {
		if e := rec.Export(iokit.File(o.export)); e != nil {
			return "", rec, e
		}
	}
	if !o.noStore {
		st, e := results.Open(o.db)
		if e != nil {
			return "", rec, e
		}
		defer st.Close()
		if id, e = st.Save(cfg, rec); e != nil {
			return "", rec, e
		}
		fmt.Fprintf(w, "run %v stopped by %v at iteration %d, best roc %.5f\n", id, rec.Stop, rec.StoppedAt, rec.Roc)
	}
	return
}
