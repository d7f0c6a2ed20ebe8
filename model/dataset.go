package model

import (
	"go-ml.dev/pkg/dacredit/dataset"
	"golang.org/x/xerrors"
)

/*
Domains binds the data of one training run
*/
type Domains struct {
	Source *dataset.Dataset // labeled source population
	Target *dataset.Dataset // target population, labels are never trained on
	Eval   *dataset.Dataset // labeled target data for checkpoints, equal to Target if nil
}

func (d Domains) eval() *dataset.Dataset {
	if d.Eval != nil {
		return d.Eval
	}
	return d.Target
}

/*
Check verifies data against the configuration before training starts
*/
func (d Domains) Check(cfg Config) error {
	if d.Source == nil || d.Target == nil {
		return xerrors.Errorf("source and target data are required: %w", ErrConfig)
	}
	for _, x := range []struct {
		name    string
		ds      *dataset.Dataset
		batched bool
	}{{"source", d.Source, true}, {"target", d.Target, true}, {"evaluation", d.eval(), false}} {
		if w := x.ds.Width(); w != cfg.Input {
			return xerrors.Errorf("%s data has %d features, configured input is %d: %w", x.name, w, cfg.Input, ErrDimension)
		}
		if x.batched && x.ds.Len() < cfg.BatchSize {
			return xerrors.Errorf("%s data has %d rows, less than batch size %d: %w", x.name, x.ds.Len(), cfg.BatchSize, ErrDegenerate)
		}
	}
	if n0, n1 := d.eval().Classes(); n0 == 0 || n1 == 0 {
		return xerrors.Errorf("evaluation data has a single class, ROC-AUC is undefined: %w", ErrDegenerate)
	}
	return nil
}
