package model

import (
	"encoding/json"

	"go-ml.dev/pkg/iokit"
	"go-ml.dev/pkg/zorros/zorros"
	"golang.org/x/xerrors"
)

/*
StopReason tells how a training loop terminated
*/
type StopReason int

const (
	// StopBudget means every configured iteration was done
	StopBudget StopReason = iota
	// StopEarly means patience was exhausted
	StopEarly
	// StopCanceled means the caller's context was done
	StopCanceled
)

var stopNames = []string{"budget", "early", "canceled"}

func (s StopReason) String() string {
	if int(s) < len(stopNames) {
		return stopNames[s]
	}
	return "unknown"
}

func (s StopReason) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *StopReason) UnmarshalText(b []byte) error {
	for i, n := range stopNames {
		if n == string(b) {
			*s = StopReason(i)
			return nil
		}
	}
	return xerrors.Errorf("unknown stop reason %q", string(b))
}

/*
Record is the training report. Sequences have one value per checkpoint,
terms the architecture does not produce are zeros.
*/
type Record struct {
	LSrc           []float64 `json:"l_src"`
	DomainDiv      []float64 `json:"domain_div"`
	TotalDiv       []float64 `json:"total_div"`
	CopulaDistance []float64 `json:"copula_distance"`
	TargetLoss     []float64 `json:"target_loss"`
	RocHistory     []float64 `json:"roc_history"`

	Roc       float64    `json:"roc"`  // the best target ROC-AUC
	Time      float64    `json:"time"` // elapsed seconds
	Stop      StopReason `json:"stop"`
	StoppedAt int        `json:"stopped_at"` // last done iteration
}

// Checkpoints returns count of recorded checkpoints
func (r *Record) Checkpoints() int {
	return len(r.LSrc)
}

/*
Map renders the record as the classic result mapping
*/
func (r *Record) Map() map[string][]float64 {
	return map[string][]float64{
		"l_src":           r.LSrc,
		"domain_div":      r.DomainDiv,
		"total_div":       r.TotalDiv,
		"copula_distance": r.CopulaDistance,
		"roc":             {r.Roc},
		"time":            {r.Time},
	}
}

/*
Export writes the record as JSON into the output
*/
func (r *Record) Export(output iokit.Output) (err error) {
	wh, err := output.Create()
	if err != nil {
		return zorros.Trace(err)
	}
	defer wh.End()
	if err = json.NewEncoder(wh).Encode(r); err != nil {
		return zorros.Wrapf(err, "failed to encode training record: %v", err.Error())
	}
	return wh.Commit()
}
