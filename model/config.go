package model

import (
	"math"
	"strings"

	"go-ml.dev/pkg/dacredit/fu"
	"golang.org/x/xerrors"
)

/*
CopulaMetric selects how the conditional network compares copulas
*/
type CopulaMetric int

const (
	// CopulaKL is the symmetric gaussian-copula Kullback-Leibler divergence
	CopulaKL CopulaMetric = iota
	// CopulaFrobenius is the Frobenius distance between copula correlations
	CopulaFrobenius
)

func (c CopulaMetric) String() string {
	if c == CopulaFrobenius {
		return "Frobenius"
	}
	return "KL"
}

func (c CopulaMetric) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *CopulaMetric) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "kl", "":
		*c = CopulaKL
	case "frobenius":
		*c = CopulaFrobenius
	default:
		return xerrors.Errorf("copula metric %q: %w", string(b), ErrConfig)
	}
	return nil
}

/*
Config is the immutable description of one training run
*/
type Config struct {
	Model     Kind `json:"model"`
	Input     int  `json:"input"`
	Hidden    int  `json:"hidden"`
	Output    int  `json:"output"`
	BatchSize int  `json:"batch_size"`
	Iteration int  `json:"iteration"` // iterations budget

	LearningRate float64 `json:"lr"`
	TradeOff1    float64 `json:"trade_off1"` // weight of MMD/CORAL or marginal divergence
	TradeOff2    float64 `json:"trade_off2"` // weight of copula divergence, CDAN only

	Patience int          `json:"patience"` // non-improving checkpoints before stop
	Copula   CopulaMetric `json:"copula"`

	// KeepOptimizerState keeps Adam moments across iterations,
	// by default the optimizer is recreated every iteration
	KeepOptimizerState bool  `json:"keep_optimizer_state"`
	Seed               int64 `json:"seed"`
}

// DefaultLearningRate is used when Config.LearningRate is zero
const DefaultLearningRate = 1e-3

func configError(format string, a ...interface{}) error {
	return xerrors.Errorf(format+": %w", append(a, ErrConfig)...)
}

/*
Validate checks the configuration is usable for training
*/
func (c Config) Validate() error {
	if _, ok := kindNames[c.Model]; !ok {
		return xerrors.Errorf("model %d: %w", int(c.Model), ErrUnknownModel)
	}
	if c.Input <= 0 || c.Output <= 0 {
		return configError("input %d and output %d must be positive", c.Input, c.Output)
	}
	if c.Output != 2 {
		return configError("output %d, labels are binary so it must be 2", c.Output)
	}
	if w := c.Hidden / c.hiddenDivisor(); w < 1 {
		return configError("hidden %d is too small for %v, needs at least %d", c.Hidden, c.Model, c.hiddenDivisor())
	}
	if c.BatchSize < 2 {
		return xerrors.Errorf("batch size %d, batch statistics need at least 2 rows: %w", c.BatchSize, ErrDegenerate)
	}
	if c.Iteration <= 0 {
		return configError("iteration budget %d must be positive", c.Iteration)
	}
	if c.Patience <= 0 {
		return configError("patience %d must be positive", c.Patience)
	}
	if c.LearningRate < 0 || !fu.Finite(c.LearningRate) {
		return configError("learning rate %v", c.LearningRate)
	}
	for _, w := range []float64{c.TradeOff1, c.TradeOff2} {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return configError("trade-off %v must be finite and non-negative", w)
		}
	}
	return nil
}

func (c Config) hiddenDivisor() int {
	switch c.Model {
	case DAN, CORAL:
		return 4
	case CDAN:
		return 16
	}
	return 2
}

func (c Config) lr() float64 {
	return fu.Fnzd(c.LearningRate, DefaultLearningRate)
}

/*
Params is a set of named numeric options as the experiment scripts pass them:
input, hidden, output, batch_size, iteration, lr, trade_off1, trade_off2,
patience, seed
*/
type Params map[string]float64

/*
Get value of the parameter by name if exists and dflt value otherwise
*/
func (p Params) Get(name string, dflt float64) float64 {
	if v, ok := p[name]; ok {
		return v
	}
	return dflt
}

var knownParams = map[string]bool{
	"input": true, "hidden": true, "output": true, "batch_size": true,
	"iteration": true, "lr": true, "trade_off1": true, "trade_off2": true,
	"patience": true, "seed": true,
}

/*
FromParams builds a configuration of the named model from options
*/
func FromParams(model string, p Params) (Config, error) {
	kind, err := ParseKind(model)
	if err != nil {
		return Config{}, err
	}
	for k := range p {
		if !knownParams[k] {
			return Config{}, configError("model does not have option `%v`", k)
		}
	}
	c := Config{
		Model:        kind,
		Input:        int(p.Get("input", 0)),
		Hidden:       int(p.Get("hidden", 0)),
		Output:       int(p.Get("output", 2)),
		BatchSize:    int(p.Get("batch_size", 0)),
		Iteration:    int(p.Get("iteration", 0)),
		LearningRate: p.Get("lr", DefaultLearningRate),
		TradeOff1:    p.Get("trade_off1", 0),
		TradeOff2:    p.Get("trade_off2", 0),
		Patience:     int(p.Get("patience", 0)),
		Seed:         int64(p.Get("seed", 0)),
	}
	return c, c.Validate()
}
