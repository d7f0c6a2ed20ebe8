package dataset

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/ulikunitz/xz"
	"go-ml.dev/pkg/zorros/zorros"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

/*
Label codes of the credit performance column. Every delinquency bucket is
the negative class, a paid off loan is the positive one.
*/
var labelCodes = map[string]int{
	"0+":     0,
	"30+":    0,
	"60+":    0,
	"90+":    0,
	"120+":   0,
	"payoff": 1,
	"0":      0,
	"1":      1,
}

const (
	labelColumn   = 2 // index, reporting period, label
	featureColumn = 3
)

/*
Load reads a CSV performance file, files with .xz suffix are decompressed
on the fly
*/
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, zorros.Trace(err)
	}
	defer f.Close()
	var rd io.Reader = f
	if strings.HasSuffix(path, ".xz") {
		if rd, err = xz.NewReader(f); err != nil {
			return nil, zorros.Wrapf(err, "failed to open xz stream %v: %v", path, err.Error())
		}
	}
	ds, err := LoadCSV(rd)
	if err != nil {
		return nil, zorros.Wrapf(err, "failed to load %v: %v", path, err.Error())
	}
	return ds, nil
}

/*
LoadCSV reads a header line and then records of
index, period, label code, feature1, feature2, ...
Missing features are zeros, every feature is min-max scaled into [0,1]
using statistics of this same file.
*/
func LoadCSV(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	if _, err := cr.Read(); err != nil {
		return nil, zorros.Wrapf(err, "failed to read header: %v", err.Error())
	}
	var data []float64
	var labels []int
	width := -1
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, zorros.Trace(err)
		}
		if len(rec) <= featureColumn {
			return nil, zorros.Errorf("line %d: %d columns, no features", line, len(rec))
		}
		if width < 0 {
			width = len(rec) - featureColumn
		}
		y, ok := labelCodes[strings.TrimSpace(rec[labelColumn])]
		if !ok {
			return nil, zorros.Errorf("line %d: unknown label code %q", line, rec[labelColumn])
		}
		labels = append(labels, y)
		for _, s := range rec[featureColumn:] {
			v, err := parseFeature(s)
			if err != nil {
				return nil, zorros.Errorf("line %d: %v", line, err.Error())
			}
			data = append(data, v)
		}
	}
	if len(labels) == 0 {
		return nil, zorros.Errorf("no records")
	}
	x := mat.NewDense(len(labels), width, data)
	MinMaxScale(x)
	return New(x, labels)
}

func parseFeature(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) {
		return 0, nil
	}
	return v, nil
}

/*
MinMaxScale maps every column of x into [0,1] in place, constant columns become zeros
*/
func MinMaxScale(x *mat.Dense) {
	r, c := x.Dims()
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, x)
		lo, hi := floats.Min(col), floats.Max(col)
		scale := hi - lo
		if scale == 0 {
			scale = 1
		}
		for i := 0; i < r; i++ {
			x.Set(i, j, (col[i]-lo)/scale)
		}
	}
}
