package fu

import (
	"math"
)

/*
Fnzi returns the first non-zero integer or zero
*/
func Fnzi(a ...int) int {
	for _, x := range a {
		if x != 0 {
			return x
		}
	}
	return 0
}

/*
Fnzd returns the first non-zero float or zero
*/
func Fnzd(a ...float64) float64 {
	for _, x := range a {
		if x != 0 {
			return x
		}
	}
	return 0
}

/*
Fnzs returns the first non-empty string
*/
func Fnzs(a ...string) string {
	for _, x := range a {
		if x != "" {
			return x
		}
	}
	return ""
}

/*
Indmaxd returns index of the first maximal value, -1 for empty slice
*/
func Indmaxd(a []float64) int {
	j := -1
	for i, x := range a {
		if j < 0 || x > a[j] {
			j = i
		}
	}
	return j
}

// Finite reports whether x is neither NaN nor infinity
func Finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

