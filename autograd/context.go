package autograd

import (
	"math/rand"
)

// CPU is the only compute backend
const CPU = "cpu"

/*
Context is the compute context threaded through model construction and
data streams. It owns the random source used for parameter initialisation
and batch shuffling, so a run is reproducible from its seed.
*/
type Context struct {
	Device string
	Rand   *rand.Rand
}

// NewContext creates a CPU context seeded with seed
func NewContext(seed int64) *Context {
	return &Context{Device: CPU, Rand: rand.New(rand.NewSource(seed))}
}
