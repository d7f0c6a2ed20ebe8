package dataset

import (
	"go-ml.dev/pkg/dacredit/autograd"
	"golang.org/x/xerrors"
)

/*
ErrTooFewRows means a dataset can't fill a single batch
*/
var ErrTooFewRows = xerrors.New("dataset is smaller than one batch")

/*
Cursor walks a dataset in shuffled fixed-size batches dropping the trailing
partial batch. Every cursor owns its permutation and restarts independently.
*/
type Cursor struct {
	ds       *Dataset
	size     int
	ctx      *autograd.Context
	perm     []int
	pos      int
	restarts int
}

/*
NewCursor creates a shuffled cursor over ds
*/
func NewCursor(ctx *autograd.Context, ds *Dataset, batchSize int) (*Cursor, error) {
	if batchSize <= 0 {
		return nil, xerrors.Errorf("batch size %d must be positive", batchSize)
	}
	if ds.Len() < batchSize {
		return nil, xerrors.Errorf("%d rows for batch size %d: %w", ds.Len(), batchSize, ErrTooFewRows)
	}
	c := &Cursor{ds: ds, size: batchSize, ctx: ctx, perm: make([]int, ds.Len())}
	for i := range c.perm {
		c.perm[i] = i
	}
	c.shuffle()
	return c, nil
}

func (c *Cursor) shuffle() {
	c.ctx.Rand.Shuffle(len(c.perm), func(i, j int) { c.perm[i], c.perm[j] = c.perm[j], c.perm[i] })
	c.pos = 0
}

// Len returns count of full batches in one pass
func (c *Cursor) Len() int {
	return c.ds.Len() / c.size
}

// BatchSize returns rows per batch
func (c *Cursor) BatchSize() int {
	return c.size
}

// HasNext reports whether the current pass has one more full batch
func (c *Cursor) HasNext() bool {
	return c.pos+c.size <= len(c.perm)
}

/*
Reset reshuffles rows and starts a new pass
*/
func (c *Cursor) Reset() {
	c.shuffle()
	c.restarts++
}

// Restarts returns how many times the cursor was reset
func (c *Cursor) Restarts() int {
	return c.restarts
}

/*
Next returns the next batch of the current pass, it must be guarded by HasNext
*/
func (c *Cursor) Next() Batch {
	b := c.ds.Rows(c.perm[c.pos : c.pos+c.size])
	c.pos += c.size
	return b
}

/*
Draw returns the next batch starting a new pass when the current one is exhausted
*/
func (c *Cursor) Draw() Batch {
	if !c.HasNext() {
		c.Reset()
	}
	return c.Next()
}
