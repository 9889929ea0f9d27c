// Package comm runs a group of cooperating ranks that synchronize through
// collective operations. Every rank must call the same collectives in the
// same order; a rank failing aborts the whole group.
package comm

import (
	"context"
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	ErrTypeAborted = "comm_aborted"
)

// Comm is the handle of one rank inside its group.
type Comm struct {
	rank  int
	group *group
}

// Run starts size ranks, each executing fn with its own Comm, and waits for
// all of them. The first error returned by a rank aborts the group: ranks
// blocked in a collective, or entering one later, get an ErrTypeAborted
// error.
func Run(ctx context.Context, size int, fn func(context.Context, *Comm) error) error {
	if size < 1 {
		return errors.New("process group needs at least one rank").
			WithTag("size", size)
	}

	if err := ctx.Err(); err != nil {
		return errors.New("process group canceled").
			WithType(ErrTypeAborted).
			Wrap(err)
	}

	g := newGroup(size)
	eg, rankCtx := errgroup.WithContext(ctx)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			g.abort(errors.New("process group canceled").
				WithType(ErrTypeAborted).
				Wrap(ctx.Err()))
		case <-stop:
		}
	}()

	for rank := 0; rank < size; rank++ {
		c := &Comm{rank: rank, group: g}

		eg.Go(func() error {
			err := fn(rankCtx, c)
			if err != nil {
				g.abort(errors.New("rank failed").
					WithType(ErrTypeAborted).
					WithTag("rank", c.rank).
					Wrap(err))
				return err
			}

			g.leave(c.rank)
			return nil
		})
	}

	return eg.Wait()
}

// Solo returns a single rank group. It is used where no other ranks exist,
// for example tests of mesh operations.
func Solo() *Comm {
	return &Comm{group: newGroup(1)}
}

func (c *Comm) Rank() int {
	return c.rank
}

func (c *Comm) Size() int {
	return c.group.size
}

// Barrier blocks until every rank reached it.
func (c *Comm) Barrier() error {
	_, err := c.group.exchange("barrier", c.rank, nil)
	return err
}

// Allgather gives every rank the values contributed by all ranks, ordered by
// rank.
func Allgather[T any](c *Comm, v T) ([]T, error) {
	vals, err := c.group.exchange("allgather", c.rank, v)
	if err != nil {
		return nil, err
	}

	res := make([]T, len(vals))
	for i, v := range vals {
		res[i] = v.(T)
	}
	return res, nil
}

// AllreduceSum returns the sum of v over all ranks.
func AllreduceSum(c *Comm, v int) (int, error) {
	vals, err := c.group.exchange("allreduce", c.rank, v)
	if err != nil {
		return 0, err
	}

	var sum int
	for _, v := range vals {
		sum += v.(int)
	}
	return sum, nil
}

// ExclusiveScan returns the sum of v over all ranks lower than the caller,
// and the total over all ranks.
func ExclusiveScan(c *Comm, v int) (offset, total int, err error) {
	vals, err := Allgather(c, v)
	if err != nil {
		return 0, 0, err
	}

	for r, v := range vals {
		if r < c.rank {
			offset += v
		}
		total += v
	}
	return offset, total, nil
}

type group struct {
	size int

	mutex      sync.Mutex
	cond       *sync.Cond
	op         string
	arrived    int
	generation uint64
	slots      []any
	result     []any
	left       int
	err        error
}

func newGroup(size int) *group {
	g := &group{
		size:  size,
		slots: make([]any, size),
	}
	g.cond = sync.NewCond(&g.mutex)
	return g
}

func (g *group) exchange(op string, rank int, v any) ([]any, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.err != nil {
		return nil, g.err
	}

	if g.left != 0 {
		g.abortLocked(errors.New("collective called after a rank left the group").
			WithType(ErrTypeAborted).
			WithTag("op", op).
			WithTag("rank", rank))
		return nil, g.err
	}

	if g.arrived == 0 {
		g.op = op
	} else if g.op != op {
		g.abortLocked(errors.New("ranks called different collectives").
			WithType(ErrTypeAborted).
			WithTag("op", op).
			WithTag("pending_op", g.op).
			WithTag("rank", rank))
		return nil, g.err
	}

	g.slots[rank] = v
	g.arrived++
	instrumentCollective(op)

	if g.arrived == g.size {
		g.result = g.slots
		g.slots = make([]any, g.size)
		g.arrived = 0
		g.generation++
		g.cond.Broadcast()
		return g.result, nil
	}

	generation := g.generation
	for generation == g.generation && g.err == nil {
		g.cond.Wait()
	}

	if generation == g.generation {
		return nil, g.err
	}
	return g.result, nil
}

// leave records that a rank returned. Ranks still waiting in a collective can
// never complete it, so the group is aborted.
func (g *group) leave(rank int) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.left++
	if g.arrived != 0 {
		g.abortLocked(errors.New("rank left the group during a collective").
			WithType(ErrTypeAborted).
			WithTag("op", g.op).
			WithTag("rank", rank))
	}
}

func (g *group) abort(err error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.abortLocked(err)
}

func (g *group) abortLocked(err error) {
	if g.err != nil {
		return
	}

	g.err = err
	instrumentAbort()
	g.cond.Broadcast()
}
