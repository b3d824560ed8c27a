// Package simcomm is an in-process, goroutine-per-rank stand-in for
// bigfile.Communicator, used to exercise collective code paths in tests
// without an actual MPI runtime.
package simcomm

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Group coordinates size simulated ranks sharing a single process. Every
// collective call rendezvouses all size ranks before any of them proceeds,
// mirroring the blocking semantics of a real collective runtime.
type Group struct {
	size int

	mu         sync.Mutex
	cond       *sync.Cond
	generation int
	arrived    int
	payload    []interface{}
	result     interface{}
}

// NewGroup creates a Group of size simulated ranks.
func NewGroup(size int) *Group {
	g := &Group{size: size, payload: make([]interface{}, size)}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Rank returns the Communicator handle for one simulated rank.
func (g *Group) Rank(rank int) *Rank { return &Rank{group: g, rank: rank} }

// rendezvous blocks the caller until every rank in the group has supplied a
// value for the current generation, then runs combine exactly once (on the
// last arrival) over the values in rank order. Every rank observes the same
// result.
func (g *Group) rendezvous(rank int, value interface{}, combine func([]interface{}) interface{}) interface{} {
	g.mu.Lock()
	defer g.mu.Unlock()

	myGen := g.generation
	g.payload[rank] = value
	g.arrived++

	if g.arrived == g.size {
		result := combine(g.payload)
		g.result = result
		g.payload = make([]interface{}, g.size)
		g.arrived = 0
		g.generation++
		g.cond.Broadcast()
		return result
	}

	for g.generation == myGen {
		g.cond.Wait()
	}
	return g.result
}

// Rank is one simulated rank's Communicator implementation.
type Rank struct {
	group *Group
	rank  int
}

func (r *Rank) Rank() int { return r.rank }

func (r *Rank) Size() int { return r.group.size }

func (r *Rank) Barrier() error {
	r.group.rendezvous(r.rank, nil, func([]interface{}) interface{} { return nil })
	return nil
}

func (r *Rank) Broadcast(value []byte, root int) ([]byte, error) {
	res := r.group.rendezvous(r.rank, value, func(vals []interface{}) interface{} {
		b, _ := vals[root].([]byte)
		return b
	})
	b, _ := res.([]byte)
	return b, nil
}

func (r *Rank) AllreduceSum(x int64) (int64, error) {
	res := r.group.rendezvous(r.rank, x, func(vals []interface{}) interface{} {
		var sum int64
		for _, v := range vals {
			sum += v.(int64)
		}
		return sum
	})
	return res.(int64), nil
}

func (r *Rank) AllgatherInt(x int64) ([]int64, error) {
	res := r.group.rendezvous(r.rank, x, func(vals []interface{}) interface{} {
		out := make([]int64, len(vals))
		for i, v := range vals {
			out[i] = v.(int64)
		}
		return out
	})
	return append([]int64(nil), res.([]int64)...), nil
}

// Run launches fn once per rank concurrently, via an errgroup so the first
// rank error cancels ctx for the rest, then waits for every rank to return.
// Callers whose fn ignores ctx and keeps calling collective operations after
// a peer's error may deadlock on the group's rendezvous; tests should have
// every rank return promptly on ctx.Err().
func Run(size int, fn func(ctx context.Context, r *Rank) error) error {
	g := NewGroup(size)
	eg, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < size; i++ {
		rank := g.Rank(i)
		eg.Go(func() error {
			return fn(ctx, rank)
		})
	}
	return eg.Wait()
}
