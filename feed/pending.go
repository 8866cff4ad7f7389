package feed

import (
	"context"
	"sync"

	"forkChan/errs"
)

// Pending is the eventual outcome of a Coordinator operation.
type Pending struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

// failed returns a Pending that has already completed with err.
func failed(err error) *Pending {
	p := newPending()
	p.resolve(err)
	return p
}

func (p *Pending) resolve(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Done is closed when the operation has completed.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Err returns the outcome of a completed operation, and nil before that.
func (p *Pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Wait blocks until the operation completes or ctx is done. Giving up on
// the wait does not cancel the operation.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return errs.Unavailable(ctx.Err())
	}
}

// join returns a Pending that completes once all of ps have, with the first
// error among them.
func join(ps ...*Pending) *Pending {
	out := newPending()
	go func() {
		var first error
		for _, p := range ps {
			<-p.Done()
			if err := p.Err(); err != nil && first == nil {
				first = err
			}
		}
		out.resolve(first)
	}()
	return out
}
