package dataset

import (
	"context"
	"errors"
	"io"

	"golang.org/x/sync/errgroup"
)

// Prefetcher reads batches from a Source on a background goroutine, up to
// depth batches ahead. Batches come out in source order.
type Prefetcher struct {
	ch     chan Batch
	g      *errgroup.Group
	cancel context.CancelFunc
}

// Prefetch starts reading src ahead of consumption. Close must be called to
// stop the producer.
func Prefetch(ctx context.Context, src Source, depth int) *Prefetcher {
	if depth < 1 {
		depth = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	p := &Prefetcher{ch: make(chan Batch, depth), g: g, cancel: cancel}

	g.Go(func() error {
		defer close(p.ch)
		for {
			b, err := src.Next(gctx)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			select {
			case p.ch <- b:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})
	return p
}

func (p *Prefetcher) Next(ctx context.Context) (Batch, error) {
	select {
	case b, ok := <-p.ch:
		if !ok {
			if err := p.g.Wait(); err != nil {
				return Batch{}, err
			}
			return Batch{}, io.EOF
		}
		return b, nil
	case <-ctx.Done():
		return Batch{}, ctx.Err()
	}
}

// Close stops the producer and waits for it to exit.
func (p *Prefetcher) Close() error {
	p.cancel()
	err := p.g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
