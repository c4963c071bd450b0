package workflow

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// StopAll stops the sessions of every client concurrently. It returns
// once all of them are stopped or ctx is done, whichever comes first;
// sessions still stopping at that point finish in the background.
func StopAll(ctx context.Context, clients ...*Client) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range clients {
		if c == nil {
			continue
		}
		g.Go(func() error {
			done := make(chan struct{})
			go func() {
				c.Stop()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	return g.Wait()
}
