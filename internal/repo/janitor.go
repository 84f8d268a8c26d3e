package repo

import (
	"context"
	"log"
	"time"
)

// Pruner is implemented by stores that can drop expired entries on demand
type Pruner interface {
	Prune(ctx context.Context) (int, error)
}

// StartJanitor periodically prunes every store in stores that implements Pruner, until ctx is done.
// Stores already expire lazily on read; this only reclaims memory.
func StartJanitor(ctx context.Context, interval time.Duration, stores ...interface{}) {
	var pruners []Pruner
	for _, s := range stores {
		if p, ok := s.(Pruner); ok {
			pruners = append(pruners, p)
		}
	}
	if len(pruners) == 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, p := range pruners {
					if _, err := p.Prune(ctx); err != nil {
						log.Printf("janitor: prune failed: %v", err)
					}
				}
			}
		}
	}()
}
