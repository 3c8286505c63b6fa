package guard

import (
	"context"

	"github.com/asktourist/marketplace/internal/authstate"
)

// StateSource is anything that publishes auth state changes.
type StateSource interface {
	Subscribe() (<-chan authstate.State, func())
}

// Watch re-evaluates policy for path on every state change from src and emits a decision only
// when it differs from the previously emitted one. The returned channel closes when ctx ends or
// src stops publishing.
func Watch(ctx context.Context, src StateSource, policy Policy, path string) <-chan Decision {
	out := make(chan Decision)
	states, unsubscribe := src.Subscribe()

	go func() {
		defer close(out)
		defer unsubscribe()

		var (
			last    Decision
			emitted bool
		)
		for {
			select {
			case <-ctx.Done():
				return
			case st, ok := <-states:
				if !ok {
					return
				}
				d := Evaluate(st, policy, path)
				if emitted && d == last {
					continue
				}
				select {
				case out <- d:
					last, emitted = d, true
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
