package backends

import (
	"context"

	"github.com/richardartoul/tieredcache/pkg/metrics"
)

// Instrumented records the latency and outcome of every store operation,
// keyed by operation and namespace (for example "lookup_marker").
type Instrumented struct {
	store   Store
	tracker *metrics.LatencyTracker
}

// NewInstrumented wraps store, recording into tracker.
func NewInstrumented(store Store, tracker *metrics.LatencyTracker) *Instrumented {
	return &Instrumented{store: store, tracker: tracker}
}

func (i *Instrumented) Lookup(ctx context.Context, ns Namespace, candidates []string) (string, error) {
	var key string
	err := i.tracker.Time("lookup_"+string(ns), func() error {
		var err error
		key, err = i.store.Lookup(ctx, ns, candidates)
		return err
	}, func(err error) metrics.Outcome {
		switch {
		case err != nil:
			return metrics.OutcomeError
		case key == "":
			return metrics.OutcomeMiss
		default:
			return metrics.OutcomeHit
		}
	})
	return key, err
}

func (i *Instrumented) Restore(ctx context.Context, ns Namespace, key string, paths []string) error {
	return i.tracker.Time("restore_"+string(ns), func() error {
		return i.store.Restore(ctx, ns, key, paths)
	}, nil)
}

func (i *Instrumented) Save(ctx context.Context, ns Namespace, key string, paths []string, opts SaveOptions) (string, error) {
	var id string
	err := i.tracker.Time("save_"+string(ns), func() error {
		var err error
		id, err = i.store.Save(ctx, ns, key, paths, opts)
		return err
	}, nil)
	return id, err
}

func (i *Instrumented) Close() error {
	return i.store.Close()
}
