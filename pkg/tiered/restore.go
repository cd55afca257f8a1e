package tiered

import (
	"context"
	"fmt"
	"strings"

	"github.com/richardartoul/tieredcache/backends"
	"github.com/richardartoul/tieredcache/pkg/gate"
	"github.com/richardartoul/tieredcache/pkg/jobstate"
	"github.com/richardartoul/tieredcache/pkg/keys"
)

// RestoreResult describes what the restore phase found.
type RestoreResult struct {
	// Hit is true when any candidate of either tier matched a stored entry.
	Hit bool
	// ExactMatch is true when the fast lookup found exactly the fast key. It
	// is the value published as the cache-hit output.
	ExactMatch bool
	// MatchedKey is the fast lookup match, or "".
	MatchedKey string
	// BundleKey is the key the full bundle was restored from, or "".
	BundleKey string
}

// Resolver runs the restore phase.
type Resolver struct {
	cfg Config
}

func NewResolver(cfg Config) *Resolver {
	return &Resolver{cfg: cfg}
}

// Run gates the restore phase and resolves the job's keys. The returned error
// is non-nil only for malformed inputs, which must fail the job.
func (r *Resolver) Run(ctx context.Context, env Env, in Inputs) (RestoreResult, error) {
	switch gate.Check(gate.Eligibility{
		FeatureAvailable: env.FeatureAvailable,
		EventName:        env.EventName,
		Skip:             in.SkipRestore,
	}) {
	case gate.ReasonUnavailable:
		r.cfg.Logger.Info("cache feature is not available, reporting a miss")
		r.publish(false)
		return RestoreResult{}, nil
	case gate.ReasonInvalidEvent:
		r.cfg.Sink.Warning(invalidEventMessage(env.EventName))
		return RestoreResult{}, nil
	case gate.ReasonSkipped:
		r.cfg.Logger.Info("restore skipped")
		r.publish(false)
		return RestoreResult{}, nil
	}

	if err := validateKeys(in); err != nil {
		return RestoreResult{}, err
	}
	if !in.CheckOnly && len(in.Paths) == 0 {
		return RestoreResult{}, fmt.Errorf("%w: path", ErrMissingInput)
	}

	return r.Resolve(ctx, deriveKeys(ctx, r.cfg, in), in), nil
}

// Resolve queries both tiers. The bundle tier, skipped in check-only mode,
// only places files; the fast tier alone decides the cache-hit output and is
// recorded for the save phase. Store failures are warnings and count as
// misses.
func (r *Resolver) Resolve(ctx context.Context, k keys.TieredKey, in Inputs) RestoreResult {
	var result RestoreResult

	if !in.CheckOnly {
		result.BundleKey = r.restoreBundle(ctx, k, in.Paths)
	}

	candidates := k.FastCandidates()
	matched, err := r.cfg.Store.Lookup(ctx, backends.NamespaceMarker, candidates)
	if err != nil {
		r.cfg.Sink.Warning(fmt.Sprintf("Failed to look up fast key %s: %v", k.Fast, err))
		matched = ""
	}
	if matched == "" {
		r.cfg.Logger.Info("Cache not found for input keys: " + strings.Join(candidates, ", "))
	} else {
		r.cfg.Logger.Info("Fast key matched: "+matched, "fastKey", k.Fast)
	}

	result.MatchedKey = matched
	result.ExactMatch = gate.IsExactMatch(k.Fast, matched)
	result.Hit = matched != "" || result.BundleKey != ""
	r.cfg.Logger.Info(fmt.Sprintf("Cache was hit, flk: %t", result.ExactMatch))

	if err := jobstate.Record(r.cfg.State, jobstate.State{
		PrimaryKey: k.Primary,
		MatchedKey: matched,
	}); err != nil {
		r.cfg.Sink.Warning(fmt.Sprintf("Failed to save job state: %v", err))
	}

	r.publish(result.ExactMatch)
	return result
}

// restoreBundle restores the full bundle and returns the key it came from.
func (r *Resolver) restoreBundle(ctx context.Context, k keys.TieredKey, paths []string) string {
	candidates := k.PrimaryCandidates()
	key, err := r.cfg.Store.Lookup(ctx, backends.NamespaceBundle, candidates)
	if err != nil {
		r.cfg.Sink.Warning(fmt.Sprintf("Failed to restore: %v", err))
		return ""
	}
	if key == "" {
		r.cfg.Logger.Info("Cache not found for input keys: " + strings.Join(candidates, ", "))
		return ""
	}
	if err := r.cfg.Store.Restore(ctx, backends.NamespaceBundle, key, paths); err != nil {
		r.cfg.Sink.Warning(fmt.Sprintf("Failed to restore: %v", err))
		return ""
	}
	r.cfg.Logger.Info("Cache restored from key: "+key, "exact", gate.IsExactMatch(k.Primary, key))
	return key
}

func (r *Resolver) publish(hit bool) {
	if err := r.cfg.Sink.SetCacheHit(hit); err != nil {
		r.cfg.Sink.Warning(fmt.Sprintf("Failed to set cache-hit output: %v", err))
	}
}
