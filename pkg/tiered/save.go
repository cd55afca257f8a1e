package tiered

import (
	"context"
	"errors"
	"fmt"

	"github.com/richardartoul/tieredcache/backends"
	"github.com/richardartoul/tieredcache/pkg/gate"
	"github.com/richardartoul/tieredcache/pkg/jobstate"
	"github.com/richardartoul/tieredcache/pkg/keys"
)

// Action is what the save phase does.
type Action int

const (
	ActionSkip Action = iota
	ActionSaveBoth
)

func (a Action) String() string {
	switch a {
	case ActionSkip:
		return "skip"
	case ActionSaveBoth:
		return "save-both"
	default:
		return "unknown"
	}
}

// Decision is an Action and why it was taken.
type Decision struct {
	Action Action
	Reason string
}

// Decide chooses the save action from the recomputed keys and the restore
// phase's record. Check-only mode never restores the bundle, so the fast
// marker is the only evidence consulted in either mode.
func Decide(k keys.TieredKey, st jobstate.State, checkOnly, skipSave bool) Decision {
	if skipSave {
		return Decision{Action: ActionSkip, Reason: "save skipped"}
	}
	if gate.IsExactMatch(k.Fast, st.MatchedKey) {
		return Decision{Action: ActionSkip, Reason: "Cache hit occurred on the fast key " + k.Fast + ", not saving cache."}
	}
	if checkOnly {
		return Decision{Action: ActionSaveBoth, Reason: "fast key missed in check-only mode"}
	}
	return Decision{Action: ActionSaveBoth, Reason: "fast key missed"}
}

// Decider runs the save phase. Nothing it encounters fails the job.
type Decider struct {
	cfg Config
}

func NewDecider(cfg Config) *Decider {
	return &Decider{cfg: cfg}
}

// Run gates the save phase, decides and, when needed, saves the bundle and
// the fast marker. It returns the action taken.
func (d *Decider) Run(ctx context.Context, env Env, in Inputs) (action Action) {
	defer func() {
		if p := recover(); p != nil {
			d.cfg.Sink.Warning(fmt.Sprint(p))
			action = ActionSkip
		}
	}()

	switch gate.Check(gate.Eligibility{
		FeatureAvailable: env.FeatureAvailable,
		EventName:        env.EventName,
		Skip:             in.SkipSave,
	}) {
	case gate.ReasonUnavailable:
		return ActionSkip
	case gate.ReasonInvalidEvent:
		d.cfg.Sink.Warning(invalidEventMessage(env.EventName))
		return ActionSkip
	case gate.ReasonSkipped:
		d.cfg.Logger.Info("save skipped")
		return ActionSkip
	}

	if err := validateKeys(in); err != nil {
		d.cfg.Sink.Warning(err.Error())
		return ActionSkip
	}

	st, err := jobstate.Load(d.cfg.State)
	if err != nil {
		d.cfg.Sink.Warning(fmt.Sprintf("Failed to read job state: %v", err))
	}

	// Recomputed rather than read back, so a changed input shows up as a miss.
	k := deriveKeys(ctx, d.cfg, in)
	d.cfg.Logger.Info("primary key: " + k.Primary)
	d.cfg.Logger.Info("fast key: " + k.Fast)
	if st.PrimaryKey != "" && st.PrimaryKey != k.Primary {
		d.cfg.Logger.Info("primary key changed since restore", "restored", st.PrimaryKey, "current", k.Primary)
	}

	decision := Decide(k, st, in.CheckOnly, false)
	d.cfg.Logger.Info(decision.Reason)
	if decision.Action == ActionSkip {
		return ActionSkip
	}

	if len(in.Paths) == 0 {
		d.cfg.Sink.Warning(fmt.Sprintf("%v: path", ErrMissingInput))
		return ActionSkip
	}

	opts := backends.SaveOptions{ChunkSize: in.UploadChunkSize}
	d.save(ctx, backends.NamespaceBundle, k.Primary, in.Paths, opts)
	d.save(ctx, backends.NamespaceMarker, k.Fast, nil, opts)
	return ActionSaveBoth
}

// save stores one entry. Failures, including panics from the store, are
// reported as warnings so the other save still runs.
func (d *Decider) save(ctx context.Context, ns backends.Namespace, key string, paths []string, opts backends.SaveOptions) {
	defer func() {
		if p := recover(); p != nil {
			d.cfg.Sink.Warning(fmt.Sprintf("Failed to save cache %s: %v", key, p))
		}
	}()

	id, err := d.cfg.Store.Save(ctx, ns, key, paths, opts)
	switch {
	case errors.Is(err, backends.ErrAlreadyExists):
		d.cfg.Sink.Warning(fmt.Sprintf("Unable to save cache %s: it already exists", key))
	case err != nil:
		d.cfg.Sink.Warning(fmt.Sprintf("Failed to save cache %s: %v", key, err))
	default:
		d.cfg.Logger.Info("Cache saved with key: "+key, "id", id)
	}
}
