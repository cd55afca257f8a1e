// Package tiered implements the two phases of a job's cache: the restore
// phase resolves the job's keys against the store, and the save phase decides
// whether the artifacts it produced need to be stored.
//
// The phases run as separate processes. The only state they share is the
// jobstate record written by the restore phase.
package tiered

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/richardartoul/tieredcache/backends"
	"github.com/richardartoul/tieredcache/pkg/hasher"
	"github.com/richardartoul/tieredcache/pkg/jobstate"
	"github.com/richardartoul/tieredcache/pkg/keys"
	"github.com/richardartoul/tieredcache/pkg/report"
)

// ErrMissingInput is returned for a required input that was not supplied.
var ErrMissingInput = errors.New("input required and not supplied")

// Inputs are the caller's options for one phase.
type Inputs struct {
	PrimaryKey      string
	Paths           []string
	RestoreKeys     []string
	HashSelector    string
	UploadChunkSize int64
	CheckOnly       bool
	SkipRestore     bool
	SkipSave        bool
}

// Env is what the host environment reports about the job.
type Env struct {
	FeatureAvailable bool
	EventName        string
}

// Config holds the collaborators shared by both phases.
type Config struct {
	Store  backends.Store
	Hasher hasher.Hasher
	State  jobstate.Store
	Sink   report.Sink
	Logger *slog.Logger
}

func invalidEventMessage(event string) string {
	return fmt.Sprintf("Event Validation Error: The event type %s is not supported because it's not tied to a branch or tag ref.", event)
}

// deriveKeys is the one key derivation used by both phases. A selector that
// cannot be hashed leaves the keys unqualified.
func deriveKeys(ctx context.Context, cfg Config, in Inputs) keys.TieredKey {
	return keys.Build(in.PrimaryKey, in.RestoreKeys, qualifier(ctx, cfg, in.HashSelector))
}

func qualifier(ctx context.Context, cfg Config, selector string) string {
	if selector == "" || cfg.Hasher == nil {
		return ""
	}
	hash, err := cfg.Hasher.Hash(ctx, selector)
	if err != nil {
		cfg.Sink.Warning(fmt.Sprintf("Failed to hash files for %q, keys are not qualified: %v", selector, err))
		return ""
	}
	if hash == "" {
		cfg.Logger.Info("no files matched hash selector, keys are not qualified", "selector", selector)
	}
	return hash
}

// validateKeys checks the primary key and every restore key prefix.
func validateKeys(in Inputs) error {
	if in.PrimaryKey == "" {
		return fmt.Errorf("%w: key", ErrMissingInput)
	}
	if err := keys.Validate(in.PrimaryKey); err != nil {
		return err
	}
	for _, k := range in.RestoreKeys {
		if err := keys.Validate(k); err != nil {
			return err
		}
	}
	return nil
}
