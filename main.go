// Command tieredcache restores and saves a job's build artifacts with a
// two-tier key scheme: the full bundle under the primary key, and a zero-byte
// marker under a fast lookup key that decides cache hits cheaply.
//
// The restore and save subcommands run as separate steps of one job and
// communicate only through the job state file.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/richardartoul/tieredcache/pkg/hasher"
	"github.com/richardartoul/tieredcache/pkg/jobstate"
	"github.com/richardartoul/tieredcache/pkg/metrics"
	"github.com/richardartoul/tieredcache/pkg/report"
	"github.com/richardartoul/tieredcache/pkg/tiered"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	v := newViper()
	root := &cobra.Command{
		Use:           "tieredcache",
		Short:         "Restore and save job artifacts with tiered cache keys",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	registerFlags(root.PersistentFlags(), v)

	root.AddCommand(
		&cobra.Command{
			Use:   "restore",
			Short: "Restore the cache and set the cache-hit output",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runRestore(cmd.Context(), v, cmd.OutOrStdout(), cmd.ErrOrStderr())
			},
		},
		&cobra.Command{
			Use:   "save",
			Short: "Save the cache unless the fast key already hit",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				runSave(cmd.Context(), v, cmd.OutOrStdout(), cmd.ErrOrStderr())
				return nil
			},
		},
	)
	return root
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// phase holds what one subcommand needs.
type phase struct {
	cfg     tiered.Config
	env     tiered.Env
	tracker *metrics.LatencyTracker
}

// setupPhase wires the collaborators. A store that cannot be opened is a
// warning and leaves caching unavailable. restore marks the first phase of
// a job.
func setupPhase(ctx context.Context, v *viper.Viper, restore bool, stdout, stderr io.Writer) *phase {
	logger := newLogger(stderr, v.GetBool(inputDebug))
	sink := report.NewActions(v.GetString(envOutputFile), stdout, logger)
	tracker := metrics.NewLatencyTracker(0.01)

	store, err := openStore(ctx, v, tracker, logger)
	if err != nil {
		sink.Warning(fmt.Sprintf("Cache service is unavailable: %v", err))
		store = nil
	}

	workspace := v.GetString(envWorkspace)
	if workspace == "" {
		if workspace, err = os.Getwd(); err != nil {
			workspace = "."
		}
	}

	statePath := v.GetString(envStateFile)
	fallback := statePath == ""
	if fallback {
		statePath = filepath.Join(os.TempDir(), "tieredcache.state")
		logger.Debug("no job state file configured", "path", statePath)
	}
	state := jobstate.NewFile(statePath)
	// The fallback file outlives the job, so restore starts it over.
	if fallback && restore {
		if err := state.Reset(); err != nil {
			sink.Warning(fmt.Sprintf("Failed to reset job state: %v", err))
		}
	}

	return &phase{
		cfg: tiered.Config{
			Store:  store,
			Hasher: hasher.NewFiles(workspace, logger),
			State:  state,
			Sink:   sink,
			Logger: logger,
		},
		env: tiered.Env{
			FeatureAvailable: store != nil,
			EventName:        v.GetString(envEventName),
		},
		tracker: tracker,
	}
}

func (p *phase) close() {
	for _, s := range p.tracker.GetAllStats() {
		p.cfg.Logger.Debug("store latency", "stats", s.String())
	}
	if p.cfg.Store == nil {
		return
	}
	if err := p.cfg.Store.Close(); err != nil {
		p.cfg.Logger.Warn("failed to close store", "error", err)
	}
}

func runRestore(ctx context.Context, v *viper.Viper, stdout, stderr io.Writer) error {
	p := setupPhase(ctx, v, true, stdout, stderr)
	defer p.close()

	in, err := loadInputs(v)
	if err != nil {
		p.cfg.Sink.Failure(err.Error())
		return err
	}

	res, err := tiered.NewResolver(p.cfg).Run(ctx, p.env, in)
	if err != nil {
		p.cfg.Sink.Failure(err.Error())
		return err
	}
	p.cfg.Logger.Debug("restore finished", "hit", res.Hit, "exact", res.ExactMatch, "matchedKey", res.MatchedKey, "bundleKey", res.BundleKey)
	return nil
}

func runSave(ctx context.Context, v *viper.Viper, stdout, stderr io.Writer) {
	p := setupPhase(ctx, v, false, stdout, stderr)
	defer p.close()

	in, err := loadInputs(v)
	if err != nil {
		p.cfg.Sink.Warning(err.Error())
		return
	}

	action := tiered.NewDecider(p.cfg).Run(ctx, p.env, in)
	p.cfg.Logger.Debug("save finished", "action", action.String())
}
