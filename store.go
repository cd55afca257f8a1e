package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/richardartoul/tieredcache/backends"
	"github.com/richardartoul/tieredcache/pkg/locking"
	"github.com/richardartoul/tieredcache/pkg/metrics"
)

// openStore builds the configured store, wrapped for metrics and, with
// --debug, debug logging. A nil store means caching is unavailable.
func openStore(ctx context.Context, v *viper.Viper, tracker *metrics.LatencyTracker, logger *slog.Logger) (backends.Store, error) {
	if disabled, _ := inputBool(v, envCacheDisabled); disabled {
		return nil, nil
	}

	var store backends.Store
	switch kind := v.GetString(inputBackend); kind {
	case "", "none":
		return nil, nil
	case "disk":
		dir := v.GetString(inputCacheDir)
		locks, err := locking.NewFileLock(filepath.Join(dir, "locks"))
		if err != nil {
			return nil, err
		}
		disk, err := backends.NewDisk(dir, locks, logger)
		if err != nil {
			return nil, err
		}
		store = disk
	case "s3":
		s3, err := backends.NewS3(ctx, backends.S3Config{
			Bucket:   v.GetString(inputS3Bucket),
			Prefix:   v.GetString(inputS3Prefix),
			Region:   v.GetString(inputS3Region),
			Endpoint: v.GetString(inputS3Endpoint),
		}, logger)
		if err != nil {
			return nil, err
		}
		store = s3
	default:
		return nil, fmt.Errorf("unknown backend %q", kind)
	}

	store = backends.NewInstrumented(store, tracker)
	if v.GetBool(inputDebug) {
		store = backends.NewDebug(store, logger)
	}
	return store, nil
}
