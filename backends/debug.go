package backends

import (
	"context"
	"log/slog"
)

// Debug wraps any Store and adds debug logging.
// This allows any backend implementation to have debug logging without
// coupling the debug logic to the backend implementation.
type Debug struct {
	store  Store
	logger *slog.Logger
}

// NewDebug creates a new debug wrapper around an existing store.
func NewDebug(store Store, logger *slog.Logger) *Debug {
	return &Debug{
		store:  store,
		logger: logger.With("component", "store"),
	}
}

// Lookup searches candidates with debug logging.
func (d *Debug) Lookup(ctx context.Context, ns Namespace, candidates []string) (string, error) {
	d.logger.Debug("lookup", "namespace", ns, "candidates", candidates)

	key, err := d.store.Lookup(ctx, ns, candidates)
	switch {
	case err != nil:
		d.logger.Debug("lookup failed", "namespace", ns, "error", err)
	case key == "":
		d.logger.Debug("lookup miss", "namespace", ns)
	default:
		d.logger.Debug("lookup hit", "namespace", ns, "key", key)
	}
	return key, err
}

// Restore extracts an entry with debug logging.
func (d *Debug) Restore(ctx context.Context, ns Namespace, key string, paths []string) error {
	d.logger.Debug("restore", "namespace", ns, "key", key, "paths", paths)

	err := d.store.Restore(ctx, ns, key, paths)
	if err != nil {
		d.logger.Debug("restore failed", "namespace", ns, "key", key, "error", err)
	}
	return err
}

// Save stores an entry with debug logging.
func (d *Debug) Save(ctx context.Context, ns Namespace, key string, paths []string, opts SaveOptions) (string, error) {
	d.logger.Debug("save", "namespace", ns, "key", key, "paths", paths, "chunkSize", opts.ChunkSize)

	id, err := d.store.Save(ctx, ns, key, paths, opts)
	if err != nil {
		d.logger.Debug("save failed", "namespace", ns, "key", key, "error", err)
		return id, err
	}

	d.logger.Debug("saved", "namespace", ns, "key", key, "id", id)
	return id, nil
}

// Close performs cleanup operations with debug logging.
func (d *Debug) Close() error {
	d.logger.Debug("closing store")

	err := d.store.Close()
	if err != nil {
		d.logger.Debug("close failed", "error", err)
	}
	return err
}
