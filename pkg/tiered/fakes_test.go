package tiered

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/richardartoul/tieredcache/backends"
	"github.com/richardartoul/tieredcache/pkg/jobstate"
	"github.com/richardartoul/tieredcache/pkg/report"
)

type putCall struct {
	NS    backends.Namespace
	Key   string
	Paths []string
}

// fakeStore keeps keys per namespace in insertion order; later entries are
// newer.
type fakeStore struct {
	mu       sync.Mutex
	entries  map[backends.Namespace][]string
	lookups  int
	restores []string
	puts     []putCall

	lookupErr error
	saveErr   map[backends.Namespace]error
	savePanic map[backends.Namespace]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[backends.Namespace][]string)}
}

func (f *fakeStore) seed(ns backends.Namespace, keys ...string) *fakeStore {
	f.entries[ns] = append(f.entries[ns], keys...)
	return f
}

func (f *fakeStore) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookups + len(f.restores) + len(f.puts)
}

func (f *fakeStore) Lookup(ctx context.Context, ns backends.Namespace, candidates []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.lookupErr != nil {
		return "", f.lookupErr
	}
	stored := f.entries[ns]
	for _, c := range candidates {
		for _, k := range stored {
			if k == c {
				return k, nil
			}
		}
		for i := len(stored) - 1; i >= 0; i-- {
			if strings.HasPrefix(stored[i], c) {
				return stored[i], nil
			}
		}
	}
	return "", nil
}

func (f *fakeStore) Restore(ctx context.Context, ns backends.Namespace, key string, paths []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restores = append(f.restores, key)
	return nil
}

func (f *fakeStore) Save(ctx context.Context, ns backends.Namespace, key string, paths []string, opts backends.SaveOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, putCall{NS: ns, Key: key, Paths: paths})
	if msg, ok := f.savePanic[ns]; ok {
		panic(msg)
	}
	if err := f.saveErr[ns]; err != nil {
		return "", err
	}
	f.entries[ns] = append(f.entries[ns], key)
	return "id-" + key, nil
}

func (f *fakeStore) Close() error { return nil }

type fakeHasher struct {
	hash  string
	err   error
	calls int
}

func (h *fakeHasher) Hash(ctx context.Context, selector string) (string, error) {
	h.calls++
	return h.hash, h.err
}

var errBoom = errors.New("boom")

type harness struct {
	store  *fakeStore
	hasher *fakeHasher
	state  *jobstate.Memory
	sink   *report.Recorder
}

func newHarness(store *fakeStore) *harness {
	return &harness{
		store:  store,
		hasher: &fakeHasher{},
		state:  jobstate.NewMemory(),
		sink:   &report.Recorder{},
	}
}

func (h *harness) config() Config {
	return Config{
		Store:  h.store,
		Hasher: h.hasher,
		State:  h.state,
		Sink:   h.sink,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// nextPhase simulates the save phase running as a new process: same state
// record, fresh sink.
func (h *harness) nextPhase() {
	h.sink = &report.Recorder{}
}

var pushEnv = Env{FeatureAvailable: true, EventName: "push"}
