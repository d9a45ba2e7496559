package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dray-io/droplife/internal/drop"
	"github.com/dray-io/droplife/internal/logging"
	"github.com/dray-io/droplife/internal/objectstore"
	"github.com/dray-io/droplife/internal/storage"
)

var errInjected = errors.New("injected failure")

// flakyBackend wraps a backend and fails selected operations on demand.
type flakyBackend struct {
	storage.Backend

	mu          sync.Mutex
	failAppend  bool
	failExists  bool
	failDelete  bool
	blockAppend bool

	// blocked is closed when the first blocking Append starts.
	blocked   chan struct{}
	blockOnce sync.Once
}

func newFlaky(b storage.Backend) *flakyBackend {
	return &flakyBackend{Backend: b, blocked: make(chan struct{})}
}

func (b *flakyBackend) set(fn func(*flakyBackend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

func (b *flakyBackend) fails(which *bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return *which
}

func (b *flakyBackend) Append(ctx context.Context, key string, p []byte) error {
	if b.fails(&b.failAppend) {
		return errInjected
	}
	if b.fails(&b.blockAppend) {
		b.blockOnce.Do(func() { close(b.blocked) })
		<-ctx.Done()
		return ctx.Err()
	}
	return b.Backend.Append(ctx, key, p)
}

func (b *flakyBackend) Exists(ctx context.Context, key string) (bool, error) {
	if b.fails(&b.failExists) {
		return false, errInjected
	}
	return b.Backend.Exists(ctx, key)
}

func (b *flakyBackend) Delete(ctx context.Context, key string) error {
	if b.fails(&b.failDelete) {
		return errInjected
	}
	return b.Backend.Delete(ctx, key)
}

// syncBuffer is a bytes.Buffer safe for concurrent log writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func memoryBackend() storage.Backend {
	return storage.NewObjectBackend(objectstore.NewMemoryStore(), storage.ObjectBackendConfig{})
}

// fakeClock runs ahead of the wall clock by a controllable offset, so that
// timestamps taken by drops stay comparable with the manager's clock.
type fakeClock struct {
	mu     sync.Mutex
	offset time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().Add(c.offset)
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset += d
}

// recorder captures lifecycle metrics events.
type recorder struct {
	mu           sync.Mutex
	sweeps       int
	transitions  map[string]int
	replications map[bool]int
	checkErrors  map[string]int
	byStatus     map[string]int
	byPhase      map[string]int
}

func newRecorder() *recorder {
	return &recorder{
		transitions:  make(map[string]int),
		replications: make(map[bool]int),
		checkErrors:  make(map[string]int),
	}
}

func (r *recorder) RecordSweep(time.Duration, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweeps++
}

func (r *recorder) RecordTransition(t string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions[t]++
}

func (r *recorder) RecordReplication(_ time.Duration, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replications[success]++
}

func (r *recorder) RecordCheckError(check string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkErrors[check]++
}

func (r *recorder) RecordDrops(byStatus, byPhase map[string]int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byStatus = byStatus
	r.byPhase = byPhase
}

func (r *recorder) transition(t string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transitions[t]
}

func (r *recorder) replication(success bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.replications[success]
}

func (r *recorder) checkError(check string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checkErrors[check]
}

func newManager(t *testing.T, cfg Config, opts Options) *Manager {
	t.Helper()
	if cfg.CheckPeriod == 0 {
		cfg.CheckPeriod = time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	m, err := New(cfg, opts)
	require.NoError(t, err)
	t.Cleanup(m.Stop)
	return m
}

func newDrop(t *testing.T, b storage.Backend, opts drop.Options) *drop.Drop {
	t.Helper()
	if opts.OID == "" {
		opts.OID = "oid:A"
	}
	if opts.UID == "" {
		opts.UID = "uid:A1"
	}
	d, err := drop.New(b, opts)
	require.NoError(t, err)
	return d
}

func writeSpace(t *testing.T, d *drop.Drop) {
	t.Helper()
	_, err := d.Write(context.Background(), []byte{' '})
	require.NoError(t, err)
}
