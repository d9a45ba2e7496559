package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/dray-io/droplife/internal/drop"
	"github.com/dray-io/droplife/internal/logging"
	"github.com/dray-io/droplife/internal/storage"
)

// Config configures the lifecycle manager.
type Config struct {
	// CheckPeriod is the interval between sweeps. Must be > 0.
	CheckPeriod time.Duration

	// CleanupPeriod is how long a drop stays Expired before its content is
	// deleted. Zero deletes in the sweep that expires it.
	CleanupPeriod time.Duration

	// CheckTimeout bounds the storage calls made for one drop in a sweep.
	// Default: 30s
	CheckTimeout time.Duration

	// ReplicationTimeout bounds copying one drop.
	// Default: 5m
	ReplicationTimeout time.Duration

	// ReplicationFactor is the copy target of the default policy.
	// Default: 2
	ReplicationFactor int

	// MaxReplicationAttempts caps how often replication of one drop is tried,
	// counting the attempt made on completion.
	// Default: 3
	MaxReplicationAttempts int

	// ChecksPerSecond throttles per-drop checks within a sweep.
	// Zero disables throttling.
	ChecksPerSecond float64
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		CheckPeriod:            10 * time.Second,
		CleanupPeriod:          time.Hour,
		CheckTimeout:           30 * time.Second,
		ReplicationTimeout:     5 * time.Minute,
		ReplicationFactor:      DefaultReplicationFactor,
		MaxReplicationAttempts: 3,
	}
}

// MetricsRecorder receives lifecycle events.
type MetricsRecorder interface {
	// RecordSweep records one completed sweep over units drops.
	RecordSweep(duration time.Duration, units int)
	// RecordTransition records a manager-driven transition: "solid", "lost",
	// "expired" or "deleted".
	RecordTransition(transition string)
	// RecordReplication records one replication attempt.
	RecordReplication(duration time.Duration, success bool)
	// RecordCheckError records a failed check: "existence", "cleanup" or
	// "replication".
	RecordCheckError(check string)
	// RecordDrops publishes the number of registered drops per status and phase.
	RecordDrops(byStatus, byPhase map[string]int)
}

type nopRecorder struct{}

func (nopRecorder) RecordSweep(time.Duration, int)             {}
func (nopRecorder) RecordTransition(string)                    {}
func (nopRecorder) RecordReplication(time.Duration, bool)      {}
func (nopRecorder) RecordCheckError(string)                    {}
func (nopRecorder) RecordDrops(map[string]int, map[string]int) {}

// Options carries the manager's collaborators. All fields are optional.
type Options struct {
	Logger  *logging.Logger
	Metrics MetricsRecorder
	// Policy defaults to CopyPolicy{Factor: Config.ReplicationFactor}.
	Policy Policy
	// ReplicaBackend stores new copies. Defaults to the source drop's backend.
	ReplicaBackend storage.Backend
	// Now defaults to time.Now.
	Now func() time.Time
}

// Stats counts registered drops.
type Stats struct {
	Registered int
	ByStatus   map[drop.Status]int
	ByPhase    map[drop.Phase]int
}

// Manager tracks registered drops, replicates precious ones on completion
// and sweeps the registry for lost, expired and deletable drops.
type Manager struct {
	cfg      Config
	registry *Registry
	policy   Policy
	replicas storage.Backend
	logger   *logging.Logger
	metrics  MetricsRecorder
	now      func() time.Time
	limiter  *rate.Limiter

	// sweepMu serializes sweeps from the loop and SweepOnce.
	sweepMu sync.Mutex

	guardsMu sync.Mutex
	guards   map[string]*sync.Mutex
	attempts map[string]int

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a stopped manager.
func New(cfg Config, opts Options) (*Manager, error) {
	if cfg.CheckPeriod <= 0 {
		return nil, fmt.Errorf("lifecycle: check period must be > 0, got %s", cfg.CheckPeriod)
	}
	if cfg.CleanupPeriod < 0 {
		return nil, fmt.Errorf("lifecycle: cleanup period must be >= 0, got %s", cfg.CleanupPeriod)
	}
	if cfg.ChecksPerSecond < 0 {
		return nil, fmt.Errorf("lifecycle: checks per second must be >= 0, got %v", cfg.ChecksPerSecond)
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 30 * time.Second
	}
	if cfg.ReplicationTimeout <= 0 {
		cfg.ReplicationTimeout = 5 * time.Minute
	}
	if cfg.ReplicationFactor <= 0 {
		cfg.ReplicationFactor = DefaultReplicationFactor
	}
	if cfg.MaxReplicationAttempts <= 0 {
		cfg.MaxReplicationAttempts = 3
	}

	m := &Manager{
		cfg:      cfg,
		registry: NewRegistry(),
		policy:   opts.Policy,
		replicas: opts.ReplicaBackend,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		now:      opts.Now,
		guards:   make(map[string]*sync.Mutex),
		attempts: make(map[string]int),
	}
	if m.policy == nil {
		m.policy = CopyPolicy{Factor: cfg.ReplicationFactor}
	}
	if m.logger == nil {
		m.logger = logging.Global()
	}
	m.logger = m.logger.With(map[string]any{"component": "lifecycle"})
	if m.metrics == nil {
		m.metrics = nopRecorder{}
	}
	if m.now == nil {
		m.now = time.Now
	}
	if cfg.ChecksPerSecond > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(cfg.ChecksPerSecond), 1)
	}
	return m, nil
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// Start begins the sweep loop. The first sweep runs immediately.
// Starting a running manager is a no-op.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})

	go m.run(m.stopCh, m.doneCh)

	m.logger.Infof("lifecycle manager started", map[string]any{
		"checkPeriod":   m.cfg.CheckPeriod.String(),
		"cleanupPeriod": m.cfg.CleanupPeriod.String(),
	})
	return nil
}

// Stop stops the sweep loop and waits for an in-flight sweep to finish the
// drop it is checking. Stop is idempotent and safe from any goroutine.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	stopCh, doneCh := m.stopCh, m.doneCh
	close(stopCh)
	m.mu.Unlock()

	<-doneCh
	m.logger.Info("lifecycle manager stopped")
}

// Running reports whether the sweep loop is active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Run starts the manager, calls fn and stops the manager when fn returns.
func (m *Manager) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := m.Start(); err != nil {
		return err
	}
	defer m.Stop()
	return fn(ctx)
}

func (m *Manager) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(m.cfg.CheckPeriod)
	defer ticker.Stop()

	ctx := context.Background()
	m.sweep(ctx, stopCh)

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.sweep(ctx, stopCh)
		}
	}
}

// AddDataObject registers d and subscribes to its completion so that
// replication runs as soon as the producer completes it.
func (m *Manager) AddDataObject(d *drop.Drop) error {
	if d == nil {
		return errors.New("lifecycle: nil drop")
	}
	if err := m.registry.Add(d); err != nil {
		return err
	}
	d.Subscribe(m.onCompleted)
	m.logger.Debugf("drop registered", map[string]any{"oid": d.OID(), "uid": d.UID()})
	return nil
}

// GetDataObjectUIDs returns the UIDs of every registered copy of d's OID.
func (m *Manager) GetDataObjectUIDs(d *drop.Drop) []string {
	return m.registry.UIDs(d.OID())
}

// Get returns the registered drop with the given UID.
func (m *Manager) Get(uid string) (*drop.Drop, bool) {
	return m.registry.Get(uid)
}

// Registered returns the number of registered drops.
func (m *Manager) Registered() int {
	return m.registry.Len()
}

// Stats counts the registered drops by status and phase.
func (m *Manager) Stats() Stats {
	drops := m.registry.Snapshot()
	s := Stats{
		Registered: len(drops),
		ByStatus:   make(map[drop.Status]int),
		ByPhase:    make(map[drop.Phase]int),
	}
	for _, d := range drops {
		info := d.Info()
		s.ByStatus[info.Status]++
		s.ByPhase[info.Phase]++
	}
	return s
}

// SweepOnce runs one sweep synchronously.
func (m *Manager) SweepOnce(ctx context.Context) {
	m.sweep(ctx, nil)
}

// sweep checks every drop registered when it starts. It returns early when
// stop is closed, but never in the middle of a drop.
func (m *Manager) sweep(ctx context.Context, stop <-chan struct{}) {
	m.sweepMu.Lock()
	defer m.sweepMu.Unlock()

	start := time.Now()
	ctx = logging.WithCorrelationIDCtx(ctx, uuid.NewString())
	log := logging.ContextLogger(ctx, m.logger)
	drops := m.registry.Snapshot()
	checked := 0

	for _, d := range drops {
		select {
		case <-stop:
			log.Debugf("sweep interrupted", map[string]any{"checked": checked, "registered": len(drops)})
			return
		default:
		}
		if !m.throttle(ctx, stop) {
			return
		}
		m.checkDrop(ctx, d)
		checked++
	}

	m.metrics.RecordSweep(time.Since(start), checked)
	m.recordCounts()
	log.Debugf("sweep finished", map[string]any{"checked": checked, "durationMs": time.Since(start).Milliseconds()})
}

// throttle waits for the check rate limiter. It returns false if the sweep
// should stop instead.
func (m *Manager) throttle(ctx context.Context, stop <-chan struct{}) bool {
	if m.limiter == nil {
		return true
	}
	r := m.limiter.Reserve()
	delay := r.Delay()
	if delay == 0 {
		return true
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-stop:
		r.Cancel()
		return false
	case <-ctx.Done():
		r.Cancel()
		return false
	}
}

// checkDrop applies the existence, expiry and cleanup checks to d. All of
// them, including a replication retry, share one CheckTimeout.
func (m *Manager) checkDrop(ctx context.Context, d *drop.Drop) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.CheckTimeout)
	defer cancel()
	log := logging.ContextLogger(ctx, m.logger)

	now := m.now()
	fields := map[string]any{"oid": d.OID(), "uid": d.UID()}

	if d.Status() == drop.StatusCompleted {
		present, err := d.Exists(ctx)
		switch {
		case err != nil:
			m.metrics.RecordCheckError("existence")
			log.Warnf("existence check failed", with(fields, "error", err))
		case !present:
			if d.MarkLost() {
				m.metrics.RecordTransition("lost")
				log.Warnf("drop lost", fields)
			}
		default:
			m.retryReplication(ctx, d)
		}

		info := d.Info()
		if info.Status == drop.StatusCompleted && info.Lifespan > 0 && now.Sub(info.CompletedAt) >= info.Lifespan {
			if err := d.Expire(now); err == nil {
				m.metrics.RecordTransition("expired")
				log.Infof("drop expired", with(fields, "lifespan", info.Lifespan.String()))
			}
		}
	}

	if d.Status() == drop.StatusExpired && now.Sub(d.ExpiredAt()) >= m.cfg.CleanupPeriod {
		if err := d.Destroy(ctx); err != nil {
			m.metrics.RecordCheckError("cleanup")
			log.Errorf("drop cleanup failed", with(fields, "error", err))
			return
		}
		m.forget(d)
		m.metrics.RecordTransition("deleted")
		log.Infof("drop deleted", fields)
	}
}

// forget removes a deleted drop from the registry and drops its bookkeeping.
func (m *Manager) forget(d *drop.Drop) {
	last := m.registry.Remove(d.UID())

	m.guardsMu.Lock()
	defer m.guardsMu.Unlock()
	delete(m.attempts, d.UID())
	if last {
		delete(m.guards, d.OID())
	}
}

func (m *Manager) recordCounts() {
	stats := m.Stats()
	byStatus := make(map[string]int, len(drop.Statuses()))
	for _, s := range drop.Statuses() {
		byStatus[s.String()] = stats.ByStatus[s]
	}
	byPhase := make(map[string]int, len(drop.Phases()))
	for _, p := range drop.Phases() {
		byPhase[p.String()] = stats.ByPhase[p]
	}
	m.metrics.RecordDrops(byStatus, byPhase)
}

func with(fields map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out[key] = value
	return out
}
