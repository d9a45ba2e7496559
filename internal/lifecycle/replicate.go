package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dray-io/droplife/internal/drop"
	"github.com/dray-io/droplife/internal/logging"
)

// ErrReplication is returned when a new copy of a drop could not be made.
var ErrReplication = errors.New("replication failed")

const copyBufferSize = 64 * 1024

// onCompleted is subscribed to every registered drop. It runs on the
// goroutine that completed the drop.
func (m *Manager) onCompleted(d *drop.Drop) {
	if !d.Precious() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ReplicationTimeout)
	defer cancel()
	ctx = logging.WithCorrelationIDCtx(ctx, uuid.NewString())

	if err := m.replicate(ctx, d); err != nil {
		logging.ContextLogger(ctx, m.logger).Errorf("replication failed", map[string]any{"oid": d.OID(), "uid": d.UID(), "error": err})
	}
}

// retryReplication re-attempts replication of an under-replicated precious
// drop found by a sweep, until MaxReplicationAttempts is reached. The copy
// is bounded by both ctx and ReplicationTimeout.
func (m *Manager) retryReplication(ctx context.Context, d *drop.Drop) {
	if !d.Precious() || d.Phase() != drop.PhaseGas {
		return
	}
	if !m.policy.Wants(d, len(m.usableCopies(d.OID()))) {
		return
	}

	m.guardsMu.Lock()
	attempts := m.attempts[d.UID()]
	m.guardsMu.Unlock()
	if attempts >= m.cfg.MaxReplicationAttempts {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.ReplicationTimeout)
	defer cancel()
	log := logging.ContextLogger(ctx, m.logger)

	fields := map[string]any{"oid": d.OID(), "uid": d.UID(), "attempt": attempts + 1}
	if err := m.replicate(ctx, d); err != nil {
		log.Warnf("replication retry failed", with(fields, "error", err))
		return
	}
	log.Infof("replication retry succeeded", fields)
}

// replicate creates copies of d until the policy is satisfied, then marks
// the copies Solid if the policy classifies them so. Replication of one OID
// is serialized.
func (m *Manager) replicate(ctx context.Context, d *drop.Drop) error {
	guard := m.guard(d.OID())
	guard.Lock()
	defer guard.Unlock()

	copies := len(m.usableCopies(d.OID()))
	if !m.policy.Wants(d, copies) {
		m.settlePhase(d.OID())
		return nil
	}

	m.guardsMu.Lock()
	m.attempts[d.UID()]++
	m.guardsMu.Unlock()

	for ; m.policy.Wants(d, copies); copies++ {
		start := time.Now()
		replica, err := m.copyDrop(ctx, d)
		m.metrics.RecordReplication(time.Since(start), err == nil)
		if err != nil {
			m.metrics.RecordCheckError("replication")
			return err
		}
		if err := m.registry.Add(replica); err != nil {
			return fmt.Errorf("%w: register copy %s: %v", ErrReplication, replica.UID(), err)
		}
		replica.Subscribe(m.onCompleted)
		logging.ContextLogger(ctx, m.logger).Infof("drop replicated", map[string]any{"oid": d.OID(), "uid": d.UID(), "copy": replica.UID()})
	}

	m.settlePhase(d.OID())
	return nil
}

// copyDrop streams the content of src into a new completed drop with the
// same OID and a fresh UID. A partial copy is deleted on failure.
func (m *Manager) copyDrop(ctx context.Context, src *drop.Drop) (*drop.Drop, error) {
	backend := m.replicas
	if backend == nil {
		backend = src.Backend()
	}

	replica, err := drop.New(backend, drop.Options{
		OID:          src.OID(),
		UID:          uuid.NewString(),
		ExpectedSize: src.ExpectedSize(),
		Precious:     src.Precious(),
		Lifespan:     src.Lifespan(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReplication, err)
	}

	if err := copyContent(ctx, src, replica); err != nil {
		_ = replica.SetError()
		// The copy may have failed because ctx ended; cleanup still runs.
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.CheckTimeout)
		defer cancel()
		if delErr := replica.Delete(cleanupCtx); delErr != nil {
			logging.ContextLogger(ctx, m.logger).Warnf("partial copy cleanup failed", map[string]any{"oid": src.OID(), "uid": replica.UID(), "error": delErr})
		}
		return nil, fmt.Errorf("%w: copy %s to %s: %w", ErrReplication, src.UID(), replica.UID(), err)
	}
	return replica, nil
}

func copyContent(ctx context.Context, src, dst *drop.Drop) error {
	rc, err := src.Read(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()

	buf := make([]byte, copyBufferSize)
	for {
		n, rerr := rc.Read(buf)
		if n > 0 {
			if _, err := dst.Write(ctx, buf[:n]); err != nil {
				return err
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return rerr
		}
	}

	if dst.Status() == drop.StatusCompleted {
		return nil
	}
	return dst.SetCompleted(ctx)
}

// settlePhase marks every completed copy of oid Solid once the policy
// classifies the live copies as such.
func (m *Manager) settlePhase(oid string) {
	var live []*drop.Drop
	for _, c := range m.usableCopies(oid) {
		if c.Status() == drop.StatusCompleted {
			live = append(live, c)
		}
	}
	if len(live) == 0 || !live[0].Precious() || m.policy.Classify(len(live)) != drop.PhaseSolid {
		return
	}
	for _, c := range live {
		if c.Phase() == drop.PhaseSolid {
			continue
		}
		if err := c.MarkSolid(); err == nil {
			m.metrics.RecordTransition("solid")
		}
	}
}

// usableCopies returns the registered copies of oid that can still hold
// its content: not failed, deleted or lost.
func (m *Manager) usableCopies(oid string) []*drop.Drop {
	var out []*drop.Drop
	for _, c := range m.registry.Copies(oid) {
		info := c.Info()
		switch {
		case info.Status == drop.StatusError, info.Status == drop.StatusDeleted:
		case info.Phase == drop.PhaseLost:
		default:
			out = append(out, c)
		}
	}
	return out
}

func (m *Manager) guard(oid string) *sync.Mutex {
	m.guardsMu.Lock()
	defer m.guardsMu.Unlock()
	g, ok := m.guards[oid]
	if !ok {
		g = &sync.Mutex{}
		m.guards[oid] = g
	}
	return g
}
