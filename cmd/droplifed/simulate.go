package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dray-io/droplife/internal/drop"
	"github.com/dray-io/droplife/internal/lifecycle"
)

// simulation describes a synthetic workload for the simulate command.
type simulation struct {
	Drops         int
	Size          int64
	ChunkSize     int
	PreciousEvery int
	Lifespan      time.Duration
	WriteTimeout  time.Duration

	// Duration bounds how long the sweeps may take to drain the registry.
	Duration time.Duration
}

func (s simulation) validate() error {
	switch {
	case s.Drops <= 0:
		return errors.New("drops must be > 0")
	case s.Size < 0:
		return errors.New("size must be >= 0")
	case s.ChunkSize <= 0:
		return errors.New("chunk size must be > 0")
	case s.Lifespan <= 0:
		return errors.New("lifespan must be > 0")
	}
	return nil
}

// simulate creates, fills and completes the configured drops, then lets the
// manager expire and delete them. It returns the registry counts observed
// when the registry drained or the duration ran out.
func simulate(ctx context.Context, d *Daemon, sim simulation) (lifecycle.Stats, error) {
	if err := sim.validate(); err != nil {
		return lifecycle.Stats{}, err
	}
	log := d.logger.WithCorrelationID(uuid.NewString())

	drops := make([]*drop.Drop, 0, sim.Drops)
	for i := 0; i < sim.Drops; i++ {
		dr, err := d.NewDrop(drop.Options{
			OID:          uuid.NewString(),
			UID:          uuid.NewString(),
			ExpectedSize: sim.Size,
			Precious:     sim.PreciousEvery > 0 && i%sim.PreciousEvery == 0,
			Lifespan:     sim.Lifespan,
		})
		if err != nil {
			return lifecycle.Stats{}, fmt.Errorf("create drop %d: %w", i, err)
		}
		drops = append(drops, dr)
	}

	for _, dr := range drops {
		go fill(ctx, dr, sim)
	}

	if err := drop.WaitAll(ctx, sim.WriteTimeout, drops...); err != nil {
		return d.Manager().Stats(), err
	}
	log.Infof("drops completed", map[string]any{"drops": len(drops), "size": sim.Size})

	deadline := time.NewTimer(sim.Duration)
	defer deadline.Stop()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	mgr := d.Manager()
	for {
		if mgr.Registered() == 0 {
			log.Info("all drops deleted")
			return mgr.Stats(), nil
		}
		select {
		case <-ctx.Done():
			return mgr.Stats(), ctx.Err()
		case <-deadline.C:
			stats := mgr.Stats()
			log.Infof("simulation ended with drops still registered", map[string]any{"registered": stats.Registered})
			return stats, nil
		case <-ticker.C:
		}
	}
}

// fill writes the drop's content in chunks. Drops of zero size are
// completed explicitly.
func fill(ctx context.Context, dr *drop.Drop, sim simulation) {
	chunk := bytes.Repeat([]byte{'d'}, sim.ChunkSize)
	remaining := sim.Size
	for remaining > 0 {
		n := min(int64(len(chunk)), remaining)
		if _, err := dr.Write(ctx, chunk[:n]); err != nil {
			return
		}
		remaining -= n
	}
	if sim.Size == 0 {
		_ = dr.SetCompleted(ctx)
	}
}
