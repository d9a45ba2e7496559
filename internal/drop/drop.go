package drop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/dray-io/droplife/internal/storage"
)

// UnknownSize marks a drop whose size is not declared up front.
const UnknownSize int64 = -1

// Options describes a new drop.
type Options struct {
	// OID is the logical identity, shared by all copies of the same data.
	OID string
	// UID is the physical identity of this copy.
	UID string
	// ExpectedSize is the number of bytes the producer will write, or
	// UnknownSize. Reaching a declared non-zero size completes the drop.
	ExpectedSize int64
	// Precious drops are replicated by the lifecycle manager.
	Precious bool
	// Lifespan is how long a completed drop is kept before it expires.
	// Zero keeps it forever.
	Lifespan time.Duration
}

// Observer is notified when a drop completes. It runs synchronously on the
// goroutine that completed the drop, outside the drop's lock.
type Observer func(d *Drop)

// Info is a point-in-time snapshot of a drop.
type Info struct {
	OID          string
	UID          string
	Key          string
	Status       Status
	Phase        Phase
	Precious     bool
	Lifespan     time.Duration
	ExpectedSize int64
	WrittenSize  int64
	CreatedAt    time.Time
	CompletedAt  time.Time
	ExpiredAt    time.Time
}

// Drop is one physical copy of a data product.
//
// All methods are safe for concurrent use. Status and phase changes are
// serialized by a per-drop mutex, so the lifecycle manager and the producer
// never interleave inside a transition.
type Drop struct {
	oid          string
	uid          string
	key          string
	backend      storage.Backend
	expectedSize int64
	precious     bool
	lifespan     time.Duration
	createdAt    time.Time

	// done is closed exactly once, when the status first becomes finished.
	done chan struct{}

	mu          sync.Mutex
	status      Status
	phase       Phase
	written     int64
	completedAt time.Time
	expiredAt   time.Time
	observers   []Observer
}

// New creates a drop in the Initialized status and Gas phase.
func New(backend storage.Backend, opts Options) (*Drop, error) {
	if backend == nil {
		return nil, errors.New("drop: backend is required")
	}
	if opts.OID == "" || opts.UID == "" {
		return nil, errors.New("drop: oid and uid are required")
	}
	if err := storage.ValidateID(opts.OID); err != nil {
		return nil, fmt.Errorf("drop: oid: %w", err)
	}
	if err := storage.ValidateID(opts.UID); err != nil {
		return nil, fmt.Errorf("drop: uid: %w", err)
	}
	if opts.ExpectedSize < UnknownSize {
		return nil, fmt.Errorf("drop: invalid expected size %d", opts.ExpectedSize)
	}
	if opts.Lifespan < 0 {
		return nil, fmt.Errorf("drop: invalid lifespan %s", opts.Lifespan)
	}

	return &Drop{
		oid:          opts.OID,
		uid:          opts.UID,
		key:          storage.Key(opts.OID, opts.UID),
		backend:      backend,
		expectedSize: opts.ExpectedSize,
		precious:     opts.Precious,
		lifespan:     opts.Lifespan,
		createdAt:    time.Now(),
		done:         make(chan struct{}),
		status:       StatusInitialized,
		phase:        PhaseGas,
	}, nil
}

func (d *Drop) OID() string             { return d.oid }
func (d *Drop) UID() string             { return d.uid }
func (d *Drop) Key() string             { return d.key }
func (d *Drop) Precious() bool          { return d.precious }
func (d *Drop) Lifespan() time.Duration { return d.lifespan }
func (d *Drop) ExpectedSize() int64     { return d.expectedSize }
func (d *Drop) CreatedAt() time.Time    { return d.createdAt }

// Backend returns the storage backend holding this copy.
func (d *Drop) Backend() storage.Backend { return d.backend }

func (d *Drop) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

func (d *Drop) Phase() Phase {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phase
}

func (d *Drop) WrittenSize() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.written
}

// CompletedAt returns when the drop completed, or the zero time.
func (d *Drop) CompletedAt() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.completedAt
}

// ExpiredAt returns when the drop expired, or the zero time.
func (d *Drop) ExpiredAt() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.expiredAt
}

// Info returns a consistent snapshot of the drop.
func (d *Drop) Info() Info {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Info{
		OID:          d.oid,
		UID:          d.uid,
		Key:          d.key,
		Status:       d.status,
		Phase:        d.phase,
		Precious:     d.precious,
		Lifespan:     d.lifespan,
		ExpectedSize: d.expectedSize,
		WrittenSize:  d.written,
		CreatedAt:    d.createdAt,
		CompletedAt:  d.completedAt,
		ExpiredAt:    d.expiredAt,
	}
}

// Subscribe registers fn to be called when the drop completes.
// Observers registered after completion are never called.
func (d *Drop) Subscribe(fn Observer) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, fn)
}

// Write appends p to the drop's content.
//
// The first write moves the drop to Writing. A write that reaches a declared
// non-zero expected size completes the drop before returning. A storage
// failure moves the drop to Error.
func (d *Drop) Write(ctx context.Context, p []byte) (int, error) {
	d.mu.Lock()
	if d.status != StatusInitialized && d.status != StatusWriting {
		status := d.status
		d.mu.Unlock()
		return 0, &StateError{Op: "write", UID: d.uid, Status: status}
	}
	n := int64(len(p))
	if d.expectedSize != UnknownSize && d.written+n > d.expectedSize {
		err := &SizeError{UID: d.uid, Expected: d.expectedSize, Written: d.written, Attempted: n, Err: ErrSizeExceeded}
		d.mu.Unlock()
		return 0, err
	}
	if err := d.backend.Append(ctx, d.key, p); err != nil {
		d.failLocked()
		d.mu.Unlock()
		return 0, fmt.Errorf("drop %s: write: %w", d.uid, err)
	}
	d.written += n
	d.status = StatusWriting
	full := d.expectedSize > 0 && d.written == d.expectedSize
	d.mu.Unlock()

	if full {
		if err := d.SetCompleted(ctx); err != nil {
			// Another caller may have completed the drop after this write
			// stored the final bytes.
			if errors.Is(err, ErrInvalidState) && d.Status() == StatusCompleted {
				return len(p), nil
			}
			return len(p), err
		}
	}
	return len(p), nil
}

// SetCompleted marks the producer as finished and commits the content.
//
// It is valid from Writing, and from Initialized when the drop declares a
// zero or unknown size. Observers run before SetCompleted returns. A drop
// that declared a size it did not reach moves to Error. A failed commit
// leaves the drop Writing so that completion can be retried.
func (d *Drop) SetCompleted(ctx context.Context) error {
	d.mu.Lock()
	switch d.status {
	case StatusWriting:
	case StatusInitialized:
		if d.expectedSize > 0 {
			status := d.status
			d.mu.Unlock()
			return &StateError{Op: "complete", UID: d.uid, Status: status}
		}
	default:
		status := d.status
		d.mu.Unlock()
		return &StateError{Op: "complete", UID: d.uid, Status: status}
	}

	if d.expectedSize != UnknownSize && d.written < d.expectedSize {
		err := &SizeError{UID: d.uid, Expected: d.expectedSize, Written: d.written, Err: ErrShortWrite}
		d.failLocked()
		d.mu.Unlock()
		return err
	}
	if err := d.backend.Commit(ctx, d.key); err != nil {
		d.mu.Unlock()
		return fmt.Errorf("drop %s: commit: %w", d.uid, err)
	}

	d.status = StatusCompleted
	d.phase = PhaseGas
	d.completedAt = time.Now()
	close(d.done)
	observers := slices.Clone(d.observers)
	d.mu.Unlock()

	for _, fn := range observers {
		fn(d)
	}
	return nil
}

// SetError moves an unfinished drop to the Error status and wakes waiters.
func (d *Drop) SetError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status.Finished() {
		return &StateError{Op: "set error", UID: d.uid, Status: d.status}
	}
	d.failLocked()
	return nil
}

func (d *Drop) failLocked() {
	if d.status.Finished() {
		return
	}
	d.status = StatusError
	close(d.done)
}

// Exists reports whether the drop's content is present in storage.
// Missing content is (false, nil).
func (d *Drop) Exists(ctx context.Context) (bool, error) {
	ok, err := d.backend.Exists(ctx, d.key)
	if err != nil {
		return false, fmt.Errorf("drop %s: exists: %w", d.uid, err)
	}
	return ok, nil
}

// Read returns the content of a completed drop.
func (d *Drop) Read(ctx context.Context) (io.ReadCloser, error) {
	d.mu.Lock()
	status := d.status
	d.mu.Unlock()
	if status != StatusCompleted && status != StatusExpired {
		return nil, &StateError{Op: "read", UID: d.uid, Status: status}
	}
	rc, err := d.backend.Read(ctx, d.key)
	if err != nil {
		return nil, fmt.Errorf("drop %s: read: %w", d.uid, err)
	}
	return rc, nil
}

// Delete removes the drop's content from storage without changing its
// status. Deleting content that is already gone succeeds.
func (d *Drop) Delete(ctx context.Context) error {
	if err := d.backend.Delete(ctx, d.key); err != nil {
		return &DeletionError{UID: d.uid, Key: d.key, Err: err}
	}
	return nil
}

// MarkSolid records that the drop is held by enough verified copies.
func (d *Drop) MarkSolid() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status != StatusCompleted || d.phase == PhaseLost {
		return &StateError{Op: "mark solid", UID: d.uid, Status: d.status}
	}
	d.phase = PhaseSolid
	return nil
}

// MarkLost records that a completed drop's content is missing.
// It reports whether the phase changed.
func (d *Drop) MarkLost() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status != StatusCompleted || d.phase == PhaseLost {
		return false
	}
	d.phase = PhaseLost
	return true
}

// Expire moves a completed drop to Expired, stamping now as its expiry time.
func (d *Drop) Expire(now time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status != StatusCompleted {
		return &StateError{Op: "expire", UID: d.uid, Status: d.status}
	}
	d.status = StatusExpired
	d.expiredAt = now
	return nil
}

// Destroy deletes the content of an expired drop and moves it to Deleted.
// If the content cannot be deleted the drop stays Expired.
func (d *Drop) Destroy(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status != StatusExpired {
		return &StateError{Op: "destroy", UID: d.uid, Status: d.status}
	}
	if err := d.backend.Delete(ctx, d.key); err != nil {
		return &DeletionError{UID: d.uid, Key: d.key, Err: err}
	}
	d.status = StatusDeleted
	return nil
}

func (d *Drop) String() string {
	return d.oid + "/" + d.uid
}
