package drop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWait_CompletedBeforeWait(t *testing.T) {
	d := newDrop(t, newBackend(), UnknownSize)
	require.NoError(t, d.SetCompleted(context.Background()))

	assert.NoError(t, d.Wait(context.Background(), time.Millisecond))
}

func TestWait_CompletedDuringWait(t *testing.T) {
	d := newDrop(t, newBackend(), 1)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = d.Write(context.Background(), []byte{' '})
	}()

	require.NoError(t, d.Wait(context.Background(), 5*time.Second))
	assert.Equal(t, StatusCompleted, d.Status())
}

func TestWait_ErrorWakesWaiter(t *testing.T) {
	d := newDrop(t, newBackend(), UnknownSize)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = d.SetError()
	}()

	require.NoError(t, d.Wait(context.Background(), 5*time.Second))
	assert.Equal(t, StatusError, d.Status())
}

func TestWait_Timeout(t *testing.T) {
	d := newDrop(t, newBackend(), UnknownSize)

	start := time.Now()
	err := d.Wait(context.Background(), 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, StatusInitialized, d.Status())
}

func TestWait_ContextCancelled(t *testing.T) {
	d := newDrop(t, newBackend(), UnknownSize)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Wait(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitAll(t *testing.T) {
	b := newBackend()
	var drops []*Drop
	for _, uid := range []string{"u1", "u2", "u3"} {
		d, err := New(b, Options{OID: "o", UID: uid, ExpectedSize: 1})
		require.NoError(t, err)
		drops = append(drops, d)
	}

	go func() {
		for _, d := range drops {
			time.Sleep(10 * time.Millisecond)
			_, _ = d.Write(context.Background(), []byte{'x'})
		}
	}()

	require.NoError(t, WaitAll(context.Background(), 5*time.Second, drops...))
	for _, d := range drops {
		assert.Equal(t, StatusCompleted, d.Status())
	}
}

func TestWaitAll_Timeout(t *testing.T) {
	b := newBackend()
	done, err := New(b, Options{OID: "o", UID: "done", ExpectedSize: UnknownSize})
	require.NoError(t, err)
	require.NoError(t, done.SetCompleted(context.Background()))
	pending, err := New(b, Options{OID: "o", UID: "pending", ExpectedSize: UnknownSize})
	require.NoError(t, err)

	err = WaitAll(context.Background(), 30*time.Millisecond, done, pending)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "1 of 2")
}
