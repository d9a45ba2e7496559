package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/dray-io/droplife/internal/objectstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, b Backend, key string) []byte {
	t.Helper()
	rc, err := b.Read(context.Background(), key)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data
}

// backendContract runs the behavior every Backend must share.
func backendContract(t *testing.T, b Backend) {
	ctx := context.Background()
	key := Key("oid:A", "uid:A1")

	exists, err := b.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists, "nothing written yet")

	require.NoError(t, b.Append(ctx, key, []byte("hello ")))
	require.NoError(t, b.Append(ctx, key, []byte("world")))
	require.NoError(t, b.Commit(ctx, key))

	exists, err = b.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, []byte("hello world"), readAll(t, b, key))

	require.NoError(t, b.Delete(ctx, key))
	exists, err = b.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	// Delete is idempotent and Read reports absence with ErrNotFound.
	require.NoError(t, b.Delete(ctx, key))
	_, err = b.Read(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKeyEscapesSeparators(t *testing.T) {
	assert.Equal(t, "a%2Fb/c", Key("a/b", "c"))
	assert.Equal(t, "oid:A/uid:A1", Key("oid:A", "uid:A1"))
}

func TestValidateID(t *testing.T) {
	for _, id := range []string{"", ".", ".."} {
		assert.ErrorIs(t, ValidateID(id), ErrInvalidKey, "id %q", id)
	}
	for _, id := range []string{"a", "...", ".hidden", "a/b", "oid:A"} {
		assert.NoError(t, ValidateID(id), "id %q", id)
	}
}

func TestFileBackend_RejectsKeysOutsideRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "root")
	b, err := NewFileBackend(root)
	require.NoError(t, err)
	ctx := context.Background()

	for _, key := range []string{Key("..", "escaped"), Key("x", ".."), "..", "."} {
		assert.ErrorIs(t, b.Append(ctx, key, []byte("data")), ErrInvalidKey, "append %q", key)
		assert.ErrorIs(t, b.Commit(ctx, key), ErrInvalidKey, "commit %q", key)
		assert.ErrorIs(t, b.Delete(ctx, key), ErrInvalidKey, "delete %q", key)
		_, err := b.Exists(ctx, key)
		assert.ErrorIs(t, err, ErrInvalidKey, "exists %q", key)
		_, err = b.Read(ctx, key)
		assert.ErrorIs(t, err, ErrInvalidKey, "read %q", key)
	}

	_, err = os.Stat(filepath.Join(parent, "escaped"))
	assert.True(t, errors.Is(err, os.ErrNotExist), "nothing written next to the root")
	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir(), "root survives")
}

func TestFileBackend(t *testing.T) {
	b, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	backendContract(t, b)
}

func TestFileBackend_ExternalRemoval(t *testing.T) {
	b, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	key := Key("oid", "uid")

	require.NoError(t, b.Append(ctx, key, []byte{' '}))
	require.NoError(t, b.Commit(ctx, key))
	require.NoError(t, os.Remove(b.Path(key)))

	exists, err := b.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFileBackend_CommitEmpty(t *testing.T) {
	b, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	key := Key("oid", "empty")

	require.NoError(t, b.Commit(ctx, key))
	exists, err := b.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Empty(t, readAll(t, b, key))
}

func TestFileBackend_RequiresRoot(t *testing.T) {
	_, err := NewFileBackend("")
	assert.Error(t, err)
}

func TestObjectBackend(t *testing.T) {
	for _, codec := range []Codec{CodecNone, CodecSnappy, CodecZstd, CodecLz4} {
		t.Run(string(codec), func(t *testing.T) {
			b := NewObjectBackend(objectstore.NewMemoryStore(), ObjectBackendConfig{Prefix: "drops/", Codec: codec})
			backendContract(t, b)
		})
	}
}

func TestObjectBackend_StagedContentIsInvisible(t *testing.T) {
	store := objectstore.NewMemoryStore()
	b := NewObjectBackend(store, ObjectBackendConfig{Prefix: "drops/"})
	ctx := context.Background()
	key := Key("oid", "uid")

	require.NoError(t, b.Append(ctx, key, []byte("partial")))
	exists, err := b.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, 1, b.Staged())
	assert.Equal(t, 0, store.Len())

	require.NoError(t, b.Commit(ctx, key))
	assert.Equal(t, 0, b.Staged())

	meta, err := store.Head(ctx, "drops/"+key)
	require.NoError(t, err)
	assert.EqualValues(t, len("partial"), meta.Size)
}

func TestObjectBackend_CommitFailureKeepsStaging(t *testing.T) {
	store := objectstore.NewMemoryStore()
	b := NewObjectBackend(store, ObjectBackendConfig{})
	ctx := context.Background()
	key := Key("oid", "uid")

	require.NoError(t, b.Append(ctx, key, []byte("data")))
	store.Close()

	err := b.Commit(ctx, key)
	require.Error(t, err)
	assert.True(t, errors.Is(err, objectstore.ErrClosed))
	assert.Equal(t, 1, b.Staged(), "staged bytes survive a failed commit")
}

func TestObjectBackend_ExistsPropagatesStoreErrors(t *testing.T) {
	store := objectstore.NewMemoryStore()
	b := NewObjectBackend(store, ObjectBackendConfig{})
	store.Close()

	_, err := b.Exists(context.Background(), "k")
	assert.ErrorIs(t, err, objectstore.ErrClosed)
}

func TestCodecRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("precious drop content "), 64)

	for _, codec := range []Codec{CodecNone, CodecSnappy, CodecZstd, CodecLz4} {
		t.Run(string(codec), func(t *testing.T) {
			encoded, err := codec.Encode(data)
			require.NoError(t, err)
			if codec != CodecNone {
				assert.Less(t, len(encoded), len(data), "repetitive input should shrink")
			}
			decoded, err := codec.Decode(encoded)
			require.NoError(t, err)
			assert.Equal(t, data, decoded)
		})
	}
}

func TestParseCodec(t *testing.T) {
	tests := []struct {
		in      string
		want    Codec
		wantErr bool
	}{
		{"", CodecNone, false},
		{"none", CodecNone, false},
		{"snappy", CodecSnappy, false},
		{"zstd", CodecZstd, false},
		{"lz4", CodecLz4, false},
		{"gzip", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseCodec(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
