package s3

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/dray-io/droplife/internal/objectstore"
)

// fakeS3 is a minimal path-style S3 endpoint for a single bucket.
type fakeS3 struct {
	bucket string

	mu      sync.Mutex
	objects map[string][]byte
	deny    bool
}

func newFakeS3(bucket string) *fakeS3 {
	return &fakeS3{bucket: bucket, objects: make(map[string][]byte)}
}

type listResult struct {
	XMLName     xml.Name      `xml:"ListBucketResult"`
	Name        string        `xml:"Name"`
	Prefix      string        `xml:"Prefix"`
	KeyCount    int           `xml:"KeyCount"`
	IsTruncated bool          `xml:"IsTruncated"`
	Contents    []listContent `xml:"Contents"`
}

type listContent struct {
	Key  string `xml:"Key"`
	Size int64  `xml:"Size"`
	ETag string `xml:"ETag"`
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.deny {
		w.WriteHeader(http.StatusForbidden)
		if r.Method != http.MethodHead {
			fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>denied</Message></Error>`)
		}
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/")
	bucket, key, _ := strings.Cut(path, "/")
	if bucket != f.bucket {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchBucket</Code><Message>no bucket</Message></Error>`)
		return
	}

	if key == "" && r.Method == http.MethodGet {
		prefix := r.URL.Query().Get("prefix")
		res := listResult{Name: f.bucket, Prefix: prefix}
		for k, v := range f.objects {
			if strings.HasPrefix(k, prefix) {
				res.Contents = append(res.Contents, listContent{Key: k, Size: int64(len(v)), ETag: `"etag"`})
			}
		}
		sort.Slice(res.Contents, func(i, j int) bool { return res.Contents[i].Key < res.Contents[j].Key })
		res.KeyCount = len(res.Contents)
		w.Header().Set("Content-Type", "application/xml")
		_ = xml.NewEncoder(w).Encode(res)
		return
	}

	switch r.Method {
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		f.objects[key] = data
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet, http.MethodHead:
		data, ok := f.objects[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			if r.Method == http.MethodGet {
				fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			}
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(data)))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(data)
		}
	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func testStore(t *testing.T, bucket string) (*Store, *fakeS3) {
	t.Helper()
	fake := newFakeS3("drops")
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	store, err := New(context.Background(), Config{
		Bucket:          bucket,
		Endpoint:        srv.URL,
		Region:          "us-east-1",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, fake
}

func TestNew_RequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected error for empty bucket")
	}
}

func TestStore_PutGetHeadDelete(t *testing.T) {
	store, _ := testStore(t, "drops")
	ctx := context.Background()
	key := "oid-a/uid-a1"
	data := []byte("drop content")

	if err := store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/octet-stream"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	meta, err := store.Head(ctx, key)
	if err != nil {
		t.Fatalf("Head failed: %v", err)
	}
	if meta.Size != int64(len(data)) {
		t.Errorf("Head size = %d, want %d", meta.Size, len(data))
	}

	rc, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	got, _ := io.ReadAll(rc)
	rc.Close()
	if !bytes.Equal(got, data) {
		t.Errorf("Get = %q, want %q", got, data)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Head(ctx, key); !errors.Is(err, objectstore.ErrNotFound) {
		t.Errorf("Head after delete = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Errorf("second Delete should succeed, got %v", err)
	}
}

func TestStore_PutNonSeekableReader(t *testing.T) {
	store, fake := testStore(t, "drops")
	ctx := context.Background()

	r := io.MultiReader(strings.NewReader("abc"), strings.NewReader("def"))
	if err := store.Put(ctx, "k", r, 6, "text/plain"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if string(fake.objects["k"]) != "abcdef" {
		t.Errorf("stored %q, want %q", fake.objects["k"], "abcdef")
	}
}

func TestStore_GetMissing(t *testing.T) {
	store, _ := testStore(t, "drops")

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, objectstore.ErrNotFound) {
		t.Fatalf("Get missing = %v, want ErrNotFound", err)
	}
	var objErr *objectstore.ObjectError
	if !errors.As(err, &objErr) || objErr.Op != "Get" || objErr.Key != "missing" {
		t.Errorf("expected ObjectError{Op: Get, Key: missing}, got %v", err)
	}
}

func TestStore_AccessDenied(t *testing.T) {
	store, fake := testStore(t, "drops")
	fake.deny = true

	_, err := store.Head(context.Background(), "k")
	if !errors.Is(err, objectstore.ErrAccessDenied) {
		t.Fatalf("Head = %v, want ErrAccessDenied", err)
	}
}

func TestStore_List(t *testing.T) {
	store, _ := testStore(t, "drops")
	ctx := context.Background()

	for _, key := range []string{"oid-a/1", "oid-a/2", "oid-b/1"} {
		if err := store.Put(ctx, key, bytes.NewReader([]byte("x")), 1, ""); err != nil {
			t.Fatalf("Put %s failed: %v", key, err)
		}
	}

	list, err := store.List(ctx, "oid-a/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List returned %d objects, want 2", len(list))
	}
	if list[0].Key != "oid-a/1" || list[1].Key != "oid-a/2" {
		t.Errorf("unexpected keys: %v, %v", list[0].Key, list[1].Key)
	}
}

func TestStore_Closed(t *testing.T) {
	store, _ := testStore(t, "drops")
	store.Close()

	if _, err := store.Head(context.Background(), "k"); !errors.Is(err, objectstore.ErrClosed) {
		t.Fatalf("Head after close = %v, want ErrClosed", err)
	}
}
