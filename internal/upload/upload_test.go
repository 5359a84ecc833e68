package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"videopipe/internal/cache"
	"videopipe/internal/objectstore"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var errObjectNotFound = errors.New("memstore: object not found")

// memStore is a minimal in-memory objectstore.Store fake, sufficient for
// exercising the assembler's session/chunk bookkeeping without a real bucket.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (m *memStore) PutStream(ctx context.Context, name string, r io.Reader, size int64, mediaType string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[name] = b
	return nil
}

func (m *memStore) GetStream(ctx context.Context, name string) (io.ReadCloser, error) {
	m.mu.Lock()
	b, ok := m.objects[name]
	m.mu.Unlock()
	if !ok {
		return nil, errObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memStore) GetRange(ctx context.Context, name string, start, endInclusive int64) ([]byte, error) {
	m.mu.Lock()
	b, ok := m.objects[name]
	m.mu.Unlock()
	if !ok {
		return nil, errObjectNotFound
	}
	return b[start : endInclusive+1], nil
}

func (m *memStore) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, name)
	return nil
}

func (m *memStore) Exists(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	_, ok := m.objects[name]
	m.mu.Unlock()
	return ok, nil
}

func (m *memStore) Stat(ctx context.Context, name string) (objectstore.ObjectInfo, error) {
	m.mu.Lock()
	b, ok := m.objects[name]
	m.mu.Unlock()
	if !ok {
		return objectstore.ObjectInfo{}, errObjectNotFound
	}
	return objectstore.ObjectInfo{Name: name, Size: int64(len(b))}, nil
}

func (m *memStore) List(ctx context.Context, prefix string) ([]objectstore.ObjectInfo, error) {
	return nil, nil
}

func (m *memStore) PresignedGet(ctx context.Context, name string, ttl time.Duration) (string, error) {
	return "", nil
}

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return cache.New(rdb)
}

func TestInitiateAndPutChunkTracksReceivedSet(t *testing.T) {
	c := newTestCache(t)
	store := newMemStore()
	a := New(c, store, nil, nil, nil)
	ctx := context.Background()

	id, err := a.Initiate(ctx, 1, "movie.mp4", 20, 2, "video/mp4")
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	if err := a.PutChunk(ctx, id, 1, bytes.NewReader([]byte("0123456789")), 10); err != nil {
		t.Fatalf("PutChunk(1): %v", err)
	}
	if err := a.PutChunk(ctx, id, 0, bytes.NewReader([]byte("abcdefghij")), 10); err != nil {
		t.Fatalf("PutChunk(0): %v", err)
	}

	session, err := a.load(ctx, id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(session.ReceivedSet) != 2 || session.ReceivedSet[0] != 0 || session.ReceivedSet[1] != 1 {
		t.Errorf("ReceivedSet = %v, want [0 1]", session.ReceivedSet)
	}
}

func TestPutChunkRejectsOutOfRangeIndex(t *testing.T) {
	c := newTestCache(t)
	store := newMemStore()
	a := New(c, store, nil, nil, nil)
	ctx := context.Background()

	id, err := a.Initiate(ctx, 1, "movie.mp4", 10, 1, "video/mp4")
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if err := a.PutChunk(ctx, id, 5, bytes.NewReader([]byte("x")), 1); err == nil {
		t.Fatal("expected validation error for out-of-range chunk index")
	}
}

func TestAbortRemovesChunksAndSession(t *testing.T) {
	c := newTestCache(t)
	store := newMemStore()
	a := New(c, store, nil, nil, nil)
	ctx := context.Background()

	id, err := a.Initiate(ctx, 1, "movie.mp4", 20, 2, "video/mp4")
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if err := a.PutChunk(ctx, id, 0, bytes.NewReader([]byte("0123456789")), 10); err != nil {
		t.Fatalf("PutChunk: %v", err)
	}

	if err := a.Abort(ctx, id); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	if exists, _ := store.Exists(ctx, chunkObjectName(id, 0)); exists {
		t.Error("chunk 0 should be deleted after Abort")
	}
	if _, err := a.load(ctx, id); err == nil {
		t.Error("session should be gone after Abort")
	}
}

func TestIsCompleteRequiresEveryIndex(t *testing.T) {
	if isComplete([]int{0, 1}, 3) {
		t.Error("isComplete should be false when a chunk is missing")
	}
	if !isComplete([]int{0, 1, 2}, 3) {
		t.Error("isComplete should be true when every chunk index is present")
	}
	if isComplete([]int{0, 0, 1}, 3) {
		t.Error("isComplete should be false on a short received set even with a duplicate")
	}
}

func TestStreamChunksConcatenatesInOrder(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	uploadID := "test-upload"
	store.objects[chunkObjectName(uploadID, 0)] = []byte("hello, ")
	store.objects[chunkObjectName(uploadID, 1)] = []byte("world")

	a := &Assembler{store: store}
	var buf bytes.Buffer
	if err := a.streamChunks(ctx, uploadID, 2, &buf); err != nil {
		t.Fatalf("streamChunks: %v", err)
	}
	if buf.String() != "hello, world" {
		t.Errorf("streamChunks output = %q, want %q", buf.String(), "hello, world")
	}
}
