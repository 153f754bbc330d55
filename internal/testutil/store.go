// Package testutil holds fakes shared by package tests.
package testutil

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nytimes/s3yum/internal/store"
)

// Call is one recorded store operation.
type Call struct {
	Op  string // list, get, put, delete
	Key string // prefix for list
}

func (c Call) String() string {
	return c.Op + " " + c.Key
}

type memObject struct {
	data         []byte
	etag         string
	lastModified string
}

// MemoryStore is an in-memory store.Store that records every call in order.
type MemoryStore struct {
	mu       sync.Mutex
	objects  map[string]*memObject
	failures map[string]error
	calls    []Call

	// Now stamps objects written through Put. Defaults to time.Now.
	Now func() time.Time
}

var _ store.Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects:  make(map[string]*memObject),
		failures: make(map[string]error),
		Now:      time.Now,
	}
}

// AddObject seeds an object without recording a call. The ETag is the
// MD5 of data.
func (m *MemoryStore) AddObject(key string, data []byte, modified time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = &memObject{
		data:         append([]byte(nil), data...),
		etag:         md5Hex(data),
		lastModified: store.FormatTimestamp(modified),
	}
}

// SetETag overrides the checksum reported for key.
func (m *MemoryStore) SetETag(key, etag string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if obj, ok := m.objects[key]; ok {
		obj.etag = etag
	}
}

// SetLastModified overrides the raw timestamp text reported for key.
func (m *MemoryStore) SetLastModified(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if obj, ok := m.objects[key]; ok {
		obj.lastModified = value
	}
}

// Fail makes the next and every later op on key return err. An empty key
// matches every key.
func (m *MemoryStore) Fail(op, key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op+" "+key] = err
}

// Has reports whether key is currently stored.
func (m *MemoryStore) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

// Data returns the stored bytes for key.
func (m *MemoryStore) Data(key string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if obj, ok := m.objects[key]; ok {
		return append([]byte(nil), obj.data...)
	}
	return nil
}

// Keys returns every stored key, sorted.
func (m *MemoryStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Calls returns every recorded call in order.
func (m *MemoryStore) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// Mutations returns only the put and delete calls, in order.
func (m *MemoryStore) Mutations() []Call {
	var out []Call
	for _, c := range m.Calls() {
		if c.Op == "put" || c.Op == "delete" {
			out = append(out, c)
		}
	}
	return out
}

// CallKeys returns the keys of recorded calls of the given op, in order.
func (m *MemoryStore) CallKeys(op string) []string {
	var out []string
	for _, c := range m.Calls() {
		if c.Op == op {
			out = append(out, c.Key)
		}
	}
	return out
}

func (m *MemoryStore) record(op, key string) error {
	m.calls = append(m.calls, Call{Op: op, Key: key})
	if err, ok := m.failures[op+" "+key]; ok {
		return err
	}
	if err, ok := m.failures[op+" "]; ok {
		return err
	}
	return nil
}

// List implements store.Store. Results are sorted by key.
func (m *MemoryStore) List(_ context.Context, prefix string) ([]store.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("list", prefix); err != nil {
		return nil, err
	}

	var out []store.ObjectInfo
	for key, obj := range m.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, store.ObjectInfo{
			Key:          key,
			Size:         int64(len(obj.data)),
			LastModified: obj.lastModified,
			ETag:         `"` + obj.etag + `"`,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Get implements store.Store.
func (m *MemoryStore) Get(ctx context.Context, key string, w io.Writer, progress store.ProgressFunc) error {
	m.mu.Lock()
	err := m.record("get", key)
	obj, ok := m.objects[key]
	m.mu.Unlock()

	if err != nil {
		return err
	}
	if !ok {
		return &store.Error{Op: "get", Key: key, Err: store.ErrObjectNotFound}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := w.Write(obj.data); err != nil {
		return err
	}
	if progress != nil {
		progress(int64(len(obj.data)), int64(len(obj.data)))
	}
	return nil
}

// Put implements store.Store.
func (m *MemoryStore) Put(ctx context.Context, key, localPath string, progress store.ProgressFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("put", key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	m.objects[key] = &memObject{
		data:         data,
		etag:         md5Hex(data),
		lastModified: store.FormatTimestamp(m.Now()),
	}
	if progress != nil {
		progress(int64(len(data)), int64(len(data)))
	}
	return nil
}

// Delete implements store.Store.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("delete", key); err != nil {
		return err
	}
	delete(m.objects, key)
	return nil
}

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
