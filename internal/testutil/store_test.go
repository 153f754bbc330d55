package testutil

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/nytimes/s3yum/internal/store"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	stamp := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	m := NewMemoryStore()
	m.Now = func() time.Time { return stamp }
	m.AddObject("dev/a.rpm", []byte("hello world"), stamp)

	local := filepath.Join(t.TempDir(), "b.rpm")
	if err := os.WriteFile(local, []byte("b"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := m.Put(ctx, "dev/b.rpm", local, nil); err != nil {
		t.Fatalf("Put: %v", err)
	}

	objects, err := m.List(ctx, "dev")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(objects) != 2 || objects[0].Key != "dev/a.rpm" || objects[1].Key != "dev/b.rpm" {
		t.Fatalf("unexpected listing %+v", objects)
	}
	if got := store.NormalizeETag(objects[0].ETag); got != "5eb63bbbe01eeed093cb22bb8f5acdc3" {
		t.Errorf("etag = %s", got)
	}
	if objects[1].LastModified != store.FormatTimestamp(stamp) {
		t.Errorf("put stamp = %s", objects[1].LastModified)
	}

	var buf bytes.Buffer
	if err := m.Get(ctx, "dev/a.rpm", &buf, nil); err != nil || buf.String() != "hello world" {
		t.Errorf("Get = %q, %v", buf.String(), err)
	}
	if err := m.Get(ctx, "dev/missing", &buf, nil); !errors.Is(err, store.ErrObjectNotFound) {
		t.Errorf("missing key: %v", err)
	}

	if err := m.Delete(ctx, "dev/a.rpm"); err != nil {
		t.Fatal(err)
	}
	if m.Has("dev/a.rpm") {
		t.Error("object not deleted")
	}

	want := []string{"put dev/b.rpm", "delete dev/a.rpm"}
	var got []string
	for _, c := range m.Mutations() {
		got = append(got, c.String())
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("mutations = %v, want %v", got, want)
	}
}

func TestMemoryStore_Fail(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	m := NewMemoryStore()
	m.AddObject("dev/a.rpm", []byte("a"), time.Now())
	m.Fail("delete", "", boom)

	if err := m.Delete(ctx, "dev/a.rpm"); !errors.Is(err, boom) {
		t.Errorf("expected injected failure, got %v", err)
	}
	if !m.Has("dev/a.rpm") {
		t.Error("failed delete must keep the object")
	}
	if keys := m.CallKeys("delete"); len(keys) != 1 {
		t.Errorf("failed calls are still recorded, got %v", keys)
	}
}

func TestGenerator(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.rpm"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	g := &Generator{}
	if err := g.Generate(context.Background(), dir); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, name := range DefaultMetadataFiles {
		if _, err := os.Stat(filepath.Join(dir, "repodata", name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
	if seen := g.Seen(); len(seen) != 1 || !reflect.DeepEqual(seen[0], []string{"a.rpm"}) {
		t.Errorf("seen = %v", seen)
	}

	g.Err = errors.New("createrepo failed")
	if err := g.Generate(context.Background(), dir); err == nil {
		t.Error("expected configured error")
	}
	if len(g.Calls()) != 2 {
		t.Errorf("calls = %v", g.Calls())
	}
}
