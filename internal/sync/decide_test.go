package sync

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nytimes/s3yum/internal/store"
)

const helloMD5 = "5eb63bbbe01eeed093cb22bb8f5acdc3"

var base = time.Date(2014, 6, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// writeFile creates a file with the given content and modification time.
func writeFile(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

// relative remote timestamps used by the decision tables
var offsets = []struct {
	name  string
	delta time.Duration
}{
	{"older", -24 * time.Hour},
	{"equal", 0},
	{"newer", 24 * time.Hour},
}

func TestFileMD5(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.txt")
	if err := os.WriteFile(path, []byte("hello world"), 0644); err != nil {
		t.Fatal(err)
	}

	sum, err := fileMD5(path)
	if err != nil {
		t.Fatal(err)
	}
	if sum != helloMD5 {
		t.Errorf("fileMD5 = %s, want %s", sum, helloMD5)
	}

	if err := os.WriteFile(path, []byte("different content"), 0644); err != nil {
		t.Fatal(err)
	}
	sum2, err := fileMD5(path)
	if err != nil {
		t.Fatal(err)
	}
	if sum == sum2 {
		t.Error("hash should change when content changes")
	}
}

func TestNewRemoteObject(t *testing.T) {
	r, err := NewRemoteObject(store.ObjectInfo{
		Key:          "dev/a.rpm",
		Size:         11,
		LastModified: "2015-01-01T00:00:00.000Z",
		ETag:         `"` + helloMD5 + `"`,
	})
	if err != nil {
		t.Fatal(err)
	}
	if r.Checksum != helloMD5 {
		t.Errorf("Checksum = %q, want quotes stripped", r.Checksum)
	}
	if !r.LastModified.Equal(time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("LastModified = %s", r.LastModified)
	}
	if r.IsFolderMarker() {
		t.Error("a.rpm is not a folder marker")
	}

	_, err = NewRemoteObject(store.ObjectInfo{Key: "dev/a.rpm", LastModified: "last tuesday"})
	var tsErr *store.TimestampError
	if !errors.As(err, &tsErr) {
		t.Fatalf("expected TimestampError, got %v", err)
	}
}

func TestShouldDownload_DecisionTable(t *testing.T) {
	for _, force := range []bool{false, true} {
		for _, exists := range []bool{false, true} {
			for _, equal := range []bool{false, true} {
				for _, off := range offsets {
					name := fmt.Sprintf("force=%v/exists=%v/checksumEqual=%v/remote=%s", force, exists, equal, off.name)
					t.Run(name, func(t *testing.T) {
						local := filepath.Join(t.TempDir(), "a.rpm")
						if exists {
							writeFile(t, local, "hello world", base)
						}

						remote := RemoteObject{Key: "dev/a.rpm", LastModified: base.Add(off.delta), Checksum: "0000"}
						if equal {
							remote.Checksum = helloMD5
						}

						want := force || !exists || (!equal && off.delta >= 0)
						got, err := ShouldDownload(remote, local, force)
						if err != nil {
							t.Fatal(err)
						}
						if got != want {
							t.Errorf("ShouldDownload = %v, want %v", got, want)
						}
					})
				}
			}
		}
	}
}

func TestShouldUpload_DecisionTable(t *testing.T) {
	for _, force := range []bool{false, true} {
		for _, present := range []bool{false, true} {
			for _, equal := range []bool{false, true} {
				for _, off := range offsets {
					name := fmt.Sprintf("force=%v/remotePresent=%v/checksumEqual=%v/remote=%s", force, present, equal, off.name)
					t.Run(name, func(t *testing.T) {
						local := filepath.Join(t.TempDir(), "a.rpm")
						writeFile(t, local, "hello world", base)

						var remote *RemoteObject
						if present {
							remote = &RemoteObject{Key: "dev/a.rpm", LastModified: base.Add(off.delta), Checksum: "0000"}
							if equal {
								remote.Checksum = helloMD5
							}
						}

						// local is newer or equal when the remote is older or equal
						want := force || !present || (!equal && off.delta <= 0)
						got, err := ShouldUpload(local, remote, force)
						if err != nil {
							t.Fatal(err)
						}
						if got != want {
							t.Errorf("ShouldUpload = %v, want %v", got, want)
						}
					})
				}
			}
		}
	}
}

func TestShouldDownload_Scenarios(t *testing.T) {
	dir := t.TempDir()

	// missing local file
	got, err := ShouldDownload(RemoteObject{Checksum: helloMD5, LastModified: base}, filepath.Join(dir, "missing.rpm"), false)
	if err != nil || !got {
		t.Errorf("missing local: got %v, %v; want true", got, err)
	}

	// identical content
	same := filepath.Join(dir, "same.rpm")
	writeFile(t, same, "hello world", base)
	got, err = ShouldDownload(RemoteObject{Checksum: helloMD5, LastModified: base.Add(time.Hour)}, same, false)
	if err != nil || got {
		t.Errorf("equal checksum: got %v, %v; want false", got, err)
	}

	// remote 2015, local 2014, content differs
	stale := filepath.Join(dir, "stale.rpm")
	writeFile(t, stale, "old build", time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC))
	got, err = ShouldDownload(RemoteObject{Checksum: helloMD5, LastModified: time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)}, stale, false)
	if err != nil || !got {
		t.Errorf("stale local: got %v, %v; want true", got, err)
	}
}

func TestDecide_Reasons(t *testing.T) {
	local := filepath.Join(t.TempDir(), "a.rpm")
	writeFile(t, local, "hello world", base)

	d, err := DecideDownload(RemoteObject{Checksum: helloMD5, LastModified: base}, local, false)
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != ActionSkip || d.Reason == "" {
		t.Errorf("unexpected decision %+v", d)
	}

	d, err = DecideUpload(local, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != ActionUpload || d.Reason != "missing remotely" {
		t.Errorf("unexpected decision %+v", d)
	}

	d, err = DecideUpload(local, &RemoteObject{Checksum: "0000", LastModified: base.Add(time.Hour)}, false)
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != ActionSkip || d.Reason != "remote copy is newer" {
		t.Errorf("unexpected decision %+v", d)
	}
}

func TestShouldUpload_MissingLocalFile(t *testing.T) {
	remote := &RemoteObject{Checksum: helloMD5, LastModified: base}
	got, err := ShouldUpload(filepath.Join(t.TempDir(), "gone.rpm"), remote, false)
	if err == nil {
		t.Fatal("expected error for missing local file")
	}
	if got {
		t.Error("a failed decision must not request a transfer")
	}
}
