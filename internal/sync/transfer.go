package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/nytimes/s3yum/internal/store"
)

// ErrChecksumMismatch is returned when a downloaded file does not match the
// checksum the store reported for it.
var ErrChecksumMismatch = errors.New("md5 mismatch")

// ProgressFactory returns the progress callback for a named transfer, or nil.
type ProgressFactory func(name string) store.ProgressFunc

// Options tunes a Transferer.
type Options struct {
	DryRun    bool
	Transfers int // concurrent downloads, minimum 1
	Progress  ProgressFactory
}

// Transferer applies download and upload decisions over sets of objects
// and files, recording store mutations in a Plan.
type Transferer struct {
	store     store.Store
	logger    *slog.Logger
	dryRun    bool
	transfers int
	progress  ProgressFactory
	plan      *Plan
}

// NewTransferer creates a Transferer backed by st.
func NewTransferer(st store.Store, logger *slog.Logger, opts Options) *Transferer {
	transfers := opts.Transfers
	if transfers < 1 {
		transfers = 1
	}
	return &Transferer{
		store:     st,
		logger:    logger,
		dryRun:    opts.DryRun,
		transfers: transfers,
		progress:  opts.Progress,
		plan:      &Plan{},
	}
}

// Plan returns the mutations recorded so far.
func (t *Transferer) Plan() *Plan {
	return t.plan
}

func (t *Transferer) progressFor(name string) store.ProgressFunc {
	if t.progress == nil {
		return nil
	}
	return t.progress(name)
}

// DownloadSet fetches each object into destDir under its base name when
// DecideDownload says so, verifying every written file against the
// object's checksum. The count includes skipped objects but not folder
// markers. Downloads happen even in dry-run; they never touch the store.
//
// Objects sharing a base name are fetched one after another in listing
// order, so the last one wins.
func (t *Transferer) DownloadSet(ctx context.Context, objects []store.ObjectInfo, destDir string, force bool) (int, error) {
	var names []string
	byDest := make(map[string][]store.ObjectInfo)

	count := 0
	for _, obj := range objects {
		if obj.IsFolderMarker() {
			t.logger.Debug("not downloading folder marker", "key", obj.Key)
			continue
		}
		count++
		name := path.Base(obj.Key)
		if _, ok := byDest[name]; !ok {
			names = append(names, name)
		} else {
			t.logger.Warn("several objects share a local name, the last one wins", "name", name, "key", obj.Key)
		}
		byDest[name] = append(byDest[name], obj)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.transfers)

	for _, name := range names {
		group := byDest[name]
		g.Go(func() error {
			for _, obj := range group {
				if err := t.download(gctx, obj, destDir, force); err != nil {
					return err
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return count, err
	}
	return count, nil
}

func (t *Transferer) download(ctx context.Context, obj store.ObjectInfo, destDir string, force bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	remote, err := NewRemoteObject(obj)
	if err != nil {
		return err
	}

	name := path.Base(obj.Key)
	dest := filepath.Join(destDir, name)

	decision, err := DecideDownload(remote, dest, force)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", dest, err)
	}
	if !decision.Transfer() {
		t.logger.Debug("skipping download", "key", obj.Key, "dest", dest, "reason", decision.Reason)
		return nil
	}

	t.logger.Info("downloading", "key", obj.Key, "dest", dest, "reason", decision.Reason)
	return t.fetch(ctx, obj.Key, dest, remote.Checksum)
}

// fetch writes key to a temp file next to dest and renames it over dest
// once its md5 matches want. On failure dest is left as it was.
func (t *Transferer) fetch(ctx context.Context, key, dest, want string) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(dest), ".s3yum-download-*")
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", dest, err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if err := t.store.Get(ctx, key, tmpFile, t.progressFor("Downloading "+key)); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(0644); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}

	sum, err := fileMD5(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to verify %s: %w", dest, err)
	}
	if sum != want {
		return fmt.Errorf("download failed: %w for %s (got %s, want %s)", ErrChecksumMismatch, filepath.Base(dest), sum, want)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return nil
}

// UploadDirectory puts every regular file directly inside dir to
// destPrefix/<name> when DecideUpload says so against existing[name].
// Subdirectories are skipped. In dry-run the put is only recorded.
func (t *Transferer) UploadDirectory(ctx context.Context, dir, destPrefix string, existing map[string]store.ObjectInfo, force bool) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", dir, err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		name := entry.Name()
		localPath := filepath.Join(dir, name)

		info, err := os.Stat(localPath)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", localPath, err)
		}
		if !info.Mode().IsRegular() || store.IsFolderMarker(name) {
			continue
		}

		var remote *RemoteObject
		if obj, ok := existing[name]; ok {
			r, err := NewRemoteObject(obj)
			if err != nil {
				return err
			}
			remote = &r
		}

		key := store.Join(destPrefix, name)
		decision, err := DecideUpload(localPath, remote, force)
		if err != nil {
			return fmt.Errorf("failed to check %s: %w", localPath, err)
		}
		if !decision.Transfer() {
			t.logger.Debug("skipping upload", "file", localPath, "key", key, "reason", decision.Reason)
			t.plan.add(Op{Kind: OpSkip, Key: key, LocalPath: localPath, Reason: decision.Reason})
			continue
		}

		if !t.dryRun {
			t.logger.Info("uploading", "file", localPath, "key", key, "reason", decision.Reason)
			if err := t.store.Put(ctx, key, localPath, t.progressFor("Uploading "+key)); err != nil {
				return err
			}
		}
		t.plan.add(Op{Kind: OpPut, Key: key, LocalPath: localPath, Reason: decision.Reason})
	}
	return nil
}

// DeleteObjects removes each object, skipping folder markers. In dry-run
// the delete is only recorded.
func (t *Transferer) DeleteObjects(ctx context.Context, objects []store.ObjectInfo) error {
	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			return err
		}
		if obj.IsFolderMarker() {
			continue
		}
		if !t.dryRun {
			t.logger.Info("deleting", "key", obj.Key)
			if err := t.store.Delete(ctx, obj.Key); err != nil {
				return err
			}
		}
		t.plan.add(Op{Kind: OpDelete, Key: obj.Key})
	}
	return nil
}
