// Package workflow sequences the s3yum operations: listing, fetching,
// publishing and deleting a yum repository in the store.
package workflow

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/gobwas/glob"

	"github.com/nytimes/s3yum/internal/config"
	"github.com/nytimes/s3yum/internal/confirm"
	"github.com/nytimes/s3yum/internal/createrepo"
	"github.com/nytimes/s3yum/internal/repo"
	"github.com/nytimes/s3yum/internal/store"
	"github.com/nytimes/s3yum/internal/sync"
	"github.com/nytimes/s3yum/internal/workdir"
)

// Request is a single invocation.
type Request struct {
	Action     config.Action
	Artifacts  []string // packages to add, for create and update
	Output     string   // destination directory, for get
	WorkingDir string   // staging directory; empty means a temporary one
	Remove     []string // glob patterns matched against full package keys

	ForceDownload bool
	ForceUpload   bool
	DryRun        bool
}

// Options carries the optional collaborators of an Engine.
type Options struct {
	Out      io.Writer        // listing and prompts; defaults to os.Stdout
	Confirm  confirm.Provider // required for delete
	Progress sync.ProgressFactory
}

// Engine runs requests against one repo.
type Engine struct {
	cfg       *config.Config
	store     store.Store
	generator createrepo.Generator
	confirm   confirm.Provider
	progress  sync.ProgressFactory
	out       io.Writer
	logger    *slog.Logger
}

// NewEngine creates a new workflow engine
func NewEngine(cfg *config.Config, st store.Store, gen createrepo.Generator, logger *slog.Logger, opts Options) *Engine {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Engine{
		cfg:       cfg,
		store:     st,
		generator: gen,
		confirm:   opts.Confirm,
		progress:  opts.Progress,
		out:       out,
		logger:    logger,
	}
}

// state is what one run carries from step to step.
type state struct {
	req      Request
	snapshot *repo.Snapshot
	removals []glob.Glob
	xfer     *sync.Transferer
	logger   *slog.Logger
}

// Run validates req, takes a snapshot of the repo and performs the
// requested operation. The returned plan lists the store mutations that
// were made, or in dry-run would have been made; it is non-nil whenever
// the snapshot was taken.
func (e *Engine) Run(ctx context.Context, req Request) (*sync.Plan, error) {
	removals, err := e.validate(req)
	if err != nil {
		return nil, err
	}

	logger := e.logger.With("action", string(req.Action))
	if req.DryRun {
		logger = logger.With("dry_run", true)
	}
	logger.Info("starting", "bucket", e.cfg.Bucket, "path", e.cfg.Path)

	snapshot, err := e.fetchSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("repo snapshot",
		"metadata", len(snapshot.Metadata),
		"packages", len(snapshot.Packages))

	s := &state{
		req:      req,
		snapshot: snapshot,
		removals: removals,
		logger:   logger,
		xfer: sync.NewTransferer(e.store, logger, sync.Options{
			DryRun:    req.DryRun,
			Transfers: e.cfg.Transfers,
			Progress:  e.progress,
		}),
	}

	switch req.Action {
	case config.ActionList:
		err = e.list(s)
	case config.ActionGet:
		err = e.get(ctx, s)
	case config.ActionCreate:
		err = e.withWorkingDir(s, func(dir *workdir.Dir) error {
			return e.create(ctx, s, dir)
		})
	case config.ActionUpdate:
		err = e.withWorkingDir(s, func(dir *workdir.Dir) error {
			return e.update(ctx, s, dir)
		})
	case config.ActionDelete:
		err = e.delete(ctx, s)
	}

	plan := s.xfer.Plan()
	if err != nil {
		return plan, err
	}

	if req.DryRun {
		plan.LogDetails(logger)
		logger.Info("dry-run complete, no changes applied")
		return plan, nil
	}
	logger.Info("completed successfully", "mutations", len(plan.Puts())+len(plan.Deletes()))
	return plan, nil
}

// Validate reports invocation mistakes in req before anything is read or
// written. Every failure is a *config.UsageError.
func Validate(cfg *config.Config, req Request) error {
	_, err := compile(cfg, req)
	return err
}

func (e *Engine) validate(req Request) ([]glob.Glob, error) {
	removals, err := compile(e.cfg, req)
	if err != nil {
		return nil, err
	}
	if req.Action == config.ActionDelete && e.confirm == nil {
		return nil, fmt.Errorf("delete requires a confirmation provider")
	}
	return removals, nil
}

// compile validates req and compiles its removal patterns.
func compile(cfg *config.Config, req Request) ([]glob.Glob, error) {
	if _, err := config.ParseAction(string(req.Action)); err != nil {
		return nil, err
	}

	publishing := req.Action == config.ActionCreate || req.Action == config.ActionUpdate
	if publishing && len(req.Artifacts) == 0 && len(req.Remove) == 0 {
		return nil, &config.UsageError{Msg: "Please specify at least one RPM to add/remove."}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if req.Action == config.ActionGet && req.Output == "" {
		return nil, &config.UsageError{Msg: "Please specify an output directory."}
	}

	removals := make([]glob.Glob, 0, len(req.Remove))
	for _, pattern := range req.Remove {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, &config.UsageError{Msg: fmt.Sprintf("Bad removal pattern '%s': %v", pattern, err)}
		}
		removals = append(removals, g)
	}
	return removals, nil
}

func (e *Engine) fetchSnapshot(ctx context.Context) (*repo.Snapshot, error) {
	objects, err := e.store.List(ctx, e.cfg.Path)
	if err != nil {
		return nil, serviceError("list repo", err)
	}
	return repo.Partition(e.cfg.Path, objects), nil
}

// withWorkingDir runs fn in a fresh working directory and removes it
// afterwards when it is ephemeral, whatever fn returned.
func (e *Engine) withWorkingDir(s *state, fn func(dir *workdir.Dir) error) error {
	dir, err := workdir.Init(s.req.WorkingDir)
	if err != nil {
		return serviceError("initialize working directory", err)
	}
	s.logger.Debug("working directory ready", "dir", dir.Root, "ephemeral", dir.Ephemeral)

	defer func() {
		if err := dir.Cleanup(); err != nil {
			s.logger.Warn("failed to remove working directory", "dir", dir.Root, "error", err)
		}
	}()
	return fn(dir)
}

func (e *Engine) list(s *state) error {
	if _, err := fmt.Fprintf(e.out, "Repo info for %s:\n", store.Join(e.cfg.Bucket, e.cfg.Path)); err != nil {
		return err
	}
	for _, items := range [][]store.ObjectInfo{s.snapshot.Metadata, s.snapshot.Packages} {
		for _, item := range items {
			if _, err := fmt.Fprintf(e.out, "\t%s - %db - %s\n", item.Key, item.Size, item.LastModified); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) get(ctx context.Context, s *state) error {
	metadataDir := workdir.MetadataPath(s.req.Output)
	if err := os.MkdirAll(metadataDir, 0755); err != nil {
		return serviceError("create output directory", err)
	}
	return e.download(ctx, s, s.req.Output, metadataDir)
}

// download fetches the whole snapshot: metadata always, packages per the
// force flag.
func (e *Engine) download(ctx context.Context, s *state, packageDir, metadataDir string) error {
	n, err := s.xfer.DownloadSet(ctx, s.snapshot.Metadata, metadataDir, true)
	if err != nil {
		return serviceError("download metadata", err)
	}
	s.logger.Info("downloaded metadata", "count", n, "dest", metadataDir)

	n, err = s.xfer.DownloadSet(ctx, s.snapshot.Packages, packageDir, s.req.ForceDownload)
	if err != nil {
		return serviceError("download packages", err)
	}
	s.logger.Info("downloaded packages", "count", n, "dest", packageDir)
	return nil
}

func (e *Engine) create(ctx context.Context, s *state, dir *workdir.Dir) error {
	if err := e.stage(s, dir); err != nil {
		return err
	}
	if err := e.generate(ctx, s, dir); err != nil {
		return err
	}
	return e.publish(ctx, s, dir)
}

func (e *Engine) update(ctx context.Context, s *state, dir *workdir.Dir) error {
	if err := os.MkdirAll(dir.Metadata, 0755); err != nil {
		return serviceError("initialize working directory", err)
	}
	if err := e.download(ctx, s, dir.Root, dir.Metadata); err != nil {
		return err
	}
	return e.create(ctx, s, dir)
}

func (e *Engine) stage(s *state, dir *workdir.Dir) error {
	staged, err := dir.Stage(s.req.Artifacts)
	if err != nil {
		return serviceError("stage packages", err)
	}
	for _, path := range staged {
		s.logger.Debug("staged", "file", path)
	}
	s.logger.Info("staged packages", "count", len(staged), "dir", dir.Root)
	return nil
}

func (e *Engine) generate(ctx context.Context, s *state, dir *workdir.Dir) error {
	if err := dir.ResetMetadata(); err != nil {
		return serviceError("generate metadata", err)
	}

	if err := e.generator.Generate(ctx, dir.Root); err != nil {
		return serviceError("generate metadata", err)
	}
	return nil
}

// publish replaces the remote repo with the working directory. Between
// deleting the old metadata and uploading the new one the remote repo has
// no index; the sequence is not atomic and nothing is rolled back.
func (e *Engine) publish(ctx context.Context, s *state, dir *workdir.Dir) error {
	if err := s.xfer.UploadDirectory(ctx, dir.Root, e.cfg.Path, s.snapshot.PackagesByName(), s.req.ForceUpload); err != nil {
		return serviceError("upload packages", err)
	}

	s.logger.Info("deleting old metadata", "count", len(s.snapshot.Metadata))
	if err := s.xfer.DeleteObjects(ctx, s.snapshot.Metadata); err != nil {
		return serviceError("delete old metadata", err)
	}

	if removed := s.matchRemovals(); len(removed) > 0 {
		s.logger.Info("removing packages", "count", len(removed))
		if err := s.xfer.DeleteObjects(ctx, removed); err != nil {
			return serviceError("remove packages", err)
		}
	}

	if err := s.xfer.UploadDirectory(ctx, dir.Metadata, repo.MetadataPrefix(e.cfg.Path), nil, true); err != nil {
		return serviceError("upload metadata", err)
	}
	return nil
}

// matchRemovals returns the snapshot packages matching any removal pattern.
func (s *state) matchRemovals() []store.ObjectInfo {
	var matched []store.ObjectInfo
	for _, pkg := range s.snapshot.Packages {
		for _, g := range s.removals {
			if g.Match(pkg.Key) {
				matched = append(matched, pkg)
				break
			}
		}
	}
	return matched
}

func (e *Engine) delete(ctx context.Context, s *state) error {
	ok, err := e.confirm.Confirm(e.cfg.Target())
	if err != nil {
		return serviceError("confirm delete", err)
	}
	if !ok {
		_, _ = fmt.Fprintln(e.out, "Delete aborted!")
		s.logger.Info("delete aborted by operator")
		return ErrAborted
	}

	if err := s.xfer.DeleteObjects(ctx, s.snapshot.Metadata); err != nil {
		return serviceError("delete metadata", err)
	}
	if err := s.xfer.DeleteObjects(ctx, s.snapshot.Packages); err != nil {
		return serviceError("delete packages", err)
	}
	return nil
}
